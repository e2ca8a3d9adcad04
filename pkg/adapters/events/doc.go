// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups, plus broadcast topics read
//     with plain XREAD
//   - memory: In-process fan-out
package events

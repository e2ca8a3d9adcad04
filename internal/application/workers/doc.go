// Package workers implements the worker pool that executes queued runs.
//
// The pool subscribes once to run.events and hands each run.submitted event
// to a fixed number of worker goroutines that:
//   - Claim the pending run through the run manager
//   - Execute its prompts with the batch driver
//   - Record every item transition in run storage
//   - Publish item and run completion events
//
// The health monitor samples worker states and rate limiter usage into logs
// and metrics.
package workers

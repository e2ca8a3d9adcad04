// Package runs implements asynchronous prompt-list submissions.
//
// The run manager coordinates execution by:
//   - Validating submissions (prompts and call options)
//   - Managing the run lifecycle (submit, begin, finish, cancel)
//   - Publishing events to the event bus
//   - Tracking run state via run storage
//
// Runs move pending -> running -> completed, failed or cancelled. A run
// always holds one result per prompt.
package runs

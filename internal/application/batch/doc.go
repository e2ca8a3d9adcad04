// Package batch drives prompt lists through the rate limiter and an LLM
// client.
//
// Each prompt moves PENDING -> IN_FLIGHT -> COMPLETED or FAILED. A failed
// item never aborts the rest of the submission, and the returned results are
// always aligned with the input prompts.
package batch

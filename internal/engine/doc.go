// Package engine implements the host execution engine that diagnostic reports
// are taken from.
//
// A Loop owns one goroutine, locked to its OS thread, that runs tasks to
// completion in submission order. Everything a task does is "script" in the
// engine's terms: it can be interrupted at checkpoints, it can throw (panic)
// into the uncaught-exception path, and its stack can be captured while it is
// running.
//
// Other goroutines reach the loop in three ways:
//
//   - Post and Call enqueue a task.
//   - RequestInterrupt queues a callback that runs at the next Checkpoint made
//     by a running task. An idle loop never runs interrupts.
//   - An Async handle wakes the loop from any goroutine. Sends coalesce until
//     the callback has run, and the callback runs even when nothing else is
//     queued.
//
// Fatal reports an unrecoverable condition from any goroutine and hands it to
// the installed fatal-error handler.
package engine

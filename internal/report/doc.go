// Package report produces diagnostic reports of a running engine.
//
// A Controller receives report requests from four places: explicit calls made
// by tasks on the engine, the engine's fatal-error handler, its
// uncaught-exception handler, and an operating system signal. Signals are
// received by a relay that only records the signal number in a single-slot
// mailbox and wakes a watchdog goroutine. The watchdog asks the engine for an
// execution interrupt and also wakes the idle loop, and whichever of the two
// callbacks runs first on the engine goroutine takes the report and clears
// the mailbox.
//
// Only one report is built at a time. A trigger that arrives while a report is
// in progress is dropped.
package report

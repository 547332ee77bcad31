package engine

// RequestInterrupt queues fn to run on the loop goroutine at the next
// Checkpoint: when the next task starts, or when a running task calls
// Checkpoint. It is safe to call from any goroutine. Interrupts are not run
// while the loop is idle.
func (l *Loop) RequestInterrupt(fn func()) {
	l.intrMu.Lock()
	l.interrupts = append(l.interrupts, fn)
	l.intrMu.Unlock()
	l.intrPending.Store(true)
}

// Checkpoint runs queued interrupts. Long-running tasks call it at points where
// it is safe to observe the loop from the outside. Calls from any goroutine
// other than the loop goroutine, or outside a task, do nothing.
func (l *Loop) Checkpoint() {
	if !l.intrPending.Load() {
		return
	}
	if l.State() != StateScript || currentThreadID() != l.ThreadID() {
		return
	}

	l.intrMu.Lock()
	pending := l.interrupts
	l.interrupts = nil
	l.intrPending.Store(false)
	l.intrMu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// PendingInterrupts reports how many interrupts are waiting for a checkpoint.
func (l *Loop) PendingInterrupts() int {
	l.intrMu.Lock()
	defer l.intrMu.Unlock()
	return len(l.interrupts)
}

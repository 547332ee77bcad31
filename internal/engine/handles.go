package engine

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrHandleClosed is returned when operating on a closed handle.
var ErrHandleClosed = errors.New("engine: handle closed")

// HandleInfo is a point-in-time view of a registered handle.
type HandleInfo struct {
	ID       uint64
	Type     string
	Name     string
	Detail   string
	Ref      bool
	Active   bool
	Internal bool
}

// Handle is a resource registered with the loop. Referenced handles are what
// would keep a host process alive; unreferenced ones are listed but ignored.
type Handle struct {
	id       uint64
	kind     string
	name     string
	internal bool

	reg    *registry
	ref    atomic.Bool
	active atomic.Bool
	closed atomic.Bool

	detailMu sync.Mutex
	detail   string
}

// ID returns the handle id. Ids increase in registration order.
func (h *Handle) ID() uint64 { return h.id }

// Ref marks the handle as keeping the loop alive.
func (h *Handle) Ref() { h.ref.Store(true) }

// Unref marks the handle as not keeping the loop alive.
func (h *Handle) Unref() { h.ref.Store(false) }

// HasRef reports whether the handle is referenced.
func (h *Handle) HasRef() bool { return h.ref.Load() }

// SetActive updates the active flag.
func (h *Handle) SetActive(v bool) { h.active.Store(v) }

// SetDetail sets the free-form detail shown in handle summaries.
func (h *Handle) SetDetail(s string) {
	h.detailMu.Lock()
	h.detail = s
	h.detailMu.Unlock()
}

// Close removes the handle from the loop. It is safe to call more than once.
func (h *Handle) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.active.Store(false)
	h.reg.remove(h.id)
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool { return h.closed.Load() }

func (h *Handle) info() HandleInfo {
	h.detailMu.Lock()
	detail := h.detail
	h.detailMu.Unlock()
	return HandleInfo{
		ID:       h.id,
		Type:     h.kind,
		Name:     h.name,
		Detail:   detail,
		Ref:      h.ref.Load(),
		Active:   h.active.Load(),
		Internal: h.internal,
	}
}

type registry struct {
	mu      sync.Mutex
	nextID  uint64
	handles map[uint64]*Handle
}

func newRegistry() *registry {
	return &registry{handles: make(map[uint64]*Handle)}
}

func (r *registry) add(kind, name string, internal bool) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	h := &Handle{id: r.nextID, kind: kind, name: name, internal: internal, reg: r}
	h.ref.Store(true)
	h.active.Store(true)
	r.handles[h.id] = h
	return h
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

func (r *registry) snapshot() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RegisterHandle adds a handle of the given type to the loop.
func (l *Loop) RegisterHandle(kind, name string) *Handle {
	return l.handles.add(kind, name, false)
}

// WalkHandles calls fn for every registered handle in registration order.
func (l *Loop) WalkHandles(fn func(HandleInfo)) {
	for _, h := range l.handles.snapshot() {
		fn(h.info())
	}
}

// Async wakes the loop from any goroutine and runs its callback there.
type Async struct {
	*Handle
	loop    *Loop
	cb      func()
	pending atomic.Bool
}

// NewAsync registers an async handle. The callback runs on the loop goroutine
// after Send, even when the loop has nothing else to do.
func (l *Loop) NewAsync(cb func()) (*Async, error) {
	if l.closed.Load() {
		return nil, ErrLoopClosed
	}
	if cb == nil {
		return nil, errors.New("engine: nil async callback")
	}
	a := &Async{loop: l, cb: cb}
	a.Handle = l.handles.add("async", "", true)

	l.asyncMu.Lock()
	l.asyncs = append(l.asyncs, a)
	l.asyncMu.Unlock()
	return a, nil
}

// Send schedules the callback. Sends made before the callback runs coalesce
// into one invocation.
func (a *Async) Send() error {
	if a.Closed() {
		return ErrHandleClosed
	}
	if a.loop.closed.Load() {
		return ErrLoopClosed
	}
	if !a.pending.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case a.loop.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close unregisters the handle. Pending sends are discarded.
func (a *Async) Close() {
	a.Handle.Close()
	a.pending.Store(false)

	l := a.loop
	l.asyncMu.Lock()
	defer l.asyncMu.Unlock()
	for i, other := range l.asyncs {
		if other == a {
			l.asyncs = append(l.asyncs[:i], l.asyncs[i+1:]...)
			break
		}
	}
}

func (l *Loop) runAsyncCallbacks() {
	l.asyncMu.Lock()
	ready := make([]*Async, 0, len(l.asyncs))
	for _, a := range l.asyncs {
		if a.pending.CompareAndSwap(true, false) {
			ready = append(ready, a)
		}
	}
	l.asyncMu.Unlock()

	for _, a := range ready {
		l.runCallback(a.cb)
	}
}

// runCallback runs a host callback. The callback is native code from the
// loop's point of view, so Checkpoint does nothing inside it.
func (l *Loop) runCallback(fn func()) {
	l.state.Store(int32(StateExternal))
	defer l.state.Store(int32(StateIdle))
	defer l.recoverUncaught()
	fn()
}

// Timer repeatedly posts a task to the loop.
type Timer struct {
	*Handle
	stop chan struct{}
	once sync.Once
}

// SetInterval posts fn to the loop every d until the timer is closed or the
// loop stops.
func (l *Loop) SetInterval(name string, d time.Duration, fn func()) *Timer {
	t := &Timer{Handle: l.handles.add("timer", name, false), stop: make(chan struct{})}
	t.SetDetail("repeat " + d.String())

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := l.Post(fn); err != nil {
					return
				}
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return t
}

// Close stops the timer and unregisters it.
func (t *Timer) Close() {
	t.once.Do(func() { close(t.stop) })
	t.Handle.Close()
}

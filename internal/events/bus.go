// Package events fans report lifecycle notifications out to live subscribers
// such as the HTTP event stream. Slow subscribers lose their oldest events
// instead of stalling the publisher.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// Event types.
const (
	TypeReportWritten  = "report_written"
	TypeOptionChanged  = "option_changed"
	TypeConfigReloaded = "config_reloaded"
)

// Event is a single notification.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"timestamp"`
	Data any       `json:"data,omitempty"`
}

// OptionChange is the payload of an option_changed event.
type OptionChange struct {
	Option string `json:"option"`
	Value  string `json:"value"`
}

// ReportWritten builds the event for a completed report.
func ReportWritten(rec report.Record) Event {
	return Event{Type: TypeReportWritten, Time: rec.CreatedAt, Data: rec}
}

// OptionChanged builds the event for a runtime option update.
func OptionChanged(option, value string) Event {
	return Event{
		Type: TypeOptionChanged,
		Time: time.Now(),
		Data: OptionChange{Option: option, Value: value},
	}
}

// ConfigReloaded builds the event for an applied configuration file change.
func ConfigReloaded(path string) Event {
	return Event{Type: TypeConfigReloaded, Time: time.Now(), Data: map[string]string{"path": path}}
}

type subscriber struct {
	ch    chan Event
	types map[string]bool // empty means all
}

// Bus is a pub/sub hub with bounded per-subscriber buffers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	bufferSize  int
	dropped     atomic.Int64
	closed      bool
}

// New creates a bus whose subscribers buffer up to bufferSize events.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The channel is closed by Unsubscribe or
// Close.
func (b *Bus) Subscribe(types ...string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		ch:    make(chan Event, b.bufferSize),
		types: make(map[string]bool, len(types)),
	}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	for _, t := range types {
		sub.types[t] = true
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subscribers[:0]
	for _, sub := range b.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			continue
		}
		kept = append(kept, sub)
	}
	b.subscribers = kept
}

// Publish delivers e to every matching subscriber without blocking. A full
// buffer drops its oldest event to make room.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		if len(sub.types) > 0 && !sub.types[e.Type] {
			continue
		}
		select {
		case sub.ch <- e:
			continue
		default:
		}
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events discarded for slow subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}

package events

import (
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestBus_SubscribeAll(t *testing.T) {
	t.Parallel()
	bus := New(4)
	defer bus.Close()

	ch := bus.Subscribe()
	rec := report.Record{ReportID: "r-1", Event: "apicall", CreatedAt: time.Unix(100, 0)}
	bus.Publish(ReportWritten(rec))
	bus.Publish(OptionChanged("events", "signal"))

	first := receive(t, ch)
	if first.Type != TypeReportWritten || !first.Time.Equal(rec.CreatedAt) {
		t.Errorf("first = %+v", first)
	}
	if got, ok := first.Data.(report.Record); !ok || got.ReportID != "r-1" {
		t.Errorf("first data = %#v", first.Data)
	}
	second := receive(t, ch)
	if change, ok := second.Data.(OptionChange); !ok || change.Option != "events" || change.Value != "signal" {
		t.Errorf("second data = %#v", second.Data)
	}
}

func TestBus_SubscribeByType(t *testing.T) {
	t.Parallel()
	bus := New(4)
	defer bus.Close()

	options := bus.Subscribe(TypeOptionChanged)
	bus.Publish(ReportWritten(report.Record{}))
	bus.Publish(OptionChanged("verbose", "yes"))

	if e := receive(t, options); e.Type != TypeOptionChanged {
		t.Errorf("type = %s, want %s", e.Type, TypeOptionChanged)
	}
	select {
	case e := <-options:
		t.Errorf("unexpected event %+v", e)
	default:
	}
}

func TestBus_RingBufferDropsOldest(t *testing.T) {
	t.Parallel()
	bus := New(2)
	defer bus.Close()

	ch := bus.Subscribe()
	for _, v := range []string{"a", "b", "c", "d"} {
		bus.Publish(OptionChanged("filename", v))
	}

	if got := bus.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	for _, want := range []string{"c", "d"} {
		e := receive(t, ch)
		if got := e.Data.(OptionChange).Value; got != want {
			t.Errorf("value = %q, want %q", got, want)
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	bus := New(1)
	defer bus.Close()

	ch := bus.Subscribe()
	other := bus.Subscribe()
	bus.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}

	bus.Publish(OptionChanged("coredump", "no"))
	receive(t, other)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	bus := New(1)
	ch := bus.Subscribe()

	bus.Close()
	bus.Close()
	bus.Publish(OptionChanged("signal", "SIGUSR1"))

	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}
	if _, ok := <-bus.Subscribe(); ok {
		t.Error("subscription after Close is open")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	t.Parallel()
	const publishers, each = 8, 50
	bus := New(publishers * each)
	defer bus.Close()
	ch := bus.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				bus.Publish(ReportWritten(report.Record{}))
			}
		}()
	}
	wg.Wait()

	if got := len(ch); got != publishers*each {
		t.Errorf("buffered = %d, want %d", got, publishers*each)
	}
	if bus.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", bus.Dropped())
	}
}

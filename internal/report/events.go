package report

import (
	"fmt"
	"strings"
)

// DumpEvent identifies the source of a report request.
type DumpEvent int

const (
	EventException DumpEvent = iota
	EventFatalError
	EventSignalFromScript
	EventSignalFromIdleLoop
	EventAPICall
)

func (e DumpEvent) String() string {
	switch e {
	case EventException:
		return "exception"
	case EventFatalError:
		return "fatalerror"
	case EventSignalFromScript:
		return "signal_script"
	case EventSignalFromIdleLoop:
		return "signal_idle"
	case EventAPICall:
		return "apicall"
	default:
		return "unknown"
	}
}

// EventMask is the set of event classes that produce reports.
type EventMask uint8

const (
	MaskException EventMask = 1 << iota
	MaskFatalError
	MaskSignal
	MaskAPICall

	MaskAll = MaskException | MaskFatalError | MaskSignal | MaskAPICall
)

var maskTokens = []struct {
	token string
	bit   EventMask
}{
	{"exception", MaskException},
	{"fatalerror", MaskFatalError},
	{"signal", MaskSignal},
	{"apicall", MaskAPICall},
}

// Has reports whether every bit of other is set.
func (m EventMask) Has(other EventMask) bool {
	return m&other == other
}

// String renders the mask in the "+"-joined token form accepted by ParseEvents.
func (m EventMask) String() string {
	var parts []string
	for _, t := range maskTokens {
		if m&t.bit != 0 {
			parts = append(parts, t.token)
		}
	}
	return strings.Join(parts, "+")
}

// ParseEvents parses "+"-joined event tokens. The result replaces the whole
// mask; an empty string yields an empty mask.
func ParseEvents(s string) (EventMask, error) {
	var mask EventMask
	if s == "" {
		return 0, nil
	}
	for _, tok := range strings.Split(s, "+") {
		bit, ok := lookupMaskToken(tok)
		if !ok {
			return 0, fmt.Errorf("%w for events option: %q", ErrUnknownToken, tok)
		}
		mask |= bit
	}
	return mask, nil
}

func lookupMaskToken(tok string) (EventMask, bool) {
	for _, t := range maskTokens {
		if t.token == tok {
			return t.bit, true
		}
	}
	return 0, false
}

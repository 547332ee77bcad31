package report

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

const (
	// MaxFilenameLen bounds filename overrides and explicit report names.
	MaxFilenameLen = 64
	// MaxDirectoryLen bounds directory overrides.
	MaxDirectoryLen = 1024
)

var (
	ErrUnknownToken      = errors.New("unrecognised argument")
	ErrMissingArgument   = errors.New("missing argument")
	ErrFilenameTooLong   = fmt.Errorf("filename too long (max %d characters)", MaxFilenameLen)
	ErrDirectoryTooLong  = fmt.Errorf("directory path too long (max %d characters)", MaxDirectoryLen)
	ErrSignalUnsupported = errors.New("signal reporting not supported on this platform")
)

// Options is a copy of the trigger configuration.
type Options struct {
	Events    EventMask
	CoreDump  bool
	Signal    os.Signal
	Filename  string
	Directory string
	Verbose   bool
}

// DefaultOptions returns the configuration used before any setter runs.
func DefaultOptions() Options {
	return Options{
		Events:   MaskAll,
		CoreDump: true,
		Signal:   defaultSignal(),
	}
}

// SignalName returns the configured signal's token, or "" when none.
func (o Options) SignalName() string {
	if o.Signal == nil {
		return ""
	}
	return signalName(o.Signal)
}

// configState holds the process-wide trigger configuration. Each field update
// is atomic on its own; updates across fields are last-write-wins.
type configState struct {
	mu   sync.RWMutex
	opts Options
}

func newConfigState(opts Options) *configState {
	return &configState{opts: opts}
}

func (c *configState) snapshot() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

func (c *configState) update(fn func(*Options)) (before, after Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before = c.opts
	fn(&c.opts)
	return before, c.opts
}

// ParseSwitch parses the yes|true / no|false tokens used by the core dump and
// verbose options.
func ParseSwitch(s string) (bool, error) {
	switch s {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	case "":
		return false, ErrMissingArgument
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownToken, s)
	}
}

// ParseSignal parses a signal token such as SIGUSR2.
func ParseSignal(s string) (os.Signal, error) {
	if s == "" {
		return nil, ErrMissingArgument
	}
	if len(signalTable) == 0 {
		return nil, ErrSignalUnsupported
	}
	for _, entry := range signalTable {
		if entry.name == s {
			return entry.sig, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownToken, s)
}

func validateFilename(s string) error {
	if s == "" {
		return ErrMissingArgument
	}
	if len(s) > MaxFilenameLen {
		return ErrFilenameTooLong
	}
	return nil
}

func validateDirectory(s string) error {
	if s == "" {
		return ErrMissingArgument
	}
	if len(s) > MaxDirectoryLen {
		return ErrDirectoryTooLong
	}
	return nil
}

// Settings carries raw option tokens, typically from the environment or a
// config file. Empty fields are left untouched.
type Settings struct {
	Events    string
	CoreDump  string
	Signal    string
	Filename  string
	Directory string
	Verbose   string
}

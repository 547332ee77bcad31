package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// Frame is one entry of a captured stack.
type Frame struct {
	PC       uintptr
	Function string
	File     string
	Line     int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}

const maxFrames = 255

// CaptureStack returns the calling goroutine's stack. skip=0 starts at the
// caller of CaptureStack.
func CaptureStack(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	return framesOf(pcs[:n])
}

func framesOf(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs)
	out := make([]Frame, 0, len(pcs))
	for {
		fr, more := frames.Next()
		out = append(out, Frame{PC: fr.PC, Function: fr.Function, File: fr.File, Line: fr.Line})
		if !more {
			break
		}
	}
	return out
}

// Exception is a panic that escaped a task.
type Exception struct {
	Value   any
	Message string
	// Frames is the stack of the panicking goroutine starting at the frame
	// that panicked.
	Frames []Frame
}

// Error implements error.
func (e *Exception) Error() string { return e.Message }

// Unwrap returns the panic value when it was an error.
func (e *Exception) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func newException(v any, skip int) *Exception {
	ex := &Exception{Value: v}
	switch val := v.(type) {
	case error:
		ex.Message = val.Error()
	case string:
		ex.Message = val
	default:
		ex.Message = fmt.Sprint(val)
	}
	ex.Frames = trimPanicFrames(CaptureStack(skip + 1))
	return ex
}

// trimPanicFrames drops the recovery and runtime frames above the frame that
// panicked.
func trimPanicFrames(frames []Frame) []Frame {
	for i, f := range frames {
		if f.Function == "runtime.gopanic" {
			rest := frames[i+1:]
			for len(rest) > 0 && strings.HasPrefix(rest[0].Function, "runtime.") {
				rest = rest[1:]
			}
			return rest
		}
	}
	return frames
}

// Package diag formats and emits the engine's user-visible diagnostics:
// the `<file>:<line> <function>() <severity>: <message>` lines spec.md
// §6 describes. This is a deliberately separate stream from the
// structured debug/internal logging in package internal/log: diagnostics
// must be bit-for-bit deterministic run to run (testable property 6), so
// they are written directly to a driver-supplied io.Writer rather than
// routed through logrus, whose output includes timestamps and whose
// ordering across goroutines isn't guaranteed stable.
package diag

import (
	"fmt"
	"io"
	"sort"
)

// Severity is one of the diagnostic levels a checker reports at.
type Severity int

const (
	Info Severity = iota
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	}
	return "unknown"
}

// Diagnostic is one reported finding.
type Diagnostic struct {
	File     string
	Line     int
	Function string
	Severity Severity
	Checker  string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d %s() %s: %s", d.File, d.Line, d.Function, d.Severity, d.Message)
}

// Sink collects diagnostics over the course of one analysis run and
// emits them in a stable order, regardless of which goroutine or
// function order produced them, so that two runs over the same input
// always print the same output.
type Sink struct {
	w    io.Writer
	Spam bool // include Info-severity diagnostics (set by --spammy or --info)
	diag []Diagnostic
}

// NewSink returns a Sink writing to w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Report records a diagnostic. It is buffered, not written immediately,
// so Flush can sort the whole run's output into a deterministic order
// first.
func (s *Sink) Report(d Diagnostic) {
	if d.Severity == Info && !s.Spam {
		return
	}
	s.diag = append(s.diag, d)
}

// Flush writes every buffered diagnostic to the sink's Writer, sorted by
// (file, line, checker) for determinism, and clears the buffer.
func (s *Sink) Flush() error {
	sort.SliceStable(s.diag, func(i, j int) bool {
		a, b := s.diag[i], s.diag[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Checker < b.Checker
	})
	for _, d := range s.diag {
		if _, err := fmt.Fprintln(s.w, d.String()); err != nil {
			return err
		}
	}
	s.diag = s.diag[:0]
	return nil
}

// Count returns how many diagnostics are currently buffered.
func (s *Sink) Count() int { return len(s.diag) }

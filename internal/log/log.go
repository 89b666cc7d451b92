// Package log builds the engine's internal/debug logger: a
// *logrus.Entry pre-populated with the fields every subsystem's log line
// carries, the same NewLogger-returns-an-Entry shape the teacher's own
// log package uses, adapted from a per-process application config to
// this engine's per-run Options.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures the logger a driver builds once per analysis run.
type Options struct {
	Debug   bool
	Project string
	Version string
}

// NewLogger returns a *logrus.Entry scoped to the run described by opts.
// A non-debug run logs only warnings and above to stderr; a debug run
// (the --debug flag of spec.md §6) logs at debug level with JSON
// formatting so a driver embedding the engine can pipe it to a structured
// log collector alongside its own logs.
func NewLogger(opts Options) *logrus.Entry {
	l := logrus.New()
	if opts.Debug || os.Getenv("SMATCHFLOW_DEBUG") == "1" {
		l.SetLevel(logrus.DebugLevel)
		l.SetOutput(os.Stderr)
		l.Formatter = &logrus.JSONFormatter{}
	} else {
		l.SetLevel(logrus.WarnLevel)
		l.SetOutput(os.Stderr)
	}
	return l.WithFields(logrus.Fields{
		"project": opts.Project,
		"version": opts.Version,
	})
}

// Discard returns an Entry that drops everything, for tests and for any
// call site that doesn't have a real Options yet.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

package pathexplorer

import (
	"fmt"
	"io"
)

// DebugTree renders the path explorer's walk as an indented trace, the
// engine's analogue of the teacher's DebugTree: every branch point nests
// one level deeper, so --debug output reads as the same shape as the
// control flow it describes. It is written directly to an io.Writer
// rather than through logrus, matching the diagnostic stream's
// determinism requirement (see package diag).
type DebugTree struct {
	w     io.Writer
	depth int
}

// NewDebugTree returns a DebugTree writing to w. A nil w makes every
// method a no-op, so callers can unconditionally hold a *DebugTree field
// and only pay for tracing when --debug is set.
func NewDebugTree(w io.Writer) *DebugTree {
	return &DebugTree{w: w}
}

func (d *DebugTree) Enabled() bool { return d != nil && d.w != nil }

func (d *DebugTree) Printf(format string, args ...interface{}) {
	if !d.Enabled() {
		return
	}
	for i := 0; i < d.depth; i++ {
		fmt.Fprint(d.w, "  ")
	}
	fmt.Fprintf(d.w, format, args...)
	fmt.Fprintln(d.w)
}

// Enter prints msg and returns a function that exits the nested scope;
// callers use it as `defer d.Enter("if (%s)", cond)()`.
func (d *DebugTree) Enter(format string, args ...interface{}) func() {
	if !d.Enabled() {
		return func() {}
	}
	d.Printf(format, args...)
	d.depth++
	return func() { d.depth-- }
}

package diag

import (
	"strings"
	"testing"
)

func TestFlushIsDeterministicallyOrdered(t *testing.T) {
	var b strings.Builder
	sink := NewSink(&b)
	sink.Report(Diagnostic{File: "z.c", Line: 5, Function: "g", Severity: Warn, Checker: "null", Message: "m1"})
	sink.Report(Diagnostic{File: "a.c", Line: 20, Function: "f", Severity: Error, Checker: "leak", Message: "m2"})
	sink.Report(Diagnostic{File: "a.c", Line: 10, Function: "f", Severity: Error, Checker: "leak", Message: "m3"})

	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	got := b.String()
	wantOrder := []string{"a.c:10", "a.c:20", "z.c:5"}
	lastIdx := -1
	for _, want := range wantOrder {
		idx := strings.Index(got, want)
		if idx < 0 {
			t.Fatalf("output missing %q: %s", want, got)
		}
		if idx < lastIdx {
			t.Fatalf("output not in file/line order: %s", got)
		}
		lastIdx = idx
	}
}

func TestInfoSuppressedWithoutSpam(t *testing.T) {
	var b strings.Builder
	sink := NewSink(&b)
	sink.Report(Diagnostic{File: "a.c", Line: 1, Function: "f", Severity: Info, Message: "informational"})
	sink.Flush()
	if b.String() != "" {
		t.Fatalf("info diagnostic should be suppressed without --spammy, got %q", b.String())
	}

	b.Reset()
	sink = NewSink(&b)
	sink.Spam = true
	sink.Report(Diagnostic{File: "a.c", Line: 1, Function: "f", Severity: Info, Message: "informational"})
	sink.Flush()
	if !strings.Contains(b.String(), "informational") {
		t.Fatalf("info diagnostic should be printed with --spammy, got %q", b.String())
	}
}

func TestDiagnosticStringFormat(t *testing.T) {
	d := Diagnostic{File: "buf.c", Line: 42, Function: "parse_buf", Severity: Error, Message: "possible use after free"}
	want := "buf.c:42 parse_buf() error: possible use after free"
	if got := d.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

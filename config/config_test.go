package config

import "testing"

func TestParseBasic(t *testing.T) {
	text := `
# allocation functions that can return NULL, by the GFP-flags argument index
kmalloc 1
kzalloc 1
vmalloc
`
	table, err := ParseString(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !table.Has("kmalloc") {
		t.Fatalf("table should have an entry for kmalloc")
	}
	entries := table.Lookup("kmalloc")
	if len(entries) != 1 || entries[0].ArgIndex != 1 {
		t.Fatalf("kmalloc entries = %v, want one entry with ArgIndex 1", entries)
	}
	vEntries := table.Lookup("vmalloc")
	if len(vEntries) != 1 || vEntries[0].ArgIndex != -1 {
		t.Fatalf("vmalloc entries = %v, want one entry with ArgIndex -1", vEntries)
	}
	if table.Has("not_present") {
		t.Fatalf("table should not have an entry for not_present")
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := ParseString("kmalloc 1 extra\n")
	if err == nil {
		t.Fatalf("Parse should reject a line with too many fields")
	}
}

func TestParseRejectsNonIntegerArgIndex(t *testing.T) {
	_, err := ParseString("kmalloc notanumber\n")
	if err == nil {
		t.Fatalf("Parse should reject a non-integer argument index")
	}
}

func TestParseAllowsTrailingComment(t *testing.T) {
	table, err := ParseString("kmalloc 1 # the gfp flags argument\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entries := table.Lookup("kmalloc")
	if len(entries) != 1 || entries[0].ArgIndex != 1 {
		t.Fatalf("entries = %v, want ArgIndex 1 with the comment stripped", entries)
	}
}

package db

import (
	"strings"
	"testing"
)

func TestCommandOf(t *testing.T) {
	cases := map[string]string{
		"\n\t\tSELECT id FROM projects": "select",
		"insert into projects":          "insert",
		"":                              "unknown",
	}
	for sql, want := range cases {
		if got := commandOf(sql); got != want {
			t.Fatalf("commandOf(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestTruncateSQL(t *testing.T) {
	long := strings.Repeat("x", 250)
	got := truncateSQL(long)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation %q", got)
	}
	if truncateSQL("") != "unknown" {
		t.Fatal("empty sql should be reported as unknown")
	}
}

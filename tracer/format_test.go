package tracer

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type badStringer struct{}

func (badStringer) String() string { panic("no representation") }

func TestFormatValuePrimitives(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "nil"},
		{42, "42"},
		{-3.5, "-3.5"},
		{true, "true"},
		{"hi", `"hi"`},
		{[]byte("raw"), `"raw"`},
	}
	for _, c := range cases {
		if got := formatValue(c.in); got != c.want {
			t.Fatalf("formatValue(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatValueTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := formatValue(long)
	if len(got) > maxStringLen+len("...") {
		t.Fatalf("long string not truncated: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated value should end with ellipsis: %q", got)
	}
}

func TestFormatValueSamplesLargeCollections(t *testing.T) {
	small := formatValue([]int{1, 2, 3})
	if small != "[1 2 3]" {
		t.Fatalf("small slice = %q", small)
	}

	big := formatValue([]int{1, 2, 3, 4, 5, 6})
	if !strings.Contains(big, "[6]") || !strings.Contains(big, "...") {
		t.Fatalf("large slice should carry length and sampling marker: %q", big)
	}
	if !strings.HasPrefix(big, "[]int") {
		t.Fatalf("large slice should name its type: %q", big)
	}

	bigMap := formatValue(map[string]int{"a": 1, "b": 2, "c": 3, "d": 4})
	if !strings.Contains(bigMap, "[4]") || !strings.Contains(bigMap, "...") {
		t.Fatalf("large map should carry length and sampling marker: %q", bigMap)
	}
}

func TestFormatValueObjects(t *testing.T) {
	got := formatValue(struct{ A int }{A: 7})
	if !strings.Contains(got, ": ") {
		t.Fatalf("object should render as type: value, got %q", got)
	}

	d := 1500 * time.Millisecond
	if got := formatValue(d); !strings.Contains(got, "1.5s") {
		t.Fatalf("Stringer value should use String(), got %q", got)
	}

	err := errors.New("broken")
	if got := formatValue(err); !strings.Contains(got, "broken") {
		t.Fatalf("error should include its message, got %q", got)
	}
}

func TestFormatValuePointersAndNils(t *testing.T) {
	n := 9
	if got := formatValue(&n); got != "9" {
		t.Fatalf("pointer should dereference, got %q", got)
	}
	var p *int
	if got := formatValue(p); got != "nil" {
		t.Fatalf("nil pointer = %q, want nil", got)
	}
}

func TestFormatValueNeverPanics(t *testing.T) {
	if got := formatValue(badStringer{}); got != "<unrepresentable>" {
		t.Fatalf("panicking value should render placeholder, got %q", got)
	}
}

func TestFormatResults(t *testing.T) {
	if got := formatResults(nil); got != "nil" {
		t.Fatalf("no results = %q, want nil", got)
	}

	out := 13
	if got := formatResults([]any{&out}); got != "13" {
		t.Fatalf("single pointer result = %q, want 13", got)
	}

	got := formatResults([]any{1, "two"})
	if got != `(1, "two")` {
		t.Fatalf("multiple results = %q", got)
	}
}

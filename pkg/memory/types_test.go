package memory_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"duskmire/pkg/memory"
)

func TestClampImportance(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want int
	}{
		{-1, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{101, 100},
		{9999, 100},
	}
	for _, tc := range cases {
		if got := memory.ClampImportance(tc.in); got != tc.want {
			t.Errorf("ClampImportance(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClampTopK(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want int
	}{
		{-5, 0},
		{0, 0},
		{5, 5},
		{50, 50},
		{51, 50},
	}
	for _, tc := range cases {
		if got := memory.ClampTopK(tc.in); got != tc.want {
			t.Errorf("ClampTopK(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClampCandidateLimit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want int
	}{
		{0, 10},
		{9, 10},
		{10, 10},
		{500, 500},
		{5000, 5000},
		{5001, 5000},
	}
	for _, tc := range cases {
		if got := memory.ClampCandidateLimit(tc.in); got != tc.want {
			t.Errorf("ClampCandidateLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBoundContent(t *testing.T) {
	t.Parallel()

	short := "a short memory"
	if got := memory.BoundContent(short); got != short {
		t.Errorf("BoundContent(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("x", memory.MaxContentLen+100)
	got := memory.BoundContent(long)
	if len(got) != memory.MaxContentLen {
		t.Errorf("BoundContent(long) length = %d, want %d", len(got), memory.MaxContentLen)
	}

	// Truncation never splits a multi-byte rune.
	multibyte := strings.Repeat("ä", memory.MaxContentLen) // 2 bytes per rune
	got = memory.BoundContent(multibyte)
	if len(got) > memory.MaxContentLen {
		t.Errorf("BoundContent(multibyte) length = %d, want <= %d", len(got), memory.MaxContentLen)
	}
	if !utf8.ValidString(got) {
		t.Error("BoundContent produced invalid UTF-8")
	}
}

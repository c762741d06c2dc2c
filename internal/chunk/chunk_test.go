package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitIsLossless(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		text   string
		maxLen int
	}{
		{"short", "hello", 10},
		{"exact multiple", strings.Repeat("ab", 50), 10},
		{"uneven tail", strings.Repeat("x", 23), 5},
		{"unicode", strings.Repeat("héllo wörld ", 40), 17},
		{"newlines kept", "a\n\nb\nc", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pieces := Split(tc.text, tc.maxLen)
			if got := strings.Join(pieces, ""); got != tc.text {
				t.Fatalf("join(chunks) != text:\ngot  %q\nwant %q", got, tc.text)
			}
			for i, p := range pieces {
				if n := utf8.RuneCountInString(p); n > tc.maxLen {
					t.Fatalf("piece %d has %d runes, max %d", i, n, tc.maxLen)
				}
			}
		})
	}
}

func TestSplitBoundaries(t *testing.T) {
	t.Parallel()

	atLimit := strings.Repeat("a", 4000)
	if got := Split(atLimit, 4000); len(got) != 1 {
		t.Fatalf("text of length max_len: %d pieces, want 1", len(got))
	}
	if got := Split(atLimit+"a", 4000); len(got) != 2 {
		t.Fatalf("text of length max_len+1: %d pieces, want 2", len(got))
	}
}

func TestSplitEmpty(t *testing.T) {
	t.Parallel()

	if got := Split("", 4000); got != nil {
		t.Fatalf("Split(\"\") = %q, want nil", got)
	}
}

func TestSplitDefaultsMaxLen(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("z", DefaultMaxLen+1)
	if got := Split(text, 0); len(got) != 2 {
		t.Fatalf("pieces = %d, want 2 with default max", len(got))
	}
}

package highlight

import (
	"strings"
	"testing"
)

func bracket(s string) string { return "[[" + s + "]]" }

func TestApplyANSI_CaseInsensitive(t *testing.T) {
	in := "Jane Doe wrote it\nsecond mention of jane\n"
	res := ApplyANSI(in, []string{"jane"}, bracket)

	if res.Count != 2 {
		t.Fatalf("expected 2 matches, got %d", res.Count)
	}
	if len(res.LineIndex) != 2 || res.LineIndex[0] != 0 || res.LineIndex[1] != 1 {
		t.Fatalf("unexpected line indexes: %#v", res.LineIndex)
	}
	if !strings.Contains(res.Text, "[[Jane]]") || !strings.Contains(res.Text, "[[jane]]") {
		t.Fatalf("highlight wrapper not applied: %q", res.Text)
	}
}

func TestApplyANSI_MultipleTerms(t *testing.T) {
	res := ApplyANSI("Author: Jane Doe\nPages: 12\nDoe again", []string{"doe", "pages", "DOE"}, bracket)

	if res.Count != 3 {
		t.Fatalf("expected 3 matches, got %d (%q)", res.Count, res.Text)
	}
	want := "Author: Jane [[Doe]]\n[[Pages]]: 12\n[[Doe]] again"
	if res.Text != want {
		t.Fatalf("unexpected text:\n got=%q\nwant=%q", res.Text, want)
	}
}

func TestApplyANSI_PrefersLongerTermAtSameOffset(t *testing.T) {
	res := ApplyANSI("reporting", []string{"report", "reporting"}, bracket)
	if res.Text != "[[reporting]]" || res.Count != 1 {
		t.Fatalf("expected longest match, got %q (%d)", res.Text, res.Count)
	}
}

func TestApplyANSI_PreservesEscapeSequences(t *testing.T) {
	in := "a \x1b[31mhello\x1b[0m b"
	res := ApplyANSI(in, []string{"hello"}, func(s string) string { return "<" + s + ">" })

	if res.Count != 1 {
		t.Fatalf("expected 1 match, got %d", res.Count)
	}
	if !strings.Contains(res.Text, "\x1b[31m<hello>\x1b[0m") {
		t.Fatalf("expected escaped segment to stay intact, got %q", res.Text)
	}
}

func TestApplyANSI_DoesNotMatchAcrossANSIBoundaries(t *testing.T) {
	in := "he\x1b[31mll\x1b[0mo"
	res := ApplyANSI(in, []string{"hello"}, func(s string) string { return "<" + s + ">" })
	if res.Count != 0 {
		t.Fatalf("expected 0 matches across ansi boundaries, got %d", res.Count)
	}
}

func TestApplyANSI_NoTerms(t *testing.T) {
	res := ApplyANSI("unchanged", []string{" ", ""}, bracket)
	if res.Text != "unchanged" || res.Count != 0 {
		t.Fatalf("expected passthrough, got %#v", res)
	}
}

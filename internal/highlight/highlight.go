package highlight

import (
	"regexp"
	"sort"
	"strings"
)

var ansiCSI = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

type Result struct {
	Text      string
	Count     int
	LineIndex []int
}

// ApplyANSI wraps every case-insensitive occurrence of any term in input,
// leaving escape sequences untouched. Longer terms win when two start at the
// same offset.
func ApplyANSI(input string, terms []string, wrap func(string) string) Result {
	terms = normalize(terms)
	if len(terms) == 0 {
		return Result{Text: input}
	}
	if wrap == nil {
		wrap = func(s string) string { return s }
	}

	lines := strings.SplitAfter(input, "\n")
	if len(lines) == 0 {
		lines = []string{input}
	}

	var out strings.Builder
	lineMatches := make([]int, 0, 64)
	total := 0

	for lineNo, line := range lines {
		hasNewline := strings.HasSuffix(line, "\n")
		core := line
		if hasNewline {
			core = strings.TrimSuffix(line, "\n")
		}

		rendered, count := applyToANSIText(core, terms, wrap)
		out.WriteString(rendered)
		if hasNewline {
			out.WriteByte('\n')
		}
		if count > 0 {
			lineMatches = append(lineMatches, lineNo)
			total += count
		}
	}

	return Result{
		Text:      out.String(),
		Count:     total,
		LineIndex: lineMatches,
	}
}

func normalize(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func applyToANSIText(s string, terms []string, wrap func(string) string) (string, int) {
	indices := ansiCSI.FindAllStringIndex(s, -1)
	if len(indices) == 0 {
		return applyToPlain(s, terms, wrap)
	}

	var out strings.Builder
	total := 0
	pos := 0
	for _, idx := range indices {
		if idx[0] > pos {
			plain, count := applyToPlain(s[pos:idx[0]], terms, wrap)
			out.WriteString(plain)
			total += count
		}
		out.WriteString(s[idx[0]:idx[1]])
		pos = idx[1]
	}
	if pos < len(s) {
		plain, count := applyToPlain(s[pos:], terms, wrap)
		out.WriteString(plain)
		total += count
	}
	return out.String(), total
}

func applyToPlain(s string, terms []string, wrap func(string) string) (string, int) {
	if s == "" {
		return s, 0
	}
	// ToLower can change byte lengths outside ASCII; offsets are only valid
	// when it does not.
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		return s, 0
	}

	var out strings.Builder
	count := 0
	start := 0
	for {
		idx, n := nextMatch(lower, start, terms)
		if idx < 0 {
			out.WriteString(s[start:])
			break
		}
		out.WriteString(s[start:idx])
		out.WriteString(wrap(s[idx : idx+n]))
		count++
		start = idx + n
	}
	return out.String(), count
}

func nextMatch(lower string, start int, terms []string) (int, int) {
	best, bestLen := -1, 0
	for _, t := range terms {
		rel := strings.Index(lower[start:], t)
		if rel < 0 {
			continue
		}
		idx := start + rel
		if best < 0 || idx < best {
			best, bestLen = idx, len(t)
		}
	}
	return best, bestLen
}

package guard

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	marker       = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)
	markerPrefix = regexp.MustCompile(`^\s*(\[\d+(?:\s*,\s*\d+)*\]\s*)+`)
	listBullet   = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)

	// initials and dotted abbreviations such as "e.g." or "U.S."
	dotted = regexp.MustCompile(`^(\pL\.)+$`)

	abbreviations = map[string]struct{}{
		"vs.":     {},
		"approx.": {},
		"inc.":    {},
		"corp.":   {},
		"ltd.":    {},
		"mr.":     {},
		"ms.":     {},
		"dr.":     {},
		"no.":     {},
		"est.":    {},
	}
)

// minClauseWords is the shortest sentence treated as a factual claim.
const minClauseWords = 3

type clause struct {
	line      int
	text      string
	citations []int
	factual   bool
}

// clauses splits text into sentences, keeping citation markers that trail
// the terminal punctuation attached to their sentence.
func clauses(text string) []clause {
	var out []clause

	for n, line := range strings.Split(text, "\n") {
		for _, s := range sentences(line) {
			out = append(out, newClause(n, s))
		}
	}

	return out
}

func sentences(line string) []string {
	var (
		out   []string
		start int
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}

		end := i + 1
		if end < len(line) && !unicode.IsSpace(rune(line[end])) && line[end] != '[' {
			continue
		}

		if c == '.' && abbreviated(line[:end]) {
			continue
		}

		if loc := markerPrefix.FindStringIndex(line[end:]); loc != nil {
			end += loc[1]
		}

		if s := strings.TrimSpace(line[start:end]); len(s) > 0 {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}

	if s := strings.TrimSpace(line[start:]); len(s) > 0 {
		out = append(out, s)
	}

	return out
}

// abbreviated reports whether the word ending head is an abbreviation
// rather than the end of a sentence.
func abbreviated(head string) bool {
	word := head[strings.LastIndexFunc(head, unicode.IsSpace)+1:]
	word = strings.TrimLeft(word, "(\"'")

	if dotted.MatchString(word) {
		return true
	}

	// "1." opening a numbered list item
	if word == strings.TrimSpace(head) && listBullet.MatchString(word+" ") {
		return true
	}

	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

func newClause(line int, text string) clause {
	c := clause{line: line, text: text}

	for _, m := range marker.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			c.citations = append(c.citations, id)
		}
	}

	body := strings.TrimSpace(marker.ReplaceAllString(listBullet.ReplaceAllString(text, ""), ""))

	switch {
	case strings.HasSuffix(body, ":"):
	case len(strings.Fields(body)) < minClauseWords && len(c.citations) == 0:
	default:
		c.factual = true
	}

	return c
}

func rebuild(all []clause, keep func(clause) bool) string {
	var (
		lines []string
		cur   []string
		line  = -1
	)

	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
		}
		cur = nil
	}

	for _, c := range all {
		if c.line != line {
			flush()
			line = c.line
		}
		if keep(c) {
			cur = append(cur, c.text)
		}
	}
	flush()

	return strings.Join(lines, "\n")
}

package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var (
	// (?s) lets the reasoning block span lines
	reThink  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	reNumber = regexp.MustCompile(`-?\d+\.?\d*`)
)

// CleanOracleText removes reasoning blocks and any stray markup from a model answer.
func CleanOracleText(text string) string {
	cleaned := reThink.ReplaceAllString(text, "")
	if !strings.ContainsRune(cleaned, '<') {
		return strings.TrimSpace(cleaned)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(cleaned))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or an unparseable tail; keep what was collected so far.
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
	return strings.TrimSpace(b.String())
}

// ExtractNumber pulls the first signed decimal number out of a model answer.
// Spaces and commas between digits are dropped, and so is a dot followed by three
// or more digits, so "1 300 000" gives "1300000", "10.200" gives "10200" and
// "10.2" stays "10.2".
func ExtractNumber(text string) (string, bool) {
	cleaned := dropSeparators(CleanOracleText(text), func(r rune, next []rune) bool {
		return (unicode.IsSpace(r) || r == ',') && len(next) > 0 && isDigit(next[0])
	})
	cleaned = dropSeparators(cleaned, func(r rune, next []rune) bool {
		return r == '.' && len(next) >= 3 && isDigit(next[0]) && isDigit(next[1]) && isDigit(next[2])
	})

	m := reNumber.FindString(cleaned)
	if m == "" {
		return "", false
	}
	return strings.TrimSuffix(m, "."), true
}

// dropSeparators removes runes preceded by a digit for which drop reports true.
func dropSeparators(s string, drop func(r rune, next []rune) bool) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i, r := range runes {
		if i > 0 && isDigit(runes[i-1]) && drop(r, runes[i+1:]) {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

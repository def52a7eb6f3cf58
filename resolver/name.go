package resolver

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// HumanName turns a test function name into a readable sentence:
// "dummyMethod" becomes "Dummy method", "TestHTTPRetry_onTimeout" becomes
// "HTTP retry on timeout". A leading Test prefix is dropped.
func HumanName(method string) string {
	words := splitWords(trimTestPrefix(method))
	if len(words) == 0 {
		return method
	}
	for i, w := range words {
		if !isAcronym(w) {
			words[i] = strings.ToLower(w)
		}
	}
	words[0] = titleCaser.String(words[0])
	return strings.Join(words, " ")
}

// trimTestPrefix drops "Test" when it starts a Go test name, so "TestRefund"
// loses it and "Testimony" keeps it.
func trimTestPrefix(method string) string {
	rest, ok := strings.CutPrefix(method, "Test")
	if !ok || rest == "" {
		return rest
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if unicode.IsUpper(r) || unicode.IsDigit(r) || r == '_' {
		return rest
	}
	return method
}

// Name returns the declared name, or the humanized method name when none is declared
func Name(c *types.Candidate) string {
	if c.Declaration != nil && c.Declaration.Name != "" {
		return c.Declaration.Name
	}
	return HumanName(c.Method)
}

// splitWords breaks on '_', '-', spaces and camel case boundaries. Runs of
// upper case letters stay together ("HTTPRetry" -> "HTTP", "Retry").
func splitWords(s string) []string {
	var words []string
	runes := []rune(s)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}
	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		case unicode.IsLetter(r) && unicode.IsDigit(prev):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}

func isAcronym(w string) bool {
	if len([]rune(w)) < 2 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

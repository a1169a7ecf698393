package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches word tokens: letters, digits, and embedded apostrophes
// are kept together; everything else separates tokens.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}\p{N}]+)?`)

// Tokenize splits a free-text query into lowercase terms suitable for the
// FTS5 match expression. Single-character terms are dropped; they match too
// broadly to carry ranking signal.
func Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// BuildMatchQuery assembles an FTS5 MATCH expression from tokens. Terms are
// double-quoted so FTS5 operators embedded in user input (AND, NEAR, *) are
// treated as literals, and joined with OR so any matching term qualifies a
// row; bm25 ranking rewards rows matching more terms.
func BuildMatchQuery(terms []string) string {
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

package domain

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases s and splits it on anything that is not a letter or
// digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MatchPhrasePrefix reports whether the tokens of query occur consecutively
// in the tokens of text, the last query token matching as a prefix.
func MatchPhrasePrefix(text, query string) bool {
	tokens, q := Tokenize(text), Tokenize(query)
	n := len(q)
	if n == 0 {
		return false
	}
	for i := 0; i+n <= len(tokens); i++ {
		match := true
		for j := 0; j < n-1; j++ {
			if tokens[i+j] != q[j] {
				match = false
				break
			}
		}
		if match && strings.HasPrefix(tokens[i+n-1], q[n-1]) {
			return true
		}
	}
	return false
}

// ContainsTokens reports whether every token of query appears in text.
func ContainsTokens(text, query string) bool {
	q := Tokenize(query)
	if len(q) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		have[tok] = struct{}{}
	}
	for _, tok := range q {
		if _, ok := have[tok]; !ok {
			return false
		}
	}
	return true
}

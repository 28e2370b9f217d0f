package scoring

import (
	"strings"
	"unicode"
)

// stopWords are common English tokens stripped before similarity comparison.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "my": true, "near": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// Tokenize lowercases text, splits on non-alphanumeric runes and strips
// stop words. Returns the token set.
func Tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// TokenSet builds a token set from pre-normalized tokens (tags).
func TokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets are considered identical
// and score 1, so fully identical inputs reach full credit.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Dice returns 2|a∩b| / (|a|+|b|). Less punishing than Jaccard when one
// side carries extra tokens, which suits free-text addresses ("Central
// Mall" vs "Central Mall Food Court").
func Dice(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(a)+len(b))
}

// Package textmatch provides language-agnostic lexical matching used for
// relevance ranking and token budgeting. CJK text is split into overlapping
// bigrams; other scripts are split into lower-cased words.
package textmatch

import (
	"strings"
	"unicode"
)

// Tokens splits text into matching tokens.
func Tokens(text string) []string {
	var (
		tokens []string
		word   []rune
		cjk    []rune
	)
	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			tokens = append(tokens, string(cjk))
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				tokens = append(tokens, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()
	return tokens
}

// Set returns the distinct tokens of text.
func Set(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(text) {
		set[t] = struct{}{}
	}
	return set
}

// Score is the fraction of query tokens present in doc, in [0,1].
func Score(query, doc string) float64 {
	q := Set(query)
	if len(q) == 0 {
		return 0
	}
	d := Set(doc)
	hits := 0
	for t := range q {
		if _, ok := d[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

// Jaccard is the token-set similarity of a and b, in [0,1].
func Jaccard(a, b string) float64 {
	sa, sb := Set(a), Set(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// ContainsAny reports whether text contains any keyword, ignoring case.
func ContainsAny(text string, keywords ...string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return k, true
		}
	}
	return "", false
}

// EstimateTokens approximates the model token count of text. Each CJK rune
// counts as one token and other text as one token per four bytes.
func EstimateTokens(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
			continue
		}
		other += len(string(r))
	}
	return cjk + (other+3)/4
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

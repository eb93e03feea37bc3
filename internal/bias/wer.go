package bias

import (
	"strings"
	"unicode"
)

// WER computes the word error rate of a hypothesis transcript against a
// reference: word-level edit distance divided by the reference length.
// Tokens are case-normalized and stripped of punctuation before comparison.
func WER(hypothesis, reference string) float64 {
	hyp := tokenize(hypothesis)
	ref := tokenize(reference)

	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}

	dist := editDistance(hyp, ref)
	wer := float64(dist) / float64(len(ref))
	if wer > 1 {
		wer = 1
	}
	return wer
}

// tokenize lowercases and strips punctuation, dropping tokens that were pure
// punctuation.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		token := strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) {
				return -1
			}
			return r
		}, f)
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}

// editDistance is the Levenshtein distance over word tokens, two-row variant.
func editDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

package dedup

import (
	"strings"
)

// SimilarityThreshold is the duplicate decision boundary for title similarity.
// The boundary is inclusive: a score of exactly 0.85 classifies as duplicate.
const SimilarityThreshold = 0.85

// Similarity computes the Sørensen-Dice coefficient over character-bigram
// multisets of the two strings, whitespace removed. Returns a score in [0,1]:
// 1.0 for identical strings, 0.0 for no shared structure. The metric is
// symmetric and reflexive, and for headline-length strings a single-word edit
// scores far above a full rewrite. Inputs are compared as-is; both should be
// normalized consistently by the caller.
func Similarity(a, b string) float64 {
	a = strings.Join(strings.Fields(a), "")
	b = strings.Join(strings.Fields(b), "")

	if a == b {
		return 1.0
	}

	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0.0
	}

	bigrams := make(map[string]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[string(ra[i:i+2])]++
	}

	matches := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := string(rb[i : i+2])
		if bigrams[bg] > 0 {
			bigrams[bg]--
			matches++
		}
	}

	return 2.0 * float64(matches) / float64(len(ra)+len(rb)-2)
}

package textutil

import (
	"math"
	"regexp"
	"strings"
)

var tokenSplitPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize splits text into lowercase tokens of at least three characters.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len([]rune(token)) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

type termVector struct {
	counts map[string]float64
	norm   float64
}

func newTermVector(text string) termVector {
	counts := make(map[string]float64)
	for _, token := range Tokenize(text) {
		counts[token]++
	}
	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	return termVector{counts: counts, norm: math.Sqrt(norm)}
}

// Similarity returns the cosine similarity of the term-frequency vectors of a
// and b, in [0, 1]. Texts without usable tokens score 0.
func Similarity(a, b string) float64 {
	va, vb := newTermVector(a), newTermVector(b)
	if va.norm == 0 || vb.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range va.counts {
		dot += count * vb.counts[token]
	}
	return dot / (va.norm * vb.norm)
}

// Package tfidf fits a TF-IDF model over a batch of mention strings and returns one
// L2-normalized vector per string.
//
// Tokens are lowercased runs of two or more letters, digits or underscores. IDF is smoothed:
// idf(t) = ln((1+n)/(1+df(t))) + 1. Vocabulary columns are sorted by term.
package tfidf

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/kailas-cloud/cdcr/internal/domain"
)

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer is stateless; every call fits a fresh vocabulary.
type Vectorizer struct{}

// New creates a TF-IDF vectorizer.
func New() *Vectorizer { return &Vectorizer{} }

// Tokenize splits text the way the vectorizer does.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// Vectorize fits on texts and transforms them. A text with no tokens gets a zero vector.
func (v *Vectorizer) Vectorize(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	counts := make([]map[string]int, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tf := make(map[string]int)
		for _, tok := range Tokenize(text) {
			tf[tok]++
		}
		for term := range tf {
			df[term]++
		}
		counts[i] = tf
	}

	if len(df) == 0 {
		return nil, domain.NewValidation("mentions", "empty vocabulary: no mention contains a token of two or more word characters")
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)

	column := make(map[string]int, len(vocab))
	idf := make([]float64, len(vocab))
	n := float64(len(texts))
	for j, term := range vocab {
		column[term] = j
		idf[j] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	out := make([][]float32, len(texts))
	for i, tf := range counts {
		row := make([]float64, len(vocab))
		var sq float64
		for term, c := range tf {
			j := column[term]
			row[j] = float64(c) * idf[j]
			sq += row[j] * row[j]
		}
		vec := make([]float32, len(vocab))
		if sq > 0 {
			norm := math.Sqrt(sq)
			for j, x := range row {
				vec[j] = float32(x / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}

// Vocabulary returns the sorted vocabulary that Vectorize would fit on texts.
func Vocabulary(texts []string) []string {
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			seen[tok] = true
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

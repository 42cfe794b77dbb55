package agreement

import (
	"context"
	"fmt"
	"math"
)

// semanticScores computes embedding-based similarity between model and human
// freetext, one embeddings request per row. Tokens of both strings are
// embedded in a single batch; precision matches each candidate token to its
// closest reference token by cosine similarity, recall the other way around,
// following the greedy-matching scheme of embedding-based F1 scoring.
func (e *Engine) semanticScores(ctx context.Context, pairs []Pair) (*SemanticScores, error) {
	scores := &SemanticScores{PerRowF1: make([]float64, 0, len(pairs))}

	for _, p := range pairs {
		s, err := e.scorePair(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", p.RowID, err)
		}
		scores.Precision += s.Precision
		scores.Recall += s.Recall
		scores.F1 += s.F1
		scores.PerRowF1 = append(scores.PerRowF1, s.F1)
	}

	n := float64(len(pairs))
	scores.Precision /= n
	scores.Recall /= n
	scores.F1 /= n
	return scores, nil
}

func (e *Engine) scorePair(ctx context.Context, p Pair) (ScoreTriple, error) {
	candTokens := tokenize(p.Model)
	refTokens := tokenize(p.Human)
	if len(candTokens) == 0 || len(refTokens) == 0 {
		return ScoreTriple{}, nil
	}

	batch := append(append([]string{}, candTokens...), refTokens...)
	vectors, err := e.embedder.Embed(ctx, batch)
	if err != nil {
		return ScoreTriple{}, err
	}
	candVecs := vectors[:len(candTokens)]
	refVecs := vectors[len(candTokens):]

	precision := meanBestMatch(candVecs, refVecs)
	recall := meanBestMatch(refVecs, candVecs)
	return triple(precision, recall), nil
}

// meanBestMatch averages, over each vector of from, its best cosine
// similarity against the vectors of to.
func meanBestMatch(from, to [][]float64) float64 {
	var sum float64
	for _, f := range from {
		best := math.Inf(-1)
		for _, t := range to {
			if sim := cosine(f, t); sim > best {
				best = sim
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

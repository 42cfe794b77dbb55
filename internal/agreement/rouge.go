package agreement

import (
	"strings"
	"unicode"
)

// rougeReport computes ROUGE-1, ROUGE-2 and ROUGE-L precision/recall/F1,
// averaged over all comparable rows. The human annotation is the reference,
// the model annotation the candidate. Tokens are compared verbatim without
// stemming, so inflected variants ("clean"/"cleaned") do not match and scores
// run slightly lower than stemmer-based ROUGE implementations.
func rougeReport(pairs []Pair) map[string]ScoreTriple {
	sums := map[string]*ScoreTriple{
		"rouge1": {},
		"rouge2": {},
		"rougeL": {},
	}

	for _, p := range pairs {
		ref := tokenize(p.Human)
		cand := tokenize(p.Model)

		accumulate(sums["rouge1"], rougeN(ref, cand, 1))
		accumulate(sums["rouge2"], rougeN(ref, cand, 2))
		accumulate(sums["rougeL"], rougeL(ref, cand))
	}

	n := float64(len(pairs))
	report := make(map[string]ScoreTriple, len(sums))
	for name, sum := range sums {
		report[name] = ScoreTriple{
			Precision: sum.Precision / n,
			Recall:    sum.Recall / n,
			F1:        sum.F1 / n,
		}
	}
	return report
}

func accumulate(sum *ScoreTriple, s ScoreTriple) {
	sum.Precision += s.Precision
	sum.Recall += s.Recall
	sum.F1 += s.F1
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// rougeN scores clipped n-gram overlap between reference and candidate.
func rougeN(ref, cand []string, n int) ScoreTriple {
	refGrams := ngramCounts(ref, n)
	candGrams := ngramCounts(cand, n)
	if len(refGrams) == 0 || len(candGrams) == 0 {
		return ScoreTriple{}
	}

	overlap := 0
	refTotal := 0
	candTotal := 0
	for gram, count := range refGrams {
		refTotal += count
		if c, ok := candGrams[gram]; ok {
			overlap += min(count, c)
		}
	}
	for _, count := range candGrams {
		candTotal += count
	}

	return triple(float64(overlap)/float64(candTotal), float64(overlap)/float64(refTotal))
}

// rougeL scores the longest common subsequence between reference and
// candidate token sequences.
func rougeL(ref, cand []string) ScoreTriple {
	if len(ref) == 0 || len(cand) == 0 {
		return ScoreTriple{}
	}
	lcs := lcsLength(ref, cand)
	return triple(float64(lcs)/float64(len(cand)), float64(lcs)/float64(len(ref)))
}

func triple(precision, recall float64) ScoreTriple {
	s := ScoreTriple{Precision: precision, Recall: recall}
	if precision+recall > 0 {
		s.F1 = 2 * precision * recall / (precision + recall)
	}
	return s
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Package similarity scores how much two pieces of OCR text overlap.
//
// The score is the Jaccard index over the sets of unique lower-cased
// whitespace-separated tokens. It ignores order and multiplicity, which is
// what a screen that barely changed between two captures looks like after OCR.
package similarity

import "strings"

// Jaccard returns |A∩B| / |A∪B| for the token sets of a and b.
// The result is in [0,1]. Two texts without any tokens score 0.
func Jaccard(a, b string) float64 {
	setA := tokens(a)
	setB := tokens(b)

	union := len(setA)
	inter := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// MaxSimilarity returns the highest Jaccard score between candidate and any
// entry of accepted, or 0 when accepted is empty.
func MaxSimilarity(candidate string, accepted []string) float64 {
	best := 0.0
	for _, a := range accepted {
		if s := Jaccard(candidate, a); s > best {
			best = s
		}
	}
	return best
}

// IsDuplicate reports whether candidate scores strictly above threshold
// against at least one accepted text.
func IsDuplicate(candidate string, accepted []string, threshold float64) bool {
	for _, a := range accepted {
		if Jaccard(candidate, a) > threshold {
			return true
		}
	}
	return false
}

func tokens(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

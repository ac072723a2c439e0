// Package similarity provides the vector and set metrics used when relating
// files and prompts to each other.
//
// All metrics are symmetric and return 0 (never NaN) on empty or zero
// input: an empty vector carries no signal, it is not an error.
package similarity

import "math"

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// Mismatched lengths, empty vectors, and zero vectors yield 0.
func Cosine(a, b []float64) float64 {
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
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to handle floating point drift.
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// Euclidean returns the Euclidean distance between a and b.
// Mismatched lengths and empty vectors yield 0.
func Euclidean(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Manhattan returns the Manhattan distance between a and b.
// Mismatched lengths and empty vectors yield 0.
func Manhattan(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// Jaccard returns the Jaccard index of two string sets.
// Two empty sets yield 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	inter := 0
	union := len(seen)
	counted := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, dup := counted[s]; dup {
			continue
		}
		counted[s] = struct{}{}
		if _, ok := seen[s]; ok {
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

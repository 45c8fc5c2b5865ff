package domain

import "math"

// CosineSimilarity returns 0 for empty or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MeanVector averages unit-normalized vectors of equal length. Vectors with a
// different dimension than the first one are skipped.
func MeanVector(vectors [][]float32) []float32 {
	var out []float64
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if out == nil {
			out = make([]float64, len(v))
		}
		if len(v) != len(out) {
			continue
		}
		norm := 0.0
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for i, x := range v {
			out[i] += float64(x) / norm
		}
		count++
	}
	if count == 0 {
		return nil
	}
	mean := make([]float32, len(out))
	for i, x := range out {
		mean[i] = float32(x / float64(count))
	}
	return mean
}

package memory

import "math"

func vectorNorm(vec []float32) float64 {
	if len(vec) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths compare over the shorter prefix; empty vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	na := vectorNorm(a)
	nb := vectorNorm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

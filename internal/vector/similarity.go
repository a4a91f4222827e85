package vector

import "math"

// InnerProduct returns the dot product of a and b.
func InnerProduct(a, b []float32) float64 {
	n := len(a)
	if n > len(b) {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Cosine returns the cosine similarity of a and b. For unit vectors it equals
// InnerProduct; the explicit norms make the metric correct for vectors that
// arrive unnormalized.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if n > len(b) {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

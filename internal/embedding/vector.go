package embedding

import "math"

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero-length or the dimensions differ.
func Cosine(a, b Vector) float64 {
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

// Mean returns the element-wise mean of vs, skipping vectors whose
// dimension differs from the first. Nil for no input.
func Mean(vs []Vector) Vector {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vs {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	out := make(Vector, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}

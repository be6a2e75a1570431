package embedding

import (
	"math"

	"knowledgehub/internal/domain"
)

// Embedder converts free text into fixed-length vectors.
type Embedder = domain.Embedder

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// CheckDimension returns a *domain.DimensionError for the first vector whose
// length differs from want.
func CheckDimension(want int, vecs [][]float32) error {
	for _, v := range vecs {
		if len(v) != want {
			return &domain.DimensionError{Expected: want, Got: len(v)}
		}
	}
	return nil
}

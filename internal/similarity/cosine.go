package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrZeroVector is returned when a similarity involves a vector without magnitude.
var ErrZeroVector = errors.New("zero-magnitude vector")

// NormalizeVector scales vec in place to unit length. Zero vectors are left untouched.
func NormalizeVector(vec []float64) {
	magnitude := Magnitude(vec)
	if magnitude == 0 || math.IsNaN(magnitude) {
		return
	}
	for i := range vec {
		vec[i] /= magnitude
	}
}

// Normalized returns a unit-length copy of vec.
func Normalized(vec []float64) []float64 {
	out := make([]float64, len(vec))
	copy(out, vec)
	NormalizeVector(out)
	return out
}

// Magnitude returns the Euclidean length of vec.
func Magnitude(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have same length (%d != %d)", len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}

	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// clamp rounding drift
	return math.Max(-1, math.Min(1, cos)), nil
}

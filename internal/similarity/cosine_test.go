package similarity

import (
	"errors"
	"math"
	"testing"
)

const eps = 1e-9

func TestNormalizeVector(t *testing.T) {
	v := []float64{3, 4}
	NormalizeVector(v)
	if math.Abs(v[0]-0.6) > eps || math.Abs(v[1]-0.8) > eps {
		t.Fatalf("unexpected normalized vector %v", v)
	}
	if math.Abs(Magnitude(v)-1) > eps {
		t.Fatalf("expected unit magnitude, got %v", Magnitude(v))
	}

	zero := []float64{0, 0}
	NormalizeVector(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector must stay zero, got %v", zero)
	}
}

func TestNormalizedDoesNotMutate(t *testing.T) {
	in := []float64{0, 2}
	out := Normalized(in)
	if in[1] != 2 || out[1] != 1 {
		t.Fatalf("in=%v out=%v", in, out)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 1}, []float64{-1, -1}, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			if err != nil {
				t.Fatalf("CosineSimilarity: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-6 {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestCosineSimilarityErrors(t *testing.T) {
	if _, err := CosineSimilarity([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := CosineSimilarity([]float64{0, 0}, []float64{1, 2}); !errors.Is(err, ErrZeroVector) {
		t.Fatalf("expected ErrZeroVector, got %v", err)
	}
}

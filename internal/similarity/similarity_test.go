package similarity

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCosineIdenticalVectors(t *testing.T) {
	v := []float64{1, 2, 3}
	if got := Cosine(v, v); !almostEqual(got, 1) {
		t.Errorf("Cosine(v, v) = %v, want 1", got)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); !almostEqual(got, 0) {
		t.Errorf("orthogonal = %v, want 0", got)
	}
}

func TestCosineOpposite(t *testing.T) {
	if got := Cosine([]float64{1, 1}, []float64{-1, -1}); !almostEqual(got, -1) {
		t.Errorf("opposite = %v, want -1", got)
	}
}

func TestCosineDegenerateInputs(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
	}{
		{"both empty", nil, nil},
		{"length mismatch", []float64{1}, []float64{1, 2}},
		{"zero vector", []float64{0, 0}, []float64{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cosine(tc.a, tc.b)
			if got != 0 {
				t.Errorf("Cosine = %v, want 0", got)
			}
			if math.IsNaN(got) {
				t.Error("Cosine returned NaN")
			}
		})
	}
}

func TestCosineSymmetric(t *testing.T) {
	a := []float64{0.3, 0.7, 0.1}
	b := []float64{0.9, 0.2, 0.5}
	if !almostEqual(Cosine(a, b), Cosine(b, a)) {
		t.Error("Cosine is not symmetric")
	}
}

func TestEuclidean(t *testing.T) {
	if got := Euclidean([]float64{0, 0}, []float64{3, 4}); !almostEqual(got, 5) {
		t.Errorf("Euclidean = %v, want 5", got)
	}
	if got := Euclidean(nil, nil); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
}

func TestManhattan(t *testing.T) {
	if got := Manhattan([]float64{1, 2}, []float64{4, -2}); !almostEqual(got, 7) {
		t.Errorf("Manhattan = %v, want 7", got)
	}
	if got := Manhattan([]float64{1}, []float64{1, 2}); got != 0 {
		t.Errorf("mismatched = %v, want 0", got)
	}
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 1},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"half overlap", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"empty side", nil, []string{"a"}, 0},
		{"both empty", nil, nil, 0},
		{"duplicates ignored", []string{"a", "a", "b"}, []string{"a", "b", "b"}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Jaccard(tc.a, tc.b); !almostEqual(got, tc.want) {
				t.Errorf("Jaccard = %v, want %v", got, tc.want)
			}
		})
	}
}

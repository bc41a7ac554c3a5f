package vector

import (
	"math"
	"testing"
)

func TestCosine_Identity(t *testing.T) {
	v := []float32{0.3, -0.5, 0.8}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("Cosine(v, v) = %f, want 1", got)
	}
}

func TestCosine_Opposite(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	if got := Cosine(a, b); math.Abs(got+1.0) > 1e-6 {
		t.Errorf("Cosine(v, -v) = %f, want -1", got)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	a := []float32{1, 2, 3}
	zero := []float32{0, 0, 0}
	if got := Cosine(a, zero); got != 0 {
		t.Errorf("Cosine(v, 0) = %f, want 0 (not NaN)", got)
	}
	if got := Cosine(zero, zero); got != 0 {
		t.Errorf("Cosine(0, 0) = %f, want 0", got)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := Cosine(a, b); math.Abs(got) > 1e-6 {
		t.Errorf("Cosine of orthogonal vectors = %f, want 0", got)
	}
}

func TestCosine_LengthMismatch(t *testing.T) {
	if got := Cosine([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", got)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0, float32(math.Pi)}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %f != %f", i, in[i], out[i])
		}
	}
}

func TestDecodeVector_BadLength(t *testing.T) {
	if _, err := decodeVector(make([]byte, 7)); err == nil {
		t.Error("expected error for blob not multiple of 4")
	}
}

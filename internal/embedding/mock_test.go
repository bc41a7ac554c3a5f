package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	a, _ := e.Embed(context.Background(), "the quick brown fox")
	b, _ := e.Embed(context.Background(), "the quick brown fox")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(64)
	v, _ := e.Embed(context.Background(), "some words here")
	if n := dot(v, v); math.Abs(n-1.0) > 1e-5 {
		t.Errorf("norm squared = %f, want 1", n)
	}
}

func TestMockEmbedder_OverlapSimilarity(t *testing.T) {
	e := NewMockEmbedder(128)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "machine learning models")
	related, _ := e.Embed(ctx, "machine learning models are trained on data")
	unrelated, _ := e.Embed(ctx, "bananas grow in warm climates")

	if dot(query, related) <= dot(query, unrelated) {
		t.Errorf("shared vocabulary should score higher: related=%f unrelated=%f",
			dot(query, related), dot(query, unrelated))
	}
}

func TestMockEmbedder_Registry(t *testing.T) {
	r := NewRegistry([]ProviderConfig{
		{ID: "mock-1", Family: "mock", Dimensions: 32},
	}, 0)
	defer r.Close()

	e, err := r.EmbedderFor("mock-1")
	if err != nil {
		t.Fatalf("EmbedderFor: %v", err)
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions = %d, want 32", e.Dimensions())
	}
	again, _ := r.EmbedderFor("mock-1")
	if again != e {
		t.Error("registry should reuse instances")
	}
	if _, err := r.EmbedderFor("nope"); err == nil {
		t.Error("expected error for unknown ref")
	}
}

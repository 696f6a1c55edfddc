package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type countingBackend struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingBackend) Embed(context.Context, string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("model offline")
	}
	v := make([]float32, 384)
	v[0] = 1
	return v, nil
}

func (c *countingBackend) Dimension() int { return 384 }

func TestAdapterLoadsLazilyOnce(t *testing.T) {
	loads := 0
	backend := &countingBackend{}
	a := NewAdapter(func(context.Context) (Backend, error) {
		loads++
		return backend, nil
	}, nil)
	if loads != 0 {
		t.Fatal("backend loaded before first call")
	}
	for i := 0; i < 3; i++ {
		vec, err := a.Embed(context.Background(), "qi flows")
		if err != nil {
			t.Fatal(err)
		}
		if len(vec) != 384 {
			t.Fatalf("expected backend dimension 384, got %d", len(vec))
		}
	}
	if loads != 1 {
		t.Errorf("expected one load, got %d", loads)
	}
}

func TestAdapterFallsBackWhenLoadFails(t *testing.T) {
	a := NewAdapter(func(context.Context) (Backend, error) {
		return nil, errors.New("no model")
	}, nil)
	vec, err := a.Embed(context.Background(), "Yi Fan attacked me with fire")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != KeywordDimension {
		t.Errorf("expected keyword dimension %d, got %d", KeywordDimension, len(vec))
	}
	if !a.Degraded() {
		t.Error("expected adapter to report degraded mode")
	}
}

func TestAdapterFallsBackPerCall(t *testing.T) {
	backend := &countingBackend{fail: true}
	a := NewAdapter(func(context.Context) (Backend, error) { return backend, nil }, nil)
	vec, err := a.Embed(context.Background(), "shadow")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != KeywordDimension {
		t.Errorf("expected fallback vector, got width %d", len(vec))
	}
}

func TestKeywordProjectionIsDeterministicAndSimilar(t *testing.T) {
	k := NewKeywordProjector(KeywordDimension)
	a, _ := k.Embed(context.Background(), "Yi Fan attacked me in the Misty Forest")
	b, _ := k.Embed(context.Background(), "Yi Fan attacked me in the Misty Forest")
	c, _ := k.Embed(context.Background(), "I bought rice at the market")
	if Cosine(a, b) < 0.999 {
		t.Errorf("identical text should have similarity 1, got %f", Cosine(a, b))
	}
	if Cosine(a, c) >= Cosine(a, b) {
		t.Error("unrelated text should be less similar")
	}
}

func TestFitPadsAndTruncates(t *testing.T) {
	short := Fit([]float32{1, 2}, StorageWidth)
	if len(short) != StorageWidth || short[1] != 2 || short[127] != 0 {
		t.Errorf("unexpected padded vector: len=%d", len(short))
	}
	long := Fit(make([]float32, 768), StorageWidth)
	if len(long) != StorageWidth {
		t.Errorf("expected truncation to %d, got %d", StorageWidth, len(long))
	}
}

func TestCosineZeroVector(t *testing.T) {
	if Cosine(make([]float32, 4), []float32{1, 0, 0, 0}) != 0 {
		t.Error("zero vector must have similarity 0")
	}
}

// Package embedding maps text to fixed-length vectors for memory search.
//
// The Adapter loads its backend lazily on the first call. When the backend
// cannot be created, or fails on a call, a deterministic keyword projection
// is used instead. Its vectors are shorter than the model's; storage code
// must run every vector through Fit before persisting or comparing.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// StorageWidth is the vector width of the memory and log columns.
const StorageWidth = 128

// DefaultModel is the Gemini embedding model used when a key is configured.
const DefaultModel = "text-embedding-004"

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend is a concrete embedding model.
type Backend interface {
	Embedder
	Dimension() int
}

// Loader builds the backend on first use.
type Loader func(ctx context.Context) (Backend, error)

// Adapter is a lazily initialized Embedder with a keyword fallback.
type Adapter struct {
	load     Loader
	fallback *KeywordProjector
	logger   *slog.Logger

	once    sync.Once
	backend Backend
	loadErr error
}

// NewAdapter returns an adapter that calls load on the first Embed. A nil load
// makes the adapter use the keyword projection only.
func NewAdapter(load Loader, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{load: load, fallback: NewKeywordProjector(KeywordDimension), logger: logger}
}

// Embed returns the backend's vector for text, or the keyword projection when
// the backend is unavailable. It only fails when ctx is done.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.once.Do(func() {
		if a.load == nil {
			return
		}
		a.backend, a.loadErr = a.load(ctx)
		if a.loadErr != nil {
			a.logger.Warn("embedding backend unavailable, using keyword projection", "err", a.loadErr)
		}
	})
	if a.backend != nil {
		vec, err := a.backend.Embed(ctx, text)
		if err == nil && len(vec) > 0 {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("embedding call failed, using keyword projection", "err", err)
	}
	return a.fallback.Embed(ctx, text)
}

// Degraded reports whether the adapter is running without its backend.
func (a *Adapter) Degraded() bool {
	return a.backend == nil
}

// Gemini embeds text with a Gemini embedding model.
type Gemini struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	dim    int
}

// GeminiLoader returns a Loader that connects to Gemini with apiKey.
func GeminiLoader(apiKey, model string) Loader {
	return func(ctx context.Context) (Backend, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("no api key for embedding model")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, err
		}
		if model == "" {
			model = DefaultModel
		}
		return &Gemini{client: client, model: client.EmbeddingModel(model), dim: 768}, nil
	}
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned from Gemini")
	}
	return res.Embedding.Values, nil
}

func (g *Gemini) Dimension() int { return g.dim }

func (g *Gemini) Close() error { return g.client.Close() }

// Fit pads with zeros or truncates vec to width.
func Fit(vec []float32, width int) []float32 {
	out := make([]float32, width)
	copy(out, vec)
	return out
}

// Cosine returns the cosine similarity of a and b over their common prefix.
// A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
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

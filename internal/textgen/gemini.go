package textgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.5-flash"

type profile struct {
	temperature float32
	maxTokens   int32
}

var profiles = map[string]profile{
	TaskPlanner:   {temperature: 0.2, maxTokens: 512},
	TaskStory:     {temperature: 0.9, maxTokens: 1024},
	TaskCombat:    {temperature: 0.8, maxTokens: 1024},
	TaskGenerator: {temperature: 0.8, maxTokens: 1024},
	TaskSummary:   {temperature: 0.3, maxTokens: 512},
}

// Options configures a Gemini client.
type Options struct {
	Model     string
	Timeout   time.Duration
	PerMinute int
	Logger    *slog.Logger
}

// Gemini is a Client backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	models map[string]*genai.GenerativeModel
}

func NewGemini(ctx context.Context, apiKey string, opts Options) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PerMinute <= 0 {
		opts.PerMinute = 60
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gemini{
		client:  client,
		name:    opts.Model,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.PerMinute)), 4),
		logger:  opts.Logger,
		models:  make(map[string]*genai.GenerativeModel),
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// model returns the configured model for a task. Models are cached since the
// generation config lives on the model value.
func (g *Gemini) model(task string, asJSON bool) *genai.GenerativeModel {
	key := task
	if asJSON {
		key += "+json"
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.models[key]; ok {
		return m
	}
	p, ok := profiles[task]
	if !ok {
		p = profile{temperature: 0.7, maxTokens: 1024}
	}
	m := g.client.GenerativeModel(g.name)
	m.SetTemperature(p.temperature)
	m.SetMaxOutputTokens(p.maxTokens)
	if asJSON {
		m.ResponseMIMEType = "application/json"
	}
	g.models[key] = m
	return m
}

func (g *Gemini) GenerateText(ctx context.Context, prompt, task string) (string, error) {
	return g.generate(ctx, prompt, task, false)
}

func (g *Gemini) GenerateJSON(ctx context.Context, prompt, task string, out any) error {
	text, err := g.generate(ctx, prompt, task, true)
	if err != nil {
		return err
	}
	return DecodeJSON(task, text, out)
}

func (g *Gemini) generate(ctx context.Context, prompt, task string, asJSON bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", g.classify(task, err)
	}
	start := time.Now()
	resp, err := g.model(task, asJSON).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", g.classify(task, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", newError(task, ErrEmptyResponse, fmt.Errorf("no content returned from Gemini"))
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", newError(task, ErrEmptyResponse, fmt.Errorf("unexpected response type from Gemini"))
	}
	g.logger.Debug("text generated", "task", task, "chars", len(out), "elapsed", time.Since(start))
	return out, nil
}

func (g *Gemini) classify(task string, err error) error {
	g.logger.Warn("text generation failed", "task", task, "err", err)
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(task, ErrTimeout, err)
	}
	return newError(task, ErrUnavailable, err)
}

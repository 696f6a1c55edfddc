// Package engine assembles the game from configuration: the store, the
// catalogs, the model clients, the world oracle and simulator, and the turn
// pipeline on top of them. Both front ends (the HTTP server and the
// terminal client) run an Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/daicherr/orbis/internal/archive"
	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/director"
	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/simulation"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/textgen"
	"github.com/daicherr/orbis/internal/worldstate"
)

// worldStart is the in-game time of a brand new world.
var worldStart = clock.Epoch.Add(8 * time.Hour)

type Engine struct {
	Store     *store.Store
	Catalog   *catalog.Catalog
	Memory    *memory.Manager
	Sessions  *session.Manager
	Oracle    *worldstate.Oracle
	Clock     *clock.Clock
	Simulator *simulation.Simulator
	Pipeline  *pipeline.Pipeline
	Tuning    config.Tuning

	text    textgen.Client
	archive *archive.Writer
	logger  *slog.Logger
}

type Option func(*options)

type options struct {
	text     textgen.Client
	embedder embedding.Embedder
}

// WithText replaces the Gemini text client, e.g. with textgen.Offline().
func WithText(c textgen.Client) Option { return func(o *options) { o.text = c } }

// WithEmbedder replaces the Gemini embedding adapter.
func WithEmbedder(e embedding.Embedder) Option { return func(o *options) { o.embedder = e } }

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (e *Engine, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	cat, err := catalog.Load(cfg.RulesetDir, cfg.LoreDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	e = &Engine{Store: st, Catalog: cat, Tuning: tuning, logger: logger}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()
	if err := st.Seed(ctx, simulation.DefaultWorld(cat.Economy())); err != nil {
		return nil, fmt.Errorf("seed world: %w", err)
	}

	e.text = o.text
	if e.text == nil {
		g, err := textgen.NewGemini(ctx, cfg.GeminiAPIKey, textgen.Options{
			Timeout:   tuning.TextGenTimeout,
			PerMinute: tuning.TextGenPerMinute,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("text model: %w", err)
		}
		e.text = g
	}
	embedder := o.embedder
	if embedder == nil {
		embedder = embedding.NewAdapter(embedding.GeminiLoader(cfg.GeminiAPIKey, ""), logger)
	}

	e.Memory = memory.New(st, embedder, memory.Options{
		PatternEvery:     tuning.PatternEvery,
		ConsolidateAbove: tuning.ConsolidateAbove,
		TopK:             tuning.RecallTopK,
	}, logger)
	e.Sessions = session.NewManager(st, tuning.SessionRing, tuning.ThreadIdlePause, logger)

	e.Oracle = worldstate.New(worldStart, logger)
	if err := e.Oracle.Load(ctx, st, simulation.Scarcity(cat.Economy())); err != nil {
		return nil, fmt.Errorf("load world state: %w", err)
	}
	e.Clock, err = restoreClock(ctx, st, e.Oracle.Snapshot())
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		if seed, err = dice.NewSeed(); err != nil {
			return nil, err
		}
	}
	e.Simulator = simulation.New(st, e.Oracle, cat.Economy(), seed, tuning.WorldTickEvery, logger)

	gen, err := generators.New(e.text, cat, logger)
	if err != nil {
		return nil, fmt.Errorf("content generators: %w", err)
	}

	deps := pipeline.Deps{
		Store:      st,
		Catalog:    cat,
		Text:       e.text,
		Generators: gen,
		Director:   director.New(gen, cat, logger),
		Memory:     e.Memory,
		Sessions:   e.Sessions,
		Oracle:     e.Oracle,
		Simulator:  e.Simulator,
		Clock:      e.Clock,
		Tuning:     tuning,
		Seed:       seed,
		Logger:     logger,
	}
	if cfg.ArchiveDir != "" {
		e.archive = archive.New(cfg.ArchiveDir)
		deps.Archive = e.archive
	}
	e.Pipeline, err = pipeline.New(deps)
	if err != nil {
		return nil, err
	}

	logger.Info("engine ready",
		"world_time", e.Clock.Formatted(),
		"seed", seed,
		"archive", cfg.ArchiveDir != "")
	return e, nil
}

// restoreClock resumes the clock from the flushed snapshot. The turn never
// falls behind the last simulated tick, which may be newer than the last flush.
func restoreClock(ctx context.Context, st *store.Store, snap worldstate.State) (*clock.Clock, error) {
	cs := snap.Clock
	if cs.Now.IsZero() {
		cs = clock.Snapshot{Now: snap.Now}
	}
	last, err := st.LastTickTurn(ctx)
	if err != nil {
		return nil, fmt.Errorf("last world tick: %w", err)
	}
	cs.Turn = max(cs.Turn, last)
	return clock.Restore(cs), nil
}

// Run keeps the world snapshot flushed until ctx is done, then flushes one
// last time.
func (e *Engine) Run(ctx context.Context) {
	e.Oracle.Run(ctx, e.Store, e.Tuning.FlushInterval)
}

func (e *Engine) Close() error {
	var errs []error
	if e.archive != nil {
		errs = append(errs, e.archive.Close())
	}
	if c, ok := e.text.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	return errors.Join(errs...)
}

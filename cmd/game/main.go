package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/engine"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/tui"
)

// game adds player lookup to the pipeline for the terminal client.
type game struct {
	*pipeline.Pipeline
	st *store.Store
}

func (g game) FindPlayer(ctx context.Context, name string) (*models.Player, error) {
	return g.st.GetPlayerByName(ctx, name)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// The screen belongs to the TUI, so logs go to a file next to the saves.
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.SaveDir, "orbis.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	flushCtx, stopFlush := context.WithCancel(ctx)
	flushed := make(chan struct{})
	go func() {
		eng.Run(flushCtx)
		close(flushed)
	}()
	defer func() {
		stopFlush()
		<-flushed
	}()

	return tui.Run(game{Pipeline: eng.Pipeline, st: eng.Store}, cfg.SaveDir)
}

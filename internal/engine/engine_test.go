package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/textgen"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DatabaseURL: "file:" + filepath.Join(dir, "orbis.db"),
		RulesetDir:  t.TempDir(),
		LoreDir:     t.TempDir(),
		ArchiveDir:  filepath.Join(dir, "archive"),
		Seed:        11,
	}
}

func TestEngineAssemblesAndRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	opts := []Option{WithText(textgen.Offline()), WithEmbedder(embedding.NewKeywordProjector(embedding.KeywordDimension))}

	e, err := New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	locs, err := e.Store.ListLocations(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, locs)
	require.True(t, worldStart.Equal(e.Clock.Now()))

	c, err := e.Pipeline.CreateFull(ctx, generators.Character{
		Name:    "Lin Mo",
		Origin:  locs[0].Name,
		Answers: []string{"Acordo numa estrada de terra.", "", ""},
	})
	require.NoError(t, err)
	_, err = e.Pipeline.Turn(ctx, c.Player.ID, "olhar ao redor")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	e.Run(runCtx)
	require.NoError(t, e.Close())

	again, err := New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	defer again.Close()
	p, err := again.Store.GetPlayerByName(ctx, "Lin Mo")
	require.NoError(t, err)
	require.Equal(t, c.Player.ID, p.ID)
	require.True(t, again.Clock.Now().After(worldStart))
}

// playUntil plays turns until the world clock reaches turn.
func playUntil(t *testing.T, e *Engine, playerID int64, turn int) {
	t.Helper()
	for e.Clock.TurnIndex() < turn {
		_, err := e.Pipeline.Turn(context.Background(), playerID, "olhar ao redor")
		require.NoError(t, err)
	}
}

func TestWorldKeepsTickingAfterRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	opts := []Option{WithText(textgen.Offline()), WithEmbedder(embedding.NewKeywordProjector(embedding.KeywordDimension))}

	e, err := New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	c, err := e.Pipeline.CreateFull(ctx, generators.Character{Name: "Lin Mo", Origin: "Vila Crisântemos"})
	require.NoError(t, err)
	playUntil(t, e, c.Player.ID, 12)
	_, err = e.Store.TickSummary(ctx, 10)
	require.NoError(t, err)
	turn := e.Clock.TurnIndex()
	require.NoError(t, e.Close())

	// Closed without a final flush: the tick table still carries the turn.
	again, err := New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	defer again.Close()
	require.GreaterOrEqual(t, again.Clock.TurnIndex(), 10)
	require.LessOrEqual(t, again.Clock.TurnIndex(), turn)

	playUntil(t, again, c.Player.ID, 21)
	_, err = again.Store.TickSummary(ctx, 20)
	require.NoError(t, err)
	last, err := again.Store.LastTickTurn(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, last)
}

func TestRestartResumesFlushedClock(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	opts := []Option{WithText(textgen.Offline()), WithEmbedder(embedding.NewKeywordProjector(embedding.KeywordDimension))}

	e, err := New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	c, err := e.Pipeline.CreateFull(ctx, generators.Character{Name: "Lin Mo", Origin: "Vila Crisântemos"})
	require.NoError(t, err)
	playUntil(t, e, c.Player.ID, 3)
	before := e.Clock.Snapshot()
	require.NoError(t, e.Oracle.Flush(ctx, e.Store))
	require.NoError(t, e.Close())

	again, err := New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	defer again.Close()
	after := again.Clock.Snapshot()
	require.Equal(t, before.Turn, after.Turn)
	require.True(t, before.Now.Equal(after.Now))
	require.True(t, before.LastDawn.Equal(after.LastDawn))
}

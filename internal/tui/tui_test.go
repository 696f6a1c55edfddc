package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/store"
)

type fakeGame struct {
	known   map[string]*models.Player
	created generators.Character
	inputs  []string
	turnErr error
}

func (f *fakeGame) FindPlayer(ctx context.Context, name string) (*models.Player, error) {
	if p, ok := f.known[name]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeGame) SessionZero(ctx context.Context, c generators.Character) []string {
	return []string{"Primeira?", "Segunda?"}
}

func (f *fakeGame) CreateFull(ctx context.Context, c generators.Character) (*pipeline.Creation, error) {
	f.created = c
	p := models.NewPlayer(c.Name, c.Constitution, c.Origin)
	p.ID = 1
	return &pipeline.Creation{Player: p, Feedback: pipeline.CreationFeedback{FirstScene: "A chuva cai."}}, nil
}

func (f *fakeGame) Turn(ctx context.Context, playerID int64, input string) (*pipeline.TurnResult, error) {
	f.inputs = append(f.inputs, input)
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	p := models.NewPlayer("Lin Mo", "Mortal", "Vila")
	p.ID = playerID
	p.Gold = 42
	return &pipeline.TurnResult{PlayerID: playerID, Player: p, Narration: "O vento sopra."}, nil
}

func (f *fakeGame) Export(ctx context.Context, playerID int64) (*models.Bundle, error) {
	return &models.Bundle{Player: models.Player{ID: playerID, Name: "Lin Mo"}}, nil
}

// enter types s and presses Enter, running any resulting command once.
func enter(t *testing.T, m tea.Model, s string) tea.Model {
	t.Helper()
	mm := m.(model)
	mm.textInput.SetValue(s)
	next, cmd := mm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = next.Update(msg)
		}
	}
	return next
}

func TestCreationFlow(t *testing.T) {
	game := &fakeGame{}
	dir := t.TempDir()
	var m tea.Model = NewModel(game, dir)

	m = enter(t, m, "Lin Mo")
	require.Equal(t, stateOrigin, m.(model).state)
	m = enter(t, m, "Vila Crisântemos")
	require.Equal(t, stateQuestions, m.(model).state)
	m = enter(t, m, "Acordo na estrada.")
	require.Equal(t, stateQuestions, m.(model).state)
	m = enter(t, m, "")
	require.Equal(t, statePlaying, m.(model).state)

	require.Equal(t, "Lin Mo", game.created.Name)
	require.Equal(t, "Vila Crisântemos", game.created.Origin)
	require.Equal(t, []string{"Acordo na estrada.", ""}, game.created.Answers)
	require.Contains(t, m.(model).gameLog, "A chuva cai.")

	m = enter(t, m, "/look")
	require.Equal(t, []string{lookInput}, game.inputs)
	require.Equal(t, 42, m.(model).player.Gold)
	require.Contains(t, m.(model).gameLog, "O vento sopra.")
	require.Contains(t, m.(model).renderState(), "Ouro: 42")

	m = enter(t, m, "/save")
	require.Contains(t, m.(model).gameLog, "Salvo em lin_mo.")
	names, err := models.ListBundles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"lin_mo"}, names)
}

func TestResumeAndDeath(t *testing.T) {
	hero := models.NewPlayer("Lin Mo", "Mortal", "Vila")
	hero.ID = 3
	game := &fakeGame{known: map[string]*models.Player{"Lin Mo": hero}}
	var m tea.Model = NewModel(game, t.TempDir())

	m = enter(t, m, "Lin Mo")
	require.Equal(t, statePlaying, m.(model).state)
	require.Contains(t, m.(model).gameLog, "retorna a Vila")

	game.turnErr = errors.New("tempo esgotado")
	m = enter(t, m, "meditar")
	require.Equal(t, statePlaying, m.(model).state)
	require.Contains(t, m.(model).gameLog, "tempo esgotado")

	game.turnErr = pipeline.ErrPlayerDead
	m = enter(t, m, "atacar")
	require.Equal(t, stateError, m.(model).state)
}

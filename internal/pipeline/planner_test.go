package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/textgen"
)

func emptyCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return cat
}

func TestHeuristic(t *testing.T) {
	cat := emptyCatalog(t)
	yiFan := models.NewNPC("Yi Fan", "human", "Vila")
	place := &models.Location{Name: "Vila", Connections: map[string]models.Connection{"Floresta Nublada": {}}}
	p := models.NewPlayer("TestHero", "Mortal", "Vila")

	tests := []struct {
		input  string
		intent Intent
		target string
		dest   string
	}{
		{"olhar ao redor", Observe, "", ""},
		{"atacar Yi Fan", Attack, "Yi Fan", ""},
		{"fugir daqui", Flee, "", ""},
		{"falar com yi fan sobre o poço", Talk, "Yi Fan", ""},
		{"caminhar para a floresta nublada", Move, "", "Floresta Nublada"},
		{"viajar até o Pico Gélido", Move, "", "Pico Gélido"},
		{"meditar sob a árvore", Meditate, "", ""},
		{"descansar", Rest, "", ""},
		{"esperar", Wait, "", ""},
		{"dançar", Unknown, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a := Heuristic(PlanRequest{Input: tt.input, Player: p, Present: []*models.NPC{yiFan}, Place: place}, cat)
			require.Equal(t, tt.intent, a.Intent)
			require.Equal(t, tt.target, a.TargetName)
			require.Equal(t, tt.dest, a.Destination)
			require.LessOrEqual(t, a.Confidence, heuristicConfidence)
		})
	}
}

func TestHeuristicUnknownIsInvalid(t *testing.T) {
	a := Heuristic(PlanRequest{Input: "xyz", Player: models.NewPlayer("A", "Mortal", "Vila")}, emptyCatalog(t))
	require.Equal(t, Unknown, a.Intent)
	require.False(t, a.Valid)
	require.NotEmpty(t, a.ValidationError)
}

func TestPlanUsesModelReply(t *testing.T) {
	fake := &textgen.Fake{Respond: func(task, prompt string) (string, error) {
		require.Equal(t, textgen.TaskPlanner, task)
		return "```json\n{\"intent\": \"speak\", \"target_name\": \"yi fan\", \"is_valid\": true, \"confidence\": 0.9}\n```", nil
	}}
	pl, err := NewPlanner(fake, emptyCatalog(t), nil)
	require.NoError(t, err)

	yiFan := models.NewNPC("Yi Fan", "human", "Vila")
	a := pl.Plan(context.Background(), PlanRequest{
		Input:   "cumprimentar",
		Player:  models.NewPlayer("TestHero", "Mortal", "Vila"),
		Present: []*models.NPC{yiFan},
	})
	require.Equal(t, Talk, a.Intent)
	require.Equal(t, "Yi Fan", a.TargetName)
	require.Equal(t, 0.9, a.Confidence)
	require.Equal(t, "cumprimentar", a.RawInput)
	require.Len(t, fake.Calls(), 1)
}

func TestPlanFallsBackOnBadReply(t *testing.T) {
	replies := map[string]func() (string, error){
		"off schema": func() (string, error) { return `{"intent": "fly", "is_valid": true, "confidence": 0.9}`, nil },
		"not json":   func() (string, error) { return "vou atacar", nil },
		"error":      func() (string, error) { return "", errors.New("quota") },
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			fake := &textgen.Fake{Respond: func(task, prompt string) (string, error) { return reply() }}
			pl, err := NewPlanner(fake, emptyCatalog(t), nil)
			require.NoError(t, err)
			a := pl.Plan(context.Background(), PlanRequest{Input: "olhar ao redor", Player: models.NewPlayer("A", "Mortal", "Vila")})
			require.Equal(t, Observe, a.Intent)
			require.Equal(t, "leitura por palavras-chave", a.Reasoning)
		})
	}
}

func TestBerserkTurnsWordsIntoBlows(t *testing.T) {
	p := models.NewPlayer("TestHero", "Mortal", "Vila")
	p.Effects = append(p.Effects, models.StatusEffect{Kind: combat.Berserk, TurnsLeft: 2})
	bandit := models.NewNPC("Bandido Cicatriz", "human", "Vila")
	bandit.EmotionalState = models.Hostile

	pl, err := NewPlanner(textgen.Offline(), emptyCatalog(t), nil)
	require.NoError(t, err)
	a := pl.Plan(context.Background(), PlanRequest{Input: "falar com o bandido", Player: p, Present: []*models.NPC{bandit}})
	require.Equal(t, Attack, a.Intent)
	require.Equal(t, "Bandido Cicatriz", a.TargetName)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/textgen"
)

var noon = time.Date(1000, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestHeader(t *testing.T) {
	require.Equal(t, "📍 04/03/1000 | Meio-dia | Vila Crisântemos", Header(noon, clock.Noon, "Vila Crisântemos"))
	require.Equal(t, "📍 04/03/1000 | Hora incerta | Vila", Header(noon, "", "Vila"))
}

func TestScrub(t *testing.T) {
	in := strings.Join([]string{
		"📍 04/03/1000 | Meio-dia | Vila",
		"O sol pesa sobre os telhados.",
		"Seu HP caiu para 40.",
		"Você ganhou 12 XP.",
		"Yi Fan observa em silêncio.",
		"O que você faz agora?",
	}, "\n")
	require.Equal(t, "O sol pesa sobre os telhados.\nYi Fan observa em silêncio.", Scrub(in))
	require.Equal(t, "", Scrub("Para onde você vai?"))
	require.Equal(t, "A névoa sobe.", Scrub("A névoa sobe. E agora?"))
}

func TestNarrateFallsBackToResult(t *testing.T) {
	n := NewNarrator(textgen.Offline(), nil)
	p := models.NewPlayer("TestHero", "Mortal", "Vila")
	out := n.Narrate(context.Background(), NarrationRequest{
		Player:   p,
		Location: "Vila",
		Present:  []*models.NPC{models.NewNPC("Yi Fan", "human", "Vila")},
		Action:   PlannedAction{Intent: Observe},
		Result:   &ActionResult{Message: "Você observa ao redor."},
		At:       noon,
		Period:   clock.Noon,
	})
	require.Equal(t, "📍 04/03/1000 | Meio-dia | Vila\n\nVocê observa ao redor. Ao seu redor: Yi Fan.", out)
}

func TestNarrateUsesCombatTask(t *testing.T) {
	fake := &textgen.Fake{Respond: func(task, prompt string) (string, error) {
		return "A lâmina risca o ar.\nSeu tier subiu.", nil
	}}
	n := NewNarrator(fake, nil)
	out := n.Narrate(context.Background(), NarrationRequest{
		Player:   models.NewPlayer("TestHero", "Mortal", "Vila"),
		Location: "Vila",
		Action:   PlannedAction{Intent: Attack, RawInput: "atacar"},
		Result:   &ActionResult{Message: "Você acerta."},
		At:       noon,
		Period:   clock.Noon,
	})
	require.Equal(t, "📍 04/03/1000 | Meio-dia | Vila\n\nA lâmina risca o ar.", out)
	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, textgen.TaskCombat, calls[0].Task)
}

func TestFold(t *testing.T) {
	sc := session.New(1, "TestHero", "Vila")
	sc.MaxHistory = 4
	for i := 0; i < 4; i++ {
		sc.AddTurn(session.TurnSummary{Turn: i, Input: fmt.Sprintf("ação %d", i), Result: "ok"})
	}

	var prompt string
	fake := &textgen.Fake{Respond: func(task, p string) (string, error) {
		prompt = p
		return "  O herói vagou pela vila.  ", nil
	}}
	require.NoError(t, NewNarrator(fake, nil).Fold(context.Background(), sc))
	require.Equal(t, "O herói vagou pela vila.", sc.Summary)
	require.Len(t, sc.History, 2)
	require.Equal(t, 2, sc.History[0].Turn)
	require.Contains(t, prompt, "ação 0")
	require.Contains(t, prompt, "ação 1")
	require.NotContains(t, prompt, "ação 2")
}

func TestFoldKeepsHistoryOnFailure(t *testing.T) {
	sc := session.New(1, "TestHero", "Vila")
	sc.MaxHistory = 2
	sc.AddTurn(session.TurnSummary{Turn: 0, Input: "a"})
	sc.AddTurn(session.TurnSummary{Turn: 1, Input: "b"})

	fake := &textgen.Fake{Respond: func(task, p string) (string, error) { return "", errors.New("down") }}
	require.Error(t, NewNarrator(fake, nil).Fold(context.Background(), sc))
	require.Len(t, sc.History, 2)
	require.Empty(t, sc.Summary)

	short := session.New(1, "TestHero", "Vila")
	require.NoError(t, NewNarrator(fake, nil).Fold(context.Background(), short))
}

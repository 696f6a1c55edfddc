package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/textgen"
)

// Fold condenses the oldest half of a full turn history into the running
// story summary. On failure the history is left as it is and trimmed by
// AddTurn as usual.
func (n *Narrator) Fold(ctx context.Context, sc *session.Context) error {
	limit := sc.MaxHistory
	if limit <= 0 || len(sc.History) < limit {
		return nil
	}
	fold := limit - limit/2
	var events strings.Builder
	for _, t := range sc.History[:fold] {
		fmt.Fprintf(&events, "Ação: %s\nResultado: %s\n", t.Input, firstNonEmpty(t.Result, t.Action))
	}
	prompt, err := render("summary", struct {
		CurrentSummary string
		NewEvents      string
	}{
		CurrentSummary: sc.Summary,
		NewEvents:      events.String(),
	})
	if err != nil {
		return err
	}
	text, err := n.text.GenerateText(ctx, prompt, textgen.TaskSummary)
	if err != nil {
		return fmt.Errorf("summarize history: %w", err)
	}
	sc.Summary = strings.TrimSpace(text)
	sc.History = append([]session.TurnSummary(nil), sc.History[fold:]...)
	return nil
}

package session

import (
	"fmt"
	"strings"
)

var periodNames = map[string]string{
	"dawn":      "Dawn",
	"morning":   "Morning",
	"noon":      "Noon",
	"afternoon": "Afternoon",
	"dusk":      "Dusk",
	"evening":   "Evening",
	"night":     "Deep night",
	"midnight":  "Small hours",
}

// PeriodName is the narrative name of a time-of-day slot.
func PeriodName(slot string) string {
	if n, ok := periodNames[slot]; ok {
		return n
	}
	return "Unknown hour"
}

// EntitiesText lists the scene's entities for a prompt.
func (c *Context) EntitiesText() string {
	if len(c.Present) == 0 {
		return "No creature or person is visible nearby."
	}
	lines := []string{"=== PRESENT ==="}
	for _, e := range c.Present {
		health := "unhurt"
		switch {
		case e.HPPercent <= 0.3:
			health = "gravely wounded"
		case e.HPPercent <= 0.7:
			health = "wounded"
		}
		speech := "speaks"
		if !e.CanSpeak {
			speech = "does not speak"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s, %s): %s, %s, %s", e.Name, e.Species, e.Gender, e.EmotionalState, health, speech))
	}
	return strings.Join(lines, "\n")
}

// HistoryText renders the last n turns.
func (c *Context) HistoryText(n int) string {
	turns := c.LastTurns(n)
	if len(turns) == 0 {
		return "No turns yet."
	}
	lines := []string{"=== RECENT TURNS ==="}
	for _, t := range turns {
		lines = append(lines, t.Compact())
	}
	return strings.Join(lines, "\n")
}

// CompactPrompt is the short context used by the planner.
func (c *Context) CompactPrompt() string {
	parts := []string{
		fmt.Sprintf("Location: %s | Atmosphere: %s | Beat: %s", c.Location, c.TensionLabel(), c.Beat),
	}
	if c.InCombat {
		parts = append(parts, fmt.Sprintf("In combat, round %d", c.CombatRound))
	}
	parts = append(parts, c.HistoryText(3))
	return strings.Join(parts, "\n")
}

// FullPrompt is the context handed to the narrator: time, scene, the five
// latest turns, urgent hooks and active threads.
func (c *Context) FullPrompt() string {
	var parts []string
	if c.Time != nil {
		parts = append(parts, fmt.Sprintf("%s | %s", c.Time.Now.Format("02 Jan 2006"), PeriodName(c.Time.TimeOfDay)))
	}
	parts = append(parts,
		"Location: "+c.Location,
		fmt.Sprintf("Atmosphere: %s (tension %.0f%%)", c.TensionLabel(), c.Tension*100),
		"Narrative beat: "+string(c.Beat),
	)
	if c.InCombat {
		parts = append(parts, fmt.Sprintf("IN COMBAT, round %d", c.CombatRound))
		if len(c.Combatants) > 0 {
			parts = append(parts, "   Participants: "+strings.Join(c.Combatants, ", "))
		}
	}
	if c.Summary != "" {
		parts = append(parts, "", "=== STORY SO FAR ===", c.Summary)
	}
	parts = append(parts, "", c.EntitiesText(), "", c.HistoryText(5))

	if urgent := c.UrgentHooks(); len(urgent) > 0 {
		parts = append(parts, "", "=== URGENT HOOKS ===")
		for i, h := range urgent {
			if i == 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("- [%s] %s", h.Kind, h.Description))
		}
	}
	if threads := c.ActiveThreads(); len(threads) > 0 {
		parts = append(parts, "", "=== ACTIVE THREADS ===")
		for i, th := range threads {
			if i == 3 {
				break
			}
			objective := th.Objective
			if objective == "" {
				objective = "ongoing"
			}
			parts = append(parts, fmt.Sprintf("- %s: %s", th.Title, objective))
		}
	}
	return strings.Join(parts, "\n")
}

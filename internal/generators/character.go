package generators

import (
	"context"
	"fmt"
	"strings"
)

// SessionZeroQuestions are always asked, in this order: the first scene,
// the player's refuge and the most important person in their life.
var SessionZeroQuestions = []string{
	"Descreva o momento exato onde sua jornada começa. O que está acontecendo ao seu redor agora?",
	"Onde é seu refúgio? Descreva o lugar que você considera 'lar' ou onde se sente seguro.",
	"Quem é a pessoa mais importante na sua vida neste momento? Descreva ela brevemente.",
}

var fallbackQuestions = []string{
	"Qual é o seu maior objetivo na cultivação?",
	"O que você mais teme perder?",
}

// Character is the identity a new player starts from.
type Character struct {
	Name         string
	Appearance   string
	Constitution string
	Origin       string
	Answers      []string
}

// FirstScene, Home and Important return the answers to the fixed questions.
func (c Character) FirstScene() string { return c.answer(0) }
func (c Character) Home() string       { return c.answer(1) }
func (c Character) Important() string  { return c.answer(2) }

// Extra returns the answers to the generated questions.
func (c Character) Extra() []string {
	if len(c.Answers) <= len(SessionZeroQuestions) {
		return nil
	}
	return c.Answers[len(SessionZeroQuestions):]
}

func (c Character) answer(i int) string {
	if i < len(c.Answers) {
		return strings.TrimSpace(c.Answers[i])
	}
	return ""
}

// Questions returns the fixed questions followed by up to two generated
// ones, or a fixed pair when generation fails.
func (g *Generator) Questions(ctx context.Context, c Character) []string {
	out := append([]string{}, SessionZeroQuestions...)
	reply, ok := g.plain(ctx, "questions", c, "")
	if !ok {
		return append(out, fallbackQuestions...)
	}
	var extra []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			extra = append(extra, line)
		}
		if len(extra) == 2 {
			break
		}
	}
	if len(extra) == 0 {
		extra = fallbackQuestions
	}
	return append(out, extra...)
}

// Backstory writes the player's backstory from the session-zero answers.
func (g *Generator) Backstory(ctx context.Context, c Character) string {
	fallback := fmt.Sprintf("%s, nascido em %s, carrega a marca de uma %s. Sua jornada de cultivação está apenas começando, mas o destino já traçou seu caminho entre os mortais e imortais.",
		c.Name, c.Origin, orString(c.Constitution, "constituição mortal"))
	text, _ := g.plain(ctx, "backstory", c, fallback)
	return text
}

// ImportantNPCName extracts or invents the name of the person described.
// It returns "" when there is no description or the model is unavailable.
func (g *Generator) ImportantNPCName(ctx context.Context, description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	name, ok := g.plain(ctx, "npc_name", description, "")
	if !ok {
		return ""
	}
	name = strings.Trim(strings.SplitN(name, "\n", 2)[0], " .\"'*")
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}
	return name
}

var (
	trainedMarkers   = []string{"treinou", "mestre", "cultivou", "técnica", "discípulo"}
	untrainedMarkers = []string{"criança", "nunca cultivou", "iniciante", "comprado", "escravo", "servente"}
	homeMarkers      = []string{"casa", "lar", "quarto", "residência"}
)

// HasTraining reports whether the first scene describes someone who has
// already trained. Any sign of a child, a slave or a beginner wins.
func HasTraining(firstScene string) bool {
	s := strings.ToLower(firstScene)
	return containsAny(s, trainedMarkers) && !containsAny(s, untrainedMarkers)
}

// StartsAtHome reports whether the first scene takes place at home.
func StartsAtHome(firstScene string) bool {
	return containsAny(strings.ToLower(firstScene), homeMarkers)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

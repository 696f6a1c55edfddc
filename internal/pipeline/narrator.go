package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/textgen"
)

var periods = map[clock.TimeOfDay]string{
	clock.Dawn:      "Alvorada",
	clock.Morning:   "Manhã",
	clock.Noon:      "Meio-dia",
	clock.Afternoon: "Tarde",
	clock.Dusk:      "Crepúsculo",
	clock.Evening:   "Anoitecer",
	clock.Night:     "Noite profunda",
	clock.Midnight:  "Madrugada",
}

// mechanics matches lines that leak game numbers into the prose.
var mechanics = regexp.MustCompile(`(?i)\b(HP|XP|tier)\b`)

// Header is the first line of every narration.
func Header(at time.Time, tod clock.TimeOfDay, location string) string {
	period, ok := periods[tod]
	if !ok {
		period = "Hora incerta"
	}
	return fmt.Sprintf("📍 %s | %s | %s", at.Format("02/01/2006"), period, location)
}

// NarrationRequest is everything the narrator sees of a turn.
type NarrationRequest struct {
	Player   *models.Player
	Place    *models.Location
	Location string
	Present  []*models.NPC
	Action   PlannedAction
	Result   *ActionResult
	Previous string
	Session  *session.Context
	Memories map[string]string
	Events   []string
	Weather  string
	At       time.Time
	Period   clock.TimeOfDay
	Opening  bool
}

type namedMemory struct {
	Name string
	Text string
}

type narratorPrompt struct {
	Header           string
	Style            string
	Place            string
	PlaceDescription string
	Weather          string
	Present          []string
	PlayerName       string
	Input            string
	Outcome          string
	Previous         string
	Session          string
	Memories         []namedMemory
	Events           []string
	Hallucinating    bool
	MinWords         int
	MaxWords         int
}

// Narrator writes the prose of a turn.
type Narrator struct {
	text   textgen.Client
	logger *slog.Logger
}

func NewNarrator(text textgen.Client, logger *slog.Logger) *Narrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{text: text, logger: logger}
}

// Narrate returns the header line followed by the scene. It never fails:
// without the model the scene is built from the action result.
func (n *Narrator) Narrate(ctx context.Context, req NarrationRequest) string {
	header := Header(req.At, req.Period, req.Location)
	style := req.Action.Intent.Style()
	if req.Opening {
		style = "opening"
	}
	data := narratorPrompt{
		Header:     header,
		Style:      style,
		Place:      req.Location,
		Weather:    firstNonEmpty(strings.TrimSpace(req.Weather), "calmo"),
		PlayerName: req.Player.Name,
		Input:      req.Action.RawInput,
		Previous:   req.Previous,
		Events:     req.Events,
		MinWords:   150,
		MaxWords:   250,
	}
	if style == "combat" {
		data.MaxWords = 300
	}
	if req.Place != nil {
		data.PlaceDescription = req.Place.Description
	}
	for _, npc := range req.Present {
		data.Present = append(data.Present, npc.Name)
	}
	if req.Result != nil {
		data.Outcome = req.Result.Message
	}
	if req.Session != nil {
		data.Session = req.Session.FullPrompt()
	}
	for _, npc := range req.Present {
		if m, ok := req.Memories[npc.Name]; ok && m != "" {
			data.Memories = append(data.Memories, namedMemory{Name: npc.Name, Text: m})
		}
	}
	data.Hallucinating = req.Player.HasEffect(combat.Hallucination)

	prompt, err := render("narrator", data)
	if err != nil {
		n.logger.Error("narrator prompt", "err", err)
		return fallbackNarration(header, req)
	}
	task := textgen.TaskStory
	if style == "combat" {
		task = textgen.TaskCombat
	}
	text, err := n.text.GenerateText(ctx, prompt, task)
	if err != nil {
		n.logger.Warn("narrator fell back to template", "player_id", req.Player.ID, "err", err)
		return fallbackNarration(header, req)
	}
	body := Scrub(text)
	if body == "" {
		return fallbackNarration(header, req)
	}
	return header + "\n\n" + body
}

// Scrub drops lines that mention mechanics or repeat the header and trims
// trailing questions.
func Scrub(text string) string {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "📍") || mechanics.MatchString(t) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	for strings.HasSuffix(out, "?") {
		cut := strings.LastIndexAny(strings.TrimSuffix(out, "?"), ".!?\n")
		if cut < 0 {
			return ""
		}
		out = strings.TrimSpace(out[:cut+1])
	}
	return out
}

func fallbackNarration(header string, req NarrationRequest) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	if req.Result != nil && req.Result.Message != "" {
		b.WriteString(req.Result.Message)
	} else if req.Place != nil && req.Place.Description != "" {
		b.WriteString(req.Place.Description)
	} else {
		b.WriteString("O vento sopra por " + req.Location + ".")
	}
	if len(req.Present) > 0 {
		b.WriteString(" Ao seu redor: " + strings.Join(npcNames(req.Present), ", ") + ".")
	}
	return b.String()
}

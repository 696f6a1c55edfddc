package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/textgen"
)

// heuristicConfidence caps the confidence of a keyword reading.
const heuristicConfidence = 0.6

// PlanRequest is what the planner reads an input against.
type PlanRequest struct {
	Input         string
	Player        *models.Player
	Present       []*models.NPC
	Place         *models.Location
	Context       string
	PreviousError string
}

// Planner turns raw player input into a PlannedAction.
type Planner struct {
	text   textgen.Client
	cat    *catalog.Catalog
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewPlanner(text textgen.Client, cat *catalog.Catalog, logger *slog.Logger) (*Planner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compilePlannerSchema()
	if err != nil {
		return nil, err
	}
	return &Planner{text: text, cat: cat, schema: schema, logger: logger}, nil
}

type plannerPrompt struct {
	Input         string
	Player        *models.Player
	Skills        []string
	Items         []string
	Exits         []string
	Present       []string
	Context       string
	Berserk       bool
	PreviousError string
}

// Plan asks the referee model for a reading of the input. When the model
// fails or replies off-schema, the keyword reading is used instead.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) PlannedAction {
	a, err := p.ask(ctx, req)
	if err != nil {
		p.logger.Warn("planner fell back to keywords", "player_id", req.Player.ID, "err", err)
		a = Heuristic(req, p.cat)
	}
	a.RawInput = req.Input
	berserk(req, &a)
	return a
}

func (p *Planner) ask(ctx context.Context, req PlanRequest) (PlannedAction, error) {
	data := plannerPrompt{
		Input:         req.Input,
		Player:        req.Player,
		Context:       req.Context,
		Berserk:       req.Player.HasEffect(combat.Berserk),
		PreviousError: req.PreviousError,
		Skills:        []string{combat.BasicAttack.Name},
		Items:         []string{},
	}
	for _, id := range req.Player.LearnedSkills {
		if s := p.cat.Skill(id); s != nil {
			data.Skills = append(data.Skills, s.Name)
		} else {
			data.Skills = append(data.Skills, id)
		}
	}
	for _, it := range req.Player.Inventory {
		data.Items = append(data.Items, p.itemName(it.ItemID))
	}
	data.Exits = exits(req.Place)
	for _, n := range req.Present {
		data.Present = append(data.Present, n.Summary())
	}

	prompt, err := render("planner", data)
	if err != nil {
		return PlannedAction{}, err
	}
	reply, err := p.text.GenerateText(ctx, prompt, textgen.TaskPlanner)
	if err != nil {
		return PlannedAction{}, err
	}
	body, err := textgen.ExtractJSON(reply)
	if err != nil {
		return PlannedAction{}, err
	}
	if err := validateJSON(p.schema, []byte(body)); err != nil {
		return PlannedAction{}, fmt.Errorf("planner reply: %w", err)
	}
	var r struct {
		PlannedAction
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return PlannedAction{}, fmt.Errorf("decode planner reply: %w", err)
	}
	a := r.PlannedAction
	a.Intent = ParseIntent(r.Intent)
	a.Confidence = max(0, min(a.Confidence, 1))
	if a.TargetName != "" {
		if n := findNPC(req.Present, a.TargetName); n != nil {
			a.TargetName = n.Name
		}
	}
	return a, nil
}

func (p *Planner) itemName(id string) string {
	if it := p.cat.Item(id); it != nil {
		return it.Name
	}
	return id
}

func exits(place *models.Location) []string {
	if place == nil {
		return nil
	}
	out := make([]string, 0, len(place.Connections))
	for name := range place.Connections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// berserk turns words aimed at an enemy into a blow while the heart demon
// rages.
func berserk(req PlanRequest, a *PlannedAction) {
	if !req.Player.HasEffect(combat.Berserk) || !a.Intent.Social() {
		return
	}
	var target *models.NPC
	if a.TargetName != "" {
		target = findNPC(req.Present, a.TargetName)
	} else {
		for _, n := range req.Present {
			if n.IsHostile() {
				target = n
				break
			}
		}
	}
	if target == nil || !target.IsHostile() {
		return
	}
	a.Intent = Attack
	a.TargetName = target.Name
	a.TargetType = "npc"
	a.Tone = "hostile"
	a.Reasoning = strings.TrimSpace(a.Reasoning + " fúria do demônio do coração")
}

type keyword struct {
	intent Intent
	words  []string
}

// Keywords are probed in order. A word ending in "=" must match exactly;
// anything else matches as a prefix, and phrases match as substrings.
var keywords = []keyword{
	{Flee, []string{"fugir", "fujo", "fuja", "escapar", "escapo", "flee", "run away", "correr para longe"}},
	{Attack, []string{"atac", "ataq", "golpe", "bater", "bato", "socar", "soco", "chutar", "matar", "mato", "lutar", "luto", "ferir", "attack", "strike", "hit=", "kill"}},
	{Defend, []string{"defend", "bloque", "block", "proteg", "esquiv", "dodge"}},
	{Intimidate, []string{"intimid", "ameaç", "threaten"}},
	{Persuade, []string{"persuad", "convenc", "convince"}},
	{Trade, []string{"comprar", "compro", "vender", "vendo", "negoci", "trocar", "barganh", "buy", "sell", "trade"}},
	{Talk, []string{"falar", "falo", "fale", "convers", "pergunt", "dizer", "digo", "diz=", "cumpriment", "saud", "talk", "ask=", "say=", "speak", "greet"}},
	{Meditate, []string{"medit"}},
	{Cultivate, []string{"cultiv"}},
	{Train, []string{"trein", "pratic", "train", "practice"}},
	{Rest, []string{"descans", "dormir", "durmo", "repous", "rest=", "sleep"}},
	{UseItem, []string{"usar", "uso=", "use=", "beber", "bebo", "comer", "consum", "tomar", "drink", "eat="}},
	{Equip, []string{"equip", "empunh", "vestir", "wield"}},
	{PickUp, []string{"pegar", "pego=", "pegue", "apanh", "colet", "recolh", "pick up", "take="}},
	{Drop, []string{"largar", "largo=", "soltar", "descart", "jogar fora", "drop"}},
	{Move, []string{"ir=", "vou=", "viaj", "caminh", "seguir para", "entrar", "entro=", "sair=", "saio=", "voltar", "volto=", "andar", "go=", "travel", "walk", "enter", "head to"}},
	{Search, []string{"procur", "busc", "vasculh", "search", "look for"}},
	{Explore, []string{"explor"}},
	{Observe, []string{"olh", "observ", "examin", "inspec", "analis", "ao redor", "ver=", "look", "inspect"}},
	{Wait, []string{"esper", "aguard", "wait"}},
}

var destinationMarkers = []string{" em direção a ", " em direção ao ", " para o ", " para a ", " para ", " até o ", " até a ", " até ", " ao ", " à ", " na ", " no ", " to the ", " to "}

// Heuristic reads the input with keyword tables. It never fails; an input
// it cannot read is unknown with low confidence.
func Heuristic(req PlanRequest, cat *catalog.Catalog) PlannedAction {
	s := strings.ToLower(strings.TrimSpace(req.Input))
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	a := PlannedAction{RawInput: req.Input, Intent: Unknown, Tone: "neutral", Valid: true, Confidence: heuristicConfidence}

	target := resolveTarget(s, words, req.Present)
	if target != nil {
		a.TargetName = target.Name
		a.TargetType = "npc"
	}

	if skill := learnedSkillIn(s, req.Player, cat); skill != nil {
		a.Intent = UseSkill
		a.SkillName = skill.ID
	} else {
		for _, k := range keywords {
			if matches(s, words, k.words) {
				a.Intent = k.intent
				break
			}
		}
	}

	switch a.Intent {
	case Attack, UseSkill:
		a.Tone = "hostile"
	case Intimidate:
		a.Tone = "threatening"
	case Talk, Persuade, Trade:
		a.SpokenWords = spoken(req.Input)
		a.Tone = toneOf(s)
		if a.Intent == Trade {
			a.ItemName = itemIn(s, req.Player, cat)
		}
	case Move:
		a.Destination = destination(req.Input, req.Place)
		a.TargetType = "location"
	case UseItem, Equip, Drop, PickUp:
		a.ItemName = itemIn(s, req.Player, cat)
		a.TargetType = "item"
	case Rest, Meditate, Cultivate, Train, Wait:
		a.TargetType = "self"
	case Unknown:
		a.Valid = false
		a.ValidationError = "intenção não reconhecida"
		a.Confidence = 0.3
	}
	a.Reasoning = "leitura por palavras-chave"
	return a
}

func matches(s string, words []string, kws []string) bool {
	for _, kw := range kws {
		switch {
		case strings.HasSuffix(kw, "="):
			exact := strings.TrimSuffix(kw, "=")
			for _, w := range words {
				if w == exact {
					return true
				}
			}
		case strings.Contains(kw, " "):
			if strings.Contains(s, kw) {
				return true
			}
		default:
			for _, w := range words {
				if strings.HasPrefix(w, kw) {
					return true
				}
			}
		}
	}
	return false
}

// resolveTarget finds the present NPC the input names: a full name first,
// then any distinctive word of a name.
func resolveTarget(s string, words []string, present []*models.NPC) *models.NPC {
	for _, n := range present {
		if strings.Contains(s, strings.ToLower(n.Name)) {
			return n
		}
	}
	for _, n := range present {
		for _, part := range strings.Fields(strings.ToLower(n.Name)) {
			if len([]rune(part)) < 4 {
				continue
			}
			for _, w := range words {
				if w == part {
					return n
				}
			}
		}
	}
	return nil
}

func findNPC(present []*models.NPC, name string) *models.NPC {
	for _, n := range present {
		if strings.EqualFold(n.Name, name) {
			return n
		}
	}
	for _, n := range present {
		if models.MatchName(n.Name, name) {
			return n
		}
	}
	return nil
}

func learnedSkillIn(s string, p *models.Player, cat *catalog.Catalog) *catalog.Skill {
	for _, id := range p.LearnedSkills {
		sk := cat.Skill(id)
		if sk == nil {
			continue
		}
		if strings.Contains(s, strings.ToLower(sk.Name)) || strings.Contains(s, strings.ReplaceAll(sk.ID, "_", " ")) {
			return sk
		}
	}
	return nil
}

func itemIn(s string, p *models.Player, cat *catalog.Catalog) string {
	for _, it := range p.Inventory {
		if strings.Contains(s, strings.ReplaceAll(it.ItemID, "_", " ")) {
			return it.ItemID
		}
		if c := cat.Item(it.ItemID); c != nil && strings.Contains(s, strings.ToLower(c.Name)) {
			return it.ItemID
		}
	}
	// the object of the verb: everything after the first word
	if i := strings.IndexByte(s, ' '); i > 0 {
		return trimArticles(s[i+1:])
	}
	return ""
}

func destination(input string, place *models.Location) string {
	s := strings.ToLower(input)
	for _, name := range exits(place) {
		if strings.Contains(s, strings.ToLower(name)) {
			return name
		}
	}
	padded := " " + strings.TrimSpace(input) + " "
	lower := strings.ToLower(padded)
	for _, m := range destinationMarkers {
		if i := strings.Index(lower, m); i >= 0 {
			return trimArticles(strings.TrimSpace(padded[i+len(m):]))
		}
	}
	return ""
}

var articles = []string{"o ", "a ", "os ", "as ", "um ", "uma ", "the "}

func trimArticles(s string) string {
	s = strings.TrimSpace(strings.TrimRight(s, ".!?"))
	lower := strings.ToLower(s)
	for _, a := range articles {
		if strings.HasPrefix(lower, a) {
			return strings.TrimSpace(s[len(a):])
		}
	}
	return s
}

func spoken(input string) string {
	if i := strings.IndexAny(input, "\"“"); i >= 0 {
		rest := input[i+len(string([]rune(input[i:])[0])):]
		if j := strings.IndexAny(rest, "\"”"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.IndexByte(input, ':'); i >= 0 {
		return strings.TrimSpace(input[i+1:])
	}
	return strings.TrimSpace(input)
}

func toneOf(s string) string {
	switch {
	case strings.Contains(s, "gentil"), strings.Contains(s, "educad"), strings.Contains(s, "sorri"),
		strings.Contains(s, "por favor"), strings.Contains(s, "obrigad"):
		return "friendly"
	case strings.Contains(s, "grit"), strings.Contains(s, "insult"), strings.Contains(s, "xing"):
		return "hostile"
	}
	return "neutral"
}

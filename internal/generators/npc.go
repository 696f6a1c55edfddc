package generators

import (
	"context"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

var roleSchedules = map[string]map[string]string{
	"merchant": {"dawn": "home", "morning": "market", "noon": "market", "afternoon": "market", "evening": "tavern", "night": "home"},
	"guard":    {"dawn": "barracks", "morning": "gate", "noon": "gate", "afternoon": "patrol", "evening": "gate", "night": "barracks"},
	"elder":    {"dawn": "home", "morning": "council_hall", "noon": "council_hall", "afternoon": "home", "evening": "tavern", "night": "home"},
	"healer":   {"dawn": "clinic", "morning": "clinic", "noon": "clinic", "afternoon": "clinic", "evening": "home", "night": "home"},
	"trainer":  {"dawn": "training_grounds", "morning": "training_grounds", "noon": "tavern", "afternoon": "training_grounds", "evening": "home", "night": "home"},
}

// Schedule returns the daily routine of role anchored at location. "home"
// slots map to home; every other activity becomes "<location>_<activity>".
// Roles without a routine return nil.
func Schedule(role, location, home string) map[string]string {
	base, ok := roleSchedules[role]
	if !ok {
		return nil
	}
	if home == "" {
		home = location
	}
	out := make(map[string]string, len(base))
	for slot, activity := range base {
		if activity == "home" {
			out[slot] = home
		} else {
			out[slot] = location + "_" + activity
		}
	}
	return out
}

// NPCRequest describes a friendly or neutral NPC to create.
type NPCRequest struct {
	Location string
	Role     string
	Faction  string
	Neutral  bool
	Present  []string
}

type npcReply struct {
	Name          string   `json:"name"`
	Gender        string   `json:"gender"`
	Description   string   `json:"description"`
	Personality   []string `json:"personality"`
	Backstory     string   `json:"backstory"`
	DialogueStyle string   `json:"dialogue_style"`
	Motivation    string   `json:"motivation"`
	Secret        string   `json:"secret"`
	Stats         struct {
		HP      float64 `json:"hp"`
		Defense float64 `json:"defense"`
		Attack  float64 `json:"attack"`
		Speed   float64 `json:"speed"`
		Rank    int     `json:"rank"`
	} `json:"stats"`
}

type npcPrompt struct {
	NPCRequest
	Simple bool
}

// NPC proposes a human NPC. Friendly NPCs keep their role and get its daily
// routine; neutral ones are civilians whose occupation is their activity.
// The result always has an id of zero and is not yet stored.
func (g *Generator) NPC(ctx context.Context, req NPCRequest, r *dice.Roller) *models.NPC {
	if req.Role == "" {
		req.Role = "wanderer"
	}
	data := &npcPrompt{NPCRequest: req}
	var reply npcReply
	if err := g.ask(ctx, "npc", data, func() { data.Simple = true }, &reply); err != nil {
		g.logger.Warn("npc generation fell back", "location", req.Location, "role", req.Role, "err", err)
		reply = fallbackNPC(req, r)
	}

	def := Defaults("human")
	n := models.NewNPC(reply.Name, "human", req.Location)
	n.Gender = orString(reply.Gender, "unknown")
	n.CanSpeak = true
	n.Description = reply.Description
	n.Personality = append([]string{}, reply.Personality...)
	n.Dialogue = reply.DialogueStyle
	n.Rank = clampInt(max(reply.Stats.Rank, 1), 1, 9)
	n.MaxHP = orDefault(reply.Stats.HP, 100)
	n.HP = n.MaxHP
	n.Defense = orDefault(reply.Stats.Defense, 10)
	n.Attack = orDefault(reply.Stats.Attack, 10)
	n.Speed = orDefault(reply.Stats.Speed, 10)
	n.Courage = def.Courage
	n.HomeLocation = req.Location
	n.Generated = true
	if req.Faction != "" {
		n.FactionID = req.Faction
		n.FactionRole = "member"
	}

	if req.Neutral {
		n.EmotionalState = models.Neutral
		n.Aggression = def.Aggression
		n.Role = "civilian"
		n.Activity = req.Role
		n.Backstory = reply.Motivation
		if reply.Secret != "" {
			n.Backstory = strings.TrimSpace(n.Backstory + " Segredo: " + reply.Secret)
		}
		return n
	}
	n.EmotionalState = models.Friendly
	n.Aggression = 20
	n.Role = req.Role
	n.Backstory = reply.Backstory
	n.Schedule = Schedule(req.Role, req.Location, n.HomeLocation)
	return n
}

var (
	givenNames  = []string{"Lin", "Mei", "Feng", "Hua", "Bai", "Xue", "Long", "Yun", "Shan", "Qing"}
	familyNames = []string{"Wang", "Li", "Zhang", "Chen", "Zhao", "Liu", "Sun", "Zhou", "Wu", "Xu"}

	roleTitles = map[string]string{
		"merchant":      "Mercador",
		"guard":         "Guarda",
		"elder":         "Ancião",
		"healer":        "Curandeiro",
		"blacksmith":    "Ferreiro",
		"farmer":        "Lavrador",
		"tavern_keeper": "Taverneiro",
		"monk":          "Monge",
		"scholar":       "Erudito",
	}
)

func fallbackNPC(req NPCRequest, r *dice.Roller) npcReply {
	name := dice.Pick(r, familyNames) + " " + dice.Pick(r, givenNames)
	for _, taken := range req.Present {
		if taken == name {
			name = fmt.Sprintf("%s %s", name, dice.Pick(r, givenNames))
			break
		}
	}
	title := roleTitles[req.Role]
	if title == "" {
		title = "Viajante"
	}
	reply := npcReply{
		Name:          name,
		Gender:        dice.Pick(r, []string{"male", "female"}),
		Description:   fmt.Sprintf("%s de vestes simples, com o olhar atento de quem conhece %s.", title, req.Location),
		Personality:   []string{"reservado", "observador", "prático"},
		Backstory:     fmt.Sprintf("Vive em %s há muitos anos e conhece bem seus caminhos.", req.Location),
		DialogueStyle: "direto e cortês",
		Motivation:    "Sobreviver mais uma estação sem chamar atenção.",
	}
	reply.Stats.Rank = 1
	return reply
}

package pipeline

import (
	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/models"
)

// Intent is what the player is trying to do.
type Intent string

const (
	Attack     Intent = "attack"
	Defend     Intent = "defend"
	Flee       Intent = "flee"
	UseSkill   Intent = "use_skill"
	Talk       Intent = "talk"
	Persuade   Intent = "persuade"
	Intimidate Intent = "intimidate"
	Trade      Intent = "trade"
	Move       Intent = "move"
	Explore    Intent = "explore"
	Search     Intent = "search"
	Observe    Intent = "observe"
	Rest       Intent = "rest"
	Meditate   Intent = "meditate"
	Cultivate  Intent = "cultivate"
	Train      Intent = "train"
	UseItem    Intent = "use_item"
	Equip      Intent = "equip"
	PickUp     Intent = "pick_up"
	Drop       Intent = "drop"
	Wait       Intent = "wait"
	Unknown    Intent = "unknown"
)

var intents = map[string]Intent{}

func init() {
	for _, i := range []Intent{Attack, Defend, Flee, UseSkill, Talk, Persuade, Intimidate, Trade, Move, Explore,
		Search, Observe, Rest, Meditate, Cultivate, Train, UseItem, Equip, PickUp, Drop, Wait, Unknown} {
		intents[string(i)] = i
	}
	intents["speak"] = Talk
}

// ParseIntent maps a model's intent label onto an Intent.
func ParseIntent(s string) Intent {
	if i, ok := intents[s]; ok {
		return i
	}
	return Unknown
}

// Combat reports whether the intent is a blow against a target.
func (i Intent) Combat() bool { return i == Attack || i == UseSkill }

// Social reports whether the intent needs someone to talk to.
func (i Intent) Social() bool {
	return i == Talk || i == Persuade || i == Intimidate || i == Trade
}

// Style is the narration style of the intent.
func (i Intent) Style() string {
	switch i {
	case Attack, UseSkill, Defend, Flee:
		return "combat"
	case Talk, Persuade, Intimidate, Trade:
		return "dialogue"
	case Move:
		return "travel"
	case Explore, Search:
		return "discovery"
	case Rest, Wait:
		return "rest"
	case Meditate, Cultivate, Train:
		return "cultivation"
	}
	return "exploration"
}

// PlannedAction is the planner's reading of the player's input.
type PlannedAction struct {
	Intent          Intent  `json:"intent"`
	RawInput        string  `json:"raw_input"`
	TargetName      string  `json:"target_name,omitempty"`
	TargetType      string  `json:"target_type,omitempty"`
	SkillName       string  `json:"skill_name,omitempty"`
	ItemName        string  `json:"item_name,omitempty"`
	Destination     string  `json:"destination,omitempty"`
	SpokenWords     string  `json:"spoken_words,omitempty"`
	Tone            string  `json:"tone,omitempty"`
	Valid           bool    `json:"is_valid"`
	ValidationError string  `json:"validation_error,omitempty"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning,omitempty"`
}

// ActionResult is what the executor did. Message is narrative text with no
// numbers in it; Details carry the mechanics for logs and clients.
type ActionResult struct {
	Success bool   `json:"success"`
	Refusal string `json:"refusal,omitempty"`
	Message string `json:"message"`

	Details []string `json:"details,omitempty"`

	Attack         *combat.Hit `json:"attack,omitempty"`
	CounterAttack  *combat.Hit `json:"counter_attack,omitempty"`
	DamageDealt    float64     `json:"damage_dealt"`
	DamageReceived float64     `json:"damage_received"`
	Killed         string      `json:"npc_killed,omitempty"`
	PlayerDied     bool        `json:"player_died,omitempty"`
	Fled           bool        `json:"fled,omitempty"`

	Moved       bool   `json:"location_changed,omitempty"`
	NewLocation string `json:"new_location,omitempty"`

	ItemsGained  []models.InventoryItem `json:"items_gained,omitempty"`
	Absorbed     *combat.Absorption     `json:"absorbed,omitempty"`
	Breakthrough []combat.Breakthrough  `json:"breakthroughs,omitempty"`
	Tribulation  *combat.Tribulation    `json:"tribulation,omitempty"`
	HeartDemon   *combat.HeartDemon     `json:"heart_demon,omitempty"`
	Epiphany     string                 `json:"epiphany,omitempty"`
	Quests       []string               `json:"quest_updates,omitempty"`
	Reaction     string                 `json:"npc_reaction,omitempty"`
	Listener     string                 `json:"listener,omitempty"`
	Observed     []string               `json:"observed,omitempty"`
	Trade        *Deal                  `json:"trade,omitempty"`
}

func (r *ActionResult) detail(s string) { r.Details = append(r.Details, s) }

// refuse marks an input error: nothing happens and the refusal is narrated.
func refuse(msg string) *ActionResult {
	return &ActionResult{Refusal: msg, Message: msg}
}

// ValidationResult is the validator's verdict on an executed action.
type ValidationResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func invalid(format string) ValidationResult { return ValidationResult{Error: format} }

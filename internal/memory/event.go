package memory

import (
	"math"
	"strings"

	"github.com/daicherr/orbis/internal/models"
)

// EventType classifies what happened in a remembered event.
type EventType string

const (
	CombatAttack EventType = "combat_attack"
	CombatDefend EventType = "combat_defend"
	CombatKill   EventType = "combat_kill"
	CombatFlee   EventType = "combat_flee"
	CombatDefeat EventType = "combat_defeat"

	DialogueFriendly EventType = "dialogue_friendly"
	DialogueHostile  EventType = "dialogue_hostile"
	DialogueNeutral  EventType = "dialogue_neutral"
	DialogueThreat   EventType = "dialogue_threat"
	DialogueBargain  EventType = "dialogue_bargain"

	Observation EventType = "observation"
	Discovery   EventType = "discovery"
	Travel      EventType = "travel"

	TradeBuy  EventType = "trade_buy"
	TradeSell EventType = "trade_sell"

	HelpGiven    EventType = "help_given"
	HelpReceived EventType = "help_received"

	Betrayal     EventType = "betrayal"
	Promise      EventType = "promise"
	Cultivation  EventType = "cultivation"
	Breakthrough EventType = "breakthrough"
)

// Category folds an event type into its family: combat, dialogue, trade,
// help or the type itself.
func (t EventType) Category() string {
	s := string(t)
	for _, family := range []string{"combat", "dialogue", "trade", "help"} {
		if strings.HasPrefix(s, family+"_") {
			return family
		}
	}
	return s
}

// Valence is the emotional weight of an event for the one remembering it.
type Valence string

const (
	VeryNegative Valence = "very_negative"
	Negative     Valence = "negative"
	NeutralTone  Valence = "neutral"
	Positive     Valence = "positive"
	VeryPositive Valence = "very_positive"
)

func (v Valence) negative() bool { return v == Negative || v == VeryNegative }
func (v Valence) positive() bool { return v == Positive || v == VeryPositive }

// Event is the input to Remember.
type Event struct {
	Type        EventType
	Description string
	Location    string
	GameTime    string
	Period      string
	Turn        int

	ActorName  string
	Actor      models.Ref
	TargetName string
	Target     models.Ref
	Others     []string

	Outcome        string
	DamageDealt    float64
	DamageReceived float64
	Item           string

	// Valence is inferred from Type when empty.
	Valence  Valence
	Metadata map[string]any
}

var baseImportance = map[EventType]float64{
	CombatKill:       0.9,
	CombatDefeat:     0.85,
	Betrayal:         0.95,
	Breakthrough:     0.8,
	CombatAttack:     0.6,
	CombatFlee:       0.5,
	DialogueThreat:   0.7,
	HelpGiven:        0.6,
	HelpReceived:     0.6,
	Promise:          0.7,
	Discovery:        0.65,
	TradeBuy:         0.3,
	TradeSell:        0.3,
	DialogueFriendly: 0.4,
	DialogueNeutral:  0.2,
	Observation:      0.2,
	Travel:           0.1,
}

// Importance scores the event in [0,1].
func (e Event) Importance() float64 {
	score, ok := baseImportance[e.Type]
	if !ok {
		score = 0.5
	}
	switch e.Valence {
	case VeryNegative, VeryPositive:
		score += 0.2
	case Negative, Positive:
		score += 0.1
	}
	if e.DamageDealt > 50 {
		score += 0.1
	}
	if e.DamageReceived > 50 {
		score += 0.15
	}
	return math.Max(0, math.Min(1, score))
}

// InferValence returns the supplied valence or one derived from the type.
func (e Event) InferValence() Valence {
	if e.Valence != "" {
		return e.Valence
	}
	switch e.Type {
	case CombatKill:
		return VeryNegative
	case CombatAttack, CombatDefeat, DialogueHostile, DialogueThreat, Betrayal:
		return Negative
	case HelpGiven, Breakthrough:
		return VeryPositive
	case HelpReceived, DialogueFriendly, TradeBuy:
		return Positive
	}
	return NeutralTone
}

// Participants lists actor, target and others without duplicates.
func (e Event) Participants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range append([]string{e.ActorName, e.TargetName}, e.Others...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

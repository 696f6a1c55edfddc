package models

import (
	"fmt"
	"math"
	"strings"
)

// Emotional states an NPC can be in.
const (
	Hostile  = "hostile"
	Friendly = "friendly"
	Neutral  = "neutral"
	Scared   = "scared"
	Curious  = "curious"
)

// InventoryItem is one stack in an inventory.
type InventoryItem struct {
	ItemID   string `json:"item_id" yaml:"item_id"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// StatusEffect is a timed effect on a character.
type StatusEffect struct {
	Kind       string  `json:"kind" yaml:"kind"` // "dot", "hallucination", "berserk", ...
	Magnitude  float64 `json:"magnitude" yaml:"magnitude"`
	DamageType string  `json:"damage_type,omitempty" yaml:"damage_type,omitempty"`
	Duration   int     `json:"duration,omitempty" yaml:"duration,omitempty"`
	TurnsLeft  int     `json:"turns_left" yaml:"turns_left"`
}

// Kill is an entry in a player's kill history.
type Kill struct {
	VictimID   int64  `json:"victim_id" yaml:"victim_id"`
	VictimName string `json:"victim_name" yaml:"victim_name"`
	VictimRank int    `json:"victim_rank" yaml:"victim_rank"`
	Location   string `json:"location" yaml:"location"`
	Turn       int    `json:"turn" yaml:"turn"`
}

// Combatant is what the combat code needs from a player or an NPC.
type Combatant interface {
	CombatName() string
	CurrentHP() float64
	MaximumHP() float64
	DefenseValue() float64
	TierValue() int
	ConstitutionName() string
	ApplyDamage(amount float64) float64
	StatusEffects() *[]StatusEffect
	IsAlive() bool
}

// Ref names the owner of a memory, e.g. "npc:12" or "player:3".
type Ref string

func PlayerRef(id int64) Ref { return Ref(fmt.Sprintf("player:%d", id)) }
func NPCRef(id int64) Ref    { return Ref(fmt.Sprintf("npc:%d", id)) }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func addItem(inv []InventoryItem, id string, qty int) []InventoryItem {
	if qty <= 0 {
		return inv
	}
	for i := range inv {
		if inv[i].ItemID == id {
			inv[i].Quantity += qty
			return inv
		}
	}
	return append(inv, InventoryItem{ItemID: id, Quantity: qty})
}

func removeItem(inv []InventoryItem, id string, qty int) ([]InventoryItem, bool) {
	for i := range inv {
		if inv[i].ItemID != id {
			continue
		}
		if inv[i].Quantity < qty {
			return inv, false
		}
		inv[i].Quantity -= qty
		if inv[i].Quantity == 0 {
			inv = append(inv[:i], inv[i+1:]...)
		}
		return inv, true
	}
	return inv, false
}

// purgeEffects drops effects with no turns left.
func purgeEffects(effects []StatusEffect) []StatusEffect {
	out := effects[:0]
	for _, e := range effects {
		if e.TurnsLeft > 0 {
			out = append(out, e)
		}
	}
	return out
}

// MatchName reports whether query names target, exact first then substring,
// ignoring case.
func MatchName(target, query string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	q := strings.ToLower(strings.TrimSpace(query))
	if t == "" || q == "" {
		return false
	}
	return t == q || strings.Contains(t, q) || strings.Contains(q, t)
}

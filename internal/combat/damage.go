// Package combat holds the rules of a fight: damage, status effects,
// cultivation gains, tribulations, loot and corruption.
//
// Functions here mutate the entities they are given and never touch the
// store; the turn executor works on clones and commits afterwards.
package combat

import (
	"errors"
	"fmt"
	"math"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

var ErrInsufficientEnergy = errors.New("not enough energy")

const (
	shadowChiScale   = 0.02
	stealthShare     = 0.5
	detectionGap     = 3
	basicAttackID    = "basic_attack"
	basicAttackPower = 10
)

// BasicAttack is the skill every character knows.
var BasicAttack = catalog.Skill{
	ID:         basicAttackID,
	Name:       "Ataque Básico",
	CostType:   "none",
	BaseDamage: basicAttackPower,
	DamageType: "physical",
}

// Attack describes one blow.
type Attack struct {
	Attacker models.Combatant
	Defender models.Combatant
	Skill    *catalog.Skill

	AttackerBody catalog.Constitution
	DefenderBody catalog.Constitution

	// ShadowChi is the attacker's shadow chi when the attacker is a player.
	ShadowChi float64
	// Bonus is added to the skill's base damage, e.g. an NPC's attack power.
	Bonus float64
	// DefenseFactor scales the defender's defense; zero means 1.
	DefenseFactor float64
}

// Hit is the outcome of an Attack.
type Hit struct {
	Skill      string                `json:"skill"`
	Damage     float64               `json:"damage"`
	Dealt      float64               `json:"dealt"`
	Silent     bool                  `json:"silent"`
	Detected   bool                  `json:"detected"`
	Immune     bool                  `json:"immune"`
	Defeated   bool                  `json:"defeated"`
	Effects    []models.StatusEffect `json:"effects,omitempty"`
	DefenderHP float64               `json:"defender_hp"`
}

// Detected reports whether a defender notices a silent art. Only a defender
// at least three tiers above the attacker does.
func Detected(attackerTier, defenderTier int) bool {
	return defenderTier-attackerTier >= detectionGap
}

// Damage computes the damage of a, rounded to two decimals.
func Damage(a Attack) float64 {
	skill := a.skill()
	base := skill.BaseDamage + a.Bonus
	if skill.CostType == "shadow_chi" {
		base += a.ShadowChi * shadowChiScale
	}
	if skill.SilentArt && !Detected(a.Attacker.TierValue(), a.Defender.TierValue()) {
		base += skill.BaseDamage * stealthShare
	}
	def := a.Defender.DefenseValue()
	if a.DefenseFactor > 0 {
		def *= a.DefenseFactor
	}
	effective := math.Max(def-skill.Penetration()*def, 0) * multiplier(a.DefenderBody.DefenseMultiplier)
	dmg := base * multiplier(a.AttackerBody.DamageMultiplier) * 100 / (100 + effective)
	return models.Round2(math.Max(dmg, 0))
}

// Resolve applies a to the defender: damage, then the skill's lingering
// effects. Incorporeal defenders ignore physical skills entirely.
func Resolve(a Attack) Hit {
	skill := a.skill()
	h := Hit{Skill: skill.ID, Silent: skill.SilentArt}
	if skill.SilentArt {
		h.Detected = Detected(a.Attacker.TierValue(), a.Defender.TierValue())
	}
	if n, ok := a.Defender.(*models.NPC); ok && n.Incorporeal() && skill.Physical() {
		h.Immune = true
		h.DefenderHP = a.Defender.CurrentHP()
		return h
	}
	h.Damage = Damage(a)
	h.Dealt = a.Defender.ApplyDamage(h.Damage)
	if a.Defender.IsAlive() {
		h.Effects = ApplySkillEffects(a.Defender, skill)
	}
	h.Defeated = !a.Defender.IsAlive()
	h.DefenderHP = a.Defender.CurrentHP()
	return h
}

func (a Attack) skill() *catalog.Skill {
	if a.Skill == nil {
		return &BasicAttack
	}
	return a.Skill
}

func multiplier(m float64) float64 {
	if m <= 0 {
		return 1
	}
	return m
}

// Cost returns the energy a skill costs a body.
func Cost(skill *catalog.Skill, body catalog.Constitution) float64 {
	switch skill.CostType {
	case "shadow_chi":
		return skill.Cost * multiplier(body.ShadowChiCost)
	case "yuan_qi":
		return skill.Cost * multiplier(body.YuanQiCost)
	case "quintessence":
		return skill.Cost / multiplier(body.QuintessenceRegen)
	}
	return 0
}

// Pay deducts the cost of skill from p, or leaves p untouched and returns
// ErrInsufficientEnergy.
func Pay(p *models.Player, skill *catalog.Skill, body catalog.Constitution) error {
	cost := Cost(skill, body)
	if cost == 0 {
		return nil
	}
	var pool *float64
	switch skill.CostType {
	case "shadow_chi":
		pool = &p.ShadowChi
	case "yuan_qi":
		pool = &p.YuanQi
	case "quintessence":
		pool = &p.Quintessence
	default:
		return nil
	}
	if *pool < cost {
		return fmt.Errorf("%s needs %.0f %s, have %.0f: %w", skill.Name, cost, skill.CostType, *pool, ErrInsufficientEnergy)
	}
	*pool = models.Round2(*pool - cost)
	return nil
}

// Flee rolls an escape: d20 + speed/5 against 10 + pursuer speed/5.
func Flee(r *dice.Roller, speed, pursuit float64) bool {
	return float64(r.D20())+speed/5 >= 10+pursuit/5
}

package combat

import (
	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/models"
)

// Status effect kinds.
const (
	DOT           = "dot"
	Hallucination = "hallucination"
	Berserk       = "berserk"
	QiDeviation   = "qi_deviation"
)

// ApplySkillEffects attaches the lingering effects of skill to target and
// returns the ones added.
func ApplySkillEffects(target models.Combatant, skill *catalog.Skill) []models.StatusEffect {
	var added []models.StatusEffect
	effects := target.StatusEffects()
	for _, e := range skill.Effects {
		if e.Type != DOT || e.Duration <= 0 {
			continue
		}
		se := models.StatusEffect{
			Kind:       DOT,
			Magnitude:  e.DamagePerTurn,
			DamageType: e.DamageType,
			Duration:   e.Duration,
			TurnsLeft:  e.Duration,
		}
		*effects = append(*effects, se)
		added = append(added, se)
	}
	return added
}

// Tick runs one turn of status effects on c: damage over time lands, every
// effect loses a turn and expired ones are dropped. It returns the damage
// taken.
func Tick(c models.Combatant) float64 {
	effects := c.StatusEffects()
	var taken float64
	kept := (*effects)[:0]
	for _, e := range *effects {
		if e.Kind == DOT && c.IsAlive() {
			taken += c.ApplyDamage(e.Magnitude)
		}
		e.TurnsLeft--
		if e.TurnsLeft > 0 {
			kept = append(kept, e)
		}
	}
	*effects = kept
	return models.Round2(taken)
}

package combat

import (
	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/models"
)

const (
	hallucinationAt = 50
	berserkAt       = 75
	deviationAt     = 100

	// Heart demon effects are re-evaluated every turn; two turns keep them
	// alive across the status tick that opens the next turn.
	heartDemonTurns = 2
)

// HeartDemon is the corruption state evaluated at the end of a turn.
type HeartDemon struct {
	Hallucinating bool    `json:"hallucinating"`
	Berserk       bool    `json:"berserk"`
	Deviation     bool    `json:"qi_deviation"`
	WillpowerLost float64 `json:"willpower_lost,omitempty"`
}

// EvaluateHeartDemon sets or clears the corruption effects on p. A
// hallucinating cultivator loses willpower; qi deviation kills.
func EvaluateHeartDemon(p *models.Player, t config.HeartDemon) HeartDemon {
	var hd HeartDemon
	if p.Corruption >= deviationAt {
		hd.Deviation = true
		p.SetEffect(models.StatusEffect{Kind: QiDeviation, Magnitude: p.Corruption, TurnsLeft: heartDemonTurns})
		p.HP = 0
		p.Dead = true
		return hd
	}

	drop := func(kind string) {
		for i := range p.Effects {
			if p.Effects[i].Kind == kind {
				p.Effects[i].TurnsLeft = 0
			}
		}
	}
	if p.Corruption >= berserkAt {
		hd.Berserk = true
		p.SetEffect(models.StatusEffect{Kind: Berserk, Magnitude: t.BerserkDefensePenalty, TurnsLeft: heartDemonTurns})
	} else {
		drop(Berserk)
	}
	if p.Corruption >= hallucinationAt {
		hd.Hallucinating = true
		p.SetEffect(models.StatusEffect{Kind: Hallucination, Magnitude: t.HallucinationWillpowerDecay, TurnsLeft: heartDemonTurns})
		lost := models.Round2(p.Willpower * t.HallucinationWillpowerDecay)
		p.Willpower = models.Round2(p.Willpower - lost)
		hd.WillpowerLost = lost
	} else {
		drop(Hallucination)
	}
	p.PurgeEffects()
	return hd
}

// DefenseFactor is the multiplier a berserk cultivator applies to defense.
func DefenseFactor(p *models.Player) float64 {
	for _, e := range p.Effects {
		if e.Kind == Berserk && e.TurnsLeft > 0 {
			return 1 - e.Magnitude
		}
	}
	return 1
}

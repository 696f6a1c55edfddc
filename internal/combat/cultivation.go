package combat

import (
	"math"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/models"
)

const (
	xpPerRank         = 20
	impurity          = 0.3
	betrayalWeight    = 5
	maxTier           = 9
	regenShare        = 0.05
	restShare         = 0.2
	qiPerRank         = 10
	maxCorruption     = 100
	brokenWillPenalty = 100
)

// Absorption is what a cultivator takes from a fallen foe.
type Absorption struct {
	XP         float64 `json:"xp"`
	Corruption float64 `json:"corruption"`
}

// Absorb draws the cultivation of a defeated rank-victimRank foe into p.
func Absorb(p *models.Player, victimRank int, body catalog.Constitution) Absorption {
	xp := float64(max(victimRank, 1) * xpPerRank)
	p.XP += xp
	before := p.Corruption
	UpdateCorruption(p, xp, body)
	return Absorption{XP: xp, Corruption: models.Round2(p.Corruption - before)}
}

// UpdateCorruption adds the taint of absorbed energy and past betrayals,
// resisted by willpower and constitution. A broken will takes the maximum.
func UpdateCorruption(p *models.Player, absorbed float64, body catalog.Constitution) {
	if p.Willpower <= 0 {
		p.Corruption = math.Min(p.Corruption+brokenWillPenalty, maxCorruption)
		return
	}
	gain := (absorbed*impurity + float64(p.Betrayals*betrayalWeight)) / p.Willpower
	gain *= 1 - body.CorruptionResistance/100
	p.Corruption = models.Round2(math.Max(0, math.Min(p.Corruption+gain, maxCorruption)))
}

// Breakthrough reports a tier reached by TierUp.
type Breakthrough struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Name   string `json:"name"`
	CanFly bool   `json:"can_fly"`
}

// TierUp advances p while its xp covers the cost of the next tier. tiers
// looks up a tier's data; a missing tier stops the climb.
func TierUp(p *models.Player, tiers func(int) *catalog.Tier) []Breakthrough {
	var out []Breakthrough
	for p.Tier < maxTier {
		cur := tiers(p.Tier)
		if cur == nil || cur.XPToNext <= 0 || p.XP < cur.XPToNext {
			break
		}
		next := tiers(p.Tier + 1)
		if next == nil {
			break
		}
		p.XP -= cur.XPToNext
		from := p.Tier
		p.Tier = next.Tier
		p.MaxHP = models.Round2(p.MaxHP * multiplier(next.MaxHPMultiplier))
		q := multiplier(next.QiMultiplier)
		p.MaxQuintessence = models.Round2(p.MaxQuintessence * q)
		p.MaxShadowChi = models.Round2(p.MaxShadowChi * q)
		p.MaxYuanQi = models.Round2(p.MaxYuanQi * q)
		p.HP = p.MaxHP
		p.Quintessence = p.MaxQuintessence
		p.ShadowChi = p.MaxShadowChi
		p.YuanQi = p.MaxYuanQi
		p.CanFly = p.CanFly || next.CanFly
		if next.PhysicsType != "" {
			p.PhysicsType = next.PhysicsType
		}
		out = append(out, Breakthrough{From: from, To: p.Tier, Name: next.Name, CanFly: p.CanFly})
	}
	return out
}

// ApplyConstitution scales a new character's base hp and defense by its
// body and fills the hp pool.
func ApplyConstitution(p *models.Player, body catalog.Constitution) {
	p.MaxHP = models.Round2(p.MaxHP * multiplier(body.HPMultiplier))
	p.HP = p.MaxHP
	p.Defense = models.Round2(p.Defense * multiplier(body.DefenseMultiplier))
}

// Regenerate restores 5% of max hp, scaled by the body's regeneration.
func Regenerate(p *models.Player, body catalog.Constitution) float64 {
	if !p.IsAlive() || p.HP >= p.MaxHP {
		return 0
	}
	before := p.HP
	p.Heal(models.Round2(p.MaxHP * regenShare * multiplier(body.QuintessenceRegen)))
	return models.Round2(p.HP - before)
}

// Rest restores a fifth of max hp.
func Rest(p *models.Player) float64 {
	before := p.HP
	p.Heal(models.Round2(p.MaxHP * restShare))
	return models.Round2(p.HP - before)
}

// Meditate gathers yuan qi: 10 per tier scaled by the moon, up to the cap.
func Meditate(p *models.Player, moon float64) float64 {
	if moon <= 0 {
		moon = 1
	}
	before := p.YuanQi
	p.YuanQi = models.Round2(math.Min(p.YuanQi+float64(qiPerRank*p.Tier)*moon, p.MaxYuanQi))
	return models.Round2(p.YuanQi - before)
}

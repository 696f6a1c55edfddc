package generators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/models"
)

// EpiphanyAt is the number of repetitions of one action that inspires a
// new skill.
const EpiphanyAt = 5

// Practice counts one more use of actionKey by p and reports whether this
// use is the one that triggers an epiphany.
func Practice(p *models.Player, actionKey string) bool {
	if actionKey == "" {
		return false
	}
	if p.SkillUsage == nil {
		p.SkillUsage = map[string]int{}
	}
	p.SkillUsage[actionKey]++
	return p.SkillUsage[actionKey] == EpiphanyAt
}

type skillPrompt struct {
	PlayerName   string
	Tier         int
	Constitution string
	Action       string
	Count        int
	Known        []string
	MinDamage    float64
	MaxDamage    float64
	Simple       bool
}

// Epiphany proposes a skill born from the repeated action. base is the
// skill the action used, if any; its damage type carries over to the
// fallback skill.
func (g *Generator) Epiphany(ctx context.Context, p *models.Player, actionKey, action string, base *catalog.Skill) catalog.Skill {
	lo, hi := epiphanyDamage(p.Tier, base)
	data := &skillPrompt{
		PlayerName:   p.Name,
		Tier:         p.Tier,
		Constitution: orString(p.ConstitutionType, "Mortal"),
		Action:       orString(action, actionKey),
		Count:        EpiphanyAt,
		MinDamage:    lo,
		MaxDamage:    hi,
	}
	for _, id := range p.LearnedSkills {
		if s := g.cat.Skill(id); s != nil {
			data.Known = append(data.Known, s.Name)
		}
	}

	var s catalog.Skill
	if err := g.ask(ctx, "skill", data, func() { data.Simple = true }, &s); err != nil {
		g.logger.Warn("epiphany fell back", "player_id", p.ID, "action", actionKey, "err", err)
		return fallbackSkill(actionKey, base, lo)
	}
	s.ID = catalog.Slug(s.Name)
	s.BaseDamage = max(lo, min(s.BaseDamage, hi))
	s.Generated = true
	for i := range s.Effects {
		if s.Effects[i].Type == "dot" && s.Effects[i].Duration <= 0 {
			s.Effects[i].Duration = 3
		}
	}
	return s
}

func epiphanyDamage(tier int, base *catalog.Skill) (lo, hi float64) {
	lo = float64(10 + 5*tier)
	hi = float64(20 + 10*tier)
	if base != nil && base.BaseDamage*1.5 > lo {
		lo = min(base.BaseDamage*1.5, hi)
	}
	return lo, hi
}

func fallbackSkill(actionKey string, base *catalog.Skill, damage float64) catalog.Skill {
	label := actionKey
	if i := strings.LastIndexByte(label, ':'); i >= 0 {
		label = label[i+1:]
	}
	label = strings.ReplaceAll(label, "_", " ")
	s := catalog.Skill{
		Name:        "Epifania de " + label,
		Description: fmt.Sprintf("Uma técnica nascida de repetir %s até entender sua essência.", label),
		CostType:    "quintessence",
		Cost:        10,
		BaseDamage:  damage,
		DamageType:  "physical",
		Generated:   true,
	}
	if base != nil {
		s.DamageType = orString(base.DamageType, "physical")
		s.SilentArt = base.SilentArt
		if base.CostType != "" && base.CostType != "none" {
			s.CostType = base.CostType
		}
	}
	s.ID = catalog.Slug(s.Name)
	return s
}

// LearnEpiphany adds the skill to the catalog and teaches it to p. A skill
// with the same id already in the catalog is taught as is.
func (g *Generator) LearnEpiphany(p *models.Player, s catalog.Skill) (string, error) {
	if s.ID == "" {
		s.ID = catalog.Slug(s.Name)
	}
	if err := g.cat.AppendSkill(s); err != nil && !errors.Is(err, catalog.ErrDuplicate) {
		return "", fmt.Errorf("save skill %s: %w", s.ID, err)
	}
	p.LearnSkill(s.ID)
	return s.ID, nil
}

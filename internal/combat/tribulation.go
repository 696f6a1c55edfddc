package combat

import (
	"fmt"
	"math"
	"strings"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

// SpiritStoneID is the inventory id of spirit stones.
const SpiritStoneID = "spirit_stone"

const heavenDefier = "Heaven Defier"

var tribulationChance = map[string]float64{
	"mortal":     0.10,
	"procedural": 0.30,
	"chimera":    0.50,
	"godfiend":   0.70,
	"taboo":      0.90,
}

var tribulationPills = []string{"Tribulation Pill", "Heaven Defying Pill"}

// Lightning is a class of heavenly lightning.
type Lightning struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
	MaxTier    int     `json:"-"`
}

var lightnings = []Lightning{
	{"Raio Menor", 0.8, 3},
	{"Raio Celestial", 1.0, 6},
	{"Raio da Aniquilação", 1.5, 8},
	{"Raio do Julgamento", 2.0, math.MaxInt},
}

// LightningFor returns the lightning class that strikes at tier.
func LightningFor(tier int) Lightning {
	for _, l := range lightnings {
		if tier <= l.MaxTier {
			return l
		}
	}
	return lightnings[len(lightnings)-1]
}

// Category sorts a constitution name into a tribulation category.
func Category(constitution string) string {
	switch c := strings.TrimSpace(constitution); {
	case strings.HasPrefix(c, "Godfiend"):
		return "godfiend"
	case strings.HasPrefix(c, "Taboo"):
		return "taboo"
	case strings.HasPrefix(c, "Chimera"):
		return "chimera"
	case c == "", strings.HasPrefix(c, "Mortal"), strings.HasPrefix(c, "Human"):
		return "mortal"
	}
	return "procedural"
}

// TribulationChance is the chance that a breakthrough to tier calls down
// the heavens on a body of the given constitution.
func TribulationChance(constitution string, tier int) float64 {
	chance := tribulationChance[Category(constitution)]
	if tier >= 8 {
		chance = math.Min(1, chance+0.20)
	}
	return chance
}

// Tribulation is the outcome of a heavenly tribulation.
type Tribulation struct {
	Tier        int       `json:"tier"`
	Lightning   Lightning `json:"lightning"`
	RawDamage   float64   `json:"raw_damage"`
	DefenseRoll float64   `json:"defense_roll"`
	Damage      float64   `json:"damage"`
	Survived    bool      `json:"survived"`

	SpiritStones int     `json:"spirit_stones,omitempty"`
	Pill         string  `json:"pill,omitempty"`
	HPBonus      float64 `json:"hp_bonus,omitempty"`
	QiBonus      float64 `json:"qi_bonus,omitempty"`
	Title        string  `json:"title,omitempty"`
}

// MaybeTribulation rolls whether p's breakthrough triggers a tribulation and
// runs it. It returns nil when the heavens stay quiet.
func MaybeTribulation(p *models.Player, r *dice.Roller) *Tribulation {
	if !r.Chance(TribulationChance(p.ConstitutionType, p.Tier)) {
		return nil
	}
	t := Strike(p, r)
	return &t
}

// Strike runs a tribulation on p. Lightning damage is reduced by a defense
// roll of d20 + quintessence + yuan qi/2. A survivor is rewarded with spirit
// stones, a chance of a rare pill, permanent hp and qi and, from tier 7, a
// title. Failure kills.
func Strike(p *models.Player, r *dice.Roller) Tribulation {
	l := LightningFor(p.Tier)
	t := Tribulation{
		Tier:        p.Tier,
		Lightning:   l,
		RawDamage:   math.Floor(float64(p.Tier*100) * l.Multiplier),
		DefenseRoll: models.Round2(float64(r.D20()) + p.Quintessence + p.YuanQi/2),
	}
	t.Damage = math.Max(0, t.RawDamage-t.DefenseRoll)
	p.ApplyDamage(t.Damage)
	t.Survived = p.IsAlive()
	if !t.Survived {
		p.Dead = true
		return t
	}

	t.SpiritStones = 100 * p.Tier
	p.AddItem(SpiritStoneID, t.SpiritStones)
	if r.Chance(0.50 + float64(max(0, p.Tier-5))*0.10) {
		t.Pill = dice.Pick(r, tribulationPills)
		p.AddItem(pillID(t.Pill), 1)
	}
	t.HPBonus = math.Floor(p.MaxHP * 0.10)
	t.QiBonus = math.Floor(p.MaxYuanQi * 0.15)
	p.MaxHP += t.HPBonus
	p.HP += t.HPBonus
	p.MaxYuanQi += t.QiBonus
	p.YuanQi += t.QiBonus
	if p.Tier >= 7 {
		t.Title = heavenDefier
		if !hasTitle(p, heavenDefier) {
			p.Titles = append(p.Titles, heavenDefier)
		}
	}
	return t
}

func pillID(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

func hasTitle(p *models.Player, title string) bool {
	for _, t := range p.Titles {
		if t == title {
			return true
		}
	}
	return false
}

// Summary is a one-line account of the tribulation.
func (t Tribulation) Summary() string {
	if !t.Survived {
		return fmt.Sprintf("%s caiu sobre o tier %d e causou %.0f de dano: o cultivador pereceu", t.Lightning.Name, t.Tier, t.Damage)
	}
	return fmt.Sprintf("%s caiu sobre o tier %d e causou %.0f de dano: o cultivador sobreviveu", t.Lightning.Name, t.Tier, t.Damage)
}

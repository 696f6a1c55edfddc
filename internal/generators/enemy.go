package generators

import (
	"context"
	"errors"
	"fmt"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

// SpeciesDefaults are the speech and temperament a species starts with.
type SpeciesDefaults struct {
	CanSpeak   bool
	Aggression int
	Courage    int
}

var speciesDefaults = map[string]SpeciesDefaults{
	"human":     {CanSpeak: true, Aggression: 30, Courage: 50},
	"beast":     {CanSpeak: false, Aggression: 70, Courage: 40},
	"spirit":    {CanSpeak: true, Aggression: 20, Courage: 60},
	"demon":     {CanSpeak: true, Aggression: 80, Courage: 70},
	"undead":    {CanSpeak: false, Aggression: 90, Courage: 100},
	"construct": {CanSpeak: false, Aggression: 50, Courage: 100},
}

// Defaults returns the defaults of species, human for unknown species.
func Defaults(species string) SpeciesDefaults {
	if d, ok := speciesDefaults[species]; ok {
		return d
	}
	return speciesDefaults["human"]
}

var speciesPrompts = map[string]string{
	"beast":  "uma besta selvagem (animal mágico) que NÃO fala",
	"demon":  "um demônio que pode falar e é inteligente",
	"undead": "um morto-vivo sem fala (zumbi, esqueleto, etc)",
	"spirit": "um espírito elemental que pode ou não falar",
}

// EnemyRequest describes the enemy to create.
type EnemyRequest struct {
	Tier     int
	Biome    string
	Species  string
	Location string
}

// Enemy is a proposed hostile creature. Drops reference item ids; items
// the catalog does not know yet are listed in NewItems.
type Enemy struct {
	NPC       *models.NPC
	Creature  catalog.Creature
	Drops     []catalog.LootEntry
	NewItems  []catalog.Item
	Generated bool
}

type enemyReply struct {
	Name        string   `json:"name"`
	Gender      string   `json:"gender"`
	Description string   `json:"description"`
	Personality []string `json:"personality"`
	Stats       struct {
		HP      float64 `json:"hp"`
		Defense float64 `json:"defense"`
		Attack  float64 `json:"attack"`
		Speed   float64 `json:"speed"`
		Rank    int     `json:"rank"`
	} `json:"stats"`
	Aggression *int `json:"aggression"`
	Courage    *int `json:"courage"`
	Drops      []struct {
		ItemName    string  `json:"itemName"`
		Chance      float64 `json:"chance"`
		QuantityMin int     `json:"quantity_min"`
		QuantityMax int     `json:"quantity_max"`
	} `json:"drops"`
}

type enemyPrompt struct {
	EnemyRequest
	SpeciesPrompt string
	Known         []string
	Simple        bool
}

// Enemy proposes a hostile creature for the given tier and biome. When the
// model fails it picks a known creature of the biome, or builds a plain one.
func (g *Generator) Enemy(ctx context.Context, req EnemyRequest, r *dice.Roller) *Enemy {
	req.Tier = clampInt(req.Tier, 1, 9)
	if req.Species == "" {
		req.Species = "beast"
	}
	data := &enemyPrompt{EnemyRequest: req, SpeciesPrompt: speciesPrompt(req.Species)}
	known := g.cat.CreaturesIn(req.Biome, 9)
	for _, c := range known {
		data.Known = append(data.Known, c.Name)
	}

	var reply enemyReply
	if err := g.ask(ctx, "enemy", data, func() { data.Simple = true }, &reply); err != nil {
		g.logger.Warn("enemy generation fell back", "biome", req.Biome, "tier", req.Tier, "err", err)
		return g.fallbackEnemy(req, r)
	}
	return g.buildEnemy(req, reply)
}

func speciesPrompt(species string) string {
	if p, ok := speciesPrompts[species]; ok {
		return p
	}
	return "uma criatura mágica"
}

func (g *Generator) buildEnemy(req EnemyRequest, reply enemyReply) *Enemy {
	def := Defaults(req.Species)
	rank := reply.Stats.Rank
	if rank == 0 {
		rank = req.Tier
	}
	n := models.NewNPC(reply.Name, req.Species, req.Location)
	n.Gender = orString(reply.Gender, "unknown")
	n.CanSpeak = def.CanSpeak
	n.Description = reply.Description
	n.Personality = append([]string{}, reply.Personality...)
	n.Rank = rank
	n.MaxHP = orDefault(reply.Stats.HP, 100)
	n.HP = n.MaxHP
	n.Defense = orDefault(reply.Stats.Defense, 10)
	n.Attack = orDefault(reply.Stats.Attack, 10)
	n.Speed = orDefault(reply.Stats.Speed, 10)
	n.Aggression = intOr(reply.Aggression, def.Aggression)
	n.Courage = intOr(reply.Courage, def.Courage)
	n.EmotionalState = models.Hostile
	n.Role = "enemy"
	n.MonsterID = catalog.MonsterID(reply.Name)
	n.Generated = true

	e := &Enemy{NPC: n, Generated: true}
	e.Creature = catalog.Creature{
		ID:          n.MonsterID,
		Name:        n.Name,
		Description: n.Description,
		Species:     req.Species,
		Biome:       req.Biome,
		Rank:        n.Rank,
		HP:          n.MaxHP,
		Defense:     n.Defense,
		Attack:      n.Attack,
		Generated:   true,
	}
	for _, d := range reply.Drops {
		id := g.itemFor(e, d.ItemName, req.Tier)
		lo := max(d.QuantityMin, 1)
		e.Drops = append(e.Drops, catalog.LootEntry{
			ItemID:      id,
			Chance:      d.Chance,
			QuantityMin: lo,
			QuantityMax: max(d.QuantityMax, lo),
		})
	}
	return e
}

// itemFor returns the id of the item called name, allocating a new material
// in e when the catalog does not know it.
func (g *Generator) itemFor(e *Enemy, name string, tier int) string {
	if it := g.cat.ItemByName(name); it != nil {
		return it.ID
	}
	id := catalog.Slug(name)
	if g.cat.Item(id) != nil {
		return id
	}
	for _, it := range e.NewItems {
		if it.ID == id {
			return id
		}
	}
	e.NewItems = append(e.NewItems, catalog.Item{
		ID:          id,
		Name:        name,
		Category:    "material",
		Tier:        tier,
		Value:       100,
		Description: fmt.Sprintf("Um material raro dropado por uma criatura: %s.", name),
		Generated:   true,
	})
	return id
}

var fallbackNames = map[string]string{
	"beast":     "Besta Selvagem",
	"demon":     "Demônio Menor",
	"undead":    "Cadáver Errante",
	"spirit":    "Espírito Inquieto",
	"construct": "Golem de Pedra",
	"human":     "Cultivador Renegado",
}

func (g *Generator) fallbackEnemy(req EnemyRequest, r *dice.Roller) *Enemy {
	var pool []*catalog.Creature
	for _, c := range g.cat.CreaturesIn(req.Biome, req.Tier) {
		if c.Species == req.Species || req.Species == "beast" && c.Species == "" {
			pool = append(pool, c)
		}
	}
	if len(pool) > 0 {
		c := dice.Pick(r, pool)
		return &Enemy{NPC: FromCreature(c, req.Location), Creature: *c}
	}
	def := Defaults(req.Species)

	name := fallbackNames[req.Species]
	if name == "" {
		name = fallbackNames["beast"]
	}
	n := models.NewNPC(name, req.Species, req.Location)
	n.CanSpeak = def.CanSpeak
	n.Rank = req.Tier
	n.MaxHP = float64(50 + 30*req.Tier)
	n.HP = n.MaxHP
	n.Defense = float64(5 + 5*req.Tier)
	n.Attack = float64(8 + 4*req.Tier)
	n.Aggression = def.Aggression
	n.Courage = def.Courage
	n.EmotionalState = models.Hostile
	n.Role = "enemy"
	n.MonsterID = catalog.MonsterID(name)
	return &Enemy{NPC: n}
}

// FromCreature builds a hostile NPC from a bestiary entry.
func FromCreature(c *catalog.Creature, location string) *models.NPC {
	species := orString(c.Species, "beast")
	def := Defaults(species)
	n := models.NewNPC(c.Name, species, location)
	n.CanSpeak = def.CanSpeak
	n.Description = c.Description
	n.Rank = max(c.Rank, 1)
	n.MaxHP = orDefault(c.HP, 100)
	n.HP = n.MaxHP
	n.Defense = orDefault(c.Defense, 10)
	n.Attack = orDefault(c.Attack, 10)
	n.Aggression = def.Aggression
	n.Courage = def.Courage
	n.EmotionalState = models.Hostile
	n.Role = "enemy"
	n.MonsterID = c.ID
	return n
}

// SaveEnemy appends a generated enemy to the catalogs: new items first,
// then the loot table, then the bestiary. Fallback enemies are not saved.
func (g *Generator) SaveEnemy(e *Enemy) error {
	if !e.Generated {
		return nil
	}
	for _, it := range e.NewItems {
		if err := g.cat.AppendItem(it); err != nil && !errors.Is(err, catalog.ErrDuplicate) {
			return fmt.Errorf("save item %s: %w", it.ID, err)
		}
	}
	if len(e.Drops) > 0 {
		if err := g.cat.AppendLoot(e.Creature.Name, e.Drops); err != nil {
			return fmt.Errorf("save loot of %s: %w", e.Creature.Name, err)
		}
	}
	if err := g.cat.AppendCreature(e.Creature); err != nil && !errors.Is(err, catalog.ErrDuplicate) {
		return fmt.Errorf("save creature %s: %w", e.Creature.Name, err)
	}
	return nil
}

func orString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return clampInt(*p, 0, 100)
}

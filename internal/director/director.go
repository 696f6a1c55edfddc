// Package director populates scenes. Before a turn is planned it looks at
// where the player stands and how many characters are already there, and
// brings in new ones that fit the place and the hour.
package director

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/simulation"
	"github.com/daicherr/orbis/internal/store"
)

var roleSpecies = map[string]string{
	"beast":             "beast",
	"ancient_beast":     "beast",
	"poison_creature":   "beast",
	"treasure_guardian": "beast",
	"demon":             "demon",
	"undead":            "undead",
	"spirit":            "spirit",
	"golem":             "construct",
}

// SpeciesOf returns the species a role is played by.
func SpeciesOf(role string) string {
	if s, ok := roleSpecies[role]; ok {
		return s
	}
	return "human"
}

// Director decides who shows up where.
type Director struct {
	gen    *generators.Generator
	cat    *catalog.Catalog
	logger *slog.Logger
}

func New(gen *generators.Generator, cat *catalog.Catalog, logger *slog.Logger) *Director {
	if logger == nil {
		logger = slog.Default()
	}
	return &Director{gen: gen, cat: cat, logger: logger}
}

// SpawnRequest describes the scene about to be played.
type SpawnRequest struct {
	Location  string
	Place     *models.Location
	TimeOfDay clock.TimeOfDay
	Player    *models.Player
	HasQuest  bool
}

// SpawnResult lists the characters brought into the scene.
type SpawnResult struct {
	Profile Profile
	Target  int
	Spawned []*models.NPC
}

// Spawn fills the scene up to a population drawn for its profile and hour.
// New characters are persisted through q right away.
func (d *Director) Spawn(ctx context.Context, q *store.Queries, req SpawnRequest, r *dice.Roller) (*SpawnResult, error) {
	present, err := q.NPCsAt(ctx, req.Location)
	if err != nil {
		return nil, fmt.Errorf("npcs at %s: %w", req.Location, err)
	}
	current := 0
	names := make([]string, 0, len(present))
	for _, n := range present {
		if n.Alive {
			current++
			names = append(names, n.Name)
		}
	}

	words := []string{req.Location}
	biome := ""
	if req.Place != nil {
		words = append(words, req.Place.Type, req.Place.Biome, req.Place.Description)
		biome = req.Place.Biome
	}
	profile := Classify(words...)
	lo, hi := profile.Bounds(req.TimeOfDay)
	res := &SpawnResult{Profile: profile, Target: r.Between(lo, hi)}
	toSpawn := max(0, res.Target-current)
	if toSpawn == 0 {
		return res, nil
	}

	tier := 1
	if req.Player != nil {
		tier = max(req.Player.Tier, 1)
	}
	questGiver := !req.HasQuest && r.Chance(profile.QuestChance())

	var region *models.RegionEcology
	if regions, err := q.ListEcology(ctx); err == nil {
		for _, reg := range regions {
			if reg.Region == req.Location || (biome != "" && reg.Region == biome) {
				region = reg
				break
			}
		}
	}

	for i := 0; i < toSpawn; i++ {
		n := d.slot(ctx, profile, req.Location, biome, tier, region, names, r)
		if n == nil {
			continue
		}
		if questGiver && n.CanSpeak && n.EmotionalState != models.Hostile {
			n.QuestGiver = true
			questGiver = false
		}
		if err := q.CreateNPC(ctx, n); err != nil {
			return nil, fmt.Errorf("create npc %s: %w", n.Name, err)
		}
		names = append(names, n.Name)
		res.Spawned = append(res.Spawned, n)
	}
	d.logger.Info("scene populated",
		"location", req.Location,
		"profile", profile.Name,
		"present", current,
		"target", res.Target,
		"spawned", len(res.Spawned))
	return res, nil
}

func (d *Director) slot(ctx context.Context, p Profile, location, biome string, tier int, region *models.RegionEcology, present []string, r *dice.Roller) *models.NPC {
	if r.Chance(p.HostileChance) {
		role := "beast"
		if roles := p.HostileRoles(); len(roles) > 0 {
			role = dice.Pick(r, roles)
		}
		return d.hostile(ctx, role, location, biome, tier, region, r)
	}
	req := generators.NPCRequest{Location: location, Present: present}
	if roles := p.FriendlyRoles(); len(roles) > 0 {
		req.Role = dice.Pick(r, roles)
	}
	if req.Role == "" || req.Role == "wanderer" {
		req.Neutral = true
	}
	return d.gen.NPC(ctx, req, r)
}

func (d *Director) hostile(ctx context.Context, role, location, biome string, tier int, region *models.RegionEcology, r *dice.Roller) *models.NPC {
	species := SpeciesOf(role)
	if species == "beast" && region != nil {
		if name := simulation.Encounter(region, r); name != "" {
			if c := d.cat.CreatureByName(name); c != nil {
				return generators.FromCreature(c, location)
			}
		}
	}
	e := d.gen.Enemy(ctx, generators.EnemyRequest{
		Tier:     tier,
		Biome:    orBiome(biome, location),
		Species:  species,
		Location: location,
	}, r)
	if err := d.gen.SaveEnemy(e); err != nil {
		d.logger.Warn("save generated enemy", "name", e.NPC.Name, "err", err)
	}
	if species == "human" {
		e.NPC.Role = role
	}
	return e.NPC
}

func orBiome(biome, location string) string {
	if biome != "" {
		return biome
	}
	return location
}

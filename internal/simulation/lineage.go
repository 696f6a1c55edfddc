package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

// Event types of the lineage step.
const (
	NPCDeath         = "npc_death"
	VendettaAssigned = "vendetta_assigned"
	AvengerSpawned   = "avenger_spawned"
)

const (
	vendettaRank      = 3
	highRankSpawn     = 0.3
	lowRankSpawn      = 0.1
	maxRank           = 9
	avengerFallbackAt = "Cidade Imperial"
)

var relatives = []struct {
	title  string
	bonus  int
	weight int
}{
	{"Pai", 2, 3},
	{"Mãe", 2, 2},
	{"Irmão mais velho", 1, 4},
	{"Irmã mais velha", 1, 3},
	{"Mestre", 3, 2},
	{"Discípulo sênior", 0, 5},
	{"Tio", 1, 3},
	{"Primo", 0, 4},
}

// DeathEvent records that killerID killed victim. The lineage step of the
// next tick reads it.
func DeathEvent(victim *models.NPC, killerID int64, turn int) *models.WorldEvent {
	e := &models.WorldEvent{
		Type:        NPCDeath,
		Description: fmt.Sprintf("%s foi morto!", victim.Name),
		Turn:        turn,
		Location:    victim.Location,
		Cause:       fmt.Sprintf("player:%d", killerID),
		Effects: map[string]any{
			"victim_id":   victim.ID,
			"victim_name": victim.Name,
			"victim_rank": victim.Rank,
			"killer_id":   killerID,
		},
		Active: true,
	}
	if victim.Rank >= vendettaRank {
		e.PublicDescription = fmt.Sprintf("Rumores da morte de %s se espalham...", victim.Name)
	}
	return e
}

// lineageStep handles unprocessed deaths: kin of an important victim swear
// vengeance and a vengeful relative may appear. Each death event is marked
// inactive once handled.
func lineageStep(ctx context.Context, q *store.Queries, deaths []*models.WorldEvent, r *dice.Roller, turn int) ([]*models.WorldEvent, error) {
	sort.Slice(deaths, func(i, j int) bool { return deaths[i].ID < deaths[j].ID })

	var out []*models.WorldEvent
	for _, d := range deaths {
		if d.Type != NPCDeath || !d.Active {
			continue
		}
		victimID := int64(number(d.Effects["victim_id"]))
		killerID := int64(number(d.Effects["killer_id"]))
		rank := int(number(d.Effects["victim_rank"]))
		name, _ := d.Effects["victim_name"].(string)

		victim, err := q.GetNPC(ctx, victimID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load victim %d: %w", victimID, err)
		}

		if rank >= vendettaRank && victim != nil && len(victim.Kin) > 0 {
			kin, err := q.NPCsByIDs(ctx, victim.Kin)
			if err != nil {
				return nil, fmt.Errorf("load kin of %d: %w", victimID, err)
			}
			for _, k := range kin {
				if !k.IsAlive() || k.VendettaTarget != nil {
					continue
				}
				target := killerID
				k.VendettaTarget = &target
				k.EmotionalState = models.Hostile
				if err := q.SaveNPC(ctx, k); err != nil {
					return nil, fmt.Errorf("save avenger %d: %w", k.ID, err)
				}
				out = append(out, &models.WorldEvent{
					Type:        VendettaAssigned,
					Description: fmt.Sprintf("%s jurou vingança pela morte de %s!", k.Name, name),
					Turn:        turn,
					Location:    k.Location,
					Effects:     map[string]any{"avenger_id": k.ID, "target_id": killerID, "victim_name": name},
					Active:      true,
				})
			}
		}

		chance := lowRankSpawn
		if rank >= vendettaRank {
			chance = highRankSpawn
		}
		if r.Chance(chance) {
			e, err := spawnAvenger(ctx, q, d, victim, name, rank, killerID, r, turn)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}

		d.Active = false
		if err := q.SaveEvent(ctx, d); err != nil {
			return nil, fmt.Errorf("close death event %d: %w", d.ID, err)
		}
	}
	return out, nil
}

func spawnAvenger(ctx context.Context, q *store.Queries, death *models.WorldEvent, victim *models.NPC, name string, rank int, killerID int64, r *dice.Roller, turn int) (*models.WorldEvent, error) {
	weights := make([]int, len(relatives))
	for i, rel := range relatives {
		weights[i] = rel.weight
	}
	rel := relatives[r.WeightedIndex(weights)]
	newRank := min(maxRank, rank+rel.bonus)

	location := death.Location
	if location == "" {
		location = avengerFallbackAt
	}
	species := "human"
	if victim != nil && victim.Species != "" {
		species = victim.Species
	}
	n := models.NewNPC(fmt.Sprintf("%s de %s", rel.title, name), species, location)
	n.Rank = newRank
	n.MaxHP = float64(50 + 50*newRank)
	n.HP = n.MaxHP
	n.Attack = float64(10 * newRank)
	n.Defense = float64(5 * newRank)
	n.Personality = []string{"vengeful", "ruthless", "relentless"}
	n.EmotionalState = models.Hostile
	n.Aggression = 90
	n.Role = "avenger"
	target := killerID
	n.VendettaTarget = &target
	if victim != nil {
		n.Kin = []int64{victim.ID}
	}
	if err := q.CreateNPC(ctx, n); err != nil {
		return nil, fmt.Errorf("create avenger: %w", err)
	}
	return &models.WorldEvent{
		Type:        AvengerSpawned,
		Description: fmt.Sprintf("%s (Rank %d) surgiu buscando vingança pela morte de %s!", n.Name, newRank, name),
		Turn:        turn,
		Location:    location,
		Effects:     map[string]any{"avenger_id": n.ID, "avenger_rank": newRank, "target_id": killerID, "victim_name": name},
		Active:      true,
	}, nil
}

// number reads a JSON number that may have decoded as float64 or stayed an int.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

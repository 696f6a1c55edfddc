package simulation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

const (
	battleChance   = 0.30
	warChance      = 0.05
	allianceChance = 0.10
	captureChance  = 0.05

	weakPower      = 300
	capturePower   = 400
	minPower       = 50
	treasuryGrowth = 1.05
	treasuryCap    = 50000
)

// Event types emitted by the faction turn.
const (
	FactionBattle     = "faction_battle"
	WarDeclared       = "war_declared"
	AllianceFormed    = "alliance_formed"
	TerritoryCaptured = "territory_captured"
)

// Pairs with standing tension that may go to war.
var tensions = [][2]string{
	{"Império Central", "Lua Sombria"},
	{"Monastério da Aurora", "Lua Sombria"},
	{"Clã Luo", "Guilda de Piratas"},
	{"Seita Arcaica", "Império Central"},
}

// Natural partners a weakened faction turns to.
var alliances = [][2]string{
	{"Clã Luo", "Império Central"},
	{"Nômades do Deserto", "Guilda de Piratas"},
}

// Contested territories and the locations whose owners may take them.
var contested = []struct {
	name     string
	adjacent []string
}{
	{"Floresta Nublada", []string{"Cidade Imperial", "Vila Crisântemos", "Cavernas Cristalinas"}},
	{"Vale dos Mil Picos", []string{"Montanha Arcaica", "Cidade Imperial"}},
}

// factionTurn runs battles, war declarations, alliances, territory changes
// and treasury growth over factions, which must be sorted by name.
func factionTurn(factions []*models.Faction, r *dice.Roller, turn int) []*models.WorldEvent {
	byName := make(map[string]*models.Faction, len(factions))
	for _, f := range factions {
		byName[f.Name] = f
	}

	var events []*models.WorldEvent
	events = append(events, battles(factions, r, turn)...)

	for _, p := range tensions {
		a, b := byName[p[0]], byName[p[1]]
		if a == nil || b == nil || a.Relation(b.Name) == models.AtWar {
			continue
		}
		if !r.Chance(warChance) {
			continue
		}
		a.SetRelation(b.Name, models.AtWar)
		b.SetRelation(a.Name, models.AtWar)
		events = append(events, &models.WorldEvent{
			Type:              WarDeclared,
			Description:       fmt.Sprintf("%s declarou guerra contra %s!", a.Name, b.Name),
			PublicDescription: fmt.Sprintf("Tambores de guerra ecoam entre %s e %s.", a.Name, b.Name),
			Turn:              turn,
			Cause:             a.Name,
			Effects:           map[string]any{"factions": []string{a.Name, b.Name}},
			Active:            true,
		})
	}

	for _, p := range alliances {
		a, b := byName[p[0]], byName[p[1]]
		if a == nil || b == nil || a.Relation(b.Name) == models.Allied {
			continue
		}
		if a.Power >= weakPower && b.Power >= weakPower {
			continue
		}
		if !r.Chance(allianceChance) {
			continue
		}
		a.SetRelation(b.Name, models.Allied)
		b.SetRelation(a.Name, models.Allied)
		events = append(events, &models.WorldEvent{
			Type:              AllianceFormed,
			Description:       fmt.Sprintf("%s e %s formaram uma aliança.", a.Name, b.Name),
			PublicDescription: fmt.Sprintf("Emissários de %s foram vistos com %s.", a.Name, b.Name),
			Turn:              turn,
			Effects:           map[string]any{"factions": []string{a.Name, b.Name}},
			Active:            true,
		})
	}

	events = append(events, captures(factions, r, turn)...)

	for _, f := range factions {
		f.Treasury = float64(int(f.Treasury * treasuryGrowth))
		if f.Treasury > treasuryCap {
			f.Treasury = treasuryCap
		}
	}
	return events
}

func battles(factions []*models.Faction, r *dice.Roller, turn int) []*models.WorldEvent {
	var events []*models.WorldEvent
	for i, a := range factions {
		for _, b := range factions[i+1:] {
			if a.Relation(b.Name) != models.AtWar && b.Relation(a.Name) != models.AtWar {
				continue
			}
			if !r.Chance(battleChance) {
				continue
			}
			winner, loser := a, b
			if a.Power*r.Uniform(0.7, 1.3) <= b.Power*r.Uniform(0.7, 1.3) {
				winner, loser = b, a
			}
			lost := float64(int(loser.Power * 0.1))
			loser.Power -= lost
			if loser.Power < minPower {
				loser.Power = minPower
			}
			events = append(events, &models.WorldEvent{
				Type:              FactionBattle,
				Description:       fmt.Sprintf("%s derrotou %s em batalha.", winner.Name, loser.Name),
				PublicDescription: fmt.Sprintf("Rumores falam de uma batalha sangrenta entre %s e %s.", winner.Name, loser.Name),
				Turn:              turn,
				Cause:             winner.Name,
				Effects:           map[string]any{"winner": winner.Name, "loser": loser.Name, "power_lost": lost},
				Active:            true,
			})
		}
	}
	return events
}

func captures(factions []*models.Faction, r *dice.Roller, turn int) []*models.WorldEvent {
	owner := func(location string) *models.Faction {
		for _, f := range factions {
			for _, t := range f.Territories {
				if t == location {
					return f
				}
			}
		}
		return nil
	}

	var events []*models.WorldEvent
	for _, c := range contested {
		current := owner(c.name)
		var strongest *models.Faction
		for _, adj := range c.adjacent {
			f := owner(adj)
			if f == nil || f == current {
				continue
			}
			if strongest == nil || f.Power > strongest.Power {
				strongest = f
			}
		}
		if strongest == nil || strongest.Power <= capturePower || !r.Chance(captureChance) {
			continue
		}
		from := "Neutral"
		if current != nil {
			from = current.Name
			current.Territories = remove(current.Territories, c.name)
		}
		strongest.Territories = append(strongest.Territories, c.name)
		events = append(events, &models.WorldEvent{
			Type:              TerritoryCaptured,
			Description:       fmt.Sprintf("%s tomou o controle de %s.", strongest.Name, c.name),
			PublicDescription: fmt.Sprintf("Estandartes de %s tremulam agora sobre %s.", strongest.Name, c.name),
			Turn:              turn,
			Location:          c.name,
			Cause:             strongest.Name,
			Effects:           map[string]any{"from": from, "to": strongest.Name},
			Active:            true,
		})
	}
	return events
}

func remove(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// AdjustStanding applies a player's action toward a faction: help raises
// its power, attack and betrayal lower it.
func AdjustStanding(factions []*models.Faction, name, action string, amount float64) (*models.Faction, error) {
	var target *models.Faction
	for _, f := range factions {
		if strings.EqualFold(f.Name, name) {
			target = f
		}
	}
	if target == nil {
		return nil, fmt.Errorf("faction %q: %w", name, ErrUnknownFaction)
	}
	switch action {
	case "help":
		target.Power += amount
	case "attack", "betray":
		target.Power -= amount
		if target.Power < minPower {
			target.Power = minPower
		}
	default:
		return nil, fmt.Errorf("faction action %q not supported", action)
	}
	return target, nil
}

func sortFactions(fs []*models.Faction) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })
}

package simulation

import (
	"fmt"
	"math"
	"sort"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

const (
	fluctuationChance = 0.05
	fluctuationSpan   = 0.2
	fluctuationNotice = 0.1
	supplyFloor       = 100
	supplyRecovery    = 5
	priceDrift        = 0.05
)

// MarketFluctuation is emitted when a random swing exceeds 10%.
const MarketFluctuation = "market_fluctuation"

// eventAliases maps event types onto the rows of the economic effects table.
var eventAliases = map[string]string{
	WarDeclared:          "faction_war",
	"location_destroyed": "destruction",
	MonsterMigration:     "monster_horde",
}

// economyTick applies event effects, random fluctuation, supply recovery and
// drift toward base prices. items must be sorted by name.
func economyTick(items []*models.EconomyItem, events []*models.WorldEvent, effects map[string]map[string]float64, r *dice.Roller, turn int) []*models.WorldEvent {
	applyEffects(items, events, effects)
	out := fluctuate(items, r, turn)
	settle(items)
	return out
}

func applyEffects(items []*models.EconomyItem, events []*models.WorldEvent, effects map[string]map[string]float64) {
	byName := make(map[string]*models.EconomyItem, len(items))
	for _, it := range items {
		byName[it.Name] = it
	}
	ordered := append([]*models.WorldEvent(nil), events...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, e := range ordered {
		typ := e.Type
		if alias, ok := eventAliases[typ]; ok {
			typ = alias
		}
		deltas := effects[typ]
		names := make([]string, 0, len(deltas))
		for name := range deltas {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if it, ok := byName[name]; ok {
				it.CurrentPrice *= 1 + deltas[name]
				it.ClampPrice()
			}
		}
	}
}

func fluctuate(items []*models.EconomyItem, r *dice.Roller, turn int) []*models.WorldEvent {
	var out []*models.WorldEvent
	for _, it := range items {
		if !r.Chance(fluctuationChance) {
			continue
		}
		d := r.Uniform(-fluctuationSpan, fluctuationSpan)
		it.CurrentPrice *= 1 + d
		if math.Abs(d) <= fluctuationNotice {
			continue
		}
		dir := "caiu"
		if d > 0 {
			dir = "subiu"
		}
		out = append(out, &models.WorldEvent{
			Type:              MarketFluctuation,
			Description:       fmt.Sprintf("O preço de %s %s %.0f%%.", it.Name, dir, math.Abs(d)*100),
			PublicDescription: fmt.Sprintf("Mercadores comentam sobre o preço de %s.", it.Name),
			Turn:              turn,
			Effects:           map[string]any{"resource": it.Name, "change": models.Round2(d)},
			Active:            true,
		})
	}
	return out
}

// settle recovers low supply and drifts prices toward base within the clamp.
func settle(items []*models.EconomyItem) {
	for _, it := range items {
		if it.Supply < supplyFloor {
			it.Supply = math.Min(supplyFloor, it.Supply+supplyRecovery)
		}
		it.CurrentPrice += (it.BasePrice - it.CurrentPrice) * priceDrift
		it.ClampPrice()
	}
}

// Scarcity turns the category-keyed regional modifiers of the economy
// catalog into per-location, per-item price multipliers. A modifier keyed
// by an item name applies to that item alone and wins over its category.
func Scarcity(econ catalog.Economy) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(econ.RegionalModifiers))
	for region, mods := range econ.RegionalModifiers {
		m := make(map[string]float64)
		for _, res := range econ.Resources {
			if v, ok := mods[res.Category]; ok {
				m[res.Name] = v
			}
			if v, ok := mods[res.Name]; ok {
				m[res.Name] = v
			}
		}
		if len(m) > 0 {
			out[region] = m
		}
	}
	return out
}

// Items builds the initial economy rows from the catalog.
func Items(econ catalog.Economy) []models.EconomyItem {
	out := make([]models.EconomyItem, 0, len(econ.Resources))
	for _, r := range econ.Resources {
		out = append(out, models.EconomyItem{
			Name:         r.Name,
			Category:     r.Category,
			BasePrice:    r.BasePrice,
			CurrentPrice: r.BasePrice,
			Supply:       r.Supply,
			Demand:       r.Demand,
		})
	}
	return out
}

// Bought records a player purchase: demand rises and supply falls.
func Bought(it *models.EconomyItem, qty int) {
	it.Demand += float64(qty)
	it.Supply = math.Max(0, it.Supply-float64(qty))
}

// Sold records a player sale.
func Sold(it *models.EconomyItem, qty int) {
	it.Supply += float64(qty)
}

type PriceLine struct {
	Current    float64 `json:"current"`
	Base       float64 `json:"base"`
	Multiplier float64 `json:"multiplier"`
	Supply     float64 `json:"supply"`
	Demand     float64 `json:"demand"`
}

// MarketReport summarizes prices against their base.
type MarketReport struct {
	TrendingUp   []string             `json:"trending_up"`
	TrendingDown []string             `json:"trending_down"`
	Stable       []string             `json:"stable"`
	Prices       map[string]PriceLine `json:"prices"`
}

func Report(items []*models.EconomyItem) MarketReport {
	rep := MarketReport{
		TrendingUp:   []string{},
		TrendingDown: []string{},
		Stable:       []string{},
		Prices:       make(map[string]PriceLine, len(items)),
	}
	for _, it := range items {
		mult := 1.0
		if it.BasePrice > 0 {
			mult = it.CurrentPrice / it.BasePrice
		}
		rep.Prices[it.Name] = PriceLine{
			Current:    it.CurrentPrice,
			Base:       it.BasePrice,
			Multiplier: models.Round2(mult),
			Supply:     it.Supply,
			Demand:     it.Demand,
		}
		switch {
		case mult > 1.2:
			rep.TrendingUp = append(rep.TrendingUp, it.Name)
		case mult < 0.8:
			rep.TrendingDown = append(rep.TrendingDown, it.Name)
		default:
			rep.Stable = append(rep.Stable, it.Name)
		}
	}
	return rep
}

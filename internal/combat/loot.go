package combat

import (
	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

// genericDrops is used for monsters without a loot table.
var genericDrops = []struct {
	suffix   string
	chance   float64
	min, max int
}{
	{"core", 1.0, 1, 1},
	{"blood", 0.5, 1, 3},
	{"hide", 0.8, 1, 1},
	{"bones", 0.6, 1, 2},
}

// RollLoot rolls the drops of a defeated monster. Guaranteed entries always
// drop. Every other entry drops when the roll lands under its chance, in a
// quantity between its bounds. A nil table falls back to generic parts named
// after the monster.
func RollLoot(monster string, table *catalog.LootTable, r *dice.Roller) []models.InventoryItem {
	if table == nil {
		return genericLoot(monster, r)
	}
	var out []models.InventoryItem
	for _, e := range table.Guaranteed {
		out = add(out, e.ItemID, quantity(e, r))
	}
	for _, e := range table.Drops {
		if r.Float() < e.Chance {
			out = add(out, e.ItemID, quantity(e, r))
		}
	}
	return out
}

func genericLoot(monster string, r *dice.Roller) []models.InventoryItem {
	id := catalog.MonsterID(monster)
	var out []models.InventoryItem
	for _, d := range genericDrops {
		if d.chance >= 1 || r.Float() < d.chance {
			out = add(out, id+"_"+d.suffix, r.Between(d.min, d.max))
		}
	}
	return out
}

func quantity(e catalog.LootEntry, r *dice.Roller) int {
	lo, hi := e.QuantityMin, e.QuantityMax
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return r.Between(lo, hi)
}

func add(items []models.InventoryItem, id string, qty int) []models.InventoryItem {
	for i := range items {
		if items[i].ItemID == id {
			items[i].Quantity += qty
			return items
		}
	}
	return append(items, models.InventoryItem{ItemID: id, Quantity: qty})
}

// Collect merges drops into p's inventory.
func Collect(p *models.Player, drops []models.InventoryItem) {
	for _, d := range drops {
		p.AddItem(d.ItemID, d.Quantity)
	}
}

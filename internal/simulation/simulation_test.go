package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/store/storetest"
	"github.com/daicherr/orbis/internal/worldstate"
)

var testEconomy = catalog.Economy{
	Resources: []catalog.Resource{
		{Name: "Arroz", Category: "food", BasePrice: 10, Supply: 80, Demand: 100},
		{Name: "Pílula de Qi Básica", Category: "pills", BasePrice: 100, Supply: 100, Demand: 100},
	},
	RegionalModifiers: map[string]map[string]float64{
		"Vila Crisântemos": {"food": 0.8, "pills": 1.3},
		"Porto Sul":        {"Arroz": 1.1},
	},
	EventEffects: map[string]map[string]float64{
		"faction_war": {"Pílula de Qi Básica": 0.3},
		"destruction": {"Arroz": 0.5},
	},
}

func faction(name string, power, treasury float64) *models.Faction {
	return &models.Faction{Name: name, Power: power, Treasury: treasury, Relations: map[string]string{}}
}

func TestTreasuryGrowsAndCaps(t *testing.T) {
	fs := []*models.Faction{faction("A", 100, 49000), faction("B", 100, 1000)}
	factionTurn(fs, dice.New(1), 1)
	require.Equal(t, 50000.0, fs[0].Treasury)
	require.Equal(t, 1050.0, fs[1].Treasury)
}

func TestBattleCostsLoserTenPercent(t *testing.T) {
	r := dice.New(3)
	for i := 0; i < 500; i++ {
		a, b := faction("A", 600, 0), faction("B", 520, 0)
		a.SetRelation("B", models.AtWar)
		b.SetRelation("A", models.AtWar)

		events := factionTurn([]*models.Faction{a, b}, r, i)
		if len(events) == 0 {
			continue
		}
		require.Len(t, events, 1)
		e := events[0]
		require.Equal(t, FactionBattle, e.Type)
		loser := a
		if e.Effects["loser"] == "B" {
			loser = b
		}
		before := map[string]float64{"A": 600, "B": 520}[loser.Name]
		require.Equal(t, before-float64(int(before*0.1)), loser.Power)
		require.Equal(t, float64(int(before*0.1)), e.Effects["power_lost"])
		return
	}
	t.Fatal("no battle in 500 turns")
}

func TestBattleLossHasFloor(t *testing.T) {
	r := dice.New(5)
	for i := 0; i < 500; i++ {
		a, b := faction("A", 52, 0), faction("B", 52, 0)
		a.SetRelation("B", models.AtWar)
		b.SetRelation("A", models.AtWar)
		if len(factionTurn([]*models.Faction{a, b}, r, i)) == 0 {
			continue
		}
		require.Equal(t, 50.0, min(a.Power, b.Power))
		return
	}
	t.Fatal("no battle in 500 turns")
}

func TestWarDeclarationIsSymmetric(t *testing.T) {
	empire, moon := faction("Império Central", 1000, 0), faction("Lua Sombria", 500, 0)
	fs := []*models.Faction{empire, moon}
	r := dice.New(11)
	for i := 0; i < 1000; i++ {
		events := factionTurn(fs, r, i)
		if len(events) == 0 {
			continue
		}
		require.Equal(t, WarDeclared, events[0].Type)
		require.Equal(t, models.AtWar, empire.Relation("Lua Sombria"))
		require.Equal(t, models.AtWar, moon.Relation("Império Central"))
		require.Contains(t, empire.Enemies, "Lua Sombria")
		require.Contains(t, moon.Enemies, "Império Central")
		return
	}
	t.Fatal("no war in 1000 turns")
}

func TestWeakFactionsAlly(t *testing.T) {
	luo, empire := faction("Clã Luo", 250, 0), faction("Império Central", 1000, 0)
	fs := []*models.Faction{luo, empire}
	r := dice.New(2)
	for i := 0; i < 1000 && luo.Relation("Império Central") != models.Allied; i++ {
		factionTurn(fs, r, i)
	}
	require.Equal(t, models.Allied, luo.Relation("Império Central"))
	require.Equal(t, models.Allied, empire.Relation("Clã Luo"))

	strong := []*models.Faction{faction("Clã Luo", 350, 0), faction("Império Central", 1000, 0)}
	for i := 0; i < 200; i++ {
		for _, e := range factionTurn(strong, r, i) {
			require.NotEqual(t, AllianceFormed, e.Type)
		}
	}
}

func TestContestedTerritoryGoesToStrongNeighbour(t *testing.T) {
	empire := faction("Império Central", 1000, 0)
	empire.Territories = []string{"Cidade Imperial"}
	luo := faction("Clã Luo", 350, 0)
	luo.Territories = []string{"Cavernas Cristalinas"}
	fs := []*models.Faction{luo, empire}

	r := dice.New(4)
	var captured *models.WorldEvent
	for i := 0; i < 2000 && captured == nil; i++ {
		for _, e := range factionTurn(fs, r, i) {
			if e.Type == TerritoryCaptured && e.Location == "Floresta Nublada" {
				captured = e
			}
		}
	}
	require.NotNil(t, captured)
	require.Equal(t, "Império Central", captured.Cause)
	require.Contains(t, empire.Territories, "Floresta Nublada")
	require.NotContains(t, luo.Territories, "Floresta Nublada")
}

func TestSettleDriftsAndClamps(t *testing.T) {
	items := []*models.EconomyItem{
		{Name: "Arroz", BasePrice: 10, CurrentPrice: 20, Supply: 97},
		{Name: "Ferro", BasePrice: 10, CurrentPrice: 1000, Supply: 50},
		{Name: "Sal", BasePrice: 10, CurrentPrice: 0.01, Supply: 300},
	}
	settle(items)
	require.Equal(t, 19.5, items[0].CurrentPrice)
	require.Equal(t, 100.0, items[0].Supply)
	require.Equal(t, 50.0, items[1].CurrentPrice)
	require.Equal(t, 55.0, items[1].Supply)
	require.Equal(t, 1.0, items[2].CurrentPrice)
	require.Equal(t, 300.0, items[2].Supply)
}

func TestEventEffectsUseAliases(t *testing.T) {
	items := []*models.EconomyItem{
		{Name: "Arroz", BasePrice: 10, CurrentPrice: 10},
		{Name: "Pílula de Qi Básica", BasePrice: 100, CurrentPrice: 100},
	}
	applyEffects(items, []*models.WorldEvent{
		{ID: 2, Type: WarDeclared},
		{ID: 1, Type: "location_destroyed"},
		{ID: 3, Type: "festival"},
	}, testEconomy.EventEffects)
	require.Equal(t, 15.0, items[0].CurrentPrice)
	require.Equal(t, 130.0, items[1].CurrentPrice)
}

func TestPricesStayInsideClamp(t *testing.T) {
	items := []*models.EconomyItem{{Name: "Arroz", BasePrice: 10, CurrentPrice: 10, Supply: 100}}
	r := dice.New(9)
	war := []*models.WorldEvent{{ID: 1, Type: "destruction"}}
	for turn := 0; turn < 300; turn++ {
		economyTick(items, war, testEconomy.EventEffects, r, turn)
		require.GreaterOrEqual(t, items[0].CurrentPrice, 1.0)
		require.LessOrEqual(t, items[0].CurrentPrice, 50.0)
	}
}

func TestScarcityExpandsCategories(t *testing.T) {
	got := Scarcity(testEconomy)
	require.Equal(t, map[string]map[string]float64{
		"Vila Crisântemos": {"Arroz": 0.8, "Pílula de Qi Básica": 1.3},
		"Porto Sul":        {"Arroz": 1.1},
	}, got)
}

func TestMarketReport(t *testing.T) {
	rep := Report([]*models.EconomyItem{
		{Name: "Arroz", BasePrice: 10, CurrentPrice: 13},
		{Name: "Ferro", BasePrice: 10, CurrentPrice: 7},
		{Name: "Sal", BasePrice: 10, CurrentPrice: 10},
	})
	require.Equal(t, []string{"Arroz"}, rep.TrendingUp)
	require.Equal(t, []string{"Ferro"}, rep.TrendingDown)
	require.Equal(t, []string{"Sal"}, rep.Stable)
	require.Equal(t, 1.3, rep.Prices["Arroz"].Multiplier)
}

func TestBoughtAndSold(t *testing.T) {
	it := &models.EconomyItem{Name: "Arroz", Supply: 3, Demand: 10}
	Bought(it, 5)
	require.Equal(t, 0.0, it.Supply)
	require.Equal(t, 15.0, it.Demand)
	Sold(it, 4)
	require.Equal(t, 4.0, it.Supply)
}

func TestCrowdedRegionMigrates(t *testing.T) {
	regions := []*models.RegionEcology{
		{Region: "A", Species: map[string]int{"Lobo": 100}, Capacity: 100, Neighbors: []string{"B", "C"}},
		{Region: "B", Species: map[string]int{"Raposa": 10}, Capacity: 100},
	}
	regions, events := ecologyTick(regions, 10)

	require.Len(t, events, 1)
	require.Equal(t, MonsterMigration, events[0].Type)
	require.Equal(t, "C", events[0].Location)
	require.Equal(t, 20, events[0].Effects["count"])

	require.Len(t, regions, 3)
	require.Equal(t, 84, regions[0].Species["Lobo"])
	require.Equal(t, 11, regions[1].Species["Raposa"])
	require.Equal(t, "C", regions[2].Region)
	require.Equal(t, 21, regions[2].Species["Lobo"])
}

func TestHuntingPressureDrivesMigration(t *testing.T) {
	r := &models.RegionEcology{Region: "A", Species: map[string]int{"Lobo": 30}, Capacity: 100, Neighbors: []string{"B"}}
	Hunt(r, "Lobo", 30)
	require.Zero(t, r.Species["Lobo"])
	require.Equal(t, 60.0, r.Pressure)

	r.Species["Lobo"] = 10
	_, events := ecologyTick([]*models.RegionEcology{r}, 1)
	require.Len(t, events, 1)
	require.Equal(t, 55.0, r.Pressure)
}

func TestEncounterWeightsByPopulation(t *testing.T) {
	r := &models.RegionEcology{Species: map[string]int{"Lobo": 10, "Extinto": 0}}
	roll := dice.New(1)
	for i := 0; i < 20; i++ {
		require.Equal(t, "Lobo", Encounter(r, roll))
	}
	require.Empty(t, Encounter(&models.RegionEcology{}, roll))
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st := storetest.Open(t)
	require.NoError(t, st.Seed(context.Background(), DefaultWorld(testEconomy)))
	return st
}

func TestDefaultWorldIsConnected(t *testing.T) {
	seed := DefaultWorld(testEconomy)
	names := map[string]bool{}
	for _, l := range seed.Locations {
		names[l.Name] = true
	}
	for _, l := range seed.Locations {
		require.NotEmpty(t, l.Connections, l.Name)
		for to, c := range l.Connections {
			require.True(t, names[to], "%s links to unknown %s", l.Name, to)
			require.Contains(t, seed.Locations[indexOf(seed.Locations, to)].Connections, l.Name)
			require.Positive(t, c.TravelTime)
		}
	}
	require.Len(t, seed.Factions, 7)
	require.Len(t, seed.Economy, 2)
}

func indexOf(ls []models.Location, name string) int {
	for i, l := range ls {
		if l.Name == name {
			return i
		}
	}
	return -1
}

func TestTickReplaysRecordedTurn(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	sim := New(st, nil, testEconomy, 42, 10, nil)

	first, err := sim.Tick(ctx, 10)
	require.NoError(t, err)
	require.False(t, first.Replayed)
	factions, err := st.ListFactions(ctx)
	require.NoError(t, err)

	again, err := sim.Tick(ctx, 10)
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, len(first.Events()), len(again.Events()))

	after, err := st.ListFactions(ctx)
	require.NoError(t, err)
	require.Equal(t, factions, after)
}

func TestTickIsDeterministicForSeed(t *testing.T) {
	ctx := context.Background()
	a, b := seededStore(t), seededStore(t)
	simA := New(a, nil, testEconomy, 7, 10, nil)
	simB := New(b, nil, testEconomy, 7, 10, nil)

	for _, turn := range []int{10, 20, 30} {
		ra, err := simA.Tick(ctx, turn)
		require.NoError(t, err)
		rb, err := simB.Tick(ctx, turn)
		require.NoError(t, err)
		require.Equal(t, len(ra.Events()), len(rb.Events()))
	}

	fa, err := a.ListFactions(ctx)
	require.NoError(t, err)
	fb, err := b.ListFactions(ctx)
	require.NoError(t, err)
	require.Equal(t, fa, fb)

	ea, err := a.ListEconomy(ctx)
	require.NoError(t, err)
	eb, err := b.ListEconomy(ctx)
	require.NoError(t, err)
	require.Equal(t, ea, eb)
	for _, f := range fa {
		require.LessOrEqual(t, f.Treasury, 50000.0)
	}
}

func TestDeathGivesKinAVendetta(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)

	father := models.NewNPC("Mestre Zhao", "human", "Cidade Imperial")
	require.NoError(t, st.CreateNPC(ctx, father))
	son := models.NewNPC("Jovem Zhao", "human", "Floresta Nublada")
	son.Rank = 4
	son.Kin = []int64{father.ID}
	require.NoError(t, st.CreateNPC(ctx, son))
	son.ApplyDamage(son.MaxHP)
	require.NoError(t, st.SaveNPC(ctx, son))

	death := DeathEvent(son, 1, 5)
	require.NoError(t, st.CreateEvent(ctx, death))

	sim := New(st, nil, testEconomy, 1, 10, nil)
	rep, err := sim.Tick(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rep.Lineage)
	require.Equal(t, VendettaAssigned, rep.Lineage[0].Type)

	got, err := st.GetNPC(ctx, father.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VendettaTarget)
	require.Equal(t, int64(1), *got.VendettaTarget)
	require.Equal(t, models.Hostile, got.EmotionalState)

	closed, err := st.GetEvent(ctx, death.ID)
	require.NoError(t, err)
	require.False(t, closed.Active)

	// a later tick does not process the same death again
	rep, err = sim.Tick(ctx, 20)
	require.NoError(t, err)
	for _, e := range rep.Lineage {
		require.NotEqual(t, VendettaAssigned, e.Type)
	}
}

func TestTickPublishesToOracle(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	o := worldstate.New(time.Date(1000, time.March, 1, 8, 0, 0, 0, time.UTC), nil)
	require.NoError(t, o.Load(ctx, st, Scarcity(testEconomy)))
	v0 := o.Version()

	sim := New(st, o, testEconomy, 42, 10, nil)
	_, err := sim.Tick(ctx, 10)
	require.NoError(t, err)
	require.Greater(t, o.Version(), v0)

	f, ok := o.Faction("Império Central")
	require.True(t, ok)
	require.Equal(t, 10500.0, f.Treasury)

	rice, err := st.GetEconomyItem(ctx, "Arroz")
	require.NoError(t, err)
	require.Equal(t, rice.CurrentPrice, o.Snapshot().Economy.Prices["Arroz"])
}

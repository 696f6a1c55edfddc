package director

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/store/storetest"
	"github.com/daicherr/orbis/internal/textgen"
)

func newDirector(t *testing.T) (*Director, *catalog.Catalog, *store.Store) {
	t.Helper()
	cat, err := catalog.Load(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	gen, err := generators.New(textgen.Offline(), cat, nil)
	require.NoError(t, err)
	return New(gen, cat, nil), cat, storetest.Open(t)
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"Initial Village":            "vila",
		"Vila Crisântemos":           "vila",
		"Cidade Imperial do Norte":   "cidade_imperial",
		"Taverna do Dragão Bêbado":   "taverna",
		"Floresta Nebulosa":          "floresta",
		"Ruínas de Xuanwu":           "ruínas",
		"Salão dos Viajantes":        "taverna",
		"Câmara do Rei Esquecido":    "ruínas",
		"Planalto Sem Nome":          "wild",
		"Pátio de Meditação Sagrado": "taverna",
		"Local de oração":            "templo",
	}
	for name, want := range cases {
		require.Equal(t, want, Classify(name).Name, name)
	}
	require.Equal(t, "caverna", Classify("Lugar Estranho", "caverna").Name, "later names are consulted")
}

func TestBoundsByTimeOfDay(t *testing.T) {
	taverna := profiles["taverna"]
	lo, hi := taverna.Bounds(clock.Morning)
	require.Equal(t, 2, lo)
	require.Equal(t, 4, hi)

	lo, hi = taverna.Bounds(clock.Night)
	require.Equal(t, 0, lo)
	require.Equal(t, 1, hi)

	floresta := profiles["floresta"]
	lo, hi = floresta.Bounds(clock.Midnight)
	require.Equal(t, 0, lo)
	require.Equal(t, 2, hi)

	lo, hi = profiles["vila"].Bounds(clock.Dawn)
	require.Equal(t, 0, lo)
	require.Equal(t, 2, hi)
}

func TestRoleSplit(t *testing.T) {
	taverna := profiles["taverna"]
	require.Equal(t, []string{"drunk"}, taverna.HostileRoles())
	require.Contains(t, taverna.FriendlyRoles(), "tavern_keeper")
	require.Contains(t, taverna.FriendlyRoles(), "drunk")
	require.Equal(t, 0.5, profiles["templo"].QuestChance())
	require.Equal(t, 0.1, wild.QuestChance())
}

func TestSpawnInitialVillage(t *testing.T) {
	d, _, st := newDirector(t)
	ctx := context.Background()
	p := models.NewPlayer("Wei", "Mortal", "Vila")

	for seed := int64(1); seed <= 5; seed++ {
		loc := "Initial Village " + string(rune('A'+seed))
		var res *SpawnResult
		err := st.WithTx(ctx, func(q *store.Queries) error {
			var err error
			res, err = d.Spawn(ctx, q, SpawnRequest{Location: loc, TimeOfDay: clock.Morning, Player: p}, dice.New(seed))
			return err
		})
		require.NoError(t, err)
		require.Equal(t, "vila", res.Profile.Name)
		require.GreaterOrEqual(t, len(res.Spawned), 1)
		require.LessOrEqual(t, len(res.Spawned), 3)
		for _, n := range res.Spawned {
			require.NotZero(t, n.ID, "spawned npcs are persisted")
			require.NotEqual(t, models.Hostile, n.EmotionalState)
			require.True(t, n.CanSpeak)
		}
	}
}

func TestSpawnTopsUpOnly(t *testing.T) {
	d, _, st := newDirector(t)
	ctx := context.Background()
	err := st.WithTx(ctx, func(q *store.Queries) error {
		for _, name := range []string{"A", "B", "C", "D"} {
			if err := q.CreateNPC(ctx, models.NewNPC(name, "human", "Taverna Velha")); err != nil {
				return err
			}
		}
		res, err := d.Spawn(ctx, q, SpawnRequest{Location: "Taverna Velha", TimeOfDay: clock.Noon}, dice.New(3))
		require.NoError(t, err)
		require.Empty(t, res.Spawned, "a full tavern gets no one new")
		return nil
	})
	require.NoError(t, err)
}

func TestHostileUsesRegionEcology(t *testing.T) {
	d, cat, _ := newDirector(t)
	ctx := context.Background()
	require.NoError(t, cat.AppendCreature(catalog.Creature{
		ID: "lobo_cinzento", Name: "Lobo Cinzento", Species: "beast", Biome: "floresta", Rank: 1, HP: 45, Defense: 8, Attack: 12,
	}))
	region := &models.RegionEcology{Region: "Floresta Nebulosa", Species: map[string]int{"Lobo Cinzento": 10}}

	n := d.hostile(ctx, "beast", "Floresta Nebulosa", "floresta", 1, region, dice.New(1))
	require.Equal(t, "Lobo Cinzento", n.Name)
	require.Equal(t, 45.0, n.HP)
	require.Equal(t, models.Hostile, n.EmotionalState)

	n = d.hostile(ctx, "bandit", "Floresta Nebulosa", "floresta", 2, region, dice.New(1))
	require.Equal(t, "bandit", n.Role)
	require.Equal(t, "human", n.Species)
}

func TestQuestGiverSkippedWhenPlayerHasQuest(t *testing.T) {
	d, _, st := newDirector(t)
	ctx := context.Background()
	err := st.WithTx(ctx, func(q *store.Queries) error {
		for seed := int64(1); seed <= 10; seed++ {
			res, err := d.Spawn(ctx, q, SpawnRequest{Location: "Mercado Central " + string(rune('a'+seed)), HasQuest: true}, dice.New(seed))
			require.NoError(t, err)
			for _, n := range res.Spawned {
				require.False(t, n.QuestGiver)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/store/storetest"
)

func TestPlayerRoundTripKeepsListFields(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)

	p := models.NewPlayer("TestHero", "Mortal", "Initial Village")
	require.NoError(t, s.CreatePlayer(ctx, p))
	require.NotZero(t, p.ID)

	p.AddItem("beast_core", 2)
	p.Effects = append(p.Effects, models.StatusEffect{Kind: "dot", Magnitude: 4, TurnsLeft: 2})
	require.NoError(t, s.SavePlayer(ctx, p))

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ItemQuantity("beast_core"))
	require.Len(t, got.Effects, 1)

	_, err = s.GetPlayer(ctx, 999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestNPCsAtExcludesDead(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)

	alive := models.NewNPC("Yi Fan", "human", "Vila Crisântemos")
	dead := models.NewNPC("Velho Chen", "human", "Vila Crisântemos")
	dead.Alive = false
	elsewhere := models.NewNPC("Lobo", "beast", "Floresta Nublada")
	for _, n := range []*models.NPC{alive, dead, elsewhere} {
		require.NoError(t, s.CreateNPC(ctx, n))
	}
	npcs, err := s.NPCsAt(ctx, "Vila Crisântemos")
	require.NoError(t, err)
	require.Len(t, npcs, 1)
	require.Equal(t, "Yi Fan", npcs[0].Name)

	byID, err := s.NPCsByIDs(ctx, []int64{alive.ID, elsewhere.ID})
	require.NoError(t, err)
	require.Len(t, byID, 2)
}

func TestLogTurnsAreDense(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)

	for turn := 0; turn < 3; turn++ {
		require.NoError(t, s.AppendLog(ctx, &models.GameLog{PlayerID: 1, Turn: turn, Input: "olhar", Embedding: []float32{1, 0}}))
	}
	err := s.AppendLog(ctx, &models.GameLog{PlayerID: 1, Turn: 5})
	require.ErrorIs(t, err, store.ErrConflict)
	err = s.AppendLog(ctx, &models.GameLog{PlayerID: 1, Turn: 1})
	require.ErrorIs(t, err, store.ErrConflict)

	turns, err := s.LogTurns(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, turns)

	recent, err := s.RecentLogs(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 1, recent[0].Turn)
	require.Equal(t, 2, recent[1].Turn)
	require.Equal(t, []float32{1, 0}, recent[1].Embedding)
}

func TestPlayerNamesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)

	require.NoError(t, s.CreatePlayer(ctx, models.NewPlayer("Lin Mo", "Mortal", "x")))
	err := s.CreatePlayer(ctx, models.NewPlayer("Lin Mo", "Mortal", "y"))
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)

	p := models.NewPlayer("A", "Mortal", "x")
	require.NoError(t, s.CreatePlayer(ctx, p))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q *store.Queries) error {
		p.Gold = 9999
		if err := q.SavePlayer(ctx, p); err != nil {
			return err
		}
		if err := q.AppendLog(ctx, &models.GameLog{PlayerID: p.ID, Turn: 0}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 100, got.Gold)
	next, err := s.NextTurn(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, next)
}

func TestSimilarMemoriesRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)
	owner := models.NPCRef(1)

	vecs := map[string][]float32{
		"fire":  {1, 0, 0},
		"ice":   {0, 1, 0},
		"flame": {0.9, 0.1, 0},
	}
	for name, v := range vecs {
		require.NoError(t, s.InsertMemory(ctx, &models.MemoryRecord{
			Owner: owner, Kind: models.Episodic, Content: []byte(`{"description":"` + name + `"}`), Embedding: v,
		}))
	}
	scored, err := s.SimilarMemories(ctx, owner, models.Episodic, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.Contains(t, string(scored[0].Record.Content), "fire")
	require.Contains(t, string(scored[1].Record.Content), "flame")
	require.Len(t, scored[0].Record.Embedding, 128)

	byPattern, err := s.Memories(ctx, owner, models.Episodic, "ice", 0)
	require.NoError(t, err)
	require.Len(t, byPattern, 1)
}

func TestMemoryFactKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)
	rec := func() *models.MemoryRecord {
		return &models.MemoryRecord{Owner: models.PlayerRef(1), Kind: models.Semantic, Key: "yi fan|is hostile to|me", Content: []byte(`{}`)}
	}
	require.NoError(t, s.InsertMemory(ctx, rec()))
	require.ErrorIs(t, s.InsertMemory(ctx, rec()), store.ErrConflict)

	got, err := s.MemoryByKey(ctx, models.PlayerRef(1), models.Semantic, "yi fan|is hostile to|me")
	require.NoError(t, err)
	require.NotZero(t, got.ID)
}

func TestDynamicLocationRequiresParent(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)

	err := s.CreateDynamicLocation(ctx, &models.DynamicLocation{Name: "Casa", Parent: "Nowhere", OwnerID: 1})
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveLocation(ctx, &models.Location{
		Name:        "Vila Crisântemos",
		Connections: map[string]models.Connection{"Floresta Nublada": {Distance: 5, TravelTime: 2, Danger: 2}},
	}))
	home := &models.DynamicLocation{Name: "Casa de TestHero", Parent: "Vila Crisântemos", OwnerID: 1}
	require.NoError(t, s.CreateDynamicLocation(ctx, home))

	owned, err := s.DynamicLocationsByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, owned, 1)

	loc, err := s.GetLocation(ctx, "Vila Crisântemos")
	require.NoError(t, err)
	require.Equal(t, 2.0, loc.Connections["Floresta Nublada"].TravelTime)

	require.NoError(t, s.SetAlias(ctx, models.LocationAlias{PlayerID: 1, Alias: "Casa", Target: home.Name}))
	target, err := s.ResolveAlias(ctx, 1, "casa")
	require.NoError(t, err)
	require.Equal(t, home.Name, target)
}

func TestRecordTickOnce(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)
	first, err := s.RecordTick(ctx, 10, "battle")
	require.NoError(t, err)
	require.True(t, first)
	again, err := s.RecordTick(ctx, 10, "battle")
	require.NoError(t, err)
	require.False(t, again)
}

func TestLocksSerializeWriters(t *testing.T) {
	l := store.NewLocks()
	var mu sync.Mutex
	inside := 0
	peak := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("player:1")
			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			mu.Unlock()
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Errorf("expected one writer at a time, saw %d", peak)
	}
}

package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/director"
	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/store/storetest"
	"github.com/daicherr/orbis/internal/textgen"
)

type harness struct {
	pl      *Pipeline
	st      *store.Store
	mem     *memory.Manager
	archive *recorder
}

type recorder struct {
	mu   sync.Mutex
	recs []any
}

func (r *recorder) Append(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, v)
	return nil
}

type option func(*Deps)

func withoutDirector() option { return func(d *Deps) { d.Director = nil } }

func withExecutor(x Executor) option { return func(d *Deps) { d.Executor = x } }

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	st := storetest.Open(t)
	cat, err := catalog.Load(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	text := textgen.Offline()
	gen, err := generators.New(text, cat, nil)
	require.NoError(t, err)
	mem := memory.New(st, embedding.NewKeywordProjector(embedding.KeywordDimension), memory.DefaultOptions(), nil)
	rec := &recorder{}

	d := Deps{
		Store:      st,
		Catalog:    cat,
		Text:       text,
		Generators: gen,
		Director:   director.New(gen, cat, nil),
		Memory:     mem,
		Sessions:   session.NewManager(st, 20, 20, nil),
		Clock:      clock.New(time.Date(1000, time.January, 1, 8, 0, 0, 0, time.UTC)),
		Archive:    rec,
		Tuning:     config.DefaultTuning(),
		Seed:       42,
	}
	for _, o := range opts {
		o(&d)
	}
	pl, err := New(d)
	require.NoError(t, err)
	return &harness{pl: pl, st: st, mem: mem, archive: rec}
}

func (h *harness) player(t *testing.T, name, location string) *models.Player {
	t.Helper()
	p := models.NewPlayer(name, "Mortal", location)
	require.NoError(t, h.st.CreatePlayer(context.Background(), p))
	return p
}

func TestIdleObservationPopulatesScene(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.player(t, "TestHero", "Initial Village")

	res, err := h.pl.Turn(ctx, p.ID, "olhar ao redor")
	require.NoError(t, err)
	require.Equal(t, 0, res.Turn)
	require.Equal(t, Observe, res.Action.Intent)
	require.GreaterOrEqual(t, len(res.NPCs), 1)
	require.LessOrEqual(t, len(res.NPCs), 3)
	for _, n := range res.NPCs {
		require.NotEqual(t, models.Hostile, n.EmotionalState, n.Name)
	}
	for _, banned := range []string{"HP", "tier", "XP"} {
		require.NotContains(t, res.Narration, banned)
	}
	require.True(t, strings.HasPrefix(res.Narration, "📍 "))
	require.Nil(t, res.Result.Attack)
	require.Nil(t, res.Result.CounterAttack)

	logs, err := h.st.RecentLogs(ctx, p.ID, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.True(t, logs[0].Success)
	require.NotContains(t, logs[0].Result, "attack")
}

func TestBasicAttackTradesBlows(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	p := h.player(t, "TestHero", "Floresta Nublada")
	boar := models.NewNPC("Javali Selvagem", "beast", "Floresta Nublada")
	boar.EmotionalState = models.Hostile
	boar.HP, boar.MaxHP, boar.Defense = 30, 30, 10
	require.NoError(t, h.st.CreateNPC(ctx, boar))

	res, err := h.pl.Turn(ctx, p.ID, "atacar o javali selvagem")
	require.NoError(t, err)
	require.Equal(t, Attack, res.Action.Intent)
	require.NotNil(t, res.Result.Attack)
	require.NotNil(t, res.Result.CounterAttack)
	require.InDelta(t, models.Round2(10*100.0/110), res.Result.Attack.Dealt, 1e-9)

	got, err := h.st.GetNPC(ctx, boar.ID)
	require.NoError(t, err)
	require.InDelta(t, 30-models.Round2(10*100.0/110), got.HP, 1e-9)

	hero, err := h.st.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Less(t, hero.HP, hero.MaxHP)

	eps, err := h.mem.RecentEpisodes(ctx, models.PlayerRef(p.ID), 10)
	require.NoError(t, err)
	require.NotEmpty(t, eps)
	for _, ep := range eps {
		require.Equal(t, "combat", ep.Category)
	}
}

func TestCreateFullWithoutTraining(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())

	c, err := h.pl.CreateFull(ctx, generators.Character{
		Name:         "Lin Mo",
		Appearance:   "magro, cicatrizes nos pulsos",
		Constitution: "Mortal",
		Origin:       "Initial Village",
		Answers: []string{
			"Sou uma criança escrava acorrentada no porão de um mercador.",
			"Um porão úmido sem janelas.",
			"",
		},
	})
	require.NoError(t, err)
	require.Empty(t, c.Player.LearnedSkills)
	require.False(t, c.Feedback.HasInitialSkills)
	require.False(t, c.Feedback.ImportantNPCCreated)
	require.NotEmpty(t, c.Feedback.FirstScene)

	logs, err := h.st.RecentLogs(ctx, c.Player.ID, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 0, logs[0].Turn)
	require.Equal(t, creationInput, logs[0].Input)
	require.Equal(t, "character_creation", logs[0].Action["intent"])
	require.NotEmpty(t, logs[0].Narration)

	_, err = h.pl.CreateFull(ctx, generators.Character{Name: "Lin Mo", Origin: "Initial Village"})
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = h.pl.CreateFull(ctx, generators.Character{Name: "Sem Origem"})
	require.ErrorIs(t, err, ErrInvalidCharacter)

	next, err := h.pl.Turn(ctx, c.Player.ID, "olhar ao redor")
	require.NoError(t, err)
	require.Equal(t, 1, next.Turn)
}

type brokenExecutor struct {
	calls int
}

func (b *brokenExecutor) Execute(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (*ActionResult, error) {
	b.calls++
	return &ActionResult{Success: true}, nil
}

func TestExhaustedRetriesCommitAFailedTurn(t *testing.T) {
	ctx := context.Background()
	x := &brokenExecutor{}
	h := newHarness(t, withoutDirector(), withExecutor(x))
	p := h.player(t, "TestHero", "Initial Village")

	res, err := h.pl.Turn(ctx, p.ID, "olhar ao redor")
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 3, x.calls)
	require.Contains(t, res.Narration, failureNarration)

	logs, err := h.st.RecentLogs(ctx, p.ID, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.False(t, logs[0].Success)
	require.Equal(t, true, logs[0].Result["failed"])
	require.Equal(t, "result has no message", logs[0].Result["error"])

	sc, err := h.pl.sessions.Get(ctx, p.ID, p.Name, p.Location)
	require.NoError(t, err)
	require.Empty(t, sc.History)
}

type flakyExecutor struct {
	calls int
}

func (f *flakyExecutor) Execute(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (*ActionResult, error) {
	f.calls++
	if f.calls == 1 {
		panic("boom")
	}
	return &ActionResult{Success: true, Message: "Nada muda."}, nil
}

func TestExecutorPanicIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector(), withExecutor(&flakyExecutor{}))
	p := h.player(t, "TestHero", "Initial Village")

	res, err := h.pl.Turn(ctx, p.ID, "esperar")
	require.NoError(t, err)
	require.False(t, res.Failed)
	require.Equal(t, 2, res.Attempts)
	require.True(t, res.Result.Success)
}

func TestRefusalChangesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	p := h.player(t, "TestHero", "Initial Village")

	res, err := h.pl.Turn(ctx, p.ID, "atacar")
	require.NoError(t, err)
	require.NotEmpty(t, res.Result.Refusal)
	require.False(t, res.Result.Success)
	require.Equal(t, 1, res.Attempts)

	logs, err := h.st.RecentLogs(ctx, p.ID, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.False(t, logs[0].Success)

	sc, err := h.pl.sessions.Get(ctx, p.ID, p.Name, p.Location)
	require.NoError(t, err)
	require.Len(t, sc.History, 1)
}

func TestPoisonKillsBeforeTheAction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	p := h.player(t, "TestHero", "Initial Village")
	p.HP = 5
	p.Effects = append(p.Effects, models.StatusEffect{Kind: "dot", Magnitude: 20, TurnsLeft: 3})
	require.NoError(t, h.st.SavePlayer(ctx, p))

	res, err := h.pl.Turn(ctx, p.ID, "meditar")
	require.NoError(t, err)
	require.True(t, res.Result.PlayerDied)
	require.Zero(t, res.Player.HP)

	_, err = h.pl.Turn(ctx, p.ID, "olhar ao redor")
	require.ErrorIs(t, err, ErrPlayerDead)
}

func TestTurnsAreDenseAndArchived(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	p := h.player(t, "TestHero", "Initial Village")

	for want := 0; want < 3; want++ {
		res, err := h.pl.Turn(ctx, p.ID, "esperar")
		require.NoError(t, err)
		require.Equal(t, want, res.Turn)
	}
	turns, err := h.st.LogTurns(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, turns)
	require.Len(t, h.archive.recs, 3)

	_, err = h.pl.Turn(ctx, 999, "esperar")
	require.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestQuestLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	p := h.player(t, "TestHero", "Initial Village")

	q, err := h.pl.GenerateQuest(ctx, p.ID)
	require.NoError(t, err)
	require.NotZero(t, q.ID)
	require.Equal(t, models.QuestActive, q.Status)

	_, err = h.pl.GenerateQuest(ctx, p.ID)
	require.ErrorIs(t, err, ErrQuestActive)

	_, _, err = h.pl.CompleteQuest(ctx, p.ID, q.ID)
	require.ErrorIs(t, err, ErrQuestNotReady)

	q.CurrentProgress = q.RequiredProgress
	require.NoError(t, h.st.SaveQuest(ctx, q))
	done, hero, err := h.pl.CompleteQuest(ctx, p.ID, q.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuestCompleted, done.Status)
	require.Equal(t, p.Gold+q.RewardGold, hero.Gold)

	active, err := h.pl.ActiveQuests(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, active)

	_, _, err = h.pl.CompleteQuest(ctx, p.ID, 9999)
	require.ErrorIs(t, err, ErrQuestNotFound)
}

func TestBuyAndSell(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutDirector())
	p := h.player(t, "TestHero", "Initial Village")
	p.Gold = 100
	require.NoError(t, h.st.SavePlayer(ctx, p))
	require.NoError(t, h.st.SaveEconomyItem(ctx, &models.EconomyItem{
		Name: "Arroz", Category: "food", BasePrice: 10, CurrentPrice: 10, Supply: 100, Demand: 100,
	}))

	buy, err := h.pl.Buy(ctx, p.ID, "arroz do mercador", 3)
	require.NoError(t, err)
	require.Equal(t, 30, buy.Total)
	require.Equal(t, 70, buy.Gold)
	res := &ActionResult{Trade: buy}
	require.Same(t, buy, res.Trade)
	require.True(t, Trade.Social())

	sell, err := h.pl.Sell(ctx, p.ID, "Arroz", 1)
	require.NoError(t, err)
	require.True(t, sell.Sale)
	require.Equal(t, buy.Gold+sell.Total, sell.Gold)

	_, err = h.pl.Sell(ctx, p.ID, "Arroz", 10)
	require.ErrorIs(t, err, ErrNotInInventory)
	_, err = h.pl.Buy(ctx, p.ID, "Arroz", 1000)
	require.ErrorIs(t, err, ErrNotEnoughGold)
	_, err = h.pl.Buy(ctx, p.ID, "Seda Celestial", 1)
	require.ErrorIs(t, err, ErrUnknownResource)
}

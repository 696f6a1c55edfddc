// Package pipeline runs a player's turn: it plans the input, executes it on
// a speculative copy of the scene, validates the result, narrates it and
// commits everything in one transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/director"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/simulation"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/telemetry"
	"github.com/daicherr/orbis/internal/textgen"
	"github.com/daicherr/orbis/internal/worldstate"
)

var tracer = telemetry.Tracer("pipeline")

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerDead     = errors.New("player is dead")
	ErrTurnTimeout    = errors.New("turn exceeded its time budget")
)

var errExecutorCrash = errors.New("executor-crash")

// failureNarration is shown when every attempt of a turn was rejected.
const failureNarration = "Algo perturba o fluxo do qi... O mundo hesita por um instante, e nada acontece."

// Archive receives a record of every committed turn.
type Archive interface {
	Append(v any) error
}

// Deps are the collaborators of a Pipeline. Generators, Director, Oracle,
// Simulator, Archive and Executor are optional.
type Deps struct {
	Store      *store.Store
	Catalog    *catalog.Catalog
	Text       textgen.Client
	Generators *generators.Generator
	Director   *director.Director
	Memory     *memory.Manager
	Sessions   *session.Manager
	Oracle     *worldstate.Oracle
	Simulator  *simulation.Simulator
	Clock      *clock.Clock
	Archive    Archive
	Executor   Executor
	Tuning     config.Tuning
	Seed       int64
	Logger     *slog.Logger
}

type Pipeline struct {
	st       *store.Store
	cat      *catalog.Catalog
	gen      *generators.Generator
	director *director.Director
	mem      *memory.Manager
	sessions *session.Manager
	oracle   *worldstate.Oracle
	sim      *simulation.Simulator
	clock    *clock.Clock
	archive  Archive

	planner  *Planner
	narrator *Narrator
	rules    *Rules
	exec     Executor

	tuning config.Tuning
	seed   int64
	logger *slog.Logger
}

// TurnResult is what a client sees of a committed turn.
type TurnResult struct {
	PlayerID  int64                  `json:"player_id"`
	Turn      int                    `json:"turn_number"`
	Narration string                 `json:"scene_description"`
	Action    PlannedAction          `json:"action"`
	Result    *ActionResult          `json:"action_result"`
	Player    *models.Player         `json:"player_state"`
	NPCs      []*models.NPC          `json:"npcs_in_scene"`
	Events    []*models.WorldEvent   `json:"events"`
	Attempts  int                    `json:"attempts"`
	Failed    bool                   `json:"failed,omitempty"`
	GameTime  string                 `json:"game_time"`
	WorldTick *simulation.TickReport `json:"world_tick,omitempty"`
}

func New(d Deps) (*Pipeline, error) {
	if d.Store == nil || d.Catalog == nil || d.Text == nil || d.Memory == nil || d.Sessions == nil || d.Clock == nil {
		return nil, errors.New("pipeline: missing a required dependency")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tuning := d.Tuning
	if tuning == (config.Tuning{}) {
		tuning = config.DefaultTuning()
	}
	planner, err := NewPlanner(d.Text, d.Catalog, logger)
	if err != nil {
		return nil, err
	}
	rules := NewRules(d.Store, d.Catalog, d.Generators, d.Oracle, tuning, logger)
	pl := &Pipeline{
		st:       d.Store,
		cat:      d.Catalog,
		gen:      d.Generators,
		director: d.Director,
		mem:      d.Memory,
		sessions: d.Sessions,
		oracle:   d.Oracle,
		sim:      d.Simulator,
		clock:    d.Clock,
		archive:  d.Archive,
		planner:  planner,
		narrator: NewNarrator(d.Text, logger),
		rules:    rules,
		exec:     d.Executor,
		tuning:   tuning,
		seed:     d.Seed,
		logger:   logger,
	}
	if pl.exec == nil {
		pl.exec = rules
	}
	return pl, nil
}

// outcome is a turn between execution and commit.
type outcome struct {
	input     string
	action    PlannedAction
	scene     *Scene
	result    *ActionResult
	attempts  int
	refused   bool
	failed    bool
	lastError string
	narration string
	session   *session.Context
	tick      *simulation.TickReport
}

// mutates reports whether the scene of the turn is to be written.
func (o *outcome) mutates() bool { return !o.failed && !o.refused && o.scene != nil }

func (o *outcome) succeeded() bool { return o.mutates() && o.result.Success }

func playerKey(id int64) string { return fmt.Sprintf("player:%d", id) }

// Turn plays one turn for the player. Only a missing or dead player, a
// store failure or an exhausted time budget return an error; everything
// else ends in a committed turn.
func (pl *Pipeline) Turn(ctx context.Context, playerID int64, input string) (*TurnResult, error) {
	if pl.tuning.TurnBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pl.tuning.TurnBudget)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "pipeline.Turn", trace.WithAttributes(attribute.Int64("player_id", playerID)))
	defer span.End()

	unlock := pl.st.Locks().Lock(playerKey(playerID))
	defer unlock()

	res, err := pl.turn(ctx, playerID, strings.TrimSpace(input))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTurnTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("turn", res.Turn), attribute.Int("attempts", res.Attempts), attribute.Bool("failed", res.Failed))
	return res, nil
}

func (pl *Pipeline) turn(ctx context.Context, playerID int64, input string) (*TurnResult, error) {
	ts, err := pl.enter(ctx, playerID, input)
	if err != nil {
		return nil, err
	}
	out, err := pl.run(ctx, ts, input)
	if err != nil {
		return nil, err
	}
	pl.narrate(ctx, ts, out)
	if err := pl.commit(ctx, ts, out); err != nil {
		return nil, err
	}
	pl.settle(ctx, ts, out)

	pl.logger.Info("turn committed",
		"player_id", ts.player.ID,
		"turn", ts.turn,
		"intent", out.action.Intent,
		"attempts", out.attempts,
		"success", out.succeeded(),
		"trace_id", telemetry.TraceID(ctx))
	return out.turnResult(ts), nil
}

// enter loads everything the turn reads: player, session, place, quests
// and the characters present, spawning some when the place is empty.
func (pl *Pipeline) enter(ctx context.Context, playerID int64, input string) (*turnState, error) {
	ctx, span := tracer.Start(ctx, "pipeline.enter")
	defer span.End()

	p, err := pl.st.GetPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load player %d: %w", playerID, err)
	}
	if !p.IsAlive() {
		return nil, fmt.Errorf("%w: %s", ErrPlayerDead, p.Name)
	}
	sc, err := pl.sessions.Get(ctx, p.ID, p.Name, p.Location)
	if err != nil {
		return nil, err
	}
	turn, err := pl.st.NextTurn(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("next turn for player %d: %w", p.ID, err)
	}

	tick := pl.clock.Advance(1)
	ts := &turnState{
		player:    p,
		session:   sc,
		turn:      turn,
		worldTurn: tick.Turn,
		gameTime:  pl.clock.Formatted(),
		timeOfDay: pl.clock.TimeOfDay(),
		at:        pl.clock.Now(),
		moon:      1,
		seed:      dice.Derive(pl.seed, p.ID*1_000_003+int64(turn)).Seed(),
		recalled:  map[int64]*memory.Bundle{},
	}
	r := dice.New(ts.seed)

	if pl.oracle != nil {
		if err := pl.oracle.AdvanceTime(ctx, pl.clock.Snapshot(), r); err != nil {
			pl.logger.Warn("advance world time", "err", err)
		}
		ts.moon = pl.oracle.MoonModifier()
		ts.weather = weatherName(pl.oracle.Weather(p.Location))
		for _, e := range pl.oracle.ActiveEvents(p.Location) {
			ts.events = append(ts.events, firstNonEmpty(e.Description, e.Type))
		}
	}
	if err := pl.loadPlace(ctx, ts); err != nil {
		return nil, err
	}
	if ts.quests, err = pl.st.ActiveQuests(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("active quests: %w", err)
	}
	if err := pl.loadNPCs(ctx, ts, r); err != nil {
		return nil, err
	}
	last, err := pl.st.LastLog(ctx, p.ID)
	switch {
	case err == nil:
		ts.previous = last.Narration
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("last log: %w", err)
	}
	pl.recall(ctx, ts, input)
	return ts, nil
}

// loadPlace finds the player's location among the structured places and
// then among the dynamic ones. A place in neither is played without one.
func (pl *Pipeline) loadPlace(ctx context.Context, ts *turnState) error {
	name := ts.player.Location
	place, err := pl.st.GetLocation(ctx, name)
	if err == nil {
		ts.place = place
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load location %s: %w", name, err)
	}
	d, err := pl.st.GetDynamicLocationByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load dynamic location %s: %w", name, err)
	}
	ts.dynamic = true
	ts.place = &models.Location{
		ID:          d.ID,
		Name:        d.Name,
		Type:        d.Kind,
		Description: strings.TrimSpace(d.Description + " " + d.Interior),
		Connections: map[string]models.Connection{d.Parent: {}},
		Resources:   map[string]int{},
		Destroyed:   d.Destroyed,
	}
	return nil
}

func (pl *Pipeline) loadNPCs(ctx context.Context, ts *turnState, r *dice.Roller) error {
	loc := ts.player.Location
	npcs, err := pl.st.NPCsAt(ctx, loc)
	if err != nil {
		return fmt.Errorf("npcs at %s: %w", loc, err)
	}
	ts.npcs = npcs
	if len(npcs) > 0 || pl.director == nil {
		return nil
	}

	var spawned []*models.NPC
	err = pl.st.WithTx(ctx, func(q *store.Queries) error {
		res, err := pl.director.Spawn(ctx, q, director.SpawnRequest{
			Location:  loc,
			Place:     ts.place,
			TimeOfDay: ts.timeOfDay,
			Player:    ts.player,
			HasQuest:  len(ts.quests) > 0,
		}, r)
		if err != nil {
			return err
		}
		spawned = res.Spawned
		return nil
	})
	if err != nil {
		pl.logger.Warn("spawn failed", "location", loc, "err", err)
		return nil
	}
	for _, n := range spawned {
		if pl.oracle != nil {
			if err := pl.oracle.UpdateNPCLocation(ctx, n.ID, "", loc); err != nil {
				pl.logger.Warn("oracle npc location", "npc_id", n.ID, "err", err)
			}
		}
	}
	ts.npcs = append(ts.npcs, spawned...)
	return nil
}

// recall fetches what each present NPC remembers of the player.
func (pl *Pipeline) recall(ctx context.Context, ts *turnState, input string) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	query := strings.TrimSpace(ts.player.Name + " " + input)
	for _, n := range ts.npcs {
		g.Go(func() error {
			b := pl.mem.Recall(gctx, models.NPCRef(n.ID), query)
			mu.Lock()
			ts.recalled[n.ID] = b
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// run plans, executes and validates until an attempt passes or the retry
// budget is spent.
func (pl *Pipeline) run(ctx context.Context, ts *turnState, input string) (*outcome, error) {
	out := &outcome{input: input}
	for attempt := 0; attempt <= pl.tuning.RetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.attempts = attempt + 1
		a, s, res, v := pl.try(ctx, ts, input, attempt, out.lastError)
		out.action = a
		if v.OK {
			out.scene, out.result = s, res
			out.refused = res.Refusal != ""
			return out, nil
		}
		out.lastError = v.Error
		pl.logger.Warn("attempt rejected",
			"player_id", ts.player.ID,
			"turn", ts.turn,
			"attempt", out.attempts,
			"intent", a.Intent,
			"err", v.Error)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.failed = true
	out.result = &ActionResult{Message: failureNarration, Details: []string{out.lastError}}
	return out, nil
}

func (pl *Pipeline) try(ctx context.Context, ts *turnState, input string, attempt int, previous string) (PlannedAction, *Scene, *ActionResult, ValidationResult) {
	ctx, span := tracer.Start(ctx, "pipeline.attempt", trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	a := pl.planner.Plan(ctx, PlanRequest{
		Input:         input,
		Player:        ts.player,
		Present:       ts.npcs,
		Place:         ts.place,
		Context:       ts.session.CompactPrompt(),
		PreviousError: previous,
	})
	span.SetAttributes(attribute.String("intent", string(a.Intent)))

	s, err := newScene(ts)
	if err != nil {
		return a, nil, nil, invalid(fmt.Sprintf("copy scene: %v", err))
	}
	s.tickEffects()
	if !s.Player.IsAlive() {
		return a, s, succumb(s), ValidationResult{OK: true}
	}

	res, err := pl.execute(ctx, s, a, dice.Derive(ts.seed, int64(attempt+1)))
	if err != nil {
		span.RecordError(err)
		return a, s, nil, invalid(errExecutorCrash.Error())
	}
	if s.DOT > 0 && res.Refusal == "" {
		res.DamageReceived = round2(res.DamageReceived + s.DOT)
		res.detail(fmt.Sprintf("dano contínuo: %.2f", s.DOT))
	}
	v := Validate(s, a, res)
	span.SetAttributes(attribute.Bool("valid", v.OK))
	return a, s, res, v
}

// execute runs the executor and turns a panic into an error.
func (pl *Pipeline) execute(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (res *ActionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pl.logger.Error("executor panicked", "intent", a.Intent, "panic", rec)
			res, err = nil, errExecutorCrash
		}
	}()
	res, err = pl.exec.Execute(ctx, s, a, r)
	if err == nil && res == nil {
		err = errExecutorCrash
	}
	return res, err
}

// succumb is the result of a turn the player did not live to act in.
func succumb(s *Scene) *ActionResult {
	res := &ActionResult{
		Success:        true,
		PlayerDied:     true,
		DamageReceived: s.DOT,
		Message:        "O veneno em suas veias cobra o último preço. Sua visão escurece.",
	}
	res.detail(fmt.Sprintf("dano contínuo: %.2f", s.DOT))
	s.Player.Clamp()
	return res
}

func (pl *Pipeline) narrate(ctx context.Context, ts *turnState, out *outcome) {
	ctx, span := tracer.Start(ctx, "pipeline.narrate")
	defer span.End()

	if out.failed {
		out.narration = Header(ts.at, ts.timeOfDay, ts.player.Location) + "\n\n" + failureNarration
		return
	}
	req := NarrationRequest{
		Player:   ts.player,
		Place:    ts.place,
		Location: ts.player.Location,
		Present:  ts.npcs,
		Action:   out.action,
		Result:   out.result,
		Previous: ts.previous,
		Session:  ts.session,
		Events:   ts.events,
		Weather:  ts.weather,
		At:       ts.at,
		Period:   ts.timeOfDay,
		Opening:  ts.turn == 0 && ts.previous == "",
	}
	if out.mutates() {
		s := out.scene
		req.Player = s.Player
		req.Location = s.Player.Location
		req.Present = s.present()
		req.Session = s.Session
		req.Events = append(append([]string{}, ts.events...), eventLines(s.Events)...)
		if out.result.Moved {
			req.Place = nil
			if place, err := pl.st.GetLocation(ctx, s.Player.Location); err == nil {
				req.Place = place
			}
		}
	}
	req.Memories = map[string]string{}
	for _, n := range req.Present {
		if b := ts.recalled[n.ID]; b != nil && !b.Empty() {
			req.Memories[n.Name] = b.Compact(3)
		}
	}
	out.narration = pl.narrator.Narrate(ctx, req)
}

func (o *outcome) turnResult(ts *turnState) *TurnResult {
	r := &TurnResult{
		PlayerID:  ts.player.ID,
		Turn:      ts.turn,
		Narration: o.narration,
		Action:    o.action,
		Result:    o.result,
		Player:    ts.player,
		NPCs:      ts.npcs,
		Events:    []*models.WorldEvent{},
		Attempts:  o.attempts,
		Failed:    o.failed,
		GameTime:  ts.gameTime,
		WorldTick: o.tick,
	}
	if o.mutates() {
		r.Player = o.scene.Player
		r.NPCs = o.scene.present()
		r.Events = append(r.Events, o.scene.Events...)
	}
	if o.tick != nil {
		r.Events = append(r.Events, o.tick.Events()...)
	}
	if r.NPCs == nil {
		r.NPCs = []*models.NPC{}
	}
	return r
}

var weatherNames = map[worldstate.Weather]string{
	worldstate.Clear:      "céu limpo",
	worldstate.Cloudy:     "nublado",
	worldstate.Rain:       "chuva",
	worldstate.Storm:      "tempestade",
	worldstate.Fog:        "neblina",
	worldstate.Snow:       "neve",
	worldstate.SpiritRain: "chuva espiritual",
}

func weatherName(w worldstate.Weather) string {
	if n, ok := weatherNames[w]; ok {
		return n
	}
	return string(w)
}

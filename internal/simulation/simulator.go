// Package simulation advances the world between player actions: faction
// politics, market prices, monster ecology and hereditary vendettas.
//
// A tick is keyed by turn. Its randomness is derived from the world seed and
// the turn, and the store records every applied tick, so replaying a turn
// returns the recorded report instead of simulating twice.
package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/telemetry"
	"github.com/daicherr/orbis/internal/worldstate"
)

var tracer = telemetry.Tracer("simulation")

var ErrUnknownFaction = errors.New("unknown faction")

// deathLookback bounds how far back unprocessed deaths are searched, in ticks.
const deathLookback = 10

// Oracle receives the results of a tick.
type Oracle interface {
	SyncFactions(ctx context.Context, factions []*models.Faction) error
	SyncPrices(ctx context.Context, items []*models.EconomyItem) error
	AddGlobalEvent(ctx context.Context, e worldstate.Event) error
	AddLocationEvent(ctx context.Context, location string, e worldstate.Event) error
}

type Simulator struct {
	store   *store.Store
	oracle  Oracle
	effects map[string]map[string]float64
	seed    int64
	every   int
	logger  *slog.Logger
}

// TickReport lists the events a tick produced, per step.
type TickReport struct {
	Turn     int                  `json:"turn"`
	Factions []*models.WorldEvent `json:"faction_events"`
	Economy  []*models.WorldEvent `json:"economy_events"`
	Ecology  []*models.WorldEvent `json:"ecology_events"`
	Lineage  []*models.WorldEvent `json:"lineage_events"`
	Replayed bool                 `json:"-"`
}

// Events returns every event of the report in step order.
func (r TickReport) Events() []*models.WorldEvent {
	out := make([]*models.WorldEvent, 0, len(r.Factions)+len(r.Economy)+len(r.Ecology)+len(r.Lineage))
	out = append(out, r.Factions...)
	out = append(out, r.Economy...)
	out = append(out, r.Ecology...)
	return append(out, r.Lineage...)
}

// New returns a simulator ticking every `every` turns. oracle may be nil.
func New(st *store.Store, oracle Oracle, econ catalog.Economy, seed int64, every int, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if every <= 0 {
		every = 10
	}
	return &Simulator{
		store:   st,
		oracle:  oracle,
		effects: econ.EventEffects,
		seed:    seed,
		every:   every,
		logger:  logger,
	}
}

// Due reports whether a tick falls on turn.
func (s *Simulator) Due(turn int) bool {
	return turn > 0 && turn%s.every == 0
}

// Tick advances the world at turn. A turn that was already simulated
// returns its recorded report with Replayed set and changes nothing.
func (s *Simulator) Tick(ctx context.Context, turn int) (TickReport, error) {
	ctx, span := tracer.Start(ctx, "simulation.Tick", trace.WithAttributes(attribute.Int("turn", turn)))
	defer span.End()
	start := time.Now()

	var (
		rep      TickReport
		factions []*models.Faction
		items    []*models.EconomyItem
	)
	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		prev, err := q.TickSummary(ctx, turn)
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(prev), &rep); err != nil {
				return fmt.Errorf("decode tick %d: %w", turn, err)
			}
			rep.Replayed = true
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("read tick %d: %w", turn, err)
		}

		rep, factions, items, err = s.run(ctx, q, turn)
		if err != nil {
			return err
		}
		summary, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("encode tick %d: %w", turn, err)
		}
		recorded, err := q.RecordTick(ctx, turn, string(summary))
		if err != nil {
			return fmt.Errorf("record tick %d: %w", turn, err)
		}
		if !recorded {
			return fmt.Errorf("tick %d: %w", turn, store.ErrConflict)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TickReport{Turn: turn}, err
	}
	span.SetAttributes(attribute.Int("events", len(rep.Events())), attribute.Bool("replayed", rep.Replayed))
	if rep.Replayed {
		s.logger.Debug("tick replayed", "turn", turn)
		return rep, nil
	}

	s.publish(ctx, factions, items, rep)
	s.logger.Info("world tick",
		"turn", turn,
		"faction_events", len(rep.Factions),
		"economy_events", len(rep.Economy),
		"ecology_events", len(rep.Ecology),
		"lineage_events", len(rep.Lineage),
		"took", time.Since(start))
	return rep, nil
}

func (s *Simulator) run(ctx context.Context, q *store.Queries, turn int) (TickReport, []*models.Faction, []*models.EconomyItem, error) {
	rep := TickReport{Turn: turn}
	r := dice.Derive(s.seed, int64(turn))

	factions, err := q.ListFactions(ctx)
	if err != nil {
		return rep, nil, nil, fmt.Errorf("list factions: %w", err)
	}
	sortFactions(factions)
	rep.Factions = factionTurn(factions, r, turn)
	for _, f := range factions {
		if err := q.SaveFaction(ctx, f); err != nil {
			return rep, nil, nil, fmt.Errorf("save faction %s: %w", f.Name, err)
		}
	}
	if err := createEvents(ctx, q, rep.Factions); err != nil {
		return rep, nil, nil, err
	}

	recent, err := q.RecentEvents(ctx, turn-s.every+1, 500)
	if err != nil {
		return rep, nil, nil, fmt.Errorf("recent events: %w", err)
	}
	window := recent[:0]
	for _, e := range recent {
		if e.Turn <= turn {
			window = append(window, e)
		}
	}
	items, err := q.ListEconomy(ctx)
	if err != nil {
		return rep, nil, nil, fmt.Errorf("list economy: %w", err)
	}
	rep.Economy = economyTick(items, window, s.effects, r, turn)
	for _, it := range items {
		if err := q.SaveEconomyItem(ctx, it); err != nil {
			return rep, nil, nil, fmt.Errorf("save price %s: %w", it.Name, err)
		}
	}
	if err := createEvents(ctx, q, rep.Economy); err != nil {
		return rep, nil, nil, err
	}

	regions, err := q.ListEcology(ctx)
	if err != nil {
		return rep, nil, nil, fmt.Errorf("list ecology: %w", err)
	}
	regions, rep.Ecology = ecologyTick(regions, turn)
	for _, reg := range regions {
		if err := q.SaveEcology(ctx, reg); err != nil {
			return rep, nil, nil, fmt.Errorf("save ecology %s: %w", reg.Region, err)
		}
	}
	if err := createEvents(ctx, q, rep.Ecology); err != nil {
		return rep, nil, nil, err
	}

	older, err := q.RecentEvents(ctx, turn-deathLookback*s.every, 500)
	if err != nil {
		return rep, nil, nil, fmt.Errorf("recent deaths: %w", err)
	}
	var deaths []*models.WorldEvent
	for _, e := range older {
		if e.Type == NPCDeath && e.Active && e.Turn <= turn {
			deaths = append(deaths, e)
		}
	}
	rep.Lineage, err = lineageStep(ctx, q, deaths, r, turn)
	if err != nil {
		return rep, nil, nil, err
	}
	if err := createEvents(ctx, q, rep.Lineage); err != nil {
		return rep, nil, nil, err
	}
	return rep, factions, items, nil
}

func createEvents(ctx context.Context, q *store.Queries, events []*models.WorldEvent) error {
	for _, e := range events {
		if err := q.CreateEvent(ctx, e); err != nil {
			return fmt.Errorf("create %s event: %w", e.Type, err)
		}
	}
	return nil
}

// publish pushes a committed tick into the oracle. Failures are logged: the
// store already holds the result and the oracle reloads it on restart.
func (s *Simulator) publish(ctx context.Context, factions []*models.Faction, items []*models.EconomyItem, rep TickReport) {
	if s.oracle == nil {
		return
	}
	if err := s.oracle.SyncFactions(ctx, factions); err != nil {
		s.logger.Warn("sync factions", "turn", rep.Turn, "err", err)
	}
	if err := s.oracle.SyncPrices(ctx, items); err != nil {
		s.logger.Warn("sync prices", "turn", rep.Turn, "err", err)
	}
	for _, e := range rep.Events() {
		ev := OracleEvent(e)
		var err error
		if e.Location != "" {
			err = s.oracle.AddLocationEvent(ctx, e.Location, ev)
			if errors.Is(err, worldstate.ErrUnknownLocation) {
				err = s.oracle.AddGlobalEvent(ctx, ev)
			}
		} else {
			err = s.oracle.AddGlobalEvent(ctx, ev)
		}
		if err != nil {
			s.logger.Warn("publish event", "type", e.Type, "err", err)
		}
	}
}

// OracleEvent converts a stored event into its snapshot form.
func OracleEvent(e *models.WorldEvent) worldstate.Event {
	desc := e.PublicDescription
	if desc == "" {
		desc = e.Description
	}
	return worldstate.Event{
		Type:        e.Type,
		Description: desc,
		Location:    e.Location,
		Data:        e.Effects,
		At:          time.Now().UTC(),
	}
}

// RecordHunt registers kills against the ecology of region.
func RecordHunt(ctx context.Context, q *store.Queries, region, species string, count int) error {
	regions, err := q.ListEcology(ctx)
	if err != nil {
		return err
	}
	for _, r := range regions {
		if r.Region == region {
			Hunt(r, species, count)
			return q.SaveEcology(ctx, r)
		}
	}
	return nil
}

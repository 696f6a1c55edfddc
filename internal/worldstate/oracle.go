package worldstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

var (
	ErrUnknownLocation = errors.New("unknown location")
	ErrUnknownFaction  = errors.New("unknown faction")
)

// Change kinds sent to listeners.
const (
	NPCMoved          = "npc_moved"
	PlayerMoved       = "player_moved"
	WeatherChanged    = "weather_changed"
	GlobalEvent       = "global_event"
	LocationEvent     = "location_event"
	LocationDestroyed = "location_destroyed"
	InfluenceChanged  = "faction_influence"
	TerritoryChanged  = "territory_changed"
	PricesChanged     = "prices_changed"
	TimeAdvanced      = "time_advanced"
)

// Change describes one applied mutation.
type Change struct {
	Kind    string
	Version uint64
	Data    map[string]any
}

// Listener reacts to a change. Errors and panics are logged and dropped.
type Listener func(ctx context.Context, c Change) error

type subscriber struct {
	fn    Listener
	async bool
}

// Repository is what the oracle loads from and flushes to.
type Repository interface {
	ListLocations(ctx context.Context) ([]*models.Location, error)
	ListFactions(ctx context.Context) ([]*models.Faction, error)
	ListEconomy(ctx context.Context) ([]*models.EconomyItem, error)
	LoadWorldSnapshot(ctx context.Context) (uint64, []byte, error)
	SaveWorldSnapshot(ctx context.Context, version uint64, data []byte) error
}

// Oracle is the in-memory world snapshot. The zero value is not usable;
// call New.
type Oracle struct {
	mu    sync.RWMutex
	state State

	subMu  sync.Mutex
	subs   map[int]subscriber
	nextID int

	wg     sync.WaitGroup
	logger *slog.Logger
}

// New returns an empty oracle at time now.
func New(now time.Time, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Oracle{
		state: State{
			Locations: map[string]*LocationState{},
			Factions:  map[string]*FactionState{},
			Economy:   Economy{Prices: map[string]float64{}, Scarcity: map[string]map[string]float64{}},
			Events:    []Event{},
			Weather:   Clear,
		},
		subs:   map[int]subscriber{},
		logger: logger,
	}
	o.setTime(now)
	o.state.Clock = clock.Snapshot{Now: now}
	return o
}

// Load fills the oracle from the last flushed snapshot, or builds it from
// the stored world when no snapshot exists. Regional price modifiers come
// from scarcity.
func (o *Oracle) Load(ctx context.Context, repo Repository, scarcity map[string]map[string]float64) error {
	version, data, err := repo.LoadWorldSnapshot(ctx)
	switch {
	case err == nil:
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode world snapshot: %w", err)
		}
		s.Version = version
		o.mu.Lock()
		o.state = normalize(s)
		o.mu.Unlock()
		o.logger.Info("world state restored", "version", version, "locations", len(s.Locations))
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load world snapshot: %w", err)
	}

	locations, err := repo.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("list locations: %w", err)
	}
	factions, err := repo.ListFactions(ctx)
	if err != nil {
		return fmt.Errorf("list factions: %w", err)
	}
	economy, err := repo.ListEconomy(ctx)
	if err != nil {
		return fmt.Errorf("list economy: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range locations {
		o.state.Locations[l.Name] = &LocationState{
			Name:      l.Name,
			Weather:   weatherOr(l.Weather),
			Danger:    max(1, (l.DangerMin+l.DangerMax)/2),
			QiDensity: qiDensityFor(l.Name, l.Biome),
			NPCs:      map[int64]bool{},
			Players:   map[int64]bool{},
			Destroyed: l.Destroyed,
			Faction:   l.Faction,
			Resources: l.Resources,
			Events:    []Event{},
		}
	}
	for _, f := range factions {
		o.state.Factions[f.Name] = factionState(f)
		for _, t := range f.Territories {
			if l, ok := o.state.Locations[t]; ok {
				l.Faction = f.Name
			}
		}
	}
	for _, e := range economy {
		o.state.Economy.Prices[e.Name] = e.CurrentPrice
	}
	for region, mods := range scarcity {
		o.state.Economy.Scarcity[region] = mods
	}
	o.state.Version = 1
	o.logger.Info("world state initialized", "locations", len(locations), "factions", len(factions))
	return nil
}

func normalize(s State) State {
	if s.Locations == nil {
		s.Locations = map[string]*LocationState{}
	}
	for _, l := range s.Locations {
		if l.NPCs == nil {
			l.NPCs = map[int64]bool{}
		}
		if l.Players == nil {
			l.Players = map[int64]bool{}
		}
	}
	if s.Factions == nil {
		s.Factions = map[string]*FactionState{}
	}
	if s.Economy.Prices == nil {
		s.Economy.Prices = map[string]float64{}
	}
	if s.Economy.Scarcity == nil {
		s.Economy.Scarcity = map[string]map[string]float64{}
	}
	return s
}

func weatherOr(w string) Weather {
	if w == "" {
		return Clear
	}
	return Weather(w)
}

func factionState(f *models.Faction) *FactionState {
	atWar := false
	for _, rel := range f.Relations {
		if rel == models.AtWar {
			atWar = true
		}
	}
	return &FactionState{
		Name:      f.Name,
		Influence: math.Min(100, f.Power/10),
		Treasury:  f.Treasury,
		Territory: append([]string(nil), f.Territories...),
		Allies:    append([]string(nil), f.Allies...),
		Enemies:   append([]string(nil), f.Enemies...),
		AtWar:     atWar,
	}
}

func (o *Oracle) setTime(now time.Time) {
	o.state.Now = now
	o.state.Moon = MoonPhaseOf(now.Day())
	o.state.Season = seasonOf(now.Month())
}

// Subscribe registers a listener called synchronously after each mutation.
// The returned func removes it.
func (o *Oracle) Subscribe(fn Listener) func() {
	return o.subscribe(fn, false)
}

// SubscribeAsync registers a listener run on its own goroutine per change.
func (o *Oracle) SubscribeAsync(fn Listener) func() {
	return o.subscribe(fn, true)
}

func (o *Oracle) subscribe(fn Listener, async bool) func() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	id := o.nextID
	o.nextID++
	o.subs[id] = subscriber{fn: fn, async: async}
	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// Wait blocks until in-flight async listeners return.
func (o *Oracle) Wait() {
	o.wg.Wait()
}

func (o *Oracle) notify(ctx context.Context, c Change) {
	o.subMu.Lock()
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, o.subs[id])
	}
	o.subMu.Unlock()

	for _, s := range subs {
		if s.async {
			o.wg.Add(1)
			go func(fn Listener) {
				defer o.wg.Done()
				o.call(context.WithoutCancel(ctx), fn, c)
			}(s.fn)
			continue
		}
		o.call(ctx, s.fn, c)
	}
}

func (o *Oracle) call(ctx context.Context, fn Listener, c Change) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("world state listener panicked", "change", c.Kind, "panic", r)
		}
	}()
	if err := fn(ctx, c); err != nil {
		o.logger.Warn("world state listener failed", "change", c.Kind, "err", err)
	}
}

// mutate runs fn under the write lock, bumps the version and notifies
// listeners once the lock is released. fn returns the change payload, or
// nil data with no error to skip notification.
func (o *Oracle) mutate(ctx context.Context, kind string, fn func(s *State) (map[string]any, error)) error {
	o.mu.Lock()
	data, err := fn(&o.state)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.state.Version++
	version := o.state.Version
	o.mu.Unlock()

	if data != nil {
		o.notify(ctx, Change{Kind: kind, Version: version, Data: data})
	}
	return nil
}

func (o *Oracle) UpdateNPCLocation(ctx context.Context, npcID int64, from, to string) error {
	return o.mutate(ctx, NPCMoved, func(s *State) (map[string]any, error) {
		if l, ok := s.Locations[from]; ok {
			delete(l.NPCs, npcID)
		}
		if l, ok := s.Locations[to]; ok {
			l.NPCs[npcID] = true
		}
		return map[string]any{"npc_id": npcID, "from": from, "to": to}, nil
	})
}

func (o *Oracle) UpdatePlayerLocation(ctx context.Context, playerID int64, from, to string) error {
	return o.mutate(ctx, PlayerMoved, func(s *State) (map[string]any, error) {
		if l, ok := s.Locations[from]; ok {
			delete(l.Players, playerID)
		}
		if l, ok := s.Locations[to]; ok {
			l.Players[playerID] = true
		}
		return map[string]any{"player_id": playerID, "from": from, "to": to}, nil
	})
}

func (o *Oracle) UpdateWeather(ctx context.Context, location string, w Weather) error {
	return o.mutate(ctx, WeatherChanged, func(s *State) (map[string]any, error) {
		l, ok := s.Locations[location]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, location)
		}
		l.Weather = w
		l.UpdatedAt = s.Now
		return map[string]any{"location": location, "weather": string(w)}, nil
	})
}

func (o *Oracle) AddGlobalEvent(ctx context.Context, e Event) error {
	return o.mutate(ctx, GlobalEvent, func(s *State) (map[string]any, error) {
		if e.At.IsZero() {
			e.At = s.Now
		}
		s.Events = append(s.Events, e)
		return map[string]any{"type": e.Type, "description": e.Description, "location": e.Location}, nil
	})
}

func (o *Oracle) AddLocationEvent(ctx context.Context, location string, e Event) error {
	return o.mutate(ctx, LocationEvent, func(s *State) (map[string]any, error) {
		l, ok := s.Locations[location]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, location)
		}
		if e.At.IsZero() {
			e.At = s.Now
		}
		e.Location = location
		l.Events = append(l.Events, e)
		return map[string]any{"type": e.Type, "location": location}, nil
	})
}

// DestroyLocation marks a location destroyed and raises its danger to 10.
func (o *Oracle) DestroyLocation(ctx context.Context, location string) error {
	return o.mutate(ctx, LocationDestroyed, func(s *State) (map[string]any, error) {
		l, ok := s.Locations[location]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, location)
		}
		l.Destroyed = true
		l.Danger = 10
		return map[string]any{"location": location}, nil
	})
}

// UpdateFactionInfluence moves influence by delta within [0, 100].
func (o *Oracle) UpdateFactionInfluence(ctx context.Context, faction string, delta float64) error {
	return o.mutate(ctx, InfluenceChanged, func(s *State) (map[string]any, error) {
		f, ok := s.Factions[faction]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFaction, faction)
		}
		f.Influence = math.Max(0, math.Min(100, f.Influence+delta))
		return map[string]any{"faction": faction, "influence": f.Influence}, nil
	})
}

// SetController hands a location to a faction.
func (o *Oracle) SetController(ctx context.Context, location, faction string) error {
	return o.mutate(ctx, TerritoryChanged, func(s *State) (map[string]any, error) {
		l, ok := s.Locations[location]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, location)
		}
		previous := l.Faction
		l.Faction = faction
		return map[string]any{"location": location, "from": previous, "to": faction}, nil
	})
}

// SyncFactions replaces faction state with the simulator's result.
func (o *Oracle) SyncFactions(ctx context.Context, factions []*models.Faction) error {
	return o.mutate(ctx, InfluenceChanged, func(s *State) (map[string]any, error) {
		for _, f := range factions {
			s.Factions[f.Name] = factionState(f)
			for _, t := range f.Territories {
				if l, ok := s.Locations[t]; ok {
					l.Faction = f.Name
				}
			}
		}
		return map[string]any{"factions": len(factions)}, nil
	})
}

// SyncPrices replaces current prices with the simulator's result.
func (o *Oracle) SyncPrices(ctx context.Context, items []*models.EconomyItem) error {
	return o.mutate(ctx, PricesChanged, func(s *State) (map[string]any, error) {
		for _, it := range items {
			s.Economy.Prices[it.Name] = it.CurrentPrice
		}
		return map[string]any{"items": len(items)}, nil
	})
}

// UpdatePrice multiplies one item's price.
func (o *Oracle) UpdatePrice(ctx context.Context, item string, modifier float64) error {
	return o.mutate(ctx, PricesChanged, func(s *State) (map[string]any, error) {
		if p, ok := s.Economy.Prices[item]; ok {
			s.Economy.Prices[item] = models.Round2(p * modifier)
		}
		return map[string]any{"item": item, "modifier": modifier}, nil
	})
}

// AdvanceTime moves the snapshot to the clock's time and keeps the clock
// state for the next restart. Each location has a 10% chance of a weather
// change per call, drawn from r; expired events are dropped.
func (o *Oracle) AdvanceTime(ctx context.Context, c clock.Snapshot, r *dice.Roller) error {
	now := c.Now
	return o.mutate(ctx, TimeAdvanced, func(s *State) (map[string]any, error) {
		s.Now = now
		s.Clock = c
		s.Moon = MoonPhaseOf(now.Day())
		s.Season = seasonOf(now.Month())
		names := make([]string, 0, len(s.Locations))
		for name := range s.Locations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			l := s.Locations[name]
			if r != nil && r.Chance(0.1) {
				l.Weather = dice.Pick(r, allWeather)
				l.UpdatedAt = now
			}
			l.Events = liveEvents(l.Events)
		}
		s.Events = liveEvents(s.Events)
		return map[string]any{"now": now, "moon": string(s.Moon)}, nil
	})
}

func liveEvents(events []Event) []Event {
	out := events[:0]
	for _, e := range events {
		if !e.Expired {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a deep copy of the whole state.
func (o *Oracle) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

func (o *Oracle) Version() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Version
}

func (o *Oracle) Moon() MoonPhase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Moon
}

// MoonModifier is the cultivation modifier of the current moon phase.
func (o *Oracle) MoonModifier() float64 {
	return o.Moon().CultivationModifier()
}

func (o *Oracle) Season() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Season
}

func (o *Oracle) Location(name string) (LocationState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	l, ok := o.state.Locations[name]
	if !ok {
		return LocationState{}, false
	}
	return *l.clone(), true
}

func (o *Oracle) Faction(name string) (FactionState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f, ok := o.state.Factions[name]
	if !ok {
		return FactionState{}, false
	}
	return *f, true
}

// Weather at location, or the global trend for unknown locations.
func (o *Oracle) Weather(location string) Weather {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if l, ok := o.state.Locations[location]; ok {
		return l.Weather
	}
	return o.state.Weather
}

// Danger level of a location, 1 when unknown.
func (o *Oracle) Danger(location string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if l, ok := o.state.Locations[location]; ok {
		return l.Danger
	}
	return 1
}

// QiDensity is the location's density adjusted for full and new moons.
func (o *Oracle) QiDensity(location string) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	density := 1.0
	if l, ok := o.state.Locations[location]; ok {
		density = l.QiDensity
	}
	switch o.state.Moon {
	case FullMoon:
		density *= 1.5
	case NewMoon:
		density *= 0.7
	}
	return density
}

func (o *Oracle) NPCsAt(location string) []int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	l, ok := o.state.Locations[location]
	if !ok {
		return nil
	}
	return sortedIDs(l.NPCs)
}

func (o *Oracle) PlayersAt(location string) []int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	l, ok := o.state.Locations[location]
	if !ok {
		return nil
	}
	return sortedIDs(l.Players)
}

func sortedIDs(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActiveEvents returns global events plus those of location.
func (o *Oracle) ActiveEvents(location string) []Event {
	o.mu.RLock()
	defer o.mu.RUnlock()
	events := append([]Event(nil), o.state.Events...)
	if l, ok := o.state.Locations[location]; ok {
		events = append(events, l.Events...)
	}
	return events
}

func (o *Oracle) ControllingFaction(location string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if l, ok := o.state.Locations[location]; ok {
		return l.Faction
	}
	return ""
}

// Price of item at location: current price times the regional scarcity
// modifier times (1 + inflation), rounded to cents. Unknown items cost 100.
func (o *Oracle) Price(item, location string) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.state.Economy.Prices[item]
	if !ok {
		price = 100
	}
	if mods, ok := o.state.Economy.Scarcity[location]; ok {
		if m, ok := mods[item]; ok {
			price *= m
		}
	}
	price *= 1 + o.state.Economy.Inflation
	return models.Round2(price)
}

// Flush writes the snapshot to repo. Older versions never overwrite newer
// ones.
func (o *Oracle) Flush(ctx context.Context, repo Repository) error {
	o.mu.Lock()
	o.state.LastSync = time.Now().UTC()
	version := o.state.Version
	data, err := json.Marshal(&o.state)
	o.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode world snapshot: %w", err)
	}
	if err := repo.SaveWorldSnapshot(ctx, version, data); err != nil {
		return fmt.Errorf("save world snapshot: %w", err)
	}
	o.logger.Debug("world state flushed", "version", version)
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (o *Oracle) Run(ctx context.Context, repo Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := o.Version()
	for {
		select {
		case <-ctx.Done():
			if err := o.Flush(context.WithoutCancel(ctx), repo); err != nil {
				o.logger.Warn("final world flush failed", "err", err)
			}
			return
		case <-ticker.C:
			v := o.Version()
			if v == last {
				continue
			}
			if err := o.Flush(ctx, repo); err != nil {
				o.logger.Warn("world flush failed", "err", err)
				continue
			}
			last = v
		}
	}
}

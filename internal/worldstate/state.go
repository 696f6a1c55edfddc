// Package worldstate keeps the process-wide snapshot of the world: time,
// moon, weather and danger per location, faction influence and prices.
//
// Reads are cheap and lock-free for callers; every mutation bumps a version
// counter, notifies listeners and is flushed to the store in the background.
package worldstate

import (
	"strings"
	"time"

	"github.com/daicherr/orbis/internal/clock"
)

type MoonPhase string

const (
	NewMoon        MoonPhase = "new_moon"
	WaxingCrescent MoonPhase = "waxing_crescent"
	FirstQuarter   MoonPhase = "first_quarter"
	WaxingGibbous  MoonPhase = "waxing_gibbous"
	FullMoon       MoonPhase = "full_moon"
	WaningGibbous  MoonPhase = "waning_gibbous"
	LastQuarter    MoonPhase = "last_quarter"
	WaningCrescent MoonPhase = "waning_crescent"
)

// MoonPhaseOf buckets a day of the month into a phase.
func MoonPhaseOf(dayOfMonth int) MoonPhase {
	switch {
	case dayOfMonth <= 3:
		return NewMoon
	case dayOfMonth <= 7:
		return WaxingCrescent
	case dayOfMonth <= 11:
		return FirstQuarter
	case dayOfMonth <= 14:
		return WaxingGibbous
	case dayOfMonth <= 17:
		return FullMoon
	case dayOfMonth <= 21:
		return WaningGibbous
	case dayOfMonth <= 25:
		return LastQuarter
	}
	return WaningCrescent
}

var moonModifiers = map[MoonPhase]float64{
	NewMoon:        0.7,
	WaxingCrescent: 0.85,
	FirstQuarter:   1.0,
	WaxingGibbous:  1.1,
	FullMoon:       1.5,
	WaningGibbous:  1.1,
	LastQuarter:    1.0,
	WaningCrescent: 0.85,
}

// CultivationModifier scales qi gained from meditation.
func (m MoonPhase) CultivationModifier() float64 {
	if v, ok := moonModifiers[m]; ok {
		return v
	}
	return 1
}

type Weather string

const (
	Clear      Weather = "clear"
	Cloudy     Weather = "cloudy"
	Rain       Weather = "rain"
	Storm      Weather = "storm"
	Fog        Weather = "fog"
	Snow       Weather = "snow"
	SpiritRain Weather = "spirit_rain"
)

var allWeather = []Weather{Clear, Cloudy, Rain, Storm, Fog, Snow, SpiritRain}

// Event is a global or location-bound happening kept in the snapshot.
type Event struct {
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	At          time.Time      `json:"timestamp"`
	Expired     bool           `json:"expired,omitempty"`
}

type LocationState struct {
	Name      string         `json:"name"`
	Weather   Weather        `json:"weather"`
	Danger    int            `json:"danger_level"`
	QiDensity float64        `json:"qi_density"`
	NPCs      map[int64]bool `json:"npc_ids"`
	Players   map[int64]bool `json:"player_ids"`
	Destroyed bool           `json:"is_destroyed"`
	Faction   string         `json:"controlling_faction,omitempty"`
	Resources map[string]int `json:"resources,omitempty"`
	Events    []Event        `json:"active_events"`
	UpdatedAt time.Time      `json:"last_updated"`
}

func (l *LocationState) clone() *LocationState {
	c := *l
	c.NPCs = copySet(l.NPCs)
	c.Players = copySet(l.Players)
	c.Events = append([]Event(nil), l.Events...)
	if l.Resources != nil {
		c.Resources = make(map[string]int, len(l.Resources))
		for k, v := range l.Resources {
			c.Resources[k] = v
		}
	}
	return &c
}

type FactionState struct {
	Name      string   `json:"name"`
	Influence float64  `json:"influence"`
	Treasury  float64  `json:"treasury"`
	Territory []string `json:"territory"`
	Allies    []string `json:"allies"`
	Enemies   []string `json:"enemies"`
	AtWar     bool     `json:"at_war"`
}

type Economy struct {
	Inflation float64                       `json:"inflation_rate"`
	Prices    map[string]float64            `json:"item_prices"`
	Scarcity  map[string]map[string]float64 `json:"scarcity"`
}

// State is the full snapshot. Values returned by the Oracle are copies.
type State struct {
	Now       time.Time                 `json:"current_datetime"`
	Clock     clock.Snapshot            `json:"clock"`
	Moon      MoonPhase                 `json:"moon_phase"`
	Season    string                    `json:"season"`
	Weather   Weather                   `json:"global_weather"`
	Locations map[string]*LocationState `json:"locations"`
	Factions  map[string]*FactionState  `json:"factions"`
	Economy   Economy                   `json:"economy"`
	Events    []Event                   `json:"global_events"`
	Version   uint64                    `json:"version"`
	LastSync  time.Time                 `json:"last_sync"`
}

func (s *State) clone() State {
	c := *s
	c.Locations = make(map[string]*LocationState, len(s.Locations))
	for k, v := range s.Locations {
		c.Locations[k] = v.clone()
	}
	c.Factions = make(map[string]*FactionState, len(s.Factions))
	for k, v := range s.Factions {
		f := *v
		f.Territory = append([]string(nil), v.Territory...)
		f.Allies = append([]string(nil), v.Allies...)
		f.Enemies = append([]string(nil), v.Enemies...)
		c.Factions[k] = &f
	}
	c.Economy.Prices = make(map[string]float64, len(s.Economy.Prices))
	for k, v := range s.Economy.Prices {
		c.Economy.Prices[k] = v
	}
	c.Economy.Scarcity = make(map[string]map[string]float64, len(s.Economy.Scarcity))
	for region, mods := range s.Economy.Scarcity {
		m := make(map[string]float64, len(mods))
		for k, v := range mods {
			m[k] = v
		}
		c.Economy.Scarcity[region] = m
	}
	c.Events = append([]Event(nil), s.Events...)
	return c
}

func copySet(in map[int64]bool) map[int64]bool {
	out := make(map[int64]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

// qiByBiome gives the base qi density of a location by biome keyword.
var qiByBiome = []struct {
	keyword string
	density float64
}{
	{"lago", 2.0}, {"lake", 2.0},
	{"ruín", 1.8}, {"ruin", 1.8},
	{"montanha", 1.5}, {"mountain", 1.5}, {"picos", 1.5},
	{"templo", 1.4}, {"seita", 1.3}, {"sect", 1.3},
	{"floresta", 1.2}, {"forest", 1.2},
	{"pântano", 0.7}, {"swamp", 0.7},
	{"cidade", 0.8}, {"city", 0.8},
}

func qiDensityFor(name, biome string) float64 {
	key := strings.ToLower(name + " " + biome)
	for _, q := range qiByBiome {
		if strings.Contains(key, q.keyword) {
			return q.density
		}
	}
	return 1.0
}

func seasonOf(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "autumn"
	}
	return "winter"
}

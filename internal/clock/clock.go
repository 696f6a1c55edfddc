// Package clock is the single in-process authority for in-game time.
//
// Every advance is one or more whole in-game hours. The clock keeps a turn
// counter alongside the time and reports day changes and dawn crossings so
// that callers can schedule daily work exactly once per in-game day.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// DateLayout is the in-game timestamp format used in logs, memories and prompts.
const DateLayout = "02-01-2006 15:04"

// DawnHour is the hour at which a new in-game day "begins" for daily work.
const DawnHour = 6

// Epoch is the default start of the in-game calendar.
var Epoch = time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimeOfDay is a named slot of the in-game day.
type TimeOfDay string

const (
	Dawn      TimeOfDay = "dawn"
	Morning   TimeOfDay = "morning"
	Noon      TimeOfDay = "noon"
	Afternoon TimeOfDay = "afternoon"
	Dusk      TimeOfDay = "dusk"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
	Midnight  TimeOfDay = "midnight"
)

// Season follows the month of the in-game calendar.
type Season string

const (
	Spring Season = "Spring"
	Summer Season = "Summer"
	Autumn Season = "Autumn"
	Winter Season = "Winter"
)

// Tick describes the outcome of one Advance call.
type Tick struct {
	Hour        int
	Turn        int
	DayChanged  bool
	DawnCrossed bool
}

// Snapshot is the persisted form of a Clock.
type Snapshot struct {
	Now      time.Time `json:"now" yaml:"now"`
	Turn     int       `json:"turn" yaml:"turn"`
	LastDawn time.Time `json:"last_dawn" yaml:"last_dawn"`
}

// Clock is safe for concurrent use.
type Clock struct {
	mu       sync.Mutex
	now      time.Time
	turn     int
	lastDawn time.Time // calendar day of the last dawn event, zero if none
}

// New returns a clock starting at start with turn 0.
func New(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Restore rebuilds a clock from a snapshot.
func Restore(s Snapshot) *Clock {
	return &Clock{now: s.Now.UTC(), turn: s.Turn, lastDawn: s.LastDawn.UTC()}
}

// Snapshot returns the persisted form of the clock.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Now: c.now, Turn: c.turn, LastDawn: c.lastDawn}
}

// Advance moves the clock forward by hours (minimum 1) and increments the turn index.
// A dawn event fires at most once per calendar day, however many times 06:00 is crossed.
func (c *Clock) Advance(hours int) Tick {
	if hours < 1 {
		hours = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	startDay := day(c.now)
	dawn := false
	for i := 0; i < hours; i++ {
		c.now = c.now.Add(time.Hour)
		if c.now.Hour() == DawnHour {
			d := day(c.now)
			if !d.Equal(c.lastDawn) {
				c.lastDawn = d
				dawn = true
			}
		}
	}
	c.turn++
	return Tick{
		Hour:        c.now.Hour(),
		Turn:        c.turn,
		DayChanged:  !day(c.now).Equal(startDay),
		DawnCrossed: dawn,
	}
}

// Now returns the current in-game time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TurnIndex returns the number of Advance calls so far.
func (c *Clock) TurnIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// TimeOfDay returns the named slot of the current hour.
func (c *Clock) TimeOfDay() TimeOfDay {
	return SlotOf(c.Now().Hour())
}

// Season returns the season of the current month.
func (c *Clock) Season() Season {
	return SeasonOf(c.Now().Month())
}

// Formatted returns the current time in DateLayout.
func (c *Clock) Formatted() string {
	return c.Now().Format(DateLayout)
}

// DaysElapsed counts whole in-game days since Epoch.
func (c *Clock) DaysElapsed() int {
	return int(day(c.Now()).Sub(day(Epoch)).Hours() / 24)
}

// SlotOf discretizes an hour of the day.
func SlotOf(hour int) TimeOfDay {
	switch {
	case hour >= 5 && hour < 7:
		return Dawn
	case hour >= 7 && hour < 11:
		return Morning
	case hour >= 11 && hour < 13:
		return Noon
	case hour >= 13 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 19:
		return Dusk
	case hour >= 19 && hour < 21:
		return Evening
	case hour >= 21:
		return Night
	default:
		return Midnight
	}
}

// SeasonOf maps a month onto a season.
func SeasonOf(m time.Month) Season {
	switch m {
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	case time.September, time.October, time.November:
		return Autumn
	default:
		return Winter
	}
}

// Parse reads a timestamp written with DateLayout.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse game time %q: %w", s, err)
	}
	return t, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

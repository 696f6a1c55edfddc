package clock

import (
	"testing"
	"time"
)

func TestAdvanceTwentyFourHoursFiresOneDawn(t *testing.T) {
	c := New(Epoch)
	dawns := 0
	dayChanges := 0
	for i := 0; i < 24; i++ {
		tick := c.Advance(1)
		if tick.DawnCrossed {
			dawns++
		}
		if tick.DayChanged {
			dayChanges++
		}
	}
	if dawns != 1 {
		t.Errorf("expected exactly one dawn, got %d", dawns)
	}
	if dayChanges != 1 {
		t.Errorf("expected exactly one day change, got %d", dayChanges)
	}
	if got := c.Now().Sub(Epoch); got != 24*time.Hour {
		t.Errorf("expected clock to move 24h, moved %v", got)
	}
	if c.DaysElapsed() != 1 {
		t.Errorf("expected 1 day elapsed, got %d", c.DaysElapsed())
	}
	if c.TurnIndex() != 24 {
		t.Errorf("expected turn index 24, got %d", c.TurnIndex())
	}
}

func TestDawnFiresOncePerDayAfterRestore(t *testing.T) {
	c := New(time.Date(1000, 1, 1, 5, 0, 0, 0, time.UTC))
	if tick := c.Advance(1); !tick.DawnCrossed {
		t.Fatal("expected dawn when crossing 06:00")
	}
	restored := Restore(c.Snapshot())
	// Rewinding is impossible, but a restored clock must remember today's dawn.
	restored.now = time.Date(1000, 1, 1, 5, 0, 0, 0, time.UTC)
	if tick := restored.Advance(1); tick.DawnCrossed {
		t.Error("dawn fired twice on the same day")
	}
}

func TestMultiHourAdvanceCrossingDawn(t *testing.T) {
	c := New(time.Date(1000, 1, 1, 3, 0, 0, 0, time.UTC))
	tick := c.Advance(8)
	if !tick.DawnCrossed {
		t.Error("expected dawn inside an 8h advance from 03:00")
	}
	if tick.Hour != 11 {
		t.Errorf("expected hour 11, got %d", tick.Hour)
	}
	if tick.Turn != 1 {
		t.Errorf("expected one turn per advance call, got %d", tick.Turn)
	}
}

func TestSlotsAndSeasons(t *testing.T) {
	slots := map[int]TimeOfDay{0: Midnight, 4: Midnight, 5: Dawn, 6: Dawn, 8: Morning, 12: Noon, 15: Afternoon, 18: Dusk, 20: Evening, 22: Night}
	for hour, want := range slots {
		if got := SlotOf(hour); got != want {
			t.Errorf("SlotOf(%d) = %s, want %s", hour, got, want)
		}
	}
	if SeasonOf(time.January) != Winter || SeasonOf(time.April) != Spring || SeasonOf(time.July) != Summer || SeasonOf(time.October) != Autumn {
		t.Error("unexpected season mapping")
	}
}

func TestFormattedRoundTrip(t *testing.T) {
	c := New(Epoch)
	c.Advance(13)
	got, err := Parse(c.Formatted())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(c.Now()) {
		t.Errorf("round trip mismatch: %v vs %v", got, c.Now())
	}
	if c.Formatted() != "01-01-1000 13:00" {
		t.Errorf("unexpected format %q", c.Formatted())
	}
}

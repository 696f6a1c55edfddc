package pipeline

import (
	"strings"
	"time"

	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
)

// turnState is what the entry stage loaded. Attempts never mutate it.
type turnState struct {
	player  *models.Player
	npcs    []*models.NPC
	place   *models.Location
	session *session.Context
	quests  []*models.Quest

	turn      int
	worldTurn int
	gameTime  string
	timeOfDay clock.TimeOfDay
	moon      float64
	recalled  map[int64]*memory.Bundle

	seed     int64
	dynamic  bool
	previous string
	events   []string
	weather  string
	at       time.Time
}

type witnessed struct {
	owner models.Ref
	event memory.Event
}

type hunt struct {
	location string
	species  string
}

// Scene is the speculative state of one attempt. Everything in it is a
// copy; nothing reaches the store until the attempt is committed.
type Scene struct {
	Player  *models.Player
	NPCs    []*models.NPC
	Place   *models.Location
	Session *session.Context
	Quests  []*models.Quest

	Turn      int
	GameTime  string
	TimeOfDay clock.TimeOfDay
	Moon      float64

	DOT float64

	Events    []*models.WorldEvent
	Economy   []*models.EconomyItem
	NewQuests []*models.Quest

	touched    map[int64]*models.NPC
	placeDirty bool
	hunts      []hunt
	memories   []witnessed
}

func newScene(ts *turnState) (*Scene, error) {
	sc, err := ts.session.Clone()
	if err != nil {
		return nil, err
	}
	s := &Scene{
		Player:    ts.player.Clone(),
		Session:   sc,
		Turn:      ts.turn,
		GameTime:  ts.gameTime,
		TimeOfDay: ts.timeOfDay,
		Moon:      ts.moon,
		touched:   map[int64]*models.NPC{},
	}
	for _, n := range ts.npcs {
		s.NPCs = append(s.NPCs, n.Clone())
	}
	if ts.place != nil {
		p := *ts.place
		p.Resources = make(map[string]int, len(ts.place.Resources))
		for k, v := range ts.place.Resources {
			p.Resources[k] = v
		}
		s.Place = &p
	}
	for _, q := range ts.quests {
		c := *q
		c.RewardItems = append([]models.InventoryItem(nil), q.RewardItems...)
		s.Quests = append(s.Quests, &c)
	}
	return s, nil
}

func (s *Scene) touch(n *models.NPC) { s.touched[n.ID] = n }

// tickEffects runs status effects before the action: damage over time
// lands on the player and on every present NPC carrying effects.
func (s *Scene) tickEffects() {
	s.DOT = combat.Tick(s.Player)
	for _, n := range s.present() {
		if len(n.Effects) == 0 {
			continue
		}
		combat.Tick(n)
		s.touch(n)
	}
}

// Touched returns the NPCs the attempt changed.
func (s *Scene) Touched() []*models.NPC {
	out := make([]*models.NPC, 0, len(s.touched))
	for _, n := range s.NPCs {
		if _, ok := s.touched[n.ID]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Scene) remember(owner models.Ref, ev memory.Event) {
	if ev.Location == "" {
		ev.Location = s.Player.Location
	}
	ev.GameTime = s.GameTime
	ev.Period = string(s.TimeOfDay)
	ev.Turn = s.Turn
	s.memories = append(s.memories, witnessed{owner: owner, event: ev})
}

// witnesses are the living NPCs present other than those named.
func (s *Scene) witnesses(except ...*models.NPC) []*models.NPC {
	var out []*models.NPC
outer:
	for _, n := range s.NPCs {
		if !n.IsAlive() || n.Location != s.Player.Location {
			continue
		}
		for _, e := range except {
			if e != nil && e.ID == n.ID {
				continue outer
			}
		}
		out = append(out, n)
	}
	return out
}

// present returns the living NPCs still in the player's location.
func (s *Scene) present() []*models.NPC {
	return s.witnesses()
}

func (s *Scene) hostiles() []*models.NPC {
	var out []*models.NPC
	for _, n := range s.present() {
		if n.IsHostile() {
			out = append(out, n)
		}
	}
	return out
}

// target finds the NPC named by name. An empty name picks the only
// candidate: a hostile for a fight, a speaker for a conversation.
func (s *Scene) target(name string, fight bool) *models.NPC {
	present := s.present()
	if name != "" {
		if n := findNPC(present, name); n != nil {
			return n
		}
		return nil
	}
	var pick []*models.NPC
	for _, n := range present {
		if (fight && n.IsHostile()) || (!fight && n.CanSpeak) {
			pick = append(pick, n)
		}
	}
	if len(pick) == 0 && len(present) == 1 {
		return present[0]
	}
	if len(pick) >= 1 {
		return pick[0]
	}
	return nil
}

func (s *Scene) activeQuest() bool {
	for _, q := range s.Quests {
		if q.Status == models.QuestActive {
			return true
		}
	}
	for _, q := range s.NewQuests {
		if q.Status == models.QuestActive {
			return true
		}
	}
	return false
}

func (s *Scene) allQuests() []*models.Quest {
	return append(append([]*models.Quest{}, s.Quests...), s.NewQuests...)
}

func (s *Scene) exitNames() []string { return exits(s.Place) }

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

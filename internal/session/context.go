// Package session holds the short-term narrative state of a player's game:
// recent turns, tension, hooks, plot threads and the scene.
package session

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/models"
)

// Beat is the narrative act of the session.
type Beat string

const (
	Setup      Beat = "setup"
	Rising     Beat = "rising"
	Climax     Beat = "climax"
	Falling    Beat = "falling"
	Resolution Beat = "resolution"
)

// EntityKind classifies what is present in a scene.
type EntityKind string

const (
	KindPlayer   EntityKind = "player"
	KindFriendly EntityKind = "npc_friendly"
	KindHostile  EntityKind = "npc_hostile"
	KindNeutral  EntityKind = "npc_neutral"
	KindBeast    EntityKind = "beast"
	KindSpirit   EntityKind = "spirit"
)

// Entity is a light view of a character in the scene.
type Entity struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Kind           EntityKind `json:"entity_type"`
	Species        string     `json:"species"`
	Gender         string     `json:"gender"`
	CanSpeak       bool       `json:"can_speak"`
	EmotionalState string     `json:"emotional_state"`
	Rank           int        `json:"rank"`
	HPPercent      float64    `json:"current_hp_percent"`
	Traits         []string   `json:"notable_traits"`
}

func EntityFromNPC(n *models.NPC) Entity {
	kind := KindNeutral
	switch {
	case n.Incorporeal():
		kind = KindSpirit
	case n.Species != "" && n.Species != "human":
		kind = KindBeast
	case n.EmotionalState == models.Hostile:
		kind = KindHostile
	case n.EmotionalState == models.Friendly:
		kind = KindFriendly
	}
	traits := n.Personality
	if len(traits) > 3 {
		traits = traits[:3]
	}
	species := n.Species
	if species == "" {
		species = "human"
	}
	return Entity{
		ID:             n.ID,
		Name:           n.Name,
		Kind:           kind,
		Species:        species,
		Gender:         n.Gender,
		CanSpeak:       n.CanSpeak,
		EmotionalState: n.EmotionalState,
		Rank:           n.Rank,
		HPPercent:      n.HPPercent(),
		Traits:         append([]string{}, traits...),
	}
}

// TimeSnapshot is the in-game time as of the last turn.
type TimeSnapshot struct {
	Now       time.Time `json:"current_datetime"`
	TimeOfDay string    `json:"time_of_day"`
	Season    string    `json:"season"`
	Turn      int       `json:"turn_number"`
	Days      int       `json:"days_elapsed"`
}

func SnapshotOf(c *clock.Clock) TimeSnapshot {
	return TimeSnapshot{
		Now:       c.Now(),
		TimeOfDay: string(c.TimeOfDay()),
		Season:    string(c.Season()),
		Turn:      c.TurnIndex(),
		Days:      c.DaysElapsed(),
	}
}

// TurnSummary is one entry of the recent-turn ring.
type TurnSummary struct {
	Turn        int       `json:"turn_number"`
	Input       string    `json:"player_input"`
	Action      string    `json:"interpreted_action"`
	Result      string    `json:"action_result,omitempty"`
	Narration   string    `json:"scene_description"`
	Location    string    `json:"location"`
	NPCs        []string  `json:"npcs_involved"`
	Beat        Beat      `json:"emotional_beat"`
	At          time.Time `json:"timestamp"`
	Combat      bool      `json:"combat_occurred"`
	Killed      string    `json:"npc_killed,omitempty"`
	Item        string    `json:"item_obtained,omitempty"`
	Moved       bool      `json:"location_changed"`
	NewLocation string    `json:"new_location,omitempty"`
}

func (t TurnSummary) Compact() string {
	var b strings.Builder
	b.WriteString("Turn ")
	b.WriteString(strconv.Itoa(t.Turn))
	b.WriteString(": ")
	b.WriteString(t.Input)
	if t.Combat {
		b.WriteString(" [COMBAT]")
	}
	if t.Killed != "" {
		b.WriteString(" [KILLED: " + t.Killed + "]")
	}
	if t.Moved {
		b.WriteString(" [MOVED: " + t.NewLocation + "]")
	}
	if t.Item != "" {
		b.WriteString(" [OBTAINED: " + t.Item + "]")
	}
	b.WriteString(" -> " + t.Action)
	return b.String()
}

// HookKind is the narrative device a hook plants.
type HookKind string

const (
	Foreshadowing HookKind = "foreshadowing"
	ChekhovGun    HookKind = "chekhov_gun"
	CharacterHook HookKind = "character"
	Mystery       HookKind = "mystery"
	ThreatHook    HookKind = "threat"
	PromiseHook   HookKind = "promise"
	DebtHook      HookKind = "debt"
)

// Hook is a narrative seed planted for later turns.
type Hook struct {
	ID           string   `json:"id"`
	Kind         HookKind `json:"hook_type"`
	Description  string   `json:"description"`
	PlantedTurn  int      `json:"planted_turn"`
	Location     string   `json:"planted_location"`
	Target       string   `json:"target_entity,omitempty"`
	Hint         string   `json:"resolution_hint,omitempty"`
	Urgency      int      `json:"urgency"` // 0 low, 1 medium, 2 high
	ExpiresTurn  *int     `json:"expires_turn,omitempty"`
	Resolved     bool     `json:"resolved"`
	ResolvedTurn *int     `json:"resolved_turn,omitempty"`
}

func (h Hook) Expired(turn int) bool {
	return h.ExpiresTurn != nil && turn > *h.ExpiresTurn
}

// ThreadStatus is the lifecycle of a plot thread.
type ThreadStatus string

const (
	ThreadActive    ThreadStatus = "active"
	ThreadPaused    ThreadStatus = "paused"
	ThreadClimax    ThreadStatus = "climax"
	ThreadResolved  ThreadStatus = "resolved"
	ThreadAbandoned ThreadStatus = "abandoned"
)

// Thread is a running storyline.
type Thread struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      ThreadStatus `json:"status"`
	StartedTurn int          `json:"started_turn"`
	StartedAt   string       `json:"started_location"`
	NPCs        []string     `json:"primary_npcs"`
	Locations   []string     `json:"related_locations"`
	Milestones  []string     `json:"milestones"`
	Objective   string       `json:"current_objective,omitempty"`
	Tension     float64      `json:"tension_contribution"`
	LastTurn    int          `json:"last_interaction_turn"`
	Idle        int          `json:"turns_since_last_interaction"`
}

// Context is the per-player session state.
type Context struct {
	SessionID  string `json:"session_id"`
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name"`

	Location string   `json:"current_location"`
	Present  []Entity `json:"present_entities"`

	History    []TurnSummary `json:"turn_history"`
	MaxHistory int           `json:"max_history_size"`
	IdlePause  int           `json:"thread_idle_pause"`

	// Summary condenses the turns that fell out of History.
	Summary string `json:"story_summary,omitempty"`

	Time *TimeSnapshot `json:"time_context,omitempty"`

	Beat    Beat    `json:"current_beat"`
	Tension float64 `json:"tension_level"`

	Hooks         []Hook   `json:"pending_hooks"`
	ResolvedHooks []Hook   `json:"resolved_hooks"`
	Threads       []Thread `json:"active_threads"`

	InCombat    bool     `json:"in_combat"`
	CombatRound int      `json:"combat_round"`
	Combatants  []string `json:"combat_participants"`
	LastAction  string   `json:"last_action_type"`
	CombatTurns int      `json:"consecutive_combat_turns"`
	PeacefulRun int      `json:"consecutive_peaceful_turns"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"last_updated"`
	TotalTurns int       `json:"total_turns"`
}

// New starts a session for a player.
func New(playerID int64, playerName, location string) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID:     uuid.NewString(),
		PlayerID:      playerID,
		PlayerName:    playerName,
		Location:      location,
		Present:       []Entity{},
		History:       []TurnSummary{},
		MaxHistory:    20,
		IdlePause:     20,
		Beat:          Setup,
		Hooks:         []Hook{},
		ResolvedHooks: []Hook{},
		Threads:       []Thread{},
		Combatants:    []string{},
		LastAction:    "none",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Marshal encodes the context for persistence.
func (c *Context) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal decodes a persisted context.
func Unmarshal(data []byte) (*Context, error) {
	c := New(0, "", "")
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 20
	}
	if c.IdlePause <= 0 {
		c.IdlePause = 20
	}
	return c, nil
}

// AddTurn appends a committed turn and updates combat flags, tension,
// beat, threads and hooks.
func (c *Context) AddTurn(t TurnSummary) {
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	c.History = append(c.History, t)
	c.TotalTurns++
	if len(c.History) > c.MaxHistory {
		c.History = append([]TurnSummary(nil), c.History[len(c.History)-c.MaxHistory:]...)
	}

	c.updateFlags(t)
	c.updateTension(t)
	for i := range c.Threads {
		c.ageThread(&c.Threads[i])
	}
	c.CleanupHooks(t.Turn)
	c.UpdatedAt = time.Now().UTC()
}

func (c *Context) updateFlags(t TurnSummary) {
	c.LastAction = "none"
	if f := strings.Fields(t.Action); len(f) > 0 {
		c.LastAction = f[0]
	}
	if t.Combat {
		c.CombatTurns++
		c.PeacefulRun = 0
		c.InCombat = true
	} else {
		c.PeacefulRun++
		if c.PeacefulRun >= 2 {
			c.InCombat = false
			c.CombatTurns = 0
			c.CombatRound = 0
			c.Combatants = []string{}
		}
	}
	if t.Moved && t.NewLocation != "" {
		c.Location = t.NewLocation
	}
}

func (c *Context) updateTension(t TurnSummary) {
	tension := c.Tension
	if t.Combat {
		tension += 0.15
	}
	if t.Killed != "" {
		tension += 0.1
	}
	if t.Beat == Climax {
		tension += 0.2
	}
	if !t.Combat && c.PeacefulRun > 0 {
		tension -= 0.05
	}
	if t.Beat == Resolution {
		tension -= 0.15
	}
	threads := 0.0
	for _, th := range c.Threads {
		if th.Status == ThreadActive {
			threads += th.Tension
		}
	}
	c.Tension = clamp01((tension + threads) / 2)
	c.updateBeat()
}

// updateBeat derives the beat from tension. After a climax the beat decays
// through falling instead of rising again.
func (c *Context) updateBeat() {
	switch {
	case c.Tension >= 0.7:
		c.Beat = Climax
	case c.Tension < 0.2:
		c.Beat = Setup
	case c.Beat == Climax || c.Beat == Falling:
		c.Beat = Falling
	default:
		c.Beat = Rising
	}
}

// AdjustTension moves tension by delta and updates the beat.
func (c *Context) AdjustTension(delta float64) {
	c.Tension = clamp01(c.Tension + delta)
	c.updateBeat()
}

func (c *Context) TensionLabel() string {
	switch {
	case c.Tension < 0.2:
		return "calm"
	case c.Tension < 0.4:
		return "tense"
	case c.Tension < 0.6:
		return "dangerous"
	case c.Tension < 0.8:
		return "intense"
	}
	return "critical"
}

// LastTurns returns up to n most recent turns, oldest first.
func (c *Context) LastTurns(n int) []TurnSummary {
	if n <= 0 {
		return nil
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	return c.History[len(c.History)-n:]
}

// SetPresent replaces the scene's entities.
func (c *Context) SetPresent(entities []Entity) {
	c.Present = append([]Entity{}, entities...)
}

func (c *Context) AddEntity(e Entity) {
	for _, p := range c.Present {
		if p.ID == e.ID && p.Kind == e.Kind {
			return
		}
	}
	c.Present = append(c.Present, e)
}

func (c *Context) RemoveEntity(id int64) {
	kept := c.Present[:0]
	for _, p := range c.Present {
		if p.ID != id || p.Kind == KindPlayer {
			kept = append(kept, p)
		}
	}
	c.Present = kept
}

// EntityByName matches case-insensitively.
func (c *Context) EntityByName(name string) (Entity, bool) {
	for _, p := range c.Present {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Entity{}, false
}

func (c *Context) Hostiles() []Entity {
	var out []Entity
	for _, p := range c.Present {
		if p.EmotionalState == models.Hostile {
			out = append(out, p)
		}
	}
	return out
}

// PlantHook adds a hook; expiresIn <= 0 means it never expires.
func (c *Context) PlantHook(kind HookKind, description, target string, urgency, expiresIn, turn int) Hook {
	h := Hook{
		ID:          uuid.NewString()[:8],
		Kind:        kind,
		Description: description,
		PlantedTurn: turn,
		Location:    c.Location,
		Target:      target,
		Urgency:     urgency,
	}
	if expiresIn > 0 {
		exp := turn + expiresIn
		h.ExpiresTurn = &exp
	}
	c.Hooks = append(c.Hooks, h)
	return h
}

func (c *Context) ResolveHook(id string, turn int) (Hook, bool) {
	for i, h := range c.Hooks {
		if h.ID != id {
			continue
		}
		h.Resolved = true
		h.ResolvedTurn = &turn
		c.ResolvedHooks = append(c.ResolvedHooks, h)
		c.Hooks = append(c.Hooks[:i], c.Hooks[i+1:]...)
		return h, true
	}
	return Hook{}, false
}

func (c *Context) UrgentHooks() []Hook {
	var out []Hook
	for _, h := range c.Hooks {
		if h.Urgency >= 2 {
			out = append(out, h)
		}
	}
	return out
}

// CleanupHooks drops hooks past their expiry and returns them.
func (c *Context) CleanupHooks(turn int) []Hook {
	var expired []Hook
	kept := c.Hooks[:0]
	for _, h := range c.Hooks {
		if h.Expired(turn) {
			expired = append(expired, h)
			continue
		}
		kept = append(kept, h)
	}
	c.Hooks = kept
	return expired
}

// StartThread opens a plot thread at the current location.
func (c *Context) StartThread(title, description, objective string, npcs []string, tension float64, turn int) Thread {
	th := Thread{
		ID:          uuid.NewString()[:8],
		Title:       title,
		Description: description,
		Status:      ThreadActive,
		StartedTurn: turn,
		StartedAt:   c.Location,
		NPCs:        append([]string{}, npcs...),
		Locations:   []string{c.Location},
		Milestones:  []string{},
		Objective:   objective,
		Tension:     tension,
		LastTurn:    turn,
	}
	c.Threads = append(c.Threads, th)
	return th
}

// TouchThread records an interaction with a thread, reactivating a paused
// one.
func (c *Context) TouchThread(id string, turn int, milestone string) bool {
	for i := range c.Threads {
		th := &c.Threads[i]
		if th.ID != id {
			continue
		}
		th.Idle = 0
		th.LastTurn = turn
		if th.Status == ThreadPaused {
			th.Status = ThreadActive
		}
		if milestone != "" {
			th.Milestones = append(th.Milestones, milestone)
		}
		return true
	}
	return false
}

func (c *Context) ResolveThread(id string) bool {
	for i := range c.Threads {
		if c.Threads[i].ID == id {
			c.Threads[i].Status = ThreadResolved
			return true
		}
	}
	return false
}

func (c *Context) ActiveThreads() []Thread {
	var out []Thread
	for _, th := range c.Threads {
		if th.Status == ThreadActive {
			out = append(out, th)
		}
	}
	return out
}

func (c *Context) ageThread(th *Thread) {
	if th.Status != ThreadActive {
		return
	}
	th.Idle++
	if th.Idle >= c.IdlePause {
		th.Status = ThreadPaused
	}
}

func (c *Context) StartCombat(participants []string) {
	c.InCombat = true
	c.CombatRound = 1
	c.Combatants = append([]string{}, participants...)
	c.AdjustTension(0.2)
}

func (c *Context) NextRound() {
	c.CombatRound++
}

func (c *Context) EndCombat() {
	c.InCombat = false
	c.CombatRound = 0
	c.Combatants = []string{}
	c.CombatTurns = 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

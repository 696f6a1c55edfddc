package models

import "strings"

// NPC is a non-player character or creature.
type NPC struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Species     string `json:"species"`
	Gender      string `json:"gender"`
	CanSpeak    bool   `json:"can_speak"`
	Description string `json:"description,omitempty"`
	Backstory   string `json:"backstory,omitempty"`
	Dialogue    string `json:"dialogue_style,omitempty"`
	MonsterID   string `json:"monster_id,omitempty"`

	Rank         int     `json:"rank"`
	Constitution string  `json:"constitution,omitempty"`
	HP           float64 `json:"current_hp"`
	MaxHP        float64 `json:"max_hp"`
	Defense      float64 `json:"defense"`
	Attack       float64 `json:"attack_power"`
	Speed        float64 `json:"speed"`

	Personality    []string        `json:"personality_traits"`
	EmotionalState string          `json:"emotional_state"`
	Disposition    map[int64]int   `json:"disposition"`
	VendettaTarget *int64          `json:"vendetta_target,omitempty"`
	Aggression     int             `json:"aggression"`
	Courage        int             `json:"courage"`
	Kin            []int64         `json:"kin,omitempty"`
	Inventory      []InventoryItem `json:"inventory"`
	Effects        []StatusEffect  `json:"status_effects"`

	Location     string            `json:"current_location"`
	HomeLocation string            `json:"home_location,omitempty"`
	Schedule     map[string]string `json:"daily_schedule,omitempty"`
	Activity     string            `json:"current_activity,omitempty"`
	FactionID    string            `json:"faction_id,omitempty"`
	FactionRole  string            `json:"faction_role,omitempty"`
	Role         string            `json:"role"`
	QuestGiver   bool              `json:"quest_giver,omitempty"`
	Generated    bool              `json:"generated,omitempty"`

	Alive  bool `json:"is_alive"`
	Active bool `json:"is_active"`
}

// NewNPC returns a living, active NPC with default vitals.
func NewNPC(name, species, location string) *NPC {
	return &NPC{
		Name:           name,
		Species:        species,
		Gender:         "unknown",
		CanSpeak:       species == "" || species == "human",
		Rank:           1,
		HP:             100,
		MaxHP:          100,
		Defense:        10,
		Attack:         10,
		Speed:          10,
		Personality:    []string{},
		EmotionalState: Neutral,
		Disposition:    map[int64]int{},
		Aggression:     50,
		Courage:        50,
		Inventory:      []InventoryItem{},
		Effects:        []StatusEffect{},
		Location:       location,
		Role:           "civilian",
		Alive:          true,
		Active:         true,
	}
}

func (n *NPC) CombatName() string       { return n.Name }
func (n *NPC) CurrentHP() float64       { return n.HP }
func (n *NPC) MaximumHP() float64       { return n.MaxHP }
func (n *NPC) DefenseValue() float64    { return n.Defense }
func (n *NPC) TierValue() int           { return n.Rank }
func (n *NPC) ConstitutionName() string { return n.Constitution }
func (n *NPC) IsAlive() bool            { return n.Alive && n.HP > 0 }

func (n *NPC) StatusEffects() *[]StatusEffect { return &n.Effects }

func (n *NPC) ApplyDamage(amount float64) float64 {
	if amount < 0 {
		amount = 0
	}
	before := n.HP
	n.HP = Round2(clamp(n.HP-amount, 0, n.MaxHP))
	if n.HP == 0 {
		n.Alive = false
	}
	return before - n.HP
}

func (n *NPC) PurgeEffects() {
	n.Effects = purgeEffects(n.Effects)
}

func (n *NPC) IsHostile() bool {
	return n.EmotionalState == Hostile || n.Aggression >= 80
}

func (n *NPC) IsFriendly() bool {
	return n.EmotionalState == Friendly || n.Aggression <= 20
}

// CanDialogue reports whether the NPC can take part in a conversation.
func (n *NPC) CanDialogue() bool {
	return n.CanSpeak && n.Alive && n.Active
}

// ShouldFlee reports whether an NPC at hpPercent (0..1) breaks and runs.
func (n *NPC) ShouldFlee(hpPercent float64) bool {
	if n.Courage >= 90 {
		return false
	}
	return hpPercent <= float64(100-n.Courage)/100
}

// ScheduledLocation returns where the NPC should be at the given time of day.
func (n *NPC) ScheduledLocation(timeOfDay string) string {
	if loc, ok := n.Schedule[timeOfDay]; ok {
		return loc
	}
	return n.HomeLocation
}

// Incorporeal reports whether physical attacks pass through the NPC.
func (n *NPC) Incorporeal() bool {
	s := strings.ToLower(n.Species)
	return s == "spirit" || s == "ghost"
}

func (n *NPC) HPPercent() float64 {
	if n.MaxHP <= 0 {
		return 0
	}
	return n.HP / n.MaxHP
}

// Clone returns a deep copy for speculative mutation.
func (n *NPC) Clone() *NPC {
	c := *n
	c.Personality = append([]string{}, n.Personality...)
	c.Inventory = append([]InventoryItem{}, n.Inventory...)
	c.Effects = append([]StatusEffect{}, n.Effects...)
	c.Kin = append([]int64(nil), n.Kin...)
	c.Disposition = make(map[int64]int, len(n.Disposition))
	for k, v := range n.Disposition {
		c.Disposition[k] = v
	}
	if n.Schedule != nil {
		c.Schedule = make(map[string]string, len(n.Schedule))
		for k, v := range n.Schedule {
			c.Schedule[k] = v
		}
	}
	if n.VendettaTarget != nil {
		v := *n.VendettaTarget
		c.VendettaTarget = &v
	}
	return &c
}

// Summary is a one-line description for prompts.
func (n *NPC) Summary() string {
	parts := []string{n.Name, n.Species, "rank " + itoa(n.Rank), n.EmotionalState, n.Role}
	if !n.CanSpeak {
		parts = append(parts, "does not speak")
	}
	cond := "healthy"
	switch hp := n.HPPercent(); {
	case hp <= 0.3:
		cond = "badly wounded"
	case hp <= 0.7:
		cond = "wounded"
	}
	parts = append(parts, cond)
	return strings.Join(parts, " | ")
}

package models

import (
	"encoding/json"
	"strconv"
)

// Connection is an edge of the world graph.
type Connection struct {
	Distance   float64 `json:"distance"`
	TravelTime float64 `json:"travel_time"`
	Danger     int     `json:"danger"`
}

// Location is a structured node of the world graph.
type Location struct {
	ID              int64                 `json:"id"`
	Name            string                `json:"name"`
	Type            string                `json:"type"`
	Biome           string                `json:"biome"`
	Description     string                `json:"description"`
	DangerMin       int                   `json:"danger_min"`
	DangerMax       int                   `json:"danger_max"`
	RecommendedTier int                   `json:"recommended_tier"`
	Faction         string                `json:"controlling_faction,omitempty"`
	Connections     map[string]Connection `json:"connections"`
	Resources       map[string]int        `json:"resources,omitempty"`
	Weather         string                `json:"weather"`
	Population      int                   `json:"population"`
	Destroyed       bool                  `json:"destroyed"`
}

// DynamicLocation is a place created during play, such as a player's home.
type DynamicLocation struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"kind" yaml:"kind"`
	Description string `json:"description" yaml:"description"`
	Interior    string `json:"interior,omitempty" yaml:"interior,omitempty"`
	Parent      string `json:"parent_location" yaml:"parent_location"`
	OwnerID     int64  `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	Destroyed   bool   `json:"destroyed" yaml:"destroyed"`
	CreatedTurn int    `json:"created_turn" yaml:"created_turn"`
}

// LocationAlias maps a phrase a player uses to a location name.
type LocationAlias struct {
	PlayerID int64  `json:"player_id" db:"player_id" yaml:"player_id"`
	Alias    string `json:"alias" db:"alias" yaml:"alias"`
	Target   string `json:"target" db:"target" yaml:"target"`
}

// GameLog is one committed turn.
type GameLog struct {
	ID          int64          `json:"id" yaml:"id"`
	PlayerID    int64          `json:"player_id" yaml:"player_id"`
	Turn        int            `json:"turn_number" yaml:"turn_number"`
	Input       string         `json:"player_input" yaml:"player_input"`
	Action      map[string]any `json:"action" yaml:"action"`
	Result      map[string]any `json:"result" yaml:"result"`
	Narration   string         `json:"narration" yaml:"narration"`
	Location    string         `json:"location" yaml:"location"`
	NPCsPresent []string       `json:"npcs_present" yaml:"npcs_present"`
	GameTime    string         `json:"game_time" yaml:"game_time"`
	Success     bool           `json:"success" yaml:"success"`
	Embedding   []float32      `json:"-" yaml:"-"`
}

// Memory kinds.
const (
	Episodic   = "episodic"
	Semantic   = "semantic"
	Procedural = "procedural"
)

// MemoryRecord is a stored memory. Content holds the kind-specific body.
type MemoryRecord struct {
	ID          int64           `json:"id"`
	Owner       Ref             `json:"owner"`
	Kind        string          `json:"kind"`
	Key         string          `json:"key,omitempty"`
	Content     json.RawMessage `json:"content"`
	Importance  float64         `json:"importance"`
	Flagged     bool            `json:"flagged"`
	CreatedTurn int             `json:"created_turn"`
	Embedding   []float32       `json:"-"`
}

// Quest statuses.
const (
	QuestActive    = "active"
	QuestCompleted = "completed"
	QuestFailed    = "failed"
)

type Quest struct {
	ID               int64           `json:"id" yaml:"id"`
	PlayerID         int64           `json:"player_id" yaml:"player_id"`
	Title            string          `json:"title" yaml:"title"`
	Hook             string          `json:"hook" yaml:"hook"`
	Description      string          `json:"description" yaml:"description"`
	Type             string          `json:"quest_type" yaml:"quest_type"`
	Target           string          `json:"target" yaml:"target"`
	TargetType       string          `json:"target_type" yaml:"target_type"`
	Location         string          `json:"location" yaml:"location"`
	GiverNPCID       int64           `json:"giver_npc_id,omitempty" yaml:"giver_npc_id,omitempty"`
	RequiredProgress int             `json:"required_progress" yaml:"required_progress"`
	CurrentProgress  int             `json:"current_progress" yaml:"current_progress"`
	RewardXP         float64         `json:"reward_xp" yaml:"reward_xp"`
	RewardGold       int             `json:"reward_gold" yaml:"reward_gold"`
	RewardItems      []InventoryItem `json:"reward_items" yaml:"reward_items"`
	Deadline         int             `json:"deadline_turn" yaml:"deadline_turn"`
	Status           string          `json:"status" yaml:"status"`
	AIGenerated      bool            `json:"ai_generated" yaml:"ai_generated"`
	CreatedTurn      int             `json:"created_turn" yaml:"created_turn"`
}

// Advance adds progress without passing the requirement and reports whether
// the quest is now complete.
func (q *Quest) Advance(n int) bool {
	q.CurrentProgress += n
	if q.CurrentProgress > q.RequiredProgress {
		q.CurrentProgress = q.RequiredProgress
	}
	return q.CurrentProgress >= q.RequiredProgress
}

// Expire fails an active quest past its deadline.
func (q *Quest) Expire(turn int) bool {
	if q.Status == QuestActive && q.Deadline > 0 && turn > q.Deadline {
		q.Status = QuestFailed
		return true
	}
	return false
}

type WorldEvent struct {
	ID                int64          `json:"id"`
	Type              string         `json:"event_type"`
	Description       string         `json:"description"`
	Turn              int            `json:"turn_occurred"`
	Location          string         `json:"location_affected,omitempty"`
	Cause             string         `json:"caused_by,omitempty"`
	Author            string         `json:"author_alias,omitempty"`
	PublicDescription string         `json:"public_description,omitempty"`
	SecretDescription string         `json:"secret_description,omitempty"`
	Difficulty        int            `json:"investigation_difficulty"`
	Clues             []string       `json:"clues"`
	Effects           map[string]any `json:"effects"`
	Active            bool           `json:"is_active"`
}

// Faction relations. Neutral and Hostile are shared with emotional states.
const (
	Allied = "allied"
	AtWar  = "at_war"
)

type Faction struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Power       float64           `json:"power"`
	Treasury    float64           `json:"treasury"`
	Territories []string          `json:"territories"`
	Allies      []string          `json:"allies"`
	Enemies     []string          `json:"enemies"`
	Relations   map[string]string `json:"relations"`
}

// Relation returns the relation toward other, neutral by default.
func (f *Faction) Relation(other string) string {
	if r, ok := f.Relations[other]; ok {
		return r
	}
	return Neutral
}

// SetRelation updates the relation map and the ally and enemy lists.
func (f *Faction) SetRelation(other, rel string) {
	if f.Relations == nil {
		f.Relations = map[string]string{}
	}
	f.Relations[other] = rel
	f.Allies = without(f.Allies, other)
	f.Enemies = without(f.Enemies, other)
	switch rel {
	case Allied:
		f.Allies = append(f.Allies, other)
	case AtWar, Hostile:
		f.Enemies = append(f.Enemies, other)
	}
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

type EconomyItem struct {
	Name         string  `json:"resource_name" db:"name"`
	Category     string  `json:"category" db:"category"`
	BasePrice    float64 `json:"base_price" db:"base_price"`
	CurrentPrice float64 `json:"current_price" db:"current_price"`
	Supply       float64 `json:"supply" db:"supply"`
	Demand       float64 `json:"demand" db:"demand"`
}

// ClampPrice keeps the current price within 0.1x and 5x of base.
func (e *EconomyItem) ClampPrice() {
	e.CurrentPrice = Round2(clamp(e.CurrentPrice, 0.1*e.BasePrice, 5*e.BasePrice))
}

// RegionEcology is the monster population of a region.
type RegionEcology struct {
	Region    string         `json:"region"`
	Species   map[string]int `json:"species"`
	Capacity  int            `json:"capacity"`
	Pressure  float64        `json:"hunting_pressure"`
	Neighbors []string       `json:"neighbors"`
}

func (r *RegionEcology) Total() int {
	n := 0
	for _, c := range r.Species {
		n += c
	}
	return n
}

func itoa(n int) string { return strconv.Itoa(n) }

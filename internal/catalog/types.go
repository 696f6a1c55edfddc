package catalog

// Effect is a secondary effect of a skill.
type Effect struct {
	Type          string  `json:"type"`
	Value         float64 `json:"value,omitempty"`
	DamagePerTurn float64 `json:"damage_per_turn,omitempty"`
	DamageType    string  `json:"damage_type,omitempty"`
	Duration      int     `json:"duration,omitempty"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CostType    string   `json:"cost_type"`
	Cost        float64  `json:"cost"`
	BaseDamage  float64  `json:"base_damage"`
	DamageType  string   `json:"damage_type,omitempty"`
	SilentArt   bool     `json:"silent_art"`
	Effects     []Effect `json:"effects,omitempty"`
	Generated   bool     `json:"generated,omitempty"`
}

// Penetration returns the armor penetration fraction of the skill.
func (s *Skill) Penetration() float64 {
	for _, e := range s.Effects {
		if e.Type == "armor_penetration" {
			return e.Value
		}
	}
	return 0
}

// Physical reports whether the skill deals physical damage.
func (s *Skill) Physical() bool {
	return s.DamageType == "" || s.DamageType == "physical"
}

type Tier struct {
	Tier            int     `json:"tier"`
	Name            string  `json:"name"`
	XPToNext        float64 `json:"xp_to_next"`
	MaxHPMultiplier float64 `json:"max_hp_multiplier"`
	QiMultiplier    float64 `json:"qi_multiplier"`
	CanFly          bool    `json:"can_fly"`
	PhysicsType     string  `json:"physics_type"`
}

type Item struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Category    string             `json:"category"`
	Tier        int                `json:"tier"`
	Value       float64            `json:"value"`
	Description string             `json:"description,omitempty"`
	Effects     map[string]float64 `json:"effects,omitempty"`
	Generated   bool               `json:"generated,omitempty"`
}

type LootEntry struct {
	ItemID      string  `json:"item_id"`
	Chance      float64 `json:"chance"`
	QuantityMin int     `json:"quantity_min"`
	QuantityMax int     `json:"quantity_max"`
}

type LootTable struct {
	Guaranteed []LootEntry `json:"guaranteed,omitempty"`
	Drops      []LootEntry `json:"drops,omitempty"`
}

type lootFile struct {
	Monsters map[string]LootTable `json:"monsters"`
}

type Constitution struct {
	Name                 string  `json:"name"`
	HPMultiplier         float64 `json:"hp_multiplier"`
	DefenseMultiplier    float64 `json:"defense_multiplier"`
	DamageMultiplier     float64 `json:"damage_multiplier"`
	QuintessenceRegen    float64 `json:"quintessence_regen"`
	ShadowChiCost        float64 `json:"shadow_chi_cost"`
	YuanQiCost           float64 `json:"yuan_qi_cost"`
	CorruptionResistance float64 `json:"corruption_resistance"`
	Special              string  `json:"special,omitempty"`
	Description          string  `json:"description,omitempty"`
}

// Mortal is the neutral constitution used for unknown names.
var Mortal = Constitution{
	Name:              "Mortal",
	HPMultiplier:      1,
	DefenseMultiplier: 1,
	DamageMultiplier:  1,
	QuintessenceRegen: 1,
	ShadowChiCost:     1,
	YuanQiCost:        1,
	Description:       "Balanced body without bonuses or penalties.",
}

type Creature struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Species     string  `json:"species"`
	Biome       string  `json:"biome"`
	Rank        int     `json:"rank"`
	HP          float64 `json:"hp"`
	Defense     float64 `json:"defense"`
	Attack      float64 `json:"attack"`
	Generated   bool    `json:"generated,omitempty"`
}

type Resource struct {
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	BasePrice float64 `json:"base_price"`
	Supply    float64 `json:"supply"`
	Demand    float64 `json:"demand"`
}

type Economy struct {
	Resources         []Resource                    `json:"resources"`
	RegionalModifiers map[string]map[string]float64 `json:"regional_modifiers"`
	EventEffects      map[string]map[string]float64 `json:"event_effects"`
}

type LoreEntry struct {
	Name string
	Body string
}

package models

// Player is the durable player aggregate.
type Player struct {
	ID               int64  `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Appearance       string `json:"appearance,omitempty" yaml:"appearance,omitempty"`
	ConstitutionType string `json:"constitution_type" yaml:"constitution_type"`
	Origin           string `json:"origin_location" yaml:"origin_location"`
	Backstory        string `json:"backstory,omitempty" yaml:"backstory,omitempty"`
	FirstScene       string `json:"first_scene_context,omitempty" yaml:"first_scene_context,omitempty"`
	ImportantNPC     string `json:"important_npc_name,omitempty" yaml:"important_npc_name,omitempty"`

	Tier        int     `json:"cultivation_tier" yaml:"cultivation_tier"`
	XP          float64 `json:"xp" yaml:"xp"`
	CanFly      bool    `json:"can_fly" yaml:"can_fly"`
	PhysicsType string  `json:"physics_type" yaml:"physics_type"`

	Quintessence    float64 `json:"quintessence" yaml:"quintessence"`
	MaxQuintessence float64 `json:"max_quintessence" yaml:"max_quintessence"`
	ShadowChi       float64 `json:"shadow_chi" yaml:"shadow_chi"`
	MaxShadowChi    float64 `json:"max_shadow_chi" yaml:"max_shadow_chi"`
	YuanQi          float64 `json:"yuan_qi" yaml:"yuan_qi"`
	MaxYuanQi       float64 `json:"max_yuan_qi" yaml:"max_yuan_qi"`

	HP       float64 `json:"current_hp" yaml:"current_hp"`
	MaxHP    float64 `json:"max_hp" yaml:"max_hp"`
	Defense  float64 `json:"defense" yaml:"defense"`
	Attack   float64 `json:"attack" yaml:"attack"`
	Speed    float64 `json:"speed" yaml:"speed"`
	Strength float64 `json:"strength" yaml:"strength"`

	Corruption float64 `json:"corruption" yaml:"corruption"`
	Willpower  float64 `json:"willpower" yaml:"willpower"`
	Betrayals  int     `json:"betrayals" yaml:"betrayals"`

	Gold            int             `json:"gold" yaml:"gold"`
	LearnedSkills   []string        `json:"learned_skills" yaml:"learned_skills"`
	ActiveArrays    []string        `json:"active_arrays" yaml:"active_arrays"`
	SpiritualFlames []string        `json:"spiritual_flames" yaml:"spiritual_flames"`
	Inventory       []InventoryItem `json:"inventory" yaml:"inventory"`
	Effects         []StatusEffect  `json:"status_effects" yaml:"status_effects"`
	Titles          []string        `json:"titles,omitempty" yaml:"titles,omitempty"`
	SkillUsage      map[string]int  `json:"skill_usage,omitempty" yaml:"skill_usage,omitempty"`

	Location       string `json:"current_location" yaml:"current_location"`
	HomeLocation   string `json:"home_location,omitempty" yaml:"home_location,omitempty"`
	HomeLocationID int64  `json:"home_location_id,omitempty" yaml:"home_location_id,omitempty"`

	KillHistory []Kill `json:"kill_history" yaml:"kill_history"`
	Dead        bool   `json:"dead,omitempty" yaml:"dead,omitempty"`
}

// NewPlayer returns a tier 1 player with default pools.
func NewPlayer(name, constitution, origin string) *Player {
	return &Player{
		Name:             name,
		ConstitutionType: constitution,
		Origin:           origin,
		Location:         origin,
		Tier:             1,
		PhysicsType:      "newtonian",
		Quintessence:     100,
		MaxQuintessence:  100,
		ShadowChi:        100,
		MaxShadowChi:     100,
		YuanQi:           100,
		MaxYuanQi:        100,
		HP:               100,
		MaxHP:            100,
		Defense:          10,
		Attack:           10,
		Speed:            10,
		Strength:         10,
		Willpower:        50,
		Gold:             100,
		LearnedSkills:    []string{},
		ActiveArrays:     []string{},
		SpiritualFlames:  []string{},
		Inventory:        []InventoryItem{},
		Effects:          []StatusEffect{},
		KillHistory:      []Kill{},
	}
}

// Rank is the legacy name for the cultivation tier.
func (p *Player) Rank() int { return p.Tier }

func (p *Player) CombatName() string       { return p.Name }
func (p *Player) CurrentHP() float64       { return p.HP }
func (p *Player) MaximumHP() float64       { return p.MaxHP }
func (p *Player) DefenseValue() float64    { return p.Defense }
func (p *Player) TierValue() int           { return p.Tier }
func (p *Player) ConstitutionName() string { return p.ConstitutionType }
func (p *Player) IsAlive() bool            { return !p.Dead && p.HP > 0 }

func (p *Player) StatusEffects() *[]StatusEffect { return &p.Effects }

func (p *Player) ApplyDamage(amount float64) float64 {
	if amount < 0 {
		amount = 0
	}
	before := p.HP
	p.HP = clamp(p.HP-amount, 0, p.MaxHP)
	if p.HP == 0 {
		p.Dead = true
	}
	return before - p.HP
}

func (p *Player) Heal(amount float64) {
	p.HP = clamp(p.HP+amount, 0, p.MaxHP)
}

func (p *Player) HPPercent() float64 {
	if p.MaxHP <= 0 {
		return 0
	}
	return p.HP / p.MaxHP
}

func (p *Player) HasSkill(id string) bool {
	for _, s := range p.LearnedSkills {
		if s == id {
			return true
		}
	}
	return false
}

func (p *Player) LearnSkill(id string) {
	if !p.HasSkill(id) {
		p.LearnedSkills = append(p.LearnedSkills, id)
	}
}

func (p *Player) AddItem(id string, qty int) {
	p.Inventory = addItem(p.Inventory, id, qty)
}

// RemoveItem takes qty of id out of the inventory. It reports false and
// leaves the inventory alone when there is not enough.
func (p *Player) RemoveItem(id string, qty int) bool {
	var ok bool
	p.Inventory, ok = removeItem(p.Inventory, id, qty)
	return ok
}

func (p *Player) ItemQuantity(id string) int {
	for _, it := range p.Inventory {
		if it.ItemID == id {
			return it.Quantity
		}
	}
	return 0
}

func (p *Player) HasEffect(kind string) bool {
	for _, e := range p.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// SetEffect adds or refreshes an effect of the given kind.
func (p *Player) SetEffect(e StatusEffect) {
	for i := range p.Effects {
		if p.Effects[i].Kind == e.Kind {
			p.Effects[i] = e
			return
		}
	}
	p.Effects = append(p.Effects, e)
}

func (p *Player) PurgeEffects() {
	p.Effects = purgeEffects(p.Effects)
}

// Clamp forces every pool into its range.
func (p *Player) Clamp() {
	p.HP = clamp(p.HP, 0, p.MaxHP)
	p.Quintessence = clamp(p.Quintessence, 0, p.MaxQuintessence)
	p.ShadowChi = clamp(p.ShadowChi, 0, p.MaxShadowChi)
	p.YuanQi = clamp(p.YuanQi, 0, p.MaxYuanQi)
	p.Corruption = clamp(p.Corruption, 0, 100)
}

// Clone returns a deep copy for speculative mutation.
func (p *Player) Clone() *Player {
	c := *p
	c.LearnedSkills = append([]string{}, p.LearnedSkills...)
	c.ActiveArrays = append([]string{}, p.ActiveArrays...)
	c.SpiritualFlames = append([]string{}, p.SpiritualFlames...)
	c.Inventory = append([]InventoryItem{}, p.Inventory...)
	c.Effects = append([]StatusEffect{}, p.Effects...)
	c.Titles = append([]string(nil), p.Titles...)
	c.KillHistory = append([]Kill{}, p.KillHistory...)
	if p.SkillUsage != nil {
		c.SkillUsage = make(map[string]int, len(p.SkillUsage))
		for k, v := range p.SkillUsage {
			c.SkillUsage[k] = v
		}
	}
	return &c
}

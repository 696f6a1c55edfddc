// Package catalog loads the rule and lore content files and mediates the
// appends made by content generators.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/daicherr/orbis/internal/embedding"
)

var ErrDuplicate = errors.New("catalog entry already exists")

const (
	skillsFile        = "mechanics/skills.json"
	tiersFile         = "mechanics/cultivation_tiers.json"
	itemsFile         = "mechanics/items.json"
	lootFileName      = "mechanics/loot_tables.json"
	constitutionsFile = "mechanics/constitutions.json"
	loreManualDir     = "lore_manual"
	bestiaryFile      = "bestiary.json"
	economyFile       = "initial_economy.json"
)

// Catalog holds the in-memory content tables. Lookups return nil for unknown
// ids.
type Catalog struct {
	rulesetDir string
	loreDir    string

	mu            sync.RWMutex
	skills        map[string]*Skill
	tiers         map[int]*Tier
	items         map[string]*Item
	loot          map[string]*LootTable
	constitutions map[string]*Constitution
	bestiary      map[string]*Creature
	economy       Economy
	lore          []LoreEntry
}

// Load reads every catalog file. Missing files give empty tables; files that
// exist but do not parse are errors.
func Load(rulesetDir, loreDir string) (*Catalog, error) {
	c := &Catalog{
		rulesetDir:    rulesetDir,
		loreDir:       loreDir,
		skills:        make(map[string]*Skill),
		tiers:         make(map[int]*Tier),
		items:         make(map[string]*Item),
		loot:          make(map[string]*LootTable),
		constitutions: make(map[string]*Constitution),
		bestiary:      make(map[string]*Creature),
	}

	var skills []*Skill
	if err := readJSON(filepath.Join(rulesetDir, skillsFile), &skills); err != nil {
		return nil, err
	}
	for _, s := range skills {
		c.skills[s.ID] = s
	}

	var tiers []*Tier
	if err := readJSON(filepath.Join(rulesetDir, tiersFile), &tiers); err != nil {
		return nil, err
	}
	for _, t := range tiers {
		c.tiers[t.Tier] = t
	}

	var items []*Item
	if err := readJSON(filepath.Join(rulesetDir, itemsFile), &items); err != nil {
		return nil, err
	}
	for _, it := range items {
		c.items[it.ID] = it
	}

	var lf lootFile
	if err := readJSON(filepath.Join(rulesetDir, lootFileName), &lf); err != nil {
		return nil, err
	}
	for id, t := range lf.Monsters {
		c.loot[MonsterID(id)] = &t
	}

	var cons []*Constitution
	if err := readJSON(filepath.Join(rulesetDir, constitutionsFile), &cons); err != nil {
		return nil, err
	}
	for _, k := range cons {
		c.constitutions[k.Name] = k
	}

	var creatures []*Creature
	if err := readJSON(filepath.Join(loreDir, bestiaryFile), &creatures); err != nil {
		return nil, err
	}
	for _, cr := range creatures {
		c.bestiary[cr.ID] = cr
	}

	if err := readJSON(filepath.Join(loreDir, economyFile), &c.economy); err != nil {
		return nil, err
	}

	lore, err := readLore(filepath.Join(rulesetDir, loreManualDir))
	if err != nil {
		return nil, err
	}
	c.lore = lore
	return c, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func readLore(dir string) ([]LoreEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []LoreEntry
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, LoreEntry{Name: strings.TrimSuffix(e.Name(), ".md"), Body: string(body)})
	}
	return out, nil
}

func (c *Catalog) Skill(id string) *Skill {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skills[id]
}

// SkillByName finds a skill by id or case-insensitive name.
func (c *Catalog) SkillByName(name string) *Skill {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.skills[name]; ok {
		return s
	}
	if s, ok := c.skills[Slug(name)]; ok {
		return s
	}
	for _, s := range c.skills {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (c *Catalog) Tier(tier int) *Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tiers[tier]
}

func (c *Catalog) Item(id string) *Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[id]
}

// ItemByName finds an item by id, slug or case-insensitive name.
func (c *Catalog) ItemByName(name string) *Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if it, ok := c.items[name]; ok {
		return it
	}
	if it, ok := c.items[Slug(name)]; ok {
		return it
	}
	for _, it := range c.items {
		if strings.EqualFold(it.Name, name) {
			return it
		}
	}
	return nil
}

func (c *Catalog) Loot(monsterID string) *LootTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loot[MonsterID(monsterID)]
}

// Constitution returns the named constitution, or nil when unknown.
func (c *Catalog) Constitution(name string) *Constitution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.constitutions[name]
}

// ConstitutionOrMortal never returns nil.
func (c *Catalog) ConstitutionOrMortal(name string) Constitution {
	if k := c.Constitution(name); k != nil {
		return *k
	}
	return Mortal
}

func (c *Catalog) Creature(id string) *Creature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bestiary[id]
}

// CreatureByName finds a bestiary entry by id or case-insensitive name.
func (c *Catalog) CreatureByName(name string) *Creature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cr, ok := c.bestiary[MonsterID(name)]; ok {
		return cr
	}
	for _, cr := range c.bestiary {
		if strings.EqualFold(cr.Name, name) {
			return cr
		}
	}
	return nil
}

// CreaturesIn lists bestiary entries for a biome up to maxRank, sorted by id.
func (c *Catalog) CreaturesIn(biome string, maxRank int) []*Creature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Creature
	for _, cr := range c.bestiary {
		if (biome == "" || strings.EqualFold(cr.Biome, biome)) && cr.Rank <= maxRank {
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Economy() Economy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.economy
}

// Lore returns the lore entries sharing the most words with query, best
// first, at most limit.
func (c *Catalog) Lore(query string, limit int) []LoreEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	words := embedding.Tokenize(query)
	type scored struct {
		entry LoreEntry
		score int
	}
	var hits []scored
	for _, e := range c.lore {
		body := strings.ToLower(e.Name + " " + e.Body)
		n := 0
		for _, w := range words {
			if strings.Contains(body, w) {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{e, n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	var out []LoreEntry
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].entry)
	}
	return out
}

// Slug lowercases name and joins its letters and digits with underscores.
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// MonsterID normalizes a monster name into a loot table key.
func MonsterID(name string) string {
	return Slug(name)
}

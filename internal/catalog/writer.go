package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var fileLocks sync.Map

func lockFor(path string) *sync.Mutex {
	l, _ := fileLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return l.(*sync.Mutex)
}

// update reads path into v, calls fn, and writes v back atomically. The file
// is replaced with a rename so readers never see a partial write.
func update[T any](path string, fn func(v *T) error) error {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	var v T
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := fn(&v); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// AppendItem adds a new item to the items file.
func (c *Catalog) AppendItem(item Item) error {
	if item.ID == "" {
		item.ID = Slug(item.Name)
	}
	if c.Item(item.ID) != nil {
		return fmt.Errorf("item %s: %w", item.ID, ErrDuplicate)
	}
	err := update(filepath.Join(c.rulesetDir, itemsFile), func(items *[]Item) error {
		for _, it := range *items {
			if it.ID == item.ID {
				return fmt.Errorf("item %s: %w", item.ID, ErrDuplicate)
			}
		}
		*items = append(*items, item)
		return nil
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[item.ID] = &item
	c.mu.Unlock()
	return nil
}

// AppendLoot adds drop entries to a monster's loot table, creating the table
// when needed. Entries for items already in the table are skipped.
func (c *Catalog) AppendLoot(monster string, drops []LootEntry) error {
	id := MonsterID(monster)
	var merged LootTable
	err := update(filepath.Join(c.rulesetDir, lootFileName), func(f *lootFile) error {
		if f.Monsters == nil {
			f.Monsters = make(map[string]LootTable)
		}
		t := f.Monsters[id]
		have := make(map[string]bool)
		for _, d := range t.Drops {
			have[d.ItemID] = true
		}
		for _, d := range drops {
			if !have[d.ItemID] {
				t.Drops = append(t.Drops, d)
				have[d.ItemID] = true
			}
		}
		f.Monsters[id] = t
		merged = t
		return nil
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.loot[id] = &merged
	c.mu.Unlock()
	return nil
}

// AppendCreature adds a bestiary entry.
func (c *Catalog) AppendCreature(cr Creature) error {
	if cr.ID == "" {
		cr.ID = MonsterID(cr.Name)
	}
	err := update(filepath.Join(c.loreDir, bestiaryFile), func(list *[]Creature) error {
		for _, e := range *list {
			if e.ID == cr.ID {
				return fmt.Errorf("creature %s: %w", cr.ID, ErrDuplicate)
			}
		}
		*list = append(*list, cr)
		return nil
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.bestiary[cr.ID] = &cr
	c.mu.Unlock()
	return nil
}

// AppendSkill adds a skill to the skills file.
func (c *Catalog) AppendSkill(s Skill) error {
	if s.ID == "" {
		s.ID = Slug(s.Name)
	}
	err := update(filepath.Join(c.rulesetDir, skillsFile), func(list *[]Skill) error {
		for _, e := range *list {
			if e.ID == s.ID {
				return fmt.Errorf("skill %s: %w", s.ID, ErrDuplicate)
			}
		}
		*list = append(*list, s)
		return nil
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.skills[s.ID] = &s
	c.mu.Unlock()
	return nil
}

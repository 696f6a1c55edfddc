package models

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const SaveDir = ".saves"

// Bundle is a portable export of one player: the aggregate, the places they
// own, their quests and the turn log.
type Bundle struct {
	Player    Player            `yaml:"player"`
	Aliases   []LocationAlias   `yaml:"aliases"`
	Dynamic   []DynamicLocation `yaml:"dynamic_locations"`
	Quests    []Quest           `yaml:"quests"`
	History   []GameLog         `yaml:"history"`
	Session   string            `yaml:"session,omitempty"` // session context JSON
	Clock     string            `yaml:"clock,omitempty"`
}

func (b *Bundle) Save(dir, name string) error {
	if dir == "" {
		dir = SaveDir
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}

	playerData, err := yaml.Marshal(struct {
		Player  Player            `yaml:"player"`
		Aliases []LocationAlias   `yaml:"aliases"`
		Dynamic []DynamicLocation `yaml:"dynamic_locations"`
		Quests  []Quest           `yaml:"quests"`
		Session string            `yaml:"session,omitempty"`
		Clock   string            `yaml:"clock,omitempty"`
	}{b.Player, b.Aliases, b.Dynamic, b.Quests, b.Session, b.Clock})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(path, "player.yaml"), playerData, 0644); err != nil {
		return err
	}

	historyData, err := yaml.Marshal(b.History)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(path, "history.yaml"), historyData, 0644); err != nil {
		return err
	}

	return nil
}

func LoadBundle(dir, name string) (*Bundle, error) {
	if dir == "" {
		dir = SaveDir
	}
	path := filepath.Join(dir, name)

	playerData, err := os.ReadFile(filepath.Join(path, "player.yaml"))
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := yaml.Unmarshal(playerData, &b); err != nil {
		return nil, err
	}

	historyData, err := os.ReadFile(filepath.Join(path, "history.yaml"))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(historyData, &b.History); err != nil {
		return nil, err
	}
	return &b, nil
}

func ListBundles(dir string) ([]string, error) {
	if dir == "" {
		dir = SaveDir
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			// player.yaml marks a complete bundle
			if _, err := os.Stat(filepath.Join(dir, entry.Name(), "player.yaml")); err == nil {
				names = append(names, entry.Name())
			}
		}
	}
	return names, nil
}

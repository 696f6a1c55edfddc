package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/models"
)

// Episode is the content of an episodic memory.
type Episode struct {
	ID           int64          `json:"-"`
	EventType    EventType      `json:"event_type"`
	Category     string         `json:"category"`
	Description  string         `json:"description"`
	Location     string         `json:"location"`
	GameTime     string         `json:"game_time"`
	Period       string         `json:"period,omitempty"`
	Participants []string       `json:"participants"`
	Valence      Valence        `json:"valence"`
	Importance   float64        `json:"importance"`
	Turn         int            `json:"turn"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Summary is the one-line form used in prompts.
func (e Episode) Summary() string {
	desc := e.Description
	if r := []rune(desc); len(r) > 100 {
		desc = string(r[:100]) + "..."
	}
	participants := e.Participants
	if len(participants) > 3 {
		participants = participants[:3]
	}
	return fmt.Sprintf("[%s] %s (%s)", strings.ToUpper(string(e.EventType)), desc, strings.Join(participants, ", "))
}

func (e Episode) embedText() string {
	parts := []string{string(e.EventType), e.Description, e.Location}
	parts = append(parts, e.Participants...)
	return strings.Join(parts, " | ")
}

func newEpisode(ev Event) Episode {
	meta := map[string]any{}
	if ev.Outcome != "" {
		meta["outcome"] = ev.Outcome
	}
	if ev.DamageDealt > 0 {
		meta["damage_dealt"] = ev.DamageDealt
	}
	if ev.DamageReceived > 0 {
		meta["damage_received"] = ev.DamageReceived
	}
	if ev.Item != "" {
		meta["item_exchanged"] = ev.Item
	}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	if len(meta) == 0 {
		meta = nil
	}
	return Episode{
		EventType:    ev.Type,
		Category:     ev.Type.Category(),
		Description:  ev.Description,
		Location:     ev.Location,
		GameTime:     ev.GameTime,
		Period:       ev.Period,
		Participants: ev.Participants(),
		Valence:      ev.InferValence(),
		Importance:   ev.Importance(),
		Turn:         ev.Turn,
		Metadata:     meta,
	}
}

func decodeEpisode(r *models.MemoryRecord) (Episode, error) {
	var e Episode
	if err := json.Unmarshal(r.Content, &e); err != nil {
		return e, fmt.Errorf("decode episode %d: %w", r.ID, err)
	}
	e.ID = r.ID
	return e, nil
}

func (m *Manager) writeEpisode(ctx context.Context, owner models.Ref, ep *Episode) error {
	content, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	rec := &models.MemoryRecord{
		Owner:       owner,
		Kind:        models.Episodic,
		Content:     content,
		Importance:  ep.Importance,
		CreatedTurn: ep.Turn,
		Embedding:   m.embed(ctx, ep.embedText()),
	}
	if err := m.repo.InsertMemory(ctx, rec); err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	ep.ID = rec.ID
	return nil
}

// RecentEpisodes returns an owner's last n episodes, newest first.
func (m *Manager) RecentEpisodes(ctx context.Context, owner models.Ref, n int) ([]Episode, error) {
	records, err := m.repo.Memories(ctx, owner, models.Episodic, "", n)
	if err != nil {
		return nil, err
	}
	return m.episodes(records), nil
}

func (m *Manager) episodes(records []*models.MemoryRecord) []Episode {
	out := make([]Episode, 0, len(records))
	for _, r := range records {
		e, err := decodeEpisode(r)
		if err != nil {
			m.logger.Warn("skipping unreadable episode", "id", r.ID, "err", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *Manager) searchEpisodes(ctx context.Context, owner models.Ref, query string, k int) ([]Episode, error) {
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	scored, err := m.repo.SimilarMemories(ctx, owner, models.Episodic, vec, k)
	if err != nil {
		return nil, err
	}
	records := make([]*models.MemoryRecord, 0, len(scored))
	for _, s := range scored {
		records = append(records, s.Record)
	}
	return m.episodes(records), nil
}

func dominantValence(eps []Episode) Valence {
	counts := map[Valence]int{}
	var best Valence
	for _, e := range eps {
		counts[e.Valence]++
		if best == "" || counts[e.Valence] > counts[best] {
			best = e.Valence
		}
	}
	return best
}

// Package memory keeps what characters remember: episodes they lived, facts
// they learned from them and behaviour patterns they noticed.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

// Repository is the part of the entity store the memory layers use.
// *store.Store and the *store.Queries of a transaction both satisfy it.
type Repository interface {
	InsertMemory(ctx context.Context, m *models.MemoryRecord) error
	UpdateMemory(ctx context.Context, m *models.MemoryRecord) error
	MemoryByKey(ctx context.Context, owner models.Ref, kind, key string) (*models.MemoryRecord, error)
	Memories(ctx context.Context, owner models.Ref, kind, pattern string, limit int) ([]*models.MemoryRecord, error)
	CountMemories(ctx context.Context, owner models.Ref, kind string) (int, error)
	SimilarMemories(ctx context.Context, owner models.Ref, kind string, vec []float32, k int) ([]store.ScoredMemory, error)
	FlagMemories(ctx context.Context, ids []int64) error
}

type Options struct {
	PatternEvery     int
	PatternWindow    int
	ConsolidateAbove int
	TopK             int
}

func DefaultOptions() Options {
	return Options{PatternEvery: 5, PatternWindow: 10, ConsolidateAbove: 50, TopK: 5}
}

// Manager coordinates the episodic, semantic and procedural layers.
type Manager struct {
	repo     Repository
	embedder embedding.Embedder
	opts     Options
	logger   *slog.Logger
}

func New(repo Repository, embedder embedding.Embedder, opts Options, logger *slog.Logger) *Manager {
	def := DefaultOptions()
	if opts.PatternEvery <= 0 {
		opts.PatternEvery = def.PatternEvery
	}
	if opts.PatternWindow <= 0 {
		opts.PatternWindow = def.PatternWindow
	}
	if opts.ConsolidateAbove <= 0 {
		opts.ConsolidateAbove = def.ConsolidateAbove
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, embedder: embedder, opts: opts, logger: logger}
}

// WithRepository returns a Manager writing through repo, e.g. a transaction.
func (m *Manager) WithRepository(repo Repository) *Manager {
	c := *m
	c.repo = repo
	return &c
}

// embed returns nil when the embedder fails; records are stored without a
// vector and skipped by similarity search.
func (m *Manager) embed(ctx context.Context, text string) []float32 {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.Warn("embedding failed", "err", err)
		return nil
	}
	return vec
}

// Remember stores ev as an episode of owner, then derives facts and
// patterns from it. Only a failed episode write is returned as an error.
func (m *Manager) Remember(ctx context.Context, owner models.Ref, ev Event) (Episode, error) {
	ep := newEpisode(ev)
	if err := m.writeEpisode(ctx, owner, &ep); err != nil {
		return ep, err
	}

	for _, f := range extractFacts(owner, ev, ep.ID) {
		if _, err := m.UpsertFact(ctx, owner, f); err != nil {
			m.logger.Warn("fact extraction failed", "owner", owner, "fact", f.Statement(), "err", err)
		}
	}

	count, err := m.repo.CountMemories(ctx, owner, models.Episodic)
	if err != nil {
		m.logger.Warn("count episodes failed", "owner", owner, "err", err)
		return ep, nil
	}
	if count%m.opts.PatternEvery == 0 {
		if err := m.detect(ctx, owner); err != nil {
			m.logger.Warn("pattern detection failed", "owner", owner, "err", err)
		}
	}
	if count > m.opts.ConsolidateAbove {
		if _, err := m.Consolidate(ctx, owner); err != nil {
			m.logger.Warn("consolidation failed", "owner", owner, "err", err)
		}
	}
	return ep, nil
}

// Consolidate flags old, unimportant episodes of owner and returns how many
// were flagged. Nothing is deleted.
func (m *Manager) Consolidate(ctx context.Context, owner models.Ref) (int, error) {
	records, err := m.repo.Memories(ctx, owner, models.Episodic, "", 0)
	if err != nil {
		return 0, err
	}
	if len(records) <= m.opts.ConsolidateAbove {
		return 0, nil
	}
	// records are newest first; the newest ConsolidateAbove are kept as is
	var ids []int64
	for _, r := range records[m.opts.ConsolidateAbove:] {
		if !r.Flagged && r.Importance < 0.3 {
			ids = append(ids, r.ID)
		}
	}
	if err := m.repo.FlagMemories(ctx, ids); err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		m.logger.Info("memories flagged for consolidation", "owner", owner, "count", len(ids))
	}
	return len(ids), nil
}

// Bundle is the result of Recall.
type Bundle struct {
	Episodes []Episode `json:"episodes"`
	Facts    []Fact    `json:"facts"`
	Patterns []Pattern `json:"patterns"`

	EpisodicSummary   string `json:"episodic_summary,omitempty"`
	SemanticSummary   string `json:"semantic_summary,omitempty"`
	BehavioralSummary string `json:"behavioral_summary,omitempty"`

	PredictedBehavior    string  `json:"predicted_behavior,omitempty"`
	PredictionConfidence float64 `json:"prediction_confidence"`
	DominantEmotion      Valence `json:"dominant_emotion,omitempty"`
	Stance               string  `json:"stance"`

	// Note explains an empty bundle caused by a failure.
	Note string `json:"note,omitempty"`
}

func (b *Bundle) Empty() bool {
	return len(b.Episodes) == 0 && len(b.Facts) == 0 && len(b.Patterns) == 0
}

// Compact renders the bundle as a few prompt lines.
func (b *Bundle) Compact(n int) string {
	var lines []string
	for i, e := range b.Episodes {
		if i == n {
			break
		}
		lines = append(lines, "- "+e.Summary())
	}
	for i, f := range b.Facts {
		if i == n {
			break
		}
		lines = append(lines, "- FACT: "+f.Statement())
	}
	for i, p := range b.Patterns {
		if i == n {
			break
		}
		lines = append(lines, "- PATTERN: "+p.Description())
	}
	if b.PredictedBehavior != "" {
		lines = append(lines, "- EXPECTED: "+b.PredictedBehavior)
	}
	if len(lines) == 0 {
		return "No relevant memories."
	}
	return strings.Join(lines, "\n")
}

// Full renders every section of the bundle for a prompt.
func (b *Bundle) Full() string {
	var parts []string
	if b.EpisodicSummary != "" {
		parts = append(parts, "=== RECENT MEMORIES ===", b.EpisodicSummary)
	}
	if b.SemanticSummary != "" {
		parts = append(parts, "=== KNOWN FACTS ===", b.SemanticSummary)
	}
	if b.BehavioralSummary != "" {
		parts = append(parts, "=== BEHAVIOUR PATTERNS ===", b.BehavioralSummary)
	}
	if b.PredictedBehavior != "" {
		parts = append(parts, fmt.Sprintf("=== PREDICTION (%.0f%% confidence) ===", b.PredictionConfidence*100),
			"Expected behaviour: "+b.PredictedBehavior)
	}
	if b.DominantEmotion != "" {
		parts = append(parts, "Dominant emotion: "+string(b.DominantEmotion))
	}
	parts = append(parts, "Stance toward the player: "+b.Stance)
	return strings.Join(parts, "\n")
}

// Recall gathers what owner remembers about query. It never fails: a
// storage or embedding error yields an empty bundle with a Note.
func (m *Manager) Recall(ctx context.Context, owner models.Ref, query string) *Bundle {
	var (
		episodes []Episode
		facts    []Fact
		patterns []Pattern
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		episodes, err = m.searchEpisodes(gctx, owner, query, m.opts.TopK)
		return err
	})
	g.Go(func() error {
		var err error
		facts, err = m.Facts(gctx, owner, FactQuery{Subject: SubjectOf(query), Text: query, Limit: m.opts.TopK})
		return err
	})
	g.Go(func() error {
		var err error
		patterns, err = m.Patterns(gctx, owner, Moderate)
		return err
	})
	if err := g.Wait(); err != nil {
		m.logger.Warn("recall failed", "owner", owner, "err", err)
		return &Bundle{Stance: "neutral", Note: "recall unavailable: " + err.Error()}
	}

	b := &Bundle{Episodes: episodes, Facts: facts, Stance: "neutral"}
	if len(patterns) > 3 {
		b.Patterns = patterns[:3]
	} else {
		b.Patterns = patterns
	}
	b.EpisodicSummary = joinFirst(episodes, 3, Episode.Summary)
	b.SemanticSummary = joinFirst(facts, 3, Fact.Statement)
	b.BehavioralSummary = joinFirst(patterns, 3, Pattern.Description)
	b.DominantEmotion = dominantValence(episodes)
	if behavior, conf, ok := Predict(patterns, query); ok {
		b.PredictedBehavior = behavior
		b.PredictionConfidence = conf
	}
	b.Stance = stanceOf(facts, episodes)
	return b
}

func joinFirst[T any](items []T, n int, line func(T) string) string {
	var lines []string
	for i, it := range items {
		if i == n {
			break
		}
		lines = append(lines, line(it))
	}
	return strings.Join(lines, "\n")
}

func stanceOf(facts []Fact, episodes []Episode) string {
	helpful := false
	for _, f := range facts {
		if f.Type != EntityRelation {
			continue
		}
		p := strings.ToLower(f.Predicate)
		switch {
		case strings.Contains(p, "hostile"), strings.Contains(p, "enemy"), strings.Contains(p, "threatened"):
			return "hostile"
		case strings.Contains(p, "friend"), strings.Contains(p, "ally"), strings.Contains(p, "helped"):
			helpful = true
		}
	}
	if helpful {
		return "friendly"
	}
	neg, pos := 0, 0
	for _, e := range episodes {
		switch {
		case e.Valence.negative():
			neg++
		case e.Valence.positive():
			pos++
		}
	}
	switch {
	case neg > pos:
		return "wary"
	case pos > neg:
		return "warm"
	}
	return "neutral"
}

// Relationship summarizes how owner feels about a named character.
type Relationship struct {
	Target       string   `json:"target"`
	Stance       string   `json:"stance"`
	Interactions int      `json:"total_interactions"`
	Positive     int      `json:"positive_interactions"`
	Negative     int      `json:"negative_interactions"`
	KnownFacts   []string `json:"known_facts"`
	Patterns     []string `json:"patterns"`
	LastTurn     int      `json:"last_turn,omitempty"`
}

func (m *Manager) RelationshipSummary(ctx context.Context, owner models.Ref, target string) (Relationship, error) {
	rel := Relationship{Target: target, Stance: "neutral"}
	records, err := m.repo.Memories(ctx, owner, models.Episodic, target, 10)
	if err != nil {
		return rel, err
	}
	episodes := m.episodes(records)
	for _, e := range episodes {
		switch {
		case e.Valence.positive():
			rel.Positive++
		case e.Valence.negative():
			rel.Negative++
		}
	}
	rel.Interactions = len(episodes)
	if len(episodes) > 0 {
		rel.LastTurn = episodes[0].Turn
	}
	switch {
	case rel.Negative > rel.Positive*2:
		rel.Stance = "hostile"
	case rel.Positive > rel.Negative*2:
		rel.Stance = "friendly"
	case rel.Negative > rel.Positive:
		rel.Stance = "wary"
	case rel.Positive > rel.Negative:
		rel.Stance = "warm"
	}

	facts, err := m.Facts(ctx, owner, FactQuery{Subject: target, Limit: 5})
	if err != nil {
		return rel, err
	}
	for _, f := range facts {
		rel.KnownFacts = append(rel.KnownFacts, f.Statement())
	}
	patterns, err := m.Patterns(ctx, owner, Weak)
	if err != nil {
		return rel, err
	}
	lower := strings.ToLower(target)
	for _, p := range patterns {
		if len(rel.Patterns) == 3 {
			break
		}
		if strings.Contains(strings.ToLower(p.Trigger), lower) || strings.Contains(strings.ToLower(p.Behavior), lower) {
			rel.Patterns = append(rel.Patterns, p.Description())
		}
	}
	return rel, nil
}

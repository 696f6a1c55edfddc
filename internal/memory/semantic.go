package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

// FactType groups semantic facts.
type FactType string

const (
	EntityTrait    FactType = "entity_trait"
	EntityRelation FactType = "entity_relation"
	EntityAbility  FactType = "entity_ability"
	LocationDanger FactType = "location_danger"
)

// Confidence is how sure the owner is of a fact.
type Confidence string

const (
	Certain     Confidence = "certain"
	Probable    Confidence = "probable"
	Possible    Confidence = "possible"
	Rumor       Confidence = "rumor"
	Speculation Confidence = "speculation"
)

var confidenceRank = map[Confidence]int{
	Certain:     0,
	Probable:    1,
	Possible:    2,
	Rumor:       3,
	Speculation: 4,
}

// AtLeast reports whether c is as strong as floor.
func (c Confidence) AtLeast(floor Confidence) bool {
	return confidenceRank[c] <= confidenceRank[floor]
}

// Predicates produced by fact extraction.
const (
	PredHostile     = "is hostile to"
	PredHelped      = "helped"
	PredWasHelped   = "was helped by"
	PredThreatened  = "threatened"
	PredCombatSite  = "had recent combat"
	PredTraitor     = "is a traitor"
	PredFireUser    = "uses fire techniques"
	PredIceUser     = "uses ice techniques"
	PredShadowUser  = "uses shadow techniques"
	SelfObject      = "me"
	confirmCertain  = 5
	confirmProbable = 3
)

// Fact is the content of a semantic memory.
type Fact struct {
	ID            int64      `json:"-"`
	Type          FactType   `json:"fact_type"`
	Subject       string     `json:"subject"`
	Predicate     string     `json:"predicate"`
	Object        string     `json:"object,omitempty"`
	Confidence    Confidence `json:"confidence"`
	Confirmations int        `json:"confirmations"`
	Sources       []int64    `json:"sources,omitempty"`
	LearnedTurn   int        `json:"learned_turn"`
}

// Key is the merge key of the fact.
func (f Fact) Key() string {
	return strings.ToLower(f.Subject + "|" + f.Predicate + "|" + f.Object)
}

func (f Fact) Statement() string {
	if f.Object != "" {
		return f.Subject + " " + f.Predicate + " " + f.Object
	}
	return f.Subject + " " + f.Predicate
}

// Strengthen records one more confirmation.
func (f *Fact) Strengthen(source int64) {
	f.Confirmations++
	if source != 0 && !containsID(f.Sources, source) {
		f.Sources = append(f.Sources, source)
	}
	switch {
	case f.Confirmations >= confirmCertain:
		f.Confidence = Certain
	case f.Confirmations >= confirmProbable && f.Confidence == Possible:
		f.Confidence = Probable
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var abilityWords = []struct {
	words     []string
	predicate string
}{
	{[]string{"fogo", "chama", "fire", "flame"}, PredFireUser},
	{[]string{"gelo", "frio", "ice", "frost"}, PredIceUser},
	{[]string{"sombra", "escuridão", "shadow", "darkness"}, PredShadowUser},
}

func extractFacts(owner models.Ref, ev Event, source int64) []Fact {
	var facts []Fact
	add := func(t FactType, subject, predicate, object string, c Confidence) {
		facts = append(facts, Fact{
			Type:          t,
			Subject:       subject,
			Predicate:     predicate,
			Object:        object,
			Confidence:    c,
			Confirmations: 1,
			Sources:       []int64{source},
			LearnedTurn:   ev.Turn,
		})
	}

	object := ev.TargetName
	if ev.Target != "" && ev.Target == owner {
		object = SelfObject
	}
	if ev.TargetName != "" && ev.ActorName != "" {
		switch ev.Type {
		case CombatAttack, CombatKill:
			add(EntityRelation, ev.ActorName, PredHostile, object, Certain)
		case HelpGiven:
			add(EntityRelation, ev.ActorName, PredHelped, object, Certain)
		case HelpReceived:
			add(EntityRelation, ev.ActorName, PredWasHelped, object, Certain)
		case DialogueThreat:
			add(EntityRelation, ev.ActorName, PredThreatened, object, Certain)
		}
	}
	if ev.Type.Category() == "combat" && ev.Location != "" && ev.Type != CombatFlee {
		add(LocationDanger, ev.Location, PredCombatSite, "", Certain)
	}
	if ev.ActorName != "" {
		words := embedding.Tokenize(ev.Description)
		for _, a := range abilityWords {
			if hasWordPrefix(words, a.words) {
				add(EntityAbility, ev.ActorName, a.predicate, "", Probable)
				break
			}
		}
		if ev.Type == Betrayal {
			add(EntityTrait, ev.ActorName, PredTraitor, "", Certain)
		}
	}
	return facts
}

func hasWordPrefix(tokens, prefixes []string) bool {
	for _, t := range tokens {
		for _, p := range prefixes {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// UpsertFact stores a fact or strengthens the stored one with the same key.
func (m *Manager) UpsertFact(ctx context.Context, owner models.Ref, f Fact) (Fact, error) {
	existing, err := m.repo.MemoryByKey(ctx, owner, models.Semantic, f.Key())
	switch {
	case err == nil:
		var stored Fact
		if err := json.Unmarshal(existing.Content, &stored); err != nil {
			return f, fmt.Errorf("decode fact %d: %w", existing.ID, err)
		}
		var source int64
		if len(f.Sources) > 0 {
			source = f.Sources[0]
		}
		stored.Strengthen(source)
		if !stored.Confidence.AtLeast(f.Confidence) {
			stored.Confidence = f.Confidence
		}
		stored.ID = existing.ID
		if existing.Content, err = json.Marshal(stored); err != nil {
			return f, err
		}
		return stored, m.repo.UpdateMemory(ctx, existing)
	case !errors.Is(err, store.ErrNotFound):
		return f, err
	}

	if f.Confirmations == 0 {
		f.Confirmations = 1
	}
	if f.Confidence == "" {
		f.Confidence = Possible
	}
	content, err := json.Marshal(f)
	if err != nil {
		return f, err
	}
	rec := &models.MemoryRecord{
		Owner:       owner,
		Kind:        models.Semantic,
		Key:         f.Key(),
		Content:     content,
		Importance:  0.5,
		CreatedTurn: f.LearnedTurn,
		Embedding:   m.embed(ctx, f.Statement()),
	}
	if err := m.repo.InsertMemory(ctx, rec); err != nil {
		return f, fmt.Errorf("insert fact: %w", err)
	}
	f.ID = rec.ID
	return f, nil
}

// FactQuery filters Facts. Zero values match everything.
type FactQuery struct {
	Subject       string
	Types         []FactType
	MinConfidence Confidence
	Text          string
	Limit         int
}

type scoredFact struct {
	fact  Fact
	score float64
	vec   []float32
}

// Facts lists an owner's facts matching q, re-ranked by similarity to
// q.Text when given.
func (m *Manager) Facts(ctx context.Context, owner models.Ref, q FactQuery) ([]Fact, error) {
	records, err := m.repo.Memories(ctx, owner, models.Semantic, "", 0)
	if err != nil {
		return nil, err
	}
	floor := q.MinConfidence
	if floor == "" {
		floor = Rumor
	}
	var candidates []scoredFact
	for _, r := range records {
		var f Fact
		if err := json.Unmarshal(r.Content, &f); err != nil {
			m.logger.Warn("skipping unreadable fact", "id", r.ID, "err", err)
			continue
		}
		f.ID = r.ID
		if q.Subject != "" && !strings.Contains(strings.ToLower(f.Subject), strings.ToLower(q.Subject)) {
			continue
		}
		if len(q.Types) > 0 && !hasType(q.Types, f.Type) {
			continue
		}
		if !f.Confidence.AtLeast(floor) {
			continue
		}
		candidates = append(candidates, scoredFact{fact: f, vec: r.Embedding})
	}
	if q.Text != "" && len(candidates) > 1 {
		vec, err := m.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vec = embedding.Fit(vec, embedding.StorageWidth)
		for i := range candidates {
			if len(candidates[i].vec) > 0 {
				candidates[i].score = embedding.Cosine(vec, candidates[i].vec)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	}
	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	out := make([]Fact, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.fact)
	}
	return out, nil
}

func hasType(types []FactType, t FactType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

var subjectStopwords = map[string]bool{
	"o": true, "a": true, "os": true, "as": true, "um": true, "uma": true,
	"de": true, "da": true, "do": true, "em": true, "na": true, "no": true,
	"para": true, "por": true, "com": true, "como": true, "que": true, "qual": true,
	"eu": true, "você": true, "ele": true, "ela": true, "meu": true, "minha": true,
	"the": true, "an": true, "what": true, "who": true, "where": true, "how": true,
	"i": true, "you": true, "he": true, "she": true, "my": true, "is": true,
	"jogador": true, "player": true, "personagem": true,
}

// SubjectOf returns the first capitalized word of a query that is not a
// stopword, or "".
func SubjectOf(query string) string {
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, ".,!?:;\"'")
		if w == "" {
			continue
		}
		if r := []rune(w)[0]; unicode.IsUpper(r) && !subjectStopwords[strings.ToLower(w)] {
			return w
		}
	}
	return ""
}

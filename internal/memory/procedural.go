package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

// PatternType groups behaviour patterns.
type PatternType string

const (
	CombatOpener       PatternType = "combat_opener"
	CombatEscape       PatternType = "combat_escape"
	ReactionToThreat   PatternType = "reaction_to_threat"
	ReactionToKindness PatternType = "reaction_to_kindness"
	LocationPreference PatternType = "location_preference"
	TimePreference     PatternType = "time_preference"
)

// Strength is derived from the number of occurrences of a pattern.
type Strength string

const (
	Weak       Strength = "weak"
	Moderate   Strength = "moderate"
	Strong     Strength = "strong"
	Definitive Strength = "definitive"
)

var strengthRank = map[Strength]int{Weak: 0, Moderate: 1, Strong: 2, Definitive: 3}

var strengthMultiplier = map[Strength]float64{
	Weak:       0.5,
	Moderate:   0.7,
	Strong:     0.85,
	Definitive: 0.95,
}

// StrengthFor maps occurrences onto a strength.
func StrengthFor(occurrences int) Strength {
	switch {
	case occurrences >= 10:
		return Definitive
	case occurrences >= 7:
		return Strong
	case occurrences >= 4:
		return Moderate
	}
	return Weak
}

// Pattern is the content of a procedural memory.
type Pattern struct {
	ID          int64       `json:"-"`
	Type        PatternType `json:"pattern_type"`
	Trigger     string      `json:"trigger"`
	Behavior    string      `json:"behavior"`
	Frequency   float64     `json:"frequency"`
	Occurrences int         `json:"occurrences"`
	Exceptions  int         `json:"exceptions"`
	Strength    Strength    `json:"strength"`
}

func newPattern(t PatternType, trigger, behavior string, occurrences int) Pattern {
	p := Pattern{Type: t, Trigger: trigger, Behavior: behavior, Occurrences: occurrences}
	p.refresh()
	return p
}

// Key is the merge key of the pattern.
func (p Pattern) Key() string {
	return strings.ToLower(string(p.Type) + "|" + p.Trigger)
}

// Observe records that the pattern was followed or broken once.
func (p *Pattern) Observe(followed bool) {
	if followed {
		p.Occurrences++
	} else {
		p.Exceptions++
	}
	p.refresh()
}

func (p *Pattern) refresh() {
	if total := p.Occurrences + p.Exceptions; total > 0 {
		p.Frequency = float64(p.Occurrences) / float64(total)
	} else {
		p.Frequency = 0.5
	}
	p.Strength = StrengthFor(p.Occurrences)
}

// Confidence is the frequency weighted by strength.
func (p Pattern) Confidence() float64 {
	return p.Frequency * strengthMultiplier[p.Strength]
}

func (p Pattern) Description() string {
	reliability := "sometimes"
	switch {
	case p.Frequency > 0.9:
		reliability = "always"
	case p.Frequency > 0.7:
		reliability = "usually"
	case p.Frequency > 0.5:
		reliability = "often"
	}
	return fmt.Sprintf("When %s, %s %s", p.Trigger, reliability, p.Behavior)
}

// ObservePattern adds one occurrence to the owner's pattern, creating it
// on first sight.
func (m *Manager) ObservePattern(ctx context.Context, owner models.Ref, t PatternType, trigger, behavior string) (Pattern, error) {
	return m.savePattern(ctx, owner, newPattern(t, trigger, behavior, 1))
}

func (m *Manager) savePattern(ctx context.Context, owner models.Ref, p Pattern) (Pattern, error) {
	existing, err := m.repo.MemoryByKey(ctx, owner, models.Procedural, p.Key())
	switch {
	case err == nil:
		var stored Pattern
		if err := json.Unmarshal(existing.Content, &stored); err != nil {
			return p, fmt.Errorf("decode pattern %d: %w", existing.ID, err)
		}
		stored.Behavior = p.Behavior
		stored.Observe(true)
		// a detected pattern never counts fewer occurrences than were seen
		if p.Occurrences > stored.Occurrences {
			stored.Occurrences = p.Occurrences
			stored.refresh()
		}
		stored.ID = existing.ID
		if existing.Content, err = json.Marshal(stored); err != nil {
			return p, err
		}
		existing.Importance = stored.Confidence()
		return stored, m.repo.UpdateMemory(ctx, existing)
	case !errors.Is(err, store.ErrNotFound):
		return p, err
	}

	content, err := json.Marshal(p)
	if err != nil {
		return p, err
	}
	rec := &models.MemoryRecord{
		Owner:      owner,
		Kind:       models.Procedural,
		Key:        p.Key(),
		Content:    content,
		Importance: p.Confidence(),
		Embedding:  m.embed(ctx, p.Trigger+" "+p.Behavior),
	}
	if err := m.repo.InsertMemory(ctx, rec); err != nil {
		return p, fmt.Errorf("insert pattern: %w", err)
	}
	p.ID = rec.ID
	return p, nil
}

// Patterns lists an owner's patterns at or above floor, strongest first.
func (m *Manager) Patterns(ctx context.Context, owner models.Ref, floor Strength) ([]Pattern, error) {
	records, err := m.repo.Memories(ctx, owner, models.Procedural, "", 0)
	if err != nil {
		return nil, err
	}
	var out []Pattern
	for _, r := range records {
		var p Pattern
		if err := json.Unmarshal(r.Content, &p); err != nil {
			m.logger.Warn("skipping unreadable pattern", "id", r.ID, "err", err)
			continue
		}
		p.ID = r.ID
		if strengthRank[p.Strength] >= strengthRank[floor] {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Occurrences > out[j].Occurrences })
	return out, nil
}

// Predict finds the pattern whose trigger shares the most words with
// situation. ok is false when no trigger scores above 0.3.
func Predict(patterns []Pattern, situation string) (behavior string, confidence float64, ok bool) {
	words := wordSet(situation)
	var best *Pattern
	bestScore := 0.0
	for i := range patterns {
		trigger := wordSet(patterns[i].Trigger)
		if len(trigger) == 0 {
			continue
		}
		shared := 0
		for w := range trigger {
			if words[w] {
				shared++
			}
		}
		if score := float64(shared) / float64(len(trigger)); score > bestScore {
			bestScore = score
			best = &patterns[i]
		}
	}
	if best == nil || bestScore <= 0.3 {
		return "", 0, false
	}
	return best.Behavior, best.Confidence() * bestScore, true
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

type keywordRule struct {
	words []string
	label string
}

func firstLabel(desc string, rules []keywordRule, fallback string) string {
	for _, r := range rules {
		if containsAny(desc, r.words) {
			return r.label
		}
	}
	return fallback
}

var (
	openerStart = []string{"primeiro", "iniciou", "first", "initiated", "opened"}
	openerRules = []keywordRule{
		{[]string{"ataque", "attack", "strike"}, "an aggressive attack"},
		{[]string{"defesa", "recuo", "defense", "defensive", "guard"}, "a defensive stance"},
	}
	escapeWords = []string{"fugiu", "recuou", "escapou", "fled", "retreated", "escaped"}
	escapeRules = []keywordRule{
		{[]string{"ferido", "hp baixo", "wounded", "injured", "low hp"}, "when badly wounded"},
		{[]string{"cercado", "cornered", "surrounded"}, "when cornered"},
	}
	negativeRules = []keywordRule{
		{[]string{"atacou", "revidou", "attacked", "retaliated", "struck back"}, "retaliates"},
		{[]string{"fugiu", "recuou", "fled", "withdrew", "backed away"}, "avoids confrontation"},
		{[]string{"guardou rancor", "lembrar", "grudge", "will remember"}, "holds a grudge"},
	}
	positiveRules = []keywordRule{
		{[]string{"agradeceu", "gratidão", "thanked", "grateful", "gratitude"}, "shows gratitude"},
		{[]string{"ajudou", "retribuiu", "helped", "repaid", "returned the favor"}, "returns the favor"},
	}
)

type tally struct {
	counts map[string]int
	order  []string
}

func (t *tally) add(label string) {
	if label == "" {
		return
	}
	if t.counts == nil {
		t.counts = map[string]int{}
	}
	if t.counts[label] == 0 {
		t.order = append(t.order, label)
	}
	t.counts[label]++
}

// top returns the most counted label, earliest first on ties.
func (t *tally) top() (string, int) {
	best, n := "", 0
	for _, l := range t.order {
		if t.counts[l] > n {
			best, n = l, t.counts[l]
		}
	}
	return best, n
}

// ranked returns labels by descending count, earliest first on ties.
func (t *tally) ranked() []string {
	out := append([]string(nil), t.order...)
	sort.SliceStable(out, func(i, j int) bool { return t.counts[out[i]] > t.counts[out[j]] })
	return out
}

// DetectPatterns scans recent episodes for recurring behaviour.
func DetectPatterns(episodes []Episode) []Pattern {
	var out []Pattern
	var openers, escapes, negative, positive, places, periods tally
	for _, e := range episodes {
		desc := strings.ToLower(e.Description)
		if e.Category == "combat" {
			if containsAny(desc, openerStart) {
				openers.add(firstLabel(desc, openerRules, "a cautious approach"))
			}
			if containsAny(desc, escapeWords) {
				escapes.add(firstLabel(desc, escapeRules, "when at a disadvantage"))
			}
		}
		if e.Valence.negative() {
			negative.add(firstLabel(desc, negativeRules, ""))
		}
		if e.Valence.positive() {
			positive.add(firstLabel(desc, positiveRules, ""))
		}
		if e.Location != "" {
			places.add(e.Location)
		}
		if e.Period != "" {
			periods.add(e.Period)
		}
	}

	if label, n := openers.top(); n >= 2 {
		out = append(out, newPattern(CombatOpener, "combat starts", "uses "+label, n))
	}
	if label, n := escapes.top(); n >= 2 {
		out = append(out, newPattern(CombatEscape, label, "flees from combat", n))
	}
	if label, n := negative.top(); n >= 2 {
		out = append(out, newPattern(ReactionToThreat, "threat or aggression", label, n))
	}
	if label, n := positive.top(); n >= 2 {
		out = append(out, newPattern(ReactionToKindness, "help or kindness", label, n))
	}
	for i, place := range places.ranked() {
		if i == 3 || places.counts[place] < 2 {
			break
		}
		out = append(out, newPattern(LocationPreference, "choosing where to go "+strings.ToLower(place), "goes to "+place, places.counts[place]))
	}
	if label, n := periods.top(); n >= 3 {
		out = append(out, newPattern(TimePreference, "choosing when to act", "acts at "+label, n))
	}
	return out
}

func (m *Manager) detect(ctx context.Context, owner models.Ref) error {
	recent, err := m.RecentEpisodes(ctx, owner, m.opts.PatternWindow)
	if err != nil {
		return err
	}
	for _, p := range DetectPatterns(recent) {
		if _, err := m.savePattern(ctx, owner, p); err != nil {
			return err
		}
	}
	return nil
}

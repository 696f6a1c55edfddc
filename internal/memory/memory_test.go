package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store/storetest"
)

func newManager(t *testing.T) *memory.Manager {
	t.Helper()
	s := storetest.Open(t)
	return memory.New(s, embedding.NewKeywordProjector(embedding.KeywordDimension), memory.DefaultOptions(), nil)
}

func yiFanAttack(player models.Ref, turn int) memory.Event {
	return memory.Event{
		Type:        memory.CombatAttack,
		Description: "Yi Fan attacked me near the well and I retaliated",
		Location:    "Vila Crisântemos",
		Turn:        turn,
		ActorName:   "Yi Fan",
		Actor:       models.NPCRef(7),
		TargetName:  "TestHero",
		Target:      player,
	}
}

func TestImportance(t *testing.T) {
	tests := []struct {
		name string
		ev   memory.Event
		want float64
	}{
		{"travel", memory.Event{Type: memory.Travel}, 0.1},
		{"kill", memory.Event{Type: memory.CombatKill}, 0.9},
		{"unknown type", memory.Event{Type: "gossip"}, 0.5},
		{"extreme valence", memory.Event{Type: memory.Observation, Valence: memory.VeryPositive}, 0.4},
		{"mild valence", memory.Event{Type: memory.Observation, Valence: memory.Negative}, 0.3},
		{"heavy damage taken", memory.Event{Type: memory.CombatAttack, DamageReceived: 60}, 0.75},
		{"clamped", memory.Event{Type: memory.Betrayal, Valence: memory.VeryNegative, DamageDealt: 80}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, tt.ev.Importance(), 1e-9)
		})
	}
}

func TestInferValence(t *testing.T) {
	require.Equal(t, memory.VeryNegative, memory.Event{Type: memory.CombatKill}.InferValence())
	require.Equal(t, memory.Negative, memory.Event{Type: memory.DialogueThreat}.InferValence())
	require.Equal(t, memory.VeryPositive, memory.Event{Type: memory.Breakthrough}.InferValence())
	require.Equal(t, memory.Positive, memory.Event{Type: memory.TradeBuy}.InferValence())
	require.Equal(t, memory.NeutralTone, memory.Event{Type: memory.Travel}.InferValence())
	require.Equal(t, memory.Positive, memory.Event{Type: memory.CombatKill, Valence: memory.Positive}.InferValence())
}

func TestRememberWritesCombatEpisode(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	player := models.PlayerRef(1)

	ep, err := m.Remember(ctx, player, yiFanAttack(player, 1))
	require.NoError(t, err)
	require.NotZero(t, ep.ID)
	require.Equal(t, "combat", ep.Category)
	require.Equal(t, memory.Negative, ep.Valence)
	require.ElementsMatch(t, []string{"Yi Fan", "TestHero"}, ep.Participants)

	recent, err := m.RecentEpisodes(ctx, player, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	facts, err := m.Facts(ctx, player, memory.FactQuery{})
	require.NoError(t, err)
	statements := make([]string, 0, len(facts))
	for _, f := range facts {
		statements = append(statements, f.Statement())
	}
	require.Contains(t, statements, "Yi Fan is hostile to me")
	require.Contains(t, statements, "Vila Crisântemos had recent combat")
}

func TestSameTripleMerges(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	owner := models.NPCRef(3)
	fact := memory.Fact{Subject: "Old Chen", Predicate: "sells", Object: "herbs", Confidence: memory.Possible}

	_, err := m.UpsertFact(ctx, owner, fact)
	require.NoError(t, err)
	fact.Subject = "old chen"
	got, err := m.UpsertFact(ctx, owner, fact)
	require.NoError(t, err)
	require.Equal(t, 2, got.Confirmations)

	facts, err := m.Facts(ctx, owner, memory.FactQuery{Subject: "Chen"})
	require.NoError(t, err)
	require.Len(t, facts, 1)

	got, err = m.UpsertFact(ctx, owner, fact)
	require.NoError(t, err)
	require.Equal(t, memory.Probable, got.Confidence)
	for i := 0; i < 2; i++ {
		got, err = m.UpsertFact(ctx, owner, fact)
		require.NoError(t, err)
	}
	require.Equal(t, 5, got.Confirmations)
	require.Equal(t, memory.Certain, got.Confidence)
}

func TestPatternStrengthFollowsOccurrences(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	owner := models.NPCRef(9)
	want := map[int]memory.Strength{
		2:  memory.Weak,
		4:  memory.Moderate,
		7:  memory.Strong,
		10: memory.Definitive,
	}
	var p memory.Pattern
	var err error
	for n := 1; n <= 10; n++ {
		p, err = m.ObservePattern(ctx, owner, memory.CombatOpener, "combat starts", "uses an aggressive attack")
		require.NoError(t, err)
		require.Equal(t, n, p.Occurrences)
		if s, ok := want[n]; ok {
			require.Equal(t, s, p.Strength, "occurrences %d", n)
		}
	}
	require.InDelta(t, 0.95, p.Confidence(), 1e-9)
}

func TestDetectPatterns(t *testing.T) {
	episodes := []memory.Episode{
		{Category: "combat", Description: "He struck first with an attack", Valence: memory.Negative, Location: "Floresta Nublada"},
		{Category: "combat", Description: "Initiated the fight with an attack, then fled when wounded", Valence: memory.Negative, Location: "Floresta Nublada"},
		{Category: "combat", Description: "Fled wounded from the wolves", Valence: memory.NeutralTone, Location: "Vila Crisântemos"},
		{Category: "help", Description: "Thanked the healer", Valence: memory.Positive, Location: "Vila Crisântemos"},
		{Category: "help", Description: "Was grateful for the rice", Valence: memory.Positive, Location: "Vila Crisântemos"},
	}
	byType := map[memory.PatternType]memory.Pattern{}
	for _, p := range memory.DetectPatterns(episodes) {
		if _, seen := byType[p.Type]; !seen {
			byType[p.Type] = p
		}
	}
	require.Equal(t, "uses an aggressive attack", byType[memory.CombatOpener].Behavior)
	require.Equal(t, "when badly wounded", byType[memory.CombatEscape].Trigger)
	require.Equal(t, "shows gratitude", byType[memory.ReactionToKindness].Behavior)
	require.Equal(t, "goes to Vila Crisântemos", byType[memory.LocationPreference].Behavior)
	require.Equal(t, 3, byType[memory.LocationPreference].Occurrences)
	_, ok := byType[memory.ReactionToThreat]
	require.False(t, ok, "one retaliation is not a pattern")
}

func TestPredict(t *testing.T) {
	patterns := []memory.Pattern{
		{Trigger: "threat or aggression", Behavior: "retaliates", Frequency: 1, Strength: memory.Moderate},
		{Trigger: "help or kindness", Behavior: "shows gratitude", Frequency: 1, Strength: memory.Strong},
	}
	behavior, conf, ok := memory.Predict(patterns, "a sudden threat from the road")
	require.True(t, ok)
	require.Equal(t, "retaliates", behavior)
	require.InDelta(t, 0.7/3, conf, 1e-9)

	_, _, ok = memory.Predict(patterns, "Yi Fan")
	require.False(t, ok)
}

func TestRecallAfterRepeatedAttacks(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	player := models.PlayerRef(1)

	for turn := 1; turn <= 5; turn++ {
		_, err := m.Remember(ctx, player, yiFanAttack(player, turn))
		require.NoError(t, err)
	}

	b := m.Recall(ctx, player, "Yi Fan")
	require.Empty(t, b.Note)
	require.Equal(t, "hostile", b.Stance)
	require.Equal(t, memory.Negative, b.DominantEmotion)
	require.NotEmpty(t, b.Episodes)

	var hostile *memory.Fact
	for i := range b.Facts {
		if b.Facts[i].Predicate == memory.PredHostile {
			hostile = &b.Facts[i]
		}
	}
	require.NotNil(t, hostile)
	require.Equal(t, "Yi Fan", hostile.Subject)
	require.Equal(t, memory.SelfObject, hostile.Object)
	require.Equal(t, memory.Certain, hostile.Confidence)
	require.Equal(t, 5, hostile.Confirmations)

	var reaction *memory.Pattern
	for i := range b.Patterns {
		if b.Patterns[i].Type == memory.ReactionToThreat {
			reaction = &b.Patterns[i]
		}
	}
	require.NotNil(t, reaction)
	require.Equal(t, "threat or aggression", reaction.Trigger)
	require.Equal(t, "retaliates", reaction.Behavior)
	require.Equal(t, memory.Moderate, reaction.Strength)
	require.Contains(t, b.Compact(3), "retaliates")
}

func TestDetectedPatternKeepsUpWithOccurrences(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	player := models.PlayerRef(1)

	for turn := 1; turn <= 10; turn++ {
		_, err := m.Remember(ctx, player, yiFanAttack(player, turn))
		require.NoError(t, err)
	}

	patterns, err := m.Patterns(ctx, player, memory.Weak)
	require.NoError(t, err)
	var reaction *memory.Pattern
	for i := range patterns {
		if patterns[i].Type == memory.ReactionToThreat {
			reaction = &patterns[i]
		}
	}
	require.NotNil(t, reaction)
	require.Equal(t, 10, reaction.Occurrences)
	require.Equal(t, memory.Definitive, reaction.Strength)
}

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}

func TestRecallFailureGivesEmptyBundle(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)
	m := memory.New(s, brokenEmbedder{}, memory.DefaultOptions(), nil)
	player := models.PlayerRef(2)

	// the episode is still written without a vector
	_, err := m.Remember(ctx, player, yiFanAttack(player, 1))
	require.NoError(t, err)
	n, err := s.CountMemories(ctx, player, models.Episodic)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	b := m.Recall(ctx, player, "Yi Fan")
	require.True(t, b.Empty())
	require.NotEmpty(t, b.Note)
	require.Equal(t, "neutral", b.Stance)
}

func TestConsolidateFlagsOldTrivia(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t)
	m := memory.New(s, embedding.NewKeywordProjector(embedding.KeywordDimension), memory.Options{ConsolidateAbove: 3}, nil)
	owner := models.NPCRef(4)

	for i := 0; i < 3; i++ {
		_, err := m.Remember(ctx, owner, memory.Event{Type: memory.Travel, Description: fmt.Sprintf("walked road %d", i), Turn: i})
		require.NoError(t, err)
	}
	_, err := m.Remember(ctx, owner, memory.Event{Type: memory.Betrayal, ActorName: "Lin", Description: "Lin sold us out", Turn: 4})
	require.NoError(t, err)

	records, err := s.Memories(ctx, owner, models.Episodic, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.True(t, records[3].Flagged, "oldest travel memory is flagged")
	require.False(t, records[0].Flagged)
}

func TestRelationshipSummary(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	owner := models.NPCRef(5)
	for i := 0; i < 3; i++ {
		_, err := m.Remember(ctx, owner, memory.Event{
			Type:        memory.HelpReceived,
			Description: "Mei Lin brought herbs",
			ActorName:   "Mei Lin",
			TargetName:  "Old Chen",
			Target:      owner,
			Turn:        i,
		})
		require.NoError(t, err)
	}
	rel, err := m.RelationshipSummary(ctx, owner, "Mei Lin")
	require.NoError(t, err)
	require.Equal(t, "friendly", rel.Stance)
	require.Equal(t, 3, rel.Positive)
	require.Contains(t, rel.KnownFacts, "Mei Lin was helped by me")
}

func TestSubjectOf(t *testing.T) {
	require.Equal(t, "Yi", memory.SubjectOf("Yi Fan"))
	require.Equal(t, "Chen", memory.SubjectOf("o que Chen disse?"))
	require.Equal(t, "", memory.SubjectOf("what happened here"))
}

package generators

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/textgen"
)

func newGenerator(t *testing.T, respond func(task, prompt string) (string, error)) (*Generator, *catalog.Catalog, *textgen.Fake) {
	t.Helper()
	cat, err := catalog.Load(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	fake := &textgen.Fake{Respond: respond}
	g, err := New(fake, cat, nil)
	require.NoError(t, err)
	return g, cat, fake
}

func reply(body string) func(task, prompt string) (string, error) {
	return func(task, prompt string) (string, error) { return body, nil }
}

const serpentJSON = "```json\n" + `{
  "name": "Serpente da Névoa",
  "gender": "unknown",
  "description": "Uma serpente de escamas cinzentas.",
  "personality": ["territorial", "astuta"],
  "stats": {"hp": 80, "defense": 12, "attack": 15, "speed": 14, "rank": 2},
  "aggression": 75,
  "courage": 30,
  "drops": [
    {"itemName": "Escama de Névoa", "chance": 0.6, "quantity_min": 1, "quantity_max": 3},
    {"itemName": "Escama de Névoa", "chance": 0.2, "quantity_min": 0, "quantity_max": 0}
  ]
}` + "\n```"

func TestEnemyAllocatesUnknownItems(t *testing.T) {
	g, cat, fake := newGenerator(t, reply(serpentJSON))
	e := g.Enemy(context.Background(), EnemyRequest{Tier: 2, Biome: "floresta", Species: "beast", Location: "Floresta Nebulosa"}, dice.New(1))

	require.True(t, e.Generated)
	require.Equal(t, "Serpente da Névoa", e.NPC.Name)
	require.False(t, e.NPC.CanSpeak, "beasts do not speak")
	require.Equal(t, models.Hostile, e.NPC.EmotionalState)
	require.Equal(t, "enemy", e.NPC.Role)
	require.Equal(t, 80.0, e.NPC.HP)
	require.Equal(t, 75, e.NPC.Aggression)
	require.Len(t, e.NewItems, 1)
	require.Equal(t, "escama_de_névoa", e.NewItems[0].ID)
	require.Equal(t, 100.0, e.NewItems[0].Value)
	require.Len(t, e.Drops, 2)
	require.Equal(t, 1, e.Drops[1].QuantityMin)
	require.Equal(t, 1, e.Drops[1].QuantityMax)
	require.Len(t, fake.Calls(), 1)
	require.Equal(t, textgen.TaskGenerator, fake.Calls()[0].Task)

	require.Nil(t, cat.Item("escama_de_névoa"), "proposals do not touch the catalog")
	require.NoError(t, g.SaveEnemy(e))
	require.NotNil(t, cat.Item("escama_de_névoa"))
	require.NotNil(t, cat.Loot("serpente_da_névoa"))
	require.NotNil(t, cat.Creature("serpente_da_névoa"))

	// A second generation of the same creature reuses the stored item.
	again := g.Enemy(context.Background(), EnemyRequest{Tier: 2, Biome: "floresta", Species: "beast"}, dice.New(2))
	require.Empty(t, again.NewItems)
	require.NoError(t, g.SaveEnemy(again))
}

func TestEnemyRetriesThenFallsBack(t *testing.T) {
	g, cat, fake := newGenerator(t, reply(`{"name": "Sem Stats"}`))
	e := g.Enemy(context.Background(), EnemyRequest{Tier: 3, Biome: "caverna", Species: "undead"}, dice.New(1))

	require.Len(t, fake.Calls(), 2, "one retry with the short prompt")
	require.NotContains(t, fake.Calls()[1].Prompt, "Criaturas já conhecidas")
	require.False(t, e.Generated)
	require.Equal(t, "Cadáver Errante", e.NPC.Name)
	require.Equal(t, 3, e.NPC.Rank)
	require.Equal(t, 140.0, e.NPC.MaxHP)
	require.Equal(t, 100, e.NPC.Courage)
	require.NoError(t, g.SaveEnemy(e))
	require.Nil(t, cat.Creature(e.NPC.MonsterID), "fallback enemies are not saved")
}

func TestEnemyFallbackPrefersBestiary(t *testing.T) {
	g, cat, _ := newGenerator(t, nil)
	require.NoError(t, cat.AppendCreature(catalog.Creature{Name: "Lobo Cinzento", Species: "beast", Biome: "floresta", Rank: 1, HP: 60, Defense: 8, Attack: 12}))

	e := g.Enemy(context.Background(), EnemyRequest{Tier: 2, Biome: "floresta"}, dice.New(4))
	require.Equal(t, "Lobo Cinzento", e.NPC.Name)
	require.Equal(t, 60.0, e.NPC.HP)
	require.Equal(t, "lobo_cinzento", e.NPC.MonsterID)
}

func TestFriendlyNPCGetsSchedule(t *testing.T) {
	g, _, _ := newGenerator(t, reply(`{"name": "Mestre Feng", "gender": "male", "description": "Um ferreiro robusto.",
		"personality": ["paciente"], "backstory": "Forjou espadas para a seita.", "dialogue_style": "formal",
		"stats": {"hp": 120, "defense": 15, "attack": 12, "speed": 8, "rank": 2}}`))
	n := g.NPC(context.Background(), NPCRequest{Location: "Vila Inicial", Role: "merchant"}, dice.New(1))

	require.Equal(t, "Mestre Feng", n.Name)
	require.True(t, n.CanSpeak)
	require.Equal(t, models.Friendly, n.EmotionalState)
	require.Equal(t, "merchant", n.Role)
	require.Equal(t, "formal", n.Dialogue)
	require.Equal(t, "Vila Inicial", n.Schedule["dawn"])
	require.Equal(t, "Vila Inicial_market", n.Schedule["noon"])
	require.Equal(t, "Vila Inicial_tavern", n.Schedule["evening"])
}

func TestNeutralNPCFallback(t *testing.T) {
	g, _, _ := newGenerator(t, nil)
	n := g.NPC(context.Background(), NPCRequest{Location: "Porto", Role: "sailor", Neutral: true}, dice.New(9))

	require.NotEmpty(t, n.Name)
	require.Equal(t, models.Neutral, n.EmotionalState)
	require.Equal(t, "civilian", n.Role)
	require.Equal(t, "sailor", n.Activity)
	require.Equal(t, 30, n.Aggression)
	require.Nil(t, n.Schedule)
	require.True(t, n.CanDialogue())
}

func TestQuestTypeByLocation(t *testing.T) {
	r := dice.New(1)
	for i := 0; i < 20; i++ {
		kind := QuestType("Floresta Sombria", 1, r)
		require.Contains(t, []string{"hunt", "gather"}, kind)
	}
	for i := 0; i < 20; i++ {
		require.Contains(t, []string{"artifact", "rescue", "duel", "investigate"}, QuestType("Lugar Nenhum", 6, r))
	}
}

func TestQuestRewardsScale(t *testing.T) {
	r := dice.New(3)
	for i := 0; i < 50; i++ {
		xp, gold := QuestRewards("duel", 2, r)
		// 100 * 2 * 1.5 * 1.5 = 450 within ±10%; gold 675 within ±20%.
		require.GreaterOrEqual(t, xp, 405.0)
		require.LessOrEqual(t, xp, 495.0)
		require.GreaterOrEqual(t, gold, 540)
		require.LessOrEqual(t, gold, 810)
	}
}

func TestQuestFromModel(t *testing.T) {
	g, _, fake := newGenerator(t, reply(`{"title": "A Presa do Javali", "hook": "Um caçador ferido pede ajuda.",
		"description": "Cace os javalis que destroem as plantações.", "target": "Javali Selvagem",
		"required_count": 9, "consequence_if_failed": "A colheita se perde."}`))
	p := models.NewPlayer("TestHero", "Mortal", "Floresta Sombria")
	p.ID = 7
	p.Tier = 2
	giver := models.NewNPC("Caçador Wu", "human", "Floresta Sombria")
	giver.ID = 3

	var q *models.Quest
	for seed := int64(1); ; seed++ {
		q = g.Quest(context.Background(), QuestRequest{Player: p, Location: "Floresta Sombria", Giver: giver, Turn: 10}, dice.New(seed))
		if q.Type == "hunt" {
			break
		}
	}
	require.True(t, q.AIGenerated)
	require.Equal(t, "A Presa do Javali", q.Title)
	require.Equal(t, 5, q.RequiredProgress, "hunt counts are capped")
	require.Equal(t, 10+30*2, q.Deadline)
	require.Equal(t, int64(3), q.GiverNPCID)
	require.Equal(t, models.QuestActive, q.Status)
	require.Contains(t, q.Description, "A colheita se perde.")

	prompt := fake.Calls()[0].Prompt
	require.Contains(t, prompt, "Não mencione HP, XP")
	require.Contains(t, prompt, "Caçador Wu")
}

func TestQuestFallbackTemplates(t *testing.T) {
	g, _, _ := newGenerator(t, nil)
	p := models.NewPlayer("TestHero", "Mortal", "Ruínas Antigas")
	p.Tier = 1
	for seed := int64(1); seed < 30; seed++ {
		q := g.Quest(context.Background(), QuestRequest{Player: p, Location: "Ruínas Antigas", Turn: 4}, dice.New(seed))
		require.False(t, q.AIGenerated)
		require.NotEmpty(t, q.Title)
		require.GreaterOrEqual(t, q.RequiredProgress, 1)
		require.Greater(t, q.Deadline, 4)
		if q.Type == "investigate" {
			require.Equal(t, "Segredos Ocultos", q.Title)
		} else {
			require.Equal(t, "Caçada nas Sombras", q.Title)
		}
	}
}

func TestPracticeTriggersOnFifthUse(t *testing.T) {
	p := models.NewPlayer("TestHero", "Mortal", "Vila")
	for i := 1; i <= 7; i++ {
		got := Practice(p, "attack:basic_attack")
		require.Equal(t, i == EpiphanyAt, got, "use %d", i)
	}
	require.Equal(t, 7, p.SkillUsage["attack:basic_attack"])
	require.False(t, Practice(p, ""))
}

func TestEpiphanyClampsAndLearns(t *testing.T) {
	g, cat, _ := newGenerator(t, reply(`{"name": "Punho do Trovão", "description": "Um soco carregado.",
		"cost_type": "yuan_qi", "cost": 15, "base_damage": 500, "damage_type": "lightning",
		"effects": [{"type": "dot", "damage_per_turn": 4}]}`))
	p := models.NewPlayer("TestHero", "Mortal", "Vila")

	s := g.Epiphany(context.Background(), p, "attack:basic_attack", "socar o tronco", &catalog.Skill{BaseDamage: 10})
	require.Equal(t, "punho_do_trovão", s.ID)
	require.Equal(t, 30.0, s.BaseDamage, "tier 1 caps damage at 30")
	require.Equal(t, 3, s.Effects[0].Duration)

	id, err := g.LearnEpiphany(p, s)
	require.NoError(t, err)
	require.True(t, p.HasSkill(id))
	require.NotNil(t, cat.Skill(id))
}

func TestEpiphanyFallback(t *testing.T) {
	g, _, _ := newGenerator(t, nil)
	p := models.NewPlayer("TestHero", "Mortal", "Vila")
	base := &catalog.Skill{ID: "shadow_step", BaseDamage: 12, DamageType: "shadow", CostType: "shadow_chi", SilentArt: true}

	s := g.Epiphany(context.Background(), p, "use_skill:shadow_step", "", base)
	require.Equal(t, "Epifania de shadow step", s.Name)
	require.Equal(t, "shadow", s.DamageType)
	require.Equal(t, "shadow_chi", s.CostType)
	require.True(t, s.SilentArt)
	require.Equal(t, 18.0, s.BaseDamage)
}

func TestQuestionsAndFallback(t *testing.T) {
	c := Character{Name: "Lin", Constitution: "Mortal", Origin: "Vila"}

	g, _, _ := newGenerator(t, reply("1. O que você busca?\n2. Quem te traiu?\n3. Extra ignorada"))
	qs := g.Questions(context.Background(), c)
	require.Len(t, qs, 5)
	require.Equal(t, SessionZeroQuestions[0], qs[0])
	require.Equal(t, "O que você busca?", qs[3])
	require.Equal(t, "Quem te traiu?", qs[4])

	offline, _, _ := newGenerator(t, func(task, prompt string) (string, error) { return "", errors.New("down") })
	qs = offline.Questions(context.Background(), c)
	require.Equal(t, "Qual é o seu maior objetivo na cultivação?", qs[3])
}

func TestBackstoryPromptCarriesAnswers(t *testing.T) {
	g, _, fake := newGenerator(t, reply("Lin cresceu entre as névoas."))
	c := Character{Name: "Lin", Constitution: "Mortal", Origin: "Vila", Answers: []string{"No mercado.", "Uma cabana.", "Minha irmã Mei.", "Vingança."}}

	require.Equal(t, "Lin cresceu entre as névoas.", g.Backstory(context.Background(), c))
	prompt := fake.Calls()[0].Prompt
	require.Contains(t, prompt, "No mercado.")
	require.Contains(t, prompt, "Minha irmã Mei.")
	require.Contains(t, prompt, "- Vingança.")

	offline, _, _ := newGenerator(t, nil)
	require.True(t, strings.HasPrefix(offline.Backstory(context.Background(), c), "Lin, nascido em Vila"))
}

func TestImportantNPCName(t *testing.T) {
	g, _, _ := newGenerator(t, reply("\"Mei Lin\"\nexplicação extra"))
	require.Equal(t, "Mei Lin", g.ImportantNPCName(context.Background(), "minha irmã mais velha"))
	require.Empty(t, g.ImportantNPCName(context.Background(), "  "))
}

func TestHasTraining(t *testing.T) {
	require.True(t, HasTraining("Treinou com o mestre da seita por dez anos"))
	require.False(t, HasTraining("Sou uma criança escrava, mas o mestre me bate"))
	require.False(t, HasTraining("Acordo no mercado"))
	require.True(t, StartsAtHome("Estou no meu quarto"))
}

func TestValidateRejectsBadChance(t *testing.T) {
	g, _, _ := newGenerator(t, nil)
	err := g.Validate("enemy", []byte(`{"name":"x","description":"y","stats":{"hp":1,"defense":0,"rank":1},"drops":[{"itemName":"z","chance":1.5}]}`))
	require.ErrorIs(t, err, ErrSchema)
	require.NoError(t, g.Validate("enemy", []byte(`{"name":"x","description":"y","stats":{"hp":1,"defense":0,"rank":1},"drops":[]}`)))
}

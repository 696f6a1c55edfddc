package models

import (
	"testing"
)

func TestBundleSaveLoad(t *testing.T) {
	dir := t.TempDir()
	p := NewPlayer("TestHero", "Mortal", "Vila Crisântemos")
	p.ID = 7
	p.AddItem("healing_pill", 2)
	p.LearnSkill("silent_strike")
	b := &Bundle{
		Player:  *p,
		Aliases: []LocationAlias{{PlayerID: 7, Alias: "casa", Target: "Casa de TestHero"}},
		Quests:  []Quest{{ID: 1, PlayerID: 7, Title: "Caça ao Javali", RequiredProgress: 3, Status: QuestActive}},
		History: []GameLog{{PlayerID: 7, Turn: 0, Input: "[CRIAÇÃO DE PERSONAGEM]", Narration: "Tudo começa.", Success: true}},
	}
	if err := b.Save(dir, "hero"); err != nil {
		t.Fatalf("Failed to save bundle: %v", err)
	}

	loaded, err := LoadBundle(dir, "hero")
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if loaded.Player.Name != "TestHero" || loaded.Player.ItemQuantity("healing_pill") != 2 {
		t.Errorf("player not restored: %+v", loaded.Player)
	}
	if len(loaded.History) != 1 || loaded.History[0].Input != "[CRIAÇÃO DE PERSONAGEM]" {
		t.Errorf("Expected 1 history entry, got %+v", loaded.History)
	}
	if len(loaded.Aliases) != 1 || loaded.Aliases[0].Alias != "casa" {
		t.Errorf("aliases not restored: %+v", loaded.Aliases)
	}

	names, err := ListBundles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "hero" {
		t.Errorf("Expected [hero], got %v", names)
	}
}

func TestPlayerInventory(t *testing.T) {
	p := NewPlayer("A", "Mortal", "x")
	p.AddItem("beast_core", 1)
	p.AddItem("beast_core", 2)
	p.AddItem("nothing", 0)
	if len(p.Inventory) != 1 || p.ItemQuantity("beast_core") != 3 {
		t.Fatalf("unexpected inventory: %+v", p.Inventory)
	}
	if p.RemoveItem("beast_core", 4) {
		t.Error("removed more than available")
	}
	if !p.RemoveItem("beast_core", 3) || len(p.Inventory) != 0 {
		t.Errorf("expected empty inventory, got %+v", p.Inventory)
	}
}

func TestPlayerClampAndEffects(t *testing.T) {
	p := NewPlayer("A", "Mortal", "x")
	p.HP = 140
	p.YuanQi = -3
	p.Corruption = 120
	p.Clamp()
	if p.HP != 100 || p.YuanQi != 0 || p.Corruption != 100 {
		t.Errorf("clamp failed: hp=%v qi=%v corruption=%v", p.HP, p.YuanQi, p.Corruption)
	}
	p.Effects = []StatusEffect{{Kind: "dot", TurnsLeft: 0}, {Kind: "berserk", TurnsLeft: 2}}
	p.PurgeEffects()
	if len(p.Effects) != 1 || p.Effects[0].Kind != "berserk" {
		t.Errorf("expected only live effects, got %+v", p.Effects)
	}
	if p.Rank() != p.Tier {
		t.Error("Rank must alias the cultivation tier")
	}
}

func TestPlayerCloneIsDeep(t *testing.T) {
	p := NewPlayer("A", "Mortal", "x")
	p.AddItem("rice", 1)
	c := p.Clone()
	c.AddItem("rice", 5)
	c.LearnSkill("flame_palm")
	if p.ItemQuantity("rice") != 1 || p.HasSkill("flame_palm") {
		t.Error("clone shares state with original")
	}
}

func TestNPCBehavior(t *testing.T) {
	n := NewNPC("Yi Fan", "human", "Vila Crisântemos")
	if !n.CanDialogue() {
		t.Error("living human should talk")
	}
	n.Courage = 95
	if n.ShouldFlee(0.05) {
		t.Error("courage 90+ never flees")
	}
	n.Courage = 30
	if !n.ShouldFlee(0.7) || n.ShouldFlee(0.8) {
		t.Error("courage 30 flees at or below 70% hp")
	}
	boar := NewNPC("Javali", "beast", "Floresta")
	if boar.CanDialogue() {
		t.Error("beasts do not talk")
	}
	boar.HP, boar.MaxHP = 30, 30
	if got := boar.ApplyDamage(50); got != 30 || boar.Alive {
		t.Errorf("expected lethal damage clamped to 30, got %v alive=%v", got, boar.Alive)
	}
}

func TestQuestProgressAndDeadline(t *testing.T) {
	q := Quest{RequiredProgress: 2, Deadline: 10, Status: QuestActive}
	if q.Advance(1) {
		t.Error("quest complete too early")
	}
	if !q.Advance(5) || q.CurrentProgress != 2 {
		t.Errorf("progress must cap at requirement, got %d", q.CurrentProgress)
	}
	if q.Expire(10) {
		t.Error("deadline turn itself is still valid")
	}
	if !q.Expire(11) || q.Status != QuestFailed {
		t.Error("expected failure past deadline")
	}
}

func TestFactionSetRelation(t *testing.T) {
	f := Faction{Name: "Império Central"}
	f.SetRelation("Lua Sombria", AtWar)
	if f.Relation("Lua Sombria") != AtWar || len(f.Enemies) != 1 {
		t.Fatalf("unexpected faction state: %+v", f)
	}
	f.SetRelation("Lua Sombria", Allied)
	if len(f.Enemies) != 0 || len(f.Allies) != 1 {
		t.Errorf("relation lists not updated: %+v", f)
	}
	if f.Relation("Clã Luo") != Neutral {
		t.Error("unknown factions default to neutral")
	}
}

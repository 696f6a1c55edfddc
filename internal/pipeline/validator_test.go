package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
)

func validScene() *Scene {
	p := models.NewPlayer("TestHero", "Mortal", "Vila")
	p.ID = 1
	yiFan := models.NewNPC("Yi Fan", "human", "Vila")
	yiFan.ID = 7
	return &Scene{
		Player:  p,
		NPCs:    []*models.NPC{yiFan},
		Session: session.New(1, p.Name, "Vila"),
		touched: map[int64]*models.NPC{},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		action PlannedAction
		mutate func(s *Scene, res *ActionResult)
		ok     bool
	}{
		{"plain observation", PlannedAction{Intent: Observe}, nil, true},
		{"refusal passes", PlannedAction{Intent: Attack}, func(s *Scene, res *ActionResult) {
			*res = *refuse("Não há ninguém aqui.")
		}, true},
		{"empty message", PlannedAction{Intent: Observe}, func(s *Scene, res *ActionResult) { res.Message = "" }, false},
		{"attack without hit", PlannedAction{Intent: Attack}, nil, false},
		{"attack with hit", PlannedAction{Intent: Attack}, func(s *Scene, res *ActionResult) {
			res.Attack = &combat.Hit{Dealt: 5, DefenderHP: 95}
		}, true},
		{"trade without trade", PlannedAction{Intent: Trade}, nil, false},
		{"hp above max", PlannedAction{Intent: Observe}, func(s *Scene, res *ActionResult) { s.Player.HP = s.Player.MaxHP + 1 }, false},
		{"corruption above 100", PlannedAction{Intent: Observe}, func(s *Scene, res *ActionResult) { s.Player.Corruption = 101 }, false},
		{"spent effect", PlannedAction{Intent: Observe}, func(s *Scene, res *ActionResult) {
			s.Player.Effects = []models.StatusEffect{{Kind: combat.DOT, TurnsLeft: 0}}
		}, false},
		{"empty stack", PlannedAction{Intent: Observe}, func(s *Scene, res *ActionResult) {
			s.Player.Inventory = []models.InventoryItem{{ItemID: "herb", Quantity: 0}}
		}, false},
		{"killed but present", PlannedAction{Intent: Attack}, func(s *Scene, res *ActionResult) {
			res.Attack = &combat.Hit{Defeated: true}
			res.Killed = "Yi Fan"
		}, false},
		{"mute listener", PlannedAction{Intent: Talk}, func(s *Scene, res *ActionResult) {
			s.NPCs[0].CanSpeak = false
			res.Listener = "Yi Fan"
		}, false},
		{"move without destination", PlannedAction{Intent: Move}, func(s *Scene, res *ActionResult) { res.Moved = true }, false},
		{"move elsewhere", PlannedAction{Intent: Move}, func(s *Scene, res *ActionResult) {
			res.Moved, res.NewLocation = true, "Floresta"
		}, false},
		{"touched npc over max", PlannedAction{Intent: Observe}, func(s *Scene, res *ActionResult) {
			s.NPCs[0].HP = 500
			s.touch(s.NPCs[0])
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScene()
			res := &ActionResult{Success: true, Message: "Algo acontece."}
			if tt.mutate != nil {
				tt.mutate(s, res)
			}
			v := Validate(s, tt.action, res)
			require.Equal(t, tt.ok, v.OK, v.Error)
			if !tt.ok {
				require.NotEmpty(t, v.Error)
			}
		})
	}
	require.False(t, Validate(validScene(), PlannedAction{Intent: Observe}, nil).OK)
}

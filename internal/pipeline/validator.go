package pipeline

import (
	"fmt"

	"github.com/daicherr/orbis/internal/models"
)

// Validate checks an executed attempt before it may commit. Refusals pass:
// they change nothing.
func Validate(s *Scene, a PlannedAction, res *ActionResult) ValidationResult {
	if res == nil {
		return invalid("executor returned no result")
	}
	if res.Refusal != "" {
		return ValidationResult{OK: true}
	}
	if v := checkShape(a, res); !v.OK {
		return v
	}
	if v := checkLegality(s, a, res); !v.OK {
		return v
	}
	return checkInvariants(s)
}

// checkShape requires the fields an intent's result must carry.
func checkShape(a PlannedAction, res *ActionResult) ValidationResult {
	if res.Message == "" {
		return invalid("result has no message")
	}
	switch a.Intent {
	case Attack, UseSkill:
		if res.Attack == nil {
			return invalid(fmt.Sprintf("%s result carries no attack", a.Intent))
		}
	case Move:
		if res.Moved && res.NewLocation == "" {
			return invalid("move result has no destination")
		}
	case Trade:
		if res.Trade == nil {
			return invalid("trade result carries no trade")
		}
	}
	return ValidationResult{OK: true}
}

func checkLegality(s *Scene, a PlannedAction, res *ActionResult) ValidationResult {
	if a.Intent.Combat() && res.Killed == "" {
		hit := res.Attack
		if hit != nil && !hit.Immune && hit.DefenderHP < 0 {
			return invalid("defender hp went negative")
		}
	}
	if res.Killed != "" {
		for _, n := range s.present() {
			if n.Name == res.Killed {
				return invalid(fmt.Sprintf("%s was killed but is still present", res.Killed))
			}
		}
	}
	if res.Listener != "" {
		n := findNPC(s.NPCs, res.Listener)
		if n == nil {
			return invalid(fmt.Sprintf("listener %s is not in the scene", res.Listener))
		}
		if !n.CanSpeak {
			return invalid(fmt.Sprintf("%s cannot speak", n.Name))
		}
		if !n.IsAlive() {
			return invalid(fmt.Sprintf("%s is dead", n.Name))
		}
	}
	if res.Moved && s.Player.Location != res.NewLocation {
		return invalid("player location does not match the move")
	}
	return ValidationResult{OK: true}
}

type pool struct {
	name     string
	cur, max float64
}

// checkInvariants holds every pool in range, every effect with turns left
// and every inventory stack positive.
func checkInvariants(s *Scene) ValidationResult {
	p := s.Player
	for _, pl := range []pool{
		{"hp", p.HP, p.MaxHP},
		{"quintessence", p.Quintessence, p.MaxQuintessence},
		{"shadow_chi", p.ShadowChi, p.MaxShadowChi},
		{"yuan_qi", p.YuanQi, p.MaxYuanQi},
	} {
		if pl.cur < 0 || pl.cur > pl.max {
			return invalid(fmt.Sprintf("%s %.2f out of range [0, %.2f]", pl.name, pl.cur, pl.max))
		}
	}
	if p.Corruption < 0 || p.Corruption > 100 {
		return invalid(fmt.Sprintf("corruption %.2f out of range", p.Corruption))
	}
	if v := checkEffects(p.Effects); !v.OK {
		return v
	}
	if v := checkInventory(p.Inventory); !v.OK {
		return v
	}
	for _, n := range s.Touched() {
		if n.HP < 0 || n.HP > n.MaxHP {
			return invalid(fmt.Sprintf("%s hp %.2f out of range", n.Name, n.HP))
		}
		if v := checkEffects(n.Effects); !v.OK {
			return v
		}
		if v := checkInventory(n.Inventory); !v.OK {
			return v
		}
	}
	return ValidationResult{OK: true}
}

func checkEffects(effects []models.StatusEffect) ValidationResult {
	for _, e := range effects {
		if e.Kind == "" {
			return invalid("status effect without a kind")
		}
		if e.TurnsLeft <= 0 {
			return invalid(fmt.Sprintf("status effect %s has no turns left", e.Kind))
		}
	}
	return ValidationResult{OK: true}
}

func checkInventory(inv []models.InventoryItem) ValidationResult {
	for _, it := range inv {
		if it.ItemID == "" || it.Quantity <= 0 {
			return invalid(fmt.Sprintf("inventory entry %q has quantity %d", it.ItemID, it.Quantity))
		}
	}
	return ValidationResult{OK: true}
}

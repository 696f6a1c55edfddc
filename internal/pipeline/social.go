package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
)

// silentReactions describe what creatures that cannot speak do when
// spoken to, by species.
var silentReactions = map[string]struct{ reaction, message string }{
	"beast":     {"growl", "%s rosna, os olhos fixos em você."},
	"undead":    {"stare", "%s encara você com um olhar vazio."},
	"construct": {"still", "%s permanece imóvel, indiferente às suas palavras."},
	"spirit":    {"flicker", "%s tremeluz, como se mal percebesse sua voz."},
}

func speciesReaction(n *models.NPC) (string, string) {
	sr, ok := silentReactions[strings.ToLower(n.Species)]
	if !ok {
		sr = silentReactions["beast"]
	}
	return sr.reaction, fmt.Sprintf(sr.message, n.Name)
}

func (x *Rules) talk(ctx context.Context, s *Scene, a PlannedAction, r *dice.Roller) (*ActionResult, error) {
	p := s.Player
	n := s.target(a.TargetName, false)
	if n == nil {
		if a.TargetName != "" {
			return refuse(fmt.Sprintf("Não há ninguém chamado %s por aqui.", a.TargetName)), nil
		}
		return refuse("Não há ninguém aqui para ouvir você."), nil
	}
	if !n.CanSpeak {
		reaction, msg := speciesReaction(n)
		return &ActionResult{Reaction: reaction, Message: msg}, nil
	}

	res := &ActionResult{Listener: n.Name}
	ev := memory.Event{
		ActorName:  p.Name,
		Actor:      models.PlayerRef(p.ID),
		TargetName: n.Name,
		Target:     models.NPCRef(n.ID),
	}
	words := firstNonEmpty(a.SpokenWords, a.RawInput)

	switch a.Intent {
	case Persuade:
		bonus := int(p.Willpower/10) + n.Disposition[p.ID]/10
		dc := 10 + n.Rank*2
		if n.IsHostile() {
			dc += 5
		}
		check := r.SkillCheck(bonus, dc)
		res.detail(fmt.Sprintf("persuasão: %d contra %d", check.Total, check.DC))
		ev.Type = memory.DialogueBargain
		ev.Description = fmt.Sprintf("%s tentou convencer %s: %q", p.Name, n.Name, words)
		if check.Passed {
			n.Disposition[p.ID] += 10
			if n.IsHostile() {
				n.EmotionalState = models.Neutral
			}
			res.Reaction = "persuaded"
			res.Message = fmt.Sprintf("%s pondera suas palavras e cede.", n.Name)
			ev.Outcome = "persuaded"
		} else {
			n.Disposition[p.ID] -= 5
			res.Reaction = "unmoved"
			res.Message = fmt.Sprintf("%s não se deixa convencer.", n.Name)
			ev.Outcome = "refused"
		}
	case Intimidate:
		bonus := p.Tier*2 + int(p.Strength/5) - n.Rank*2
		dc := 10 + n.Courage/10
		check := r.SkillCheck(bonus, dc)
		res.detail(fmt.Sprintf("intimidação: %d contra %d", check.Total, check.DC))
		ev.Type = memory.DialogueThreat
		ev.Description = fmt.Sprintf("%s ameaçou %s: %q", p.Name, n.Name, words)
		n.Disposition[p.ID] -= 10
		if check.Passed {
			n.EmotionalState = models.Scared
			res.Reaction = "cowed"
			res.Message = fmt.Sprintf("%s recua, intimidado.", n.Name)
			ev.Outcome = "cowed"
		} else {
			n.EmotionalState = models.Hostile
			res.Reaction = "defiant"
			res.Message = fmt.Sprintf("%s não se curva e encara você com raiva.", n.Name)
			ev.Outcome = "defiant"
		}
	default:
		switch a.Tone {
		case "hostile", "threatening":
			ev.Type = memory.DialogueHostile
			n.Disposition[p.ID] -= 5
		case "friendly", "respectful":
			ev.Type = memory.DialogueFriendly
			n.Disposition[p.ID] += 2
		default:
			ev.Type = memory.DialogueNeutral
		}
		ev.Description = fmt.Sprintf("%s disse a %s: %q", p.Name, n.Name, words)
		res.Reaction = "listens"
		res.Message = fmt.Sprintf("%s ouve o que você tem a dizer.", n.Name)
	}
	s.touch(n)
	s.remember(models.PlayerRef(p.ID), ev)
	s.remember(models.NPCRef(n.ID), ev)
	x.progressTalk(s, n, res)

	if a.Intent == Talk && n.QuestGiver && !s.activeQuest() && x.gen != nil {
		x.offerQuest(ctx, s, n, r, res)
	}
	return res, nil
}

// trade buys or sells one unit of the item named in the action with the
// NPC addressed. Selling is read from the player's words.
func (x *Rules) trade(ctx context.Context, s *Scene, a PlannedAction) (*ActionResult, error) {
	p := s.Player
	n := s.target(a.TargetName, false)
	if n == nil || !n.CanSpeak {
		return refuse("Não há ninguém aqui com quem negociar."), nil
	}
	if n.IsHostile() {
		return refuse(fmt.Sprintf("%s não tem interesse em negociar com você.", n.Name)), nil
	}
	if a.ItemName == "" {
		return refuse("O que você quer negociar?"), nil
	}
	it, id, err := x.resource(ctx, x.st.Queries, a.ItemName)
	if errors.Is(err, ErrUnknownResource) {
		return refuse(fmt.Sprintf("%s não negocia %s.", n.Name, a.ItemName)), nil
	}
	if err != nil {
		return nil, err
	}
	sale := selling(a.RawInput)
	t, err := x.deal(p, it, id, 1, sale)
	switch {
	case errors.Is(err, ErrNotEnoughGold):
		return refuse(fmt.Sprintf("Você não tem ouro suficiente para %s.", it.Name)), nil
	case errors.Is(err, ErrNotInInventory):
		return refuse(fmt.Sprintf("Você não tem %s para vender.", it.Name)), nil
	case err != nil:
		return nil, err
	}
	s.Economy = append(s.Economy, it)

	res := &ActionResult{Listener: n.Name, Trade: t, Reaction: "trades"}
	ev := memory.Event{
		ActorName:  p.Name,
		Actor:      models.PlayerRef(p.ID),
		TargetName: n.Name,
		Target:     models.NPCRef(n.ID),
		Item:       it.Name,
	}
	if sale {
		ev.Type = memory.TradeSell
		ev.Description = fmt.Sprintf("%s vendeu %s a %s", p.Name, it.Name, n.Name)
		res.Message = fmt.Sprintf("%s aceita seu %s e conta as moedas.", n.Name, it.Name)
		res.detail(fmt.Sprintf("vendeu %s por %d de ouro", it.Name, t.Total))
	} else {
		ev.Type = memory.TradeBuy
		ev.Description = fmt.Sprintf("%s comprou %s de %s", p.Name, it.Name, n.Name)
		res.Message = fmt.Sprintf("%s entrega %s em troca das suas moedas.", n.Name, it.Name)
		res.detail(fmt.Sprintf("comprou %s por %d de ouro", it.Name, t.Total))
		res.ItemsGained = append(res.ItemsGained, models.InventoryItem{ItemID: id, Quantity: 1})
	}
	n.Disposition[p.ID] += 1
	s.touch(n)
	s.remember(models.PlayerRef(p.ID), ev)
	s.remember(models.NPCRef(n.ID), ev)
	return res, nil
}

func selling(input string) bool {
	in := lower(input)
	return strings.Contains(in, "vend") || strings.Contains(in, "sell")
}

func npcNames(ns []*models.NPC) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Name)
	}
	return out
}

package generators

import (
	"context"
	"strings"

	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/models"
)

type questType struct {
	Name        string
	Locations   []string
	Difficulty  float64
	Deadline    int
	TargetType  string
	Description string
}

var questTypes = []questType{
	{"hunt", []string{"floresta", "montanha", "caverna", "pântano", "deserto"}, 1.0, 30, "creature", "Eliminar criaturas ou inimigos"},
	{"gather", []string{"floresta", "montanha", "caverna", "planície"}, 0.7, 25, "item", "Coletar recursos ou ingredientes"},
	{"escort", []string{"cidade", "vila", "porto", "estrada"}, 1.2, 40, "npc", "Proteger alguém durante uma viagem"},
	{"investigate", []string{"cidade", "templo", "ruínas", "biblioteca"}, 0.8, 50, "location", "Descobrir informações ou segredos"},
	{"delivery", []string{"cidade", "vila", "porto", "mercado"}, 0.5, 20, "item", "Entregar um item ou mensagem"},
	{"duel", []string{"arena", "cidade", "seita"}, 1.5, 60, "npc", "Derrotar um cultivador específico"},
	{"rescue", []string{"caverna", "ruínas", "acampamento", "dungeon"}, 1.3, 35, "npc", "Salvar alguém capturado"},
	{"artifact", []string{"ruínas", "templo", "tumba", "abismo"}, 1.4, 45, "item", "Recuperar um item antigo ou poderoso"},
}

func questTypeOf(name string) questType {
	for _, t := range questTypes {
		if t.Name == name {
			return t
		}
	}
	return questTypes[0]
}

// QuestType picks a quest type suited to the location keywords, or to the
// tier when no keyword matches.
func QuestType(location string, tier int, r *dice.Roller) string {
	loc := strings.ToLower(location)
	var fit []string
	for _, t := range questTypes {
		for _, kw := range t.Locations {
			if strings.Contains(loc, kw) {
				fit = append(fit, t.Name)
				break
			}
		}
	}
	if len(fit) == 0 {
		switch {
		case tier <= 2:
			fit = []string{"hunt", "gather", "delivery"}
		case tier <= 4:
			fit = []string{"hunt", "investigate", "escort", "duel"}
		default:
			fit = []string{"artifact", "rescue", "duel", "investigate"}
		}
	}
	return dice.Pick(r, fit)
}

// QuestRewards returns the xp and gold of a quest of the given type.
func QuestRewards(kind string, tier int, r *dice.Roller) (xp float64, gold int) {
	base := float64(max(tier, 1)) * 1.5 * questTypeOf(kind).Difficulty
	xp = float64(int(100 * base * r.Uniform(0.9, 1.1)))
	gold = int(150 * base * r.Uniform(0.8, 1.2))
	return xp, gold
}

// QuestRequest is the context a quest grows out of.
type QuestRequest struct {
	Player   *models.Player
	Location string
	Giver    *models.NPC
	Events   []string
	NPCs     []string
	World    string
	Turn     int
}

type questReply struct {
	Title         string `json:"title"`
	Hook          string `json:"hook"`
	Description   string `json:"description"`
	Target        string `json:"target"`
	RequiredCount int    `json:"required_count"`
	Consequence   string `json:"consequence_if_failed"`
	Lore          string `json:"lore_connection"`
}

type questPrompt struct {
	Type       string
	Location   string
	PlayerName string
	Tier       int
	Giver      string
	NPCs       []string
	Events     []string
	World      string
	Simple     bool
}

// Quest proposes a quest for the player. The model writes the flavour;
// type, rewards and deadline are computed here. On failure a template of
// the chosen type is used.
func (g *Generator) Quest(ctx context.Context, req QuestRequest, r *dice.Roller) *models.Quest {
	p := req.Player
	kind := QuestType(req.Location, p.Tier, r)
	xp, gold := QuestRewards(kind, p.Tier, r)
	qt := questTypeOf(kind)

	q := &models.Quest{
		PlayerID:    p.ID,
		Type:        kind,
		TargetType:  qt.TargetType,
		Location:    req.Location,
		RewardXP:    xp,
		RewardGold:  gold,
		RewardItems: []models.InventoryItem{},
		Deadline:    req.Turn + qt.Deadline*max(p.Tier, 1),
		Status:      models.QuestActive,
		CreatedTurn: req.Turn,
	}
	if req.Giver != nil {
		q.GiverNPCID = req.Giver.ID
	}

	data := &questPrompt{
		Type:       kind,
		Location:   req.Location,
		PlayerName: p.Name,
		Tier:       p.Tier,
		NPCs:       req.NPCs,
		Events:     lastN(req.Events, 5),
		World:      req.World,
	}
	if req.Giver != nil {
		data.Giver = req.Giver.Name
	}
	var reply questReply
	if err := g.ask(ctx, "quest", data, func() { data.Simple = true }, &reply); err != nil {
		g.logger.Warn("quest generation fell back", "type", kind, "err", err)
		fillTemplate(q, r)
		return q
	}

	q.Title = reply.Title
	q.Hook = orString(reply.Hook, "Uma oportunidade surge...")
	q.Description = reply.Description
	if reply.Consequence != "" {
		q.Description += " " + reply.Consequence
	}
	q.Target = reply.Target
	q.RequiredProgress = 1
	if kind == "hunt" {
		q.RequiredProgress = clampInt(reply.RequiredCount, 1, 5)
	}
	q.AIGenerated = true
	return q
}

func fillTemplate(q *models.Quest, r *dice.Roller) {
	switch q.Type {
	case "gather":
		q.Title = "Coleta de Recursos"
		q.Hook = "Um alquimista precisa de ingredientes raros."
		q.Description = "Colete os recursos necessários para o refinamento."
		q.Target = "Recursos Raros"
		q.RequiredProgress = r.Between(3, 6)
	case "investigate":
		q.Title = "Segredos Ocultos"
		q.Hook = "Rumores estranhos circulam sobre este local."
		q.Description = "Investigue a origem dos eventos misteriosos."
		q.Target = "Pistas"
		q.RequiredProgress = 1
	default:
		q.Title = "Caçada nas Sombras"
		q.Hook = "Criaturas perigosas foram avistadas nas redondezas."
		q.Description = "Elimine as criaturas hostis que ameaçam a área."
		q.Target = "Criaturas Hostis"
		q.TargetType = "creature"
		q.RequiredProgress = r.Between(2, 5)
	}
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/dice"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/store"
)

const questTension = 0.2

// offerQuest has a quest giver propose a quest and opens a plot thread
// for it.
func (x *Rules) offerQuest(ctx context.Context, s *Scene, giver *models.NPC, r *dice.Roller, res *ActionResult) {
	p := s.Player
	q := x.gen.Quest(ctx, generators.QuestRequest{
		Player:   p,
		Location: p.Location,
		Giver:    giver,
		NPCs:     npcNames(s.present()),
		Events:   eventLines(s.Events),
		Turn:     s.Turn,
	}, r)
	q.PlayerID = p.ID
	s.NewQuests = append(s.NewQuests, q)
	s.Session.StartThread(q.Title, q.Description, q.Target, []string{giver.Name}, questTension, s.Turn)
	res.Quests = append(res.Quests, "nova missão: "+q.Title)
	res.Message += fmt.Sprintf(" %s tem um pedido para você: %s", giver.Name, q.Hook)
}

func eventLines(events []*models.WorldEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Description)
	}
	return out
}

// progressKill advances hunts and duels whose target the victim matches.
func (x *Rules) progressKill(s *Scene, victim *models.NPC, res *ActionResult) {
	for _, q := range s.allQuests() {
		if q.Status != models.QuestActive {
			continue
		}
		switch q.TargetType {
		case "creature", "npc":
		default:
			continue
		}
		if q.Target == "" || !(models.MatchName(victim.Name, q.Target) || strings.EqualFold(victim.Species, q.Target)) {
			continue
		}
		x.advance(s, q, 1, res)
	}
}

// progressTalk advances quests that are settled by finding someone.
func (x *Rules) progressTalk(s *Scene, n *models.NPC, res *ActionResult) {
	for _, q := range s.allQuests() {
		if q.Status != models.QuestActive || q.TargetType != "npc" || q.Type == "duel" {
			continue
		}
		if q.Target != "" && models.MatchName(n.Name, q.Target) {
			x.advance(s, q, 1, res)
		}
	}
}

// progressPlace advances quests that are settled by reaching a place.
func (x *Rules) progressPlace(s *Scene, place string, res *ActionResult) {
	for _, q := range s.allQuests() {
		if q.Status != models.QuestActive || q.TargetType != "location" {
			continue
		}
		if models.MatchName(place, q.Target) || (q.Target == "" && strings.EqualFold(place, q.Location)) {
			x.advance(s, q, 1, res)
		}
	}
}

// progressItem advances gathering quests for the item picked up.
func (x *Rules) progressItem(s *Scene, id string, qty int, res *ActionResult) {
	for _, q := range s.allQuests() {
		if q.Status != models.QuestActive || q.TargetType != "item" || q.Target == "" {
			continue
		}
		if id == q.Target || models.MatchName(x.itemName(id), q.Target) {
			x.advance(s, q, qty, res)
		}
	}
}

func (x *Rules) advance(s *Scene, q *models.Quest, n int, res *ActionResult) {
	if !q.Advance(n) {
		res.Quests = append(res.Quests, fmt.Sprintf("%s: %d/%d", q.Title, q.CurrentProgress, q.RequiredProgress))
		return
	}
	x.complete(s, q, res)
}

// complete pays out a finished quest and resolves its plot thread.
func (x *Rules) complete(s *Scene, q *models.Quest, res *ActionResult) {
	p := s.Player
	q.Status = models.QuestCompleted
	q.CurrentProgress = q.RequiredProgress
	p.XP += q.RewardXP
	p.Gold += q.RewardGold
	for _, it := range q.RewardItems {
		if it.Quantity > 0 {
			p.AddItem(it.ItemID, it.Quantity)
			res.ItemsGained = append(res.ItemsGained, it)
		}
	}
	res.Quests = append(res.Quests, "missão concluída: "+q.Title)
	res.detail(fmt.Sprintf("recompensa: %.0f xp, %d de ouro", q.RewardXP, q.RewardGold))
	for _, th := range s.Session.ActiveThreads() {
		if strings.EqualFold(th.Title, q.Title) {
			s.Session.ResolveThread(th.ID)
		}
	}
	if bts := combat.TierUp(p, x.cat.Tier); len(bts) > 0 {
		res.Breakthrough = append(res.Breakthrough, bts...)
	}
}

func (x *Rules) expireQuests(s *Scene, res *ActionResult) {
	for _, q := range s.allQuests() {
		if q.Expire(s.Turn) {
			res.Quests = append(res.Quests, "missão fracassada: "+q.Title)
		}
	}
}

var (
	ErrQuestNotFound = errors.New("quest not found")
	ErrQuestNotReady = errors.New("quest is not ready to complete")
	ErrQuestActive   = errors.New("player already has an active quest")
)

// ActiveQuests lists the player's open quests.
func (pl *Pipeline) ActiveQuests(ctx context.Context, playerID int64) ([]*models.Quest, error) {
	return pl.st.ActiveQuests(ctx, playerID)
}

// GenerateQuest proposes a quest from the player's surroundings and opens
// a plot thread for it.
func (pl *Pipeline) GenerateQuest(ctx context.Context, playerID int64) (*models.Quest, error) {
	if pl.gen == nil {
		return nil, errors.New("quest generation is not configured")
	}
	unlock := pl.st.Locks().Lock(playerKey(playerID))
	defer unlock()

	p, err := pl.st.GetPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return nil, err
	}
	active, err := pl.st.ActiveQuests(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrQuestActive, active[0].Title)
	}
	npcs, err := pl.st.NPCsAt(ctx, p.Location)
	if err != nil {
		return nil, err
	}
	var giver *models.NPC
	var names []string
	for _, n := range npcs {
		if n.IsHostile() {
			continue
		}
		names = append(names, n.Name)
		if giver == nil && n.CanDialogue() {
			giver = n
		}
	}
	events, err := pl.st.EventsAt(ctx, p.Location, 0, 5)
	if err != nil {
		return nil, err
	}
	turn, err := pl.st.NextTurn(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	sc, err := pl.sessions.Get(ctx, p.ID, p.Name, p.Location)
	if err != nil {
		return nil, err
	}
	if sc, err = sc.Clone(); err != nil {
		return nil, err
	}

	r := dice.Derive(pl.seed, p.ID*7_919+int64(turn))
	q := pl.gen.Quest(ctx, generators.QuestRequest{
		Player:   p,
		Location: p.Location,
		Giver:    giver,
		NPCs:     names,
		Events:   eventLines(events),
		Turn:     turn,
	}, r)
	q.PlayerID = p.ID
	var involved []string
	if giver != nil {
		involved = []string{giver.Name}
	}
	sc.StartThread(q.Title, q.Description, q.Target, involved, questTension, turn)

	err = pl.st.WithTx(ctx, func(tx *store.Queries) error {
		if err := tx.CreateQuest(ctx, q); err != nil {
			return err
		}
		return pl.sessions.Save(ctx, tx, sc)
	})
	if err != nil {
		return nil, fmt.Errorf("save quest: %w", err)
	}
	pl.sessions.Put(sc)
	pl.logger.Info("quest generated", "player_id", p.ID, "quest_id", q.ID, "type", q.Type, "ai", q.AIGenerated)
	return q, nil
}

// CompleteQuest pays out an active quest whose progress is full.
func (pl *Pipeline) CompleteQuest(ctx context.Context, playerID, questID int64) (*models.Quest, *models.Player, error) {
	unlock := pl.st.Locks().Lock(playerKey(playerID))
	defer unlock()

	p, err := pl.st.GetPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %d", ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return nil, nil, err
	}
	q, err := pl.st.GetQuest(ctx, questID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && q.PlayerID != p.ID) {
		return nil, nil, fmt.Errorf("%w: %d", ErrQuestNotFound, questID)
	}
	if err != nil {
		return nil, nil, err
	}
	if q.Status != models.QuestActive || q.CurrentProgress < q.RequiredProgress {
		return nil, nil, fmt.Errorf("%w: %s is %s at %d/%d", ErrQuestNotReady, q.Title, q.Status, q.CurrentProgress, q.RequiredProgress)
	}
	sc, err := pl.sessions.Get(ctx, p.ID, p.Name, p.Location)
	if err != nil {
		return nil, nil, err
	}
	if sc, err = sc.Clone(); err != nil {
		return nil, nil, err
	}

	s := &Scene{Player: p, Session: sc, Quests: []*models.Quest{q}, touched: map[int64]*models.NPC{}}
	pl.rules.complete(s, q, &ActionResult{})
	err = pl.st.WithTx(ctx, func(tx *store.Queries) error {
		if err := tx.SaveQuest(ctx, q); err != nil {
			return err
		}
		if err := tx.SavePlayer(ctx, p); err != nil {
			return err
		}
		return pl.sessions.Save(ctx, tx, sc)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("complete quest %d: %w", questID, err)
	}
	pl.sessions.Put(sc)
	return q, p, nil
}

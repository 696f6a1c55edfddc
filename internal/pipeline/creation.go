package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/combat"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/store"
)

var ErrInvalidCharacter = errors.New("invalid character")

// creationInput marks the turn-0 log entry of a new character.
const creationInput = "[CRIAÇÃO DE PERSONAGEM]"

// starterSkills are granted to characters whose first scene shows training.
var starterSkills = []string{"silent_strike"}

// CreationFeedback tells the client what session zero decided.
type CreationFeedback struct {
	HasInitialSkills    bool   `json:"has_initial_skills"`
	SkillsExplanation   string `json:"skills_explanation"`
	ImportantNPCCreated bool   `json:"important_npc_created"`
	ImportantNPC        string `json:"important_npc_name,omitempty"`
	StartingLocation    string `json:"starting_location"`
	FirstScene          string `json:"first_scene"`
}

type Creation struct {
	Player   *models.Player   `json:"player"`
	Feedback CreationFeedback `json:"creation_feedback"`
}

// SessionZero returns the questions a new character answers.
func (pl *Pipeline) SessionZero(ctx context.Context, c generators.Character) []string {
	if pl.gen == nil {
		return append([]string{}, generators.SessionZeroQuestions...)
	}
	return pl.gen.Questions(ctx, c)
}

// CreateFull creates a player from the session-zero answers: backstory,
// home, the important person of their life and the opening scene, logged
// as turn 0.
func (pl *Pipeline) CreateFull(ctx context.Context, c generators.Character) (*Creation, error) {
	ctx, span := tracer.Start(ctx, "pipeline.CreateFull")
	defer span.End()

	c.Name = strings.TrimSpace(c.Name)
	c.Origin = strings.TrimSpace(c.Origin)
	if c.Name == "" || c.Origin == "" {
		return nil, fmt.Errorf("%w: name and origin are required", ErrInvalidCharacter)
	}
	if _, err := pl.st.GetPlayerByName(ctx, c.Name); err == nil {
		return nil, fmt.Errorf("%w: player %q already exists", store.ErrConflict, c.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	first := c.FirstScene()
	trained := generators.HasTraining(first)
	var backstory, important string
	if pl.gen != nil {
		backstory = pl.gen.Backstory(ctx, c)
		important = pl.gen.ImportantNPCName(ctx, c.Important())
	}

	p := models.NewPlayer(c.Name, firstNonEmpty(c.Constitution, "Mortal"), c.Origin)
	p.Appearance = c.Appearance
	p.Backstory = backstory
	p.FirstScene = first
	p.ImportantNPC = important
	p.HomeLocation = c.Origin
	combat.ApplyConstitution(p, pl.cat.ConstitutionOrMortal(p.ConstitutionType))
	if trained {
		for _, id := range starterSkills {
			if pl.cat.Skill(id) != nil {
				p.LearnSkill(id)
			}
		}
	}

	created := false
	err := pl.st.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreatePlayer(ctx, p); err != nil {
			return fmt.Errorf("create player: %w", err)
		}
		if home := c.Home(); home != "" && knownPlace(ctx, q, c.Origin) {
			d := &models.DynamicLocation{
				Name:        "Lar de " + p.Name,
				Kind:        "home",
				Description: home,
				Parent:      c.Origin,
				OwnerID:     p.ID,
			}
			if err := q.CreateDynamicLocation(ctx, d); err != nil {
				return fmt.Errorf("create home: %w", err)
			}
			p.HomeLocation, p.HomeLocationID = d.Name, d.ID
			if generators.StartsAtHome(first) {
				p.Location = d.Name
			}
		}
		if important != "" {
			n := models.NewNPC(important, "human", p.Location)
			n.Rank = 1
			n.Personality = []string{"amigável", "importante"}
			n.Description = c.Important()
			n.Disposition[p.ID] = 50
			n.HomeLocation = p.HomeLocation
			if err := q.CreateNPC(ctx, n); err != nil {
				return fmt.Errorf("create important npc: %w", err)
			}
			created = true
		}
		return q.SavePlayer(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	scene, err := pl.openingScene(ctx, p)
	if err != nil {
		return nil, err
	}
	pl.logger.Info("player created", "player_id", p.ID, "name", p.Name, "trained", trained, "location", p.Location)

	fb := CreationFeedback{
		HasInitialSkills:    len(p.LearnedSkills) > 0,
		SkillsExplanation:   "Você ainda não possui técnicas de cultivo. Precisará treinar ou ter uma epifania para aprendê-las.",
		ImportantNPCCreated: created,
		ImportantNPC:        important,
		StartingLocation:    p.Location,
		FirstScene:          scene,
	}
	if fb.HasInitialSkills {
		fb.SkillsExplanation = "Você possui as seguintes técnicas: " + strings.Join(p.LearnedSkills, ", ")
	}
	return &Creation{Player: p, Feedback: fb}, nil
}

// knownPlace reports whether name is a structured location a home can be
// attached to.
func knownPlace(ctx context.Context, q *store.Queries, name string) bool {
	_, err := q.GetLocation(ctx, name)
	return err == nil
}

// openingScene narrates where the new character wakes up and logs it as
// turn 0 together with the first session entry.
func (pl *Pipeline) openingScene(ctx context.Context, p *models.Player) (string, error) {
	unlock := pl.st.Locks().Lock(playerKey(p.ID))
	defer unlock()

	ts := &turnState{
		player:    p,
		gameTime:  pl.clock.Formatted(),
		timeOfDay: pl.clock.TimeOfDay(),
		at:        pl.clock.Now(),
		recalled:  map[int64]*memory.Bundle{},
	}
	if err := pl.loadPlace(ctx, ts); err != nil {
		return "", err
	}
	npcs, err := pl.st.NPCsAt(ctx, p.Location)
	if err != nil {
		return "", fmt.Errorf("npcs at %s: %w", p.Location, err)
	}
	sc, err := pl.sessions.Get(ctx, p.ID, p.Name, p.Location)
	if err != nil {
		return "", err
	}
	sc, err = sc.Clone()
	if err != nil {
		return "", err
	}

	result := &ActionResult{
		Success: true,
		Message: fmt.Sprintf("Você desperta em %s. Sua jornada começa agora...", p.Location),
	}
	narration := pl.narrator.Narrate(ctx, NarrationRequest{
		Player:   p,
		Place:    ts.place,
		Location: p.Location,
		Present:  npcs,
		Action:   PlannedAction{Intent: Observe, RawInput: p.FirstScene},
		Result:   result,
		Session:  sc,
		At:       ts.at,
		Period:   ts.timeOfDay,
		Opening:  true,
	})

	entities := make([]session.Entity, 0, len(npcs))
	for _, n := range npcs {
		entities = append(entities, session.EntityFromNPC(n))
	}
	sc.SetPresent(entities)
	snap := session.SnapshotOf(pl.clock)
	sc.Time = &snap
	sc.AddTurn(session.TurnSummary{
		Turn:      0,
		Input:     creationInput,
		Action:    "character_creation",
		Result:    result.Message,
		Narration: narration,
		Location:  p.Location,
		NPCs:      npcNames(npcs),
		Beat:      sc.Beat,
		At:        ts.at,
	})

	entry := &models.GameLog{
		PlayerID: p.ID,
		Turn:     0,
		Input:    creationInput,
		Action:   map[string]any{"intent": "character_creation"},
		Result: map[string]any{
			"has_initial_skills": len(p.LearnedSkills) > 0,
			"important_npc":      p.ImportantNPC,
			"backstory":          p.Backstory,
		},
		Narration:   narration,
		Location:    p.Location,
		NPCsPresent: npcNames(npcs),
		GameTime:    ts.gameTime,
		Success:     true,
	}
	err = pl.st.WithTx(ctx, func(q *store.Queries) error {
		if err := q.AppendLog(ctx, entry); err != nil {
			return fmt.Errorf("append creation log: %w", err)
		}
		return pl.sessions.Save(ctx, q, sc)
	})
	if err != nil {
		return "", err
	}
	pl.sessions.Put(sc)
	if pl.oracle != nil {
		if err := pl.oracle.UpdatePlayerLocation(ctx, p.ID, "", p.Location); err != nil {
			pl.logger.Warn("oracle player location", "player_id", p.ID, "err", err)
		}
	}
	return narration, nil
}

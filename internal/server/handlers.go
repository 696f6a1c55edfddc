package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
)

type characterRequest struct {
	Name         string   `json:"name"`
	Appearance   string   `json:"appearance"`
	Constitution string   `json:"constitution"`
	Origin       string   `json:"origin"`
	Answers      []string `json:"answers,omitempty"`
}

func (c characterRequest) character() generators.Character {
	return generators.Character{
		Name:         strings.TrimSpace(c.Name),
		Appearance:   c.Appearance,
		Constitution: c.Constitution,
		Origin:       strings.TrimSpace(c.Origin),
		Answers:      c.Answers,
	}
}

func (s *Server) sessionZero(w http.ResponseWriter, r *http.Request) {
	var req characterRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	questions := s.pl.SessionZero(r.Context(), req.character())
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *Server) createFull(w http.ResponseWriter, r *http.Request) {
	var req characterRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.pl.CreateFull(r.Context(), req.character())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.st.ListPlayers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) player(r *http.Request, name string) (*models.Player, error) {
	id, err := pathID(r, name)
	if err != nil {
		return nil, err
	}
	return s.st.GetPlayer(r.Context(), id)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// playerHistory returns what the player remembers, newest first.
func (s *Server) playerHistory(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	episodes, err := s.mem.RecentEpisodes(r.Context(), models.PlayerRef(p.ID), queryInt(r, "limit", 20, 100))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player_id": p.ID, "episodes": episodes})
}

func (s *Server) playerInventory(w http.ResponseWriter, r *http.Request) {
	p, err := s.player(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"player_id": p.ID,
		"gold":      p.Gold,
		"inventory": p.Inventory,
	})
}

type turnRequest struct {
	PlayerID int64  `json:"player_id"`
	Input    string `json:"player_input"`
}

func (t turnRequest) validate() error {
	if t.PlayerID <= 0 {
		return fmt.Errorf("%w: player_id is required", errBadRequest)
	}
	if strings.TrimSpace(t.Input) == "" {
		return fmt.Errorf("%w: player_input is required", errBadRequest)
	}
	return nil
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pl.Turn(r.Context(), req.PlayerID, req.Input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) gameLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "player_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.st.GetPlayer(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	logs, err := s.st.RecentLogs(r.Context(), id, queryInt(r, "limit", 20, 100))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) listNPCs(w http.ResponseWriter, r *http.Request) {
	npcs, err := s.st.ListNPCs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, npcs)
}

type observation struct {
	NPC          *models.NPC          `json:"npc"`
	Relationship *memory.Relationship `json:"relationship,omitempty"`
}

// observeNPC describes an NPC and, given ?player_id, how it regards that
// player.
func (s *Server) observeNPC(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	npc, err := s.st.GetNPC(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := observation{NPC: npc}
	if r.URL.Query().Has("player_id") {
		p, err := s.playerFromQuery(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		rel, err := s.mem.RelationshipSummary(r.Context(), models.NPCRef(npc.ID), p.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out.Relationship = &rel
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) playerFromQuery(r *http.Request) (*models.Player, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("player_id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: player_id must be a positive integer", errBadRequest)
	}
	return s.st.GetPlayer(r.Context(), id)
}

func (s *Server) worldTime(w http.ResponseWriter, r *http.Request) {
	snap := s.clock.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"current_datetime": snap.Now,
		"turn":             snap.Turn,
		"formatted":        s.clock.Formatted(),
		"time_of_day":      s.clock.TimeOfDay(),
		"season":           s.clock.Season(),
		"moon_phase":       s.oracle.Moon(),
		"moon_modifier":    s.oracle.MoonModifier(),
		"global_weather":   s.oracle.Snapshot().Weather,
	})
}

func (s *Server) worldFactions(w http.ResponseWriter, r *http.Request) {
	factions, err := s.st.ListFactions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factions)
}

// worldEconomy lists the market, priced for ?location when given.
func (s *Server) worldEconomy(w http.ResponseWriter, r *http.Request) {
	items, err := s.pl.Market(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) worldEvents(w http.ResponseWriter, r *http.Request) {
	since := queryInt(r, "since", 0, 1<<30)
	limit := queryInt(r, "limit", 20, 100)
	var (
		events []*models.WorldEvent
		err    error
	)
	if loc := r.URL.Query().Get("location"); loc != "" {
		events, err = s.st.EventsAt(r.Context(), loc, since, limit)
	} else {
		events, err = s.st.RecentEvents(r.Context(), since, limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.st.ListLocations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

func (s *Server) activeQuests(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "player_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	quests, err := s.pl.ActiveQuests(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quests)
}

type questRequest struct {
	PlayerID int64 `json:"player_id"`
	QuestID  int64 `json:"quest_id,omitempty"`
}

func (s *Server) generateQuest(w http.ResponseWriter, r *http.Request) {
	var req questRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PlayerID <= 0 {
		s.fail(w, r, fmt.Errorf("%w: player_id is required", errBadRequest))
		return
	}
	q, err := s.pl.GenerateQuest(r.Context(), req.PlayerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) completeQuest(w http.ResponseWriter, r *http.Request) {
	var req questRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PlayerID <= 0 || req.QuestID <= 0 {
		s.fail(w, r, fmt.Errorf("%w: player_id and quest_id are required", errBadRequest))
		return
	}
	q, p, err := s.pl.CompleteQuest(r.Context(), req.PlayerID, req.QuestID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quest": q, "player": p})
}

type tradeRequest struct {
	PlayerID int64  `json:"player_id"`
	Resource string `json:"resource"`
	Quantity int    `json:"quantity"`
}

func (t *tradeRequest) validate() error {
	if t.Quantity == 0 {
		t.Quantity = 1
	}
	switch {
	case t.PlayerID <= 0:
		return fmt.Errorf("%w: player_id is required", errBadRequest)
	case strings.TrimSpace(t.Resource) == "":
		return fmt.Errorf("%w: resource is required", errBadRequest)
	case t.Quantity < 0:
		return fmt.Errorf("%w: quantity must be positive", errBadRequest)
	}
	return nil
}

func (s *Server) buy(w http.ResponseWriter, r *http.Request)  { s.trade(w, r, false) }
func (s *Server) sell(w http.ResponseWriter, r *http.Request) { s.trade(w, r, true) }

func (s *Server) trade(w http.ResponseWriter, r *http.Request, sale bool) {
	var req tradeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	settle := s.pl.Buy
	if sale {
		settle = s.pl.Sell
	}
	t, err := settle(r.Context(), req.PlayerID, req.Resource, req.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) price(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimSpace(r.PathValue("resource"))
	if resource == "" {
		s.fail(w, r, fmt.Errorf("%w: resource is required", errBadRequest))
		return
	}
	item, err := s.pl.Price(r.Context(), resource, r.URL.Query().Get("location"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

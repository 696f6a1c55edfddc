// Package server is the HTTP surface of the engine: JSON endpoints for
// players, the world and the market, plus streamed turns over SSE and
// WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/store"
	"github.com/daicherr/orbis/internal/worldstate"
)

// maxBody caps request bodies.
const maxBody = 64 << 10

type Deps struct {
	Pipeline *pipeline.Pipeline
	Store    *store.Store
	Memory   *memory.Manager
	Oracle   *worldstate.Oracle
	Clock    *clock.Clock
	Logger   *slog.Logger
}

type Server struct {
	pl     *pipeline.Pipeline
	st     *store.Store
	mem    *memory.Manager
	oracle *worldstate.Oracle
	clock  *clock.Clock
	logger *slog.Logger

	upgrader websocket.Upgrader
	// chunkWords is the number of words per streamed narration chunk.
	chunkWords int
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pl:     d.Pipeline,
		st:     d.Store,
		mem:    d.Memory,
		oracle: d.Oracle,
		clock:  d.Clock,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		chunkWords: 6,
	}
}

// Handler routes every endpoint. Each route gets its own span, named by
// its pattern.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, otelhttp.NewHandler(h, pattern))
	}
	handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	handle("POST /character/session-zero", s.sessionZero)
	handle("POST /player/create-full", s.createFull)
	handle("GET /player/list/all", s.listPlayers)
	handle("GET /player/{id}", s.getPlayer)
	handle("GET /player/{id}/history", s.playerHistory)
	handle("GET /player/{id}/inventory", s.playerInventory)

	handle("POST /game/turn", s.turn)
	handle("POST /game/turn/stream", s.turnStream)
	handle("GET /game/turn/ws", s.turnSocket)
	handle("GET /game/log/{player_id}", s.gameLog)

	handle("GET /npc/list/all", s.listNPCs)
	handle("GET /npc/{id}/observe", s.observeNPC)

	handle("GET /world/time", s.worldTime)
	handle("GET /world/factions", s.worldFactions)
	handle("GET /world/economy", s.worldEconomy)
	handle("GET /world/events", s.worldEvents)
	handle("GET /locations/all", s.listLocations)

	handle("GET /quest/active/{player_id}", s.activeQuests)
	handle("POST /quest/generate", s.generateQuest)
	handle("POST /quest/complete", s.completeQuest)

	handle("POST /shop/buy", s.buy)
	handle("POST /shop/sell", s.sell)
	handle("GET /economy/price/{resource}", s.price)

	return mux
}

// NewHTTPServer wraps the handler with the timeouts the process runs with.
// Writes are not bounded: a streamed turn may take minutes.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// statusOf maps an error onto the HTTP status reported for it.
func statusOf(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrPlayerNotFound),
		errors.Is(err, pipeline.ErrQuestNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrPlayerDead),
		errors.Is(err, pipeline.ErrQuestActive),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrInvalidCharacter),
		errors.Is(err, pipeline.ErrQuestNotReady),
		errors.Is(err, pipeline.ErrNotEnoughGold),
		errors.Is(err, pipeline.ErrNotInInventory),
		errors.Is(err, pipeline.ErrUnknownResource),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrTurnTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

var errBadRequest = errors.New("bad request")

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def, maxVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxVal)
}

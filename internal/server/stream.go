package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Stream event names, shared by SSE and WebSocket clients.
const (
	eventMetadata = "metadata"
	eventChunk    = "narrator_chunk"
	eventDone     = "done"
	eventError    = "error"
)

// emitter delivers one named event to a streaming client.
type emitter func(event string, data any) error

type streamError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// streamTurn runs a turn and emits its result: the metadata without the
// narration, the narration in word chunks, then done. A failed turn emits
// a single error event.
func (s *Server) streamTurn(ctx context.Context, req turnRequest, emit emitter) error {
	if err := req.validate(); err != nil {
		return emit(eventError, streamError{Error: err.Error(), Status: http.StatusBadRequest})
	}
	res, err := s.pl.Turn(ctx, req.PlayerID, req.Input)
	if err != nil {
		status := statusOf(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			s.logger.Error("streamed turn failed", "player", req.PlayerID, "err", err)
			msg = "internal error"
		}
		return emit(eventError, streamError{Error: msg, Status: status})
	}

	meta := *res
	meta.Narration = ""
	if err := emit(eventMetadata, meta); err != nil {
		return err
	}
	for _, c := range chunks(res.Narration, s.chunkWords) {
		if err := emit(eventChunk, map[string]string{"text": c}); err != nil {
			return err
		}
	}
	return emit(eventDone, map[string]any{"success": !res.Failed, "turn_number": res.Turn})
}

// chunks splits text into pieces of n words. Joining the pieces gives back
// text exactly.
func chunks(text string, n int) []string {
	if text == "" {
		return nil
	}
	if n <= 0 {
		return []string{text}
	}
	words := strings.SplitAfter(text, " ")
	out := make([]string, 0, len(words)/n+1)
	for i := 0; i < len(words); i += n {
		out = append(out, strings.Join(words[i:min(i+n, len(words))], ""))
	}
	return out
}

func (s *Server) turnStream(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	_ = rc.Flush()

	emit := func(event string, data any) error {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
			return err
		}
		return rc.Flush()
	}
	if err := s.streamTurn(r.Context(), req, emit); err != nil {
		s.logger.Debug("sse client went away", "err", err)
	}
}

type socketFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// turnSocket plays turns over a WebSocket, one request frame at a time.
func (s *Server) turnSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit := func(event string, data any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(socketFrame{Event: event, Data: data})
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req turnRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			if emit(eventError, streamError{Error: "malformed request", Status: http.StatusBadRequest}) != nil {
				return
			}
			continue
		}
		if err := s.streamTurn(ctx, req, emit); err != nil {
			s.logger.Debug("websocket client went away", "err", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		}
	}
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/daicherr/orbis/internal/catalog"
	"github.com/daicherr/orbis/internal/clock"
	"github.com/daicherr/orbis/internal/config"
	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/generators"
	"github.com/daicherr/orbis/internal/memory"
	"github.com/daicherr/orbis/internal/models"
	"github.com/daicherr/orbis/internal/pipeline"
	"github.com/daicherr/orbis/internal/session"
	"github.com/daicherr/orbis/internal/store/storetest"
	"github.com/daicherr/orbis/internal/textgen"
	"github.com/daicherr/orbis/internal/worldstate"
)

var start = time.Date(1000, time.January, 1, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := storetest.Open(t)
	cat, err := catalog.Load(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	text := textgen.Offline()
	gen, err := generators.New(text, cat, nil)
	require.NoError(t, err)
	mem := memory.New(st, embedding.NewKeywordProjector(embedding.KeywordDimension), memory.DefaultOptions(), nil)
	clk := clock.New(start)

	pl, err := pipeline.New(pipeline.Deps{
		Store:      st,
		Catalog:    cat,
		Text:       text,
		Generators: gen,
		Memory:     mem,
		Sessions:   session.NewManager(st, 20, 20, nil),
		Clock:      clk,
		Tuning:     config.DefaultTuning(),
		Seed:       7,
	})
	require.NoError(t, err)

	srv := New(Deps{Pipeline: pl, Store: st, Memory: mem, Oracle: worldstate.New(start, nil), Clock: clk})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createHero(t *testing.T, ts *httptest.Server) int64 {
	t.Helper()
	resp := post(t, ts.URL+"/player/create-full", characterRequest{
		Name:         "Lin Mo",
		Appearance:   "magro",
		Constitution: "Mortal",
		Origin:       "Initial Village",
		Answers:      []string{"Acordo sozinho numa estrada de terra.", "", ""},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	c := decodeBody[pipeline.Creation](t, resp)
	require.NotZero(t, c.Player.ID)
	require.NotEmpty(t, c.Feedback.FirstScene)
	return c.Player.ID
}

func TestCreateAndPlay(t *testing.T) {
	ts := newTestServer(t)
	id := createHero(t, ts)

	resp := post(t, ts.URL+"/game/turn", turnRequest{PlayerID: id, Input: "olhar ao redor"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[pipeline.TurnResult](t, resp)
	require.Equal(t, 1, res.Turn)
	require.Equal(t, id, res.PlayerID)
	require.NotEmpty(t, res.Narration)

	resp = get(t, fmt.Sprintf("%s/game/log/%d?limit=10", ts.URL, id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decodeBody[[]*models.GameLog](t, resp)
	require.Len(t, logs, 2)
	require.Equal(t, 0, logs[0].Turn)
	require.Equal(t, 1, logs[1].Turn)

	resp = get(t, fmt.Sprintf("%s/player/%d/inventory", ts.URL, id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inv := decodeBody[map[string]any](t, resp)
	require.Contains(t, inv, "gold")

	resp = get(t, ts.URL+"/player/list/all")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decodeBody[[]*models.Player](t, resp), 1)

	resp = post(t, ts.URL+"/player/create-full", characterRequest{Name: "Lin Mo", Origin: "Initial Village"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		resp   func() *http.Response
		status int
	}{
		{"unknown player", func() *http.Response { return get(t, ts.URL+"/player/999") }, http.StatusNotFound},
		{"bad player id", func() *http.Response { return get(t, ts.URL+"/player/abc") }, http.StatusBadRequest},
		{"turn for nobody", func() *http.Response {
			return post(t, ts.URL+"/game/turn", turnRequest{PlayerID: 999, Input: "olhar"})
		}, http.StatusNotFound},
		{"empty input", func() *http.Response {
			return post(t, ts.URL+"/game/turn", turnRequest{PlayerID: 1})
		}, http.StatusBadRequest},
		{"malformed body", func() *http.Response {
			resp, err := http.Post(ts.URL+"/game/turn", "application/json", strings.NewReader("{"))
			require.NoError(t, err)
			t.Cleanup(func() { resp.Body.Close() })
			return resp
		}, http.StatusBadRequest},
		{"character without origin", func() *http.Response {
			return post(t, ts.URL+"/player/create-full", characterRequest{Name: "Sem Origem"})
		}, http.StatusBadRequest},
		{"missing quest", func() *http.Response {
			return post(t, ts.URL+"/quest/complete", questRequest{PlayerID: 1, QuestID: 5})
		}, http.StatusNotFound},
		{"wrong method", func() *http.Response { return get(t, ts.URL+"/game/turn") }, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp()
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestWorldEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts.URL+"/world/time")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tm := decodeBody[map[string]any](t, resp)
	require.Equal(t, float64(0), tm["turn"])
	require.Contains(t, tm, "moon_phase")

	for _, path := range []string{"/health", "/world/factions", "/world/economy", "/world/events", "/locations/all", "/npc/list/all"} {
		require.Equal(t, http.StatusOK, get(t, ts.URL+path).StatusCode, path)
	}
	require.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/economy/price/Seda%20Celestial").StatusCode)
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestTurnStream(t *testing.T) {
	ts := newTestServer(t)
	id := createHero(t, ts)

	resp := post(t, ts.URL+"/game/turn/stream", turnRequest{PlayerID: id, Input: "olhar ao redor"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp)
	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, eventMetadata, events[0].name)
	require.Equal(t, eventDone, events[len(events)-1].name)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &meta))
	require.Equal(t, "", meta["scene_description"])
	require.Equal(t, float64(1), meta["turn_number"])

	var narration strings.Builder
	for _, e := range events[1 : len(events)-1] {
		require.Equal(t, eventChunk, e.name)
		var c map[string]string
		require.NoError(t, json.Unmarshal([]byte(e.data), &c))
		narration.WriteString(c["text"])
	}
	require.True(t, strings.HasPrefix(narration.String(), "📍 "))

	resp = post(t, ts.URL+"/game/turn/stream", turnRequest{PlayerID: 999, Input: "olhar"})
	events = readSSE(t, resp)
	require.Len(t, events, 1)
	require.Equal(t, eventError, events[0].name)
	require.Contains(t, events[0].data, `"status":404`)
}

func TestTurnSocket(t *testing.T) {
	ts := newTestServer(t)
	id := createHero(t, ts)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/turn/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(turnRequest{PlayerID: id, Input: "olhar ao redor"}))
	var seen []string
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&f))
		seen = append(seen, f.Event)
		if f.Event == eventDone {
			var done map[string]any
			require.NoError(t, json.Unmarshal(f.Data, &done))
			require.Equal(t, float64(1), done["turn_number"])
			break
		}
	}
	require.Equal(t, eventMetadata, seen[0])
	require.Contains(t, seen, eventChunk)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var f socketFrame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, eventError, f.Event)
}

func TestChunks(t *testing.T) {
	text := "📍 01/01/1000 | Manhã | Vila\n\nA névoa  sobe devagar sobre os telhados de palha."
	for _, n := range []int{0, 1, 3, 6, 100} {
		got := chunks(text, n)
		require.Equal(t, text, strings.Join(got, ""), "n=%d", n)
	}
	require.Len(t, chunks("um dois três quatro", 2), 2)
	require.Nil(t, chunks("", 3))
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/x?limit=500&bad=x&neg=-3", nil)
	require.Equal(t, 100, queryInt(r, "limit", 20, 100))
	require.Equal(t, 20, queryInt(r, "bad", 20, 100))
	require.Equal(t, 20, queryInt(r, "neg", 20, 100))
	require.Equal(t, 20, queryInt(r, "missing", 20, 100))
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatlanes/threatlanes-server-go/internal/bot"
	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"github.com/threatlanes/threatlanes-server-go/internal/repository"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	*Server
	engine *game.Engine
	router *gin.Engine
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	lib, err := content.Default()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger, lib, game.DefaultRules())

	cfg := config.ServerConfig{HTTP: config.HTTPConfig{Mode: gin.TestMode}}
	base := []Option{WithPlanner(planner.New(logger), planner.Constraints{MaxDepth: 2, MaxBranches: 20}, time.Second)}
	s := New(logger, cfg, engine, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return &testServer{Server: s, engine: engine, router: s.Router()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func twoHumans(id string) CreateGameRequest {
	return CreateGameRequest{
		GameID: id,
		Seed:   9,
		Players: []SeatRequest{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "Bob", Stance: "BALANCED"},
		},
	}
}

func TestCreateGameAndGetState(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/games", twoHumans("g1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		GameID string         `json:"game_id"`
		State  game.StateView `json:"state"`
	}](t, w)
	assert.Equal(t, "g1", created.GameID)
	assert.Equal(t, "alice", created.State.ActivePlayer)
	assert.NotEmpty(t, created.State.Checksum)

	w = ts.do(t, http.MethodGet, "/games/g1/state?viewer=bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[game.StateView](t, w)
	assert.Equal(t, "bob", view.Viewer)
	assert.Equal(t, game.PhasePlayerTurn, view.Phase)

	w = ts.do(t, http.MethodGet, "/games", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "g1")

	// same id again
	w = ts.do(t, http.MethodPost, "/games", twoHumans("g1"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateGameValidation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		req  CreateGameRequest
	}{
		{"one player", CreateGameRequest{Players: []SeatRequest{{ID: "a"}}}},
		{"duplicate ids", CreateGameRequest{Players: []SeatRequest{{ID: "a"}, {ID: "a"}}}},
		{"bad stance", CreateGameRequest{Players: []SeatRequest{{ID: "a", Stance: "SIDEWAYS"}, {ID: "b"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/games", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := ts.do(t, http.MethodPost, "/games", CreateGameRequest{Players: []SeatRequest{{ID: "a"}, {ID: "b"}}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decode[map[string]any](t, w)["game_id"])
}

func TestPostAction(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", twoHumans("g")).Code)

	w := ts.do(t, http.MethodPost, "/games/g/actions", actionRequest{PlayerID: "bob", Type: game.ActionEndTurn})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_your_turn", decode[map[string]any](t, w)["kind"])

	w = ts.do(t, http.MethodPost, "/games/g/actions", actionRequest{PlayerID: "alice", Type: "dance"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/games/g/actions", actionRequest{PlayerID: "alice", Type: game.ActionEndTurn})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[game.StateView](t, w)
	assert.Equal(t, "bob", view.ActivePlayer)

	w = ts.do(t, http.MethodPost, "/games/missing/actions", actionRequest{PlayerID: "alice", Type: game.ActionEndTurn})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/games/g/actions", map[string]any{"type": "end_turn"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewDoesNotChangeMatch(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", twoHumans("g")).Code)
	before := decode[game.StateView](t, ts.do(t, http.MethodGet, "/games/g/state", nil)).Checksum

	w := ts.do(t, http.MethodPost, "/games/g/preview", previewRequest{PlayerID: "alice", Payload: game.ActionPayload{Lane: 0}})
	if w.Code == http.StatusOK {
		preview := decode[game.FightPreview](t, w)
		assert.NotNil(t, preview.AdjustedCost)
	} else {
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	}

	after := decode[game.StateView](t, ts.do(t, http.MethodGet, "/games/g/state", nil)).Checksum
	assert.Equal(t, before, after)
}

func TestPlanEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", twoHumans("g")).Code)
	before := decode[game.StateView](t, ts.do(t, http.MethodGet, "/games/g/state", nil)).Checksum

	w := ts.do(t, http.MethodPost, "/games/g/plan", planRequest{PlayerID: "alice", MaxDepth: 2, MaxBranches: 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[planner.Result](t, w)
	assert.NotEmpty(t, res.Actions)
	assert.LessOrEqual(t, len(res.Leaves), 10)

	after := decode[game.StateView](t, ts.do(t, http.MethodGet, "/games/g/state", nil)).Checksum
	assert.Equal(t, before, after)

	w = ts.do(t, http.MethodPost, "/games/g/plan", planRequest{PlayerID: "bob"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/games/g/plan", planRequest{PlayerID: "alice", MaxDepth: 50})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStealPreferenceEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", twoHumans("g")).Code)

	w := ts.do(t, http.MethodPut, "/games/g/steal-preference", map[string]any{
		"player_id":  "alice",
		"preference": map[string]int{"GREEN": 2},
	})
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPut, "/games/g/steal-preference", map[string]any{
		"player_id":  "alice",
		"preference": map[string]int{"PURPLE": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForceEndAndResults(t *testing.T) {
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	ts := newTestServer(t, WithResults(store))
	ts.engine.SetResultStore(store)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", twoHumans("g")).Code)

	w := ts.do(t, http.MethodPost, "/games/g/end", map[string]string{"reason": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[game.StateView](t, w)
	assert.Equal(t, game.PhaseGameOver, view.Phase)
	assert.Equal(t, "admin", view.EndReason)

	w = ts.do(t, http.MethodPost, "/games/g/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/results/g", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[game.MatchResult](t, w)
	assert.Equal(t, "admin", res.Reason)

	w = ts.do(t, http.MethodGet, "/results?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Results []game.MatchResult `json:"results"`
	}](t, w).Results, 1)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/results/nope", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/results?limit=x", nil).Code)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/games/g", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/games/g", nil).Code)
}

func TestBotsAnswerHumanActions(t *testing.T) {
	ts := newTestServer(t)
	driver := bot.NewDriver(zap.NewNop(), ts.engine, planner.New(nil), planner.Constraints{MaxDepth: 1, MaxBranches: 10})
	WithBots(driver, 10*time.Second)(ts.Server)

	req := CreateGameRequest{GameID: "g", Seed: 2, Players: []SeatRequest{{ID: "human"}, {ID: "bot", IsBot: true}}}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", req).Code)

	w := ts.do(t, http.MethodPost, "/games/g/actions", actionRequest{PlayerID: "human", Type: game.ActionEndTurn})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the bot takes its turn in the background and hands control back
	require.Eventually(t, func() bool {
		var view game.StateView
		w := ts.do(t, http.MethodGet, "/games/g/state", nil)
		if json.Unmarshal(w.Body.Bytes(), &view) != nil {
			return false
		}
		return view.ActivePlayer == "human" && view.Round > 1 || view.Phase == game.PhaseGameOver
	}, 10*time.Second, 20*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

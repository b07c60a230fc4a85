package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"go.uber.org/zap/zaptest"
)

type memoryResults struct {
	mu      sync.Mutex
	results []MatchResult
	err     error
}

func (m *memoryResults) SaveResult(_ context.Context, r MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.results = append(m.results, r)
	return nil
}

func (m *memoryResults) saved() []MatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MatchResult(nil), m.results...)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(zaptest.NewLogger(t), testLibrary(t), DefaultRules())
}

func startTestGame(t *testing.T, e *Engine, gameID string, ids ...string) {
	t.Helper()
	if len(ids) == 0 {
		ids = []string{"alice", "bob"}
	}
	require.NoError(t, e.StartGame(gameID, testSeats(ids...), testSeed))
}

func checksumOf(t *testing.T, e *Engine, gameID string) string {
	t.Helper()
	var sum string
	require.NoError(t, e.WithState(gameID, func(s *GameState) error {
		sum = s.Checksum()
		return nil
	}))
	return sum
}

func TestEngineStartGame(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1")

	assert.ElementsMatch(t, []string{"g1"}, e.Games())
	err := e.StartGame("g1", testSeats("alice", "bob"), 1)
	assert.Error(t, err)

	err = e.StartGame("g2", testSeats("alice"), 1)
	assert.Error(t, err)
	assert.ElementsMatch(t, []string{"g1"}, e.Games())
}

func TestEngineUnknownGame(t *testing.T) {
	e := newTestEngine(t)
	err := e.PlayerAction("nope", "alice", Action{Type: ActionEndTurn})
	assert.ErrorIs(t, err, ErrGameNotFound)
	_, err = e.GetRedactedState("nope", "")
	assert.ErrorIs(t, err, ErrGameNotFound)
	assert.ErrorIs(t, e.EndGame("nope"), ErrGameNotFound)
}

func TestEngineRejectedActionRollsBack(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1")
	before := checksumOf(t, e, "g1")

	err := e.PlayerAction("g1", "bob", Action{Type: ActionEndTurn})
	assert.ErrorIs(t, err, ErrNotYourTurn)
	err = e.PlayerAction("g1", "alice", Action{Type: ActionBuyUpgrade, Payload: ActionPayload{CardID: "missing"}})
	assert.ErrorIs(t, err, ErrInvalidAction)

	assert.Equal(t, before, checksumOf(t, e, "g1"))
	r, err := e.Replay("g1")
	require.NoError(t, err)
	assert.Zero(t, r.Size())
}

func TestEngineNotifiesActions(t *testing.T) {
	e := newTestEngine(t)
	got := make(chan GameNotification, 16)
	e.SetNotificationHandler(func(n GameNotification) { got <- n })
	startTestGame(t, e, "g1")

	require.NoError(t, e.PlayerAction("g1", "alice", Action{Type: ActionEndTurn}))
	require.NoError(t, e.PlayerAction("g1", "bob", Action{Type: ActionEndTurn}))

	seen := map[string]int{}
	deadline := time.After(2 * time.Second)
	for seen[NotifyPlayerAction] < 2 || seen[NotifyGameStateChange] < 1 {
		select {
		case n := <-got:
			assert.Equal(t, "g1", n.GameID)
			seen[n.Type]++
		case <-deadline:
			t.Fatalf("missing notifications, saw %v", seen)
		}
	}
}

func TestEnginePreviewDoesNotMutate(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1")
	before := checksumOf(t, e, "g1")

	preview, err := e.PreviewFight("g1", "alice", ActionPayload{Lane: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, preview.BaseCost)
	assert.Equal(t, preview.BaseCost, preview.AdjustedCost)
	assert.Equal(t, before, checksumOf(t, e, "g1"))

	_, err = e.PreviewFight("g1", "alice", ActionPayload{Lane: 9})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEngineRedactsOtherPlayers(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1")
	require.NoError(t, e.SetStealPreference("g1", "alice", map[cards.ResourceType]int{cards.Green: 2}))
	assert.ErrorIs(t,
		e.SetStealPreference("g1", "alice", map[cards.ResourceType]int{"PURPLE": 1}),
		ErrInvalidPayload)

	own, err := e.GetRedactedState("g1", "alice")
	require.NoError(t, err)
	other, err := e.GetRedactedState("g1", "bob")
	require.NoError(t, err)

	prefOf := func(v *StateView, id string) map[cards.ResourceType]int {
		for _, p := range v.Players {
			if p.ID == id {
				return p.StealPreference
			}
		}
		t.Fatalf("player %s missing from view", id)
		return nil
	}
	assert.Equal(t, map[cards.ResourceType]int{cards.Green: 2}, prefOf(own, "alice"))
	assert.Nil(t, prefOf(other, "alice"))
	assert.Nil(t, own.Scores)

	_, err = e.GetRedactedState("g1", "mallory")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestEngineForceEndPersistsResult(t *testing.T) {
	e := newTestEngine(t)
	store := &memoryResults{}
	e.SetResultStore(store)
	got := make(chan GameNotification, 16)
	e.SetNotificationHandler(func(n GameNotification) { got <- n })
	startTestGame(t, e, "g1")

	require.NoError(t, e.WithState("g1", func(s *GameState) error {
		s.Players["bob"].VP = 3
		return nil
	}))
	require.NoError(t, e.ForceEnd("g1", ""))

	results := store.saved()
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, "g1", res.GameID)
	assert.Equal(t, "bob", res.WinnerID)
	assert.Equal(t, EndForced, res.Reason)
	require.Len(t, res.Players, 2)
	assert.Equal(t, "bob", res.Players[0].PlayerID)
	assert.Equal(t, 1, res.Players[0].Rank)

	err := e.ForceEnd("g1", "again")
	assert.ErrorIs(t, err, ErrGameOver)
	assert.Len(t, store.saved(), 1)

	err = e.PlayerAction("g1", "alice", Action{Type: ActionEndTurn})
	assert.ErrorIs(t, err, ErrGameOver)

	view, err := e.GetRedactedState("g1", "")
	require.NoError(t, err)
	assert.Equal(t, PhaseGameOver, view.Phase)
	assert.Contains(t, view.Scores, "alice")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-got:
			if n.Type == NotifyGameOver {
				assert.Equal(t, "bob", n.Data["winner"])
				return
			}
		case <-deadline:
			t.Fatal("no GAME_OVER notification")
		}
	}
}

func TestEngineStoreFailureDoesNotFailAction(t *testing.T) {
	e := newTestEngine(t)
	e.SetResultStore(&memoryResults{err: errors.New("disk full")})
	startTestGame(t, e, "g1")

	require.NoError(t, e.PlayerAction("g1", "alice", Action{Type: ActionSurrender}))
	view, err := e.GetRedactedState("g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", view.WinnerID)
	assert.Equal(t, EndLastPlayerStanding, view.EndReason)
}

func TestEngineReplayReproducesMatch(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1", "alice", "bob", "carol")

	actions := []struct {
		player string
		action Action
	}{
		{"alice", Action{Type: ActionPickToken, Payload: ActionPayload{Token: cards.TokenAttack}}},
		{"alice", Action{Type: ActionStanceStep, Payload: ActionPayload{Direction: 1}}},
		{"alice", Action{Type: ActionEndTurn}},
		{"bob", Action{Type: ActionFight, Payload: ActionPayload{Lane: 1}}},
		{"bob", Action{Type: ActionEndTurn}},
		{"carol", Action{Type: ActionExtendSlot, Payload: ActionPayload{SlotType: cards.KindUpgrade}}},
		{"carol", Action{Type: ActionEndTurn}},
	}
	applied := 0
	for _, step := range actions {
		if err := e.PlayerAction("g1", step.player, step.action); err == nil {
			applied++
		}
	}
	require.NoError(t, e.ForceEnd("g1", "test"))
	want := checksumOf(t, e, "g1")

	r, err := e.Replay("g1")
	require.NoError(t, err)
	assert.Equal(t, applied+1, r.Size())

	final, err := r.Run(testLibrary(t))
	require.NoError(t, err)
	assert.Equal(t, want, final.Checksum())

	r.Start()
	first, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, "alice", first.PlayerID)
}

func TestEngineReplayIncludesStealPreference(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.StartGame("g1", testSeats("alice", "bob"), 4))

	before := checksumOf(t, e, "g1")
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, e.SetStealPreference("g1", id, map[cards.ResourceType]int{cards.Green: 2}))
	}
	assert.NotEqual(t, before, checksumOf(t, e, "g1"))
	// clearing is recorded too
	require.NoError(t, e.SetStealPreference("g1", "bob", nil))
	require.NoError(t, e.SetStealPreference("g1", "bob", map[cards.ResourceType]int{cards.Red: 1, cards.Green: 1}))

	for range 30 {
		var active string
		require.NoError(t, e.WithState("g1", func(s *GameState) error {
			if !s.Finished() {
				active = s.ActivePlayerID()
			}
			return nil
		}))
		if active == "" {
			break
		}
		require.NoError(t, e.PlayerAction("g1", active, Action{Type: ActionEndTurn}))
	}
	want := checksumOf(t, e, "g1")

	r, err := e.Replay("g1")
	require.NoError(t, err)
	final, err := r.Run(testLibrary(t))
	require.NoError(t, err)
	assert.Equal(t, want, final.Checksum())
	assert.Equal(t, map[cards.ResourceType]int{cards.Green: 2}, final.Players["alice"].StealPreference)
	assert.Equal(t, map[cards.ResourceType]int{cards.Red: 1, cards.Green: 1}, final.Players["bob"].StealPreference)
}

func TestStealPreferenceRollsBack(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	alice.StealPreference[cards.Red] = 1
	before := h.state.Checksum()

	cp := h.j.Checkpoint()
	require.NoError(t, h.state.SetStealPreference(h.j, "alice", map[cards.ResourceType]int{cards.Blue: 3}))
	assert.Equal(t, map[cards.ResourceType]int{cards.Blue: 3}, alice.StealPreference)
	require.NoError(t, h.j.Rollback(cp))
	assert.Equal(t, map[cards.ResourceType]int{cards.Red: 1}, alice.StealPreference)
	assert.Equal(t, before, h.state.Checksum())

	assert.ErrorIs(t, h.state.SetStealPreference(h.j, "alice", map[cards.ResourceType]int{cards.Red: -1}), ErrInvalidPayload)
	assert.ErrorIs(t, h.state.SetStealPreference(h.j, "carol", nil), ErrPlayerNotFound)
}

func TestEngineEndGameForgetsMatch(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1")
	require.NoError(t, e.EndGame("g1"))
	assert.Empty(t, e.Games())
	_, err := e.Replay("g1")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestEngineConcurrentActions(t *testing.T) {
	e := newTestEngine(t)
	startTestGame(t, e, "g1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 10; k++ {
				_ = e.PlayerAction("g1", "alice", Action{Type: ActionPickToken, Payload: ActionPayload{Token: cards.TokenMass}})
				_, _ = e.GetRedactedState("g1", "bob")
			}
		}()
	}
	wg.Wait()

	require.NoError(t, e.WithState("g1", func(s *GameState) error {
		assert.Equal(t, 1, s.Players["alice"].Tokens[cards.TokenMass])
		return CheckInvariants(s)
	}))
}

package game

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

const testSeed = 7

// testHarness drives a GameState directly, the way the engine does, and
// offers shortcuts for arranging boards.
type testHarness struct {
	t     *testing.T
	state *GameState
	j     *journal.Journal
}

func testLibrary(t *testing.T) *content.Library {
	t.Helper()
	lib, err := content.Default()
	require.NoError(t, err)
	return lib
}

func testSeats(ids ...string) []PlayerSeat {
	seats := make([]PlayerSeat, len(ids))
	for i, id := range ids {
		seats[i] = PlayerSeat{ID: id, Name: id}
	}
	return seats
}

func newStartedState(t *testing.T, seed uint64, ids ...string) *GameState {
	t.Helper()
	s, err := NewGameState("game-1", testSeats(ids...), testLibrary(t), DefaultRules(), seed)
	require.NoError(t, err)
	require.NoError(t, s.Start(nil))
	return s
}

func newHarness(t *testing.T, ids ...string) *testHarness {
	t.Helper()
	if len(ids) == 0 {
		ids = []string{"alice", "bob"}
	}
	return &testHarness{t: t, state: newStartedState(t, testSeed, ids...), j: journal.New()}
}

func (h *testHarness) player(id string) *PlayerBoard {
	h.t.Helper()
	p, ok := h.state.Players[id]
	require.True(h.t, ok, "unknown player %s", id)
	return p
}

// act applies a command and rolls back on error, like Engine.PlayerAction.
func (h *testHarness) act(playerID string, a Action) error {
	cp := h.j.Checkpoint()
	if err := Apply(h.state, h.j, playerID, a); err != nil {
		require.NoError(h.t, h.j.Rollback(cp))
		return err
	}
	h.j.Commit()
	require.NoError(h.t, CheckInvariants(h.state))
	return nil
}

func (h *testHarness) mustAct(playerID string, a Action) {
	h.t.Helper()
	require.NoError(h.t, h.act(playerID, a))
}

// turnOf ends turns until playerID is the active player.
func (h *testHarness) turnOf(playerID string) {
	h.t.Helper()
	for i := 0; h.state.ActivePlayerID() != playerID; i++ {
		require.Less(h.t, i, 20, "never reached %s's turn", playerID)
		require.False(h.t, h.state.Finished())
		h.mustAct(h.state.ActivePlayerID(), Action{Type: ActionEndTurn})
	}
}

// finishRound ends every remaining turn of the current round.
func (h *testHarness) finishRound() {
	h.t.Helper()
	round := h.state.Round
	for i := 0; h.state.Round == round && !h.state.Finished(); i++ {
		require.Less(h.t, i, 20)
		h.mustAct(h.state.ActivePlayerID(), Action{Type: ActionEndTurn})
	}
}

// clearLanes empties every lane.
func (h *testHarness) clearLanes() {
	for _, lane := range h.state.Lanes {
		lane.Slots = [3]*ThreatInstance{}
		lane.Enraged = false
	}
}

func (h *testHarness) clearDecks() {
	h.state.DayDeck = nil
	h.state.NightDeck = nil
}

func (h *testHarness) placeThreat(lane int, pos Position, card *cards.ThreatCard) *ThreatInstance {
	t := h.state.spawn(nil, card, pos)
	h.state.Lanes[lane].Slots[pos] = t
	return t
}

func (h *testHarness) setResources(id string, red, blue, green int) {
	p := h.player(id)
	p.Resources[cards.Red] = red
	p.Resources[cards.Blue] = blue
	p.Resources[cards.Green] = green
}

func threatCard(id string, tt cards.ThreatType, cost cards.Cost) *cards.ThreatCard {
	return &cards.ThreatCard{ID: id, Name: id, Type: tt, Cost: cost, VP: 1, Era: cards.EraDay}
}

func marketCard(t *testing.T, id string, kind cards.CardKind, cost cards.Cost, tags ...string) *cards.MarketCard {
	t.Helper()
	effects, err := cards.ParseEffects(tags)
	require.NoError(t, err)
	return &cards.MarketCard{ID: id, Name: id, Kind: kind, Cost: cost, Tags: tags, Effects: effects}
}

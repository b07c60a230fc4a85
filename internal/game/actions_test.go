package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

func pick(tok cards.TokenType) Action {
	return Action{Type: ActionPickToken, Payload: ActionPayload{Token: tok}}
}

// nextTurnOf ends the current turn and plays on until playerID is up again.
func (h *testHarness) nextTurnOf(playerID string) {
	h.t.Helper()
	h.mustAct(h.state.ActivePlayerID(), Action{Type: ActionEndTurn})
	h.turnOf(playerID)
}

func TestPickTokenStopsAtCap(t *testing.T) {
	h := newHarness(t)

	for i := 1; i <= 5; i++ {
		h.turnOf("alice")
		h.mustAct("alice", pick(cards.TokenAttack))
		assert.Equal(t, i, h.player("alice").Tokens[cards.TokenAttack])
		h.nextTurnOf("alice")
	}

	before := h.state.Checksum()
	err := h.act("alice", pick(cards.TokenAttack))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAction))
	assert.True(t, errors.Is(err, ErrCapReached))
	assert.Equal(t, 5, h.player("alice").Tokens[cards.TokenAttack])
	assert.Equal(t, before, h.state.Checksum())
}

func TestPickTokenRejectsBossAndUnknownTokens(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.act("alice", pick(cards.TokenBoss)), ErrInvalidPayload)
	assert.ErrorIs(t, h.act("alice", pick("SHINY")), ErrInvalidPayload)
	assert.False(t, h.player("alice").ActionUsed)
}

func TestFightSpendsAttackToken(t *testing.T) {
	h := newHarness(t)
	threat := h.placeThreat(0, Front, threatCard("brute", cards.Feral, cards.Cost{cards.Red: 3}))
	alice := h.player("alice")
	alice.Tokens[cards.TokenAttack] = 1
	h.setResources("alice", 3, 3, 3)

	h.mustAct("alice", Action{Type: ActionFight, Payload: ActionPayload{ThreatID: threat.ID, AttackTokens: 1}})

	assert.Equal(t, map[cards.ResourceType]int{cards.Red: 2, cards.Blue: 3, cards.Green: 3}, alice.Resources)
	assert.Equal(t, 0, alice.Tokens[cards.TokenAttack])
	assert.Equal(t, 1, alice.VP)
	assert.Equal(t, 1, alice.ThreatsDefeated)
	assert.True(t, alice.ActionUsed)
	assert.Nil(t, h.state.Lanes[0].Slots[Front])
}

func TestUnaffordableBuyLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	fresh := newStartedState(t, testSeed, "alice", "bob")
	h.setResources("alice", 0, 0, 0)
	for _, res := range cards.Resources {
		fresh.Players["alice"].Resources[res] = 0
	}

	card := h.state.Market.Upgrades.Row[0]
	err := h.act("alice", Action{Type: ActionBuyUpgrade, Payload: ActionPayload{CardID: card.ID}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.ErrorIs(t, err, ErrInsufficient)

	assert.Equal(t, fresh.Checksum(), h.state.Checksum())
	assert.Equal(t, fresh, h.state)
	assert.Equal(t, 0, h.j.Len())
}

func TestActionsRequireTurnAndKnownPlayer(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.act("bob", pick(cards.TokenWild)), ErrNotYourTurn)
	assert.ErrorIs(t, h.act("carol", pick(cards.TokenWild)), ErrPlayerNotFound)
	assert.ErrorIs(t, h.act("alice", Action{Type: "dance"}), ErrUnknownAction)
}

func TestOneMainActionPerTurn(t *testing.T) {
	h := newHarness(t)
	h.mustAct("alice", pick(cards.TokenWild))
	err := h.act("alice", Action{Type: ActionFight, Payload: ActionPayload{Lane: 0}})
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	h.nextTurnOf("alice")
	assert.False(t, h.player("alice").ActionUsed)
	h.mustAct("alice", pick(cards.TokenWild))
}

func TestBuyRespectsSlotsAndRefillsRow(t *testing.T) {
	h := newHarness(t)
	h.setResources("alice", 20, 20, 20)
	row := h.state.Market.Upgrades

	first := row.Row[0]
	h.mustAct("alice", Action{Type: ActionBuyUpgrade, Payload: ActionPayload{CardID: first.ID}})
	alice := h.player("alice")
	require.Len(t, alice.Upgrades, 1)
	assert.Equal(t, first, alice.Upgrades[0])
	assert.Len(t, row.Row, h.state.Rules.MarketRowSize)
	assert.NotContains(t, row.Row, first)

	err := h.act("alice", Action{Type: ActionBuyUpgrade, Payload: ActionPayload{CardID: row.Row[0].ID}})
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	h.nextTurnOf("alice")
	h.setResources("alice", 20, 20, 20)
	err = h.act("alice", Action{Type: ActionBuyUpgrade, Payload: ActionPayload{CardID: row.Row[0].ID}})
	assert.ErrorIs(t, err, ErrSlotFull)

	err = h.act("alice", Action{Type: ActionBuyWeapon, Payload: ActionPayload{CardID: "no-such-card"}})
	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestExtendSlot(t *testing.T) {
	h := newHarness(t)
	h.setResources("alice", 0, 2, 0)
	h.mustAct("alice", Action{Type: ActionExtendSlot, Payload: ActionPayload{SlotType: cards.KindUpgrade}})
	alice := h.player("alice")
	assert.Equal(t, 2, alice.UpgradeSlots)
	assert.Equal(t, 0, alice.Resources[cards.Blue])

	assert.ErrorIs(t, h.act("alice", Action{Type: ActionExtendSlot, Payload: ActionPayload{SlotType: cards.KindWeapon}}), ErrAlreadyUsed)

	h.nextTurnOf("alice")
	alice.WeaponSlots = h.state.Rules.MaxSlots
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionExtendSlot, Payload: ActionPayload{SlotType: cards.KindWeapon}}), ErrCapReached)
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionExtendSlot, Payload: ActionPayload{SlotType: "ARMOR"}}), ErrInvalidPayload)
}

func TestStanceChangesOncePerTurn(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	require.Equal(t, cards.Balanced, alice.Stance)

	h.mustAct("alice", Action{Type: ActionStanceStep, Payload: ActionPayload{Direction: 1}})
	assert.Equal(t, cards.Aggressive, alice.Stance)
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionStanceStep, Payload: ActionPayload{Direction: -1}}), ErrAlreadyUsed)
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionRealign, Payload: ActionPayload{Stance: cards.Hunkered}}), ErrAlreadyUsed)

	h.nextTurnOf("alice")
	h.setResources("alice", 1, 1, 1)
	h.mustAct("alice", Action{Type: ActionRealign, Payload: ActionPayload{Stance: cards.Hunkered}})
	assert.Equal(t, cards.Hunkered, alice.Stance)
	assert.Equal(t, 0, alice.TotalResources())
}

func TestStanceStepWrapsAround(t *testing.T) {
	h := newHarness(t)
	h.player("alice").Stance = cards.Aggressive
	h.player("alice").TurnInitialStance = cards.Aggressive
	h.mustAct("alice", Action{Type: ActionStanceStep, Payload: ActionPayload{Direction: -1}})
	assert.Equal(t, cards.Balanced, h.player("alice").Stance)
	assert.ErrorIs(t, h.act("bob", Action{Type: ActionStanceStep, Payload: ActionPayload{Direction: 2}}), ErrNotYourTurn)
}

func TestConvertNeedsToken(t *testing.T) {
	h := newHarness(t)
	h.setResources("alice", 3, 0, 0)
	conv := Action{Type: ActionConvert, Payload: ActionPayload{From: cards.Red, To: cards.Green, Amount: 2}}
	assert.ErrorIs(t, h.act("alice", conv), ErrInsufficientTokens)

	alice := h.player("alice")
	alice.Tokens[cards.TokenConversion] = 1
	h.mustAct("alice", conv)
	assert.Equal(t, 1, alice.Resources[cards.Red])
	assert.Equal(t, 2, alice.Resources[cards.Green])
	assert.Equal(t, 0, alice.Tokens[cards.TokenConversion])

	alice.Tokens[cards.TokenConversion] = 1
	conv.Payload.Amount = 4
	assert.ErrorIs(t, h.act("alice", conv), ErrInvalidPayload)
}

func TestActivateCardOncePerTurn(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	alice.Upgrades = append(alice.Upgrades, marketCard(t, "spring", cards.KindUpgrade, nil, "active:gain:RED:2", "reduce:BLUE:1"))
	red := alice.Resources[cards.Red]

	activate := Action{Type: ActionActivateCard, Payload: ActionPayload{CardID: "spring"}}
	h.mustAct("alice", activate)
	assert.Equal(t, red+2, alice.Resources[cards.Red])
	assert.ErrorIs(t, h.act("alice", activate), ErrAlreadyUsed)

	h.nextTurnOf("alice")
	h.mustAct("alice", activate)
}

func TestConsumableWeaponBreaks(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	torch := marketCard(t, "torch", cards.KindWeapon, nil, "reduce:RED:2")
	torch.MaxUses, torch.Uses = 1, 1
	alice.Weapons = append(alice.Weapons, torch)
	h.setResources("alice", 0, 0, 0)
	threat := h.placeThreat(0, Front, threatCard("imp", cards.Feral, cards.Cost{cards.Red: 2}))

	h.mustAct("alice", Action{Type: ActionFight, Payload: ActionPayload{ThreatID: threat.ID, PlayedWeapons: []string{"torch"}}})
	assert.Empty(t, alice.Weapons)
	assert.Contains(t, h.state.Market.Weapons.Discard, torch)
	assert.Equal(t, 1, torch.Uses, "discarded weapons are restocked")
	assert.True(t, torch.Consumable())
}

func TestBrokenWeaponReturnsToMarketConsumable(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	spear := marketCard(t, "spear", cards.KindWeapon, nil, "vs_type:feral:RED:2")
	spear.MaxUses, spear.Uses = 2, 1
	alice.Weapons = append(alice.Weapons, spear)
	h.setResources("alice", 0, 0, 0)
	threat := h.placeThreat(0, Front, threatCard("imp", cards.Feral, cards.Cost{cards.Red: 2}))
	h.mustAct("alice", Action{Type: ActionFight, Payload: ActionPayload{ThreatID: threat.ID, PlayedWeapons: []string{"spear"}}})
	require.Empty(t, alice.Weapons)

	// the broken spear is all the weapon deck can reshuffle from
	weapons := h.state.Market.Weapons
	weapons.Deck = nil
	weapons.Discard = []*cards.MarketCard{spear}
	require.True(t, h.state.drawMarketCard(nil, weapons))
	require.Contains(t, weapons.Row, spear)
	assert.Empty(t, weapons.Discard)
	assert.True(t, spear.Consumable())
	assert.Equal(t, 2, spear.Uses)

	h.setResources("alice", 5, 5, 5)
	h.mustAct("alice", Action{Type: ActionBuyWeapon, Payload: ActionPayload{CardID: "spear"}})
	require.Contains(t, alice.Weapons, spear)
	assert.True(t, spear.Consumable())
	assert.Equal(t, 2, spear.Uses)
}

func TestActivationFailingMidwayRollsBack(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	alice.Upgrades = append(alice.Upgrades, marketCard(t, "relay", cards.KindUpgrade, nil, "active:gain:RED:2", "active:token:ATTACK"))
	alice.Tokens[cards.TokenAttack] = h.state.Rules.MaxTokens
	red := alice.Resources[cards.Red]
	before := h.state.Checksum()

	j := journal.New()
	cp := j.Checkpoint()
	err := Apply(h.state, j, "alice", Action{Type: ActionActivateCard, Payload: ActionPayload{CardID: "relay"}})
	require.ErrorIs(t, err, ErrCapReached)
	require.Positive(t, j.Len(), "the gain is written before the token cap is hit")
	assert.Equal(t, red+2, alice.Resources[cards.Red])

	require.NoError(t, j.Rollback(cp))
	assert.Equal(t, red, alice.Resources[cards.Red])
	assert.Equal(t, h.state.Rules.MaxTokens, alice.Tokens[cards.TokenAttack])
	assert.False(t, alice.ActiveUsed["relay"])
	assert.Equal(t, before, h.state.Checksum())
	assert.Zero(t, j.Len())
}

func TestFightNeedsTarget(t *testing.T) {
	h := newHarness(t)
	h.clearLanes()
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionFight, Payload: ActionPayload{Lane: 1}}), ErrNoTarget)
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionFight, Payload: ActionPayload{Lane: 9}}), ErrInvalidPayload)
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionFight, Payload: ActionPayload{ThreatID: "ghost"}}), ErrNoTarget)
}

func TestSurrenderEndsTwoPlayerMatch(t *testing.T) {
	h := newHarness(t)
	h.mustAct("bob", Action{Type: ActionSurrender})
	assert.Equal(t, PhaseGameOver, h.state.Phase)
	assert.Equal(t, "alice", h.state.WinnerID)
	assert.Equal(t, EndLastPlayerStanding, h.state.EndReason)
	assert.ErrorIs(t, h.act("alice", pick(cards.TokenWild)), ErrGameOver)
}

func TestDisconnectPassesTheTurn(t *testing.T) {
	h := newHarness(t, "alice", "bob", "carol")
	h.mustAct("alice", Action{Type: ActionDisconnect})
	assert.Equal(t, StatusDisconnected, h.player("alice").Status)
	assert.Equal(t, "bob", h.state.ActivePlayerID())
	assert.Equal(t, PhasePlayerTurn, h.state.Phase)
	assert.ErrorIs(t, h.act("alice", Action{Type: ActionDisconnect}), ErrInvalidPayload)

	h.finishRound()
	assert.NotContains(t, h.state.ActivePlayers(), "alice")
	assert.NotEqual(t, "alice", h.state.ActivePlayerID())
}

package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
)

func TestFightCostReductionOrder(t *testing.T) {
	h := newHarness(t)
	h.clearLanes()
	alice := h.player("alice")
	alice.Tokens[cards.TokenMass] = 1
	alice.Upgrades = []*cards.MarketCard{
		marketCard(t, "whetstone", cards.KindUpgrade, nil, "reduce:RED:1"),
		marketCard(t, "snare", cards.KindUpgrade, nil, "vs_type:feral:BLUE:1"),
	}
	wolf := h.placeThreat(0, Front, threatCard("wolf", cards.Feral, cards.Cost{cards.Red: 3, cards.Blue: 2, cards.Green: 1}))
	wolf.Weight = 1
	wolf.EnrageTokens = 1

	q := ComputeFightCost(h.state, alice, wolf, FightOptions{
		AttackTokens:   1,
		WildAllocation: map[cards.ResourceType]int{cards.Blue: 1},
	})

	assert.Equal(t, cards.Cost{cards.Red: 5, cards.Blue: 2, cards.Green: 2}, q.Base)
	assert.Equal(t, cards.Cost{cards.Red: 2, cards.Blue: 0, cards.Green: 0}, q.AdjustedCost)
	assert.Equal(t, []string{
		"MASS x1",
		"ATTACK x1",
		"WILD BLUE x1",
		"whetstone reduce:RED:1",
		"snare vs_type:feral:BLUE:1",
	}, q.AppliedEffects)
}

func TestFightCostClampsAtZero(t *testing.T) {
	h := newHarness(t)
	h.clearLanes()
	alice := h.player("alice")
	alice.Tokens[cards.TokenMass] = 3
	h.setResources("alice", 0, 0, 0)
	ox := h.placeThreat(0, Front, threatCard("ox", cards.Massive, cards.Cost{cards.Green: 2}))

	q := ComputeFightCost(h.state, alice, ox, FightOptions{AttackTokens: 2})
	for _, res := range cards.Resources {
		assert.Zero(t, q.AdjustedCost[res], res)
		assert.Zero(t, q.Remaining[res], res)
	}
	assert.True(t, q.CanAfford)
}

func TestCardMassReductionOverridesDefault(t *testing.T) {
	h := newHarness(t)
	h.clearLanes()
	alice := h.player("alice")
	alice.Tokens[cards.TokenMass] = 1
	card := threatCard("boulder", cards.Massive, cards.Cost{cards.Green: 5})
	card.MassReduction = 4
	boulder := h.placeThreat(0, Front, card)

	q := ComputeFightCost(h.state, alice, boulder, FightOptions{})
	assert.Equal(t, 1, q.AdjustedCost[cards.Green])
}

func TestEraBoundReductionOnlyAppliesInItsEra(t *testing.T) {
	h := newHarness(t)
	h.clearLanes()
	alice := h.player("alice")
	alice.Upgrades = []*cards.MarketCard{marketCard(t, "lantern", cards.KindUpgrade, nil, "reduce:BLUE:2:night")}
	imp := h.placeThreat(0, Front, threatCard("imp", cards.Cunning, cards.Cost{cards.Blue: 3}))

	q := ComputeFightCost(h.state, alice, imp, FightOptions{})
	assert.Equal(t, 3, q.AdjustedCost[cards.Blue])
	assert.Empty(t, q.AppliedEffects)

	h.state.Era = 2
	q = ComputeFightCost(h.state, alice, imp, FightOptions{})
	assert.Equal(t, 1, q.AdjustedCost[cards.Blue])
}

func TestStanceReduceFollowsStance(t *testing.T) {
	cost := cards.Cost{cards.Red: 2, cards.Blue: 2, cards.Green: 3}
	tests := []struct {
		name   string
		stance cards.Stance
		target cards.ResourceType
		want   cards.ResourceType
	}{
		{"aggressive", cards.Aggressive, "", cards.Red},
		{"tactical", cards.Tactical, cards.Green, cards.Blue},
		{"hunkered", cards.Hunkered, "", cards.Green},
		{"balanced names a target", cards.Balanced, cards.Blue, cards.Blue},
		{"balanced defaults to most expensive", cards.Balanced, "", cards.Green},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.clearLanes()
			alice := h.player("alice")
			alice.Stance = tt.stance
			alice.Upgrades = []*cards.MarketCard{marketCard(t, "focus", cards.KindUpgrade, nil, "stance_reduce:1")}
			threat := h.placeThreat(0, Mid, threatCard("x", cards.Hybrid, cost))

			q := ComputeFightCost(h.state, alice, threat, FightOptions{BalancedTarget: tt.target})
			for _, res := range cards.Resources {
				want := cost[res]
				if res == tt.want {
					want--
				}
				assert.Equal(t, want, q.AdjustedCost[res], res)
			}
		})
	}
}

func TestMostExpensiveTiesFollowCanonicalOrder(t *testing.T) {
	assert.Equal(t, cards.Red, mostExpensive(cards.Cost{cards.Red: 2, cards.Blue: 2, cards.Green: 2}))
	assert.Equal(t, cards.Blue, mostExpensive(cards.Cost{cards.Red: 1, cards.Blue: 2, cards.Green: 2}))
	assert.Equal(t, cards.Red, mostExpensive(cards.Cost{}))
}

func TestThresholdCostUsesBossTokens(t *testing.T) {
	h := newHarness(t)
	alice := h.player("alice")
	alice.Tokens[cards.TokenMass] = 2
	th := cards.Threshold{Label: "hide", Cost: cards.Cost{cards.Red: 1, cards.Blue: 4, cards.Green: 3}}

	q := ComputeThresholdCost(h.state, alice, th, FightOptions{BossTokens: 2})
	// first token hits BLUE 4, second hits GREEN 3 over BLUE 2; MASS is ignored
	assert.Equal(t, cards.Cost{cards.Red: 1, cards.Blue: 2, cards.Green: 1}, q.AdjustedCost)
	assert.Equal(t, []string{"BOSS BLUE", "BOSS GREEN"}, q.AppliedEffects)
}

func TestQuoteFightValidatesOptions(t *testing.T) {
	h := newHarness(t)
	lane := h.state.Lanes[0]
	require.NotNil(t, lane.Slots[Mid])

	_, err := h.state.QuoteFight("alice", ActionPayload{Lane: 0, AttackTokens: 1})
	assert.ErrorIs(t, err, ErrInsufficientTokens)

	_, err = h.state.QuoteFight("alice", ActionPayload{Lane: 0, BossTokens: 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = h.state.QuoteFight("alice", ActionPayload{Lane: 0, PlayedWeapons: []string{"nope"}})
	assert.ErrorIs(t, err, ErrCardNotFound)

	_, err = h.state.QuoteFight("mallory", ActionPayload{})
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	q, err := h.state.QuoteFight("alice", ActionPayload{Lane: 0})
	require.NoError(t, err)
	assert.Equal(t, ThreatBaseCost(h.state.Rules, lane.Slots[Mid]), q.AdjustedCost)
}

func TestCanAfford(t *testing.T) {
	have := map[cards.ResourceType]int{cards.Red: 2, cards.Blue: 1}
	assert.True(t, CanAfford(have, cards.Cost{cards.Red: 2}))
	assert.True(t, CanAfford(have, cards.Cost{}))
	assert.False(t, CanAfford(have, cards.Cost{cards.Green: 1}))
	assert.False(t, CanAfford(have, cards.Cost{cards.Red: 1, cards.Blue: 2}))
}

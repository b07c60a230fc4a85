package planner

import (
	"github.com/threatlanes/threatlanes-server-go/internal/game"
)

// Heuristic scores a state from one player's point of view. Higher is better.
type Heuristic func(s *game.GameState, playerID string) float64

// Weights are the coefficients of the weighted board heuristic.
type Weights struct {
	VP       float64 `mapstructure:"vp"`
	Resource float64 `mapstructure:"resource"`
	Token    float64 `mapstructure:"token"`
	Slot     float64 `mapstructure:"slot"`
	Wound    float64 `mapstructure:"wound"`
}

// DefaultWeights values a victory point at ten resources and punishes wounds
// almost as hard.
func DefaultWeights() Weights {
	return Weights{VP: 10, Resource: 1, Token: 2, Slot: 3, Wound: 8}
}

// WeightedHeuristic scores VP, held resources, held tokens and owned slots,
// minus wounds.
func WeightedHeuristic(w Weights) Heuristic {
	return func(s *game.GameState, playerID string) float64 {
		p, ok := s.Players[playerID]
		if !ok {
			return 0
		}
		tokens := 0
		for _, n := range p.Tokens {
			tokens += n
		}
		return w.VP*float64(p.VP) +
			w.Resource*float64(p.TotalResources()) +
			w.Token*float64(tokens) +
			w.Slot*float64(p.UpgradeSlots+p.WeaponSlots) -
			w.Wound*float64(p.Wounds)
	}
}

// DefaultHeuristic is WeightedHeuristic with DefaultWeights.
var DefaultHeuristic = WeightedHeuristic(DefaultWeights())

package game

import (
	"fmt"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
)

// FightOptions are the reductions a player commits to a fight.
type FightOptions struct {
	AttackTokens   int
	WildAllocation map[cards.ResourceType]int
	BossTokens     int
	PlayedWeapons  []*cards.MarketCard
	BalancedTarget cards.ResourceType
}

// FightQuote is a priced fight. Base is the cost before reductions and
// Remaining the player's resources after paying; a negative entry is a
// shortfall.
type FightQuote struct {
	Base           cards.Cost
	AdjustedCost   cards.Cost
	AppliedEffects []string
	CanAfford      bool
	Remaining      map[cards.ResourceType]int
}

// CanAfford reports whether have covers every resource of cost.
func CanAfford(have map[cards.ResourceType]int, cost cards.Cost) bool {
	for res, n := range cost {
		if have[res] < n {
			return false
		}
	}
	return true
}

// ThreatBaseCost is the card cost plus the weight and enrage surcharges.
func ThreatBaseCost(rules Rules, threat *ThreatInstance) cards.Cost {
	base := normalized(threat.Card.Cost)
	base[cards.Green] += threat.Weight
	if threat.Enraged() {
		base[cards.Red] += rules.EnrageSurcharge
	}
	return base
}

// ComputeFightCost prices a fight against a lane threat. Reductions apply in a
// fixed order: MASS tokens held, ATTACK tokens spent, WILD allocation, then
// card effects. Each resource is clamped at zero.
func ComputeFightCost(s *GameState, p *PlayerBoard, threat *ThreatInstance, opts FightOptions) FightQuote {
	return s.price(p, ThreatBaseCost(s.Rules, threat), threat.Card, opts)
}

// ComputeThresholdCost prices a boss threshold. MASS and type-bound effects do
// not apply; BOSS tokens do.
func ComputeThresholdCost(s *GameState, p *PlayerBoard, th cards.Threshold, opts FightOptions) FightQuote {
	return s.price(p, normalized(th.Cost), nil, opts)
}

func (s *GameState) price(p *PlayerBoard, base cards.Cost, card *cards.ThreatCard, opts FightOptions) FightQuote {
	cost := base.Clone()
	q := FightQuote{Base: base}
	reduce := func(res cards.ResourceType, n int, label string) {
		if n <= 0 {
			return
		}
		cost[res] = max(cost[res]-n, 0)
		q.AppliedEffects = append(q.AppliedEffects, label)
	}

	if card != nil {
		perMass := s.Rules.MassReduction
		if card.MassReduction > 0 {
			perMass = card.MassReduction
		}
		if n := p.Tokens[cards.TokenMass]; n > 0 {
			reduce(cards.Green, n*perMass, fmt.Sprintf("MASS x%d", n))
		}
	}
	if opts.AttackTokens > 0 {
		reduce(cards.Red, opts.AttackTokens*s.Rules.AttackTokenValue, fmt.Sprintf("ATTACK x%d", opts.AttackTokens))
	}
	for _, res := range cards.Resources {
		if n := opts.WildAllocation[res]; n > 0 {
			reduce(res, n, fmt.Sprintf("WILD %s x%d", res, n))
		}
	}
	if card == nil {
		for i := 0; i < opts.BossTokens; i++ {
			res := mostExpensive(cost)
			reduce(res, s.Rules.BossTokenValue, fmt.Sprintf("BOSS %s", res))
		}
	}

	sources := make([]*cards.MarketCard, 0, len(p.Upgrades)+len(opts.PlayedWeapons))
	sources = append(sources, p.Upgrades...)
	sources = append(sources, opts.PlayedWeapons...)
	era := s.CurrentEra()
	for _, src := range sources {
		for _, eff := range src.Effects {
			switch eff.Kind {
			case cards.EffectReduce:
				if eff.AppliesInEra(era) {
					reduce(eff.Resource, eff.Amount, src.Name+" "+eff.Tag)
				}
			case cards.EffectVersusType:
				if card != nil && card.Type == eff.ThreatType {
					reduce(eff.Resource, eff.Amount, src.Name+" "+eff.Tag)
				}
			case cards.EffectStanceReduce:
				res := stanceResource(p.Stance, cost, opts.BalancedTarget)
				reduce(res, eff.Amount, fmt.Sprintf("%s %s (%s)", src.Name, eff.Tag, res))
			}
		}
	}

	q.AdjustedCost = cost
	q.CanAfford = CanAfford(p.Resources, cost)
	q.Remaining = make(map[cards.ResourceType]int, len(cards.Resources))
	for _, res := range cards.Resources {
		q.Remaining[res] = p.Resources[res] - cost[res]
	}
	return q
}

// stanceResource picks the resource a stance-bound reduction lowers. A
// balanced player names a target or gets the most expensive resource.
func stanceResource(stance cards.Stance, cost cards.Cost, target cards.ResourceType) cards.ResourceType {
	switch stance {
	case cards.Aggressive:
		return cards.Red
	case cards.Tactical:
		return cards.Blue
	case cards.Hunkered:
		return cards.Green
	}
	if _, err := cards.ParseResource(string(target)); err == nil {
		return target
	}
	return mostExpensive(cost)
}

// mostExpensive returns the largest resource of cost, ties in canonical order.
func mostExpensive(cost cards.Cost) cards.ResourceType {
	best := cards.Resources[0]
	for _, res := range cards.Resources[1:] {
		if cost[res] > cost[best] {
			best = res
		}
	}
	return best
}

func normalized(c cards.Cost) cards.Cost {
	out := make(cards.Cost, len(cards.Resources))
	for _, res := range cards.Resources {
		out[res] = c[res]
	}
	return out
}

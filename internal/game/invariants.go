package game

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies the structural rules every reachable state obeys:
// no negative resources or tokens, token and slot caps, owned cards within
// slots, one occupant per lane position with a matching Position, instance
// ids unique across lanes, enrage tokens of 0 or 1, turn order naming every
// player once and an active index inside it.
func CheckInvariants(s *GameState) error {
	var errs []error
	for id, p := range s.Players {
		for res, n := range p.Resources {
			if n < 0 {
				errs = append(errs, fmt.Errorf("player %s: %s is %d", id, res, n))
			}
		}
		for tok, n := range p.Tokens {
			if n < 0 || n > s.Rules.MaxTokens {
				errs = append(errs, fmt.Errorf("player %s: %s tokens %d outside 0..%d", id, tok, n, s.Rules.MaxTokens))
			}
		}
		if p.UpgradeSlots > s.Rules.MaxSlots || p.WeaponSlots > s.Rules.MaxSlots {
			errs = append(errs, fmt.Errorf("player %s: slots %d/%d exceed %d", id, p.UpgradeSlots, p.WeaponSlots, s.Rules.MaxSlots))
		}
		if len(p.Upgrades) > p.UpgradeSlots {
			errs = append(errs, fmt.Errorf("player %s: %d upgrades in %d slots", id, len(p.Upgrades), p.UpgradeSlots))
		}
		if len(p.Weapons) > p.WeaponSlots {
			errs = append(errs, fmt.Errorf("player %s: %d weapons in %d slots", id, len(p.Weapons), p.WeaponSlots))
		}
		if p.Wounds < 0 {
			errs = append(errs, fmt.Errorf("player %s: wounds %d", id, p.Wounds))
		}
	}

	seen := make(map[string]bool)
	for _, lane := range s.Lanes {
		for pos, t := range lane.Slots {
			if t == nil {
				continue
			}
			if t.Position != Position(pos) {
				errs = append(errs, fmt.Errorf("lane %d: %s at %s records position %s", lane.Index, t.ID, Position(pos), t.Position))
			}
			if seen[t.ID] {
				errs = append(errs, fmt.Errorf("threat %s appears twice", t.ID))
			}
			seen[t.ID] = true
			if t.EnrageTokens < 0 || t.EnrageTokens > 1 {
				errs = append(errs, fmt.Errorf("threat %s: enrage tokens %d outside 0..1", t.ID, t.EnrageTokens))
			}
			if t.Weight < 0 || t.Weight > s.Rules.MaxWeight {
				errs = append(errs, fmt.Errorf("threat %s: weight %d outside 0..%d", t.ID, t.Weight, s.Rules.MaxWeight))
			}
		}
	}

	if len(s.TurnOrder) != len(s.Players) {
		errs = append(errs, fmt.Errorf("turn order has %d entries for %d players", len(s.TurnOrder), len(s.Players)))
	}
	order := make(map[string]bool, len(s.TurnOrder))
	for _, id := range s.TurnOrder {
		if order[id] {
			errs = append(errs, fmt.Errorf("player %s appears twice in turn order", id))
		}
		order[id] = true
		if _, ok := s.Players[id]; !ok {
			errs = append(errs, fmt.Errorf("turn order names unknown player %s", id))
		}
	}
	if n := len(s.TurnOrder); n > 0 && (s.ActivePlayerIndex < 0 || s.ActivePlayerIndex >= n) {
		errs = append(errs, fmt.Errorf("active index %d outside turn order of %d", s.ActivePlayerIndex, n))
	}
	return errors.Join(errs...)
}

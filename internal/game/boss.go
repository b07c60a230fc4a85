package game

import (
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

// loadBoss makes the current era's boss the fight target with every
// threshold open.
func (s *GameState) loadBoss(j *journal.Journal) {
	idx := s.Era - 1
	boss := s.Bosses[idx]
	thresholds := make([]*ThresholdState, len(boss.Thresholds))
	for i := range thresholds {
		thresholds[i] = &ThresholdState{DefeatedBy: make(map[string]bool)}
	}
	journal.Set(j, &s.BossIndex, idx)
	journal.Set(j, &s.Boss, boss)
	journal.Set(j, &s.BossThresholds, thresholds)
	journal.Set(j, &s.BossRounds, 0)
	s.logf(j, "%s appears", boss.Name)
}

// bossPending reports whether the current era's boss has not been fought yet.
func (s *GameState) bossPending() bool {
	return s.BossIndex < s.Era-1
}

// allThresholdsDefeated reports whether the loaded boss is fully cleared.
func (s *GameState) allThresholdsDefeated() bool {
	if s.Boss == nil {
		return false
	}
	for _, th := range s.BossThresholds {
		if !th.Defeated {
			return false
		}
	}
	return true
}

func (s *GameState) targetThreshold(idx int) (cards.Threshold, *ThresholdState, error) {
	if s.Boss == nil {
		return cards.Threshold{}, nil, actionErr(KindNoTarget, "no boss is present")
	}
	if idx < 0 || idx >= len(s.Boss.Thresholds) {
		return cards.Threshold{}, nil, actionErr(KindInvalidPayload, "threshold %d out of range", idx)
	}
	return s.Boss.Thresholds[idx], s.BossThresholds[idx], nil
}

func (s *GameState) fightBoss(j *journal.Journal, p *PlayerBoard, pl ActionPayload) error {
	if p.ActionUsed {
		return actionErr(KindAlreadyUsed, "action already used this turn")
	}
	th, state, err := s.targetThreshold(pl.ThresholdIndex)
	if err != nil {
		return err
	}
	if state.DefeatedBy[p.ID] {
		return actionErr(KindThresholdCleared, "%s already cleared %s", p.Name, th.Label)
	}
	if state.Defeated {
		return actionErr(KindThresholdCleared, "threshold already cleared")
	}
	opts, err := s.resolveFightOptions(p, pl, true)
	if err != nil {
		return err
	}
	quote := ComputeThresholdCost(s, p, th, opts)
	if !quote.CanAfford {
		return actionErr(KindInsufficient, "%s costs %s", th.Label, formatCost(quote.AdjustedCost))
	}

	s.pay(j, p, quote.AdjustedCost)
	s.spendFightTokens(j, p, opts)
	s.useWeapons(j, p, opts.PlayedWeapons)
	journal.MapSet(j, state.DefeatedBy, p.ID, true)
	journal.Set(j, &state.Defeated, true)
	journal.Set(j, &p.ActionUsed, true)
	s.logf(j, "%s cleared %s of %s", p.Name, th.Label, s.Boss.Name)
	for _, r := range th.Rewards {
		s.grantReward(j, p, r)
	}
	return nil
}

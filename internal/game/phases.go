package game

import (
	"fmt"
	"slices"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

// Game-over reasons.
const (
	EndLastPlayerStanding = "last_player_standing"
	EndThreatsExhausted   = "threats_exhausted"
	EndBossesDefeated     = "bosses_defeated"
	EndForced             = "forced"
)

// Start leaves SETUP and begins the first round.
func (s *GameState) Start(j *journal.Journal) error {
	if s.Phase != PhaseSetup {
		return fmt.Errorf("match %s already started", s.GameID)
	}
	return s.startRound(j)
}

func (s *GameState) startRound(j *journal.Journal) error {
	if err := s.setPhase(j, PhaseRoundStart); err != nil {
		return err
	}
	journal.Set(j, &s.Round, s.Round+1)
	journal.Set(j, &s.EraRound, s.EraRound+1)
	s.logf(j, "Round %d (%s, era round %d)", s.Round, s.CurrentEra(), s.EraRound)
	s.grantProduction(j)
	if err := s.setPhase(j, PhasePlayerTurn); err != nil {
		return err
	}
	return s.openTurns(j)
}

func (s *GameState) startBossRound(j *journal.Journal) error {
	if err := s.setPhase(j, PhaseBoss); err != nil {
		return err
	}
	journal.Set(j, &s.Round, s.Round+1)
	journal.Set(j, &s.BossRounds, s.BossRounds+1)
	s.logf(j, "Boss round %d against %s", s.BossRounds, s.Boss.Name)
	s.grantProduction(j)
	return s.openTurns(j)
}

// grantProduction pays stance production and passive upgrade production to
// every active player.
func (s *GameState) grantProduction(j *journal.Journal) {
	for _, id := range s.TurnOrder {
		p := s.Players[id]
		if !p.Active() {
			continue
		}
		for _, res := range cards.Resources {
			if n := stanceProduction[p.Stance][res]; n > 0 {
				journal.MapAdd(j, p.Resources, res, n)
			}
		}
		for _, up := range p.Upgrades {
			for _, eff := range up.EffectsOf(cards.EffectProduction) {
				journal.MapAdd(j, p.Resources, eff.Resource, eff.Amount)
			}
		}
	}
}

// openTurns clears the ended-turn set and hands the turn to the first active
// player in turn order.
func (s *GameState) openTurns(j *journal.Journal) error {
	for id := range s.EndedTurn {
		journal.MapDelete(j, s.EndedTurn, id)
	}
	for i, id := range s.TurnOrder {
		if s.Players[id].Active() {
			journal.Set(j, &s.ActivePlayerIndex, i)
			s.beginTurn(j, s.Players[id])
			return nil
		}
	}
	return s.finish(j, EndLastPlayerStanding)
}

// beginTurn resets the per-turn flags of p.
func (s *GameState) beginTurn(j *journal.Journal, p *PlayerBoard) {
	if p.ActionUsed {
		journal.Set(j, &p.ActionUsed, false)
	}
	if p.BuyUsed {
		journal.Set(j, &p.BuyUsed, false)
	}
	if p.ExtendUsed {
		journal.Set(j, &p.ExtendUsed, false)
	}
	for id := range p.ActiveUsed {
		journal.MapDelete(j, p.ActiveUsed, id)
	}
	if p.TurnInitialStance != p.Stance {
		journal.Set(j, &p.TurnInitialStance, p.Stance)
	}
}

// nextPending returns the turn-order index of the next active player who has
// not ended their turn, searching forward from the current player.
func (s *GameState) nextPending() (int, bool) {
	n := len(s.TurnOrder)
	for step := 1; step <= n; step++ {
		i := (s.ActivePlayerIndex + step) % n
		id := s.TurnOrder[i]
		if s.Players[id].Active() && !s.EndedTurn[id] {
			return i, true
		}
	}
	return 0, false
}

func (s *GameState) endTurn(j *journal.Journal, p *PlayerBoard) error {
	journal.MapSet(j, s.EndedTurn, p.ID, true)
	s.logf(j, "%s ended their turn", p.Name)
	return s.advanceTurn(j)
}

// advanceTurn passes the turn on, or closes the round when nobody is left.
func (s *GameState) advanceTurn(j *journal.Journal) error {
	if next, ok := s.nextPending(); ok {
		journal.Set(j, &s.ActivePlayerIndex, next)
		s.beginTurn(j, s.Players[s.TurnOrder[next]])
		return nil
	}
	return s.endRound(j)
}

func (s *GameState) endRound(j *journal.Journal) error {
	last := s.ActivePlayerIndex
	wasBoss := s.Phase == PhaseBoss
	if err := s.setPhase(j, PhaseRoundEnd); err != nil {
		return err
	}
	if !wasBoss {
		s.resolveLanes(j)
	}
	s.cycleMarkets(j)
	s.rotateTurnOrder(j, last)

	if len(s.ActivePlayers()) < 2 {
		return s.finish(j, EndLastPlayerStanding)
	}
	if wasBoss {
		limit := s.Rules.BossRoundLimit
		if s.allThresholdsDefeated() || limit > 0 && s.BossRounds >= limit {
			return s.advanceEra(j)
		}
		return s.startBossRound(j)
	}
	if s.bossPending() && (s.EraRound >= s.Rules.BossRound || s.boardExhausted()) {
		s.loadBoss(j)
		return s.startBossRound(j)
	}
	if s.boardExhausted() && !s.bossPending() {
		return s.finish(j, EndThreatsExhausted)
	}
	return s.startRound(j)
}

// advanceEra closes the boss fight. The night era follows the day boss; the
// match ends after the night boss.
func (s *GameState) advanceEra(j *journal.Journal) error {
	journal.Set(j, &s.BossesCleared, s.BossesCleared+1)
	s.logf(j, "%s departs", s.Boss.Name)
	journal.Set(j, &s.Boss, nil)
	journal.Set(j, &s.BossThresholds, nil)
	if s.Era >= len(s.Bosses) {
		return s.finish(j, EndBossesDefeated)
	}
	journal.Set(j, &s.Era, s.Era+1)
	journal.Set(j, &s.EraRound, 0)
	journal.Set(j, &s.BossRounds, 0)
	return s.startRound(j)
}

// boardExhausted reports whether no threat is left in any lane or deck.
func (s *GameState) boardExhausted() bool {
	if len(s.DayDeck) > 0 || len(s.NightDeck) > 0 {
		return false
	}
	for _, lane := range s.Lanes {
		if !lane.Empty() {
			return false
		}
	}
	return true
}

// cycleMarkets discards the oldest visible card of each row and draws a
// replacement.
func (s *GameState) cycleMarkets(j *journal.Journal) {
	for _, row := range []*MarketRow{s.Market.Upgrades, s.Market.Weapons} {
		if len(row.Row) > 0 {
			oldest := journal.RemoveAt(j, &row.Row, 0)
			journal.Append(j, &row.Discard, oldest)
		}
		for len(row.Row) < s.Rules.MarketRowSize {
			if !s.drawMarketCard(j, row) {
				break
			}
		}
	}
}

// rotateTurnOrder moves the player at index first to the front, keeping the
// cyclic order of everyone else.
func (s *GameState) rotateTurnOrder(j *journal.Journal, first int) {
	for i := 0; i < first; i++ {
		id := journal.RemoveAt(j, &s.TurnOrder, 0)
		journal.Append(j, &s.TurnOrder, id)
	}
	if s.ActivePlayerIndex != 0 {
		journal.Set(j, &s.ActivePlayerIndex, 0)
	}
}

// leave removes p from play. The board stays for scoring.
func (s *GameState) leave(j *journal.Journal, p *PlayerBoard, status PlayerStatus) error {
	if !p.Active() {
		return actionErr(KindInvalidPayload, "player %s already %s", p.ID, p.Status)
	}
	if s.Phase == PhaseSetup {
		return actionErr(KindWrongPhase, "match has not started")
	}
	wasActive := s.ActivePlayerID() == p.ID
	journal.Set(j, &p.Status, status)
	s.logf(j, "%s %s", p.Name, map[PlayerStatus]string{
		StatusSurrendered:  "surrendered",
		StatusDisconnected: "disconnected",
	}[status])

	if len(s.ActivePlayers()) < 2 {
		return s.finish(j, EndLastPlayerStanding)
	}
	if wasActive && (s.Phase == PhasePlayerTurn || s.Phase == PhaseBoss) {
		journal.MapSet(j, s.EndedTurn, p.ID, true)
		return s.advanceTurn(j)
	}
	return nil
}

// ForceEnd terminates the match from any non-terminal phase.
func (s *GameState) ForceEnd(j *journal.Journal, reason string) error {
	if s.Phase == PhaseGameOver {
		return actionErr(KindGameOver, "match %s is over", s.GameID)
	}
	if reason == "" {
		reason = EndForced
	}
	return s.finish(j, reason)
}

func (s *GameState) finish(j *journal.Journal, reason string) error {
	if err := s.setPhase(j, PhaseGameOver); err != nil {
		return err
	}
	journal.Set(j, &s.EndReason, reason)
	journal.Set(j, &s.WinnerID, s.winner())
	if s.WinnerID != "" {
		s.logf(j, "Game over (%s): %s wins", reason, s.Players[s.WinnerID].Name)
	} else {
		s.logf(j, "Game over (%s)", reason)
	}
	return nil
}

// Standings ranks players by score, then fewer wounds, then turn order.
func (s *GameState) Standings() []*PlayerBoard {
	ranked := make([]*PlayerBoard, 0, len(s.TurnOrder))
	for _, id := range s.TurnOrder {
		ranked = append(ranked, s.Players[id])
	}
	slices.SortStableFunc(ranked, func(a, b *PlayerBoard) int {
		if d := b.Score(s.Rules) - a.Score(s.Rules); d != 0 {
			return d
		}
		return a.Wounds - b.Wounds
	})
	return ranked
}

// winner is the last active player, otherwise the best ranked active player,
// otherwise the best ranked player overall.
func (s *GameState) winner() string {
	active := s.ActivePlayers()
	if len(active) == 1 {
		return active[0]
	}
	ranked := s.Standings()
	for _, p := range ranked {
		if p.Active() {
			return p.ID
		}
	}
	if len(ranked) > 0 {
		return ranked[0].ID
	}
	return ""
}

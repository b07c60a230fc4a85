package game

import (
	"context"
	"time"
)

// PlayerResult is one player's final line.
type PlayerResult struct {
	PlayerID        string
	Name            string
	Rank            int
	Score           int
	VP              int
	Wounds          int
	ThreatsDefeated int
	Status          PlayerStatus
	IsBot           bool
}

// MatchResult summarises a finished match.
type MatchResult struct {
	GameID     string
	WinnerID   string
	Reason     string
	Rounds     int
	Seed       uint64
	Checksum   string
	StartedAt  time.Time
	FinishedAt time.Time
	Players    []PlayerResult
}

// ResultStore records finished matches.
type ResultStore interface {
	SaveResult(ctx context.Context, result MatchResult) error
}

// BuildMatchResult snapshots the standings of a finished state.
func BuildMatchResult(s *GameState, startedAt, finishedAt time.Time) MatchResult {
	res := MatchResult{
		GameID:     s.GameID,
		WinnerID:   s.WinnerID,
		Reason:     s.EndReason,
		Rounds:     s.Round,
		Seed:       s.Seed,
		Checksum:   s.Checksum(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	for i, p := range s.Standings() {
		res.Players = append(res.Players, PlayerResult{
			PlayerID:        p.ID,
			Name:            p.Name,
			Rank:            i + 1,
			Score:           p.Score(s.Rules),
			VP:              p.VP,
			Wounds:          p.Wounds,
			ThreatsDefeated: p.ThreatsDefeated,
			Status:          p.Status,
			IsBot:           p.IsBot,
		})
	}
	return res
}

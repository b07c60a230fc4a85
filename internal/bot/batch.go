package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchConfig describes a run of all-bot matches.
type BatchConfig struct {
	Games    int
	Players  int
	Parallel int
	BaseSeed uint64
	Prefix   string
}

// MatchSummary is the outcome of one simulated match.
type MatchSummary struct {
	GameID   string
	Seed     uint64
	WinnerID string
	Reason   string
	Rounds   int
	Actions  int
	Checksum string
}

// BatchSummary aggregates a batch.
type BatchSummary struct {
	Matches  []MatchSummary
	Wins     map[string]int
	Reasons  map[string]int
	Rounds   float64
	Actions  float64
	Duration time.Duration
}

// RunBatch plays cfg.Games matches of cfg.Players bots each, at most
// cfg.Parallel at a time. Match i uses seed BaseSeed+i, so a batch is
// reproducible. The first failing match cancels the rest.
func RunBatch(ctx context.Context, logger *zap.Logger, engine *game.Engine, d *Driver, cfg BatchConfig) (*BatchSummary, error) {
	if cfg.Games <= 0 {
		return nil, fmt.Errorf("games must be positive, got %d", cfg.Games)
	}
	if cfg.Players < 2 {
		return nil, fmt.Errorf("at least 2 players required, got %d", cfg.Players)
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sim"
	}

	started := time.Now()
	var (
		mu      sync.Mutex
		matches = make([]MatchSummary, 0, cfg.Games)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i := 0; i < cfg.Games; i++ {
		gameID := fmt.Sprintf("%s-%04d", cfg.Prefix, i)
		seed := cfg.BaseSeed + uint64(i)
		g.Go(func() error {
			m, err := playOne(gctx, engine, d, gameID, seed, cfg.Players)
			if err != nil {
				return fmt.Errorf("match %s: %w", gameID, err)
			}
			mu.Lock()
			matches = append(matches, m)
			mu.Unlock()
			if logger != nil {
				logger.Debug("simulated match",
					zap.String("game_id", gameID),
					zap.String("winner", m.WinnerID),
					zap.String("reason", m.Reason),
					zap.Int("rounds", m.Rounds),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].GameID < matches[j].GameID })
	sum := &BatchSummary{
		Matches:  matches,
		Wins:     make(map[string]int),
		Reasons:  make(map[string]int),
		Duration: time.Since(started),
	}
	for _, m := range matches {
		sum.Wins[m.WinnerID]++
		sum.Reasons[m.Reason]++
		sum.Rounds += float64(m.Rounds)
		sum.Actions += float64(m.Actions)
	}
	sum.Rounds /= float64(len(matches))
	sum.Actions /= float64(len(matches))
	return sum, nil
}

func playOne(ctx context.Context, engine *game.Engine, d *Driver, gameID string, seed uint64, players int) (MatchSummary, error) {
	seats := make([]game.PlayerSeat, players)
	for i := range seats {
		seats[i] = game.PlayerSeat{ID: fmt.Sprintf("bot-%d", i+1), IsBot: true}
	}
	if err := engine.StartGame(gameID, seats, seed); err != nil {
		return MatchSummary{}, err
	}
	defer engine.EndGame(gameID)

	steps, err := d.Run(ctx, gameID)
	if err != nil {
		return MatchSummary{}, err
	}
	m := MatchSummary{GameID: gameID, Seed: seed, Actions: steps}
	err = engine.WithState(gameID, func(s *game.GameState) error {
		if !s.Finished() {
			return fmt.Errorf("bots stopped before the match ended")
		}
		m.WinnerID, m.Reason, m.Rounds, m.Checksum = s.WinnerID, s.EndReason, s.Round, s.Checksum()
		return nil
	})
	return m, err
}

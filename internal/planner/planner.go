// Package planner searches a player's turn by speculatively applying actions
// to the live game state through a private journal and rolling them back.
package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
	"go.uber.org/zap"
)

// Constraints bound a search. Zero values fall back to the defaults.
type Constraints struct {
	MaxDepth    int
	MaxBranches int
	TopN        int
	Heuristic   Heuristic
}

// Default search bounds.
const (
	DefaultMaxDepth    = 3
	DefaultMaxBranches = 200
)

func (c Constraints) withDefaults() Constraints {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MaxBranches <= 0 {
		c.MaxBranches = DefaultMaxBranches
	}
	if c.TopN <= 0 || c.TopN > c.MaxBranches {
		c.TopN = c.MaxBranches
	}
	if c.Heuristic == nil {
		c.Heuristic = DefaultHeuristic
	}
	return c
}

// Leaf is one scored action sequence.
type Leaf struct {
	Actions []game.Action `json:"actions"`
	Score   float64       `json:"score"`
	Logs    []string      `json:"logs,omitempty"`
}

// Result is the outcome of a search. Actions and Score describe the best
// leaf; Leaves holds the retained leaves, best first.
type Result struct {
	Actions   []game.Action `json:"actions"`
	Score     float64       `json:"score"`
	Leaves    []Leaf        `json:"leaves"`
	Logs      []string      `json:"logs,omitempty"`
	Explored  int           `json:"explored"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Planner runs bounded depth-first searches.
type Planner struct {
	logger *zap.Logger
}

// New creates a planner.
func New(logger *zap.Logger) *Planner {
	return &Planner{logger: logger}
}

type search struct {
	ctx      context.Context
	state    *game.GameState
	playerID string
	c        Constraints
	j        *journal.Journal
	logBase  int
	leaves   []Leaf
	scored   int
	explored int
	path     []game.Action
}

// errBudget stops the search once MaxBranches leaves have been scored.
var errBudget = errors.New("leaf budget exhausted")

// Plan searches playerID's options from s. Every speculative write is undone
// before Plan returns, so s is left exactly as it was. If ctx expires the
// best leaves found so far are returned with Truncated set.
func (p *Planner) Plan(ctx context.Context, s *game.GameState, playerID string, c Constraints) (*Result, error) {
	if _, ok := s.Players[playerID]; !ok {
		return nil, fmt.Errorf("planner: %w", game.ErrPlayerNotFound)
	}
	if s.Finished() {
		return nil, fmt.Errorf("planner: %w", game.ErrGameOver)
	}
	if s.ActivePlayerID() != playerID {
		return nil, fmt.Errorf("planner: %w", game.ErrNotYourTurn)
	}

	started := time.Now()
	sr := &search{
		ctx:      ctx,
		state:    s,
		playerID: playerID,
		c:        c.withDefaults(),
		j:        journal.New(),
		logBase:  len(s.Log),
	}

	err := sr.visit(0)
	if rbErr := sr.j.Rollback(0); rbErr != nil {
		return nil, fmt.Errorf("planner: restore state: %w", rbErr)
	}

	res := &Result{Leaves: sr.leaves, Explored: sr.explored}
	switch {
	case err == nil, errors.Is(err, errBudget):
	case ctx.Err() != nil:
		res.Truncated = true
		if len(sr.leaves) == 0 {
			return nil, fmt.Errorf("planner: %w", ctx.Err())
		}
	default:
		return nil, err
	}
	if len(res.Leaves) > 0 {
		best := res.Leaves[0]
		res.Actions, res.Score, res.Logs = best.Actions, best.Score, best.Logs
	}

	if p.logger != nil {
		p.logger.Debug("plan complete",
			zap.String("game_id", s.GameID),
			zap.String("player_id", playerID),
			zap.Int("explored", res.Explored),
			zap.Int("leaves", sr.scored),
			zap.Float64("score", res.Score),
			zap.Bool("truncated", res.Truncated),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
	return res, nil
}

func (sr *search) visit(depth int) error {
	if err := sr.ctx.Err(); err != nil {
		return err
	}
	sr.explored++
	s := sr.state
	if depth >= sr.c.MaxDepth || s.Finished() || s.ActivePlayerID() != sr.playerID {
		return sr.score(nil)
	}

	expanded := false
	for _, a := range LegalActions(s, sr.playerID) {
		if a.Type == game.ActionEndTurn {
			// scored as the state the turn would hand over
			if err := sr.score(&a); err != nil {
				return err
			}
			expanded = true
			continue
		}
		cp := sr.j.Checkpoint()
		if err := game.Apply(s, sr.j, sr.playerID, a); err != nil {
			if rbErr := sr.j.Rollback(cp); rbErr != nil {
				return rbErr
			}
			continue
		}
		expanded = true
		sr.path = append(sr.path, a)
		err := sr.visit(depth + 1)
		sr.path = sr.path[:len(sr.path)-1]
		if rbErr := sr.j.Rollback(cp); rbErr != nil {
			return rbErr
		}
		if err != nil {
			return err
		}
	}
	if !expanded {
		return sr.score(nil)
	}
	return nil
}

// score records the current path, optionally closed by last, as a leaf.
func (sr *search) score(last *game.Action) error {
	if sr.scored >= sr.c.MaxBranches {
		return errBudget
	}
	sr.scored++
	actions := slices.Clone(sr.path)
	if last != nil {
		actions = append(actions, *last)
	}
	leaf := Leaf{
		Actions: actions,
		Score:   sr.c.Heuristic(sr.state, sr.playerID),
		Logs:    slices.Clone(sr.state.Log[sr.logBase:]),
	}
	// keep leaves sorted by descending score; equal scores keep insertion order
	i, _ := slices.BinarySearchFunc(sr.leaves, leaf.Score, func(l Leaf, score float64) int {
		if l.Score >= score {
			return -1
		}
		return 1
	})
	if i >= sr.c.TopN {
		return nil
	}
	sr.leaves = slices.Insert(sr.leaves, i, leaf)
	if len(sr.leaves) > sr.c.TopN {
		sr.leaves = sr.leaves[:sr.c.TopN]
	}
	return nil
}

// Package bot plays bot seats through the engine using the search planner.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"go.uber.org/zap"
)

// ErrStepLimit is returned when a match does not reach a human turn or its
// end within the driver's step budget.
var ErrStepLimit = errors.New("bot step limit reached")

// Driver plays every consecutive bot turn of a match.
type Driver struct {
	logger      *zap.Logger
	engine      *game.Engine
	planner     *planner.Planner
	constraints planner.Constraints
	turnTimeout time.Duration
	maxSteps    int

	mu      sync.Mutex
	running map[string]bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithTurnTimeout bounds the search for a single decision.
func WithTurnTimeout(d time.Duration) Option {
	return func(dr *Driver) { dr.turnTimeout = d }
}

// WithMaxSteps bounds the number of actions one Run may submit.
func WithMaxSteps(n int) Option {
	return func(dr *Driver) { dr.maxSteps = n }
}

// NewDriver creates a driver.
func NewDriver(logger *zap.Logger, engine *game.Engine, p *planner.Planner, c planner.Constraints, opts ...Option) *Driver {
	d := &Driver{
		logger:      logger,
		engine:      engine,
		planner:     p,
		constraints: c,
		turnTimeout: 2 * time.Second,
		maxSteps:    10000,
		running:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run plays bot turns in gameID until a human seat is active or the match is
// over. It returns the number of actions submitted. Concurrent calls for the
// same match return immediately.
func (d *Driver) Run(ctx context.Context, gameID string) (int, error) {
	d.mu.Lock()
	if d.running[gameID] {
		d.mu.Unlock()
		return 0, nil
	}
	d.running[gameID] = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.running, gameID)
		d.mu.Unlock()
	}()

	steps := 0
	for steps < d.maxSteps {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		actor, plan, err := d.decide(ctx, gameID)
		if err != nil {
			return steps, err
		}
		if actor == "" {
			return steps, nil
		}
		if len(plan) == 0 {
			plan = []game.Action{{Type: game.ActionEndTurn}}
		}

		for _, a := range plan {
			err := d.engine.PlayerAction(gameID, actor, a)
			steps++
			if err == nil {
				continue
			}
			if !errors.Is(err, game.ErrInvalidAction) {
				return steps, err
			}
			// the plan went stale; end the turn rather than loop on it
			if d.logger != nil {
				d.logger.Warn("bot action refused, ending turn",
					zap.String("game_id", gameID),
					zap.String("player_id", actor),
					zap.String("action", a.String()),
					zap.Error(err),
				)
			}
			if err := d.engine.PlayerAction(gameID, actor, game.Action{Type: game.ActionEndTurn}); err != nil && !errors.Is(err, game.ErrInvalidAction) {
				return steps, err
			}
			steps++
			break
		}
	}
	return steps, fmt.Errorf("%w: %d actions in %s", ErrStepLimit, steps, gameID)
}

// decide plans the active bot's next moves under the session lock. An empty
// actor means no bot is to move.
func (d *Driver) decide(ctx context.Context, gameID string) (string, []game.Action, error) {
	var (
		actor string
		plan  []game.Action
	)
	err := d.engine.WithState(gameID, func(s *game.GameState) error {
		if s.Finished() {
			return nil
		}
		id := s.ActivePlayerID()
		p := s.Players[id]
		if p == nil || !p.IsBot {
			return nil
		}
		tctx, cancel := context.WithTimeout(ctx, d.turnTimeout)
		defer cancel()
		res, err := d.planner.Plan(tctx, s, id, d.constraints)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				actor = id
				return nil
			}
			return err
		}
		actor, plan = id, res.Actions

		if d.logger != nil {
			d.logger.Debug("bot planned",
				zap.String("game_id", gameID),
				zap.String("player_id", id),
				zap.Int("actions", len(plan)),
				zap.Float64("score", res.Score),
				zap.Int("explored", res.Explored),
			)
		}
		return nil
	})
	return actor, plan, err
}

// Package server exposes the game engine over HTTP, WebSocket and gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/threatlanes/threatlanes-server-go/internal/bot"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"github.com/threatlanes/threatlanes-server-go/internal/repository"
	"go.uber.org/zap"
)

// Server holds the transport-independent operations shared by the HTTP and
// gRPC facades.
type Server struct {
	logger      *zap.Logger
	cfg         config.ServerConfig
	engine      *game.Engine
	planner     *planner.Planner
	constraints planner.Constraints
	planTimeout time.Duration
	bots        *bot.Driver
	botTimeout  time.Duration
	results     repository.Store
	hub         *Hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithPlanner enables the plan endpoint. A zero timeout keeps the default.
func WithPlanner(p *planner.Planner, c planner.Constraints, timeout time.Duration) Option {
	return func(s *Server) {
		s.planner, s.constraints = p, c
		if timeout > 0 {
			s.planTimeout = timeout
		}
	}
}

// WithBots plays bot seats in the background after every change. A zero
// timeout keeps the default of one minute per background run.
func WithBots(d *bot.Driver, timeout time.Duration) Option {
	return func(s *Server) {
		s.bots = d
		if timeout > 0 {
			s.botTimeout = timeout
		}
	}
}

// WithResults enables the finished-match endpoints.
func WithResults(store repository.Store) Option {
	return func(s *Server) { s.results = store }
}

// New creates a server and subscribes its websocket hub to engine
// notifications.
func New(logger *zap.Logger, cfg config.ServerConfig, engine *game.Engine, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:      logger,
		cfg:         cfg,
		engine:      engine,
		planTimeout: 5 * time.Second,
		botTimeout:  time.Minute,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(logger, engine, cfg.WebSocket)
	engine.SetNotificationHandler(s.hub.Publish)
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown stops background bot runs and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.hub.Close()
	return nil
}

// SeatRequest describes one player of a new match.
type SeatRequest struct {
	ID              string                     `json:"id" binding:"required"`
	Name            string                     `json:"name"`
	IsBot           bool                       `json:"is_bot"`
	Stance          string                     `json:"stance"`
	StealPreference map[cards.ResourceType]int `json:"steal_preference"`
}

// CreateGameRequest starts a match. Empty GameID and zero Seed are generated.
type CreateGameRequest struct {
	GameID  string        `json:"game_id"`
	Seed    uint64        `json:"seed"`
	Players []SeatRequest `json:"players" binding:"required,min=2,dive"`
}

// ErrBadRequest marks malformed requests.
var ErrBadRequest = errors.New("bad request")

// CreateGame validates the request, starts the match and lets bots move if
// one has the first turn.
func (s *Server) CreateGame(req CreateGameRequest) (string, error) {
	seats := make([]game.PlayerSeat, 0, len(req.Players))
	seen := make(map[string]bool, len(req.Players))
	for _, p := range req.Players {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return "", fmt.Errorf("%w: player id is required", ErrBadRequest)
		}
		if seen[id] {
			return "", fmt.Errorf("%w: duplicate player %s", ErrBadRequest, id)
		}
		seen[id] = true
		seat := game.PlayerSeat{ID: id, Name: p.Name, IsBot: p.IsBot, StealPreference: p.StealPreference}
		if p.Stance != "" {
			st, err := cards.ParseStance(p.Stance)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			seat.Stance = st
		}
		seats = append(seats, seat)
	}

	gameID := strings.TrimSpace(req.GameID)
	if gameID == "" {
		gameID = uuid.NewString()
	}
	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if err := s.engine.StartGame(gameID, seats, seed); err != nil {
		if errors.Is(err, game.ErrGameExists) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	s.logger.Info("game created",
		zap.String("game_id", gameID),
		zap.Int("players", len(seats)),
		zap.Uint64("seed", seed),
	)
	s.KickBots(gameID)
	return gameID, nil
}

// SubmitAction applies one player command and lets bots answer.
func (s *Server) SubmitAction(gameID, playerID string, action game.Action) error {
	if err := s.engine.PlayerAction(gameID, playerID, action); err != nil {
		return err
	}
	s.KickBots(gameID)
	return nil
}

// Plan searches playerID's turn on the live match without changing it.
func (s *Server) Plan(ctx context.Context, gameID, playerID string, c planner.Constraints) (*planner.Result, error) {
	if s.planner == nil {
		return nil, fmt.Errorf("%w: planning is disabled", ErrBadRequest)
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = s.constraints.MaxDepth
	}
	if c.MaxBranches <= 0 {
		c.MaxBranches = s.constraints.MaxBranches
	}
	if c.TopN <= 0 {
		c.TopN = s.constraints.TopN
	}
	c.Heuristic = s.constraints.Heuristic

	ctx, cancel := context.WithTimeout(ctx, s.planTimeout)
	defer cancel()

	var res *planner.Result
	err := s.engine.WithState(gameID, func(st *game.GameState) error {
		var err error
		res, err = s.planner.Plan(ctx, st, playerID, c)
		return err
	})
	return res, err
}

// KickBots plays any bot turns of gameID in the background.
func (s *Server) KickBots(gameID string) {
	if s.bots == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.botTimeout)
		defer cancel()
		// a run that finds another run in progress returns at once; re-check
		// so a bot turn handed over just as the other run exits is not lost
		for range 3 {
			steps, err := s.bots.Run(ctx, gameID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn("bot run failed", zap.String("game_id", gameID), zap.Error(err))
				}
				return
			}
			if steps > 0 {
				s.logger.Debug("bots moved", zap.String("game_id", gameID), zap.Int("actions", steps))
			}
			if !s.botToMove(gameID) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
}

func (s *Server) botToMove(gameID string) bool {
	waiting := false
	_ = s.engine.WithState(gameID, func(st *game.GameState) error {
		if st.Finished() {
			return nil
		}
		if p := st.Players[st.ActivePlayerID()]; p != nil && p.IsBot {
			waiting = true
		}
		return nil
	})
	return waiting
}

package game

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
	"go.uber.org/zap"
)

// Engine registry errors.
var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameExists   = errors.New("game already exists")
)

// Notification types.
const (
	NotifyGameStateChange = "GAME_STATE_CHANGE"
	NotifyPhaseChange     = "PHASE_CHANGE"
	NotifyPlayerAction    = "PLAYER_ACTION"
	NotifyGameOver        = "GAME_OVER"
)

// GameNotification is pushed to UI and websocket clients after a change.
type GameNotification struct {
	Type      string                 // e.g. "PHASE_CHANGE", "PLAYER_ACTION"
	GameID    string                 // game the notification belongs to
	PlayerID  string                 // acting player, empty for broadcast
	Timestamp time.Time              // when the notification was created
	Data      map[string]interface{} // notification-specific data
}

// NotificationHandler receives game notifications.
type NotificationHandler func(notification GameNotification)

// session is one running match. mu serialises every access to state.
type session struct {
	mu        sync.Mutex
	state     *GameState
	journal   *journal.Journal
	startedAt time.Time
	persisted bool
}

// Engine hosts matches and is the only writer of their state.
type Engine struct {
	logger              *zap.Logger
	library             *content.Library
	rules               Rules
	mu                  sync.RWMutex
	games               map[string]*session
	notificationHandler NotificationHandler
	results             ResultStore
	replays             *ReplayRecorder
	persistTimeout      time.Duration
	checkInvariants     bool
}

// NewEngine creates an engine that sets matches up from lib with rules.
func NewEngine(logger *zap.Logger, lib *content.Library, rules Rules) *Engine {
	return &Engine{
		logger:         logger,
		library:        lib,
		rules:          rules,
		games:          make(map[string]*session),
		replays:        NewReplayRecorder(logger, ""),
		persistTimeout: 5 * time.Second,
	}
}

// SetNotificationHandler sets the handler for game notifications.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notificationHandler = handler
}

// SetResultStore sets where finished matches are recorded.
func (e *Engine) SetResultStore(store ResultStore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = store
}

// SetReplayRecorder replaces the in-memory replay recorder.
func (e *Engine) SetReplayRecorder(rr *ReplayRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replays = rr
}

// SetInvariantChecks makes every action verify CheckInvariants before it is
// committed. A violating action is rolled back and reported as an error.
func (e *Engine) SetInvariantChecks(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkInvariants = on
}

// emitNotification hands n to the registered handler on its own goroutine so
// that handlers may call back into the engine.
func (e *Engine) emitNotification(n GameNotification) {
	e.mu.RLock()
	handler := e.notificationHandler
	e.mu.RUnlock()

	if handler != nil {
		go handler(n)
	}
}

func (e *Engine) notify(kind, gameID, playerID string, data map[string]interface{}) {
	e.emitNotification(GameNotification{
		Type:      kind,
		GameID:    gameID,
		PlayerID:  playerID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (e *Engine) session(gameID string) (*session, error) {
	e.mu.RLock()
	sess, exists := e.games[gameID]
	e.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return sess, nil
}

// StartGame sets up a match and enters its first round.
func (e *Engine) StartGame(gameID string, seats []PlayerSeat, seed uint64) error {
	state, err := NewGameState(gameID, seats, e.library, e.rules, seed)
	if err != nil {
		return err
	}
	if err := state.Start(nil); err != nil {
		return err
	}

	e.mu.Lock()
	if _, exists := e.games[gameID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGameExists, gameID)
	}
	e.games[gameID] = &session{
		state:     state,
		journal:   journal.New(),
		startedAt: time.Now(),
	}
	replays := e.replays
	e.mu.Unlock()

	replays.StartRecording(NewReplay(gameID, seed, seats, e.rules))

	ids := make([]string, len(seats))
	for i, seat := range seats {
		ids[i] = seat.ID
	}
	e.notify(NotifyGameStateChange, gameID, "", map[string]interface{}{
		"state":   "started",
		"players": ids,
		"phase":   string(state.Phase),
	})

	if e.logger != nil {
		e.logger.Info("engine started game",
			zap.String("game_id", gameID),
			zap.Strings("players", ids),
			zap.Uint64("seed", seed),
		)
	}
	return nil
}

// PlayerAction applies one command. The session journal is checkpointed
// before the handler runs; on any error every write is rolled back so the
// match is exactly as it was.
func (e *Engine) PlayerAction(gameID, playerID string, action Action) (err error) {
	sess, err := e.session(gameID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.state
	phaseBefore := state.Phase
	cp := sess.journal.Checkpoint()

	if err = Apply(state, sess.journal, playerID, action); err != nil {
		if rbErr := sess.journal.Rollback(cp); rbErr != nil {
			if e.logger != nil {
				e.logger.Error("failed to roll back after action error",
					zap.String("game_id", gameID),
					zap.Int("checkpoint", cp),
					zap.Error(err),
					zap.Error(rbErr),
				)
			}
			return fmt.Errorf("action failed and rollback failed: %w", errors.Join(err, rbErr))
		}
		if e.logger != nil {
			e.logger.Debug("action rejected",
				zap.String("game_id", gameID),
				zap.String("player_id", playerID),
				zap.String("action", action.String()),
				zap.Error(err),
			)
		}
		return err
	}
	e.mu.RLock()
	check := e.checkInvariants
	e.mu.RUnlock()
	if check {
		if invErr := CheckInvariants(state); invErr != nil {
			if e.logger != nil {
				e.logger.Error("action broke state invariants",
					zap.String("game_id", gameID),
					zap.String("player_id", playerID),
					zap.String("action", action.String()),
					zap.Error(invErr),
				)
			}
			if rbErr := sess.journal.Rollback(cp); rbErr != nil {
				return fmt.Errorf("invariants violated and rollback failed: %w", errors.Join(invErr, rbErr))
			}
			return fmt.Errorf("invariants violated by %s: %w", action, invErr)
		}
	}
	sess.journal.Commit()

	checksum := state.Checksum()
	e.recordStep(gameID, ReplayStep{PlayerID: playerID, Action: action, Checksum: checksum})

	if e.logger != nil {
		e.logger.Info("action applied",
			zap.String("game_id", gameID),
			zap.String("player_id", playerID),
			zap.String("action", action.String()),
			zap.String("phase", string(state.Phase)),
			zap.Int("round", state.Round),
		)
	}

	e.notify(NotifyPlayerAction, gameID, playerID, map[string]interface{}{
		"action":   string(action.Type),
		"checksum": checksum,
	})
	if state.Phase != phaseBefore {
		e.notify(NotifyPhaseChange, gameID, "", map[string]interface{}{
			"from":  string(phaseBefore),
			"to":    string(state.Phase),
			"round": state.Round,
		})
	}
	if state.Finished() {
		e.onGameOver(sess)
	}
	return nil
}

func (e *Engine) recordStep(gameID string, step ReplayStep) {
	e.mu.RLock()
	replays := e.replays
	e.mu.RUnlock()
	replays.Record(gameID, step)
}

// onGameOver persists the result and the replay once. Called with sess.mu held.
func (e *Engine) onGameOver(sess *session) {
	if sess.persisted {
		return
	}
	sess.persisted = true
	state := sess.state

	e.notify(NotifyGameOver, state.GameID, "", map[string]interface{}{
		"winner": state.WinnerID,
		"reason": state.EndReason,
	})

	e.mu.RLock()
	store, replays := e.results, e.replays
	e.mu.RUnlock()

	if err := replays.SaveReplay(state.GameID); err != nil && e.logger != nil {
		e.logger.Warn("failed to save replay",
			zap.String("game_id", state.GameID),
			zap.Error(err),
		)
	}
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()
	result := BuildMatchResult(state, sess.startedAt, time.Now())
	if err := store.SaveResult(ctx, result); err != nil {
		if e.logger != nil {
			e.logger.Error("failed to persist match result",
				zap.String("game_id", state.GameID),
				zap.Error(err),
			)
		}
		return
	}
	if e.logger != nil {
		e.logger.Info("match result persisted",
			zap.String("game_id", state.GameID),
			zap.String("winner", state.WinnerID),
			zap.String("reason", state.EndReason),
		)
	}
}

// FightPreview is the priced fight returned by PreviewFight.
type FightPreview struct {
	AdjustedCost   cards.Cost                 `json:"adjusted_cost"`
	BaseCost       cards.Cost                 `json:"base_cost"`
	AppliedEffects []string                   `json:"applied_effects"`
	CanAfford      bool                       `json:"can_afford"`
	Remaining      map[cards.ResourceType]int `json:"remaining"`
}

// PreviewFight prices a fight without changing the match.
func (e *Engine) PreviewFight(gameID, playerID string, payload ActionPayload) (*FightPreview, error) {
	sess, err := e.session(gameID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	q, err := sess.state.QuoteFight(playerID, payload)
	if err != nil {
		return nil, err
	}
	return &FightPreview{
		AdjustedCost:   q.AdjustedCost,
		BaseCost:       q.Base,
		AppliedEffects: q.AppliedEffects,
		CanAfford:      q.CanAfford,
		Remaining:      q.Remaining,
	}, nil
}

// GetRedactedState returns the match as seen by viewerID.
func (e *Engine) GetRedactedState(gameID, viewerID string) (*StateView, error) {
	sess, err := e.session(gameID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if viewerID != "" {
		if _, ok := sess.state.Players[viewerID]; !ok {
			return nil, actionErr(KindPlayerNotFound, "player %s not in match", viewerID)
		}
	}
	return sess.state.View(viewerID), nil
}

// SetStealPreference records which resources a player would rather lose to
// cunning threats.
func (e *Engine) SetStealPreference(gameID, playerID string, pref map[cards.ResourceType]int) error {
	sess, err := e.session(gameID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	cp := sess.journal.Checkpoint()
	if err := sess.state.SetStealPreference(sess.journal, playerID, pref); err != nil {
		if rbErr := sess.journal.Rollback(cp); rbErr != nil {
			return fmt.Errorf("preference failed and rollback failed: %w", errors.Join(err, rbErr))
		}
		return err
	}
	sess.journal.Commit()

	e.recordStep(gameID, ReplayStep{
		PlayerID:        playerID,
		StealPreference: maps.Clone(pref),
		SetPreference:   true,
		Checksum:        sess.state.Checksum(),
	})
	if e.logger != nil {
		e.logger.Debug("steal preference changed",
			zap.String("game_id", gameID),
			zap.String("player_id", playerID),
		)
	}
	return nil
}

// ForceEnd ends a match administratively.
func (e *Engine) ForceEnd(gameID, reason string) error {
	sess, err := e.session(gameID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if reason == "" {
		reason = EndForced
	}
	if err := sess.state.ForceEnd(nil, reason); err != nil {
		return err
	}
	sess.journal.Commit()
	e.recordStep(gameID, ReplayStep{ForceEnd: reason, Checksum: sess.state.Checksum()})

	if e.logger != nil {
		e.logger.Info("engine force-ended game",
			zap.String("game_id", gameID),
			zap.String("reason", reason),
			zap.String("winner", sess.state.WinnerID),
		)
	}
	e.onGameOver(sess)
	return nil
}

// EndGame removes a match from the engine.
func (e *Engine) EndGame(gameID string) error {
	e.mu.Lock()
	_, exists := e.games[gameID]
	delete(e.games, gameID)
	replays := e.replays
	e.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	replays.ClearReplay(gameID)

	if e.logger != nil {
		e.logger.Info("engine removed game", zap.String("game_id", gameID))
	}
	return nil
}

// WithState runs fn with exclusive access to the live state. fn must leave
// the state as it found it or mutate it only through Apply.
func (e *Engine) WithState(gameID string, fn func(*GameState) error) error {
	sess, err := e.session(gameID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.state)
}

// Replay returns the recorded replay of a match.
func (e *Engine) Replay(gameID string) (*Replay, error) {
	e.mu.RLock()
	replays := e.replays
	e.mu.RUnlock()
	if r, ok := replays.GetReplay(gameID); ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: no replay for %s", ErrGameNotFound, gameID)
}

// Games lists the ids of hosted matches.
func (e *Engine) Games() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.games))
	for id := range e.games {
		ids = append(ids, id)
	}
	return ids
}

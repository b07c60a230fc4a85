package game

import (
	"errors"
	"fmt"
)

// ErrInvalidAction matches every rule violation reported by an action handler.
var ErrInvalidAction = errors.New("invalid action")

// ErrorKind classifies why an action was refused.
type ErrorKind string

const (
	KindWrongPhase         ErrorKind = "wrong_phase"
	KindNotYourTurn        ErrorKind = "not_your_turn"
	KindPlayerNotFound     ErrorKind = "player_not_found"
	KindUnknownAction      ErrorKind = "unknown_action"
	KindInvalidPayload     ErrorKind = "invalid_payload"
	KindAlreadyUsed        ErrorKind = "already_used"
	KindInsufficient       ErrorKind = "insufficient_resources"
	KindInsufficientTokens ErrorKind = "insufficient_tokens"
	KindCapReached         ErrorKind = "cap_reached"
	KindSlotFull           ErrorKind = "slot_full"
	KindCardNotFound       ErrorKind = "card_not_found"
	KindThresholdCleared   ErrorKind = "threshold_cleared"
	KindNoTarget           ErrorKind = "no_target"
	KindGameOver           ErrorKind = "game_over"
)

// ActionError is returned by action handlers. errors.Is(err, ErrInvalidAction)
// holds for every ActionError, and errors.Is(err, ErrSlotFull) matches by kind.
type ActionError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ActionError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches ErrInvalidAction and any sentinel of the same kind.
func (e *ActionError) Is(target error) bool {
	if target == ErrInvalidAction {
		return true
	}
	t, ok := target.(*ActionError)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrWrongPhase         = &ActionError{Kind: KindWrongPhase}
	ErrNotYourTurn        = &ActionError{Kind: KindNotYourTurn}
	ErrPlayerNotFound     = &ActionError{Kind: KindPlayerNotFound}
	ErrUnknownAction      = &ActionError{Kind: KindUnknownAction}
	ErrInvalidPayload     = &ActionError{Kind: KindInvalidPayload}
	ErrAlreadyUsed        = &ActionError{Kind: KindAlreadyUsed}
	ErrInsufficient       = &ActionError{Kind: KindInsufficient}
	ErrInsufficientTokens = &ActionError{Kind: KindInsufficientTokens}
	ErrCapReached         = &ActionError{Kind: KindCapReached}
	ErrSlotFull           = &ActionError{Kind: KindSlotFull}
	ErrCardNotFound       = &ActionError{Kind: KindCardNotFound}
	ErrThresholdCleared   = &ActionError{Kind: KindThresholdCleared}
	ErrNoTarget           = &ActionError{Kind: KindNoTarget}
	ErrGameOver           = &ActionError{Kind: KindGameOver}
)

func actionErr(kind ErrorKind, format string, args ...any) error {
	return &ActionError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

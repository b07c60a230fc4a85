// Package repository persists finished match results.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no result is stored for a match.
var ErrNotFound = errors.New("match result not found")

// Store records and reads match results.
type Store interface {
	game.ResultStore
	GetResult(ctx context.Context, gameID string) (*game.MatchResult, error)
	ListResults(ctx context.Context, limit int) ([]game.MatchResult, error)
	Close() error
}

// DefaultListLimit caps ListResults when the caller passes zero.
const DefaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}

// Open connects the store selected by cfg and migrates its schema. Driver
// "none" returns a nil store.
func Open(ctx context.Context, logger *zap.Logger, cfg config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		store, err = NewSQLiteStore(cfg.DSN)
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("result store ready", zap.String("driver", cfg.Driver))
	}
	return store, nil
}

// seed values are stored as signed 64-bit integers; the bit pattern is kept.
func seedToDB(seed uint64) int64   { return int64(seed) }
func seedFromDB(seed int64) uint64 { return uint64(seed) }

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
)

// PostgresStore keeps results in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool, pings it and migrates the schema.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the result tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			game_id TEXT PRIMARY KEY,
			winner_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			rounds INTEGER NOT NULL,
			seed BIGINT NOT NULL,
			checksum TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS match_players (
			game_id TEXT NOT NULL REFERENCES matches(game_id) ON DELETE CASCADE,
			player_id TEXT NOT NULL,
			name TEXT NOT NULL,
			rank INTEGER NOT NULL,
			score INTEGER NOT NULL,
			vp INTEGER NOT NULL,
			wounds INTEGER NOT NULL,
			threats_defeated INTEGER NOT NULL,
			status TEXT NOT NULL,
			is_bot BOOLEAN NOT NULL,
			PRIMARY KEY (game_id, player_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_finished_at ON matches(finished_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_player ON match_players(player_id)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveResult stores r, replacing an earlier result for the same match.
func (s *PostgresStore) SaveResult(ctx context.Context, r game.MatchResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM matches WHERE game_id = $1`, r.GameID); err != nil {
		return fmt.Errorf("failed to clear result %s: %w", r.GameID, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO matches (game_id, winner_id, reason, rounds, seed, checksum, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.GameID, r.WinnerID, r.Reason, r.Rounds, seedToDB(r.Seed), r.Checksum,
		toUnix(r.StartedAt), toUnix(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result %s: %w", r.GameID, err)
	}

	rows := make([][]any, 0, len(r.Players))
	for _, p := range r.Players {
		rows = append(rows, []any{
			r.GameID, p.PlayerID, p.Name, p.Rank, p.Score, p.VP, p.Wounds, p.ThreatsDefeated, string(p.Status), p.IsBot,
		})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"match_players"},
		[]string{"game_id", "player_id", "name", "rank", "score", "vp", "wounds", "threats_defeated", "status", "is_bot"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert players for %s: %w", r.GameID, err)
	}
	return tx.Commit(ctx)
}

// GetResult loads one match.
func (s *PostgresStore) GetResult(ctx context.Context, gameID string) (*game.MatchResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT game_id, winner_id, reason, rounds, seed, checksum, started_at, finished_at
		FROM matches WHERE game_id = $1`, gameID)
	r, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", gameID, err)
	}
	if err := s.loadPlayers(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListResults returns the most recently finished matches first.
func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]game.MatchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, winner_id, reason, rounds, seed, checksum, started_at, finished_at
		FROM matches ORDER BY finished_at DESC, game_id LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	var results []game.MatchResult
	for rows.Next() {
		r, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		if err := s.loadPlayers(ctx, &results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *PostgresStore) loadPlayers(ctx context.Context, r *game.MatchResult) error {
	rows, err := s.pool.Query(ctx, `
		SELECT player_id, name, rank, score, vp, wounds, threats_defeated, status, is_bot
		FROM match_players WHERE game_id = $1 ORDER BY rank`, r.GameID)
	if err != nil {
		return fmt.Errorf("failed to load players for %s: %w", r.GameID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p      game.PlayerResult
			status string
		)
		if err := rows.Scan(&p.PlayerID, &p.Name, &p.Rank, &p.Score, &p.VP, &p.Wounds, &p.ThreatsDefeated, &status, &p.IsBot); err != nil {
			return fmt.Errorf("failed to scan player: %w", err)
		}
		p.Status = game.PlayerStatus(status)
		r.Players = append(r.Players, p)
	}
	return rows.Err()
}

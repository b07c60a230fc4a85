package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/threatlanes/threatlanes-server-go/internal/game"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps results in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path, enables WAL and migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the result tables.
func (s *SQLiteStore) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			game_id TEXT PRIMARY KEY,
			winner_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			rounds INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
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
			is_bot INTEGER NOT NULL,
			PRIMARY KEY (game_id, player_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_finished_at ON matches(finished_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_player ON match_players(player_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveResult stores r, replacing an earlier result for the same match.
func (s *SQLiteStore) SaveResult(ctx context.Context, r game.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE game_id = ?`, r.GameID); err != nil {
		return fmt.Errorf("failed to clear result %s: %w", r.GameID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (game_id, winner_id, reason, rounds, seed, checksum, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GameID, r.WinnerID, r.Reason, r.Rounds, seedToDB(r.Seed), r.Checksum,
		toUnix(r.StartedAt), toUnix(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result %s: %w", r.GameID, err)
	}
	for _, p := range r.Players {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_players (game_id, player_id, name, rank, score, vp, wounds, threats_defeated, status, is_bot)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.GameID, p.PlayerID, p.Name, p.Rank, p.Score, p.VP, p.Wounds, p.ThreatsDefeated, string(p.Status), p.IsBot,
		)
		if err != nil {
			return fmt.Errorf("failed to insert player %s: %w", p.PlayerID, err)
		}
	}
	return tx.Commit()
}

// GetResult loads one match.
func (s *SQLiteStore) GetResult(ctx context.Context, gameID string) (*game.MatchResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT game_id, winner_id, reason, rounds, seed, checksum, started_at, finished_at
		FROM matches WHERE game_id = ?`, gameID)
	r, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]game.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, winner_id, reason, rounds, seed, checksum, started_at, finished_at
		FROM matches ORDER BY finished_at DESC, game_id LIMIT ?`, listLimit(limit))
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
	// rows must be closed before the single connection can serve player queries
	for i := range results {
		if err := s.loadPlayers(ctx, &results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *SQLiteStore) loadPlayers(ctx context.Context, r *game.MatchResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, name, rank, score, vp, wounds, threats_defeated, status, is_bot
		FROM match_players WHERE game_id = ? ORDER BY rank`, r.GameID)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (*game.MatchResult, error) {
	var (
		r                 game.MatchResult
		seed              int64
		started, finished int64
	)
	if err := row.Scan(&r.GameID, &r.WinnerID, &r.Reason, &r.Rounds, &seed, &r.Checksum, &started, &finished); err != nil {
		return nil, err
	}
	r.Seed = seedFromDB(seed)
	r.StartedAt = fromUnix(started)
	r.FinishedAt = fromUnix(finished)
	return &r, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"quizsnap/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS match_history (
		id         TEXT PRIMARY KEY,
		played_at  INTEGER NOT NULL,
		title      TEXT NOT NULL,
		questions  TEXT NOT NULL,
		config     TEXT NOT NULL,
		best_score INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS match_history_played_at_idx ON match_history (played_at DESC)`,
}

// HistoryStore is the default on-device history: a single SQLite file
// holding the last domain.HistoryLimit matches.
type HistoryStore struct {
	db *sql.DB
}

// Open creates the database file at path if needed and applies the schema.
func Open(ctx context.Context, path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func (s *HistoryStore) Append(ctx context.Context, summary domain.MatchSummary) error {
	questions, err := json.Marshal(summary.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	cfg, err := json.Marshal(summary.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO match_history (id, played_at, title, questions, config, best_score) VALUES (?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.Timestamp.UnixMilli(), summary.Title, string(questions), string(cfg), summary.BestScore)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM match_history WHERE id NOT IN (SELECT id FROM match_history ORDER BY played_at DESC LIMIT ?)`,
		domain.HistoryLimit)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit()
}

func (s *HistoryStore) List(ctx context.Context) ([]domain.MatchSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, played_at, title, questions, config, best_score FROM match_history ORDER BY played_at DESC LIMIT ?`,
		domain.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchSummary
	for rows.Next() {
		var (
			summary         domain.MatchSummary
			playedAt        int64
			questions, conf string
		)
		if err := rows.Scan(&summary.ID, &playedAt, &summary.Title, &questions, &conf, &summary.BestScore); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		summary.Timestamp = time.UnixMilli(playedAt).UTC()
		if err := json.Unmarshal([]byte(questions), &summary.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
		if err := json.Unmarshal([]byte(conf), &summary.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

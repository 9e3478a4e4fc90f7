package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizsnap/internal/domain"
)

// HistoryStore keeps match summaries in the match_history table. Each owner
// keeps at most domain.HistoryLimit rows; older ones are pruned on insert.
type HistoryStore struct {
	pool  *pgxpool.Pool
	owner string
}

func NewHistoryStore(pool *pgxpool.Pool, owner string) *HistoryStore {
	return &HistoryStore{pool: pool, owner: owner}
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO match_history (id, owner, played_at, title, questions, config, best_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET best_score = EXCLUDED.best_score, played_at = EXCLUDED.played_at`,
		summary.ID, s.owner, summary.Timestamp, summary.Title, questions, cfg, summary.BestScore)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM match_history
		WHERE owner = $1 AND id NOT IN (
			SELECT id FROM match_history WHERE owner = $1 ORDER BY played_at DESC LIMIT $2
		)`, s.owner, domain.HistoryLimit)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *HistoryStore) List(ctx context.Context) ([]domain.MatchSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, played_at, title, questions, config, best_score
		FROM match_history WHERE owner = $1
		ORDER BY played_at DESC LIMIT $2`, s.owner, domain.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchSummary
	for rows.Next() {
		var (
			summary         domain.MatchSummary
			questions, conf []byte
		)
		if err := rows.Scan(&summary.ID, &summary.Timestamp, &summary.Title, &questions, &conf, &summary.BestScore); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(questions, &summary.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
		if err := json.Unmarshal(conf, &summary.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

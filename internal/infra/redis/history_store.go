package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quizsnap/internal/domain"
)

// HistoryStore keeps match summaries in a capped Redis list, newest first.
type HistoryStore struct {
	client *redis.Client
	key    string
}

// NewHistoryStore stores history under quizsnap:history:{owner}.
func NewHistoryStore(client *redis.Client, owner string) *HistoryStore {
	return &HistoryStore{client: client, key: "quizsnap:history:" + owner}
}

func (s *HistoryStore) Append(ctx context.Context, summary domain.MatchSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, raw)
	pipe.LTrim(ctx, s.key, 0, domain.HistoryLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *HistoryStore) List(ctx context.Context) ([]domain.MatchSummary, error) {
	items, err := s.client.LRange(ctx, s.key, 0, domain.HistoryLimit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.MatchSummary, 0, len(items))
	for i, item := range items {
		var summary domain.MatchSummary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		out = append(out, summary)
	}
	return out, nil
}

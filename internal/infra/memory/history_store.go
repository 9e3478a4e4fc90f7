package memory

import (
	"context"
	"sync"

	"quizsnap/internal/domain"
)

// HistoryStore keeps the most recent match summaries in memory, newest first.
type HistoryStore struct {
	mu      sync.RWMutex
	entries []domain.MatchSummary
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (s *HistoryStore) Append(_ context.Context, summary domain.MatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.MatchSummary, 0, domain.HistoryLimit)
	entries = append(entries, summary)
	for _, e := range s.entries {
		if len(entries) == domain.HistoryLimit {
			break
		}
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

func (s *HistoryStore) List(_ context.Context) ([]domain.MatchSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MatchSummary(nil), s.entries...), nil
}

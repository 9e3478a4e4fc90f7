package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizsnap/internal/domain"
)

func TestHistoryStoreCapsList(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewHistoryStore(newClient(mr), "local")
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		summary := domain.MatchSummary{
			ID:        strconv.Itoa(i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Title:     "What is 2 + 2?...",
			Questions: sampleQuestions(),
			Config:    domain.DefaultQuizConfig(),
			BestScore: i % 3,
		}
		if err := store.Append(ctx, summary); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	items, err := mr.List("quizsnap:history:local")
	if err != nil {
		t.Fatalf("list key: %v", err)
	}
	if len(items) != domain.HistoryLimit {
		t.Fatalf("expected list trimmed to %d, got %d", domain.HistoryLimit, len(items))
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries[0].ID != "11" || entries[9].ID != "2" {
		t.Fatalf("expected newest first, got %s..%s", entries[0].ID, entries[9].ID)
	}
	if !entries[0].Timestamp.Equal(base.Add(11*time.Minute)) || len(entries[0].Questions) != 2 {
		t.Fatalf("summary not restored: %+v", entries[0])
	}
}

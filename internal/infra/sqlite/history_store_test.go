package sqlite

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"quizsnap/internal/domain"
)

func TestHistoryStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		summary := domain.MatchSummary{
			ID:        "match-" + strconv.Itoa(i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Title:     "Which gas do plants release...",
			Questions: []domain.Question{
				{ID: "q1", Type: domain.FillBlanks, Question: "Plants release ____.", Options: []string{"oxygen", "helium"}, CorrectAnswer: "oxygen"},
			},
			Config:    domain.DefaultQuizConfig(),
			BestScore: 1,
		}
		if err := store.Append(ctx, summary); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != domain.HistoryLimit {
		t.Fatalf("expected %d entries, got %d", domain.HistoryLimit, len(entries))
	}
	first := entries[0]
	if first.ID != "match-11" || entries[9].ID != "match-2" {
		t.Fatalf("expected newest first, got %s..%s", first.ID, entries[9].ID)
	}
	if !first.Timestamp.Equal(base.Add(11*time.Hour)) {
		t.Fatalf("timestamp not restored: %v", first.Timestamp)
	}
	if first.Config.Language != domain.Arabic || len(first.Questions) != 1 || first.Questions[0].CorrectAnswer != "oxygen" {
		t.Fatalf("summary not restored: %+v", first)
	}
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizsnap/internal/domain"
)

func TestQuizCacheCaches(t *testing.T) {
	gen := &countingGenerator{QuizGenerator: NewStaticGenerator(sampleQuestions())}
	cache := NewQuizCache(gen, time.Minute)
	src := domain.LessonSource{Text: "Photosynthesis turns light into sugar."}
	cfg := domain.DefaultQuizConfig()
	cfg.AllowedTypes = append(cfg.AllowedTypes, domain.TrueFalse)

	if _, err := cache.GenerateQuiz(context.Background(), src, cfg); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gen.count() != 1 {
		t.Fatalf("expected generator once, got %d", gen.count())
	}

	questions, err := cache.GenerateQuiz(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("generate 2: %v", err)
	}
	if gen.count() != 1 {
		t.Fatalf("expected cache hit, generator calls %d", gen.count())
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	cfg.Difficulty = domain.Hard
	if _, err := cache.GenerateQuiz(context.Background(), src, cfg); err != nil {
		t.Fatalf("generate 3: %v", err)
	}
	if gen.count() != 2 {
		t.Fatalf("different config must miss the cache, calls %d", gen.count())
	}
}

func TestQuizCacheExpires(t *testing.T) {
	gen := &countingGenerator{QuizGenerator: NewStaticGenerator(sampleQuestions())}
	cache := NewQuizCache(gen, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }
	src := domain.LessonSource{Text: "lesson"}

	_, _ = cache.GenerateQuiz(context.Background(), src, domain.DefaultQuizConfig())
	now = now.Add(2 * time.Minute)
	_, _ = cache.GenerateQuiz(context.Background(), src, domain.DefaultQuizConfig())
	if gen.count() != 2 {
		t.Fatalf("expected expiry to force regeneration, calls %d", gen.count())
	}
}

func TestQuizCacheDoesNotCacheFailures(t *testing.T) {
	gen := &countingGenerator{QuizGenerator: NewStaticGenerator(nil)}
	cache := NewQuizCache(gen, time.Minute)
	src := domain.LessonSource{Text: "lesson"}

	for i := 0; i < 2; i++ {
		if _, err := cache.GenerateQuiz(context.Background(), src, domain.DefaultQuizConfig()); !errors.Is(err, domain.ErrGenerationFailed) {
			t.Fatalf("expected ErrGenerationFailed, got %v", err)
		}
	}
	if gen.count() != 2 {
		t.Fatalf("failures must not be cached, calls %d", gen.count())
	}
}

type countingGenerator struct {
	QuizGenerator
	mu    sync.Mutex
	calls int
}

func (g *countingGenerator) GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.QuizGenerator.GenerateQuiz(ctx, src, cfg)
}

func (g *countingGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.MultipleChoice, Question: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		{ID: "q2", Type: domain.TrueFalse, Question: "The sun is a star.", Options: []string{"True", "False"}, CorrectAnswer: "True"},
	}
}

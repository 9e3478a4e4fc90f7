package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quizsnap/internal/domain"
	"quizsnap/internal/infra/memory"
)

func TestQuizCacheStoresInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	gen := &countingGenerator{QuizGenerator: memory.NewStaticGenerator(sampleQuestions())}
	cache := NewQuizCache(client, gen, time.Minute, zerolog.Nop())
	src := domain.LessonSource{Text: "Water boils at 100 degrees."}
	cfg := domain.DefaultQuizConfig()
	cfg.AllowedTypes = append(cfg.AllowedTypes, domain.TrueFalse)

	if _, err := cache.GenerateQuiz(context.Background(), src, cfg); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected generator called once, got %d", gen.calls)
	}
	key := "quizsnap:quiz:" + src.Fingerprint(cfg)
	if !mr.Exists(key) {
		t.Fatalf("expected %s to be cached", key)
	}
	if ttl := mr.TTL(key); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call should hit cache, generator not incremented.
	questions, err := cache.GenerateQuiz(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("generate 2: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected cache hit, generator calls=%d", gen.calls)
	}
	if len(questions) != 2 || questions[0].CorrectAnswer != "4" {
		t.Fatalf("unexpected cached questions %+v", questions)
	}
}

func TestQuizCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	gen := &countingGenerator{QuizGenerator: memory.NewStaticGenerator(sampleQuestions())}
	cache := NewQuizCache(client, gen, time.Minute, zerolog.Nop())

	if _, err := cache.GenerateQuiz(context.Background(), domain.LessonSource{Text: "x"}, domain.DefaultQuizConfig()); err != nil {
		t.Fatalf("expected generation despite redis failure, got %v", err)
	}
}

type countingGenerator struct {
	QuizGenerator
	calls int
}

func (g *countingGenerator) GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error) {
	g.calls++
	return g.QuizGenerator.GenerateQuiz(ctx, src, cfg)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.MultipleChoice, Question: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		{ID: "q2", Type: domain.TrueFalse, Question: "Water is wet.", Options: []string{"True", "False"}, CorrectAnswer: "True"},
	}
}

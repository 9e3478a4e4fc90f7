package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"quizsnap/internal/domain"
)

// QuizGenerator produces questions for a lesson (the AI collaborator).
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error)
}

// QuizCache remembers generated quizzes per lesson and config so a repeated
// request does not hit the generator again. Concurrent identical requests
// share one generator call.
type QuizCache struct {
	generator QuizGenerator
	ttl       time.Duration
	clock     func() time.Time
	sf        singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuizCache(generator QuizGenerator, ttl time.Duration) *QuizCache {
	return &QuizCache{
		generator: generator,
		ttl:       ttl,
		clock:     time.Now,
		cache:     make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error) {
	key := src.Fingerprint(cfg)
	if questions, ok := c.lookup(key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if questions, ok := c.lookup(key); ok {
			return questions, nil
		}

		questions, err := c.generator.GenerateQuiz(ctx, src, cfg)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedQuiz{
			questions: questions,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return copyQuestions(result.([]domain.Question)), nil
}

func (c *QuizCache) lookup(key string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return copyQuestions(entry.questions), true
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int64N(jitterMax+1))
}

func copyQuestions(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// StaticGenerator returns a fixed question set regardless of the lesson,
// limited to the allowed types and count. Used by tests and the offline
// demo mode.
type StaticGenerator struct {
	Questions []domain.Question
}

func NewStaticGenerator(questions []domain.Question) *StaticGenerator {
	return &StaticGenerator{Questions: questions}
}

func (g *StaticGenerator) GenerateQuiz(_ context.Context, _ domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error) {
	questions := lo.Filter(copyQuestions(g.Questions), func(q domain.Question, _ int) bool {
		return len(cfg.AllowedTypes) == 0 || cfg.Allows(q.Type)
	})
	if len(questions) == 0 {
		return nil, domain.ErrGenerationFailed
	}
	if cfg.QuestionCount > 0 && len(questions) > cfg.QuestionCount {
		questions = questions[:cfg.QuestionCount]
	}
	return questions, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quizsnap/internal/domain"
)

// QuizGenerator produces questions on a cache miss.
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error)
}

// QuizCache stores generated question sets in Redis as JSON, keyed by the
// lesson fingerprint:
//
//	SET quizsnap:quiz:{fingerprint} {questions json} EX {ttl+jitter}
//
// Redis failures degrade to calling the generator directly.
type QuizCache struct {
	client    *redis.Client
	generator QuizGenerator
	ttl       time.Duration
	sf        singleflight.Group
	rnd       *rand.Rand
	log       zerolog.Logger
}

func NewQuizCache(client *redis.Client, generator QuizGenerator, ttl time.Duration, log zerolog.Logger) *QuizCache {
	return &QuizCache{
		client:    client,
		generator: generator,
		ttl:       ttl,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log,
	}
}

func (c *QuizCache) GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error) {
	key := c.key(src.Fingerprint(cfg))
	if questions, ok := c.lookup(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if questions, ok := c.lookup(ctx, key); ok {
			return questions, nil
		}

		questions, err := c.generator.GenerateQuiz(ctx, src, cfg)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err(); err != nil {
			c.log.Warn().Err(err).Msg("cache generated quiz")
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuizCache) lookup(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("read quiz cache")
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

func (c *QuizCache) key(fingerprint string) string {
	return "quizsnap:quiz:" + fingerprint
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quizsnap/internal/app"
	"quizsnap/internal/config"
	"quizsnap/internal/domain"
	"quizsnap/internal/infra/gemini"
	"quizsnap/internal/infra/memory"
	pghistory "quizsnap/internal/infra/postgres"
	infraredis "quizsnap/internal/infra/redis"
	"quizsnap/internal/infra/signal"
	"quizsnap/internal/infra/sqlite"
	"quizsnap/internal/transport/p2p"
)

func newRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr not configured")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// historyOwner namespaces shared history backends per machine.
func historyOwner() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "local"
}

// openHistory returns the configured history store and a func releasing it.
func openHistory(ctx context.Context, cfg config.Config) (app.HistoryStore, func(), error) {
	switch cfg.History.Backend {
	case "memory":
		return memory.NewHistoryStore(), func() {}, nil
	case "redis":
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return infraredis.NewHistoryStore(client, historyOwner()), func() { _ = client.Close() }, nil
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pghistory.NewHistoryStore(pool, historyOwner()), pool.Close, nil
	case "sqlite", "":
		store, err := sqlite.Open(ctx, cfg.History.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// newGenerator builds the quiz generator behind a cache. demo swaps Gemini
// for a fixed question set so the game can be tried offline.
func newGenerator(ctx context.Context, cfg config.Config, demo bool, log zerolog.Logger) (app.QuizGenerator, func(), error) {
	var gen memory.QuizGenerator
	if demo {
		gen = memory.NewStaticGenerator(demoQuestions())
	} else {
		g, err := gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, log.With().Str("component", "gemini").Logger())
		if err != nil {
			return nil, nil, err
		}
		gen = g
	}

	ttl := config.TTLDuration(cfg.Cache.TTL, 30*time.Minute)
	if cfg.Redis.Addr != "" {
		client, err := newRedisClient(ctx, cfg)
		if err == nil {
			return infraredis.NewQuizCache(client, gen, ttl, log), func() { _ = client.Close() }, nil
		}
		log.Warn().Err(err).Msg("redis unavailable, caching quizzes in memory")
	}
	return memory.NewQuizCache(gen, ttl), func() {}, nil
}

func newPeerNetwork(cfg config.Config, log zerolog.Logger) app.Network {
	rendezvous := signal.NewClient(cfg.Signal.URL, nil)
	return app.NewPeerNetwork(p2p.NewNetwork(rendezvous,
		p2p.WithListenAddr(cfg.Peer.ListenAddr),
		p2p.WithAdvertiseHost(cfg.Peer.AdvertiseHost),
		p2p.WithLogger(log.With().Str("component", "p2p").Logger()),
	))
}

func matchOptions(cfg config.Config, log zerolog.Logger) []app.Option {
	return []app.Option{
		app.WithSettleDelay(config.TTLDuration(cfg.Match.SettleDelay, app.DefaultSettleDelay)),
		app.WithLogger(log.With().Str("component", "match").Logger()),
	}
}

func demoQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.MultipleChoice, Question: "What do plants need to make food?", Options: []string{"Sunlight", "Sand", "Plastic", "Music"}, CorrectAnswer: "Sunlight"},
		{ID: "q2", Type: domain.TrueFalse, Question: "The Moon makes its own light.", Options: []string{"True", "False"}, CorrectAnswer: "False"},
		{ID: "q3", Type: domain.FillBlanks, Question: "Water freezes into ____.", Options: []string{"ice", "steam", "sand"}, CorrectAnswer: "ice"},
		{ID: "q4", Type: domain.MultipleChoice, Question: "Which planet is closest to the Sun?", Options: []string{"Venus", "Mercury", "Earth", "Mars"}, CorrectAnswer: "Mercury"},
		{ID: "q5", Type: domain.TrueFalse, Question: "Bees make honey.", Options: []string{"True", "False"}, CorrectAnswer: "True"},
	}
}

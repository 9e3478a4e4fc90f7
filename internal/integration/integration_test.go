package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizsnap/internal/app"
	"quizsnap/internal/domain"
	"quizsnap/internal/infra/memory"
	pghistory "quizsnap/internal/infra/postgres"
	pgmigrations "quizsnap/internal/infra/postgres/migrations"
	infraredis "quizsnap/internal/infra/redis"
	"quizsnap/internal/transport/p2p"
)

// A full match over real Redis rendezvous, with both players recording
// history in Postgres.
func TestMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateHistory(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	rooms := infraredis.NewRendezvous(redisClient, time.Minute)
	newNet := func() app.Network {
		return app.NewPeerNetwork(p2p.NewNetwork(rooms,
			p2p.WithListenAddr("127.0.0.1:0"),
			p2p.WithAdvertiseHost("127.0.0.1"),
		))
	}
	generator := infraredis.NewQuizCache(redisClient, memory.NewStaticGenerator(sampleQuestions()), time.Minute, zerolog.Nop())

	hostHistory := pghistory.NewHistoryStore(pool, "host")
	guestHistory := pghistory.NewHistoryStore(pool, "guest")
	host := app.NewMatch(generator, newNet(), hostHistory, app.WithSettleDelay(time.Millisecond))
	guest := app.NewMatch(nil, newNet(), guestHistory, app.WithSettleDelay(time.Millisecond))
	defer host.Close()
	defer guest.Close()

	cfg := domain.QuizConfig{
		QuestionCount: 2,
		Difficulty:    domain.Easy,
		Language:      domain.English,
		AllowedTypes:  []domain.QuestionType{domain.MultipleChoice, domain.TrueFalse},
	}
	code, err := host.Host(ctx, domain.LessonSource{Text: "arithmetic"}, cfg)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if err := guest.Join(ctx, "zzzzzz"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound for unknown code, got %v", err)
	}
	if err := guest.Join(ctx, code); err != nil {
		t.Fatalf("join: %v", err)
	}

	waitState(t, host, app.StateQuizDelivered)
	waitState(t, guest, app.StateQuizDelivered)
	for _, m := range []*app.Match{host, guest} {
		if err := m.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	play(t, host, []string{"4", "True"})
	play(t, guest, []string{"5", "4", "True"})

	waitCond(t, host, func(s app.Snapshot) bool { return s.Opponent.IsFinished })
	if outcome, _ := host.Outcome(); outcome != app.OutcomeWin {
		t.Fatalf("expected host win, got %s", outcome)
	}

	for owner, store := range map[string]app.HistoryStore{"host": hostHistory, "guest": guestHistory} {
		entries, err := store.List(ctx)
		if err != nil {
			t.Fatalf("%s history: %v", owner, err)
		}
		if len(entries) != 1 || len(entries[0].Questions) != 2 {
			t.Fatalf("%s: expected one summary with 2 questions, got %+v", owner, entries)
		}
	}
}

func play(t *testing.T, m *app.Match, answers []string) {
	t.Helper()
	for _, a := range answers {
		waitCond(t, m, func(s app.Snapshot) bool { return !s.Local.IsWaiting })
		if _, err := m.Answer(context.Background(), a); err != nil {
			t.Fatalf("answer %q: %v", a, err)
		}
	}
}

func waitState(t *testing.T, m *app.Match, state app.State) {
	t.Helper()
	waitCond(t, m, func(s app.Snapshot) bool { return s.State == state })
}

func waitCond(t *testing.T, m *app.Match, cond func(app.Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond(m.Snapshot()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, snapshot %+v", m.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quizsnap", "POSTGRES_PASSWORD": "quizsnap", "POSTGRES_DB": "quizsnap"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quizsnap:quizsnap@%s:%s/quizsnap?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateHistory(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.MultipleChoice, Question: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		{ID: "q2", Type: domain.TrueFalse, Question: "Seven is odd.", Options: []string{"True", "False"}, CorrectAnswer: "True"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pginfra "quiz-session-service/internal/infra/postgres"
	"quiz-session-service/internal/infra/postgres/migrations"
	infraredis "quiz-session-service/internal/infra/redis"
)

func TestSessionLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	quizzes := infraredis.NewQuizRepository(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)
	codes := infraredis.NewCodeRegistry(redisClient, time.Hour)
	results := pginfra.NewResultsStore(pool)
	service := app.NewSessionService(memory.NewSessionStore(), codes, quizzes, results, app.Options{})

	info, err := service.Create(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	alice, err := service.Join(ctx, info.JoinCode, "u1", "Alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := service.Join(ctx, info.JoinCode, "u2", "Bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := service.Start(ctx, info.SessionID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := service.Submit(ctx, info.SessionID, bob.ParticipantID, "q1", domain.Response{OptionIDs: []string{"o2"}})
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if !result.Correct || result.Awarded <= 0 {
		t.Fatalf("expected a correct scored answer, got %+v", result)
	}
	if _, err := service.Submit(ctx, info.SessionID, alice.ParticipantID, "q1", domain.Response{OptionIDs: []string{"o1"}}); err != nil {
		t.Fatalf("submit alice: %v", err)
	}

	if err := service.Next(ctx, info.SessionID, "host-1"); err != nil {
		t.Fatalf("next: %v", err)
	}

	snap, err := service.Snapshot(info.SessionID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != domain.PhaseCompleted {
		t.Fatalf("expected completed session, got %s", snap.Phase)
	}
	if !snap.Leaderboard.Final || len(snap.Leaderboard.Entries) != 2 {
		t.Fatalf("expected final two-entry leaderboard, got %+v", snap.Leaderboard)
	}
	if snap.Leaderboard.Entries[0].ParticipantID != bob.ParticipantID {
		t.Fatalf("expected bob leading, got %+v", snap.Leaderboard.Entries)
	}

	// Completion released the join code back to the pool.
	if _, err := service.Join(ctx, info.JoinCode, "u3", "Carol"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected released code, got %v", err)
	}

	// The final standings landed in postgres.
	var archived string
	row := pool.QueryRow(ctx, "SELECT data FROM session_results WHERE session_id = $1", info.SessionID)
	if err := row.Scan(&archived); err != nil {
		t.Fatalf("read archived result: %v", err)
	}
	var final domain.FinalResult
	if err := json.Unmarshal([]byte(archived), &final); err != nil {
		t.Fatalf("decode archived result: %v", err)
	}
	if final.QuizID != "quiz-1" || len(final.Standings) != 2 || len(final.Submissions) != 2 {
		t.Fatalf("unexpected archived result: %+v", final)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Type:   domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				Points: 100,
			},
		},
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

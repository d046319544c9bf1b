package integration

import (
	"context"
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
	"github.com/uptrace/bun/migrate"
	"quiz-content-service/internal/app"
	"quiz-content-service/internal/domain"
	"quiz-content-service/internal/infra/postgres"
	pgmigrations "quiz-content-service/internal/infra/postgres/migrations"
	infraredis "quiz-content-service/internal/infra/redis"
	"quiz-content-service/internal/logger"
)

func TestQuizLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.OpenDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

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

	sub := redisClient.Subscribe(ctx, "quiz:notifications")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	store := postgres.NewStore(db)
	directory := postgres.NewDirectory(pool)
	log := logger.Discard()
	notifier := app.NewNotificationTrigger(
		directory,
		infraredis.NewNotificationPublisher(redisClient, "quiz:notifications"),
		5*time.Second,
		log,
		nil,
	)
	service := app.NewQuizService(app.Deps{
		Quizzes:    store,
		Histories:  store,
		Cache:      infraredis.NewQuizCache(redisClient, store, 5*time.Minute),
		Authorizer: infraredis.NewPermissionCache(redisClient, directory, 5*time.Minute),
		Attempts:   infraredis.NewAttemptGuard(redisClient, 30*time.Second),
		Notifier:   notifier,
		Logger:     log,
	})

	created, err := service.CreateQuiz(ctx, "owner", domain.QuizInput{
		CategoryID: "math",
		Title:      "Arithmetic",
		Time:       60,
		Questions: []domain.QuestionInput{
			{Text: "1 + 1?", Answers: []domain.AnswerInput{{Text: "2", IsTrueAnswer: true}, {Text: "3"}}},
			{Text: "2 + 2?", Answers: []domain.AnswerInput{{Text: "4", IsTrueAnswer: true}, {Text: "5"}}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.CreateQuiz(ctx, "learner", domain.QuizInput{CategoryID: "math", Title: "x", Time: 1}); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected learner denied create, got %v", err)
	}

	// Warm the cache so the edit below has to invalidate it.
	if _, err := service.TakeQuiz(ctx, "learner", created.QuizID); err != nil {
		t.Fatalf("take: %v", err)
	}

	kept := created.Questions[0]
	edit := domain.QuizInput{
		CategoryID: "math",
		Title:      "Arithmetic II",
		Time:       90,
		Questions: []domain.QuestionInput{
			{
				QuestionID: kept.QuestionID,
				Text:       kept.Text,
				Answers: []domain.AnswerInput{
					{AnswerID: kept.Answers[0].AnswerID, AnswerOrder: 0, Text: "2", IsTrueAnswer: true},
					{AnswerID: kept.Answers[1].AnswerID, AnswerOrder: 1, Text: "3"},
				},
			},
			{QuestionOrder: 1, Text: "3 + 3?", Answers: []domain.AnswerInput{{Text: "6", IsTrueAnswer: true}, {AnswerOrder: 1, Text: "7"}}},
		},
	}
	updated, err := service.ReconcileQuiz(ctx, "owner", created.QuizID, 1, edit)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if _, err := service.ReconcileQuiz(ctx, "owner", created.QuizID, 1, edit); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}

	var deleted int
	if err := db.NewSelect().
		ColumnExpr("count(*)").
		TableExpr("answers").
		Where("question_id = ?", created.Questions[1].QuestionID).
		Where("record_status = 0").
		Scan(ctx, &deleted); err != nil {
		t.Fatalf("count deleted answers: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected answers of removed question soft-deleted, got %d", deleted)
	}

	take, err := service.TakeQuiz(ctx, "learner", created.QuizID)
	if err != nil {
		t.Fatalf("take after edit: %v", err)
	}
	if take.Title != "Arithmetic II" || take.Questions[1].Text != "3 + 3?" {
		t.Fatalf("expected cache invalidated, got %+v", take)
	}

	right, wrong := 0, 1
	history, err := service.GradeQuiz(ctx, "learner", created.QuizID, domain.Submission{
		QuizVersion:   2,
		QuestionCount: 2,
		Duration:      20,
		Questions: []domain.SubmittedQuestion{
			{QuestionOrder: 0, SelectedAnswerOrder: &right},
			{QuestionOrder: 1, SelectedAnswerOrder: &wrong},
		},
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if history.Score != 50 || history.QuizVersion != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if _, err := service.GradeQuiz(ctx, "learner", created.QuizID, domain.Submission{QuestionCount: 2}); !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected already attempted, got %v", err)
	}

	stored, err := service.GetHistory(ctx, "owner", history.QuizHistoryID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(stored.Questions) != 2 || stored.Questions[1].SelectedAnswerOrder == nil || *stored.Questions[1].SelectedAnswerOrder != 1 {
		t.Fatalf("unexpected stored history: %+v", stored)
	}
	if stored.Learner == nil || stored.Learner.Name != "Lee Learner" {
		t.Fatalf("expected learner name resolved, got %+v", stored.Learner)
	}

	page, err := service.SearchQuizzes(ctx, "learner", domain.QuizFilter{CategoryID: "math"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.TotalItems != 1 || page.Items[0].QuestionCount != 2 || page.Items[0].Category == nil || page.Items[0].Category.Name != "Mathematics" {
		t.Fatalf("unexpected search page: %+v", page)
	}

	notifier.Wait()
	select {
	case msg := <-sub.Channel():
		var n infraredis.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		if len(n.Recipients) != 1 || n.Recipients[0] != "owner-device" {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("owner was not notified")
	}

	if err := service.DeleteQuiz(ctx, "owner", created.QuizID, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.GetQuiz(ctx, "owner", created.QuizID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted quiz hidden, got %v", err)
	}
	if _, err := service.GetHistory(ctx, "owner", history.QuizHistoryID); err != nil {
		t.Fatalf("history must survive quiz deletion: %v", err)
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

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	seed := []string{
		`INSERT INTO categories (category_id, name) VALUES ('math', 'Mathematics')`,
		`INSERT INTO users (user_id, name, role_id) VALUES ('owner', 'Olga Owner', 'author'), ('learner', 'Lee Learner', 'student')`,
		`INSERT INTO role_modules (role_id, module_name) VALUES
			('author', 'CreateQuiz'), ('author', 'EditQuiz'), ('author', 'DeleteQuiz'),
			('author', 'DetailQuiz'), ('author', 'DetailHistory'),
			('student', 'SearchQuiz'), ('student', 'TakeQuiz'), ('student', 'DetailHistory')`,
		`INSERT INTO fcm_tokens (user_id, token) VALUES ('owner', 'owner-device')`,
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
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

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-content-service/internal/domain"
	"quiz-content-service/internal/infra/memory"
)

func TestQuizCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{QuizLoader: seededStore(t)}
	cache := NewQuizCache(client, loader, time.Minute)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1:tree") {
		t.Fatalf("expected tree stored in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1:tree"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	quiz, err := cache.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(quiz.Questions) != 1 || len(quiz.Questions[0].Answers) != 2 || !quiz.Questions[0].Answers[1].IsTrueAnswer {
		t.Fatalf("unexpected cached tree: %+v", quiz)
	}
}

func TestQuizCacheInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuizLoader: seededStore(t)}
	cache := NewQuizCache(newClient(mr), loader, time.Minute)

	_, _ = cache.GetQuiz(context.Background(), "quiz-1")
	if err := cache.Invalidate(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:quiz-1:tree") {
		t.Fatalf("expected key removed")
	}
	_, _ = cache.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuizLoader: seededStore(t)}
	cache := NewQuizCache(newClient(mr), loader, time.Minute)

	_, _ = cache.GetQuiz(context.Background(), "quiz-1")
	mr.FastForward(2 * time.Minute)
	_, _ = cache.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.calls)
	}
}

func TestQuizCacheDoesNotCacheMisses(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewQuizCache(newClient(mr), memory.NewStore(), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected nothing cached, got %v", mr.Keys())
	}
}

func TestQuizCacheInvalidateFromOtherInstanceFencesInFlightLoad(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := newGatedLoader(sampleQuiz())
	reader := NewQuizCache(client, loader, time.Minute)
	editor := NewQuizCache(client, loader, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = reader.GetQuiz(context.Background(), "quiz-1")
	}()
	<-loader.started

	edited := sampleQuiz()
	edited.Title = "Edited"
	edited.Version = 2
	loader.set(edited)
	if err := editor.Invalidate(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(loader.release)
	<-done

	if mr.Exists("quiz:quiz-1:tree") {
		t.Fatalf("stale load must not be written back")
	}
	quiz, err := reader.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Title != "Edited" || quiz.Version != 2 {
		t.Fatalf("expected edited tree, got %q (version %d)", quiz.Title, quiz.Version)
	}
	if !mr.Exists("quiz:quiz-1:tree") {
		t.Fatalf("expected fresh load cached under the new generation")
	}
}

// gatedLoader blocks its first load until release is closed.
type gatedLoader struct {
	mu      sync.Mutex
	quiz    domain.Quiz
	calls   int
	started chan struct{}
	release chan struct{}
}

func newGatedLoader(quiz domain.Quiz) *gatedLoader {
	return &gatedLoader{quiz: quiz, started: make(chan struct{}), release: make(chan struct{})}
}

func (l *gatedLoader) set(quiz domain.Quiz) {
	l.mu.Lock()
	l.quiz = quiz
	l.mu.Unlock()
}

func (l *gatedLoader) LoadLiveTree(_ context.Context, _ string) (domain.Quiz, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	quiz := l.quiz.Clone()
	l.mu.Unlock()
	if first {
		close(l.started)
		<-l.release
	}
	return quiz, nil
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadLiveTree(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadLiveTree(ctx, quizID)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	if err := store.Create(context.Background(), sampleQuiz()); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		QuizID:     "quiz-1",
		UserID:     "owner",
		CategoryID: "math",
		Title:      "Arithmetic",
		Time:       60,
		Version:    1,
		Status:     domain.StatusActive,
		Questions: []domain.Question{
			{
				QuestionID: "q1",
				QuizID:     "quiz-1",
				Text:       "What is 2 + 2?",
				Status:     domain.StatusActive,
				Answers: []domain.Answer{
					{AnswerID: "a1", QuestionID: "q1", AnswerOrder: 0, Text: "3", Status: domain.StatusActive},
					{AnswerID: "a2", QuestionID: "q1", AnswerOrder: 1, Text: "4", IsTrueAnswer: true, Status: domain.StatusActive},
				},
			},
		},
	}
}

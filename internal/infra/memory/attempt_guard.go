package memory

import (
	"context"
	"sync"

	"quiz-content-service/internal/domain"
)

// AttemptGuard tracks in-flight gradings per (quiz, learner) in process memory.
type AttemptGuard struct {
	mu       sync.Mutex
	inFlight map[string]string
	newToken func() string
}

func NewAttemptGuard() *AttemptGuard {
	return &AttemptGuard{inFlight: make(map[string]string), newToken: domain.NewID}
}

func (g *AttemptGuard) Acquire(_ context.Context, quizID, userID string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := attemptKey(quizID, userID)
	if _, ok := g.inFlight[key]; ok {
		return "", false, nil
	}
	token := g.newToken()
	g.inFlight[key] = token
	return token, true, nil
}

// Release is a no-op when token no longer owns the pair.
func (g *AttemptGuard) Release(_ context.Context, quizID, userID, token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := attemptKey(quizID, userID)
	if g.inFlight[key] == token {
		delete(g.inFlight, key)
	}
}

// Held reports whether the pair is currently being graded.
func (g *AttemptGuard) Held(quizID, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[attemptKey(quizID, userID)]
	return ok
}

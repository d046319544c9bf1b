package app

import (
	"context"

	"quiz-content-service/internal/domain"
)

// QuizStore persists the live content tree.
type QuizStore interface {
	// LoadLiveTree returns the Active-filtered tree ordered by *Order, or domain.ErrNotFound.
	LoadLiveTree(ctx context.Context, quizID string) (domain.Quiz, error)
	// LoadLiveTreeForOwner is LoadLiveTree that fails with domain.ErrAccessDenied for non-owners.
	LoadLiveTreeForOwner(ctx context.Context, quizID, ownerID string) (domain.Quiz, error)
	Create(ctx context.Context, quiz domain.Quiz) error
	// Persist applies cs atomically if the stored version equals expectedVersion and
	// returns the advanced version. A stale version yields domain.ErrConcurrencyConflict.
	Persist(ctx context.Context, cs domain.ChangeSet, expectedVersion int64) (int64, error)
	Search(ctx context.Context, filter domain.QuizFilter) (domain.Page[domain.Quiz], error)
}

// HistoryStore persists graded attempts. Histories are write-once.
type HistoryStore interface {
	HasAttempt(ctx context.Context, quizID, userID string) (bool, error)
	// SaveHistory writes the whole tree in one transaction. A second history for the
	// same (quiz, user) yields domain.ErrAlreadyAttempted.
	SaveHistory(ctx context.Context, history domain.QuizHistory) error
	GetHistory(ctx context.Context, historyID string) (domain.QuizHistory, error)
	ListHistories(ctx context.Context, quizID string, filter domain.HistoryFilter) (domain.Page[domain.QuizHistory], error)
}

// QuizLoader is the read side a cache falls back to.
type QuizLoader interface {
	LoadLiveTree(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache serves the learner view of live trees.
type QuizCache interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string) error
}

// Authorizer answers whether a user may use a module.
type Authorizer interface {
	IsAllowed(ctx context.Context, userID, module string) (bool, error)
}

// AttemptGuard serializes grading of the same (quiz, learner) pair.
type AttemptGuard interface {
	// Acquire reports false when another grading of the pair is in flight.
	// The token identifies this holder to Release.
	Acquire(ctx context.Context, quizID, userID string) (token string, ok bool, err error)
	// Release frees the pair only while it is still held under token.
	Release(ctx context.Context, quizID, userID, token string)
}

// RecipientDirectory resolves the push recipients registered by a user.
type RecipientDirectory interface {
	RecipientTokens(ctx context.Context, userID string) ([]string, error)
}

// Dispatcher delivers a notification to recipients.
type Dispatcher interface {
	Notify(ctx context.Context, recipients []string, title, body string) error
}

// AllowAll is an Authorizer that grants every module.
type AllowAll struct{}

func (AllowAll) IsAllowed(context.Context, string, string) (bool, error) { return true, nil }

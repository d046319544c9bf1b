package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"quiz-content-service/internal/domain"
	"quiz-content-service/internal/logger"
	"quiz-content-service/internal/metrics"
)

// Deps wires a QuizService. Quizzes and Histories are required; everything else
// has a working default.
type Deps struct {
	Quizzes    QuizStore
	Histories  HistoryStore
	Cache      QuizCache
	Authorizer Authorizer
	Attempts   AttemptGuard
	Notifier   *NotificationTrigger
	Validator  *domain.Validator
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics

	// AllowPartialSubmission grades questions missing from a submission as unanswered.
	AllowPartialSubmission bool

	Now   func() time.Time
	NewID func() string
}

// QuizService contains the quiz content and grading use cases. Every operation
// takes the acting user explicitly.
type QuizService struct {
	quizzes    QuizStore
	histories  HistoryStore
	cache      QuizCache
	authorizer Authorizer
	attempts   AttemptGuard
	notifier   *NotificationTrigger
	validator  *domain.Validator
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
	grader     Grader
	now        func() time.Time
	newID      func() string
}

func NewQuizService(deps Deps) *QuizService {
	s := &QuizService{
		quizzes:    deps.Quizzes,
		histories:  deps.Histories,
		cache:      deps.Cache,
		authorizer: deps.Authorizer,
		attempts:   deps.Attempts,
		notifier:   deps.Notifier,
		validator:  deps.Validator,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
		newID:      deps.NewID,
	}
	if s.authorizer == nil {
		s.authorizer = AllowAll{}
	}
	if s.validator == nil {
		s.validator = domain.NewValidator()
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = domain.NewID
	}
	s.grader = Grader{NewID: s.newID, AllowPartialSubmission: deps.AllowPartialSubmission}
	return s
}

// CreateQuiz stores a new tree owned by ownerID with dense orders.
func (s *QuizService) CreateQuiz(ctx context.Context, ownerID string, in domain.QuizInput) (domain.Quiz, error) {
	if err := s.authorize(ctx, ownerID, ModuleCreateQuiz); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.validator.Validate(in); err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.NewQuizTree(in, ownerID, s.now(), s.newID)
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"quiz_id": quiz.QuizID, "owner_id": ownerID}).Info("quiz created")
	return quiz, nil
}

// GetQuiz returns the live tree including answer keys.
func (s *QuizService) GetQuiz(ctx context.Context, userID, quizID string) (domain.Quiz, error) {
	if err := s.authorize(ctx, userID, ModuleDetailQuiz); err != nil {
		return domain.Quiz{}, err
	}
	return s.quizzes.LoadLiveTree(ctx, quizID)
}

// TakeQuiz returns the learner view of the live tree, without answer keys.
func (s *QuizService) TakeQuiz(ctx context.Context, userID, quizID string) (domain.TakeQuiz, error) {
	if err := s.authorize(ctx, userID, ModuleTakeQuiz); err != nil {
		return domain.TakeQuiz{}, err
	}
	var (
		quiz domain.Quiz
		err  error
	)
	if s.cache != nil {
		quiz, err = s.cache.GetQuiz(ctx, quizID)
	} else {
		quiz, err = s.quizzes.LoadLiveTree(ctx, quizID)
	}
	if err != nil {
		return domain.TakeQuiz{}, err
	}
	return domain.NewTakeQuiz(quiz), nil
}

// ReconcileQuiz applies the owner's desired tree on top of the live tree loaded at
// expectedVersion. Exactly one of two concurrent reconciliations from the same
// version succeeds; the other gets domain.ErrConcurrencyConflict.
func (s *QuizService) ReconcileQuiz(ctx context.Context, ownerID, quizID string, expectedVersion int64, desired domain.QuizInput) (quiz domain.Quiz, err error) {
	defer s.metrics.ObserveSince("reconcile", time.Now())
	defer func() { s.metrics.Reconciles.WithLabelValues(outcome(err)).Inc() }()

	if err := s.authorize(ctx, ownerID, ModuleEditQuiz); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.validator.Validate(desired); err != nil {
		return domain.Quiz{}, err
	}

	live, err := s.quizzes.LoadLiveTreeForOwner(ctx, quizID, ownerID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if live.Version != expectedVersion {
		return domain.Quiz{}, domain.ErrConcurrencyConflict
	}

	cs, err := Reconcile(live, desired, ownerID, s.now(), s.newID)
	if err != nil {
		return domain.Quiz{}, err
	}

	version, err := s.quizzes.Persist(ctx, cs, expectedVersion)
	if err != nil {
		if isDomainError(err) {
			return domain.Quiz{}, err
		}
		return domain.Quiz{}, fmt.Errorf("persist quiz %s: %w", quizID, err)
	}
	s.invalidate(ctx, quizID)

	updated := cs.Quiz
	updated.Version = version
	s.logger.WithFields(logrus.Fields{
		"quiz_id":           quizID,
		"owner_id":          ownerID,
		"version":           version,
		"questions_added":   len(cs.InsertedQuestions),
		"questions_removed": len(cs.DeletedQuestions),
		"answers_added":     len(cs.InsertedAnswers),
		"answers_removed":   len(cs.DeletedAnswers),
	}).Info("quiz reconciled")
	return updated, nil
}

// DeleteQuiz soft-deletes the quiz and its live descendants.
func (s *QuizService) DeleteQuiz(ctx context.Context, ownerID, quizID string, expectedVersion int64) error {
	if err := s.authorize(ctx, ownerID, ModuleDeleteQuiz); err != nil {
		return err
	}
	live, err := s.quizzes.LoadLiveTreeForOwner(ctx, quizID, ownerID)
	if err != nil {
		return err
	}
	if live.Version != expectedVersion {
		return domain.ErrConcurrencyConflict
	}
	if _, err := s.quizzes.Persist(ctx, domain.DeleteQuizChangeSet(live, ownerID, s.now()), expectedVersion); err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("delete quiz %s: %w", quizID, err)
	}
	s.invalidate(ctx, quizID)
	s.logger.WithFields(logrus.Fields{"quiz_id": quizID, "owner_id": ownerID}).Info("quiz deleted")
	return nil
}

// GradeQuiz scores the learner's submission against the tree live right now and
// stores the result as an immutable history. The owner is notified after commit.
func (s *QuizService) GradeQuiz(ctx context.Context, learnerID, quizID string, sub domain.Submission) (history domain.QuizHistory, err error) {
	defer s.metrics.ObserveSince("grade", time.Now())
	defer func() { s.metrics.Grades.WithLabelValues(outcome(err)).Inc() }()

	if err := s.authorize(ctx, learnerID, ModuleTakeQuiz); err != nil {
		return domain.QuizHistory{}, err
	}
	if err := s.validator.Validate(sub); err != nil {
		return domain.QuizHistory{}, err
	}

	if s.attempts != nil {
		token, acquired, err := s.attempts.Acquire(ctx, quizID, learnerID)
		if err != nil {
			return domain.QuizHistory{}, fmt.Errorf("acquire attempt: %w", err)
		}
		if !acquired {
			return domain.QuizHistory{}, domain.ErrAlreadyAttempted
		}
		defer s.attempts.Release(ctx, quizID, learnerID, token)
	}

	live, err := s.quizzes.LoadLiveTree(ctx, quizID)
	if err != nil {
		return domain.QuizHistory{}, err
	}
	if len(live.Questions) == 0 {
		return domain.QuizHistory{}, domain.ErrNotFound
	}

	attempted, err := s.histories.HasAttempt(ctx, quizID, learnerID)
	if err != nil {
		return domain.QuizHistory{}, fmt.Errorf("check attempt: %w", err)
	}
	if attempted {
		return domain.QuizHistory{}, domain.ErrAlreadyAttempted
	}

	log := s.logger.WithFields(logrus.Fields{"quiz_id": quizID, "learner_id": learnerID})
	if sub.QuizVersion != 0 && sub.QuizVersion != live.Version {
		log.WithFields(logrus.Fields{
			"submitted_version": sub.QuizVersion,
			"live_version":      live.Version,
		}).Info("grading against a newer quiz version than the learner saw")
	}

	history, err = s.grader.Grade(live, learnerID, sub, s.now())
	if err != nil {
		return domain.QuizHistory{}, err
	}
	if err := s.histories.SaveHistory(ctx, history); err != nil {
		if isDomainError(err) {
			return domain.QuizHistory{}, err
		}
		return domain.QuizHistory{}, fmt.Errorf("save history: %w", err)
	}

	s.metrics.Scores.Observe(float64(history.Score))
	log.WithFields(logrus.Fields{
		"quiz_history_id": history.QuizHistoryID,
		"score":           history.Score,
	}).Info("quiz graded")

	if s.notifier != nil {
		s.notifier.QuizAttempted(live, history)
	}
	return history, nil
}

// SearchQuizzes lists live quizzes.
func (s *QuizService) SearchQuizzes(ctx context.Context, userID string, filter domain.QuizFilter) (domain.Page[domain.Quiz], error) {
	if err := s.authorize(ctx, userID, ModuleSearchQuiz); err != nil {
		return domain.Page[domain.Quiz]{}, err
	}
	return s.quizzes.Search(ctx, filter.Normalize())
}

// ListHistories lists graded attempts of a quiz without their question trees.
func (s *QuizService) ListHistories(ctx context.Context, userID, quizID string, filter domain.HistoryFilter) (domain.Page[domain.QuizHistory], error) {
	if err := s.authorize(ctx, userID, ModuleDetailHistory); err != nil {
		return domain.Page[domain.QuizHistory]{}, err
	}
	return s.histories.ListHistories(ctx, quizID, filter.Normalize())
}

// GetHistory returns one graded attempt with its question tree.
func (s *QuizService) GetHistory(ctx context.Context, userID, historyID string) (domain.QuizHistory, error) {
	if err := s.authorize(ctx, userID, ModuleDetailHistory); err != nil {
		return domain.QuizHistory{}, err
	}
	return s.histories.GetHistory(ctx, historyID)
}

func (s *QuizService) authorize(ctx context.Context, userID, module string) error {
	if userID == "" {
		return domain.ErrAccessDenied
	}
	allowed, err := s.authorizer.IsAllowed(ctx, userID, module)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", module, err)
	}
	if !allowed {
		return domain.ErrAccessDenied
	}
	return nil
}

// invalidate drops the cached learner view; a stale entry only lives until its TTL.
func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, quizID); err != nil {
		s.logger.WithError(err).WithField("quiz_id", quizID).Warn("invalidate quiz cache")
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAccessDenied) ||
		errors.Is(err, domain.ErrConcurrencyConflict) ||
		errors.Is(err, domain.ErrAlreadyAttempted) ||
		errors.Is(err, domain.ErrValidation)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrAlreadyAttempted):
		return "already_attempted"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

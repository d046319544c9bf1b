package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"quiz-content-service/internal/domain"
	"quiz-content-service/internal/metrics"
)

// NotificationTrigger tells quiz owners about graded attempts. Dispatch happens
// after commit on a detached goroutine; failures are logged and dropped.
type NotificationTrigger struct {
	directory  RecipientDirectory
	dispatcher Dispatcher
	timeout    time.Duration
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics

	wg sync.WaitGroup
}

func NewNotificationTrigger(directory RecipientDirectory, dispatcher Dispatcher, timeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *NotificationTrigger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationTrigger{
		directory:  directory,
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger,
		metrics:    m,
	}
}

// QuizAttempted schedules the owner notification and returns immediately.
func (t *NotificationTrigger) QuizAttempted(quiz domain.Quiz, history domain.QuizHistory) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.record("panic")
				t.logger.WithField("quiz_id", quiz.QuizID).Errorf("notification dispatch panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.dispatch(ctx, quiz, history)
	}()
}

// Wait blocks until every scheduled notification has finished.
func (t *NotificationTrigger) Wait() {
	t.wg.Wait()
}

func (t *NotificationTrigger) dispatch(ctx context.Context, quiz domain.Quiz, history domain.QuizHistory) {
	log := t.logger.WithFields(logrus.Fields{
		"quiz_id":         quiz.QuizID,
		"owner_id":        quiz.UserID,
		"quiz_history_id": history.QuizHistoryID,
	})

	tokens, err := t.directory.RecipientTokens(ctx, quiz.UserID)
	if err != nil {
		t.record("lookup_failed")
		log.WithError(err).Warn("resolve notification recipients")
		return
	}
	if len(tokens) == 0 {
		t.record("no_recipients")
		return
	}

	title := "Quiz attempted"
	body := fmt.Sprintf("A learner finished %q with a score of %d", history.Title, history.Score)
	if err := t.dispatcher.Notify(ctx, tokens, title, body); err != nil {
		t.record("failed")
		log.WithError(err).Warn("dispatch quiz attempted notification")
		return
	}
	t.record("sent")
	log.WithField("recipients", len(tokens)).Debug("quiz attempted notification sent")
}

func (t *NotificationTrigger) record(outcome string) {
	if t.metrics != nil {
		t.metrics.Notifications.WithLabelValues(outcome).Inc()
	}
}

// FanoutDispatcher sends through every dispatcher concurrently. One failing
// transport does not stop the others; the first error is returned.
type FanoutDispatcher []Dispatcher

func (f FanoutDispatcher) Notify(ctx context.Context, recipients []string, title, body string) error {
	var g errgroup.Group
	for _, d := range f {
		d := d
		g.Go(func() error {
			return d.Notify(ctx, recipients, title, body)
		})
	}
	return g.Wait()
}

package app

import (
	"sort"
	"time"

	"quiz-content-service/internal/domain"
)

// Grader turns a live tree and a learner submission into a scored history tree.
type Grader struct {
	NewID func() string
	// AllowPartialSubmission treats questions missing from the submission as
	// unanswered instead of rejecting the submission.
	AllowPartialSubmission bool
}

// Grade scores sub against live. The returned history shares no identity or
// slice with live, so later edits to the quiz cannot reach it.
func (g Grader) Grade(live domain.Quiz, learnerID string, sub domain.Submission, now time.Time) (domain.QuizHistory, error) {
	if sub.QuestionCount <= 0 {
		return domain.QuizHistory{}, domain.Validationf("questionCount must be greater than 0")
	}
	if len(live.Questions) == 0 {
		return domain.QuizHistory{}, domain.ErrNotFound
	}

	newID := g.NewID
	if newID == nil {
		newID = domain.NewID
	}
	history := snapshotQuiz(live, learnerID, now, newID)

	trueAnswers := 0
	for i := range history.Questions {
		question := &history.Questions[i]
		entry, ok := findSubmitted(sub.Questions, question.QuestionOrder)
		if !ok {
			if !g.AllowPartialSubmission {
				return domain.QuizHistory{}, domain.
					Validationf("question order %d is missing from the submission", question.QuestionOrder).
					Wrap(domain.ErrSubmissionMismatch)
			}
			continue
		}
		if entry.SelectedAnswerOrder == nil {
			continue
		}
		for _, answer := range question.Answers {
			if answer.AnswerOrder != *entry.SelectedAnswerOrder {
				continue
			}
			selected := answer.AnswerOrder
			question.SelectedAnswerOrder = &selected
			question.IsAnswerTrue = answer.IsTrueAnswer
			break
		}
		if question.IsAnswerTrue {
			trueAnswers++
		}
	}

	if trueAnswers > sub.QuestionCount {
		return domain.QuizHistory{}, domain.Validationf(
			"questionCount %d is less than the %d correct answers", sub.QuestionCount, trueAnswers)
	}

	history.QuestionCount = sub.QuestionCount
	history.Duration = sub.Duration
	history.TrueAnswers = trueAnswers
	history.WrongAnswers = sub.QuestionCount - trueAnswers
	history.Score = Score(trueAnswers, sub.QuestionCount)
	return history, nil
}

// Score is the rounded percentage of true answers, ties away from zero.
// Integer arithmetic keeps exact halves such as 23/40 from rounding down.
func Score(trueAnswers, questionCount int) int {
	if questionCount <= 0 || trueAnswers < 0 {
		return 0
	}
	return (200*trueAnswers + questionCount) / (2 * questionCount)
}

func findSubmitted(entries []domain.SubmittedQuestion, order int) (domain.SubmittedQuestion, bool) {
	for _, e := range entries {
		if e.QuestionOrder == order {
			return e, true
		}
	}
	return domain.SubmittedQuestion{}, false
}

// snapshotQuiz deep-copies the live tree into freshly identified history rows.
func snapshotQuiz(live domain.Quiz, learnerID string, now time.Time, newID func() string) domain.QuizHistory {
	history := domain.QuizHistory{
		QuizHistoryID: newID(),
		QuizID:        live.QuizID,
		QuizVersion:   live.Version,
		UserID:        learnerID,
		Title:         live.Title,
		ImageURL:      live.ImageURL,
		Time:          live.Time,
		CreatedBy:     learnerID,
		CreatedTime:   now,
		Questions:     make([]domain.QuestionHistory, 0, len(live.Questions)),
	}
	for _, q := range live.Questions {
		qh := domain.QuestionHistory{
			QuestionHistoryID: newID(),
			QuizHistoryID:     history.QuizHistoryID,
			QuestionOrder:     q.QuestionOrder,
			Text:              q.Text,
			ImageURL:          q.ImageURL,
			Answers:           make([]domain.AnswerHistory, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			qh.Answers = append(qh.Answers, domain.AnswerHistory{
				AnswerHistoryID:   newID(),
				QuestionHistoryID: qh.QuestionHistoryID,
				AnswerOrder:       a.AnswerOrder,
				Text:              a.Text,
				ImageURL:          a.ImageURL,
				IsTrueAnswer:      a.IsTrueAnswer,
			})
		}
		sort.SliceStable(qh.Answers, func(i, j int) bool {
			return qh.Answers[i].AnswerOrder < qh.Answers[j].AnswerOrder
		})
		history.Questions = append(history.Questions, qh)
	}
	sort.SliceStable(history.Questions, func(i, j int) bool {
		return history.Questions[i].QuestionOrder < history.Questions[j].QuestionOrder
	})
	return history
}

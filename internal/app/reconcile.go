package app

import (
	"sort"
	"time"

	"quiz-content-service/internal/domain"
)

// Reconcile diffs the owner's desired tree against the live tree, level by level.
// Incoming nodes whose ID matches a live sibling are updated in place, unmatched
// incoming nodes get a fresh identity, and live nodes missing from the input are
// soft-deleted together with their live descendants. Orders are written verbatim.
func Reconcile(live domain.Quiz, desired domain.QuizInput, actor string, now time.Time, newID func() string) (domain.ChangeSet, error) {
	r := reconciler{actor: actor, now: now, newID: newID}
	return r.run(live, desired)
}

type reconciler struct {
	actor string
	now   time.Time
	newID func() string

	cs domain.ChangeSet
	// answerOwner maps every live answer ID to its live question ID.
	answerOwner map[string]string
	// removedQuestions holds live question IDs absent from the input.
	removedQuestions map[string]bool
}

func (r *reconciler) run(live domain.Quiz, desired domain.QuizInput) (domain.ChangeSet, error) {
	root := live.Clone()
	root.CategoryID = desired.CategoryID
	root.Title = desired.Title
	root.ImageURL = desired.ImageURL
	root.Time = desired.Time
	root.Audit = root.Audit.Touch(r.actor, r.now)

	liveQuestions := make(map[string]domain.Question, len(live.Questions))
	r.answerOwner = make(map[string]string)
	for _, q := range live.Questions {
		liveQuestions[q.QuestionID] = q
		for _, a := range q.Answers {
			r.answerOwner[a.AnswerID] = q.QuestionID
		}
	}

	seen := make(map[string]bool, len(desired.Questions))
	for _, qin := range desired.Questions {
		if qin.QuestionID == "" {
			continue
		}
		if seen[qin.QuestionID] {
			return domain.ChangeSet{}, domain.Validationf("question %s appears more than once", qin.QuestionID)
		}
		seen[qin.QuestionID] = true
	}

	r.removedQuestions = make(map[string]bool)
	for _, q := range live.Questions {
		if !seen[q.QuestionID] {
			r.removedQuestions[q.QuestionID] = true
		}
	}

	result := make([]domain.Question, 0, len(desired.Questions))
	for _, qin := range desired.Questions {
		var (
			question domain.Question
			err      error
		)
		if existing, ok := liveQuestions[qin.QuestionID]; ok && qin.QuestionID != "" {
			question, err = r.updateQuestion(existing, qin)
		} else {
			question, err = r.insertQuestion(root.QuizID, qin)
		}
		if err != nil {
			return domain.ChangeSet{}, err
		}
		result = append(result, question)
	}

	for _, q := range live.Questions {
		if !r.removedQuestions[q.QuestionID] {
			continue
		}
		r.cs.DeletedQuestions = append(r.cs.DeletedQuestions, q.SoftDeleted(r.actor, r.now))
		for _, a := range q.Answers {
			r.cs.DeletedAnswers = append(r.cs.DeletedAnswers, a.SoftDeleted(r.actor, r.now))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].QuestionOrder < result[j].QuestionOrder
	})
	root.Questions = result
	root.QuestionCount = len(result)
	r.cs.Quiz = root
	return r.cs, nil
}

func (r *reconciler) updateQuestion(existing domain.Question, in domain.QuestionInput) (domain.Question, error) {
	updated := existing
	updated.Text = in.Text
	updated.ImageURL = in.ImageURL
	updated.QuestionOrder = in.QuestionOrder
	updated.Audit = existing.Audit.Touch(r.actor, r.now)

	row := updated
	row.Answers = nil
	r.cs.UpdatedQuestions = append(r.cs.UpdatedQuestions, row)

	answers, err := r.reconcileAnswers(existing, in.Answers)
	if err != nil {
		return domain.Question{}, err
	}
	updated.Answers = answers
	return updated, nil
}

func (r *reconciler) insertQuestion(quizID string, in domain.QuestionInput) (domain.Question, error) {
	question := domain.NewQuestion(quizID, in, r.actor, r.now, r.newID)

	row := question
	row.Answers = nil
	r.cs.InsertedQuestions = append(r.cs.InsertedQuestions, row)

	for _, ain := range in.Answers {
		if err := r.checkForeignAnswer(question.QuestionID, ain.AnswerID); err != nil {
			return domain.Question{}, err
		}
		answer := domain.NewAnswer(question.QuestionID, ain, r.actor, r.now, r.newID)
		r.cs.InsertedAnswers = append(r.cs.InsertedAnswers, answer)
		question.Answers = append(question.Answers, answer)
	}
	sortAnswers(question.Answers)
	return question, nil
}

func (r *reconciler) reconcileAnswers(parent domain.Question, incoming []domain.AnswerInput) ([]domain.Answer, error) {
	liveAnswers := make(map[string]domain.Answer, len(parent.Answers))
	for _, a := range parent.Answers {
		liveAnswers[a.AnswerID] = a
	}

	retained := make(map[string]bool, len(incoming))
	result := make([]domain.Answer, 0, len(incoming))
	for _, ain := range incoming {
		if existing, ok := liveAnswers[ain.AnswerID]; ok && ain.AnswerID != "" {
			if retained[ain.AnswerID] {
				return nil, domain.Validationf("answer %s appears more than once", ain.AnswerID)
			}
			retained[ain.AnswerID] = true

			updated := existing
			updated.Text = ain.Text
			updated.ImageURL = ain.ImageURL
			updated.AnswerOrder = ain.AnswerOrder
			updated.IsTrueAnswer = ain.IsTrueAnswer
			updated.Audit = existing.Audit.Touch(r.actor, r.now)
			r.cs.UpdatedAnswers = append(r.cs.UpdatedAnswers, updated)
			result = append(result, updated)
			continue
		}

		if err := r.checkForeignAnswer(parent.QuestionID, ain.AnswerID); err != nil {
			return nil, err
		}
		answer := domain.NewAnswer(parent.QuestionID, ain, r.actor, r.now, r.newID)
		r.cs.InsertedAnswers = append(r.cs.InsertedAnswers, answer)
		result = append(result, answer)
	}

	for _, a := range parent.Answers {
		if !retained[a.AnswerID] {
			r.cs.DeletedAnswers = append(r.cs.DeletedAnswers, a.SoftDeleted(r.actor, r.now))
		}
	}

	sortAnswers(result)
	return result, nil
}

// checkForeignAnswer rejects an incoming answer ID that belongs to a live answer of
// another question. Moving answers between questions is not supported.
func (r *reconciler) checkForeignAnswer(questionID, answerID string) error {
	if answerID == "" {
		return nil
	}
	owner, ok := r.answerOwner[answerID]
	if !ok || owner == questionID {
		return nil
	}
	if r.removedQuestions[owner] {
		return domain.Validationf("answer %s belongs to question %s which is removed in the same request", answerID, owner)
	}
	return domain.Validationf("answer %s belongs to question %s", answerID, owner)
}

func sortAnswers(answers []domain.Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].AnswerOrder < answers[j].AnswerOrder
	})
}

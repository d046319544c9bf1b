package domain

import "time"

// ChangeSet is the row-level outcome of diffing a desired tree against the live tree.
// Quiz carries the updated root and, in Questions, the resulting live tree.
// A root with StatusDeleted removes the whole quiz.
type ChangeSet struct {
	Quiz Quiz

	InsertedQuestions []Question
	UpdatedQuestions  []Question
	DeletedQuestions  []Question

	InsertedAnswers []Answer
	UpdatedAnswers  []Answer
	DeletedAnswers  []Answer
}

// DeleteQuizChangeSet soft-deletes a live quiz and every live descendant.
func DeleteQuizChangeSet(live Quiz, actor string, now time.Time) ChangeSet {
	root := live.Clone()
	root.Status = StatusDeleted
	root.Audit = root.Audit.MarkDeleted(actor, now)

	cs := ChangeSet{}
	for _, q := range root.Questions {
		cs.DeletedQuestions = append(cs.DeletedQuestions, q.SoftDeleted(actor, now))
		for _, a := range q.Answers {
			cs.DeletedAnswers = append(cs.DeletedAnswers, a.SoftDeleted(actor, now))
		}
	}
	root.Questions = nil
	root.QuestionCount = 0
	cs.Quiz = root
	return cs
}

// SoftDeleted returns the deleted form of q. Answers are not carried.
func (q Question) SoftDeleted(actor string, now time.Time) Question {
	q.Status = StatusDeleted
	q.Audit = q.Audit.MarkDeleted(actor, now)
	q.Answers = nil
	return q
}

// SoftDeleted returns the deleted form of a.
func (a Answer) SoftDeleted(actor string, now time.Time) Answer {
	a.Status = StatusDeleted
	a.Audit = a.Audit.MarkDeleted(actor, now)
	return a
}

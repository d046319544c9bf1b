package domain

import "time"

// NewQuizTree builds a brand new live tree from owner input.
// Orders are assigned densely from the input position, ignoring submitted values.
func NewQuizTree(in QuizInput, ownerID string, now time.Time, newID func() string) Quiz {
	quiz := Quiz{
		QuizID:     newID(),
		UserID:     ownerID,
		CategoryID: in.CategoryID,
		Title:      in.Title,
		ImageURL:   in.ImageURL,
		Time:       in.Time,
		Version:    1,
		Status:     StatusActive,
		Audit:      NewAudit(ownerID, now),
		Questions:  make([]Question, 0, len(in.Questions)),
	}
	for i, qin := range in.Questions {
		qin.QuestionOrder = i
		question := NewQuestion(quiz.QuizID, qin, ownerID, now, newID)
		for j, ain := range qin.Answers {
			ain.AnswerOrder = j
			question.Answers = append(question.Answers, NewAnswer(question.QuestionID, ain, ownerID, now, newID))
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	quiz.QuestionCount = len(quiz.Questions)
	return quiz
}

// NewQuestion creates a live question row under quizID. Answers are left to the caller.
func NewQuestion(quizID string, in QuestionInput, actor string, now time.Time, newID func() string) Question {
	return Question{
		QuestionID:    newID(),
		QuizID:        quizID,
		QuestionOrder: in.QuestionOrder,
		Text:          in.Text,
		ImageURL:      in.ImageURL,
		Answers:       make([]Answer, 0, len(in.Answers)),
		Status:        StatusActive,
		Audit:         NewAudit(actor, now),
	}
}

// NewAnswer creates a live answer row under questionID.
func NewAnswer(questionID string, in AnswerInput, actor string, now time.Time, newID func() string) Answer {
	return Answer{
		AnswerID:     newID(),
		QuestionID:   questionID,
		AnswerOrder:  in.AnswerOrder,
		Text:         in.Text,
		ImageURL:     in.ImageURL,
		IsTrueAnswer: in.IsTrueAnswer,
		Status:       StatusActive,
		Audit:        NewAudit(actor, now),
	}
}

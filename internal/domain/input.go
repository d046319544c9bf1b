package domain

// AnswerInput is an owner-submitted answer. AnswerID is empty for new answers.
type AnswerInput struct {
	AnswerID     string `json:"answerId"`
	AnswerOrder  int    `json:"answerOrder" validate:"min=0"`
	Text         string `json:"text"`
	ImageURL     string `json:"imageUrl"`
	IsTrueAnswer bool   `json:"isTrueAnswer"`
}

// QuestionInput is an owner-submitted question. QuestionID is empty for new questions.
type QuestionInput struct {
	QuestionID    string        `json:"questionId"`
	QuestionOrder int           `json:"questionOrder" validate:"min=0"`
	Text          string        `json:"text" validate:"required"`
	ImageURL      string        `json:"imageUrl"`
	Answers       []AnswerInput `json:"answers" validate:"dive"`
}

// QuizInput is the desired state of a quiz tree as sent by its owner.
type QuizInput struct {
	CategoryID string          `json:"categoryId" validate:"required"`
	Title      string          `json:"title" validate:"required"`
	ImageURL   string          `json:"imageUrl"`
	Time       int             `json:"time" validate:"gt=0"`
	Questions  []QuestionInput `json:"questions" validate:"dive"`
}

// SubmittedQuestion is a learner's pick for one question, addressed by order.
type SubmittedQuestion struct {
	QuestionOrder       int  `json:"questionOrder" validate:"min=0"`
	SelectedAnswerOrder *int `json:"selectedAnswerOrder"`
}

// Submission is a learner's complete answer set for one attempt.
type Submission struct {
	QuizVersion   int64               `json:"quizVersion"`
	Questions     []SubmittedQuestion `json:"questions" validate:"dive"`
	QuestionCount int                 `json:"questionCount" validate:"gt=0"`
	Duration      int                 `json:"duration" validate:"min=0"`
}

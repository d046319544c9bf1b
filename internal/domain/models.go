package domain

import "time"

// RecordStatus marks whether a row belongs to the live tree.
type RecordStatus int

const (
	StatusDeleted RecordStatus = 0
	StatusActive  RecordStatus = 1
)

// CategoryRef is the denormalized category shown alongside a quiz.
type CategoryRef struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
}

// UserRef is the denormalized owner or learner shown alongside a quiz or history.
type UserRef struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Answer is one selectable option of a question.
type Answer struct {
	AnswerID     string       `json:"answerId"`
	QuestionID   string       `json:"questionId"`
	AnswerOrder  int          `json:"answerOrder"`
	Text         string       `json:"text,omitempty"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	IsTrueAnswer bool         `json:"isTrueAnswer"`
	Status       RecordStatus `json:"-"`
	Audit        Audit        `json:"-"`
}

// Question is an ordered prompt with its answers.
type Question struct {
	QuestionID    string       `json:"questionId"`
	QuizID        string       `json:"quizId"`
	QuestionOrder int          `json:"questionOrder"`
	Text          string       `json:"text"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	Answers       []Answer     `json:"answers"`
	Status        RecordStatus `json:"-"`
	Audit         Audit        `json:"-"`
}

// Quiz is the root of the content tree. Version advances on every successful write.
type Quiz struct {
	QuizID        string       `json:"quizId"`
	UserID        string       `json:"userId"`
	CategoryID    string       `json:"categoryId"`
	Title         string       `json:"title"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	Time          int          `json:"time"`
	Version       int64        `json:"version"`
	Questions     []Question   `json:"questions"`
	QuestionCount int          `json:"questionCount"`
	Category      *CategoryRef `json:"category,omitempty"`
	Owner         *UserRef     `json:"user,omitempty"`
	Status        RecordStatus `json:"-"`
	Audit         Audit        `json:"-"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (q Quiz) Clone() Quiz {
	out := q
	if q.Category != nil {
		c := *q.Category
		out.Category = &c
	}
	if q.Owner != nil {
		u := *q.Owner
		out.Owner = &u
	}
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		out.Questions[i] = question
		out.Questions[i].Answers = append([]Answer(nil), question.Answers...)
	}
	return out
}

// AnswerHistory is the graded copy of an answer.
type AnswerHistory struct {
	AnswerHistoryID   string `json:"answerHistoryId"`
	QuestionHistoryID string `json:"questionHistoryId"`
	AnswerOrder       int    `json:"answerOrder"`
	Text              string `json:"text,omitempty"`
	ImageURL          string `json:"imageUrl,omitempty"`
	IsTrueAnswer      bool   `json:"isTrueAnswer"`
}

// QuestionHistory is the graded copy of a question plus the learner's pick.
type QuestionHistory struct {
	QuestionHistoryID   string          `json:"questionHistoryId"`
	QuizHistoryID       string          `json:"quizHistoryId"`
	QuestionOrder       int             `json:"questionOrder"`
	Text                string          `json:"text"`
	ImageURL            string          `json:"imageUrl,omitempty"`
	Answers             []AnswerHistory `json:"answers"`
	SelectedAnswerOrder *int            `json:"selectedAnswerOrder"`
	IsAnswerTrue        bool            `json:"isAnswerTrue"`
}

// QuizHistory is an immutable graded attempt.
type QuizHistory struct {
	QuizHistoryID string            `json:"quizHistoryId"`
	QuizID        string            `json:"quizId"`
	QuizVersion   int64             `json:"quizVersion"`
	UserID        string            `json:"userId"`
	Learner       *UserRef          `json:"user,omitempty"`
	Title         string            `json:"title"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	Time          int               `json:"time"`
	QuestionCount int               `json:"questionCount"`
	Duration      int               `json:"duration"`
	TrueAnswers   int               `json:"trueAnswers"`
	WrongAnswers  int               `json:"wrongAnswers"`
	Score         int               `json:"score"`
	Questions     []QuestionHistory `json:"questions,omitempty"`
	CreatedBy     string            `json:"createdBy"`
	CreatedTime   time.Time         `json:"createdTime"`
}

// TakeAnswer is the learner-facing answer; correctness is withheld.
type TakeAnswer struct {
	AnswerOrder int    `json:"answerOrder"`
	Text        string `json:"text,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// TakeQuestion is the learner-facing question, addressed by order only.
type TakeQuestion struct {
	QuestionOrder int          `json:"questionOrder"`
	Text          string       `json:"text"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	Answers       []TakeAnswer `json:"answers"`
}

// TakeQuiz is what a learner sees when starting an attempt.
type TakeQuiz struct {
	QuizID        string         `json:"quizId"`
	Title         string         `json:"title"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	Time          int            `json:"time"`
	Version       int64          `json:"version"`
	QuestionCount int            `json:"questionCount"`
	Questions     []TakeQuestion `json:"questions"`
}

// NewTakeQuiz projects a live tree into the learner view.
func NewTakeQuiz(q Quiz) TakeQuiz {
	take := TakeQuiz{
		QuizID:        q.QuizID,
		Title:         q.Title,
		ImageURL:      q.ImageURL,
		Time:          q.Time,
		Version:       q.Version,
		QuestionCount: len(q.Questions),
		Questions:     make([]TakeQuestion, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		tq := TakeQuestion{
			QuestionOrder: question.QuestionOrder,
			Text:          question.Text,
			ImageURL:      question.ImageURL,
			Answers:       make([]TakeAnswer, 0, len(question.Answers)),
		}
		for _, a := range question.Answers {
			tq.Answers = append(tq.Answers, TakeAnswer{AnswerOrder: a.AnswerOrder, Text: a.Text, ImageURL: a.ImageURL})
		}
		take.Questions = append(take.Questions, tq)
	}
	return take
}

// Page is one slice of a paged listing. CurrentPage is zero-based.
type Page[T any] struct {
	Items       []T `json:"items"`
	TotalItems  int `json:"totalItems"`
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

// Sort directions accepted by listings.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// QuizFilter narrows SearchQuizzes.
type QuizFilter struct {
	CategoryID  string
	OrderBy     string // "createdTime" or empty
	OrderDir    string
	CurrentPage int
	PageSize    int
}

// HistoryFilter narrows ListHistories.
type HistoryFilter struct {
	OrderBy     string // "createdTime" or "score"
	OrderDir    string
	CurrentPage int
	PageSize    int
}

// Normalize clamps paging values to sane defaults.
func (f QuizFilter) Normalize() QuizFilter {
	f.CurrentPage, f.PageSize = normalizePaging(f.CurrentPage, f.PageSize)
	return f
}

// Normalize clamps paging values to sane defaults.
func (f HistoryFilter) Normalize() HistoryFilter {
	f.CurrentPage, f.PageSize = normalizePaging(f.CurrentPage, f.PageSize)
	return f
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func normalizePaging(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"quiz-content-service/internal/domain"
)

type AuditColumns struct {
	CreatedBy    string     `bun:"created_by,notnull"`
	CreatedTime  time.Time  `bun:"created_time,notnull"`
	ModifiedBy   string     `bun:"modified_by,notnull"`
	ModifiedTime time.Time  `bun:"modified_time,notnull"`
	DeletedBy    string     `bun:"deleted_by,nullzero"`
	DeletedTime  *time.Time `bun:"deleted_time"`
}

type categoryRow struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	CategoryID string `bun:"category_id,pk"`
	Name       string `bun:"name"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	UserID string `bun:"user_id,pk"`
	Name   string `bun:"name"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	QuizID       string `bun:"quiz_id,pk"`
	UserID       string `bun:"user_id,notnull"`
	CategoryID   string `bun:"category_id,notnull"`
	Title        string `bun:"title,notnull"`
	ImageURL     string `bun:"image_url,notnull"`
	Time         int    `bun:"time,notnull"`
	Version      int64  `bun:"version,notnull"`
	RecordStatus int    `bun:"record_status,notnull"`
	AuditColumns

	QuestionCount int          `bun:"question_count,scanonly"`
	Category      *categoryRow `bun:"rel:belongs-to,join:category_id=category_id"`
	Owner         *userRow     `bun:"rel:belongs-to,join:user_id=user_id"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qs"`

	QuestionID    string `bun:"question_id,pk"`
	QuizID        string `bun:"quiz_id,notnull"`
	QuestionOrder int    `bun:"question_order,notnull"`
	Text          string `bun:"text,notnull"`
	ImageURL      string `bun:"image_url,notnull"`
	RecordStatus  int    `bun:"record_status,notnull"`
	AuditColumns
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:an"`

	AnswerID     string `bun:"answer_id,pk"`
	QuestionID   string `bun:"question_id,notnull"`
	AnswerOrder  int    `bun:"answer_order,notnull"`
	Text         string `bun:"text,notnull"`
	ImageURL     string `bun:"image_url,notnull"`
	IsTrueAnswer bool   `bun:"is_true_answer,notnull"`
	RecordStatus int    `bun:"record_status,notnull"`
	AuditColumns
}

type quizHistoryRow struct {
	bun.BaseModel `bun:"table:quiz_histories,alias:qh"`

	QuizHistoryID string    `bun:"quiz_history_id,pk"`
	QuizID        string    `bun:"quiz_id,notnull"`
	QuizVersion   int64     `bun:"quiz_version,notnull"`
	UserID        string    `bun:"user_id,notnull"`
	Title         string    `bun:"title,notnull"`
	ImageURL      string    `bun:"image_url,notnull"`
	Time          int       `bun:"time,notnull"`
	QuestionCount int       `bun:"question_count,notnull"`
	Duration      int       `bun:"duration,notnull"`
	TrueAnswers   int       `bun:"true_answers,notnull"`
	WrongAnswers  int       `bun:"wrong_answers,notnull"`
	Score         int       `bun:"score,notnull"`
	CreatedBy     string    `bun:"created_by,notnull"`
	CreatedTime   time.Time `bun:"created_time,notnull"`

	Learner *userRow `bun:"rel:belongs-to,join:user_id=user_id"`
}

type questionHistoryRow struct {
	bun.BaseModel `bun:"table:question_histories,alias:qsh"`

	QuestionHistoryID   string `bun:"question_history_id,pk"`
	QuizHistoryID       string `bun:"quiz_history_id,notnull"`
	QuestionOrder       int    `bun:"question_order,notnull"`
	Text                string `bun:"text,notnull"`
	ImageURL            string `bun:"image_url,notnull"`
	SelectedAnswerOrder *int   `bun:"selected_answer_order"`
	IsAnswerTrue        bool   `bun:"is_answer_true,notnull"`
}

type answerHistoryRow struct {
	bun.BaseModel `bun:"table:answer_histories,alias:anh"`

	AnswerHistoryID   string `bun:"answer_history_id,pk"`
	QuestionHistoryID string `bun:"question_history_id,notnull"`
	AnswerOrder       int    `bun:"answer_order,notnull"`
	Text              string `bun:"text,notnull"`
	ImageURL          string `bun:"image_url,notnull"`
	IsTrueAnswer      bool   `bun:"is_true_answer,notnull"`
}

func auditFromDomain(a domain.Audit) AuditColumns {
	return AuditColumns{
		CreatedBy:    a.CreatedBy,
		CreatedTime:  a.CreatedTime,
		ModifiedBy:   a.ModifiedBy,
		ModifiedTime: a.ModifiedTime,
		DeletedBy:    a.DeletedBy,
		DeletedTime:  a.DeletedTime,
	}
}

func (a AuditColumns) toDomain() domain.Audit {
	return domain.Audit{
		CreatedBy:    a.CreatedBy,
		CreatedTime:  a.CreatedTime,
		ModifiedBy:   a.ModifiedBy,
		ModifiedTime: a.ModifiedTime,
		DeletedBy:    a.DeletedBy,
		DeletedTime:  a.DeletedTime,
	}
}

func newQuizRow(q domain.Quiz) *quizRow {
	return &quizRow{
		QuizID:       q.QuizID,
		UserID:       q.UserID,
		CategoryID:   q.CategoryID,
		Title:        q.Title,
		ImageURL:     q.ImageURL,
		Time:         q.Time,
		Version:      q.Version,
		RecordStatus: int(q.Status),
		AuditColumns: auditFromDomain(q.Audit),
	}
}

func (r *quizRow) toDomain() domain.Quiz {
	quiz := domain.Quiz{
		QuizID:        r.QuizID,
		UserID:        r.UserID,
		CategoryID:    r.CategoryID,
		Title:         r.Title,
		ImageURL:      r.ImageURL,
		Time:          r.Time,
		Version:       r.Version,
		QuestionCount: r.QuestionCount,
		Status:        domain.RecordStatus(r.RecordStatus),
		Audit:         r.AuditColumns.toDomain(),
	}
	if r.Category != nil && r.Category.CategoryID != "" {
		quiz.Category = &domain.CategoryRef{CategoryID: r.Category.CategoryID, Name: r.Category.Name}
	}
	if r.Owner != nil && r.Owner.UserID != "" {
		quiz.Owner = &domain.UserRef{UserID: r.Owner.UserID, Name: r.Owner.Name}
	}
	return quiz
}

func newQuestionRow(q domain.Question) questionRow {
	return questionRow{
		QuestionID:    q.QuestionID,
		QuizID:        q.QuizID,
		QuestionOrder: q.QuestionOrder,
		Text:          q.Text,
		ImageURL:      q.ImageURL,
		RecordStatus:  int(q.Status),
		AuditColumns:  auditFromDomain(q.Audit),
	}
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		QuestionID:    r.QuestionID,
		QuizID:        r.QuizID,
		QuestionOrder: r.QuestionOrder,
		Text:          r.Text,
		ImageURL:      r.ImageURL,
		Status:        domain.RecordStatus(r.RecordStatus),
		Audit:         r.AuditColumns.toDomain(),
	}
}

func newAnswerRow(a domain.Answer) answerRow {
	return answerRow{
		AnswerID:     a.AnswerID,
		QuestionID:   a.QuestionID,
		AnswerOrder:  a.AnswerOrder,
		Text:         a.Text,
		ImageURL:     a.ImageURL,
		IsTrueAnswer: a.IsTrueAnswer,
		RecordStatus: int(a.Status),
		AuditColumns: auditFromDomain(a.Audit),
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		AnswerID:     r.AnswerID,
		QuestionID:   r.QuestionID,
		AnswerOrder:  r.AnswerOrder,
		Text:         r.Text,
		ImageURL:     r.ImageURL,
		IsTrueAnswer: r.IsTrueAnswer,
		Status:       domain.RecordStatus(r.RecordStatus),
		Audit:        r.AuditColumns.toDomain(),
	}
}

// historyRows flattens a graded tree into its three tables.
func historyRows(h domain.QuizHistory) (*quizHistoryRow, []questionHistoryRow, []answerHistoryRow) {
	root := &quizHistoryRow{
		QuizHistoryID: h.QuizHistoryID,
		QuizID:        h.QuizID,
		QuizVersion:   h.QuizVersion,
		UserID:        h.UserID,
		Title:         h.Title,
		ImageURL:      h.ImageURL,
		Time:          h.Time,
		QuestionCount: h.QuestionCount,
		Duration:      h.Duration,
		TrueAnswers:   h.TrueAnswers,
		WrongAnswers:  h.WrongAnswers,
		Score:         h.Score,
		CreatedBy:     h.CreatedBy,
		CreatedTime:   h.CreatedTime,
	}
	var questions []questionHistoryRow
	var answers []answerHistoryRow
	for _, q := range h.Questions {
		questions = append(questions, questionHistoryRow{
			QuestionHistoryID:   q.QuestionHistoryID,
			QuizHistoryID:       h.QuizHistoryID,
			QuestionOrder:       q.QuestionOrder,
			Text:                q.Text,
			ImageURL:            q.ImageURL,
			SelectedAnswerOrder: q.SelectedAnswerOrder,
			IsAnswerTrue:        q.IsAnswerTrue,
		})
		for _, a := range q.Answers {
			answers = append(answers, answerHistoryRow{
				AnswerHistoryID:   a.AnswerHistoryID,
				QuestionHistoryID: q.QuestionHistoryID,
				AnswerOrder:       a.AnswerOrder,
				Text:              a.Text,
				ImageURL:          a.ImageURL,
				IsTrueAnswer:      a.IsTrueAnswer,
			})
		}
	}
	return root, questions, answers
}

func (r *quizHistoryRow) toDomain() domain.QuizHistory {
	h := domain.QuizHistory{
		QuizHistoryID: r.QuizHistoryID,
		QuizID:        r.QuizID,
		QuizVersion:   r.QuizVersion,
		UserID:        r.UserID,
		Title:         r.Title,
		ImageURL:      r.ImageURL,
		Time:          r.Time,
		QuestionCount: r.QuestionCount,
		Duration:      r.Duration,
		TrueAnswers:   r.TrueAnswers,
		WrongAnswers:  r.WrongAnswers,
		Score:         r.Score,
		CreatedBy:     r.CreatedBy,
		CreatedTime:   r.CreatedTime,
	}
	if r.Learner != nil && r.Learner.UserID != "" {
		h.Learner = &domain.UserRef{UserID: r.Learner.UserID, Name: r.Learner.Name}
	}
	return h
}

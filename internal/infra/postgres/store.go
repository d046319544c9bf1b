package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-content-service/internal/domain"
)

const statusActive = int(domain.StatusActive)

// Store persists content trees and histories in Postgres through bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, quiz domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(newQuizRow(quiz)).Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		questions := make([]questionRow, 0, len(quiz.Questions))
		var answers []answerRow
		for _, q := range quiz.Questions {
			questions = append(questions, newQuestionRow(q))
			for _, a := range q.Answers {
				answers = append(answers, newAnswerRow(a))
			}
		}
		if err := insertQuestions(ctx, tx, questions); err != nil {
			return err
		}
		return insertAnswers(ctx, tx, answers)
	})
}

func (s *Store) LoadLiveTree(ctx context.Context, quizID string) (domain.Quiz, error) {
	return loadLiveTree(ctx, s.db, quizID)
}

func (s *Store) LoadLiveTreeForOwner(ctx context.Context, quizID, ownerID string) (domain.Quiz, error) {
	quiz, err := loadLiveTree(ctx, s.db, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.UserID != ownerID {
		return domain.Quiz{}, domain.ErrAccessDenied
	}
	return quiz, nil
}

// Persist writes cs in one transaction. The root update carries the version
// predicate, so a concurrent writer makes it touch zero rows.
func (s *Store) Persist(ctx context.Context, cs domain.ChangeSet, expectedVersion int64) (int64, error) {
	next := expectedVersion + 1
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		root := newQuizRow(cs.Quiz)
		root.Version = next
		res, err := tx.NewUpdate().
			Model(root).
			Column("title", "image_url", "time", "category_id", "version", "record_status",
				"modified_by", "modified_time", "deleted_by", "deleted_time").
			Where("quiz_id = ?", root.QuizID).
			Where("version = ?", expectedVersion).
			Where("record_status = ?", statusActive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().
				Model((*quizRow)(nil)).
				Where("quiz_id = ?", root.QuizID).
				Where("record_status = ?", statusActive).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check quiz: %w", err)
			}
			if exists {
				return domain.ErrConcurrencyConflict
			}
			return domain.ErrNotFound
		}

		if err := insertQuestions(ctx, tx, questionRows(cs.InsertedQuestions)); err != nil {
			return err
		}
		for _, rows := range [][]domain.Question{cs.UpdatedQuestions, cs.DeletedQuestions} {
			for _, q := range rows {
				row := newQuestionRow(q)
				if _, err := tx.NewUpdate().
					Model(&row).
					Column("question_order", "text", "image_url", "record_status",
						"modified_by", "modified_time", "deleted_by", "deleted_time").
					WherePK().
					Exec(ctx); err != nil {
					return fmt.Errorf("update question %s: %w", q.QuestionID, err)
				}
			}
		}

		if err := insertAnswers(ctx, tx, answerRows(cs.InsertedAnswers)); err != nil {
			return err
		}
		for _, rows := range [][]domain.Answer{cs.UpdatedAnswers, cs.DeletedAnswers} {
			for _, a := range rows {
				row := newAnswerRow(a)
				if _, err := tx.NewUpdate().
					Model(&row).
					Column("answer_order", "text", "image_url", "is_true_answer", "record_status",
						"modified_by", "modified_time", "deleted_by", "deleted_time").
					WherePK().
					Exec(ctx); err != nil {
					return fmt.Errorf("update answer %s: %w", a.AnswerID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) Search(ctx context.Context, filter domain.QuizFilter) (domain.Page[domain.Quiz], error) {
	var rows []quizRow
	q := s.db.NewSelect().
		Model(&rows).
		ColumnExpr("qz.*").
		ColumnExpr("(SELECT count(*) FROM questions AS qs WHERE qs.quiz_id = qz.quiz_id AND qs.record_status = ?) AS question_count", statusActive).
		Relation("Category").
		Relation("Owner").
		Where("qz.record_status = ?", statusActive)
	if filter.CategoryID != "" {
		q = q.Where("qz.category_id = ?", filter.CategoryID)
	}
	if filter.OrderBy == "createdTime" {
		q = q.Order("qz.created_time " + direction(filter.OrderDir))
	}
	q = q.Order("qz.quiz_id ASC").
		Limit(filter.PageSize).
		Offset(filter.CurrentPage * filter.PageSize)

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return domain.Page[domain.Quiz]{}, fmt.Errorf("search quizzes: %w", err)
	}
	page := domain.Page[domain.Quiz]{
		Items:       make([]domain.Quiz, 0, len(rows)),
		TotalItems:  total,
		CurrentPage: filter.CurrentPage,
		PageSize:    filter.PageSize,
	}
	for i := range rows {
		page.Items = append(page.Items, rows[i].toDomain())
	}
	return page, nil
}

func (s *Store) HasAttempt(ctx context.Context, quizID, userID string) (bool, error) {
	return s.db.NewSelect().
		Model((*quizHistoryRow)(nil)).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Exists(ctx)
}

func (s *Store) SaveHistory(ctx context.Context, history domain.QuizHistory) error {
	root, questions, answers := historyRows(history)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(root).Exec(ctx); err != nil {
			return err
		}
		if len(questions) > 0 {
			if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
				return fmt.Errorf("insert question histories: %w", err)
			}
		}
		if len(answers) > 0 {
			if _, err := tx.NewInsert().Model(&answers).Exec(ctx); err != nil {
				return fmt.Errorf("insert answer histories: %w", err)
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return domain.ErrAlreadyAttempted
	}
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (s *Store) GetHistory(ctx context.Context, historyID string) (domain.QuizHistory, error) {
	root := new(quizHistoryRow)
	err := s.db.NewSelect().
		Model(root).
		Relation("Learner").
		Where("qh.quiz_history_id = ?", historyID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizHistory{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.QuizHistory{}, fmt.Errorf("load history: %w", err)
	}

	var questions []questionHistoryRow
	if err := s.db.NewSelect().
		Model(&questions).
		Where("quiz_history_id = ?", historyID).
		Order("question_order ASC", "question_history_id ASC").
		Scan(ctx); err != nil {
		return domain.QuizHistory{}, fmt.Errorf("load question histories: %w", err)
	}

	byQuestion := make(map[string][]domain.AnswerHistory)
	if len(questions) > 0 {
		ids := make([]string, 0, len(questions))
		for _, q := range questions {
			ids = append(ids, q.QuestionHistoryID)
		}
		var answers []answerHistoryRow
		if err := s.db.NewSelect().
			Model(&answers).
			Where("question_history_id IN (?)", bun.In(ids)).
			Order("answer_order ASC", "answer_history_id ASC").
			Scan(ctx); err != nil {
			return domain.QuizHistory{}, fmt.Errorf("load answer histories: %w", err)
		}
		for _, a := range answers {
			byQuestion[a.QuestionHistoryID] = append(byQuestion[a.QuestionHistoryID], domain.AnswerHistory{
				AnswerHistoryID:   a.AnswerHistoryID,
				QuestionHistoryID: a.QuestionHistoryID,
				AnswerOrder:       a.AnswerOrder,
				Text:              a.Text,
				ImageURL:          a.ImageURL,
				IsTrueAnswer:      a.IsTrueAnswer,
			})
		}
	}

	history := root.toDomain()
	history.Questions = make([]domain.QuestionHistory, 0, len(questions))
	for _, q := range questions {
		answers := byQuestion[q.QuestionHistoryID]
		if answers == nil {
			answers = []domain.AnswerHistory{}
		}
		history.Questions = append(history.Questions, domain.QuestionHistory{
			QuestionHistoryID:   q.QuestionHistoryID,
			QuizHistoryID:       q.QuizHistoryID,
			QuestionOrder:       q.QuestionOrder,
			Text:                q.Text,
			ImageURL:            q.ImageURL,
			Answers:             answers,
			SelectedAnswerOrder: q.SelectedAnswerOrder,
			IsAnswerTrue:        q.IsAnswerTrue,
		})
	}
	return history, nil
}

func (s *Store) ListHistories(ctx context.Context, quizID string, filter domain.HistoryFilter) (domain.Page[domain.QuizHistory], error) {
	var rows []quizHistoryRow
	q := s.db.NewSelect().
		Model(&rows).
		Relation("Learner").
		Where("qh.quiz_id = ?", quizID)
	switch filter.OrderBy {
	case "score":
		q = q.Order("qh.score " + direction(filter.OrderDir))
	case "createdTime":
		q = q.Order("qh.created_time " + direction(filter.OrderDir))
	}
	q = q.Order("qh.quiz_history_id ASC").
		Limit(filter.PageSize).
		Offset(filter.CurrentPage * filter.PageSize)

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return domain.Page[domain.QuizHistory]{}, fmt.Errorf("list histories: %w", err)
	}
	page := domain.Page[domain.QuizHistory]{
		Items:       make([]domain.QuizHistory, 0, len(rows)),
		TotalItems:  total,
		CurrentPage: filter.CurrentPage,
		PageSize:    filter.PageSize,
	}
	for i := range rows {
		page.Items = append(page.Items, rows[i].toDomain())
	}
	return page, nil
}

func loadLiveTree(ctx context.Context, db bun.IDB, quizID string) (domain.Quiz, error) {
	root := new(quizRow)
	err := db.NewSelect().
		Model(root).
		Relation("Category").
		Relation("Owner").
		Where("qz.quiz_id = ?", quizID).
		Where("qz.record_status = ?", statusActive).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	var questions []questionRow
	if err := db.NewSelect().
		Model(&questions).
		Where("quiz_id = ?", quizID).
		Where("record_status = ?", statusActive).
		Order("question_order ASC", "question_id ASC").
		Scan(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	byQuestion := make(map[string][]domain.Answer)
	if len(questions) > 0 {
		ids := make([]string, 0, len(questions))
		for _, q := range questions {
			ids = append(ids, q.QuestionID)
		}
		var answers []answerRow
		if err := db.NewSelect().
			Model(&answers).
			Where("question_id IN (?)", bun.In(ids)).
			Where("record_status = ?", statusActive).
			Order("answer_order ASC", "answer_id ASC").
			Scan(ctx); err != nil {
			return domain.Quiz{}, fmt.Errorf("load answers: %w", err)
		}
		for _, a := range answers {
			byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a.toDomain())
		}
	}

	quiz := root.toDomain()
	quiz.Questions = make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		question := q.toDomain()
		question.Answers = byQuestion[q.QuestionID]
		if question.Answers == nil {
			question.Answers = []domain.Answer{}
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	quiz.QuestionCount = len(quiz.Questions)
	return quiz, nil
}

func insertQuestions(ctx context.Context, tx bun.Tx, rows []questionRow) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}

func insertAnswers(ctx context.Context, tx bun.Tx, rows []answerRow) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

func questionRows(questions []domain.Question) []questionRow {
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, newQuestionRow(q))
	}
	return rows
}

func answerRows(answers []domain.Answer) []answerRow {
	rows := make([]answerRow, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, newAnswerRow(a))
	}
	return rows
}

func direction(dir string) string {
	if dir == domain.OrderDesc {
		return "DESC"
	}
	return "ASC"
}

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-content-service/internal/domain"
)

// Store is an in-memory implementation of app.QuizStore and app.HistoryStore.
// Rows are kept flat, soft-deleted ones included, and trees are assembled on read.
type Store struct {
	mu        sync.RWMutex
	quizzes   map[string]domain.Quiz
	questions map[string]domain.Question
	answers   map[string]domain.Answer

	histories map[string]domain.QuizHistory
	attempts  map[string]string
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string]domain.Question),
		answers:   make(map[string]domain.Answer),
		histories: make(map[string]domain.QuizHistory),
		attempts:  make(map[string]string),
	}
}

func (s *Store) Create(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quiz.Questions {
		for _, a := range q.Answers {
			s.answers[a.AnswerID] = a
		}
		q.Answers = nil
		s.questions[q.QuestionID] = q
	}
	quiz.Questions = nil
	s.quizzes[quiz.QuizID] = quiz
	return nil
}

func (s *Store) LoadLiveTree(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveTreeLocked(quizID)
}

func (s *Store) LoadLiveTreeForOwner(_ context.Context, quizID, ownerID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, err := s.liveTreeLocked(quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.UserID != ownerID {
		return domain.Quiz{}, domain.ErrAccessDenied
	}
	return quiz, nil
}

func (s *Store) Persist(_ context.Context, cs domain.ChangeSet, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.quizzes[cs.Quiz.QuizID]
	if !ok || current.Status != domain.StatusActive {
		return 0, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return 0, domain.ErrConcurrencyConflict
	}

	root := cs.Quiz
	root.Questions = nil
	root.Version = current.Version + 1
	s.quizzes[root.QuizID] = root

	for _, rows := range [][]domain.Question{cs.InsertedQuestions, cs.UpdatedQuestions, cs.DeletedQuestions} {
		for _, q := range rows {
			q.Answers = nil
			s.questions[q.QuestionID] = q
		}
	}
	for _, rows := range [][]domain.Answer{cs.InsertedAnswers, cs.UpdatedAnswers, cs.DeletedAnswers} {
		for _, a := range rows {
			s.answers[a.AnswerID] = a
		}
	}
	return root.Version, nil
}

func (s *Store) Search(_ context.Context, filter domain.QuizFilter) (domain.Page[domain.Quiz], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if quiz.Status != domain.StatusActive {
			continue
		}
		if filter.CategoryID != "" && quiz.CategoryID != filter.CategoryID {
			continue
		}
		quiz.QuestionCount = s.liveQuestionCountLocked(quiz.QuizID)
		matches = append(matches, quiz)
	}

	sort.Slice(matches, func(i, j int) bool {
		if filter.OrderBy == "createdTime" && !matches[i].Audit.CreatedTime.Equal(matches[j].Audit.CreatedTime) {
			if filter.OrderDir == domain.OrderDesc {
				return matches[i].Audit.CreatedTime.After(matches[j].Audit.CreatedTime)
			}
			return matches[i].Audit.CreatedTime.Before(matches[j].Audit.CreatedTime)
		}
		return matches[i].QuizID < matches[j].QuizID
	})

	return paginate(matches, filter.CurrentPage, filter.PageSize), nil
}

func (s *Store) HasAttempt(_ context.Context, quizID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.attempts[attemptKey(quizID, userID)]
	return ok, nil
}

func (s *Store) SaveHistory(_ context.Context, history domain.QuizHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attemptKey(history.QuizID, history.UserID)
	if _, ok := s.attempts[key]; ok {
		return domain.ErrAlreadyAttempted
	}
	s.attempts[key] = history.QuizHistoryID
	s.histories[history.QuizHistoryID] = cloneHistory(history)
	return nil
}

func (s *Store) GetHistory(_ context.Context, historyID string) (domain.QuizHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.histories[historyID]
	if !ok {
		return domain.QuizHistory{}, domain.ErrNotFound
	}
	return cloneHistory(history), nil
}

func (s *Store) ListHistories(_ context.Context, quizID string, filter domain.HistoryFilter) (domain.Page[domain.QuizHistory], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.QuizHistory, 0)
	for _, h := range s.histories {
		if h.QuizID != quizID {
			continue
		}
		h.Questions = nil
		matches = append(matches, h)
	}

	desc := filter.OrderDir == domain.OrderDesc
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		switch {
		case filter.OrderBy == "score" && a.Score != b.Score:
			if desc {
				return a.Score > b.Score
			}
			return a.Score < b.Score
		case filter.OrderBy == "createdTime" && !a.CreatedTime.Equal(b.CreatedTime):
			if desc {
				return a.CreatedTime.After(b.CreatedTime)
			}
			return a.CreatedTime.Before(b.CreatedTime)
		}
		return a.QuizHistoryID < b.QuizHistoryID
	})

	return paginate(matches, filter.CurrentPage, filter.PageSize), nil
}

// AllRows returns every stored question and answer of a quiz, deleted ones included.
// It exists for audit views and tests.
func (s *Store) AllRows(quizID string) ([]domain.Question, []domain.Answer) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var questions []domain.Question
	owned := make(map[string]bool)
	for _, q := range s.questions {
		if q.QuizID == quizID {
			questions = append(questions, q)
			owned[q.QuestionID] = true
		}
	}
	var answers []domain.Answer
	for _, a := range s.answers {
		if owned[a.QuestionID] {
			answers = append(answers, a)
		}
	}
	return questions, answers
}

func (s *Store) liveTreeLocked(quizID string) (domain.Quiz, error) {
	root, ok := s.quizzes[quizID]
	if !ok || root.Status != domain.StatusActive {
		return domain.Quiz{}, domain.ErrNotFound
	}

	questions := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.QuizID != quizID || q.Status != domain.StatusActive {
			continue
		}
		q.Answers = make([]domain.Answer, 0)
		for _, a := range s.answers {
			if a.QuestionID == q.QuestionID && a.Status == domain.StatusActive {
				q.Answers = append(q.Answers, a)
			}
		}
		sort.Slice(q.Answers, func(i, j int) bool {
			if q.Answers[i].AnswerOrder != q.Answers[j].AnswerOrder {
				return q.Answers[i].AnswerOrder < q.Answers[j].AnswerOrder
			}
			return q.Answers[i].AnswerID < q.Answers[j].AnswerID
		})
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].QuestionOrder != questions[j].QuestionOrder {
			return questions[i].QuestionOrder < questions[j].QuestionOrder
		}
		return questions[i].QuestionID < questions[j].QuestionID
	})

	root.Questions = questions
	root.QuestionCount = len(questions)
	return root, nil
}

func (s *Store) liveQuestionCountLocked(quizID string) int {
	count := 0
	for _, q := range s.questions {
		if q.QuizID == quizID && q.Status == domain.StatusActive {
			count++
		}
	}
	return count
}

func attemptKey(quizID, userID string) string {
	return quizID + "|" + userID
}

func cloneHistory(h domain.QuizHistory) domain.QuizHistory {
	out := h
	if h.Learner != nil {
		l := *h.Learner
		out.Learner = &l
	}
	if h.Questions == nil {
		return out
	}
	out.Questions = make([]domain.QuestionHistory, len(h.Questions))
	for i, q := range h.Questions {
		out.Questions[i] = q
		out.Questions[i].Answers = append([]domain.AnswerHistory(nil), q.Answers...)
		if q.SelectedAnswerOrder != nil {
			v := *q.SelectedAnswerOrder
			out.Questions[i].SelectedAnswerOrder = &v
		}
	}
	return out
}

func paginate[T any](items []T, page, size int) domain.Page[T] {
	result := domain.Page[T]{
		Items:       []T{},
		TotalItems:  len(items),
		CurrentPage: page,
		PageSize:    size,
	}
	start := page * size
	if start >= len(items) {
		return result
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	result.Items = items[start:end]
	return result
}

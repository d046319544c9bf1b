package domain

import (
	"fmt"
	"testing"
	"time"
)

func TestNewQuizTreeAndDelete(t *testing.T) {
	n := 0
	newID := func() string { n++; return fmt.Sprintf("id-%d", n) }
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	quiz := NewQuizTree(QuizInput{
		CategoryID: "math",
		Title:      "Arithmetic",
		Time:       60,
		Questions: []QuestionInput{
			{QuestionOrder: 5, Text: "a", Answers: []AnswerInput{{AnswerOrder: 9, Text: "x"}, {Text: "y"}}},
			{Text: "b"},
		},
	}, "owner", created, newID)

	if quiz.Version != 1 || quiz.Status != StatusActive || quiz.Audit.CreatedBy != "owner" {
		t.Fatalf("unexpected root: %+v", quiz)
	}
	if quiz.Questions[0].QuestionOrder != 0 || quiz.Questions[1].QuestionOrder != 1 || quiz.Questions[0].Answers[0].AnswerOrder != 0 {
		t.Fatalf("expected dense orders: %+v", quiz.Questions)
	}

	deleted := created.Add(time.Hour)
	cs := DeleteQuizChangeSet(quiz, "owner", deleted)
	if cs.Quiz.Status != StatusDeleted || cs.Quiz.Audit.DeletedTime == nil || !cs.Quiz.Audit.DeletedTime.Equal(deleted) {
		t.Fatalf("root not soft-deleted: %+v", cs.Quiz)
	}
	if len(cs.DeletedQuestions) != 2 || len(cs.DeletedAnswers) != 2 {
		t.Fatalf("expected every descendant deleted, got %d/%d", len(cs.DeletedQuestions), len(cs.DeletedAnswers))
	}
	if quiz.Status != StatusActive || quiz.Questions[0].Answers[0].Status != StatusActive {
		t.Fatalf("input tree must not be mutated")
	}
}

func TestTakeQuizHidesAnswerKeys(t *testing.T) {
	quiz := Quiz{
		QuizID:  "q",
		Title:   "T",
		Version: 3,
		Questions: []Question{{
			QuestionOrder: 0,
			Text:          "?",
			Answers:       []Answer{{AnswerID: "a", AnswerOrder: 0, Text: "yes", IsTrueAnswer: true}},
		}},
	}
	take := NewTakeQuiz(quiz)
	if take.Version != 3 || take.QuestionCount != 1 || take.Questions[0].Answers[0].Text != "yes" {
		t.Fatalf("unexpected take view: %+v", take)
	}
}

func TestFilterNormalize(t *testing.T) {
	f := QuizFilter{CurrentPage: -2, PageSize: 1000}.Normalize()
	if f.CurrentPage != 0 || f.PageSize != 100 {
		t.Fatalf("unexpected normalized filter: %+v", f)
	}
	h := HistoryFilter{}.Normalize()
	if h.PageSize != 10 {
		t.Fatalf("expected default page size, got %d", h.PageSize)
	}
}

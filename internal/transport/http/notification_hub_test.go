package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"quiz-content-service/internal/app"
	"quiz-content-service/internal/domain"
	"quiz-content-service/internal/infra/memory"
	"quiz-content-service/internal/logger"
)

func TestNotificationHubDeliversToToken(t *testing.T) {
	hub := NewNotificationHub(logger.Discard())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dial(t, server, "tok-1")
	defer conn.Close()
	readNext(t, conn, "registered")

	if err := hub.Notify(context.Background(), []string{"tok-2", "tok-1"}, "Quiz attempted", "hello"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	payload := readNext(t, conn, "notification")
	if payload["title"] != "Quiz attempted" || payload["body"] != "hello" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestNotificationHubUnregistersOnClose(t *testing.T) {
	hub := NewNotificationHub(logger.Discard())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dial(t, server, "tok-1")
	readNext(t, conn, "registered")
	if hub.Connected("tok-1") != 1 {
		t.Fatalf("expected client registered")
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected("tok-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotificationHubRejectsMissingToken(t *testing.T) {
	hub := NewNotificationHub(logger.Discard())
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGradingNotifiesOwnerOverWebSocket(t *testing.T) {
	hub := NewNotificationHub(logger.Discard())
	store := memory.NewStore()
	trigger := app.NewNotificationTrigger(
		memory.StaticDirectory{"owner": {"owner-device"}},
		hub,
		time.Second,
		logger.Discard(),
		nil,
	)
	service := app.NewQuizService(app.Deps{Quizzes: store, Histories: store, Notifier: trigger})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dial(t, server, "owner-device")
	defer conn.Close()
	readNext(t, conn, "registered")

	ctx := context.Background()
	quiz, err := service.CreateQuiz(ctx, "owner", domain.QuizInput{
		CategoryID: "math",
		Title:      "Arithmetic",
		Time:       60,
		Questions: []domain.QuestionInput{{
			Text:    "2 + 2?",
			Answers: []domain.AnswerInput{{Text: "4", IsTrueAnswer: true}},
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	selected := 0
	if _, err := service.GradeQuiz(ctx, "learner", quiz.QuizID, domain.Submission{
		QuestionCount: 1,
		Questions:     []domain.SubmittedQuestion{{QuestionOrder: 0, SelectedAnswerOrder: &selected}},
	}); err != nil {
		t.Fatalf("grade: %v", err)
	}
	trigger.Wait()

	payload := readNext(t, conn, "notification")
	if payload["title"] != "Quiz attempted" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Payload
}

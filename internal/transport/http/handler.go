package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"quiz-content-service/internal/app"
	"quiz-content-service/internal/domain"
)

// UserHeader carries the caller identity set by the gateway.
const UserHeader = "X-User-Id"

// Handler exposes the quiz use cases as JSON over HTTP.
type Handler struct {
	service *app.QuizService
	logger  logrus.FieldLogger
	limiter *RateLimiter
}

func NewHandler(service *app.QuizService, logger logrus.FieldLogger) *Handler {
	return &Handler{service: service, logger: logger}
}

type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Data    any      `json:"data,omitempty"`
}

type reconcileRequest struct {
	Version int64            `json:"version"`
	Quiz    domain.QuizInput `json:"quiz"`
}

// WithGradingLimit throttles quiz checks per caller.
func (h *Handler) WithGradingLimit(l *RateLimiter) *Handler {
	h.limiter = l
	return h
}

// Register mounts the quiz routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /quizzes", h.createQuiz)
	mux.HandleFunc("GET /quizzes", h.searchQuizzes)
	mux.HandleFunc("GET /quizzes/{id}", h.getQuiz)
	mux.HandleFunc("PUT /quizzes/{id}", h.reconcileQuiz)
	mux.HandleFunc("DELETE /quizzes/{id}", h.deleteQuiz)
	mux.HandleFunc("GET /quizzes/{id}/take", h.takeQuiz)
	check := h.checkQuiz
	if h.limiter != nil {
		check = h.limiter.Wrap(check)
	}
	mux.HandleFunc("POST /quizzes/{id}/check", check)
	mux.HandleFunc("GET /quizzes/{id}/history", h.listHistories)
	mux.HandleFunc("GET /histories/{id}", h.getHistory)
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var in domain.QuizInput
	if !h.decode(w, r, &in) {
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), userID(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: quiz})
}

func (h *Handler) searchQuizzes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.QuizFilter{
		CategoryID:  q.Get("categoryId"),
		OrderBy:     q.Get("orderBy"),
		OrderDir:    q.Get("orderDir"),
		CurrentPage: intParam(q.Get("page")),
		PageSize:    intParam(q.Get("pageSize")),
	}
	page, err := h.service.SearchQuizzes(r.Context(), userID(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: page})
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: quiz})
}

func (h *Handler) reconcileQuiz(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !h.decode(w, r, &req) {
		return
	}
	quiz, err := h.service.ReconcileQuiz(r.Context(), userID(r), r.PathValue("id"), req.Version, req.Quiz)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: quiz})
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "version query parameter is required"})
		return
	}
	if err := h.service.DeleteQuiz(r.Context(), userID(r), r.PathValue("id"), version); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "quiz deleted"})
}

func (h *Handler) takeQuiz(w http.ResponseWriter, r *http.Request) {
	take, err := h.service.TakeQuiz(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: take})
}

func (h *Handler) checkQuiz(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if !h.decode(w, r, &sub) {
		return
	}
	history, err := h.service.GradeQuiz(r.Context(), userID(r), r.PathValue("id"), sub)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: history})
}

func (h *Handler) listHistories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.HistoryFilter{
		OrderBy:     q.Get("orderBy"),
		OrderDir:    q.Get("orderDir"),
		CurrentPage: intParam(q.Get("page")),
		PageSize:    intParam(q.Get("pageSize")),
	}
	page, err := h.service.ListHistories(r.Context(), userID(r), r.PathValue("id"), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: page})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetHistory(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: history})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid JSON body"})
		return false
	}
	return true
}

// fail maps domain errors to status codes. Unexpected errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Message: domain.ErrValidation.Error(), Errors: verr.Messages})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Message: err.Error()})
	case errors.Is(err, domain.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, envelope{Message: err.Error()})
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrAlreadyAttempted):
		writeJSON(w, http.StatusConflict, envelope{Message: err.Error()})
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func userID(r *http.Request) string {
	return r.Header.Get(UserHeader)
}

func intParam(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

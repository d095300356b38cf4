package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/domain"
)

// TopicLister lists the catalog's topics.
type TopicLister interface {
	ListTopics(ctx context.Context) ([]domain.Topic, error)
}

// Handler serves the REST routes.
type Handler struct {
	service *app.QuizService
	topics  TopicLister
	logger  *zap.Logger
}

func NewHandler(service *app.QuizService, topics TopicLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, topics: topics, logger: logger}
}

// Register mounts the REST routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /topics", h.listTopics)
	mux.HandleFunc("GET /batch", h.batch)
	mux.HandleFunc("POST /submit", h.submit)
	mux.HandleFunc("POST /progress", h.recordProgress)
	mux.HandleFunc("GET /progress", h.progress)
	mux.HandleFunc("GET /progress/overview", h.overview)
	mux.HandleFunc("DELETE /progress/{id}", h.deleteProgress)
}

type batchView struct {
	ID        string                `json:"id"`
	TopicID   string                `json:"topicId"`
	Subject   string                `json:"subject"`
	Questions []domain.QuestionView `json:"questions"`
}

type submitRequest struct {
	BatchID     string                    `json:"batchId"`
	UserID      string                    `json:"userId,omitempty"`
	Submissions []domain.AnswerSubmission `json:"submissions"`
}

type submitResponse struct {
	BatchID string                 `json:"batchId"`
	Result  domain.Result          `json:"result"`
	Record  *domain.ProgressRecord `json:"record,omitempty"`
}

type progressRequest struct {
	UserID  string        `json:"userId"`
	Subject string        `json:"subject"`
	TopicID string        `json:"topicId"`
	Result  domain.Result `json:"result"`
}

func (h *Handler) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.ListTopics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.BatchRequest{TopicID: q.Get("topic")}
	if req.TopicID == "" {
		h.fail(w, r, domain.NewValidationError("topic", "is required"))
		return
	}
	var err error
	if req.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Grade, err = optionalInt(q.Get("grade"), "grade"); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Difficulty, err = domain.ParseDifficulty(q.Get("difficulty")); err != nil {
		h.fail(w, r, err)
		return
	}

	batch, err := h.service.ServeBatch(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := batchView{
		ID:        batch.ID,
		TopicID:   batch.TopicID,
		Subject:   batch.Subject,
		Questions: make([]domain.QuestionView, len(batch.Questions)),
	}
	for i, question := range batch.Questions {
		view.Questions[i] = question.View()
	}
	writeJSON(w, http.StatusOK, view)
}

// submit grades a batch and, when userId is given, records the result.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	if req.BatchID == "" {
		h.fail(w, r, domain.NewValidationError("batchId", "is required"))
		return
	}

	batch, result, err := h.service.Submit(r.Context(), req.BatchID, req.Submissions)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := submitResponse{BatchID: batch.ID, Result: result}
	if req.UserID != "" {
		rec, err := h.service.RecordProgress(r.Context(), req.UserID, batch.Subject, batch.TopicID, result)
		if err != nil {
			body := errorBody(err)
			body.Result = &result
			h.logger.Warn("submit not recorded", zap.String("batch_id", batch.ID), zap.Error(err))
			writeJSON(w, body.Status, body)
			return
		}
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recordProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, domain.NewValidationError("body", err.Error()))
		return
	}
	rec, err := h.service.RecordProgress(r.Context(), req.UserID, req.Subject, req.TopicID, req.Result)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Progress(r.Context(), r.URL.Query().Get("userId"), r.URL.Query().Get("subject"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) deleteProgress(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveProgress(r.Context(), r.URL.Query().Get("userId"), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err)
}

func optionalInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "must be an integer")
	}
	return n, nil
}

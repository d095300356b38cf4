package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/domain"
)

// WSHandler drives one quiz session per websocket connection.
type WSHandler struct {
	service  *app.QuizService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	TopicID    string `json:"topicId"`
	Limit      int    `json:"limit"`
	Difficulty string `json:"difficulty"`
}

type answerPayload struct {
	Index  int    `json:"index"`
	Choice string `json:"choice"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type resultPayload struct {
	SessionID    string        `json:"sessionId"`
	Result       domain.Result `json:"result"`
	Persisted    bool          `json:"persisted"`
	RecordID     string        `json:"recordId,omitempty"`
	PersistError string        `json:"persistError,omitempty"`
}

// ServeWS upgrades the request and opens a session for userId. When topic is
// given the session starts right away. Closing the socket abandons the session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	initial, err := parseStart(startPayload{TopicID: q.Get("topic"), Difficulty: q.Get("difficulty")}, q.Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.OpenSession(ctx, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
		return
	}
	sessionID := session.ID()
	defer h.service.CloseSession(context.Background(), sessionID)

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		}
	}()

	if initial.TopicID != "" {
		snap, err := h.service.StartSession(ctx, sessionID, initial)
		h.reply(send, snap, err)
	} else {
		snap, _ := h.service.SessionSnapshot(sessionID)
		send <- outboundMessage[any]{Type: "snapshot", Payload: snap}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage(domain.NewValidationError("payload", "invalid start payload"))
				continue
			}
			req, err := parseStart(payload, strconv.Itoa(payload.Limit))
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			snap, err := h.service.StartSession(ctx, sessionID, req)
			h.reply(send, snap, err)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage(domain.NewValidationError("payload", "invalid answer payload"))
				continue
			}
			fb, _, err := h.service.AnswerSession(ctx, sessionID, payload.Index, payload.Choice)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage[any]{Type: "feedback", Payload: fb}
		case "advance":
			snap, err := h.service.AdvanceSession(ctx, sessionID)
			h.reply(send, snap, err)
		case "retry":
			snap, err := h.service.RetrySession(ctx, sessionID)
			h.reply(send, snap, err)
		case "persist":
			snap, err := h.service.PersistSession(ctx, sessionID)
			h.reply(send, snap, err)
		default:
			send <- errorMessage(domain.NewValidationError("type", "unsupported message type"))
		}
	}

	close(send)
	<-writerDone
}

// reply sends the result once a session completed, a snapshot otherwise, then
// the error if any. A persistence failure still delivers the graded result.
func (h *WSHandler) reply(send chan<- outboundMessage[any], snap app.Snapshot, err error) {
	if snap.Completed && snap.Result != nil && (err == nil || errors.Is(err, domain.ErrPersistence)) {
		send <- outboundMessage[any]{Type: "result", Payload: resultPayload{
			SessionID:    snap.SessionID,
			Result:       *snap.Result,
			Persisted:    snap.Persisted,
			RecordID:     snap.RecordID,
			PersistError: snap.PersistError,
		}}
	} else if err == nil {
		send <- outboundMessage[any]{Type: "snapshot", Payload: snap}
	}
	if err != nil {
		msg := errorMessage(err)
		if errors.Is(err, domain.ErrPersistence) {
			h.logger.Warn("session result not persisted", zap.String("session_id", snap.SessionID), zap.Error(err))
		}
		send <- msg
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorBody(err)}
}

func parseStart(p startPayload, rawLimit string) (app.TopicRequest, error) {
	req := app.TopicRequest{TopicID: p.TopicID}
	limit, err := optionalInt(rawLimit, "limit")
	if err != nil {
		return req, err
	}
	req.Limit = limit
	if req.Difficulty, err = domain.ParseDifficulty(p.Difficulty); err != nil {
		return req, err
	}
	return req, nil
}

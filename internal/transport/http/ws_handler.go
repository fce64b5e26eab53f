package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"mastery-quiz/internal/app"
	"mastery-quiz/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	topics   []domain.Topic
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, topics []domain.Topic, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		topics:  topics,
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
	TopicID string `json:"topicId"`
}

type completePayload struct {
	SessionID string `json:"sessionId"`
	Score     int    `json:"score"`
}

type clearPayload struct {
	TopicID string `json:"topicId"`
}

type sessionPayload struct {
	SessionID    string            `json:"sessionId"`
	TopicID      string            `json:"topicId"`
	Title        string            `json:"title"`
	Questions    []domain.Question `json:"questions"`
	HistoryReset bool              `json:"historyReset"`
	Generated    bool              `json:"generated"`
}

type syncedPayload struct {
	Added int `json:"added"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and dispatches quiz commands.
// Replies on one connection keep request order; sync progress is streamed
// before its final synced message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// Single writer: gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("ws write error", "err", err)
				// Keep draining so the reader never blocks on a dead connection.
				for range send {
				}
				return
			}
		}
	}()

	reply := func(typ string, payload any) {
		send <- outboundMessage[any]{Type: typ, Payload: payload}
	}
	fail := func(err error) {
		reply("error", errorPayload{Code: errorCode(err), Message: err.Error()})
	}

	reply("topics", h.topics)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "topics":
			reply("topics", h.topics)
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.TopicID == "" {
				reply("error", errorPayload{Code: "bad_request", Message: "invalid start payload"})
				continue
			}
			session, err := h.service.StartSession(ctx, domain.ParseTarget(payload.TopicID))
			if err != nil {
				fail(err)
				continue
			}
			reply("session", sessionPayload{
				SessionID:    session.ID,
				TopicID:      session.TopicID,
				Title:        session.Title,
				Questions:    session.Questions,
				HistoryReset: session.HistoryReset,
				Generated:    session.Generated,
			})
		case "complete":
			var payload completePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SessionID == "" {
				reply("error", errorPayload{Code: "bad_request", Message: "invalid complete payload"})
				continue
			}
			done, err := h.service.CompleteSession(ctx, payload.SessionID, payload.Score)
			if err != nil {
				fail(err)
				continue
			}
			reply("result", done)
		case "stats":
			h.replyStats(ctx, reply, fail)
		case "sync":
			added, err := h.service.Sync(ctx, func(p domain.SyncProgress) { reply("progress", p) })
			if err != nil {
				fail(err)
				continue
			}
			reply("synced", syncedPayload{Added: added})
		case "resetHistory":
			if err := h.service.ResetHistory(ctx); err != nil {
				fail(err)
				continue
			}
			h.replyStats(ctx, reply, fail)
		case "clearArchive":
			var payload clearPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.TopicID == "" {
				reply("error", errorPayload{Code: "bad_request", Message: "invalid clearArchive payload"})
				continue
			}
			if err := h.service.ClearArchive(ctx, payload.TopicID); err != nil {
				fail(err)
				continue
			}
			h.replyStats(ctx, reply, fail)
		default:
			reply("error", errorPayload{Code: "unsupported", Message: "unsupported message type"})
		}
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) replyStats(ctx context.Context, reply func(string, any), fail func(error)) {
	d, err := h.service.Dashboard(ctx)
	if err != nil {
		fail(err)
		return
	}
	reply("stats", d)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrNoQuestions):
		return "no_questions"
	case errors.Is(err, domain.ErrInvalidResult):
		return "invalid_result"
	case errors.Is(err, domain.ErrUnknownTopic):
		return "unknown_topic"
	default:
		return "internal"
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/adapter/dto/chatdto"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/infrastructure/http/middleware"
	"github.com/lessonlens/lessonlens/internal/usecase/chat"
)

// ChatHandler exposes the conversation endpoints
type ChatHandler struct {
	chat   chat.Service
	logger *zap.Logger
}

// NewChatHandler creates a chat handler
func NewChatHandler(chatService chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chatService, logger: logger}
}

// Ask answers one learner question with timestamped citations.
// With "stream": true the answer is delivered as server-sent events:
// a sequence of "delta" events followed by one "done" event carrying
// usage and citations.
func (h *ChatHandler) Ask(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	var req chatdto.AskRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument(err.Error()))
	}

	ask, err := h.toAskRequest(identity, &req)
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument(err.Error()))
	}

	if req.Stream {
		return h.askStream(c, *ask)
	}

	answer, err := h.chat.Ask(c.Request().Context(), *ask)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, toAskResponse(answer))
}

// askStream writes the exchange as SSE. Errors before the first delta
// still produce a regular JSON error; after that the stream is simply
// closed, since the status line is already on the wire.
func (h *ChatHandler) askStream(c echo.Context, ask chat.AskRequest) error {
	started := false
	res := c.Response()

	onDelta := func(delta string) error {
		if !started {
			res.Header().Set(echo.HeaderContentType, "text/event-stream")
			res.Header().Set("Cache-Control", "no-cache")
			res.Header().Set("Connection", "keep-alive")
			res.WriteHeader(http.StatusOK)
			started = true
		}
		return writeSSE(res, "delta", chatdto.StreamDelta{Content: delta})
	}

	answer, err := h.chat.AskStream(c.Request().Context(), ask, onDelta)

	if err != nil && !started {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return HandleError(h.logger, c, err)
	}
	if answer == nil {
		return nil
	}

	done := chatdto.StreamDone{
		SessionID:       answer.SessionID.String(),
		VideoReferences: answer.VideoReferences,
		Usage:           answer.Usage,
		Cached:          answer.Cached,
	}
	if !started {
		// Cached empty stream path never fires a delta; fall back to a
		// plain JSON body so the client still gets the answer envelope.
		return HandleSuccess(h.logger, c, toAskResponse(answer))
	}
	if err := writeSSE(res, "done", done); err != nil {
		h.logger.Warn("⚠️ Failed to write terminal stream event", zap.Error(err))
	}
	return nil
}

// ListSessions returns the calling student's sessions with this creator
func (h *ChatHandler) ListSessions(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	sessions, err := h.chat.ListSessions(c.Request().Context(), identity.CreatorID, identity.StudentID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	out := make([]chatdto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, chatdto.SessionResponse{
			ID:            s.ID.String(),
			Title:         s.Title,
			CreatedAt:     s.CreatedAt.Format(time.RFC3339),
			LastMessageAt: s.LastMessageAt.Format(time.RFC3339),
		})
	}
	return HandleSuccess(h.logger, c, out)
}

// SessionMessages returns one session's full message history
func (h *ChatHandler) SessionMessages(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument("invalid session id"))
	}

	messages, err := h.chat.SessionMessages(c.Request().Context(), identity.CreatorID, identity.StudentID, sessionID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	out := make([]chatdto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatdto.MessageResponse{
			ID:              m.ID.String(),
			Role:            string(m.Role),
			Content:         m.Content,
			VideoReferences: m.References(),
			CreatedAt:       m.CreatedAt.Format(time.RFC3339),
		})
	}
	return HandleSuccess(h.logger, c, out)
}

func (h *ChatHandler) toAskRequest(identity *middleware.Identity, req *chatdto.AskRequest) (*chat.AskRequest, error) {
	sessionID, err := parseOptionalUUID(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session_id: %w", err)
	}
	courseID, err := parseOptionalUUID(req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("invalid course_id: %w", err)
	}
	videoID, err := parseOptionalUUID(req.VideoID)
	if err != nil {
		return nil, fmt.Errorf("invalid video_id: %w", err)
	}
	return &chat.AskRequest{
		CreatorID: identity.CreatorID,
		StudentID: identity.StudentID,
		SessionID: sessionID,
		CourseID:  courseID,
		VideoID:   videoID,
		Message:   req.Message,
	}, nil
}

func toAskResponse(answer *chat.Answer) chatdto.AskResponse {
	refs := answer.VideoReferences
	if refs == nil {
		refs = []entities.VideoReference{}
	}
	return chatdto.AskResponse{
		Content:         answer.Content,
		SessionID:       answer.SessionID.String(),
		VideoReferences: refs,
		Usage:           answer.Usage,
		Cached:          answer.Cached,
	}
}

// writeSSE emits one server-sent event and flushes it to the client
func writeSSE(res *echo.Response, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

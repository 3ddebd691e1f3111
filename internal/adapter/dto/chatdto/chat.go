package chatdto

import (
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/usecase/chat"
)

// AskRequest is the chat endpoint's request body
type AskRequest struct {
	Message   string  `json:"message" validate:"required,notblank"`
	SessionID *string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	CourseID  *string `json:"course_id,omitempty" validate:"omitempty,uuid"`
	VideoID   *string `json:"video_id,omitempty" validate:"omitempty,uuid"`
	Stream    bool    `json:"stream,omitempty"`
}

// AskResponse is the non-streaming chat response
type AskResponse struct {
	Content         string                    `json:"content"`
	SessionID       string                    `json:"session_id"`
	VideoReferences []entities.VideoReference `json:"video_references"`
	Usage           chat.Usage                `json:"usage"`
	Cached          bool                      `json:"cached,omitempty"`
}

// StreamDelta is one content fragment of a streaming response
type StreamDelta struct {
	Content string `json:"content"`
}

// StreamDone terminates a streaming response with usage and citations
type StreamDone struct {
	SessionID       string                    `json:"session_id"`
	VideoReferences []entities.VideoReference `json:"video_references"`
	Usage           chat.Usage                `json:"usage"`
	Cached          bool                      `json:"cached,omitempty"`
}

// SessionResponse is one session in a listing
type SessionResponse struct {
	ID            string  `json:"id"`
	Title         *string `json:"title,omitempty"`
	CreatedAt     string  `json:"created_at"`
	LastMessageAt string  `json:"last_message_at"`
}

// MessageResponse is one message of a session history
type MessageResponse struct {
	ID              string                    `json:"id"`
	Role            string                    `json:"role"`
	Content         string                    `json:"content"`
	VideoReferences []entities.VideoReference `json:"video_references,omitempty"`
	CreatedAt       string                    `json:"created_at"`
}

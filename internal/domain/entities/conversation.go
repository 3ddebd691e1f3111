package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MessageRole distinguishes learner questions from generated answers
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// VideoReference is a citation tying an answer back to its source chunk
type VideoReference struct {
	VideoID   uuid.UUID `json:"video_id"`
	Title     string    `json:"title"`
	Timestamp float64   `json:"timestamp"`
	Excerpt   string    `json:"excerpt"`
}

// ConversationSession groups the messages of one learner/creator thread.
// Sessions are never explicitly closed; they only age out by inactivity.
type ConversationSession struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatorID     uuid.UUID `json:"creator_id" gorm:"type:uuid;not null;index"`
	StudentID     uuid.UUID `json:"student_id" gorm:"type:uuid;not null;index"`
	Title         *string   `json:"title,omitempty" gorm:"type:varchar(255)"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	LastMessageAt time.Time `json:"last_message_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (ConversationSession) TableName() string {
	return "conversation_sessions"
}

// NewConversationSession creates a new session for the given pair
func NewConversationSession(creatorID, studentID uuid.UUID) *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		ID:            uuid.New(),
		CreatorID:     creatorID,
		StudentID:     studentID,
		CreatedAt:     now,
		LastMessageAt: now,
	}
}

// Message is one turn of a conversation. Messages within a session are
// strictly ordered by creation time; an assistant message always follows a
// user message in the same session.
type Message struct {
	ID              uuid.UUID                              `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID       uuid.UUID                              `json:"session_id" gorm:"type:uuid;not null;index:idx_messages_session"`
	Role            MessageRole                            `json:"role" gorm:"type:varchar(16);not null"`
	Content         string                                 `json:"content" gorm:"type:text;not null"`
	VideoReferences datatypes.JSONType[[]VideoReference]   `json:"video_references" gorm:"type:jsonb"`
	InputTokens     int                                    `json:"input_tokens"`
	OutputTokens    int                                    `json:"output_tokens"`
	Cost            float64                                `json:"cost"`
	CreatedAt       time.Time                              `json:"created_at" gorm:"autoCreateTime;index:idx_messages_session"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// NewUserMessage creates a learner message
func NewUserMessage(sessionID uuid.UUID, content string) *Message {
	return &Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates a generated answer with its citations and cost
func NewAssistantMessage(sessionID uuid.UUID, content string, refs []VideoReference, inputTokens, outputTokens int, cost float64) *Message {
	return &Message{
		ID:              uuid.New(),
		SessionID:       sessionID,
		Role:            RoleAssistant,
		Content:         content,
		VideoReferences: datatypes.NewJSONType(refs),
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		Cost:            cost,
		CreatedAt:       time.Now(),
	}
}

// References unwraps the citation list
func (m *Message) References() []VideoReference {
	return m.VideoReferences.Data()
}

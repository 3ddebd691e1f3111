package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// ConversationRepository defines persistence for sessions and their messages
type ConversationRepository interface {
	CreateSession(ctx context.Context, session *entities.ConversationSession) error
	GetSessionByID(ctx context.Context, id uuid.UUID) (*entities.ConversationSession, error)
	UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) error
	TouchSession(ctx context.Context, id uuid.UUID) error
	ListSessionsByStudent(ctx context.Context, creatorID, studentID uuid.UUID) ([]*entities.ConversationSession, error)

	CreateMessage(ctx context.Context, message *entities.Message) error
	// ListMessages returns the session's messages in ascending creation
	// order. limit <= 0 means no limit.
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*entities.Message, error)
	CountMessages(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// ConversationRepository handles session and message data operations
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateSession creates a new conversation session
func (r *ConversationRepository) CreateSession(ctx context.Context, session *entities.ConversationSession) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSessionByID retrieves a session by ID
func (r *ConversationRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*entities.ConversationSession, error) {
	var session entities.ConversationSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// UpdateSessionTitle sets the generated title on a session
func (r *ConversationRepository) UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) error {
	return r.db.WithContext(ctx).
		Model(&entities.ConversationSession{}).
		Where("id = ?", id).
		Update("title", title).Error
}

// TouchSession bumps the session's last activity timestamp
func (r *ConversationRepository) TouchSession(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&entities.ConversationSession{}).
		Where("id = ?", id).
		Update("last_message_at", time.Now()).Error
}

// ListSessionsByStudent retrieves a student's sessions with a creator,
// most recently active first
func (r *ConversationRepository) ListSessionsByStudent(ctx context.Context, creatorID, studentID uuid.UUID) ([]*entities.ConversationSession, error) {
	var sessions []*entities.ConversationSession
	if err := r.db.WithContext(ctx).
		Where("creator_id = ? AND student_id = ?", creatorID, studentID).
		Order("last_message_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateMessage appends a message to its session
func (r *ConversationRepository) CreateMessage(ctx context.Context, message *entities.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	return r.db.WithContext(ctx).Create(message).Error
}

// ListMessages returns a session's messages in ascending creation order.
// With limit > 0, the most recent limit messages are returned, still in
// ascending order.
func (r *ConversationRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*entities.Message, error) {
	var messages []*entities.Message
	tx := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if limit > 0 {
		if err := tx.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
			return nil, err
		}
		// reverse back to chronological order
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
		return messages, nil
	}
	if err := tx.Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessages returns the number of messages in a session
func (r *ConversationRepository) CountMessages(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Message{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

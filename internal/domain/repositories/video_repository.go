package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// VideoRepository defines persistence operations for the video registry
type VideoRepository interface {
	Create(ctx context.Context, video *entities.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	Update(ctx context.Context, video *entities.Video) error
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*entities.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

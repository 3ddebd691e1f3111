package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// VideoRepository handles video registry data operations
type VideoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new video repository
func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create creates a new video
func (r *VideoRepository) Create(ctx context.Context, video *entities.Video) error {
	if video == nil {
		return errors.New("video cannot be nil")
	}
	return r.db.WithContext(ctx).Create(video).Error
}

// GetByID retrieves a video by ID
func (r *VideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	var video entities.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &video, nil
}

// Update saves a video
func (r *VideoRepository) Update(ctx context.Context, video *entities.Video) error {
	if video == nil {
		return errors.New("video cannot be nil")
	}
	return r.db.WithContext(ctx).
		Model(&entities.Video{}).
		Where("id = ?", video.ID).
		Save(video).Error
}

// ListByCreator retrieves all videos owned by a creator
func (r *VideoRepository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*entities.Video, error) {
	var videos []*entities.Video
	if err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("published_at DESC").
		Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// Delete deletes a video; chunks cascade at the database level
func (r *VideoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entities.Video{}, "id = ?", id).Error
}

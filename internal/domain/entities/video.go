package entities

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptSegment is the input unit produced by transcript acquisition.
// Immutable once handed to the chunker; how the transcript was produced
// (ASR, platform captions, manual upload) is not this core's concern.
type TranscriptSegment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Video is the owning aggregate for chunks. A creator exclusively owns its
// videos; deleting a video cascades to its chunks.
type Video struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatorID       uuid.UUID  `json:"creator_id" gorm:"type:uuid;not null;index"`
	CourseID        *uuid.UUID `json:"course_id,omitempty" gorm:"type:uuid;index"`
	Title           string     `json:"title" gorm:"type:varchar(255);not null"`
	DurationSeconds float64    `json:"duration_seconds"`
	PublishedAt     time.Time  `json:"published_at"`
	ChunkCount      int        `json:"chunk_count" gorm:"default:0"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Video) TableName() string {
	return "videos"
}

// NewVideo creates a new video owned by the given creator
func NewVideo(creatorID uuid.UUID, title string) *Video {
	return &Video{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		Title:       title,
		PublishedAt: time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Chunk is the atomic retrievable unit: a bounded, timestamped slice of a
// transcript. Created by the chunker, mutated exactly once when the
// embedding pipeline attaches its vector, then immutable. Deleted only when
// the owning video is deleted.
type Chunk struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	VideoID    uuid.UUID  `json:"video_id" gorm:"type:uuid;not null;index:idx_chunks_video"`
	CreatorID  uuid.UUID  `json:"creator_id" gorm:"type:uuid;not null;index"`
	CourseID   *uuid.UUID `json:"course_id,omitempty" gorm:"type:uuid;index"`
	ChunkIndex int        `json:"chunk_index" gorm:"not null"`
	Text       string     `json:"text" gorm:"type:text;not null"`
	StartTime  float64    `json:"start_time"`
	EndTime    float64    `json:"end_time"`
	WordCount  int        `json:"word_count"`
	// Nullable until the embedding pipeline runs.
	Embedding *pgvector.Vector `json:"-" gorm:"type:vector(1536)"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Chunk) TableName() string {
	return "chunks"
}

// IsEmbedded reports whether the chunk has an attached vector
func (c *Chunk) IsEmbedded() bool {
	return c.Embedding != nil
}

package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// SearchFilter scopes a vector search. CreatorID is mandatory: it is a hard
// tenant boundary, so every search predicate carries it regardless of the
// narrower filters.
type SearchFilter struct {
	CreatorID     uuid.UUID
	CourseID      *uuid.UUID
	VideoID       *uuid.UUID
	TopK          int
	MinSimilarity float64
}

// ChunkRepository defines persistence and search over embedded chunks
type ChunkRepository interface {
	// ReplaceForVideo atomically swaps a video's chunk set: delete then
	// insert in one transaction, so re-ingestion never leaves a mix of old
	// and new chunks visible.
	ReplaceForVideo(ctx context.Context, videoID uuid.UUID, chunks []*entities.Chunk) error
	CountByVideo(ctx context.Context, videoID uuid.UUID) (int64, error)
	// Search returns up to filter.TopK candidates ordered by descending
	// cosine similarity, discarding anything below filter.MinSimilarity.
	Search(ctx context.Context, query pgvector.Vector, filter SearchFilter) ([]entities.SearchCandidate, error)
	DeleteByVideo(ctx context.Context, videoID uuid.UUID) error
}

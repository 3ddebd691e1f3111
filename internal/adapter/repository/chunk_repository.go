package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
)

// ChunkRepository handles chunk persistence and pgvector similarity search
type ChunkRepository struct {
	db     *gorm.DB
	logger *zap.Logger

	indexCheck sync.Once
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *gorm.DB, logger *zap.Logger) *ChunkRepository {
	return &ChunkRepository{db: db, logger: logger}
}

// ReplaceForVideo swaps a video's chunk set atomically. Re-ingestion must
// never leave old and new chunks visible at the same time, so delete,
// insert and the chunk-count update share one transaction.
func (r *ChunkRepository) ReplaceForVideo(ctx context.Context, videoID uuid.UUID, chunks []*entities.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&entities.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
				return err
			}
		}
		return tx.Model(&entities.Video{}).
			Where("id = ?", videoID).
			Update("chunk_count", len(chunks)).Error
	})
}

// CountByVideo returns the number of stored chunks for a video
func (r *ChunkRepository) CountByVideo(ctx context.Context, videoID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Chunk{}).
		Where("video_id = ?", videoID).
		Count(&count).Error
	return count, err
}

// DeleteByVideo removes all chunks belonging to a video
func (r *ChunkRepository) DeleteByVideo(ctx context.Context, videoID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&entities.Chunk{}).Error
}

type searchRow struct {
	ID               uuid.UUID
	VideoID          uuid.UUID
	CreatorID        uuid.UUID
	CourseID         *uuid.UUID
	ChunkIndex       int
	Text             string
	StartTime        float64
	EndTime          float64
	WordCount        int
	Similarity       float64
	VideoTitle       string
	VideoPublishedAt time.Time
	VideoChunkCount  int
}

// Search runs a filtered cosine top-k over the creator's chunks. The
// creator predicate is always present: it is the tenant boundary, not an
// optimization. Results arrive in descending similarity order with
// below-threshold hits discarded.
func (r *ChunkRepository) Search(ctx context.Context, query pgvector.Vector, filter repositories.SearchFilter) ([]entities.SearchCandidate, error) {
	if filter.CreatorID == uuid.Nil {
		return nil, errors.New("search requires a creator filter")
	}
	r.indexCheck.Do(func() { r.warnIfNoANNIndex(ctx) })

	topK := filter.TopK
	if topK <= 0 {
		topK = 8
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT c.id, c.video_id, c.creator_id, c.course_id, c.chunk_index,
		       c.text, c.start_time, c.end_time, c.word_count,
		       1 - (c.embedding <=> ?) AS similarity,
		       v.title AS video_title,
		       v.published_at AS video_published_at,
		       v.chunk_count AS video_chunk_count
		FROM chunks c
		JOIN videos v ON v.id = c.video_id
		WHERE c.creator_id = ? AND c.embedding IS NOT NULL`)
	args := []interface{}{query, filter.CreatorID}
	if filter.CourseID != nil {
		sb.WriteString(" AND c.course_id = ?")
		args = append(args, *filter.CourseID)
	}
	if filter.VideoID != nil {
		sb.WriteString(" AND c.video_id = ?")
		args = append(args, *filter.VideoID)
	}
	sb.WriteString(" ORDER BY c.embedding <=> ? LIMIT ?")
	args = append(args, query, topK)

	var rows []searchRow
	if err := r.db.WithContext(ctx).Raw(sb.String(), args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	candidates := make([]entities.SearchCandidate, 0, len(rows))
	for _, row := range rows {
		if row.Similarity < filter.MinSimilarity {
			continue
		}
		candidates = append(candidates, entities.SearchCandidate{
			Chunk: entities.Chunk{
				ID:         row.ID,
				VideoID:    row.VideoID,
				CreatorID:  row.CreatorID,
				CourseID:   row.CourseID,
				ChunkIndex: row.ChunkIndex,
				Text:       row.Text,
				StartTime:  row.StartTime,
				EndTime:    row.EndTime,
				WordCount:  row.WordCount,
			},
			Similarity:       row.Similarity,
			VideoTitle:       row.VideoTitle,
			VideoPublishedAt: row.VideoPublishedAt,
			VideoChunkCount:  row.VideoChunkCount,
		})
	}
	return candidates, nil
}

// warnIfNoANNIndex flags searches that will run as sequential scans.
// Search still degrades gracefully without the index, it is just slow,
// so this is telemetry rather than an error.
func (r *ChunkRepository) warnIfNoANNIndex(ctx context.Context) {
	var count int64
	err := r.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM pg_indexes WHERE tablename = 'chunks' AND indexdef LIKE '%ivfflat%'").
		Scan(&count).Error
	if err != nil {
		r.logger.Warn("⚠️ could not verify ANN index on chunks", zap.Error(err))
		return
	}
	if count == 0 {
		r.logger.Warn("⚠️ no ivfflat index on chunks.embedding, similarity search will fall back to sequential scan")
	}
}

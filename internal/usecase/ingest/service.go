package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
	"github.com/lessonlens/lessonlens/internal/usecase/chunker"
	"github.com/lessonlens/lessonlens/internal/usecase/cost"
	"github.com/lessonlens/lessonlens/internal/usecase/embedding"
)

// Archiver persists raw transcript segments for later re-embedding
type Archiver interface {
	ArchiveSegments(ctx context.Context, videoID uuid.UUID, segments []entities.TranscriptSegment) error
	DeleteArchive(ctx context.Context, videoID uuid.UUID) error
}

// Result summarizes one transcript ingestion
type Result struct {
	VideoID         uuid.UUID `json:"video_id"`
	ChunkCount      int       `json:"chunk_count"`
	EmbeddingTokens int       `json:"embedding_tokens"`
	Cost            float64   `json:"cost"`
	Model           string    `json:"model"`
}

// Service manages the video registry and the chunk-embed-store path
type Service interface {
	RegisterVideo(ctx context.Context, creatorID uuid.UUID, courseID *uuid.UUID, title string, durationSeconds float64, publishedAt time.Time) (*entities.Video, error)
	ListVideos(ctx context.Context, creatorID uuid.UUID) ([]*entities.Video, error)
	DeleteVideo(ctx context.Context, creatorID, videoID uuid.UUID) error
	IngestTranscript(ctx context.Context, creatorID, videoID uuid.UUID, segments []entities.TranscriptSegment) (*Result, error)
}

type service struct {
	videos    repositories.VideoRepository
	chunks    repositories.ChunkRepository
	embedder  embedding.Service
	archive   Archiver
	guard     *cost.Guard
	chunkOpts chunker.Options
	logger    *zap.Logger
}

// NewService creates an ingest service
func NewService(
	videos repositories.VideoRepository,
	chunks repositories.ChunkRepository,
	embedder embedding.Service,
	archive Archiver,
	guard *cost.Guard,
	chunkOpts chunker.Options,
	logger *zap.Logger,
) Service {
	return &service{
		videos:    videos,
		chunks:    chunks,
		embedder:  embedder,
		archive:   archive,
		guard:     guard,
		chunkOpts: chunkOpts,
		logger:    logger,
	}
}

// RegisterVideo adds a video to the creator's registry
func (s *service) RegisterVideo(ctx context.Context, creatorID uuid.UUID, courseID *uuid.UUID, title string, durationSeconds float64, publishedAt time.Time) (*entities.Video, error) {
	if title == "" {
		return nil, apperrors.ErrInvalidArgument("video title is required")
	}

	video := entities.NewVideo(creatorID, title)
	video.CourseID = courseID
	video.DurationSeconds = durationSeconds
	if !publishedAt.IsZero() {
		video.PublishedAt = publishedAt
	}

	if err := s.videos.Create(ctx, video); err != nil {
		return nil, apperrors.ErrDBQueryFailed("create video", err)
	}
	return video, nil
}

// ListVideos returns the creator's registry
func (s *service) ListVideos(ctx context.Context, creatorID uuid.UUID) ([]*entities.Video, error) {
	videos, err := s.videos.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("list videos", err)
	}
	return videos, nil
}

// DeleteVideo removes a video, its chunks and its archived transcript
func (s *service) DeleteVideo(ctx context.Context, creatorID, videoID uuid.UUID) error {
	video, err := s.ownedVideo(ctx, creatorID, videoID)
	if err != nil {
		return err
	}

	if err := s.chunks.DeleteByVideo(ctx, video.ID); err != nil {
		return apperrors.ErrDBQueryFailed("delete chunks", err)
	}
	if err := s.videos.Delete(ctx, video.ID); err != nil {
		return apperrors.ErrDBQueryFailed("delete video", err)
	}
	if err := s.archive.DeleteArchive(ctx, video.ID); err != nil {
		s.logger.Warn("⚠️ Failed to delete archived transcript",
			zap.String("video_id", video.ID.String()),
			zap.Error(err))
	}
	return nil
}

// IngestTranscript runs chunk, embed, store and ledger update for one
// video. Re-ingesting replaces the video's chunks atomically. The raw
// segments are archived so a chunking or model change can re-run later.
func (s *service) IngestTranscript(ctx context.Context, creatorID, videoID uuid.UUID, segments []entities.TranscriptSegment) (*Result, error) {
	video, err := s.ownedVideo(ctx, creatorID, videoID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CheckBudget(ctx, creatorID); err != nil {
		return nil, err
	}

	chunks, err := chunker.Chunk(segments, s.chunkOpts)
	if err != nil {
		return nil, apperrors.ErrTranscriptInvalid(err.Error())
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedded, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i, c := range chunks {
		vec := pgvector.NewVector(embedded.Vectors[i])
		c.ID = uuid.New()
		c.VideoID = video.ID
		c.CreatorID = video.CreatorID
		c.CourseID = video.CourseID
		c.Embedding = &vec
	}

	if err := s.chunks.ReplaceForVideo(ctx, video.ID, chunks); err != nil {
		return nil, apperrors.ErrIngestFailed(err)
	}

	s.guard.Record(ctx, creatorID, entities.UsageDelta{
		EmbeddingTokens: int64(embedded.TotalTokens),
		CostUSD:         embedded.TotalCost,
	})

	if err := s.archive.ArchiveSegments(ctx, video.ID, segments); err != nil {
		s.logger.Warn("⚠️ Failed to archive transcript segments",
			zap.String("video_id", video.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("✅ Transcript ingested",
		zap.String("video_id", video.ID.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedding_tokens", embedded.TotalTokens))

	return &Result{
		VideoID:         video.ID,
		ChunkCount:      len(chunks),
		EmbeddingTokens: embedded.TotalTokens,
		Cost:            embedded.TotalCost,
		Model:           embedded.Model,
	}, nil
}

// ownedVideo loads a video and enforces the tenant boundary
func (s *service) ownedVideo(ctx context.Context, creatorID, videoID uuid.UUID) (*entities.Video, error) {
	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("get video", err)
	}
	if video == nil {
		return nil, apperrors.ErrVideoNotFound(videoID.String())
	}
	if video.CreatorID != creatorID {
		return nil, apperrors.ErrTenantMismatch()
	}
	return video, nil
}

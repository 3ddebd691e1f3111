package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/adapter/dto/videodto"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/infrastructure/http/middleware"
	"github.com/lessonlens/lessonlens/internal/usecase/ingest"
)

// VideoHandler exposes the creator-facing registry and ingest endpoints
type VideoHandler struct {
	ingest ingest.Service
	logger *zap.Logger
}

// NewVideoHandler creates a video handler
func NewVideoHandler(ingestService ingest.Service, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{ingest: ingestService, logger: logger}
}

// Register adds a video to the creator's registry
func (h *VideoHandler) Register(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	var req videodto.RegisterVideoRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument(err.Error()))
	}

	courseID, err := parseOptionalUUID(req.CourseID)
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument("invalid course_id"))
	}

	publishedAt := time.Time{}
	if req.PublishedAt != nil {
		publishedAt = *req.PublishedAt
	}

	video, err := h.ingest.RegisterVideo(c.Request().Context(), identity.CreatorID, courseID, req.Title, req.DurationSeconds, publishedAt)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, toVideoResponse(video))
}

// List returns the creator's video registry
func (h *VideoHandler) List(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	videos, err := h.ingest.ListVideos(c.Request().Context(), identity.CreatorID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	out := make([]videodto.VideoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, toVideoResponse(v))
	}
	return HandleSuccess(h.logger, c, out)
}

// Delete removes a video with its chunks and archived transcript
func (h *VideoHandler) Delete(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument("invalid video id"))
	}

	if err := h.ingest.DeleteVideo(c.Request().Context(), identity.CreatorID, videoID); err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, map[string]string{"video_id": videoID.String()})
}

// IngestTranscript chunks, embeds and stores a video's transcript.
// Re-posting a transcript replaces the video's chunks.
func (h *VideoHandler) IngestTranscript(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument("invalid video id"))
	}

	var req videodto.IngestTranscriptRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument(err.Error()))
	}

	segments := make([]entities.TranscriptSegment, len(req.Segments))
	for i, s := range req.Segments {
		segments[i] = entities.TranscriptSegment{
			Text:      s.Text,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		}
	}

	result, err := h.ingest.IngestTranscript(c.Request().Context(), identity.CreatorID, videoID, segments)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, result)
}

func toVideoResponse(v *entities.Video) videodto.VideoResponse {
	var courseID *string
	if v.CourseID != nil {
		s := v.CourseID.String()
		courseID = &s
	}
	return videodto.VideoResponse{
		ID:              v.ID.String(),
		CourseID:        courseID,
		Title:           v.Title,
		DurationSeconds: v.DurationSeconds,
		PublishedAt:     v.PublishedAt.Format(time.RFC3339),
		ChunkCount:      v.ChunkCount,
	}
}

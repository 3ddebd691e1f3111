package videodto

import "time"

// RegisterVideoRequest adds a video to the creator's registry
type RegisterVideoRequest struct {
	Title           string     `json:"title" validate:"required,notblank,max=255"`
	CourseID        *string    `json:"course_id,omitempty" validate:"omitempty,uuid"`
	DurationSeconds float64    `json:"duration_seconds" validate:"gte=0"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

// Segment is one timestamped transcript segment
type Segment struct {
	Text      string  `json:"text" validate:"required,notblank"`
	StartTime float64 `json:"start_time" validate:"gte=0"`
	EndTime   float64 `json:"end_time" validate:"gtefield=StartTime"`
}

// IngestTranscriptRequest carries a video's full transcript
type IngestTranscriptRequest struct {
	Segments []Segment `json:"segments" validate:"required,min=1,dive"`
}

// VideoResponse is one video in a listing
type VideoResponse struct {
	ID              string  `json:"id"`
	CourseID        *string `json:"course_id,omitempty"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds"`
	PublishedAt     string  `json:"published_at"`
	ChunkCount      int     `json:"chunk_count"`
}

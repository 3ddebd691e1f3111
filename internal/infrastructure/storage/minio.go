package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/pkg/config"
)

// TranscriptArchive keeps the raw transcript segments of every ingested
// video in object storage. The database only holds derived chunks, so the
// archive is what makes re-chunking and re-embedding possible after a
// chunking-policy or model change.
type TranscriptArchive struct {
	client *minio.Client
	bucket string
}

// NewTranscriptArchive creates the archive client and ensures its bucket
func NewTranscriptArchive(cfg *config.StorageConfig) (*TranscriptArchive, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	archive := &TranscriptArchive{
		client: minioClient,
		bucket: cfg.BucketName,
	}

	if err := archive.ensureBucket(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return archive, nil
}

func (a *TranscriptArchive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func objectName(videoID uuid.UUID) string {
	return fmt.Sprintf("transcripts/%s.json", videoID)
}

// ArchiveSegments persists the raw segment list for a video, replacing any
// previous archive for the same video
func (a *TranscriptArchive) ArchiveSegments(ctx context.Context, videoID uuid.UUID, segments []entities.TranscriptSegment) error {
	payload, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}

	reader := bytes.NewReader(payload)
	_, err = a.client.PutObject(ctx, a.bucket, objectName(videoID), reader, int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload transcript: %w", err)
	}
	return nil
}

// LoadSegments retrieves the archived segment list for a video
func (a *TranscriptArchive) LoadSegments(ctx context.Context, videoID uuid.UUID) ([]entities.TranscriptSegment, error) {
	object, err := a.client.GetObject(ctx, a.bucket, objectName(videoID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	defer object.Close()

	payload, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var segments []entities.TranscriptSegment
	if err := json.Unmarshal(payload, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return segments, nil
}

// DeleteArchive removes a video's archived transcript
func (a *TranscriptArchive) DeleteArchive(ctx context.Context, videoID uuid.UUID) error {
	return a.client.RemoveObject(ctx, a.bucket, objectName(videoID), minio.RemoveObjectOptions{})
}

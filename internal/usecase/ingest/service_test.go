package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
	"github.com/lessonlens/lessonlens/internal/usecase/chunker"
	"github.com/lessonlens/lessonlens/internal/usecase/cost"
	"github.com/lessonlens/lessonlens/internal/usecase/embedding"
	"github.com/lessonlens/lessonlens/pkg/config"
)

type fakeVideoRepo struct {
	videos map[uuid.UUID]*entities.Video
}

func newFakeVideoRepo() *fakeVideoRepo {
	return &fakeVideoRepo{videos: make(map[uuid.UUID]*entities.Video)}
}

func (f *fakeVideoRepo) Create(_ context.Context, v *entities.Video) error {
	f.videos[v.ID] = v
	return nil
}
func (f *fakeVideoRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Video, error) {
	return f.videos[id], nil
}
func (f *fakeVideoRepo) Update(_ context.Context, v *entities.Video) error {
	f.videos[v.ID] = v
	return nil
}
func (f *fakeVideoRepo) ListByCreator(_ context.Context, creatorID uuid.UUID) ([]*entities.Video, error) {
	var out []*entities.Video
	for _, v := range f.videos {
		if v.CreatorID == creatorID {
			out = append(out, v)
		}
	}
	return out, nil
}
func (f *fakeVideoRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.videos, id)
	return nil
}

type fakeChunkRepo struct {
	stored     map[uuid.UUID][]*entities.Chunk
	replaceErr error
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{stored: make(map[uuid.UUID][]*entities.Chunk)}
}

func (f *fakeChunkRepo) ReplaceForVideo(_ context.Context, videoID uuid.UUID, chunks []*entities.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.stored[videoID] = chunks
	return nil
}
func (f *fakeChunkRepo) CountByVideo(_ context.Context, videoID uuid.UUID) (int64, error) {
	return int64(len(f.stored[videoID])), nil
}
func (f *fakeChunkRepo) Search(context.Context, pgvector.Vector, repositories.SearchFilter) ([]entities.SearchCandidate, error) {
	return nil, nil
}
func (f *fakeChunkRepo) DeleteByVideo(_ context.Context, videoID uuid.UUID) error {
	delete(f.stored, videoID)
	return nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) (*embedding.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 2, 3}
	}
	return &embedding.Result{Vectors: vectors, TotalTokens: 100, TotalCost: 0.002, Model: "test-model"}, nil
}
func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, int, float64, error) {
	return []float32{1, 2, 3}, 10, 0.0002, nil
}

type fakeArchiver struct {
	archived map[uuid.UUID][]entities.TranscriptSegment
	err      error
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{archived: make(map[uuid.UUID][]entities.TranscriptSegment)}
}

func (f *fakeArchiver) ArchiveSegments(_ context.Context, videoID uuid.UUID, segments []entities.TranscriptSegment) error {
	if f.err != nil {
		return f.err
	}
	f.archived[videoID] = segments
	return nil
}
func (f *fakeArchiver) DeleteArchive(_ context.Context, videoID uuid.UUID) error {
	delete(f.archived, videoID)
	return nil
}

type fakeUsageRepo struct {
	ledgers map[uuid.UUID]*entities.UsageLedger
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{ledgers: make(map[uuid.UUID]*entities.UsageLedger)}
}

func (f *fakeUsageRepo) AddUsage(_ context.Context, creatorID uuid.UUID, day time.Time, delta entities.UsageDelta) error {
	ledger, ok := f.ledgers[creatorID]
	if !ok {
		ledger = &entities.UsageLedger{CreatorID: creatorID, Day: day}
		f.ledgers[creatorID] = ledger
	}
	ledger.EmbeddingTokens += delta.EmbeddingTokens
	ledger.GenerationTokens += delta.GenerationTokens
	ledger.CostUSD += delta.CostUSD
	return nil
}
func (f *fakeUsageRepo) GetUsage(_ context.Context, creatorID uuid.UUID, day time.Time) (*entities.UsageLedger, error) {
	if ledger, ok := f.ledgers[creatorID]; ok {
		return ledger, nil
	}
	return &entities.UsageLedger{CreatorID: creatorID, Day: day}, nil
}

type fixture struct {
	svc      Service
	videos   *fakeVideoRepo
	chunks   *fakeChunkRepo
	embedder *fakeEmbedder
	archive  *fakeArchiver
	usage    *fakeUsageRepo
}

func newFixture(limit float64) *fixture {
	f := &fixture{
		videos:   newFakeVideoRepo(),
		chunks:   newFakeChunkRepo(),
		embedder: &fakeEmbedder{},
		archive:  newFakeArchiver(),
		usage:    newFakeUsageRepo(),
	}
	guard := cost.NewGuard(f.usage, config.BudgetConfig{DailyCostLimit: limit}, zap.NewNop())
	opts := chunker.Options{MinWords: 10, MaxWords: 60, OverlapWords: 10}
	f.svc = NewService(f.videos, f.chunks, f.embedder, f.archive, guard, opts, zap.NewNop())
	return f
}

func segmentsOfWords(counts ...int) []entities.TranscriptSegment {
	var out []entities.TranscriptSegment
	start := 0.0
	for _, n := range counts {
		words := make([]string, n)
		for i := range words {
			words[i] = fmt.Sprintf("word%d", i)
		}
		out = append(out, entities.TranscriptSegment{
			Text:      strings.Join(words, " "),
			StartTime: start,
			EndTime:   start + float64(n),
		})
		start += float64(n)
	}
	return out
}

func TestIngestTranscriptStoresEmbeddedChunks(t *testing.T) {
	f := newFixture(5.0)
	creatorID := uuid.New()
	courseID := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), creatorID, &courseID, "Intro", 120, time.Now())
	require.NoError(t, err)

	result, err := f.svc.IngestTranscript(context.Background(), creatorID, video.ID, segmentsOfWords(30, 40, 35))
	require.NoError(t, err)

	assert.Equal(t, 2, result.ChunkCount)
	assert.Equal(t, 100, result.EmbeddingTokens)
	assert.Equal(t, "test-model", result.Model)

	stored := f.chunks.stored[video.ID]
	require.Len(t, stored, 2)
	for _, c := range stored {
		assert.Equal(t, creatorID, c.CreatorID)
		require.NotNil(t, c.CourseID)
		assert.Equal(t, courseID, *c.CourseID)
		assert.True(t, c.IsEmbedded())
	}

	ledger := f.usage.ledgers[creatorID]
	require.NotNil(t, ledger)
	assert.Equal(t, int64(100), ledger.EmbeddingTokens)

	assert.Len(t, f.archive.archived[video.ID], 3)
}

func TestIngestTranscriptTenantMismatch(t *testing.T) {
	f := newFixture(5.0)
	owner := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), owner, nil, "Private", 0, time.Time{})
	require.NoError(t, err)

	_, err = f.svc.IngestTranscript(context.Background(), uuid.New(), video.ID, segmentsOfWords(30))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_TENANT_MISMATCH))
	assert.Equal(t, 0, f.embedder.calls)
	assert.Empty(t, f.chunks.stored)
}

func TestIngestTranscriptVideoNotFound(t *testing.T) {
	f := newFixture(5.0)

	_, err := f.svc.IngestTranscript(context.Background(), uuid.New(), uuid.New(), segmentsOfWords(30))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_VIDEO_NOT_FOUND))
}

func TestIngestTranscriptBudgetGate(t *testing.T) {
	f := newFixture(1.0)
	creatorID := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), creatorID, nil, "Costly", 0, time.Time{})
	require.NoError(t, err)

	require.NoError(t, f.usage.AddUsage(context.Background(), creatorID, cost.Today(), entities.UsageDelta{CostUSD: 1.0}))

	_, err = f.svc.IngestTranscript(context.Background(), creatorID, video.ID, segmentsOfWords(30))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_BUDGET_EXCEEDED))
	assert.Equal(t, 0, f.embedder.calls, "budget must be checked before spending")
}

func TestIngestTranscriptEmptyTranscriptRejected(t *testing.T) {
	f := newFixture(5.0)
	creatorID := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), creatorID, nil, "Silent", 0, time.Time{})
	require.NoError(t, err)

	_, err = f.svc.IngestTranscript(context.Background(), creatorID, video.ID, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_TRANSCRIPT_INVALID))
}

func TestIngestTranscriptEmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture(5.0)
	f.embedder.err = apperrors.ErrProviderPermanent("openai", errors.New("boom"))
	creatorID := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), creatorID, nil, "Broken", 0, time.Time{})
	require.NoError(t, err)

	_, err = f.svc.IngestTranscript(context.Background(), creatorID, video.ID, segmentsOfWords(30))
	require.Error(t, err)
	assert.Empty(t, f.chunks.stored)
	assert.Empty(t, f.usage.ledgers, "failed embedding must not be billed")
}

func TestIngestTranscriptArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(5.0)
	f.archive.err = errors.New("storage offline")
	creatorID := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), creatorID, nil, "Resilient", 0, time.Time{})
	require.NoError(t, err)

	result, err := f.svc.IngestTranscript(context.Background(), creatorID, video.ID, segmentsOfWords(30))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
}

func TestDeleteVideoEnforcesTenant(t *testing.T) {
	f := newFixture(5.0)
	owner := uuid.New()
	video, err := f.svc.RegisterVideo(context.Background(), owner, nil, "Mine", 0, time.Time{})
	require.NoError(t, err)

	err = f.svc.DeleteVideo(context.Background(), uuid.New(), video.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_TENANT_MISMATCH))

	require.NoError(t, f.svc.DeleteVideo(context.Background(), owner, video.ID))
	assert.Empty(t, f.videos.videos)
}

func TestRegisterVideoRequiresTitle(t *testing.T) {
	f := newFixture(5.0)

	_, err := f.svc.RegisterVideo(context.Background(), uuid.New(), nil, "", 0, time.Time{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_INVALID_ARGUMENT))
}

package embedding

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/infrastructure/external/openai"
	"github.com/lessonlens/lessonlens/pkg/config"
	"github.com/lessonlens/lessonlens/pkg/tokens"
)

// Provider is the narrow embedding contract the pipeline depends on
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) (*openai.EmbeddingResult, error)
}

// Result is one embed call's outcome: a vector per input text plus the
// usage totals the caller needs for the ledger. Returned only when every
// text embedded successfully.
type Result struct {
	Vectors     [][]float32
	TotalTokens int
	TotalCost   float64
	Model       string
}

// Service batches texts to the embedding provider with bounded retry
type Service interface {
	EmbedTexts(ctx context.Context, texts []string) (*Result, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, int, float64, error)
}

type service struct {
	provider Provider
	cfg      *config.OpenAIConfig
	logger   *zap.Logger
}

// NewService creates an embedding pipeline
func NewService(provider Provider, cfg *config.OpenAIConfig, logger *zap.Logger) Service {
	return &service{provider: provider, cfg: cfg, logger: logger}
}

// EmbedTexts embeds all texts in provider-sized batches. All-or-nothing:
// a batch that keeps failing, or a single malformed vector, fails the
// whole call so no text is silently left unembedded.
func (s *service) EmbedTexts(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return nil, apperrors.ErrInvalidArgument("no texts to embed")
	}

	batchSize := s.cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	vectors := make([][]float32, 0, len(texts))
	totalTokens := 0

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		result, err := s.embedBatch(ctx, batch)
		if err != nil {
			s.logger.Error("❌ Embedding batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			return nil, err
		}

		for i, vec := range result.Vectors {
			if err := s.validateVector(vec); err != nil {
				s.logger.Error("❌ Embedding vector rejected",
					zap.Int("index", start+i),
					zap.Error(err))
				return nil, err
			}
		}

		vectors = append(vectors, result.Vectors...)
		totalTokens += result.PromptTokens
	}

	s.logger.Info("✅ Embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("tokens", totalTokens),
		zap.String("model", s.cfg.EmbeddingModel))

	return &Result{
		Vectors:     vectors,
		TotalTokens: totalTokens,
		TotalCost:   tokens.Cost(totalTokens, s.cfg.EmbeddingPricePer1K),
		Model:       s.cfg.EmbeddingModel,
	}, nil
}

// EmbedQuery embeds a single query string, returning the vector with its
// token count and cost
func (s *service) EmbedQuery(ctx context.Context, text string) ([]float32, int, float64, error) {
	result, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, 0, 0, err
	}
	return result.Vectors[0], result.TotalTokens, result.TotalCost, nil
}

// embedBatch retries transient provider failures with exponential backoff;
// permanent failures abort immediately. The initial interval shrinks with
// small retry budgets: backoff stops once the next interval would overrun
// MaxElapsedTime, so a budget below the default interval would otherwise
// allow zero retries.
func (s *service) embedBatch(ctx context.Context, batch []string) (*openai.EmbeddingResult, error) {
	var result *openai.EmbeddingResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	if s.cfg.MaxRetryElapsed > 0 && s.cfg.MaxRetryElapsed < 10*bo.InitialInterval {
		bo.InitialInterval = s.cfg.MaxRetryElapsed / 10
	}
	bo.MaxElapsedTime = s.cfg.MaxRetryElapsed

	operation := func() error {
		res, err := s.provider.CreateEmbeddings(ctx, batch)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrorCode_PROVIDER_TRANSIENT) {
				s.logger.Warn("🔄 Transient embedding failure, retrying", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// validateVector enforces the fixed dimensionality and rejects NaN/Inf
// components; either invalidates the whole call.
func (s *service) validateVector(vec []float32) error {
	if len(vec) != s.cfg.EmbeddingDimension {
		return apperrors.ErrDimensionMismatch(s.cfg.EmbeddingDimension, len(vec))
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return apperrors.ErrProviderPermanent("openai", errors.New("embedding contains non-finite components"))
		}
	}
	return nil
}

package retrieval

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
	"github.com/lessonlens/lessonlens/internal/usecase/embedding"
	"github.com/lessonlens/lessonlens/pkg/config"
)

// Result carries everything one retrieval pass produced: the assembled
// context, the ranked candidates behind it, and what embedding the query
// cost (zero when the query vector was memoized).
type Result struct {
	Context         *BuiltContext
	Candidates      []entities.SearchCandidate
	EmbeddingTokens int
	EmbeddingCost   float64
}

// Service runs the query half of the pipeline: embed, search, rank, build
type Service interface {
	Retrieve(ctx context.Context, query string, filter repositories.SearchFilter, hasHistory bool) (*Result, error)
}

type service struct {
	embedder embedding.Service
	chunks   repositories.ChunkRepository
	ranker   *Ranker
	builder  *ContextBuilder
	memo     *gocache.Cache
	ctxCfg   config.ContextConfig
	model    string
	logger   *zap.Logger
}

// NewService creates a retrieval service. Query vectors are memoized
// in-process for the configured TTL, so repeated questions skip the
// embedding call entirely.
func NewService(
	embedder embedding.Service,
	chunks repositories.ChunkRepository,
	ranker *Ranker,
	builder *ContextBuilder,
	ctxCfg config.ContextConfig,
	cacheCfg config.CacheConfig,
	model string,
	logger *zap.Logger,
) Service {
	return &service{
		embedder: embedder,
		chunks:   chunks,
		ranker:   ranker,
		builder:  builder,
		memo:     gocache.New(cacheCfg.QueryEmbeddingTTL, 2*cacheCfg.QueryEmbeddingTTL),
		ctxCfg:   ctxCfg,
		model:    model,
		logger:   logger,
	}
}

// Retrieve embeds the query, searches the creator's chunks, ranks the
// hits and assembles the prompt context. An empty candidate set is a
// valid result, not an error.
func (s *service) Retrieve(ctx context.Context, query string, filter repositories.SearchFilter, hasHistory bool) (*Result, error) {
	vector, embedTokens, embedCost, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	if filter.TopK <= 0 {
		filter.TopK = s.ctxCfg.SearchTopK
	}
	if filter.MinSimilarity == 0 {
		filter.MinSimilarity = s.ctxCfg.MinSimilarity
	}

	candidates, err := s.chunks.Search(ctx, pgvector.NewVector(vector), filter)
	if err != nil {
		return nil, apperrors.ErrSearchFailed(err)
	}

	ranked := s.ranker.Rank(candidates, time.Now())
	built := s.builder.Build(ranked, s.ctxCfg.MaxTokens, hasHistory)

	s.logger.Debug("🔍 Retrieval complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("sources", len(built.Citations)),
		zap.Int("source_tokens", built.SourceTokens))

	return &Result{
		Context:         built,
		Candidates:      ranked,
		EmbeddingTokens: embedTokens,
		EmbeddingCost:   embedCost,
	}, nil
}

func (s *service) queryVector(ctx context.Context, query string) ([]float32, int, float64, error) {
	key := s.model + "|" + NormalizeQuery(query)
	if cached, ok := s.memo.Get(key); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, 0, 0, nil
		}
	}

	vec, embedTokens, embedCost, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, 0, 0, err
	}
	s.memo.Set(key, vec, gocache.DefaultExpiration)
	return vec, embedTokens, embedCost, nil
}

// NormalizeQuery lowercases and collapses whitespace so trivially
// different phrasings of the same question share cache entries
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

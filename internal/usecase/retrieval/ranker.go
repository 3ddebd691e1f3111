package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/pkg/config"
)

// Ranker reorders search candidates with a composite score: similarity
// stays the dominant signal, newer videos get a mild boost, and chunks
// buried deep in very long videos get a mild discount. Weights come from
// configuration so they can be tuned without touching the algorithm.
type Ranker struct {
	cfg config.RankingConfig
}

// NewRanker creates a ranker with the given weights
func NewRanker(cfg config.RankingConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Rank annotates every candidate with its composite score and returns the
// same candidates reordered, highest score first. Reorder-only: nothing is
// added or dropped, and ties keep their original similarity order.
func (r *Ranker) Rank(candidates []entities.SearchCandidate, now time.Time) []entities.SearchCandidate {
	ranked := make([]entities.SearchCandidate, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].RankScore = r.score(&ranked[i], now)
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].RankScore > ranked[b].RankScore
	})
	return ranked
}

func (r *Ranker) score(c *entities.SearchCandidate, now time.Time) float64 {
	return r.cfg.SimilarityWeight*c.Similarity +
		r.cfg.RecencyWeight*r.recency(c.VideoPublishedAt, now) +
		r.cfg.PositionWeight*r.position(c)
}

// recency decays exponentially with video age; a video published today
// scores 1, one half-life old scores 1/e.
func (r *Ranker) recency(publishedAt, now time.Time) float64 {
	if publishedAt.IsZero() || r.cfg.RecencyHalfLifeDays <= 0 {
		return 0
	}
	ageDays := now.Sub(publishedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / float64(r.cfg.RecencyHalfLifeDays))
}

// position scores 1 for everything except chunks inside videos longer
// than the configured chunk count, where later chunks score progressively
// lower.
func (r *Ranker) position(c *entities.SearchCandidate) float64 {
	if c.VideoChunkCount <= r.cfg.LongVideoChunkCount || c.VideoChunkCount <= 0 {
		return 1
	}
	return 1 - float64(c.Chunk.ChunkIndex)/float64(c.VideoChunkCount)
}

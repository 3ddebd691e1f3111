package entities

import "time"

// SearchCandidate is an ephemeral retrieval hit. It is never persisted;
// the ranker annotates RankScore, and the context builder consumes the
// denormalized video fields for citation display and scoring.
type SearchCandidate struct {
	Chunk           Chunk
	Similarity      float64 // cosine similarity in [0, 1]
	RankScore       float64 // composite score set by the ranker
	VideoTitle      string
	VideoPublishedAt time.Time
	VideoChunkCount int
}

package entities

import (
	"time"

	"github.com/google/uuid"
)

// UsageLedger accumulates per-creator daily token and dollar totals.
// Rows accumulate monotonically and are never decremented; a new calendar
// day starts a new row. Updates must be additive increments, never
// read-modify-write, so concurrent sessions cannot lose updates.
type UsageLedger struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatorID        uuid.UUID `json:"creator_id" gorm:"type:uuid;not null;uniqueIndex:idx_usage_creator_day"`
	Day              time.Time `json:"day" gorm:"type:date;not null;uniqueIndex:idx_usage_creator_day"`
	EmbeddingTokens  int64     `json:"embedding_tokens"`
	GenerationTokens int64     `json:"generation_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (UsageLedger) TableName() string {
	return "usage_ledgers"
}

// UsageDelta is one additive ledger contribution from a provider call
type UsageDelta struct {
	EmbeddingTokens  int64
	GenerationTokens int64
	CostUSD          float64
}

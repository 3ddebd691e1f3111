package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// UsageRepository handles the per-creator daily cost ledger
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// AddUsage applies an additive increment for (creator, day). The upsert
// increments in SQL rather than read-modify-write, so concurrent sessions
// cannot lose each other's contributions.
func (r *UsageRepository) AddUsage(ctx context.Context, creatorID uuid.UUID, day time.Time, delta entities.UsageDelta) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO usage_ledgers (id, creator_id, day, embedding_tokens, generation_tokens, cost_usd, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW())
		ON CONFLICT (creator_id, day) DO UPDATE SET
			embedding_tokens  = usage_ledgers.embedding_tokens + EXCLUDED.embedding_tokens,
			generation_tokens = usage_ledgers.generation_tokens + EXCLUDED.generation_tokens,
			cost_usd          = usage_ledgers.cost_usd + EXCLUDED.cost_usd,
			updated_at        = NOW()`,
		uuid.New(), creatorID, day.Format("2006-01-02"),
		delta.EmbeddingTokens, delta.GenerationTokens, delta.CostUSD,
	).Error
}

// GetUsage retrieves the ledger row for (creator, day); a zero-valued row
// is returned when the creator has no usage that day
func (r *UsageRepository) GetUsage(ctx context.Context, creatorID uuid.UUID, day time.Time) (*entities.UsageLedger, error) {
	var ledger entities.UsageLedger
	err := r.db.WithContext(ctx).
		Where("creator_id = ? AND day = ?", creatorID, day.Format("2006-01-02")).
		First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &entities.UsageLedger{CreatorID: creatorID, Day: day}, nil
		}
		return nil, err
	}
	return &ledger, nil
}

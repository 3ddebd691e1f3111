package cost

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
	"github.com/lessonlens/lessonlens/pkg/config"
)

// Guard fronts the per-creator daily UsageLedger: it gates provider calls
// on the configured budget and records every call's cost afterwards.
// Injected wherever spend happens so tests can substitute the repository.
type Guard struct {
	usage  repositories.UsageRepository
	cfg    config.BudgetConfig
	logger *zap.Logger
}

// NewGuard creates a cost guard
func NewGuard(usage repositories.UsageRepository, cfg config.BudgetConfig, logger *zap.Logger) *Guard {
	return &Guard{usage: usage, cfg: cfg, logger: logger}
}

// Today returns the current UTC calendar day the ledger aggregates by
func Today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// CheckBudget rejects with a budget-exceeded condition once the creator's
// spend for the day has reached the configured cap. Called before paid
// provider calls, never after.
func (g *Guard) CheckBudget(ctx context.Context, creatorID uuid.UUID) error {
	if g.cfg.DailyCostLimit <= 0 {
		return nil
	}
	ledger, err := g.usage.GetUsage(ctx, creatorID, Today())
	if err != nil {
		return apperrors.ErrDBQueryFailed("get usage", err)
	}
	if ledger.CostUSD >= g.cfg.DailyCostLimit {
		g.logger.Warn("💸 Daily budget exceeded",
			zap.String("creator_id", creatorID.String()),
			zap.Float64("spent", ledger.CostUSD),
			zap.Float64("limit", g.cfg.DailyCostLimit))
		return apperrors.ErrBudgetExceeded(creatorID.String())
	}
	return nil
}

// Record adds a usage delta to today's ledger row. Failures are logged,
// not propagated: a missed increment must not fail work that already
// spent the money.
func (g *Guard) Record(ctx context.Context, creatorID uuid.UUID, delta entities.UsageDelta) {
	if err := g.usage.AddUsage(ctx, creatorID, Today(), delta); err != nil {
		g.logger.Error("❌ Failed to record usage",
			zap.String("creator_id", creatorID.String()),
			zap.Float64("cost_usd", delta.CostUSD),
			zap.Error(err))
	}
}

// Usage returns today's ledger row for a creator
func (g *Guard) Usage(ctx context.Context, creatorID uuid.UUID) (*entities.UsageLedger, error) {
	ledger, err := g.usage.GetUsage(ctx, creatorID, Today())
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("get usage", err)
	}
	return ledger, nil
}

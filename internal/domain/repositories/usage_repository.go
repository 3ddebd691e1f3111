package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
)

// UsageRepository defines the append-only daily cost ledger
type UsageRepository interface {
	// AddUsage applies an additive increment for (creatorID, day). The
	// increment must be atomic at the database level so concurrent sessions
	// never lose updates.
	AddUsage(ctx context.Context, creatorID uuid.UUID, day time.Time, delta entities.UsageDelta) error
	GetUsage(ctx context.Context, creatorID uuid.UUID, day time.Time) (*entities.UsageLedger, error)
}

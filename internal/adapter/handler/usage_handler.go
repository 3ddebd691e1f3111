package handler

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/infrastructure/http/middleware"
	"github.com/lessonlens/lessonlens/internal/usecase/cost"
)

// UsageHandler exposes the creator's daily spend
type UsageHandler struct {
	guard  *cost.Guard
	logger *zap.Logger
}

// NewUsageHandler creates a usage handler
func NewUsageHandler(guard *cost.Guard, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{guard: guard, logger: logger}
}

type usageResponse struct {
	Day              string  `json:"day"`
	EmbeddingTokens  int64   `json:"embedding_tokens"`
	GenerationTokens int64   `json:"generation_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Today returns the calling creator's ledger row for the current UTC day
func (h *UsageHandler) Today(c echo.Context) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return HandleError(h.logger, c, apperrors.ErrUnauthenticated())
	}

	ledger, err := h.guard.Usage(c.Request().Context(), identity.CreatorID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, usageResponse{
		Day:              ledger.Day.Format("2006-01-02"),
		EmbeddingTokens:  ledger.EmbeddingTokens,
		GenerationTokens: ledger.GenerationTokens,
		CostUSD:          ledger.CostUSD,
	})
}

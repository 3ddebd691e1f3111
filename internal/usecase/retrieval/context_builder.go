package retrieval

import (
	"fmt"
	"strings"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/pkg/config"
	"github.com/lessonlens/lessonlens/pkg/tokens"
)

const excerptLength = 160

// BuiltContext is the assembled prompt context plus its positionally
// aligned citations: citation i always describes source block i.
type BuiltContext struct {
	PromptContext string
	Citations     []entities.VideoReference
	SourceTokens  int
	HistoryBudget int
}

// ContextBuilder greedily packs ranked candidates into a token budget
type ContextBuilder struct {
	cfg config.ContextConfig
}

// NewContextBuilder creates a context builder
func NewContextBuilder(cfg config.ContextConfig) *ContextBuilder {
	return &ContextBuilder{cfg: cfg}
}

// Build selects ranked candidates highest score first until the next one
// would exceed the source budget. When history exists, a configured
// fraction of maxTokens is reserved for it before source selection, so
// long conversations never starve retrieval and vice versa. Zero
// candidates still yield a valid empty-sources context.
func (b *ContextBuilder) Build(ranked []entities.SearchCandidate, maxTokens int, hasHistory bool) *BuiltContext {
	historyBudget := 0
	sourceBudget := maxTokens
	if hasHistory {
		historyBudget = int(float64(maxTokens) * b.cfg.HistoryFraction)
		sourceBudget = maxTokens - historyBudget
	}

	var blocks []string
	var citations []entities.VideoReference
	used := 0

	for _, c := range ranked {
		block := fmt.Sprintf("[Source %d] %s (%s)\n%s",
			len(blocks)+1, c.VideoTitle, FormatTimestamp(c.Chunk.StartTime), c.Chunk.Text)
		cost := tokens.Estimate(block)
		if used+cost > sourceBudget {
			break
		}
		used += cost
		blocks = append(blocks, block)
		citations = append(citations, entities.VideoReference{
			VideoID:   c.Chunk.VideoID,
			Title:     c.VideoTitle,
			Timestamp: c.Chunk.StartTime,
			Excerpt:   excerpt(c.Chunk.Text),
		})
	}

	return &BuiltContext{
		PromptContext: strings.Join(blocks, "\n\n"),
		Citations:     citations,
		SourceTokens:  used,
		HistoryBudget: historyBudget,
	}
}

func excerpt(text string) string {
	if len(text) <= excerptLength {
		return text
	}
	cut := text[:excerptLength]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// FormatTimestamp renders seconds as m:ss or h:mm:ss for citation display
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

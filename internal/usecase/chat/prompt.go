package chat

import (
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/infrastructure/external/openai"
	"github.com/lessonlens/lessonlens/internal/usecase/retrieval"
	"github.com/lessonlens/lessonlens/pkg/tokens"
)

const systemPromptWithSources = `You are a learning assistant for a video course library. Answer the learner's question using only the numbered source excerpts below, each taken from a video transcript at the given timestamp. Refer to sources as [Source N] when you use them. If the sources do not contain the answer, say so plainly instead of guessing.

Sources:
`

const systemPromptNoSources = `You are a learning assistant for a video course library. No transcript excerpts matched the learner's question. Tell the learner you could not find relevant content in the creator's videos for this question, and suggest rephrasing. Do not invent course content.`

// buildPrompt assembles the generation request: a system message carrying
// the source blocks, then as much trailing history as fits the reserved
// budget, then the current question.
func buildPrompt(query string, built *retrieval.BuiltContext, history []*entities.Message) []openai.ChatMessage {
	var messages []openai.ChatMessage

	if built != nil && built.PromptContext != "" {
		messages = append(messages, openai.ChatMessage{
			Role:    "system",
			Content: systemPromptWithSources + built.PromptContext,
		})
	} else {
		messages = append(messages, openai.ChatMessage{Role: "system", Content: systemPromptNoSources})
	}

	budget := 0
	if built != nil {
		budget = built.HistoryBudget
	}
	for _, m := range trimHistory(history, budget) {
		messages = append(messages, openai.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	messages = append(messages, openai.ChatMessage{Role: "user", Content: query})
	return messages
}

// trimHistory keeps the most recent messages that fit the token budget,
// returned in chronological order
func trimHistory(history []*entities.Message, budget int) []*entities.Message {
	if budget <= 0 || len(history) == 0 {
		return nil
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := tokens.Estimate(history[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}

// estimatePromptTokens approximates the input size of a prompt when the
// provider does not report usage (streaming mode)
func estimatePromptTokens(messages []openai.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += tokens.Estimate(m.Content)
	}
	return total
}

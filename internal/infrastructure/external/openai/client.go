package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/pkg/config"
)

const providerName = "openai"

// Client wraps the OpenAI API for embeddings and chat completion. All
// methods classify failures as transient (retryable) or permanent so
// callers can decide whether backoff makes sense.
type Client struct {
	api    *openai.Client
	cfg    *config.OpenAIConfig
	logger *zap.Logger
}

// NewClient creates an OpenAI client from configuration
func NewClient(cfg *config.OpenAIConfig, logger *zap.Logger) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		cfg:    cfg,
		logger: logger,
	}
}

// EmbeddingResult is one batched embedding call's outcome
type EmbeddingResult struct {
	Vectors      [][]float32
	PromptTokens int
	Model        string
}

// CreateEmbeddings embeds one batch of texts. The response must carry
// exactly one vector per input, in input order.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, c.classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.ErrProviderPermanent(providerName,
			errors.New("embedding response count does not match input count"))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, apperrors.ErrProviderPermanent(providerName,
				errors.New("embedding response index out of range"))
		}
		vectors[item.Index] = item.Embedding
	}

	return &EmbeddingResult{
		Vectors:      vectors,
		PromptTokens: resp.Usage.PromptTokens,
		Model:        c.cfg.EmbeddingModel,
	}, nil
}

// ChatMessage is one turn of a completion prompt
type ChatMessage struct {
	Role    string
	Content string
}

// ChatResult is a non-streaming completion outcome
type ChatResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ChatCompletion runs a single non-streaming completion
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []ChatMessage, maxTokens int) (*ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(messages),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.ErrProviderPermanent(providerName, errors.New("completion returned no choices"))
	}

	return &ChatResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// StreamChatCompletion runs a streaming completion, invoking onDelta for
// every content fragment. It returns the accumulated content, including
// whatever arrived before an onDelta error or stream failure, so the
// caller can persist partial output. A fixed deadline would cut healthy
// long answers short, so the per-call timeout is applied as an idle
// deadline instead: the stream is aborted when no event arrives within
// RequestTimeout.
func (c *Client) StreamChatCompletion(ctx context.Context, model string, messages []ChatMessage, maxTokens int, onDelta func(delta string) error) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(c.cfg.RequestTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(messages),
		MaxTokens: maxTokens,
		Stream:    true,
	})
	if err != nil {
		return "", c.classify(err)
	}
	defer stream.Close()

	var content string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return content, nil
		}
		if err != nil {
			if stalled.Load() {
				return content, apperrors.ErrProviderTransient(providerName,
					errors.New("stream stalled: no data within request timeout"))
			}
			return content, c.classify(err)
		}
		watchdog.Reset(c.cfg.RequestTimeout)
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content += delta
		if err := onDelta(delta); err != nil {
			return content, err
		}
	}
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// classify maps provider failures onto the transient/permanent taxonomy.
// Rate limits, server errors and timeouts are retryable; auth and request
// shape problems are not.
func (c *Client) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return apperrors.ErrProviderTransient(providerName, err)
		case apiErr.HTTPStatusCode >= 500:
			return apperrors.ErrProviderTransient(providerName, err)
		default:
			return apperrors.ErrProviderPermanent(providerName, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Network-level failures (connection refused, deadline exceeded) are
	// worth retrying.
	return apperrors.ErrProviderTransient(providerName, err)
}

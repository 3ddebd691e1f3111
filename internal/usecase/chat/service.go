package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
	"github.com/lessonlens/lessonlens/internal/infrastructure/cache"
	"github.com/lessonlens/lessonlens/internal/infrastructure/external/openai"
	"github.com/lessonlens/lessonlens/internal/usecase/cost"
	"github.com/lessonlens/lessonlens/internal/usecase/retrieval"
	"github.com/lessonlens/lessonlens/pkg/config"
	"github.com/lessonlens/lessonlens/pkg/tokens"
)

// Generator is the generation-provider contract the session depends on
type Generator interface {
	ChatCompletion(ctx context.Context, model string, messages []openai.ChatMessage, maxTokens int) (*openai.ChatResult, error)
	StreamChatCompletion(ctx context.Context, model string, messages []openai.ChatMessage, maxTokens int, onDelta func(delta string) error) (string, error)
}

// Usage is the token and dollar cost of one exchange
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Answer is the user-visible result of one exchange
type Answer struct {
	SessionID       uuid.UUID                 `json:"session_id"`
	Content         string                    `json:"content"`
	VideoReferences []entities.VideoReference `json:"video_references"`
	Usage           Usage                     `json:"usage"`
	Cached          bool                      `json:"cached"`
}

// AskRequest is one inbound learner question
type AskRequest struct {
	CreatorID uuid.UUID
	StudentID uuid.UUID
	SessionID *uuid.UUID
	CourseID  *uuid.UUID
	VideoID   *uuid.UUID
	Message   string
}

// Service runs conversation exchanges over the retrieval pipeline
type Service interface {
	Ask(ctx context.Context, req AskRequest) (*Answer, error)
	// AskStream behaves like Ask but pushes content deltas through
	// onDelta as they arrive. If the caller cancels mid-stream, the
	// partial answer and its cost are still persisted; the returned
	// Answer then carries the partial content alongside ctx's error.
	AskStream(ctx context.Context, req AskRequest, onDelta func(delta string) error) (*Answer, error)
	ListSessions(ctx context.Context, creatorID, studentID uuid.UUID) ([]*entities.ConversationSession, error)
	SessionMessages(ctx context.Context, creatorID, studentID, sessionID uuid.UUID) ([]*entities.Message, error)
}

type service struct {
	conversations repositories.ConversationRepository
	retriever     retrieval.Service
	generator     Generator
	guard         *cost.Guard
	answers       cache.Store
	aiCfg         *config.OpenAIConfig
	ctxCfg        config.ContextConfig
	cacheCfg      config.CacheConfig
	logger        *zap.Logger

	// One mutex per in-flight session: messages within a session
	// serialize, sessions stay independent. Entries are refcounted and
	// removed once the last exchange on a session finishes.
	lockMu       sync.Mutex
	sessionLocks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a conversation service
func NewService(
	conversations repositories.ConversationRepository,
	retriever retrieval.Service,
	generator Generator,
	guard *cost.Guard,
	answers cache.Store,
	aiCfg *config.OpenAIConfig,
	ctxCfg config.ContextConfig,
	cacheCfg config.CacheConfig,
	logger *zap.Logger,
) Service {
	return &service{
		conversations: conversations,
		retriever:     retriever,
		generator:     generator,
		guard:         guard,
		answers:       answers,
		aiCfg:         aiCfg,
		ctxCfg:        ctxCfg,
		cacheCfg:      cacheCfg,
		logger:        logger,
		sessionLocks:  make(map[uuid.UUID]*sessionLock),
	}
}

// Ask runs one non-streaming exchange
func (s *service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	return s.exchange(ctx, req, nil)
}

// AskStream runs one streaming exchange
func (s *service) AskStream(ctx context.Context, req AskRequest, onDelta func(delta string) error) (*Answer, error) {
	if onDelta == nil {
		return nil, apperrors.ErrInvalidArgument("streaming requires a delta callback")
	}
	return s.exchange(ctx, req, onDelta)
}

func (s *service) exchange(ctx context.Context, req AskRequest, onDelta func(string) error) (*Answer, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperrors.ErrInvalidArgument("message is required")
	}
	if req.CreatorID == uuid.Nil {
		return nil, apperrors.ErrInvalidArgument("creator id is required")
	}
	if req.StudentID == uuid.Nil {
		return nil, apperrors.ErrInvalidArgument("student id is required")
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	lock := s.acquireSession(session.ID)
	defer s.releaseSession(session.ID, lock)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	history, err := s.conversations.ListMessages(ctx, session.ID, s.ctxCfg.HistoryMessages)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("list messages", err)
	}
	firstExchange := len(history) == 0

	userMsg := entities.NewUserMessage(session.ID, message)
	if err := s.conversations.CreateMessage(ctx, userMsg); err != nil {
		return nil, apperrors.ErrDBQueryFailed("create message", err)
	}
	s.touch(ctx, session.ID)

	// A cache hit short-circuits everything below: no embedding, no
	// search, no generation, zero additional cost.
	key := answerCacheKey(message, req.CreatorID, req.CourseID, req.VideoID)
	if answer := s.cachedExchange(ctx, key, session, firstExchange, message, onDelta); answer != nil {
		return answer, nil
	}

	if err := s.guard.CheckBudget(ctx, req.CreatorID); err != nil {
		return nil, err
	}

	built, embTokens, embCost := s.retrieve(ctx, message, req, len(history) > 0)
	prompt := buildPrompt(message, built, history)

	var content string
	var inTokens, outTokens int
	var genErr error

	if onDelta == nil {
		var result *openai.ChatResult
		result, genErr = s.generate(ctx, prompt)
		if genErr != nil {
			// The query embedding was already paid for even though
			// generation produced nothing.
			s.guard.Record(context.WithoutCancel(ctx), req.CreatorID, entities.UsageDelta{
				EmbeddingTokens: int64(embTokens),
				CostUSD:         embCost,
			})
			return nil, apperrors.ErrGenerationFailed(genErr)
		}
		content = result.Content
		inTokens = result.PromptTokens
		outTokens = result.CompletionTokens
	} else {
		content, genErr = s.streamGenerate(ctx, prompt, onDelta)
		inTokens = estimatePromptTokens(prompt)
		outTokens = tokens.Estimate(content)
		canceled := errors.Is(genErr, context.Canceled) || ctx.Err() != nil
		if genErr != nil && !canceled {
			s.guard.Record(context.WithoutCancel(ctx), req.CreatorID, entities.UsageDelta{
				EmbeddingTokens:  int64(embTokens),
				GenerationTokens: int64(inTokens + outTokens),
				CostUSD: embCost +
					tokens.Cost(inTokens, s.aiCfg.GenerationInPricePer1K) +
					tokens.Cost(outTokens, s.aiCfg.GenerationOutPricePer1K),
			})
			return nil, apperrors.ErrGenerationFailed(genErr)
		}
		if canceled && content == "" {
			// Nothing streamed, but the prompt and query embedding were
			// already paid for.
			s.guard.Record(context.WithoutCancel(ctx), req.CreatorID, entities.UsageDelta{
				EmbeddingTokens:  int64(embTokens),
				GenerationTokens: int64(inTokens),
				CostUSD:          embCost + tokens.Cost(inTokens, s.aiCfg.GenerationInPricePer1K),
			})
			return nil, genErr
		}
	}

	totalCost := embCost +
		tokens.Cost(inTokens, s.aiCfg.GenerationInPricePer1K) +
		tokens.Cost(outTokens, s.aiCfg.GenerationOutPricePer1K)

	// Finalize writes run on a detached context: a caller abandoning a
	// stream must not lose the partial answer or its cost.
	persistCtx := context.WithoutCancel(ctx)

	assistant := entities.NewAssistantMessage(session.ID, content, built.Citations, inTokens, outTokens, totalCost)
	if err := s.conversations.CreateMessage(persistCtx, assistant); err != nil {
		return nil, apperrors.ErrDBQueryFailed("create message", err)
	}
	s.touch(persistCtx, session.ID)

	s.guard.Record(persistCtx, req.CreatorID, entities.UsageDelta{
		EmbeddingTokens:  int64(embTokens),
		GenerationTokens: int64(inTokens + outTokens),
		CostUSD:          totalCost,
	})

	if genErr == nil {
		s.cacheAnswer(persistCtx, key, content, built.Citations)
	}
	if firstExchange {
		go s.generateTitle(session.ID, session.CreatorID, message)
	}

	answer := &Answer{
		SessionID:       session.ID,
		Content:         content,
		VideoReferences: built.Citations,
		Usage:           Usage{InputTokens: inTokens, OutputTokens: outTokens, Cost: totalCost},
	}
	return answer, genErr
}

// retrieve runs the retrieval pipeline with graceful degradation: if
// search or query embedding fails, the exchange continues without sources
// rather than failing outright. Budget rejections are not degradable.
func (s *service) retrieve(ctx context.Context, message string, req AskRequest, hasHistory bool) (*retrieval.BuiltContext, int, float64) {
	filter := repositories.SearchFilter{
		CreatorID: req.CreatorID,
		CourseID:  req.CourseID,
		VideoID:   req.VideoID,
	}
	result, err := s.retriever.Retrieve(ctx, message, filter, hasHistory)
	if err != nil {
		s.logger.Warn("⚠️ Retrieval failed, answering without sources",
			zap.String("creator_id", req.CreatorID.String()),
			zap.Error(err))
		return &retrieval.BuiltContext{}, 0, 0
	}
	return result.Context, result.EmbeddingTokens, result.EmbeddingCost
}

// cachedExchange serves a prior answer when the cache holds one. The
// user and assistant messages are still persisted so the session history
// stays complete.
func (s *service) cachedExchange(ctx context.Context, key string, session *entities.ConversationSession, firstExchange bool, message string, onDelta func(string) error) *Answer {
	payload, ok, err := s.answers.Get(ctx, key)
	if err != nil {
		s.logger.Warn("⚠️ Answer cache read failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	cached, err := decodeCachedAnswer(payload)
	if err != nil {
		s.logger.Warn("⚠️ Dropping undecodable cache entry", zap.Error(err))
		_ = s.answers.Delete(ctx, key)
		return nil
	}

	assistant := entities.NewAssistantMessage(session.ID, cached.Content, cached.Citations, 0, 0, 0)
	if err := s.conversations.CreateMessage(ctx, assistant); err != nil {
		s.logger.Error("❌ Failed to persist cached answer", zap.Error(err))
		return nil
	}
	s.touch(ctx, session.ID)

	if onDelta != nil {
		_ = onDelta(cached.Content)
	}
	if firstExchange {
		go s.generateTitle(session.ID, session.CreatorID, message)
	}

	s.logger.Info("⚡ Answer served from cache", zap.String("session_id", session.ID.String()))
	return &Answer{
		SessionID:       session.ID,
		Content:         cached.Content,
		VideoReferences: cached.Citations,
		Cached:          true,
	}
}

// retryBackoff builds the bounded retry policy for provider calls. The
// initial interval shrinks with small retry budgets: backoff stops as soon
// as the next interval would overrun MaxElapsedTime, so a budget below the
// default interval would otherwise allow zero retries.
func retryBackoff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	if maxElapsed > 0 && maxElapsed < 10*bo.InitialInterval {
		bo.InitialInterval = maxElapsed / 10
	}
	bo.MaxElapsedTime = maxElapsed
	// NewExponentialBackOff already ran Reset with the default interval;
	// reset again so the adjusted InitialInterval takes effect for callers
	// that use the backoff without an explicit Reset.
	bo.Reset()
	return bo
}

// generate retries transient generation failures with bounded backoff
func (s *service) generate(ctx context.Context, prompt []openai.ChatMessage) (*openai.ChatResult, error) {
	var result *openai.ChatResult

	bo := retryBackoff(s.aiCfg.MaxRetryElapsed)

	operation := func() error {
		res, err := s.generator.ChatCompletion(ctx, s.aiCfg.ChatModel, prompt, s.aiCfg.GenerationMaxTokens)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrorCode_PROVIDER_TRANSIENT) {
				s.logger.Warn("🔄 Transient generation failure, retrying", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// streamGenerate retries transient failures only while nothing has been
// streamed yet; once the first delta reached the caller a retry would
// duplicate output.
func (s *service) streamGenerate(ctx context.Context, prompt []openai.ChatMessage, onDelta func(string) error) (string, error) {
	var content string
	started := false

	bo := retryBackoff(s.aiCfg.MaxRetryElapsed)

	operation := func() error {
		streamed, err := s.generator.StreamChatCompletion(ctx, s.aiCfg.ChatModel, prompt, s.aiCfg.GenerationMaxTokens, func(delta string) error {
			started = true
			return onDelta(delta)
		})
		content = streamed
		if err == nil {
			return nil
		}
		if !started && apperrors.IsCode(err, apperrors.ErrorCode_PROVIDER_TRANSIENT) {
			s.logger.Warn("🔄 Transient stream failure before first delta, retrying", zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	return content, err
}

func (s *service) cacheAnswer(ctx context.Context, key, content string, citations []entities.VideoReference) {
	payload, err := encodeCachedAnswer(content, citations)
	if err != nil {
		s.logger.Warn("⚠️ Failed to encode answer for cache", zap.Error(err))
		return
	}
	if err := s.answers.Set(ctx, key, payload, s.cacheCfg.AnswerTTL); err != nil {
		s.logger.Warn("⚠️ Answer cache write failed", zap.Error(err))
	}
}

// generateTitle labels a session after its first exchange. Best effort:
// failure is logged and never fails the exchange that triggered it.
func (s *service) generateTitle(sessionID, creatorID uuid.UUID, question string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prompt := []openai.ChatMessage{
		{Role: "system", Content: "Write a short title, at most six words, for a conversation that opens with the following question. Reply with the title only."},
		{Role: "user", Content: question},
	}
	result, err := s.generator.ChatCompletion(ctx, s.aiCfg.TitleModel, prompt, 24)
	if err != nil {
		s.logger.Warn("⚠️ Session title generation failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return
	}

	s.guard.Record(ctx, creatorID, entities.UsageDelta{
		GenerationTokens: int64(result.PromptTokens + result.CompletionTokens),
		CostUSD: tokens.Cost(result.PromptTokens, s.aiCfg.GenerationInPricePer1K) +
			tokens.Cost(result.CompletionTokens, s.aiCfg.GenerationOutPricePer1K),
	})

	title := strings.Trim(strings.TrimSpace(result.Content), `"`)
	if len(title) > 80 {
		title = title[:80]
	}
	if title == "" {
		return
	}
	if err := s.conversations.UpdateSessionTitle(ctx, sessionID, title); err != nil {
		s.logger.Warn("⚠️ Failed to store session title",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
	}
}

// ListSessions returns the student's sessions with this creator
func (s *service) ListSessions(ctx context.Context, creatorID, studentID uuid.UUID) ([]*entities.ConversationSession, error) {
	sessions, err := s.conversations.ListSessionsByStudent(ctx, creatorID, studentID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("list sessions", err)
	}
	return sessions, nil
}

// SessionMessages returns a session's full history after an ownership check
func (s *service) SessionMessages(ctx context.Context, creatorID, studentID, sessionID uuid.UUID) ([]*entities.Message, error) {
	session, err := s.ownedSession(ctx, creatorID, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.conversations.ListMessages(ctx, session.ID, 0)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("list messages", err)
	}
	return messages, nil
}

func (s *service) resolveSession(ctx context.Context, req AskRequest) (*entities.ConversationSession, error) {
	if req.SessionID != nil {
		return s.ownedSession(ctx, req.CreatorID, req.StudentID, *req.SessionID)
	}

	session := entities.NewConversationSession(req.CreatorID, req.StudentID)
	if err := s.conversations.CreateSession(ctx, session); err != nil {
		return nil, apperrors.ErrDBQueryFailed("create session", err)
	}
	return session, nil
}

// ownedSession resolves a session id, reporting not-found for foreign
// sessions so their existence is not leaked across tenants
func (s *service) ownedSession(ctx context.Context, creatorID, studentID, sessionID uuid.UUID) (*entities.ConversationSession, error) {
	session, err := s.conversations.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.ErrDBQueryFailed("get session", err)
	}
	if session == nil || session.CreatorID != creatorID || session.StudentID != studentID {
		return nil, apperrors.ErrSessionNotFound(sessionID.String())
	}
	return session, nil
}

func (s *service) acquireSession(sessionID uuid.UUID) *sessionLock {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.sessionLocks[sessionID]
	if !ok {
		lock = &sessionLock{}
		s.sessionLocks[sessionID] = lock
	}
	lock.refs++
	return lock
}

func (s *service) releaseSession(sessionID uuid.UUID, lock *sessionLock) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.sessionLocks, sessionID)
	}
}

func (s *service) touch(ctx context.Context, sessionID uuid.UUID) {
	if err := s.conversations.TouchSession(ctx, sessionID); err != nil {
		s.logger.Warn("⚠️ Failed to bump session activity", zap.Error(err))
	}
}

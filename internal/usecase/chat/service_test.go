package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/lessonlens/lessonlens/errors"
	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/internal/domain/repositories"
	"github.com/lessonlens/lessonlens/internal/infrastructure/cache"
	"github.com/lessonlens/lessonlens/internal/infrastructure/external/openai"
	"github.com/lessonlens/lessonlens/internal/usecase/cost"
	"github.com/lessonlens/lessonlens/internal/usecase/retrieval"
	"github.com/lessonlens/lessonlens/pkg/config"
)

type fakeConversationRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entities.ConversationSession
	messages map[uuid.UUID][]*entities.Message
	seq      int
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		sessions: make(map[uuid.UUID]*entities.ConversationSession),
		messages: make(map[uuid.UUID][]*entities.Message),
	}
}

func (f *fakeConversationRepo) CreateSession(_ context.Context, s *entities.ConversationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeConversationRepo) GetSessionByID(_ context.Context, id uuid.UUID) (*entities.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}

func (f *fakeConversationRepo) UpdateSessionTitle(_ context.Context, id uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Title = &title
	}
	return nil
}

func (f *fakeConversationRepo) TouchSession(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.LastMessageAt = time.Now()
	}
	return nil
}

func (f *fakeConversationRepo) ListSessionsByStudent(_ context.Context, creatorID, studentID uuid.UUID) ([]*entities.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.ConversationSession
	for _, s := range f.sessions {
		if s.CreatorID == creatorID && s.StudentID == studentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) CreateMessage(_ context.Context, m *entities.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Monotonic timestamps even when two writes land in the same tick.
	f.seq++
	m.CreatedAt = time.Unix(0, int64(f.seq)*int64(time.Millisecond))
	f.messages[m.SessionID] = append(f.messages[m.SessionID], m)
	return nil
}

func (f *fakeConversationRepo) ListMessages(_ context.Context, sessionID uuid.UUID, limit int) ([]*entities.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]*entities.Message{}, f.messages[sessionID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeConversationRepo) CountMessages(_ context.Context, sessionID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.messages[sessionID])), nil
}

type fakeRetriever struct {
	mu         sync.Mutex
	calls      int
	lastFilter repositories.SearchFilter
	result     *retrieval.Result
	err        error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, filter repositories.SearchFilter, _ bool) (*retrieval.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &retrieval.Result{Context: &retrieval.BuiltContext{HistoryBudget: 900}}, nil
}

type fakeGenerator struct {
	mu          sync.Mutex
	chatCalls   int
	titleCalls  int
	lastPrompt  []openai.ChatMessage
	content     string
	failures    []error
	streamParts []string
	streamErr   error
}

func (f *fakeGenerator) ChatCompletion(_ context.Context, model string, messages []openai.ChatMessage, _ int) (*openai.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(messages) > 0 && strings.Contains(messages[0].Content, "short title") {
		f.titleCalls++
		return &openai.ChatResult{Content: "Generated Title", PromptTokens: 10, CompletionTokens: 3}, nil
	}
	f.chatCalls++
	f.lastPrompt = messages
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	content := f.content
	if content == "" {
		content = "the answer"
	}
	return &openai.ChatResult{Content: content, PromptTokens: 120, CompletionTokens: 40}, nil
}

func (f *fakeGenerator) StreamChatCompletion(ctx context.Context, _ string, messages []openai.ChatMessage, _ int, onDelta func(string) error) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.lastPrompt = messages
	parts := f.streamParts
	streamErr := f.streamErr
	f.mu.Unlock()

	var content string
	for _, p := range parts {
		content += p
		if err := onDelta(p); err != nil {
			return content, err
		}
	}
	if streamErr != nil {
		return content, streamErr
	}
	return content, nil
}

type fakeUsageRepo struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*entities.UsageLedger
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{ledgers: make(map[uuid.UUID]*entities.UsageLedger)}
}

func (f *fakeUsageRepo) AddUsage(_ context.Context, creatorID uuid.UUID, day time.Time, delta entities.UsageDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ledger, ok := f.ledgers[creatorID]
	if !ok {
		ledger = &entities.UsageLedger{CreatorID: creatorID, Day: day}
		f.ledgers[creatorID] = ledger
	}
	ledger.EmbeddingTokens += delta.EmbeddingTokens
	ledger.GenerationTokens += delta.GenerationTokens
	ledger.CostUSD += delta.CostUSD
	return nil
}

func (f *fakeUsageRepo) GetUsage(_ context.Context, creatorID uuid.UUID, day time.Time) (*entities.UsageLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ledger, ok := f.ledgers[creatorID]; ok {
		copy := *ledger
		return &copy, nil
	}
	return &entities.UsageLedger{CreatorID: creatorID, Day: day}, nil
}

type chatFixture struct {
	svc       Service
	repo      *fakeConversationRepo
	retriever *fakeRetriever
	generator *fakeGenerator
	usage     *fakeUsageRepo
}

func newChatFixture(limit float64) *chatFixture {
	f := &chatFixture{
		repo:      newFakeConversationRepo(),
		retriever: &fakeRetriever{},
		generator: &fakeGenerator{},
		usage:     newFakeUsageRepo(),
	}
	guard := cost.NewGuard(f.usage, config.BudgetConfig{DailyCostLimit: limit}, zap.NewNop())
	f.svc = NewService(
		f.repo,
		f.retriever,
		f.generator,
		guard,
		cache.NewMemoryStore(),
		&config.OpenAIConfig{
			ChatModel:               "chat-model",
			TitleModel:              "title-model",
			GenerationMaxTokens:     512,
			MaxRetryElapsed:         200 * time.Millisecond,
			GenerationInPricePer1K:  0.00015,
			GenerationOutPricePer1K: 0.0006,
		},
		config.ContextConfig{MaxTokens: 3000, HistoryFraction: 0.3, HistoryMessages: 10},
		config.CacheConfig{AnswerTTL: time.Hour, QueryEmbeddingTTL: time.Minute},
		zap.NewNop(),
	)
	return f
}

func sourcedResult() *retrieval.Result {
	videoID := uuid.New()
	return &retrieval.Result{
		Context: &retrieval.BuiltContext{
			PromptContext: "[Source 1] Intro (0:10)\nslices are windows over arrays",
			Citations: []entities.VideoReference{
				{VideoID: videoID, Title: "Intro", Timestamp: 10, Excerpt: "slices are windows over arrays"},
			},
			SourceTokens:  20,
			HistoryBudget: 900,
		},
		EmbeddingTokens: 12,
		EmbeddingCost:   0.0001,
	}
}

func TestAskCreatesSessionAndPersistsExchange(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	creatorID, studentID := uuid.New(), uuid.New()

	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID,
		StudentID: studentID,
		Message:   "what is a slice?",
	})
	require.NoError(t, err)

	assert.Equal(t, "the answer", answer.Content)
	require.Len(t, answer.VideoReferences, 1)
	assert.Equal(t, "Intro", answer.VideoReferences[0].Title)
	assert.Equal(t, 120, answer.Usage.InputTokens)
	assert.Equal(t, 40, answer.Usage.OutputTokens)
	assert.Greater(t, answer.Usage.Cost, 0.0)

	messages, err := f.repo.ListMessages(context.Background(), answer.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, entities.RoleUser, messages[0].Role)
	assert.Equal(t, entities.RoleAssistant, messages[1].Role)
	assert.True(t, messages[0].CreatedAt.Before(messages[1].CreatedAt))
	assert.Len(t, messages[1].References(), 1)

	ledger := f.usage.ledgers[creatorID]
	require.NotNil(t, ledger)
	assert.Equal(t, int64(12), ledger.EmbeddingTokens)
	assert.GreaterOrEqual(t, ledger.GenerationTokens, int64(160))
}

func TestAskValidatesInput(t *testing.T) {
	f := newChatFixture(5.0)

	tests := []struct {
		name string
		req  AskRequest
	}{
		{"empty message", AskRequest{CreatorID: uuid.New(), StudentID: uuid.New(), Message: "   "}},
		{"missing creator", AskRequest{StudentID: uuid.New(), Message: "hello"}},
		{"missing student", AskRequest{CreatorID: uuid.New(), Message: "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ask(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_INVALID_ARGUMENT))
		})
	}
	assert.Empty(t, f.repo.sessions, "validation errors must have no side effects")
}

func TestAskUnknownSession(t *testing.T) {
	f := newChatFixture(5.0)
	sessionID := uuid.New()

	_, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(),
		StudentID: uuid.New(),
		SessionID: &sessionID,
		Message:   "hello",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_SESSION_NOT_FOUND))
}

func TestAskForeignSessionReportsNotFound(t *testing.T) {
	f := newChatFixture(5.0)
	owner := uuid.New()
	first, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(),
		StudentID: owner,
		Message:   "mine",
	})
	require.NoError(t, err)

	_, err = f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(),
		StudentID: uuid.New(),
		SessionID: &first.SessionID,
		Message:   "stealing your session",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_SESSION_NOT_FOUND))
}

func TestAskCachedAnswerCostsNothing(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	creatorID, studentID := uuid.New(), uuid.New()

	first, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: studentID, Message: "What is a slice?",
	})
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: studentID, Message: "what  is a slice?",
	})
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.VideoReferences, second.VideoReferences)
	assert.Equal(t, Usage{}, second.Usage)
	assert.Equal(t, 1, f.generator.chatCalls, "cache hit must not call the generator")
	assert.Equal(t, 1, f.retriever.calls, "cache hit must short-circuit retrieval")
}

func TestAskCacheIsScopedPerCreator(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	studentID := uuid.New()

	_, err := f.svc.Ask(context.Background(), AskRequest{CreatorID: uuid.New(), StudentID: studentID, Message: "same question"})
	require.NoError(t, err)
	second, err := f.svc.Ask(context.Background(), AskRequest{CreatorID: uuid.New(), StudentID: studentID, Message: "same question"})
	require.NoError(t, err)

	assert.False(t, second.Cached, "answers must never leak across creators")
	assert.Equal(t, 2, f.generator.chatCalls)
}

func TestAskNoRelevantContentStillAnswers(t *testing.T) {
	f := newChatFixture(5.0)
	f.generator.content = "I could not find relevant content for that."
	creatorID, studentID := uuid.New(), uuid.New()

	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: studentID, Message: "something off topic",
	})
	require.NoError(t, err)

	assert.Empty(t, answer.VideoReferences)
	messages, _ := f.repo.ListMessages(context.Background(), answer.SessionID, 0)
	require.Len(t, messages, 2)
	assert.Equal(t, entities.RoleAssistant, messages[1].Role)
}

func TestAskSecondMessageCarriesHistory(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	creatorID, studentID := uuid.New(), uuid.New()

	first, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: studentID, Message: "what is a slice?",
	})
	require.NoError(t, err)

	_, err = f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: studentID, SessionID: &first.SessionID,
		Message: "and how does append work?",
	})
	require.NoError(t, err)

	var sawFirstQuestion, sawFirstAnswer bool
	for _, m := range f.generator.lastPrompt {
		if strings.Contains(m.Content, "what is a slice?") && m.Role == "user" {
			sawFirstQuestion = true
		}
		if strings.Contains(m.Content, "the answer") && m.Role == "assistant" {
			sawFirstAnswer = true
		}
	}
	assert.True(t, sawFirstQuestion, "second prompt should include the first question")
	assert.True(t, sawFirstAnswer, "second prompt should include the first answer")

	messages, _ := f.repo.ListMessages(context.Background(), first.SessionID, 0)
	require.Len(t, messages, 4)
	for i := 1; i < len(messages); i++ {
		assert.True(t, messages[i-1].CreatedAt.Before(messages[i].CreatedAt),
			"message order must be strictly increasing by timestamp")
	}
}

func TestAskBudgetExceeded(t *testing.T) {
	f := newChatFixture(1.0)
	creatorID := uuid.New()
	require.NoError(t, f.usage.AddUsage(context.Background(), creatorID, cost.Today(), entities.UsageDelta{CostUSD: 1.0}))

	_, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: uuid.New(), Message: "expensive question",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_BUDGET_EXCEEDED))
	assert.Equal(t, 0, f.generator.chatCalls)
}

func TestAskRetriesTransientGenerationFailure(t *testing.T) {
	f := newChatFixture(5.0)
	f.generator.failures = []error{apperrors.ErrProviderTransient("openai", errors.New("429"))}

	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(), StudentID: uuid.New(), Message: "retry me",
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer.Content)
	assert.Equal(t, 2, f.generator.chatCalls)
}

func TestAskPermanentGenerationFailure(t *testing.T) {
	f := newChatFixture(5.0)
	f.generator.failures = []error{apperrors.ErrProviderPermanent("openai", errors.New("bad model"))}

	_, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(), StudentID: uuid.New(), Message: "doomed",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_GENERATION_FAILED))
	assert.Equal(t, 1, f.generator.chatCalls)
}

func TestAskRecordsEmbeddingSpendWhenGenerationFails(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	f.generator.failures = []error{apperrors.ErrProviderPermanent("openai", errors.New("bad model"))}
	creatorID := uuid.New()

	_, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: uuid.New(), Message: "doomed",
	})
	require.Error(t, err)

	// The query embedding was paid for before generation failed; its cost
	// must land in the ledger anyway.
	ledger := f.usage.ledgers[creatorID]
	require.NotNil(t, ledger, "no ledger row despite paid embedding")
	assert.Equal(t, int64(12), ledger.EmbeddingTokens)
	assert.InDelta(t, 0.0001, ledger.CostUSD, 1e-9)
}

func TestAskStreamRecordsSpendWhenStreamFails(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	f.generator.streamErr = apperrors.ErrProviderPermanent("openai", errors.New("bad model"))
	creatorID := uuid.New()

	_, err := f.svc.AskStream(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: uuid.New(), Message: "doomed",
	}, func(string) error { return nil })
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_GENERATION_FAILED))

	ledger := f.usage.ledgers[creatorID]
	require.NotNil(t, ledger, "no ledger row despite paid embedding and prompt")
	assert.Equal(t, int64(12), ledger.EmbeddingTokens)
	assert.Greater(t, ledger.GenerationTokens, int64(0), "prompt tokens were transmitted")
	assert.Greater(t, ledger.CostUSD, 0.0001)
}

func TestRetryBackoffFitsSmallBudget(t *testing.T) {
	bo := retryBackoff(200 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, bo.InitialInterval)
	assert.NotEqual(t, backoff.Stop, bo.NextBackOff(), "budget below the default interval must still allow a retry")

	bo = retryBackoff(time.Minute)
	assert.Equal(t, 500*time.Millisecond, bo.InitialInterval)
}

func TestSessionLockReleasedAfterExchange(t *testing.T) {
	f := newChatFixture(5.0)

	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(), StudentID: uuid.New(), Message: "hello",
	})
	require.NoError(t, err)
	require.NotNil(t, answer)

	svc := f.svc.(*service)
	svc.lockMu.Lock()
	defer svc.lockMu.Unlock()
	assert.Empty(t, svc.sessionLocks, "session lock entry must be evicted once the exchange finishes")
}

func TestAskDegradesWhenRetrievalFails(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.err = apperrors.ErrSearchFailed(errors.New("index offline"))

	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(), StudentID: uuid.New(), Message: "degrade gracefully",
	})
	require.NoError(t, err)
	assert.Empty(t, answer.VideoReferences)
	assert.NotEmpty(t, answer.Content)
}

func TestAskStreamForwardsDeltas(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	f.generator.streamParts = []string{"the ", "streamed ", "answer"}

	var got []string
	answer, err := f.svc.AskStream(context.Background(), AskRequest{
		CreatorID: uuid.New(), StudentID: uuid.New(), Message: "stream it",
	}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"the ", "streamed ", "answer"}, got)
	assert.Equal(t, "the streamed answer", answer.Content)
	assert.Greater(t, answer.Usage.OutputTokens, 0)
}

func TestAskStreamCancelPersistsPartial(t *testing.T) {
	f := newChatFixture(5.0)
	f.retriever.result = sourcedResult()
	f.generator.streamParts = []string{"partial ", "content"}
	f.generator.streamErr = context.Canceled
	creatorID := uuid.New()

	answer, err := f.svc.AskStream(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: uuid.New(), Message: "cancel me",
	}, func(string) error { return nil })

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, answer)
	assert.Equal(t, "partial content", answer.Content)

	messages, _ := f.repo.ListMessages(context.Background(), answer.SessionID, 0)
	require.Len(t, messages, 2, "partial answer must still be persisted")
	assert.Equal(t, "partial content", messages[1].Content)
	assert.Greater(t, messages[1].Cost, 0.0, "partial cost is real cost")

	ledger := f.usage.ledgers[creatorID]
	require.NotNil(t, ledger)
	assert.Greater(t, ledger.CostUSD, 0.0)
}

func TestTitleGeneratedAfterFirstExchange(t *testing.T) {
	f := newChatFixture(5.0)

	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: uuid.New(), StudentID: uuid.New(), Message: "first question",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		session, _ := f.repo.GetSessionByID(context.Background(), answer.SessionID)
		return session != nil && session.Title != nil && *session.Title == "Generated Title"
	}, time.Second, 10*time.Millisecond)
}

func TestSessionMessagesEnforcesOwnership(t *testing.T) {
	f := newChatFixture(5.0)
	creatorID, studentID := uuid.New(), uuid.New()
	answer, err := f.svc.Ask(context.Background(), AskRequest{
		CreatorID: creatorID, StudentID: studentID, Message: "hello",
	})
	require.NoError(t, err)

	messages, err := f.svc.SessionMessages(context.Background(), creatorID, studentID, answer.SessionID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	_, err = f.svc.SessionMessages(context.Background(), creatorID, uuid.New(), answer.SessionID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorCode_SESSION_NOT_FOUND))
}

package orchestrateturn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "medchat-engine/internal/common/errors"
	"medchat-engine/internal/common/logger"
	"medchat-engine/internal/common/observability"
	classifyintent "medchat-engine/internal/dialogue/classify-intent"
	evaluategating "medchat-engine/internal/dialogue/evaluate-gating"
	generateanswer "medchat-engine/internal/dialogue/generate-answer"
	mergeprofile "medchat-engine/internal/dialogue/merge-profile"
	"medchat-engine/internal/knowledge"
	"medchat-engine/internal/models"
)

// ==========================
// Logger adapters
// ==========================

type turnLog struct{ logger.Logger }

func (a turnLog) With(f map[string]interface{}) Logger { return turnLog{a.Logger.With(f)} }

type mergeLog struct{ logger.Logger }

func (a mergeLog) With(f map[string]interface{}) mergeprofile.Logger { return mergeLog{a.Logger.With(f)} }

type classifyLog struct{ logger.Logger }

func (a classifyLog) With(f map[string]interface{}) classifyintent.Logger {
	return classifyLog{a.Logger.With(f)}
}

type gatingLog struct{ logger.Logger }

func (a gatingLog) With(f map[string]interface{}) evaluategating.Logger {
	return gatingLog{a.Logger.With(f)}
}

type answerLog struct{ logger.Logger }

func (a answerLog) With(f map[string]interface{}) generateanswer.Logger {
	return answerLog{a.Logger.With(f)}
}

type storeLog struct{ logger.Logger }

func (a storeLog) With(f map[string]interface{}) knowledge.Logger { return storeLog{a.Logger.With(f)} }

// ==========================
// Test Helpers
// ==========================

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) Emit(event models.TelemetryEvent) {
	m.Called(event)
}

type retrieverFunc func(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error)

func (f retrieverFunc) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
	return f(ctx, q)
}

func acmeCatalog() *models.Catalog {
	return &models.Catalog{
		Providers: []models.Option{{Value: "Acme"}, {Value: "Globex"}},
		Tiers:     []models.Option{{Value: "Gold"}, {Value: "Silver"}},
		Categories: []models.Option{
			{Value: "dental", Keywords: []string{"dental", "teeth"}},
			{Value: "vision", Keywords: []string{"vision", "glasses"}},
		},
	}
}

func acmeChunks() []models.KnowledgeChunk {
	return []models.KnowledgeChunk{
		{ID: "c1", Category: "dental", Provider: "Acme", Tier: "Gold", Service: "fillings", Content: "Fillings at a 50% discount."},
		{ID: "c2", Category: "dental", Provider: "Acme", Tier: "Silver", Service: "cleaning", Content: "One free cleaning per year."},
		{ID: "c3", Category: "dental", Provider: "Acme", Tier: "Gold", Service: "cleaning", Content: "Two free cleanings per year.", Source: "acme.html"},
		{ID: "c4", Category: "dental", Provider: "Globex", Tier: "Gold", Service: "cleaning", Content: "Unlimited cleanings."},
		{ID: "c5", Category: "vision", Provider: "Acme", Tier: "Gold", Service: "glasses", Content: "Glasses refund once a year."},
	}
}

type fixture struct {
	handler *Handler
	emitter *mockEmitter
	config  *Config
}

func newFixture(t *testing.T, retriever knowledge.Retriever, obs *observability.Observability) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)
	catalog := acmeCatalog()

	if retriever == nil {
		store := knowledge.NewStore(catalog, storeLog{log})
		store.Swap(acmeChunks())
		retriever = store
	}

	config := LoadConfig()
	config.Catalog = catalog
	config.DefaultLanguage = models.LanguageEnglish

	emitter := &mockEmitter{}
	h := NewHandler(config, Dependencies{
		Merger:     mergeprofile.NewHandler(&mergeprofile.Config{Catalog: catalog}, nil, mergeLog{log}),
		Classifier: classifyintent.NewHandler(&classifyintent.Config{Catalog: catalog, DefaultLanguage: models.LanguageEnglish}, nil, classifyLog{log}),
		Gate:       evaluategating.NewHandler(&evaluategating.Config{Table: models.DefaultGatingTable(), Catalog: catalog}, gatingLog{log}),
		Retriever:  retriever,
		Answerer: generateanswer.NewHandler(&generateanswer.Config{Catalog: catalog, Encoding: "cl100k_base"},
			generateanswer.RuneEstimator{}, answerLog{log}),
		Emitter:       emitter,
		Observability: obs,
	}, turnLog{log})
	return &fixture{handler: h, emitter: emitter, config: config}
}

func (f *fixture) expectEvent(match func(e models.TelemetryEvent) bool) {
	f.emitter.On("Emit", mock.MatchedBy(match)).Once()
}

func (f *fixture) assertOneEvent(t *testing.T) {
	f.emitter.AssertExpectations(t)
	f.emitter.AssertNumberOfCalls(t, "Emit", 1)
}

func citedIDs(r *models.TurnResponse) []string {
	out := make([]string, len(r.Citations))
	for i, c := range r.Citations {
		out[i] = c.ChunkID
	}
	return out
}

// ==========================
// Tests
// ==========================

func TestExecute_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		request  *models.TurnRequest
		action   models.Action
		validate func(t *testing.T, r *models.TurnResponse)
	}{
		{
			name:    "empty profile asks for provider and tier in one question",
			request: &models.TurnRequest{Message: "What dental benefits are available?", Language: models.LanguageEnglish},
			action:  models.ActionCollect,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, models.AnswerSpecificBenefits, r.AnswerType)
				assert.Equal(t, "dental", r.Category)
				assert.Equal(t, []models.Field{models.FieldProvider, models.FieldTier}, r.MissingFields)
				assert.False(t, r.SufficientContext)
				assert.Equal(t, "Please tell me which health fund (HMO) you belong to (Acme or Globex) and your plan tier (Gold or Silver).", r.NextQuestion)
				assert.Empty(t, r.Answer)
				assert.Nil(t, r.Grounded)
			},
		},
		{
			name: "known provider only asks for tier",
			request: &models.TurnRequest{
				Message:     "What dental benefits are available?",
				Language:    models.LanguageEnglish,
				UserProfile: models.UserProfile{Provider: "Acme"},
			},
			action: models.ActionCollect,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, []models.Field{models.FieldTier}, r.MissingFields)
				assert.Equal(t, []models.Field{models.FieldProvider}, r.KnownFields)
				assert.Equal(t, "Please tell me your plan tier (Gold or Silver).", r.NextQuestion)
			},
		},
		{
			name: "full plan answers from matching chunks only",
			request: &models.TurnRequest{
				Message:     "What dental benefits are available?",
				Language:    models.LanguageEnglish,
				UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
			},
			action: models.ActionAnswer,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.True(t, r.SufficientContext)
				assert.Empty(t, r.MissingFields)
				require.NotNil(t, r.Grounded)
				assert.True(t, *r.Grounded)
				assert.ElementsMatch(t, []string{"c1", "c3"}, citedIDs(r))
				for _, c := range r.Citations {
					assert.Equal(t, "Acme", c.Provider)
					assert.Equal(t, "Gold", c.Tier)
				}
				assert.NotContains(t, r.Answer, "Unlimited")
				assert.True(t, strings.HasSuffix(r.Answer, r.Disclaimer))
				require.NotNil(t, r.TokenUsage)
				assert.Equal(t, r.TokenUsage.Prompt+r.TokenUsage.Completion, r.TokenUsage.Total)
				require.NotNil(t, r.ContextMetrics)
				assert.Greater(t, r.ContextMetrics.SnippetsChars, 0)
			},
		},
		{
			name:    "general description needs no profile",
			request: &models.TurnRequest{Message: "Tell me about dental", Language: models.LanguageEnglish},
			action:  models.ActionAnswer,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, models.AnswerGeneralDescription, r.AnswerType)
				assert.True(t, r.SufficientContext)
				assert.Empty(t, r.MissingFields)
				assert.Len(t, r.Citations, knowledge.DefaultMaxResults)
				assert.True(t, strings.HasPrefix(r.Answer, "General information about dental:"))
			},
		},
		{
			name:    "asking what a service includes needs no profile",
			request: &models.TurnRequest{Message: "What is included in dental care?", Language: models.LanguageEnglish},
			action:  models.ActionAnswer,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, models.AnswerGeneralDescription, r.AnswerType)
				assert.True(t, r.SufficientContext)
				assert.Empty(t, r.MissingFields)
				assert.Empty(t, r.NextQuestion)
				assert.NotEmpty(t, r.Citations)
			},
		},
		{
			name: "no matching chunks is not answered",
			request: &models.TurnRequest{
				Message:     "What vision benefits are available?",
				Language:    models.LanguageEnglish,
				UserProfile: models.UserProfile{Provider: "Acme", Tier: "Silver"},
			},
			action: models.ActionClarify,
			validate: func(t *testing.T, r *models.TurnResponse) {
				require.NotNil(t, r.Grounded)
				assert.False(t, *r.Grounded)
				assert.Empty(t, r.Answer)
				assert.Empty(t, r.Citations)
				assert.Equal(t, "I could not find information about vision for Acme Silver in the knowledge base. Please contact your health fund directly.", r.NextQuestion)
				assert.NotEmpty(t, r.Disclaimer)
			},
		},
		{
			name: "question without a known service asks which one",
			request: &models.TurnRequest{
				Message:     "What heart surgery benefits are available?",
				Language:    models.LanguageEnglish,
				UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
			},
			action: models.ActionClarify,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Empty(t, r.Category)
				assert.Equal(t, "Which service would you like to ask about? Available services are: dental, vision.", r.NextQuestion)
				assert.Nil(t, r.Grounded)
			},
		},
		{
			name: "bare reply resumes the pending question",
			request: &models.TurnRequest{
				Message:  "Acme Gold",
				Language: models.LanguageEnglish,
				ConversationHistory: []models.Message{
					{Role: models.RoleUser, Content: "What dental benefits are available?"},
					{Role: models.RoleAssistant, Content: "Please tell me which health fund (HMO) you belong to (Acme or Globex) and your plan tier (Gold or Silver)."},
				},
			},
			action: models.ActionAnswer,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, models.UserProfile{Provider: "Acme", Tier: "Gold"}, r.UpdatedProfile)
				assert.Equal(t, models.AnswerSpecificBenefits, r.AnswerType)
				assert.ElementsMatch(t, []string{"c1", "c3"}, citedIDs(r))
			},
		},
		{
			name: "caller aliases are canonicalized before gating",
			request: &models.TurnRequest{
				Message:     "What dental benefits are available?",
				Language:    models.LanguageEnglish,
				UserProfile: models.UserProfile{Provider: "acme", Tier: "GOLD"},
			},
			action: models.ActionAnswer,
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, "Acme", r.UpdatedProfile.Provider)
				assert.Equal(t, "Gold", r.UpdatedProfile.Tier)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			f.expectEvent(func(e models.TelemetryEvent) bool {
				return e.Action == tt.action && e.Success && e.ErrorCode == "" && e.RequestID != ""
			})

			r, err := f.handler.Execute(context.Background(), tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.action, r.Action)
			assert.Equal(t, models.LanguageEnglish, r.Language)
			assert.NotEmpty(t, r.RequestID)
			tt.validate(t, r)
			f.assertOneEvent(t)
		})
	}
}

func TestExecute_HebrewTurn(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.expectEvent(func(e models.TelemetryEvent) bool { return e.Language == models.LanguageHebrew })

	r, err := f.handler.Execute(context.Background(), &models.TurnRequest{
		Message:  "אילו הטבות יש בטיפולי dental?",
		Language: models.LanguageAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LanguageHebrew, r.Language)
	assert.Equal(t, models.ActionCollect, r.Action)
	assert.True(t, strings.HasSuffix(r.NextQuestion, "?"))
	f.assertOneEvent(t)
}

func TestExecute_RequestIDFromContext(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.expectEvent(func(e models.TelemetryEvent) bool { return e.RequestID == "req-42" })

	r, err := f.handler.Execute(WithRequestID(context.Background(), "req-42"),
		&models.TurnRequest{Message: "What dental benefits are available?", Language: models.LanguageEnglish})
	require.NoError(t, err)
	assert.Equal(t, "req-42", r.RequestID)
	f.assertOneEvent(t)
}

func TestExecute_InvalidRequest(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.handler.Execute(context.Background(), &models.TurnRequest{Message: "   "})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
	f.emitter.AssertNotCalled(t, "Emit", mock.Anything)
}

func TestExecute_Failures(t *testing.T) {
	block := retrieverFunc(func(ctx context.Context, _ models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	request := &models.TurnRequest{
		Message:     "What dental benefits are available?",
		Language:    models.LanguageEnglish,
		UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
	}

	tests := []struct {
		name      string
		retriever knowledge.Retriever
		timeout   time.Duration
		ctx       func() (context.Context, context.CancelFunc)
		code      apperrors.ErrorCode
		retryable bool
	}{
		{
			name: "backend error is retryable",
			retriever: retrieverFunc(func(context.Context, models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
				return nil, errors.New("connection refused")
			}),
			timeout:   time.Second,
			ctx:       func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			code:      apperrors.ErrCodeRetrievalFailed,
			retryable: true,
		},
		{
			name: "elasticsearch timeout",
			retriever: retrieverFunc(func(context.Context, models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
				return nil, knowledge.ErrRetrievalTimeout
			}),
			timeout:   time.Second,
			ctx:       func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			code:      apperrors.ErrCodeUpstreamTimeout,
			retryable: true,
		},
		{
			name:      "turn deadline",
			retriever: block,
			timeout:   20 * time.Millisecond,
			ctx:       func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			code:      apperrors.ErrCodeUpstreamTimeout,
			retryable: true,
		},
		{
			name:      "caller goes away",
			retriever: block,
			timeout:   5 * time.Second,
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(20*time.Millisecond, cancel)
				return ctx, cancel
			},
			code: apperrors.ErrCodeTurnCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.retriever, nil)
			f.config.TurnTimeout = tt.timeout
			f.expectEvent(func(e models.TelemetryEvent) bool {
				return e.Action == models.ActionError && !e.Success && e.ErrorCode == string(tt.code) &&
					e.Category == "dental" && e.TokenUsage == nil
			})

			ctx, cancel := tt.ctx()
			defer cancel()

			r, err := f.handler.Execute(ctx, request)
			assert.Nil(t, r)
			require.Error(t, err)
			stdErr := apperrors.AsStandardError(err)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
			f.assertOneEvent(t)
		})
	}
}

// refusingAnswerer rejects every grounded composition and delegates the
// no-information reply.
type refusingAnswerer struct {
	*generateanswer.Handler
}

func (a refusingAnswerer) Answer(ctx context.Context, input *generateanswer.Input) (*models.AnswerResult, error) {
	if len(input.Chunks) > 0 {
		return nil, generateanswer.ErrUngrounded
	}
	return a.Handler.Answer(ctx, input)
}

func TestExecute_RefusedAnswerBecomesClarify(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.handler.deps.Answerer = refusingAnswerer{generateanswer.NewHandler(
		&generateanswer.Config{Catalog: acmeCatalog(), Encoding: "cl100k_base"},
		generateanswer.RuneEstimator{}, answerLog{logger.NewTestLogger(t)})}
	f.expectEvent(func(e models.TelemetryEvent) bool { return e.Action == models.ActionClarify && e.Success })

	r, err := f.handler.Execute(context.Background(), &models.TurnRequest{
		Message:     "What dental benefits are available?",
		Language:    models.LanguageEnglish,
		UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionClarify, r.Action)
	assert.Empty(t, r.Answer)
	assert.Empty(t, r.Citations)
	assert.Contains(t, r.NextQuestion, "could not find information")
	f.assertOneEvent(t)
}

func TestExecute_BracketedNumbersInPassagesAreAnswered(t *testing.T) {
	retriever := retrieverFunc(func(context.Context, models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
		return []models.KnowledgeChunk{{ID: "x", Category: "dental", Provider: "Acme", Tier: "Gold", Content: "Two cleanings, see the price list [12]."}}, nil
	})
	f := newFixture(t, retriever, nil)
	f.expectEvent(func(e models.TelemetryEvent) bool { return e.Action == models.ActionAnswer && e.Success })

	r, err := f.handler.Execute(context.Background(), &models.TurnRequest{
		Message:     "What dental benefits are available?",
		Language:    models.LanguageEnglish,
		UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionAnswer, r.Action)
	require.NotNil(t, r.Grounded)
	assert.True(t, *r.Grounded)
	assert.Equal(t, []string{"x"}, citedIDs(r))
	assert.Contains(t, r.Answer, "price list [12].")
	f.assertOneEvent(t)
}

func TestExecute_AnswersInTurnLanguage(t *testing.T) {
	log := logger.NewTestLogger(t)
	store := knowledge.NewStore(acmeCatalog(), storeLog{log})
	store.Swap([]models.KnowledgeChunk{
		{ID: "gold_en", Category: "dental", Provider: "Acme", Tier: "Gold", Language: models.LanguageEnglish, Content: "Two free cleanings per year."},
		{ID: "gold_he", Category: "dental", Provider: "Acme", Tier: "Gold", Language: models.LanguageHebrew, Content: "ניקוי אבנית פעמיים בשנה."},
		{ID: "silver_he", Category: "dental", Provider: "Acme", Tier: "Silver", Language: models.LanguageHebrew, Content: "ניקוי אבנית פעם בשנה."},
	})

	tests := []struct {
		name     string
		tier     string
		lang     models.Language
		message  string
		validate func(t *testing.T, r *models.TurnResponse)
	}{
		{
			name: "english turn cites english passages only", tier: "Gold", lang: models.LanguageEnglish,
			message: "What dental benefits are available?",
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, []string{"gold_en"}, citedIDs(r))
				assert.False(t, r.LanguageFallback)
				assert.NotContains(t, r.Answer, "ניקוי")
			},
		},
		{
			name: "hebrew turn cites hebrew passages only", tier: "Gold", lang: models.LanguageHebrew,
			message: "אילו הטבות יש בשיניים dental?",
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, []string{"gold_he"}, citedIDs(r))
				assert.False(t, r.LanguageFallback)
			},
		},
		{
			name: "only another language available is flagged", tier: "Silver", lang: models.LanguageEnglish,
			message: "What dental benefits are available?",
			validate: func(t *testing.T, r *models.TurnResponse) {
				assert.Equal(t, []string{"silver_he"}, citedIDs(r))
				assert.True(t, r.LanguageFallback)
				assert.Contains(t, r.Answer, "Note: this information is only available in Hebrew.")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, store, nil)
			f.emitter.On("Emit", mock.Anything)

			r, err := f.handler.Execute(context.Background(), &models.TurnRequest{
				Message:     tt.message,
				Language:    tt.lang,
				UserProfile: models.UserProfile{Provider: "Acme", Tier: tt.tier},
			})
			require.NoError(t, err)
			require.Equal(t, models.ActionAnswer, r.Action)
			assert.Equal(t, tt.lang, r.Language)
			tt.validate(t, r)
		})
	}
}

func TestExecute_DoesNotMutateRequest(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.emitter.On("Emit", mock.Anything)

	history := []models.Message{{Role: models.RoleUser, Content: "What dental benefits are available?"}}
	req := &models.TurnRequest{
		Message:             "acme gold",
		Language:            models.LanguageEnglish,
		UserProfile:         models.UserProfile{FullName: "Dana"},
		ConversationHistory: history,
	}
	r, err := f.handler.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.UserProfile{FullName: "Dana"}, req.UserProfile)
	assert.Equal(t, "Acme", r.UpdatedProfile.Provider)
	assert.Len(t, req.ConversationHistory, 1)
}

func TestExecute_ConcurrentTurns(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.emitter.On("Emit", mock.Anything)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			profile := models.UserProfile{Provider: "Acme"}
			if i%2 == 0 {
				profile.Tier = "Gold"
			}
			r, err := f.handler.Execute(context.Background(), &models.TurnRequest{
				Message:     "What dental benefits are available?",
				Language:    models.LanguageEnglish,
				UserProfile: profile,
			})
			if assert.NoError(t, err) {
				if i%2 == 0 {
					assert.Equal(t, models.ActionAnswer, r.Action)
				} else {
					assert.Equal(t, models.ActionCollect, r.Action)
				}
			}
		}(i)
	}
	wg.Wait()
	f.emitter.AssertNumberOfCalls(t, "Emit", 16)
}

func TestExecute_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := observability.New("orchestrate-turn-test",
		observability.WithRegisterer(prometheus.NewRegistry()),
		observability.WithSpanProcessor(recorder),
	)
	defer obs.Shutdown()

	f := newFixture(t, nil, obs)
	f.emitter.On("Emit", mock.Anything)

	_, err := f.handler.Execute(context.Background(), &models.TurnRequest{
		Message:     "What dental benefits are available?",
		Language:    models.LanguageEnglish,
		UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
	})
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"turn.analyzed", "turn.retrieve", "turn.answered"}, names)
}

func TestScopeExplanation(t *testing.T) {
	catalog := models.DefaultCatalog()

	he := ScopeExplanation(classifyintent.ScopeOutOfScope, catalog, models.LanguageHebrew)
	assert.True(t, strings.HasPrefix(he, "מצטער, השירות שביקשת אינו זמין"))
	for _, label := range catalog.CategoryLabels(models.LanguageHebrew) {
		assert.Contains(t, he, label)
	}

	en := ScopeExplanation(classifyintent.ScopeUnknown, catalog, models.LanguageEnglish)
	assert.True(t, strings.HasPrefix(en, "Which service would you like to ask about?"))
	assert.Contains(t, en, "Dental clinics")
}

func BenchmarkExecute(b *testing.B) {
	log := logger.NewNoOpLogger()
	catalog := acmeCatalog()
	store := knowledge.NewStore(catalog, storeLog{log})
	store.Swap(acmeChunks())
	config := LoadConfig()
	config.Catalog = catalog

	h := NewHandler(config, Dependencies{
		Merger:     mergeprofile.NewHandler(&mergeprofile.Config{Catalog: catalog}, nil, mergeLog{log}),
		Classifier: classifyintent.NewHandler(&classifyintent.Config{Catalog: catalog, DefaultLanguage: models.LanguageEnglish}, nil, classifyLog{log}),
		Gate:       evaluategating.NewHandler(&evaluategating.Config{Table: models.DefaultGatingTable(), Catalog: catalog}, gatingLog{log}),
		Retriever:  store,
		Answerer: generateanswer.NewHandler(&generateanswer.Config{Catalog: catalog},
			generateanswer.RuneEstimator{}, answerLog{log}),
	}, turnLog{log})

	req := &models.TurnRequest{
		Message:     "What dental benefits are available?",
		Language:    models.LanguageEnglish,
		UserProfile: models.UserProfile{Provider: "Acme", Tier: "Gold"},
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = h.Execute(ctx, req)
	}
}

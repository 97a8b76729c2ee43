package orchestrateturn

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "medchat-engine/internal/common/errors"
	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/common/observability"
	classifyintent "medchat-engine/internal/dialogue/classify-intent"
	evaluategating "medchat-engine/internal/dialogue/evaluate-gating"
	generateanswer "medchat-engine/internal/dialogue/generate-answer"
	mergeprofile "medchat-engine/internal/dialogue/merge-profile"
	"medchat-engine/internal/knowledge"
	"medchat-engine/internal/models"
)

const Name = "orchestrate-turn"

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type ProfileMerger interface {
	Extract(ctx context.Context, message string, history []models.Message, lang models.Language) (*mergeprofile.Extraction, error)
	Apply(prior, partial models.UserProfile, correction bool) (models.UserProfile, []models.Field)
}

type IntentClassifier interface {
	Execute(ctx context.Context, input *classifyintent.Input) (*classifyintent.Output, error)
}

type GatePolicy interface {
	Evaluate(answerType models.AnswerType, profile models.UserProfile, lang models.Language) evaluategating.GateResult
}

type Answerer interface {
	Answer(ctx context.Context, input *generateanswer.Input) (*models.AnswerResult, error)
	NoInformation(input *generateanswer.Input, lang models.Language) string
}

// Emitter delivers telemetry without blocking the turn.
type Emitter interface {
	Emit(event models.TelemetryEvent)
}

type nopEmitter struct{}

func (nopEmitter) Emit(models.TelemetryEvent) {}

type Dependencies struct {
	Merger        ProfileMerger
	Classifier    IntentClassifier
	Gate          GatePolicy
	Retriever     knowledge.Retriever
	Answerer      Answerer
	Emitter       Emitter
	Observability *observability.Observability
}

type Handler struct {
	config *Config
	deps   Dependencies
	logger Logger
	now    func() time.Time
}

func NewHandler(config *Config, deps Dependencies, log Logger) *Handler {
	if deps.Emitter == nil {
		deps.Emitter = nopEmitter{}
	}
	return &Handler{
		config: config,
		deps:   deps,
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
		now: time.Now,
	}
}

// Execute runs one turn: analyze, gate, then collect, clarify or answer.
// Nothing survives the call; the caller carries profile and history forward.
func (h *Handler) Execute(ctx context.Context, req *models.TurnRequest) (resp *models.TurnResponse, err error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.NewInvalidRequestError("message is required")
	}

	t := &turn{
		id:      RequestID(ctx),
		started: h.now(),
		state:   StateStart,
		request: req,
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	t.language = classifyintent.ResolveLanguage(req.Language, req.Message, h.config.DefaultLanguage)

	metrics.ChatTurnsActive.Inc()
	defer metrics.ChatTurnsActive.Dec()

	turnCtx, cancel := context.WithTimeout(ctx, h.config.TurnTimeout)
	defer cancel()

	defer func() {
		if err != nil {
			err = h.classifyError(ctx, turnCtx, t.state, err)
			resp = nil
		}
		h.finish(ctx, t, err)
	}()

	if err := h.analyze(turnCtx, t); err != nil {
		return nil, err
	}

	gate := h.deps.Gate.Evaluate(t.class.AnswerType, t.profile, t.language)
	resp = h.baseResponse(t, gate)

	switch {
	case !gate.Sufficient:
		h.transition(t, StateCollect)
		resp.Action = models.ActionCollect
		resp.NextQuestion = gate.NextQuestion

	case t.class.AnswerType == models.AnswerOther || t.class.Category == "":
		h.transition(t, StateClarify)
		resp.Action = models.ActionClarify
		resp.NextQuestion = ScopeExplanation(t.class.Scope, h.config.Catalog, t.language)

	default:
		if err := h.answer(turnCtx, t, resp); err != nil {
			return nil, err
		}
	}

	t.action = resp.Action
	h.transition(t, StateDone)
	return resp, nil
}

// analyze runs the merger and the classifier in parallel on their own copies
// of the history, then applies the extracted values to the caller's profile.
func (h *Handler) analyze(ctx context.Context, t *turn) error {
	ctx, span := h.span(ctx, t, StateAnalyzed)
	defer span.End()

	var (
		ext *mergeprofile.Extraction
		out *classifyintent.Output
	)
	message := t.request.Message
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ext, err = h.deps.Merger.Extract(gctx, message, copyHistory(t.request.ConversationHistory), t.language)
		return err
	})
	g.Go(func() error {
		var err error
		out, err = h.deps.Classifier.Execute(gctx, &classifyintent.Input{
			Message:  message,
			History:  copyHistory(t.request.ConversationHistory),
			Language: t.language,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	prior := h.config.Catalog.CanonicalProfile(t.request.UserProfile)
	merged, changed := h.deps.Merger.Apply(prior, ext.Partial, ext.Correction)
	t.profile = merged
	t.class = out.Classification
	t.question = out.Question

	fields := make([]string, len(changed))
	for i, f := range changed {
		fields[i] = string(f)
	}
	h.logger.Info("turn analyzed", map[string]interface{}{
		"requestId":     t.id,
		"intent":        string(t.class.Intent),
		"answerType":    string(t.class.AnswerType),
		"category":      t.class.Category,
		"resumed":       out.Resumed,
		"changedFields": fields,
	})
	h.transition(t, StateAnalyzed)
	return nil
}

// answer retrieves chunks for the question and composes the grounded reply.
// A reply that cannot be grounded turns into a clarify response.
func (h *Handler) answer(ctx context.Context, t *turn, resp *models.TurnResponse) error {
	h.transition(t, StateRetrieve)
	rctx, span := h.span(ctx, t, StateRetrieve)
	query := knowledge.BuildQuery(t.question, t.class.Category, t.profile, t.language, h.config.Limits)
	chunks, err := h.deps.Retriever.Retrieve(rctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		if ctx.Err() != nil || errors.Is(err, knowledge.ErrRetrievalTimeout) {
			return err
		}
		return apperrors.NewRetrievalFailedError(h.config.Backend, err)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	span.End()

	actx, span := h.span(ctx, t, StateAnswered)
	defer span.End()

	input := &generateanswer.Input{
		Profile:    t.profile,
		AnswerType: t.class.AnswerType,
		Category:   t.class.Category,
		Question:   t.question,
		Chunks:     chunks,
		Language:   t.language,
	}
	result, err := h.deps.Answerer.Answer(actx, input)
	if errors.Is(err, generateanswer.ErrUngrounded) {
		h.logger.Warn("answer refused, replying without grounding", map[string]interface{}{
			"requestId": t.id,
			"error":     err.Error(),
		})
		input.Chunks = nil
		result, err = h.deps.Answerer.Answer(actx, input)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	usage := result.TokenUsage
	t.usage = &usage
	resp.TokenUsage = &usage
	resp.Disclaimer = result.Disclaimer
	grounded := result.Grounded
	resp.Grounded = &grounded

	if !result.Grounded {
		h.logger.Info("no grounded answer available", map[string]interface{}{
			"requestId": t.id,
			"errorCode": string(apperrors.ErrCodeRetrievalEmpty),
			"category":  t.class.Category,
		})
		resp.Action = models.ActionClarify
		resp.NextQuestion = h.deps.Answerer.NoInformation(input, t.language)
		return nil
	}

	metricsCopy := result.ContextMetrics
	resp.Action = models.ActionAnswer
	resp.Answer = result.Answer
	resp.Citations = result.Citations
	resp.ContextMetrics = &metricsCopy
	resp.LanguageFallback = result.LanguageFallback
	h.transition(t, StateAnswered)
	return nil
}

func (h *Handler) baseResponse(t *turn, gate evaluategating.GateResult) *models.TurnResponse {
	known := make([]models.Field, 0, len(models.ProfileFields))
	for _, f := range models.ProfileFields {
		if h.config.Catalog.FieldValid(t.profile, f) {
			known = append(known, f)
		}
	}
	return &models.TurnResponse{
		RequestID:         t.id,
		Language:          t.language,
		Intent:            t.class.Intent,
		AnswerType:        t.class.AnswerType,
		Category:          t.class.Category,
		UpdatedProfile:    t.profile,
		KnownFields:       known,
		MissingFields:     append([]models.Field{}, gate.Missing...),
		SufficientContext: gate.Sufficient,
	}
}

// classifyError maps a failed turn onto the public error taxonomy. The caller
// closing the connection wins over an expired deadline.
func (h *Handler) classifyError(parent, turnCtx context.Context, stage State, err error) error {
	var stdErr *apperrors.StandardError
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return apperrors.NewTurnCancelledError(string(stage), err)
	case turnCtx.Err() != nil,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mergeprofile.ErrUpstreamTimeout),
		errors.Is(err, classifyintent.ErrUpstreamTimeout),
		errors.Is(err, knowledge.ErrRetrievalTimeout):
		return apperrors.NewUpstreamTimeoutError(string(stage), err)
	case errors.As(err, &stdErr):
		return stdErr
	default:
		return apperrors.NewInternalError(err)
	}
}

// finish records the terminal transition and emits exactly one telemetry event.
func (h *Handler) finish(ctx context.Context, t *turn, err error) {
	latency := h.now().Sub(t.started)
	event := models.TelemetryEvent{
		Timestamp:     h.now().UTC(),
		RequestID:     t.id,
		Language:      t.language,
		Latency:       latency,
		TokenUsage:    t.usage,
		Success:       err == nil,
		MessageLength: utf8.RuneCountInString(t.request.Message),
	}
	if t.class != nil {
		event.Intent = t.class.Intent
		event.Category = t.class.Category
		event.AnswerType = t.class.AnswerType
	}

	action := t.action
	if err != nil {
		action = models.ActionError
		code := string(apperrors.CodeOf(err))
		event.ErrorCode = code
		metrics.ChatTurnsFailed.WithLabelValues(code).Inc()
		h.logger.Error("turn failed", map[string]interface{}{
			"requestId": t.id,
			"state":     string(t.state),
			"errorCode": code,
			"error":     err.Error(),
			"latencyMs": latency.Milliseconds(),
		})
	} else {
		metrics.ChatTurnsCompleted.WithLabelValues(string(action)).Inc()
		h.logger.Info("turn completed", map[string]interface{}{
			"requestId": t.id,
			"action":    string(action),
			"latencyMs": latency.Milliseconds(),
		})
	}
	event.Action = action

	metrics.ChatTurnDuration.WithLabelValues(string(action)).Observe(latency.Seconds())
	// the turn context may already be cancelled; metrics still need recording
	recordCtx := context.WithoutCancel(ctx)
	h.deps.Observability.RecordTurnProcessed(recordCtx, string(action))
	h.deps.Observability.RecordTurnDuration(recordCtx, latency, string(action))

	h.deps.Emitter.Emit(event)
}

func (h *Handler) transition(t *turn, next State) {
	h.logger.Debug("turn transition", map[string]interface{}{
		"requestId": t.id,
		"from":      string(t.state),
		"to":        string(next),
	})
	t.state = next
}

func (h *Handler) span(ctx context.Context, t *turn, state State) (context.Context, trace.Span) {
	return h.deps.Observability.StartSpan(ctx, "turn."+strings.ToLower(string(state)),
		attribute.String("requestId", t.id),
		attribute.String("language", string(t.language)),
	)
}

func copyHistory(history []models.Message) []models.Message {
	if len(history) == 0 {
		return nil
	}
	return append([]models.Message(nil), history...)
}

package classifyintent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medchat-engine/internal/models"
)

const Name = "classify-intent"

var ErrUpstreamTimeout = errors.New("UPSTREAM_TIMEOUT")

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Classifier interface {
	Classify(ctx context.Context, message string, lang models.Language) (*Classification, error)
}

type Input struct {
	Message  string
	History  []models.Message
	Language models.Language
}

type Output struct {
	Language       models.Language
	Classification *Classification
	// Question is the text the answer should address. It differs from the
	// message when the message only replies to a collection question.
	Question string
	// Resumed is set when Classification came from an earlier user message.
	Resumed bool
}

type Handler struct {
	config     *Config
	classifier Classifier
	rules      *RuleClassifier
	logger     Logger
}

func NewHandler(config *Config, classifier Classifier, log Logger) *Handler {
	rules := NewRuleClassifier(config.Catalog)
	if classifier == nil {
		classifier = rules
	}
	return &Handler{
		config:     config,
		classifier: classifier,
		rules:      rules,
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
	}
}

// Execute resolves the turn language, classifies the message and, when the
// message carries no question of its own, resumes the last question the user
// asked in history.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	lang := ResolveLanguage(input.Language, input.Message, h.config.DefaultLanguage)

	c, err := h.Classify(ctx, input.Message, lang)
	if err != nil {
		return nil, err
	}
	out := &Output{Language: lang, Classification: c, Question: input.Message}

	if c.IsQuestion() {
		return out, nil
	}
	if c.Intent == models.IntentQuestionAnswering && c.Scope == ScopeOutOfScope {
		return out, nil
	}

	if question, prior, ok := h.PendingQuestion(ctx, input.History, lang); ok {
		h.logger.Info("resuming pending question", map[string]interface{}{
			"intent":     string(c.Intent),
			"answerType": string(prior.AnswerType),
			"category":   prior.Category,
		})
		out.Classification = prior
		out.Question = question
		out.Resumed = true
	}
	return out, nil
}

// Classify runs the configured classifier. A failing classifier degrades to
// the rule classifier; an expired context is an upstream timeout.
func (h *Handler) Classify(ctx context.Context, message string, lang models.Language) (*Classification, error) {
	c, err := h.classifier.Classify(ctx, message, lang)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, ctx.Err())
		}
		h.logger.Warn("classifier failed, using rules", map[string]interface{}{
			"error": err.Error(),
		})
		c, _ = h.rules.Classify(ctx, message, lang)
	}
	if c == nil {
		c, _ = h.rules.Classify(ctx, message, lang)
	}
	return c, nil
}

// PendingQuestion finds the most recent user message in history that is a
// question. Only the rule classifier is used so the lookup stays local.
func (h *Handler) PendingQuestion(ctx context.Context, history []models.Message, lang models.Language) (string, *Classification, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != models.RoleUser || strings.TrimSpace(m.Content) == "" {
			continue
		}
		c, _ := h.rules.Classify(ctx, m.Content, lang)
		if c.IsQuestion() {
			return m.Content, c, true
		}
	}
	return "", nil, false
}

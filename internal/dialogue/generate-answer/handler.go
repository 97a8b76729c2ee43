package generateanswer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"medchat-engine/internal/models"
)

const Name = "generate-answer"

var (
	ErrUngrounded     = errors.New("UNGROUNDED_ANSWER")
	ErrRetrievalEmpty = errors.New("RETRIEVAL_EMPTY")
)

var citationMarker = regexp.MustCompile(`^\[(\d+)\] `)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config    *Config
	tokenizer Tokenizer
	logger    Logger
}

// NewHandler builds the answerer. A nil tokenizer loads the configured
// tiktoken encoding, falling back to an estimate.
func NewHandler(config *Config, tokenizer Tokenizer, log Logger) *Handler {
	l := log.With(map[string]interface{}{
		"component": Name,
	})
	if tokenizer == nil {
		tokenizer = NewTokenizer(config.Encoding, l)
	}
	return &Handler{
		config:    config,
		tokenizer: tokenizer,
		logger:    l,
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*models.AnswerResult, error) {
	return h.Answer(ctx, input)
}

// Answer composes a reply from the retrieved chunks only. With no chunks the
// result is not grounded and carries a no-information message instead.
func (h *Handler) Answer(ctx context.Context, input *Input) (*models.AnswerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := input.Language
	if !lang.Valid() {
		lang = models.LanguageHebrew
	}
	disclaimer := Disclaimer(lang)

	if len(input.Chunks) == 0 {
		text := h.NoInformation(input, lang) + "\n\n" + disclaimer
		h.logger.Info("no grounding available", map[string]interface{}{
			"errorCode":  ErrRetrievalEmpty.Error(),
			"category":   input.Category,
			"answerType": string(input.AnswerType),
		})
		return &models.AnswerResult{
			Answer:     text,
			Grounded:   false,
			TokenUsage: h.usage(input.Question, "", text),
			Disclaimer: disclaimer,
		}, nil
	}

	bullets := make([]string, 0, len(input.Chunks))
	citations := make([]models.Citation, 0, len(input.Chunks))
	snippetsChars := 0
	for i, c := range input.Chunks {
		bullets = append(bullets, h.bullet(i+1, c, lang))
		citations = append(citations, models.Citation{
			Source:   c.SourceID(),
			ChunkID:  c.ID,
			Category: c.Category,
			Service:  c.Service,
			Provider: c.Provider,
			Tier:     c.Tier,
		})
		snippetsChars += utf8.RuneCountInString(c.Content)
	}

	if err := verifyGrounding(bullets, input.Chunks); err != nil {
		h.logger.Error("refusing ungrounded answer", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	lines := []string{h.header(input, lang)}
	fallback := contentLanguage(input.Chunks, lang)
	if fallback != "" {
		lines = append(lines, LanguageNotice(lang, fallback))
		h.logger.Warn("answering from passages in another language", map[string]interface{}{
			"language":        string(lang),
			"contentLanguage": string(fallback),
		})
	}
	lines = append(lines, bullets...)

	kbContext := strings.Join(bullets, "\n")
	answer := strings.Join(lines, "\n") + "\n\n" + disclaimer

	h.logger.Info("answer composed", map[string]interface{}{
		"answerType": string(input.AnswerType),
		"category":   input.Category,
		"chunks":     len(input.Chunks),
	})

	return &models.AnswerResult{
		Answer:     answer,
		Grounded:   true,
		Citations:  citations,
		TokenUsage: h.usage(input.Question, kbContext, answer),
		ContextMetrics: models.ContextMetrics{
			KBContextChars: utf8.RuneCountInString(kbContext),
			SnippetsChars:  snippetsChars,
		},
		Disclaimer:       disclaimer,
		LanguageFallback: fallback != "",
	}, nil
}

// contentLanguage returns the language of the first chunk tagged with a
// language other than lang, or "" when every passage fits the turn.
func contentLanguage(chunks []models.KnowledgeChunk, lang models.Language) models.Language {
	for _, c := range chunks {
		if c.Language != "" && c.Language != lang {
			return c.Language
		}
	}
	return ""
}

func (h *Handler) usage(question, kbContext, answer string) models.TokenUsage {
	prompt := h.tokenizer.Count(question)
	if kbContext != "" {
		prompt += h.tokenizer.Count(kbContext)
	}
	completion := h.tokenizer.Count(answer)
	return models.TokenUsage{Prompt: prompt, Completion: completion, Total: prompt + completion}
}

// verifyGrounding checks that the answer cites at least one chunk and that
// every bullet opens with the [n] marker of a chunk retrieved for this turn.
// Passage text after the marker is not inspected.
func verifyGrounding(bullets []string, chunks []models.KnowledgeChunk) error {
	if len(bullets) == 0 {
		return fmt.Errorf("%w: no citation markers", ErrUngrounded)
	}
	for _, b := range bullets {
		m := citationMarker.FindStringSubmatch(b)
		if m == nil {
			return fmt.Errorf("%w: bullet without citation marker", ErrUngrounded)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			return fmt.Errorf("%w: marker [%s] has no retrieved chunk", ErrUngrounded, m[1])
		}
	}
	return nil
}

package mergeprofile

import (
	"context"
	"errors"
	"fmt"

	"medchat-engine/internal/models"
)

const Name = "merge-profile"

var (
	ErrExtractionFailed    = errors.New("EXTRACTION_FAILED")
	ErrInvalidProfileValue = errors.New("INVALID_PROFILE_VALUE")
	ErrUpstreamTimeout     = errors.New("UPSTREAM_TIMEOUT")
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Extractor interface {
	Extract(ctx context.Context, message string, history []models.Message, lang models.Language) (*Extraction, error)
}

type Handler struct {
	config    *Config
	extractor Extractor
	logger    Logger
}

func NewHandler(config *Config, extractor Extractor, log Logger) *Handler {
	if extractor == nil {
		extractor = NewRuleExtractor(config.Catalog)
	}
	return &Handler{
		config:    config,
		extractor: extractor,
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
	}
}

// Execute extracts values from the message and merges them into the prior profile.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	ext, err := h.Extract(ctx, input.Message, input.History, input.Language)
	if err != nil {
		return nil, err
	}

	merged, changed := h.Apply(input.Prior, ext.Partial, ext.Correction)

	return &Output{
		Profile:    merged,
		Partial:    ext.Partial,
		Changed:    changed,
		Rejected:   ext.Rejected,
		Correction: ext.Correction,
	}, nil
}

// Extract returns the partial profile found in message. Extractor failures
// degrade to an empty extraction; only an expired deadline is an error.
func (h *Handler) Extract(ctx context.Context, message string, history []models.Message, lang models.Language) (*Extraction, error) {
	ext, err := h.extractor.Extract(ctx, message, history, lang)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, ctx.Err())
		}
		h.logger.Warn("extraction failed, continuing with empty profile update", map[string]interface{}{
			"errorCode": ErrExtractionFailed.Error(),
			"error":     err.Error(),
		})
		return &Extraction{}, nil
	}
	if ext == nil {
		return &Extraction{}, nil
	}

	out := &Extraction{Correction: ext.Correction, Rejected: ext.Rejected}
	for _, f := range models.ProfileFields {
		v := ext.Partial.Value(f)
		if v == "" {
			continue
		}
		canonical, ok := h.config.Catalog.NormalizeField(f, v)
		if !ok {
			out.Rejected = append(out.Rejected, Rejection{Field: f, Value: v, Reason: reasonInvalid})
			continue
		}
		_ = out.Partial.Set(f, canonical)
	}

	for _, r := range out.Rejected {
		// values are not logged
		h.logger.Info("profile value rejected", map[string]interface{}{
			"errorCode": ErrInvalidProfileValue.Error(),
			"field":     string(r.Field),
			"reason":    r.Reason,
		})
	}
	return out, nil
}

// Apply merges partial into prior without mutating either. Empty values never
// erase a field; a valid id-like field only changes on an explicit correction.
func (h *Handler) Apply(prior, partial models.UserProfile, correction bool) (models.UserProfile, []models.Field) {
	merged := prior.Clone()
	var changed []models.Field

	for _, f := range models.ProfileFields {
		next := partial.Value(f)
		if next == "" {
			continue
		}
		current := prior.Value(f)
		if current == next {
			continue
		}
		if models.IsIdentityField(f) && current != "" && h.config.Catalog.FieldValid(prior, f) && !correction {
			h.logger.Info("identity field kept, no correction marker", map[string]interface{}{
				"field": string(f),
			})
			continue
		}
		if err := merged.Set(f, next); err != nil {
			continue
		}
		changed = append(changed, f)
	}
	return merged, changed
}

package evaluategating

import (
	"context"

	"medchat-engine/internal/models"
)

const Name = "evaluate-gating"

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config *Config
	logger Logger
}

func NewHandler(config *Config, log Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
	}
}

func (h *Handler) Execute(_ context.Context, input *Input) (*GateResult, error) {
	result := h.Evaluate(input.AnswerType, input.Profile, input.Language)
	return &result, nil
}

// Required returns the fields the answer type needs. Types missing from the
// table gate like other.
func (h *Handler) Required(answerType models.AnswerType) []models.Field {
	if fields, ok := h.config.Table[answerType]; ok {
		return fields
	}
	return h.config.Table[models.AnswerOther]
}

// Evaluate is a pure function of its arguments: a field counts as present
// only when it holds a valid value.
func (h *Handler) Evaluate(answerType models.AnswerType, profile models.UserProfile, lang models.Language) GateResult {
	required := h.Required(answerType)

	missing := make([]models.Field, 0, len(required))
	for _, f := range required {
		if !h.config.Catalog.FieldValid(profile, f) {
			missing = append(missing, f)
		}
	}

	result := GateResult{
		Sufficient: len(missing) == 0,
		Required:   append([]models.Field{}, required...),
		Missing:    missing,
	}
	if !result.Sufficient {
		result.NextQuestion = Question(missing, lang, h.config.Catalog)
		fields := make([]string, len(missing))
		for i, f := range missing {
			fields[i] = string(f)
		}
		h.logger.Info("profile insufficient", map[string]interface{}{
			"answerType":    string(answerType),
			"missingFields": fields,
		})
	}
	return result
}

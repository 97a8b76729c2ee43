package classifyintent

import "medchat-engine/internal/models"

type Scope string

const (
	ScopeInScope    Scope = "in_scope"
	ScopeOutOfScope Scope = "out_of_scope"
	// ScopeUnknown is used when the message names no service and asks nothing.
	ScopeUnknown Scope = ""
)

type Classification struct {
	Intent     models.Intent     `json:"intent"`
	AnswerType models.AnswerType `json:"answerType"`
	Category   string            `json:"category,omitempty"`
	Scope      Scope             `json:"scope,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
	Confidence float64           `json:"confidence"`
}

// IsQuestion reports whether the classification carries something to answer.
func (c *Classification) IsQuestion() bool {
	return c != nil && c.Intent == models.IntentQuestionAnswering && c.AnswerType != models.AnswerOther
}

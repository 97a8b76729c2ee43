// internal/models/dialogue.go
package models

import "time"

type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageHebrew  Language = "he"
	LanguageEnglish Language = "en"
)

func (l Language) Valid() bool {
	return l == LanguageHebrew || l == LanguageEnglish
}

type Intent string

const (
	IntentCollection        Intent = "collection"
	IntentQuestionAnswering Intent = "question_answering"
	IntentOther             Intent = "other"
)

func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentCollection, IntentQuestionAnswering:
		return Intent(s)
	}
	return IntentOther
}

type AnswerType string

const (
	AnswerGeneralDescription AnswerType = "general_description"
	AnswerSpecificBenefits   AnswerType = "specific_benefits"
	AnswerEligibility        AnswerType = "eligibility"
	AnswerCostCoverage       AnswerType = "cost_coverage"
	AnswerDocumentsRequired  AnswerType = "documents_required"
	AnswerProcessSteps       AnswerType = "process_steps"
	AnswerOther              AnswerType = "other"
)

var AnswerTypes = []AnswerType{
	AnswerGeneralDescription,
	AnswerSpecificBenefits,
	AnswerEligibility,
	AnswerCostCoverage,
	AnswerDocumentsRequired,
	AnswerProcessSteps,
	AnswerOther,
}

// ParseAnswerType accepts snake_case and kebab-case names. Unknown names map to other.
func ParseAnswerType(s string) AnswerType {
	s = replaceDashes(s)
	for _, t := range AnswerTypes {
		if string(t) == s {
			return t
		}
	}
	return AnswerOther
}

func replaceDashes(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}

type Action string

const (
	ActionCollect Action = "collect"
	ActionAnswer  Action = "answer"
	ActionClarify Action = "clarify"
	// ActionError is only used for telemetry of failed turns.
	ActionError Action = "error"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is one incoming turn. The caller carries profile and history
// between turns; nothing is kept server side.
type TurnRequest struct {
	Message             string      `json:"message"`
	Language            Language    `json:"language,omitempty"`
	UserProfile         UserProfile `json:"user_profile"`
	ConversationHistory []Message   `json:"conversation_history,omitempty"`
}

type Citation struct {
	Source   string `json:"source"`
	ChunkID  string `json:"chunk_id"`
	Category string `json:"category"`
	Service  string `json:"service,omitempty"`
	Provider string `json:"provider,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

type ContextMetrics struct {
	KBContextChars int `json:"kb_context_chars"`
	SnippetsChars  int `json:"snippets_chars"`
}

type TurnResponse struct {
	RequestID         string          `json:"request_id"`
	Language          Language        `json:"language"`
	Intent            Intent          `json:"intent"`
	AnswerType        AnswerType      `json:"answer_type"`
	Category          string          `json:"category,omitempty"`
	UpdatedProfile    UserProfile     `json:"updated_profile"`
	KnownFields       []Field         `json:"known_fields"`
	MissingFields     []Field         `json:"missing_fields"`
	SufficientContext bool            `json:"sufficient_context"`
	Action            Action          `json:"action"`
	NextQuestion      string          `json:"next_question,omitempty"`
	Answer            string          `json:"answer,omitempty"`
	Grounded          *bool           `json:"grounded,omitempty"`
	Citations         []Citation      `json:"citations,omitempty"`
	TokenUsage        *TokenUsage     `json:"token_usage,omitempty"`
	ContextMetrics    *ContextMetrics `json:"context_metrics,omitempty"`
	Disclaimer        string          `json:"disclaimer,omitempty"`
	LanguageFallback  bool            `json:"language_fallback,omitempty"`
}

// TelemetryEvent is emitted once per terminal turn transition.
type TelemetryEvent struct {
	Timestamp     time.Time     `json:"timestamp"`
	RequestID     string        `json:"request_id"`
	Action        Action        `json:"action"`
	Intent        Intent        `json:"intent,omitempty"`
	Category      string        `json:"category,omitempty"`
	AnswerType    AnswerType    `json:"answer_type,omitempty"`
	Language      Language      `json:"language,omitempty"`
	Latency       time.Duration `json:"-"`
	TokenUsage    *TokenUsage   `json:"token_usage,omitempty"`
	Success       bool          `json:"success"`
	ErrorCode     string        `json:"error_code,omitempty"`
	MessageLength int           `json:"message_length"`
}

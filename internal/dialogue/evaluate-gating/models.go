package evaluategating

import "medchat-engine/internal/models"

type Input struct {
	AnswerType models.AnswerType
	Profile    models.UserProfile
	Language   models.Language
}

// GateResult says whether the profile is complete enough for the answer type.
// NextQuestion is set only when Sufficient is false.
type GateResult struct {
	Sufficient   bool           `json:"sufficient"`
	Required     []models.Field `json:"required"`
	Missing      []models.Field `json:"missing"`
	NextQuestion string         `json:"nextQuestion,omitempty"`
}

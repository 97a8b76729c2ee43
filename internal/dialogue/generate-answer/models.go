package generateanswer

import "medchat-engine/internal/models"

type Input struct {
	Profile    models.UserProfile
	AnswerType models.AnswerType
	Category   string
	Question   string
	Chunks     []models.KnowledgeChunk
	Language   models.Language
}

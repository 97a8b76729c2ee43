package knowledge

import (
	"strings"

	"medchat-engine/internal/models"
)

const (
	DefaultMaxResults = 3
	DefaultMaxChars   = 3500

	minorAge  = 18
	seniorAge = 65
)

type Limits struct {
	MaxResults int
	MaxChars   int
}

// BuildQuery turns a classified question and the caller's profile into a
// retrieval query. Provider and tier are used as exact filters whenever the
// profile holds them; age only adds ranking terms and lang only orders
// passages.
func BuildQuery(question, category string, profile models.UserProfile, lang models.Language, limits Limits) models.RetrievalQuery {
	if limits.MaxResults <= 0 {
		limits.MaxResults = DefaultMaxResults
	}
	if limits.MaxChars <= 0 {
		limits.MaxChars = DefaultMaxChars
	}

	text := strings.TrimSpace(question)
	if profile.Age != nil {
		switch {
		case *profile.Age < minorAge:
			text += " ילדים נוער children"
		case *profile.Age > seniorAge:
			text += " מבוגרים קשישים seniors"
		}
	}

	return models.RetrievalQuery{
		Text:       strings.TrimSpace(text),
		Category:   category,
		Provider:   strings.TrimSpace(profile.Provider),
		Tier:       strings.TrimSpace(profile.Tier),
		Language:   lang,
		MaxResults: limits.MaxResults,
		MaxChars:   limits.MaxChars,
	}
}

package classifyintent

import (
	"unicode"

	"medchat-engine/internal/models"
)

const (
	hebrewRatioThreshold  = 0.2
	englishRatioThreshold = 0.5
)

// DetectLanguage picks he or en from the share of Hebrew and Latin letters
// among the non-space characters. Mixed or symbol-heavy text gets fallback.
func DetectLanguage(text string, fallback models.Language) models.Language {
	if !fallback.Valid() {
		fallback = models.LanguageHebrew
	}

	var total, hebrew, latin int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case models.IsHebrewRune(r):
			hebrew++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}
	if total == 0 {
		return fallback
	}

	if float64(hebrew)/float64(total) > hebrewRatioThreshold {
		return models.LanguageHebrew
	}
	if float64(latin)/float64(total) > englishRatioThreshold {
		return models.LanguageEnglish
	}
	return fallback
}

// ResolveLanguage turns a declared language into the turn language.
func ResolveLanguage(declared models.Language, message string, fallback models.Language) models.Language {
	if declared.Valid() {
		return declared
	}
	return DetectLanguage(message, fallback)
}

package generateanswer

import (
	"fmt"
	"strings"

	"medchat-engine/internal/models"
)

const (
	disclaimerHebrew  = "המידע כללי ואינו מהווה ייעוץ רפואי."
	disclaimerEnglish = "This information is general and does not constitute medical advice."
)

// Disclaimer is appended to every answer in the turn language.
func Disclaimer(lang models.Language) string {
	if lang == models.LanguageEnglish {
		return disclaimerEnglish
	}
	return disclaimerHebrew
}

var headers = map[models.Language]map[models.AnswerType]string{
	models.LanguageHebrew: {
		models.AnswerSpecificBenefits:   "ההטבות בתחום %s",
		models.AnswerEligibility:        "זכאות בתחום %s",
		models.AnswerCostCoverage:       "עלויות וכיסוי בתחום %s",
		models.AnswerDocumentsRequired:  "מסמכים נדרשים בתחום %s",
		models.AnswerProcessSteps:       "שלבי התהליך בתחום %s",
		models.AnswerGeneralDescription: "מידע כללי בתחום %s",
	},
	models.LanguageEnglish: {
		models.AnswerSpecificBenefits:   "Benefits for %s",
		models.AnswerEligibility:        "Eligibility for %s",
		models.AnswerCostCoverage:       "Costs and coverage for %s",
		models.AnswerDocumentsRequired:  "Required documents for %s",
		models.AnswerProcessSteps:       "How to proceed with %s",
		models.AnswerGeneralDescription: "General information about %s",
	},
}

func (h *Handler) header(input *Input, lang models.Language) string {
	byType := headers[lang]
	format, ok := byType[input.AnswerType]
	if !ok {
		format = byType[models.AnswerGeneralDescription]
	}
	text := fmt.Sprintf(format, h.config.Catalog.CategoryLabel(input.Category, lang))
	if plan := h.planLabel(input.Profile, lang); plan != "" {
		text += " (" + plan + ")"
	}
	return text + ":"
}

// planLabel renders "Maccabi Gold" from the profile, or "" when unknown.
func (h *Handler) planLabel(p models.UserProfile, lang models.Language) string {
	var parts []string
	if p.Provider != "" {
		parts = append(parts, h.config.Catalog.ProviderLabel(p.Provider, lang))
	}
	if p.Tier != "" {
		parts = append(parts, h.config.Catalog.TierLabel(p.Tier, lang))
	}
	return strings.Join(parts, " ")
}

// NoInformation is the reply when retrieval found nothing for the question.
func (h *Handler) NoInformation(input *Input, lang models.Language) string {
	category := h.config.Catalog.CategoryLabel(input.Category, lang)
	plan := h.planLabel(input.Profile, lang)

	if lang == models.LanguageEnglish {
		text := fmt.Sprintf("I could not find information about %s", category)
		if plan != "" {
			text += " for " + plan
		}
		return text + " in the knowledge base. Please contact your health fund directly."
	}
	text := fmt.Sprintf("לא מצאתי מידע בנושא %s", category)
	if plan != "" {
		text += " עבור " + plan
	}
	return text + " במאגר המידע. מומלץ לפנות ישירות לקופת החולים."
}

// bullet renders one chunk using only its own content and tags.
func (h *Handler) bullet(n int, c models.KnowledgeChunk, lang models.Language) string {
	title := c.Service
	if title == "" {
		title = h.config.Catalog.CategoryLabel(c.Category, lang)
	}
	var tags []string
	if c.Provider != "" {
		tags = append(tags, h.config.Catalog.ProviderLabel(c.Provider, lang))
	}
	if c.Tier != "" {
		tags = append(tags, h.config.Catalog.TierLabel(c.Tier, lang))
	}
	if len(tags) > 0 {
		title += " (" + strings.Join(tags, " ") + ")"
	}
	return fmt.Sprintf("[%d] %s: %s", n, title, strings.TrimSpace(c.Content))
}

var languageNames = map[models.Language]map[models.Language]string{
	models.LanguageHebrew:  {models.LanguageHebrew: "עברית", models.LanguageEnglish: "אנגלית"},
	models.LanguageEnglish: {models.LanguageHebrew: "Hebrew", models.LanguageEnglish: "English"},
}

// LanguageNotice tells the user, in the turn language, that the passages
// below are only available in content.
func LanguageNotice(lang, content models.Language) string {
	name := languageNames[lang][content]
	if name == "" {
		name = string(content)
	}
	if lang == models.LanguageEnglish {
		return fmt.Sprintf("Note: this information is only available in %s.", name)
	}
	return fmt.Sprintf("שימו לב: המידע הזה זמין רק ב%s.", name)
}

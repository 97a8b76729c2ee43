package orchestrateturn

import (
	"fmt"
	"strings"

	classifyintent "medchat-engine/internal/dialogue/classify-intent"
	"medchat-engine/internal/models"
)

// ScopeExplanation is the clarify text for turns that cannot be answered:
// an out-of-scope question, or a message that names no service.
func ScopeExplanation(scope classifyintent.Scope, catalog *models.Catalog, lang models.Language) string {
	services := strings.Join(catalog.CategoryLabels(lang), ", ")

	if lang == models.LanguageEnglish {
		if scope == classifyintent.ScopeOutOfScope {
			return fmt.Sprintf("Sorry, the service you asked about is not covered by our information system. Available services are: %s. I'd be happy to help with one of them.", services)
		}
		return fmt.Sprintf("Which service would you like to ask about? Available services are: %s.", services)
	}
	if scope == classifyintent.ScopeOutOfScope {
		return fmt.Sprintf("מצטער, השירות שביקשת אינו זמין במערכת המידע שלנו. השירותים הזמינים הם: %s. אשמח לעזור באחד מהם.", services)
	}
	return fmt.Sprintf("על איזה שירות תרצה לשאול? השירותים הזמינים הם: %s.", services)
}

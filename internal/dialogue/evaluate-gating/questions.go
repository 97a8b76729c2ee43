package evaluategating

import (
	"fmt"
	"strings"

	"medchat-engine/internal/models"
)

var fieldLabels = map[models.Language]map[models.Field]string{
	models.LanguageHebrew: {
		models.FieldFullName:   "שם מלא",
		models.FieldIDNumber:   "תעודת זהות",
		models.FieldGender:     "מין",
		models.FieldAge:        "גיל",
		models.FieldProvider:   "קופת חולים",
		models.FieldTier:       "מסלול",
		models.FieldCardNumber: "מספר כרטיס",
	},
	models.LanguageEnglish: {
		models.FieldFullName:   "full name",
		models.FieldIDNumber:   "ID number",
		models.FieldGender:     "gender",
		models.FieldAge:        "age",
		models.FieldProvider:   "health fund",
		models.FieldTier:       "plan tier",
		models.FieldCardNumber: "card number",
	},
}

// FieldLabel is the human name of a profile field in the given language.
func FieldLabel(f models.Field, lang models.Language) string {
	if labels, ok := fieldLabels[normalizeLanguage(lang)]; ok {
		if l, ok := labels[f]; ok {
			return l
		}
	}
	return string(f)
}

func normalizeLanguage(lang models.Language) models.Language {
	if lang.Valid() {
		return lang
	}
	return models.LanguageHebrew
}

// fragment returns the part of the consolidated question that asks for f.
func fragment(f models.Field, lang models.Language, catalog *models.Catalog) string {
	if lang == models.LanguageEnglish {
		switch f {
		case models.FieldProvider:
			return fmt.Sprintf("which health fund (HMO) you belong to (%s)", listOptions(catalog.ProviderLabels(lang), lang))
		case models.FieldTier:
			return fmt.Sprintf("your plan tier (%s)", listOptions(catalog.TierLabels(lang), lang))
		case models.FieldFullName:
			return "your full name"
		case models.FieldIDNumber:
			return "your 9-digit ID number"
		case models.FieldGender:
			return "your gender"
		case models.FieldAge:
			return "your age"
		case models.FieldCardNumber:
			return "your 9-digit membership card number"
		}
		return "your " + FieldLabel(f, lang)
	}

	switch f {
	case models.FieldProvider:
		return fmt.Sprintf("באיזו קופת חולים אתה חבר (%s)", listOptions(catalog.ProviderLabels(lang), lang))
	case models.FieldTier:
		return fmt.Sprintf("מה המסלול שלך (%s)", listOptions(catalog.TierLabels(lang), lang))
	case models.FieldFullName:
		return "מה שמך המלא"
	case models.FieldIDNumber:
		return "מה מספר תעודת הזהות שלך (9 ספרות)"
	case models.FieldGender:
		return "מה המין שלך"
	case models.FieldAge:
		return "בן/בת כמה אתה"
	case models.FieldCardNumber:
		return "מה מספר כרטיס הקופה שלך (9 ספרות)"
	}
	return "מה " + FieldLabel(f, lang) + " שלך"
}

// listOptions renders "a, b or c" / "א, ב או ג".
func listOptions(options []string, lang models.Language) string {
	or := " או "
	if lang == models.LanguageEnglish {
		or = " or "
	}
	switch len(options) {
	case 0:
		return ""
	case 1:
		return options[0]
	}
	return strings.Join(options[:len(options)-1], ", ") + or + options[len(options)-1]
}

// Question builds one sentence that asks for every missing field at once.
func Question(missing []models.Field, lang models.Language, catalog *models.Catalog) string {
	if len(missing) == 0 {
		return ""
	}
	lang = normalizeLanguage(lang)

	parts := make([]string, len(missing))
	for i, f := range missing {
		parts[i] = fragment(f, lang, catalog)
	}

	if lang == models.LanguageEnglish {
		body := parts[0]
		if len(parts) > 1 {
			body = strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
		}
		return "Please tell me " + body + "."
	}

	body := parts[0]
	if len(parts) > 1 {
		body = strings.Join(parts[:len(parts)-1], ", ") + " ו" + parts[len(parts)-1]
	}
	return body + "?"
}

package mergeprofile

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"medchat-engine/internal/models"
)

var (
	numberPattern   = regexp.MustCompile(`\d[\d-]{7,10}\d`)
	bareAgePattern  = regexp.MustCompile(`^\s*(\d{1,3})\s*[.!]?\s*$`)
	hebrewAgeGender = regexp.MustCompile(`(?:^|\s)(?:אני\s+)?(בן|בת)\s+(\d{1,3})(?:\D|$)`)
	agePatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bage\s*(?:is\s*|of\s*|:\s*)?(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:years?\s*old|y/?o)\b`),
		regexp.MustCompile(`(?:^|\s)(?:ב?גיל(?:י)?|גילי)\s*:?\s*(\d{1,3})(?:\D|$)`),
	}
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy\s+(?:full\s+)?name\s+is\s+([^,.;!?\d]+)`),
		regexp.MustCompile(`(?:^|\s)(?:שמי|קוראים\s+לי|השם\s+שלי(?:\s+הוא|\s+היא)?)\s+([^,.;!?\d]+)`),
	}
)

var (
	correctionMarkers = []string{"correction", "actually", "sorry", "i meant", "טעות", "תיקון", "בעצם", "למעשה", "התכוונתי"}
	idCues            = []string{"תעודת זהות", "זהות", "ת ז", "תז", "id", "identity", "teudat zehut"}
	cardCues          = []string{"כרטיס", "כרטיס חבר", "מספר חבר", "card", "membership", "member number"}
	tierCues          = []string{"מסלול", "רמת", "tier", "plan", "level"}
	providerCues      = []string{"קופת חולים", "קופה", "health fund", "hmo", "provider"}
	maleWords         = []string{"male", "man", "זכר", "גבר"}
	femaleWords       = []string{"female", "woman", "נקבה", "אישה", "אשה"}
	selfWords         = []string{"i", "אני"}
	fillerWords       = map[string]bool{
		"is": true, "my": true, "the": true, "a": true, "of": true, "with": true, "in": true, "i": true, "am": true,
		"שלי": true, "הוא": true, "היא": true, "אני": true, "זה": true,
	}
	nameStopWords = map[string]bool{
		"and": true, "i": true, "im": true, "from": true, "age": true, "with": true, "my": true,
		"ואני": true, "אני": true, "בן": true, "בת": true, "גיל": true, "בגיל": true,
	}
)

// pendingCues identify which field a previous assistant message asked for.
var pendingCues = []struct {
	field models.Field
	cues  []string
}{
	{models.FieldProvider, providerCues},
	{models.FieldTier, []string{"מסלול", "tier", "plan"}},
	{models.FieldAge, []string{"גיל", "בן כמה", "בת כמה", "how old", "age"}},
	{models.FieldFullName, []string{"שם מלא", "שמך", "השם", "name"}},
	{models.FieldIDNumber, []string{"תעודת זהות", "זהות", "id number"}},
	{models.FieldGender, []string{"מין", "מגדר", "gender"}},
	{models.FieldCardNumber, []string{"כרטיס", "card"}},
}

// RuleExtractor recognizes profile values with catalog lookups and patterns.
// It never calls out and never fails.
type RuleExtractor struct {
	catalog *models.Catalog
}

func NewRuleExtractor(catalog *models.Catalog) *RuleExtractor {
	return &RuleExtractor{catalog: catalog}
}

// PendingFields returns the fields the last assistant message asked for.
func PendingFields(history []models.Message) []models.Field {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleAssistant {
			continue
		}
		tokens := models.Tokenize(history[i].Content)
		var out []models.Field
		for _, pc := range pendingCues {
			if _, ok := models.ContainsAnyPhrase(tokens, pc.cues); ok {
				out = append(out, pc.field)
			}
		}
		return out
	}
	return nil
}

func hasField(fields []models.Field, f models.Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}

func (r *RuleExtractor) Extract(_ context.Context, message string, history []models.Message, _ models.Language) (*Extraction, error) {
	tokens := models.Tokenize(message)
	pending := PendingFields(history)
	ext := &Extraction{}

	ext.Correction = isCorrection(tokens)

	providerFound := r.extractProvider(ext, tokens)
	r.extractTier(ext, tokens, pending, providerFound)
	r.extractNumbers(ext, message, tokens, pending)
	r.extractAge(ext, message, pending)
	r.extractGender(ext, message, tokens, pending)
	r.extractName(ext, message, tokens, pending)

	return ext, nil
}

// correctionWindow is how many tokens may separate a correction marker from
// the identity cue or number it corrects.
const correctionWindow = 4

// isCorrection reports whether a correction marker stands next to an id or
// card cue, or next to a long number. "Sorry, my ID is 000000018" corrects;
// "sorry, what does it include?" does not.
func isCorrection(tokens []string) bool {
	var markers, anchors []int
	for _, m := range correctionMarkers {
		markers = append(markers, models.PhraseIndexes(tokens, m)...)
	}
	if len(markers) == 0 {
		return false
	}
	for _, cues := range [][]string{idCues, cardCues} {
		for _, c := range cues {
			anchors = append(anchors, models.PhraseIndexes(tokens, c)...)
		}
	}
	for i, tok := range tokens {
		if len(tok) >= 8 && isDigits(tok) {
			anchors = append(anchors, i)
		}
	}
	for _, m := range markers {
		for _, a := range anchors {
			if d := a - m; d >= -correctionWindow && d <= correctionWindow {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func distinctValues(matches []models.Match) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if !seen[m.Value] {
			seen[m.Value] = true
			out = append(out, m.Value)
		}
	}
	return out
}

func (r *RuleExtractor) extractProvider(ext *Extraction, tokens []string) bool {
	values := distinctValues(r.catalog.MatchProviders(tokens))
	switch len(values) {
	case 1:
		ext.Partial.Provider = values[0]
		return true
	case 0:
		if v, ok := valueAfterCue(tokens, providerCues); ok {
			ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldProvider, Value: v, Reason: reasonNotInCatalog})
		}
	default:
		ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldProvider, Value: strings.Join(values, ","), Reason: reasonAmbiguous})
	}
	return false
}

func (r *RuleExtractor) extractTier(ext *Extraction, tokens []string, pending []models.Field, providerFound bool) {
	_, cued := models.ContainsAnyPhrase(tokens, tierCues)
	allowContextual := cued || providerFound || hasField(pending, models.FieldTier)

	var accepted []models.Match
	for _, m := range r.catalog.MatchTiers(tokens) {
		if m.Contextual && !allowContextual {
			continue
		}
		accepted = append(accepted, m)
	}

	values := distinctValues(accepted)
	switch len(values) {
	case 1:
		ext.Partial.Tier = values[0]
	case 0:
		if v, ok := valueAfterCue(tokens, tierCues); ok {
			ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldTier, Value: v, Reason: reasonNotInCatalog})
		}
	default:
		ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldTier, Value: strings.Join(values, ","), Reason: reasonAmbiguous})
	}
}

// valueAfterCue returns the first non-filler word following a cue phrase,
// e.g. "leumit" in "my health fund is leumit".
func valueAfterCue(tokens []string, cues []string) (string, bool) {
	for _, cue := range cues {
		want := models.Tokenize(cue)
		for i := 0; i+len(want) <= len(tokens); i++ {
			if !models.ContainsPhrase(tokens[i:i+len(want)], cue) {
				continue
			}
			for _, t := range tokens[i+len(want):] {
				if fillerWords[t] {
					continue
				}
				if isAllLetters(t) {
					return t, true
				}
				return "", false
			}
		}
	}
	return "", false
}

func isAllLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func (r *RuleExtractor) extractNumbers(ext *Extraction, message string, tokens []string, pending []models.Field) {
	_, cardCued := models.ContainsAnyPhrase(tokens, cardCues)
	cardPending := hasField(pending, models.FieldCardNumber) && !hasField(pending, models.FieldIDNumber)

	for _, raw := range numberPattern.FindAllString(message, -1) {
		digits := strings.ReplaceAll(raw, "-", "")
		if len(digits) != 9 {
			continue
		}
		if (cardCued || cardPending) && ext.Partial.CardNumber == "" {
			ext.Partial.CardNumber = digits
			continue
		}
		if ext.Partial.IDNumber != "" {
			continue
		}
		if models.ValidIsraeliID(digits) {
			ext.Partial.IDNumber = digits
		} else {
			ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldIDNumber, Value: digits, Reason: reasonChecksum})
		}
	}
}

func (r *RuleExtractor) extractAge(ext *Extraction, message string, pending []models.Field) {
	var candidate string
	if m := hebrewAgeGender.FindStringSubmatch(message); m != nil {
		candidate = m[2]
	}
	for _, p := range agePatterns {
		if candidate != "" {
			break
		}
		if m := p.FindStringSubmatch(message); m != nil {
			candidate = m[1]
		}
	}
	if candidate == "" && hasField(pending, models.FieldAge) {
		if m := bareAgePattern.FindStringSubmatch(message); m != nil {
			candidate = m[1]
		}
	}
	if candidate == "" {
		return
	}

	age, err := strconv.Atoi(candidate)
	if err != nil || !models.ValidAge(age) {
		ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldAge, Value: candidate, Reason: reasonOutOfRange})
		return
	}
	ext.Partial.Age = &age
}

func (r *RuleExtractor) extractGender(ext *Extraction, message string, tokens []string, pending []models.Field) {
	// gender words only describe the user in a first-person statement
	var male, female bool
	if _, self := models.ContainsAnyPhrase(tokens, selfWords); self || hasField(pending, models.FieldGender) {
		_, male = models.ContainsAnyPhrase(tokens, maleWords)
		_, female = models.ContainsAnyPhrase(tokens, femaleWords)
	}

	if m := hebrewAgeGender.FindStringSubmatch(message); m != nil {
		if m[1] == "בן" {
			male = true
		} else {
			female = true
		}
	}

	switch {
	case male && !female:
		ext.Partial.Gender = models.GenderMale
	case female && !male:
		ext.Partial.Gender = models.GenderFemale
	case male && female:
		ext.Rejected = append(ext.Rejected, Rejection{Field: models.FieldGender, Value: "male,female", Reason: reasonAmbiguous})
	default:
		if hasField(pending, models.FieldGender) {
			if g, ok := models.NormalizeGender(message); ok {
				ext.Partial.Gender = g
			}
		}
	}
}

func (r *RuleExtractor) extractName(ext *Extraction, message string, tokens []string, pending []models.Field) {
	for _, p := range namePatterns {
		if m := p.FindStringSubmatch(message); m != nil {
			if name := r.cleanName(m[1]); name != "" {
				ext.Partial.FullName = name
				return
			}
		}
	}

	// a bare reply to a name question, e.g. "Dana Cohen"
	if !hasField(pending, models.FieldFullName) || !ext.Partial.IsEmpty() {
		return
	}
	if len(tokens) == 0 || len(tokens) > 4 {
		return
	}
	if name := r.cleanName(strings.TrimRight(message, ".!?, ")); name != "" && len(strings.Fields(name)) == len(tokens) {
		ext.Partial.FullName = name
	}
}

func (r *RuleExtractor) cleanName(raw string) string {
	var parts []string
	for _, w := range strings.Fields(raw) {
		lw := strings.ToLower(w)
		if nameStopWords[lw] || !isNameWord(w) || r.isCatalogWord(lw) {
			break
		}
		parts = append(parts, w)
		if len(parts) == 4 {
			break
		}
	}
	return strings.Join(parts, " ")
}

func isNameWord(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) && r != '-' && r != '\'' {
			return false
		}
	}
	return w != ""
}

func (r *RuleExtractor) isCatalogWord(token string) bool {
	tokens := []string{token}
	return len(r.catalog.MatchProviders(tokens)) > 0 || len(r.catalog.MatchTiers(tokens)) > 0
}

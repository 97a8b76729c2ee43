package classifyintent

import (
	"context"
	"regexp"
	"strings"

	"medchat-engine/internal/models"
)

// answerTypeCues are checked in order; the first type with a matching cue wins.
var answerTypeCues = []struct {
	answerType models.AnswerType
	cues       []string
}{
	{models.AnswerDocumentsRequired, []string{
		"מסמכים", "מסמך", "טפסים", "טופס", "אישור רפואי", "הפניה", "להביא",
		"documents", "document", "paperwork", "forms", "form", "referral", "bring",
	}},
	{models.AnswerEligibility, []string{
		"זכאי", "זכאית", "זכאים", "זכאות", "מגיע לי", "מגיעה לי", "רשאי",
		"eligible", "eligibility", "entitled", "qualify", "qualified",
	}},
	{models.AnswerCostCoverage, []string{
		"כמה עולה", "עולה", "עלות", "מחיר", "השתתפות עצמית", "החזר", "הנחה", "תשלום", "לשלם", "כיסוי", "מכוסה",
		"cost", "costs", "price", "pay", "how much", "coverage", "covered", "refund", "reimbursement", "discount", "copay", "fee",
	}},
	{models.AnswerProcessSteps, []string{
		"איך", "כיצד", "תהליך", "שלבים", "לקבוע תור", "תור", "להגיש", "להירשם",
		"how do i", "how can i", "how to", "process", "steps", "appointment", "book", "schedule", "apply", "register",
	}},
	{models.AnswerSpecificBenefits, []string{
		"הטבות", "הטבה", "מה מגיע",
		"benefits", "benefit", "what do i get",
	}},
	// "what does it include" describes the service itself and needs no plan
	{models.AnswerGeneralDescription, []string{
		"מה כולל", "מה כלול", "כולל", "כוללת", "כוללים", "כלול", "כלולה", "כלולים",
		"what is included", "what's included", "included", "include", "includes",
	}},
	{models.AnswerSpecificBenefits, []string{
		"זמינים", "מה יש",
		"available", "offer",
	}},
	{models.AnswerGeneralDescription, []string{
		"מה זה", "מהו", "מהי", "ספר לי", "הסבר", "מידע על", "מידע", "כללי",
		"what is", "what are", "tell me about", "explain", "overview", "information", "describe",
	}},
}

var questionStarters = []string{
	"מה", "האם", "איך", "כמה", "מתי", "איפה", "למה", "אילו", "איזה", "איזו",
	"what", "how", "is", "are", "can", "do", "does", "which", "when", "where", "who", "why",
}

var (
	nineDigits     = regexp.MustCompile(`\d{9}`)
	profileCues    = []string{"שמי", "קוראים לי", "בן", "בת", "גיל", "my name", "years old", "i am", "im with", "member of"}
	identityTokens = []string{"תעודת זהות", "כרטיס", "id", "card"}
)

// RuleClassifier maps cue words to intent, answer type and category. The
// same message always yields the same classification.
type RuleClassifier struct {
	catalog *models.Catalog
}

func NewRuleClassifier(catalog *models.Catalog) *RuleClassifier {
	return &RuleClassifier{catalog: catalog}
}

func (r *RuleClassifier) Classify(_ context.Context, message string, _ models.Language) (*Classification, error) {
	return r.classify(message), nil
}

func (r *RuleClassifier) classify(message string) *Classification {
	tokens := models.Tokenize(message)
	out := &Classification{AnswerType: models.AnswerOther, Intent: models.IntentOther}

	for _, atc := range answerTypeCues {
		if cue, ok := models.ContainsAnyPhrase(tokens, atc.cues); ok {
			out.AnswerType = atc.answerType
			out.Keywords = append(out.Keywords, cue)
			break
		}
	}

	if matches := r.catalog.MatchCategories(tokens); len(matches) > 0 {
		out.Category = matches[0].Value
		out.Keywords = append(out.Keywords, matches[0].Alias)
	}

	asks := isQuestion(message, tokens)
	switch {
	case out.AnswerType != models.AnswerOther || out.Category != "" || asks:
		out.Intent = models.IntentQuestionAnswering
	case r.carriesProfileData(message, tokens):
		out.Intent = models.IntentCollection
	}

	if out.Intent == models.IntentQuestionAnswering && out.AnswerType == models.AnswerOther && out.Category != "" {
		out.AnswerType = models.AnswerSpecificBenefits
	}

	switch {
	case out.Category != "":
		out.Scope = ScopeInScope
	case out.Intent == models.IntentQuestionAnswering && out.AnswerType == models.AnswerOther:
		out.Scope = ScopeOutOfScope
	}

	switch {
	case len(out.Keywords) > 0:
		out.Confidence = 0.9
	case out.Intent != models.IntentOther:
		out.Confidence = 0.6
	default:
		out.Confidence = 0.3
	}
	return out
}

func isQuestion(message string, tokens []string) bool {
	if strings.HasSuffix(strings.TrimSpace(message), "?") {
		return true
	}
	if len(tokens) == 0 {
		return false
	}
	for _, w := range questionStarters {
		if tokens[0] == w {
			return true
		}
	}
	return false
}

func (r *RuleClassifier) carriesProfileData(message string, tokens []string) bool {
	if len(r.catalog.MatchProviders(tokens)) > 0 {
		return true
	}
	for _, m := range r.catalog.MatchTiers(tokens) {
		if !m.Contextual {
			return true
		}
	}
	if nineDigits.MatchString(message) {
		return true
	}
	if _, ok := models.ContainsAnyPhrase(tokens, identityTokens); ok {
		return true
	}
	_, ok := models.ContainsAnyPhrase(tokens, profileCues)
	return ok
}

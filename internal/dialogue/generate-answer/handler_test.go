package generateanswer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat-engine/internal/models"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

// BenchmarkLogger is a minimal logger for benchmarks
type BenchmarkLogger struct{}

func (b *BenchmarkLogger) Info(msg string, fields map[string]interface{})  {}
func (b *BenchmarkLogger) Warn(msg string, fields map[string]interface{})  {}
func (b *BenchmarkLogger) Error(msg string, fields map[string]interface{}) {}
func (b *BenchmarkLogger) With(fields map[string]interface{}) Logger       { return b }

func newHandler(t *testing.T) *Handler {
	return NewHandler(LoadConfig(), RuneEstimator{}, NewTestLogger(t))
}

func maccabiGold() []models.KnowledgeChunk {
	return []models.KnowledgeChunk{
		{ID: "dental_a", Category: "מרפאות שיניים", Service: "ניקוי אבנית", Provider: "מכבי", Tier: "זהב", Source: "dental.html", Content: "ניקוי אבנית פעמיים בשנה ללא עלות."},
		{ID: "dental_b", Category: "מרפאות שיניים", Provider: "מכבי", Tier: "זהב", Content: "סתימות בהנחה של 30%."},
	}
}

// ==========================
// Tests
// ==========================

func TestAnswer(t *testing.T) {
	h := newHandler(t)
	profile := models.UserProfile{Provider: "מכבי", Tier: "זהב"}

	tests := []struct {
		name     string
		input    *Input
		validate func(t *testing.T, r *models.AnswerResult)
	}{
		{
			name: "hebrew grounded answer",
			input: &Input{
				Profile: profile, AnswerType: models.AnswerSpecificBenefits, Category: "מרפאות שיניים",
				Question: "מה מגיע לי בשיניים?", Chunks: maccabiGold(), Language: models.LanguageHebrew,
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				assert.True(t, r.Grounded)
				lines := strings.Split(r.Answer, "\n")
				assert.Equal(t, "ההטבות בתחום מרפאות שיניים (מכבי זהב):", lines[0])
				assert.Equal(t, "[1] ניקוי אבנית (מכבי זהב): ניקוי אבנית פעמיים בשנה ללא עלות.", lines[1])
				assert.Equal(t, "[2] מרפאות שיניים (מכבי זהב): סתימות בהנחה של 30%.", lines[2])
				assert.True(t, strings.HasSuffix(r.Answer, "\n\n"+disclaimerHebrew))
				assert.Equal(t, disclaimerHebrew, r.Disclaimer)

				require.Len(t, r.Citations, 2)
				assert.Equal(t, models.Citation{Source: "dental.html", ChunkID: "dental_a", Category: "מרפאות שיניים", Service: "ניקוי אבנית", Provider: "מכבי", Tier: "זהב"}, r.Citations[0])
				assert.Equal(t, "dental_b", r.Citations[1].Source)
			},
		},
		{
			name: "english labels come from the catalog",
			input: &Input{
				Profile: profile, AnswerType: models.AnswerCostCoverage, Category: "מרפאות שיניים",
				Question: "How much is a cleaning?", Chunks: maccabiGold()[:1], Language: models.LanguageEnglish,
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				assert.True(t, strings.HasPrefix(r.Answer, "Costs and coverage for Dental clinics (Maccabi Gold):\n[1] ניקוי אבנית (Maccabi Gold): "))
				assert.Equal(t, disclaimerEnglish, r.Disclaimer)
				assert.False(t, r.LanguageFallback)
			},
		},
		{
			name: "passages in the turn language are not flagged",
			input: &Input{
				Profile: profile, AnswerType: models.AnswerSpecificBenefits, Category: "מרפאות שיניים",
				Question: "What do I get?", Language: models.LanguageEnglish,
				Chunks: []models.KnowledgeChunk{
					{ID: "en", Category: "מרפאות שיניים", Service: "Scaling", Provider: "מכבי", Tier: "זהב", Language: models.LanguageEnglish, Content: "Two free cleanings per year."},
				},
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				assert.False(t, r.LanguageFallback)
				lines := strings.Split(r.Answer, "\n")
				assert.Equal(t, "Benefits for Dental clinics (Maccabi Gold):", lines[0])
				assert.Equal(t, "[1] Scaling (Maccabi Gold): Two free cleanings per year.", lines[1])
			},
		},
		{
			name: "passages in another language are flagged in the turn language",
			input: &Input{
				Profile: profile, AnswerType: models.AnswerSpecificBenefits, Category: "מרפאות שיניים",
				Question: "What do I get?", Language: models.LanguageEnglish,
				Chunks: []models.KnowledgeChunk{
					{ID: "he", Category: "מרפאות שיניים", Service: "ניקוי אבנית", Provider: "מכבי", Tier: "זהב", Language: models.LanguageHebrew, Content: "ניקוי אבנית פעמיים בשנה."},
				},
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				assert.True(t, r.Grounded)
				assert.True(t, r.LanguageFallback)
				lines := strings.Split(r.Answer, "\n")
				assert.Equal(t, "Benefits for Dental clinics (Maccabi Gold):", lines[0])
				assert.Equal(t, "Note: this information is only available in Hebrew.", lines[1])
				assert.True(t, strings.HasPrefix(lines[2], "[1] "))
				assert.Len(t, r.Citations, 1)
			},
		},
		{
			name: "metrics and usage",
			input: &Input{
				Profile: profile, AnswerType: models.AnswerSpecificBenefits, Category: "מרפאות שיניים",
				Question: "abcd", Chunks: maccabiGold(), Language: models.LanguageHebrew,
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				chunks := maccabiGold()
				snippets := len([]rune(chunks[0].Content)) + len([]rune(chunks[1].Content))
				assert.Equal(t, snippets, r.ContextMetrics.SnippetsChars)
				assert.Greater(t, r.ContextMetrics.KBContextChars, snippets)
				assert.Equal(t, r.TokenUsage.Prompt+r.TokenUsage.Completion, r.TokenUsage.Total)
				assert.Greater(t, r.TokenUsage.Prompt, 1)
				assert.Greater(t, r.TokenUsage.Completion, 0)
			},
		},
		{
			name: "no chunks is not grounded",
			input: &Input{
				Profile: profile, AnswerType: models.AnswerSpecificBenefits, Category: "אופטומטריה",
				Question: "glasses?", Language: models.LanguageEnglish,
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				assert.False(t, r.Grounded)
				assert.Empty(t, r.Citations)
				assert.Equal(t, "I could not find information about Optometry for Maccabi Gold in the knowledge base. Please contact your health fund directly.\n\n"+disclaimerEnglish, r.Answer)
				assert.NotContains(t, r.Answer, "[1]")
			},
		},
		{
			name: "auto language falls back to hebrew",
			input: &Input{
				AnswerType: models.AnswerGeneralDescription, Category: "מרפאות שיניים",
				Chunks: maccabiGold()[:1], Language: models.LanguageAuto,
			},
			validate: func(t *testing.T, r *models.AnswerResult) {
				assert.True(t, strings.HasPrefix(r.Answer, "מידע כללי בתחום מרפאות שיניים:\n"))
				assert.Equal(t, disclaimerHebrew, r.Disclaimer)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := h.Answer(context.Background(), tt.input)
			require.NoError(t, err)
			tt.validate(t, r)
		})
	}
}

func TestAnswer_BracketedNumbersInPassages(t *testing.T) {
	h := newHandler(t)
	chunks := []models.KnowledgeChunk{
		{ID: "x", Category: "c", Content: "Two cleanings per year, see the price list [12]."},
		{ID: "y", Category: "c", Content: "Line one\n[7] footnote on its own line"},
	}
	r, err := h.Answer(context.Background(), &Input{Category: "c", Chunks: chunks, Language: models.LanguageEnglish})
	require.NoError(t, err)
	assert.True(t, r.Grounded)
	require.Len(t, r.Citations, 2)
	assert.Contains(t, r.Answer, "price list [12].")
}

func TestAnswer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newHandler(t).Answer(ctx, &Input{Chunks: maccabiGold()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyGrounding(t *testing.T) {
	chunks := maccabiGold()

	tests := []struct {
		name    string
		bullets []string
		wantErr bool
	}{
		{name: "every bullet cites a chunk", bullets: []string{"[1] a", "[2] b"}},
		{name: "markers inside passage text are ignored", bullets: []string{"[1] see clause [9]", "[2] b [40]"}},
		{name: "no bullets", bullets: nil, wantErr: true},
		{name: "bullet without marker", bullets: []string{"no markers"}, wantErr: true},
		{name: "zero marker", bullets: []string{"[0] zero"}, wantErr: true},
		{name: "marker past the retrieved chunks", bullets: []string{"[1] a", "[3] c"}, wantErr: true},
		{name: "marker needs a following space", bullets: []string{"[1]a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyGrounding(tt.bullets, chunks)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUngrounded)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLanguageNotice(t *testing.T) {
	assert.Equal(t, "Note: this information is only available in Hebrew.", LanguageNotice(models.LanguageEnglish, models.LanguageHebrew))
	assert.Equal(t, "שימו לב: המידע הזה זמין רק באנגלית.", LanguageNotice(models.LanguageHebrew, models.LanguageEnglish))
}

func TestRuneEstimator(t *testing.T) {
	var e RuneEstimator
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, 1, e.Count("abc"))
	assert.Equal(t, 3, e.Count("שלום עולם"))
}

func BenchmarkAnswer(b *testing.B) {
	h := NewHandler(LoadConfig(), RuneEstimator{}, &BenchmarkLogger{})
	input := &Input{AnswerType: models.AnswerSpecificBenefits, Category: "מרפאות שיניים", Chunks: maccabiGold(), Language: models.LanguageHebrew}
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		_, _ = h.Answer(ctx, input)
	}
}

package classifyintent

import (
	"context"
	"fmt"

	"medchat-engine/internal/genai"
	"medchat-engine/internal/models"
)

type GenAIClient interface {
	ClassifyIntent(ctx context.Context, req *genai.ClassifyRequest) (*genai.ClassifyResponse, error)
}

// ModelClassifier delegates to the analysis endpoint. Whatever comes back is
// forced into the closed enumerations; unknown values become other.
type ModelClassifier struct {
	client  GenAIClient
	catalog *models.Catalog
}

func NewModelClassifier(client GenAIClient, catalog *models.Catalog) *ModelClassifier {
	return &ModelClassifier{client: client, catalog: catalog}
}

func (m *ModelClassifier) Classify(ctx context.Context, message string, lang models.Language) (*Classification, error) {
	resp, err := m.client.ClassifyIntent(ctx, &genai.ClassifyRequest{
		Message:    message,
		Language:   lang,
		Categories: m.catalog.CategoryLabels(models.LanguageHebrew),
	})
	if err != nil {
		return nil, fmt.Errorf("classify intent: %w", err)
	}

	out := &Classification{
		Intent:     models.ParseIntent(resp.Intent),
		AnswerType: models.ParseAnswerType(resp.AnswerType),
		Confidence: resp.Confidence,
	}
	if category, ok := m.catalog.NormalizeCategory(resp.Category); ok {
		out.Category = category
	}
	if out.Intent != models.IntentQuestionAnswering {
		out.AnswerType = models.AnswerOther
	}

	switch {
	case out.Category != "":
		out.Scope = ScopeInScope
	case out.Intent == models.IntentQuestionAnswering && out.AnswerType == models.AnswerOther:
		out.Scope = ScopeOutOfScope
	}
	return out, nil
}

// FallbackClassifier runs Primary and uses Secondary when it fails while
// the caller's context is still live.
type FallbackClassifier struct {
	Primary   Classifier
	Secondary Classifier
}

func (f *FallbackClassifier) Classify(ctx context.Context, message string, lang models.Language) (*Classification, error) {
	c, err := f.Primary.Classify(ctx, message, lang)
	if err == nil {
		return c, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return f.Secondary.Classify(ctx, message, lang)
}

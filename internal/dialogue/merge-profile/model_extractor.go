package mergeprofile

import (
	"context"
	"fmt"

	"medchat-engine/internal/genai"
	"medchat-engine/internal/models"
)

type GenAIClient interface {
	ExtractProfile(ctx context.Context, req *genai.ExtractRequest) (*genai.ExtractResponse, error)
}

// ModelExtractor asks the analysis endpoint for field values and keeps only
// the ones that validate against the catalog.
type ModelExtractor struct {
	client  GenAIClient
	catalog *models.Catalog
}

func NewModelExtractor(client GenAIClient, catalog *models.Catalog) *ModelExtractor {
	return &ModelExtractor{client: client, catalog: catalog}
}

func (m *ModelExtractor) Extract(ctx context.Context, message string, history []models.Message, lang models.Language) (*Extraction, error) {
	resp, err := m.client.ExtractProfile(ctx, &genai.ExtractRequest{
		Message:  message,
		History:  history,
		Language: lang,
		Fields:   models.ProfileFields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	ext := &Extraction{Correction: resp.Correction}
	for _, f := range models.ProfileFields {
		raw, ok := resp.Fields[string(f)]
		if !ok || raw == "" {
			continue
		}
		canonical, valid := m.catalog.NormalizeField(f, raw)
		if !valid {
			ext.Rejected = append(ext.Rejected, Rejection{Field: f, Value: raw, Reason: reasonInvalid})
			continue
		}
		if err := ext.Partial.Set(f, canonical); err != nil {
			ext.Rejected = append(ext.Rejected, Rejection{Field: f, Value: raw, Reason: reasonInvalid})
		}
	}
	return ext, nil
}

// FallbackExtractor runs Primary and falls back to Secondary when Primary
// fails for any reason other than the caller's deadline.
type FallbackExtractor struct {
	Primary   Extractor
	Secondary Extractor
}

func (f *FallbackExtractor) Extract(ctx context.Context, message string, history []models.Message, lang models.Language) (*Extraction, error) {
	ext, err := f.Primary.Extract(ctx, message, history, lang)
	if err == nil {
		return ext, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return f.Secondary.Extract(ctx, message, history, lang)
}

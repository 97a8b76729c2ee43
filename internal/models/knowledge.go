package models

// KnowledgeChunk is one precomputed passage of the corpus. Chunks are never
// mutated after load.
type KnowledgeChunk struct {
	ID       string   `json:"id" yaml:"id"`
	Content  string   `json:"content" yaml:"content"`
	Category string   `json:"category" yaml:"category"`
	Service  string   `json:"service,omitempty" yaml:"service,omitempty"`
	Provider string   `json:"provider,omitempty" yaml:"provider,omitempty"`
	Tier     string   `json:"tier,omitempty" yaml:"tier,omitempty"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`
	Language Language `json:"language,omitempty" yaml:"language,omitempty"` // empty when untagged
}

// SourceID is the citation identifier; chunks without a source cite their id.
func (c KnowledgeChunk) SourceID() string {
	if c.Source != "" {
		return c.Source
	}
	return c.ID
}

// RetrievalQuery filters are exact: an empty filter means "any". Language is
// a preference, not a filter.
type RetrievalQuery struct {
	Text       string   `json:"text"`
	Category   string   `json:"category,omitempty"`
	Service    string   `json:"service,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	Tier       string   `json:"tier,omitempty"`
	Language   Language `json:"language,omitempty"`
	MaxResults int      `json:"max_results"`
	MaxChars   int      `json:"max_chars"`
}

type AnswerResult struct {
	Answer         string         `json:"answer"`
	Grounded       bool           `json:"grounded"`
	Citations      []Citation     `json:"citations,omitempty"`
	TokenUsage     TokenUsage     `json:"token_usage"`
	ContextMetrics ContextMetrics `json:"context_metrics"`
	Disclaimer     string         `json:"disclaimer"`

	// LanguageFallback is set when some passages are not in the turn language.
	LanguageFallback bool `json:"language_fallback,omitempty"`
}

package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"medchat-engine/internal/common/database"
	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/models"
)

var (
	ErrLoadFailed   = errors.New("KNOWLEDGE_LOAD_FAILED")
	ErrInvalidChunk = errors.New("INVALID_CHUNK")
)

// Loader reads the whole precomputed corpus from its source.
type Loader interface {
	Load(ctx context.Context) ([]models.KnowledgeChunk, error)
	Source() string
}

type corpusFile struct {
	Chunks []models.KnowledgeChunk `json:"chunks" yaml:"chunks"`
}

// FileLoader reads a JSON or YAML corpus, either a bare list of chunks or an
// object with a chunks key.
type FileLoader struct {
	Path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

func (l *FileLoader) Source() string { return "file:" + l.Path }

func (l *FileLoader) Load(ctx context.Context) ([]models.KnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return ParseCorpus(data, filepath.Ext(l.Path))
}

// ParseCorpus decodes corpus bytes. ext selects JSON for ".json"; anything
// else is parsed as YAML.
func ParseCorpus(data []byte, ext string) ([]models.KnowledgeChunk, error) {
	if strings.EqualFold(ext, ".json") {
		trimmed := bytes.TrimSpace(data)
		if bytes.HasPrefix(trimmed, []byte("[")) {
			var list []models.KnowledgeChunk
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("decode corpus json: %w", err)
			}
			return list, nil
		}
		var file corpusFile
		if err := json.Unmarshal(trimmed, &file); err != nil {
			return nil, fmt.Errorf("decode corpus json: %w", err)
		}
		return file.Chunks, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode corpus yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var list []models.KnowledgeChunk
		if err := root.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode corpus yaml: %w", err)
		}
		return list, nil
	}
	var file corpusFile
	if err := root.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode corpus yaml: %w", err)
	}
	return file.Chunks, nil
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresLoader reads the corpus from a table with one row per chunk.
type PostgresLoader struct {
	db    *database.PostgresClient
	table string
}

func NewPostgresLoader(db *database.PostgresClient, table string) (*PostgresLoader, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid corpus table name %q", table)
	}
	return &PostgresLoader{db: db, table: table}, nil
}

func (l *PostgresLoader) Source() string { return "postgres:" + l.table }

func (l *PostgresLoader) Load(ctx context.Context) ([]models.KnowledgeChunk, error) {
	query := `SELECT id, content, category,
	                 COALESCE(service, ''), COALESCE(provider, ''), COALESCE(tier, ''), COALESCE(source, ''),
	                 COALESCE(language, '')
	          FROM ` + l.table + ` ORDER BY id`

	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var chunks []models.KnowledgeChunk
	for rows.Next() {
		var (
			c    models.KnowledgeChunk
			lang string
		)
		if err := rows.Scan(&c.ID, &c.Content, &c.Category, &c.Service, &c.Provider, &c.Tier, &c.Source, &lang); err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		c.Language = models.Language(lang)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus rows: %w", err)
	}
	return chunks, nil
}

// ValidateChunks rejects chunks without id, content or category, chunks
// tagged with an unsupported language and duplicate ids.
func ValidateChunks(chunks []models.KnowledgeChunk) error {
	seen := make(map[string]bool, len(chunks))
	for i, c := range chunks {
		switch {
		case strings.TrimSpace(c.ID) == "":
			return fmt.Errorf("%w: chunk %d has no id", ErrInvalidChunk, i)
		case strings.TrimSpace(c.Content) == "":
			return fmt.Errorf("%w: chunk %q has no content", ErrInvalidChunk, c.ID)
		case strings.TrimSpace(c.Category) == "":
			return fmt.Errorf("%w: chunk %q has no category", ErrInvalidChunk, c.ID)
		case c.Language != "" && !normalizeLanguage(c.Language).Valid():
			return fmt.Errorf("%w: chunk %q has unsupported language %q", ErrInvalidChunk, c.ID, c.Language)
		case seen[c.ID]:
			return fmt.Errorf("%w: duplicate chunk id %q", ErrInvalidChunk, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// Canonicalize rewrites category, provider and tier aliases to the catalog's
// canonical values so they compare equal to profile values. Unknown tags are
// kept as they are.
func Canonicalize(chunks []models.KnowledgeChunk, catalog *models.Catalog) []models.KnowledgeChunk {
	out := make([]models.KnowledgeChunk, len(chunks))
	for i, c := range chunks {
		if v, ok := catalog.NormalizeCategory(c.Category); ok {
			c.Category = v
		}
		if v, ok := catalog.NormalizeProvider(c.Provider); ok {
			c.Provider = v
		}
		if v, ok := catalog.NormalizeTier(c.Tier); ok {
			c.Tier = v
		}
		c.Language = normalizeLanguage(c.Language)
		out[i] = c
	}
	return out
}

func normalizeLanguage(l models.Language) models.Language {
	return models.Language(strings.ToLower(strings.TrimSpace(string(l))))
}

// Reload loads, validates and swaps in a new snapshot. On any failure the
// previous snapshot stays active.
func (s *Store) Reload(ctx context.Context, loader Loader) (*Snapshot, error) {
	chunks, err := loader.Load(ctx)
	if err == nil {
		err = ValidateChunks(chunks)
	}
	if err != nil {
		metrics.KnowledgeReloads.WithLabelValues("failure").Inc()
		s.logger.Error("knowledge reload failed", map[string]interface{}{
			"source":        loader.Source(),
			"error":         err.Error(),
			"activeVersion": s.Snapshot().versionOrZero(),
		})
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	if s.catalog != nil {
		chunks = Canonicalize(chunks, s.catalog)
	}
	snap := s.Swap(chunks)
	metrics.KnowledgeReloads.WithLabelValues("success").Inc()
	s.logger.Info("knowledge snapshot loaded", map[string]interface{}{
		"source":  loader.Source(),
		"chunks":  snap.Len(),
		"version": snap.Version,
	})
	return snap, nil
}

func (s *Snapshot) versionOrZero() uint64 {
	if s == nil {
		return 0
	}
	return s.Version
}

// CorpusStats counts chunks per tag value.
type CorpusStats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	ByProvider map[string]int `json:"by_provider"`
	ByTier     map[string]int `json:"by_tier"`
	ByLanguage map[string]int `json:"by_language"`
}

func Stats(chunks []models.KnowledgeChunk) CorpusStats {
	st := CorpusStats{
		Total:      len(chunks),
		ByCategory: make(map[string]int),
		ByProvider: make(map[string]int),
		ByTier:     make(map[string]int),
		ByLanguage: make(map[string]int),
	}
	for _, c := range chunks {
		st.ByCategory[c.Category]++
		if c.Provider != "" {
			st.ByProvider[c.Provider]++
		}
		if c.Tier != "" {
			st.ByTier[c.Tier]++
		}
		if c.Language != "" {
			st.ByLanguage[string(c.Language)]++
		}
	}
	return st
}

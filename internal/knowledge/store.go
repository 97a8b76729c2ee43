// Package knowledge holds the precomputed corpus and answers tag-filtered
// retrieval queries over it.
package knowledge

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/models"
)

const (
	Name = "knowledge"

	backendMemory = "memory"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Retriever returns the chunks whose tags exactly match the non-empty
// filters of q, best first. An empty slice is a valid answer.
type Retriever interface {
	Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error)
}

type indexedChunk struct {
	chunk  models.KnowledgeChunk
	tokens []string
	set    map[string]bool
}

// Snapshot is an immutable view of the corpus. Chunks are sorted by ID.
type Snapshot struct {
	chunks   []indexedChunk
	LoadedAt time.Time
	Version  uint64
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}

// Chunks returns a copy of the snapshot's chunks in ID order.
func (s *Snapshot) Chunks() []models.KnowledgeChunk {
	if s == nil {
		return nil
	}
	out := make([]models.KnowledgeChunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c.chunk
	}
	return out
}

func newSnapshot(chunks []models.KnowledgeChunk, version uint64) *Snapshot {
	indexed := make([]indexedChunk, len(chunks))
	for i, c := range chunks {
		tokens := models.Tokenize(c.Content + " " + c.Service)
		set := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			set[t] = true
		}
		indexed[i] = indexedChunk{chunk: c, tokens: tokens, set: set}
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].chunk.ID < indexed[j].chunk.ID })
	return &Snapshot{chunks: indexed, LoadedAt: time.Now().UTC(), Version: version}
}

// Store is the in-memory backend. Readers always see one whole snapshot;
// Swap replaces it atomically.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	catalog *models.Catalog
	logger  Logger
}

// NewStore creates an empty store. When catalog is set, loaded chunk tags are
// rewritten to canonical catalog values.
func NewStore(catalog *models.Catalog, log Logger) *Store {
	return &Store{
		catalog: catalog,
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
	}
}

// Swap installs chunks as the new snapshot and returns it.
func (s *Store) Swap(chunks []models.KnowledgeChunk) *Snapshot {
	snap := newSnapshot(chunks, s.version.Add(1))
	s.current.Store(snap)
	metrics.KnowledgeChunksLoaded.Set(float64(snap.Len()))
	return snap
}

func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Version is the version of the active snapshot, 0 before the first load.
func (s *Store) Version() uint64 {
	return s.current.Load().versionOrZero()
}

// Ready reports whether a snapshot has been loaded.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

func (s *Store) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := Search(s.current.Load(), q)
	if len(out) == 0 {
		metrics.KnowledgeRetrievals.WithLabelValues(backendMemory, "empty").Inc()
	} else {
		metrics.KnowledgeRetrievals.WithLabelValues(backendMemory, "hit").Inc()
	}
	return out, nil
}

// Matches reports whether every non-empty filter of q equals the chunk tag.
func Matches(c models.KnowledgeChunk, q models.RetrievalQuery) bool {
	if q.Category != "" && c.Category != q.Category {
		return false
	}
	if q.Service != "" && c.Service != q.Service {
		return false
	}
	if q.Provider != "" && c.Provider != q.Provider {
		return false
	}
	if q.Tier != "" && c.Tier != q.Tier {
		return false
	}
	return true
}

type scored struct {
	chunk models.KnowledgeChunk
	score int
}

// Search ranks the snapshot's matching chunks by how many distinct query
// terms they contain. Ties keep ID order. Passages in q.Language win over
// passages tagged with another language. The result holds at most
// q.MaxResults chunks whose content fits in q.MaxChars; the first chunk is
// always kept.
func Search(snap *Snapshot, q models.RetrievalQuery) []models.KnowledgeChunk {
	if snap == nil {
		return []models.KnowledgeChunk{}
	}

	terms := uniqueTerms(q.Text)
	var candidates []scored
	for _, ic := range snap.chunks {
		if !Matches(ic.chunk, q) {
			continue
		}
		candidates = append(candidates, scored{chunk: ic.chunk, score: overlap(ic, terms)})
	}
	candidates = preferLanguage(candidates, q.Language)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	return limit(candidates, q.MaxResults, q.MaxChars)
}

// preferLanguage keeps only the candidates written in lang (or untagged)
// when there is at least one. Otherwise every candidate stays and the
// answer is flagged downstream.
func preferLanguage(candidates []scored, lang models.Language) []scored {
	if lang == "" {
		return candidates
	}
	kept := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.chunk.Language == "" || c.chunk.Language == lang {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}

func limit(candidates []scored, maxResults, maxChars int) []models.KnowledgeChunk {
	out := make([]models.KnowledgeChunk, 0, len(candidates))
	used := 0
	for _, c := range candidates {
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
		size := len([]rune(c.chunk.Content))
		if maxChars > 0 && len(out) > 0 && used+size > maxChars {
			break
		}
		used += size
		out = append(out, c.chunk)
	}
	return out
}

func uniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range models.Tokenize(text) {
		if len([]rune(t)) < 2 || stopWords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func overlap(ic indexedChunk, terms []string) int {
	score := 0
	for _, term := range terms {
		if ic.set[term] {
			score++
			continue
		}
		for _, tok := range ic.tokens {
			if models.MatchWord(tok, term) {
				score++
				break
			}
		}
	}
	return score
}

var stopWords = map[string]bool{
	"the": true, "and": true, "what": true, "are": true, "is": true, "for": true, "my": true, "do": true,
	"how": true, "of": true, "to": true, "in": true, "me": true, "can": true, "does": true, "with": true,
	"מה": true, "של": true, "את": true, "על": true, "אני": true, "לי": true, "יש": true, "האם": true, "זה": true, "גם": true,
}

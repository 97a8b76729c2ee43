package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"medchat-engine/internal/common/database"
	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/models"
)

const backendElasticsearch = "elasticsearch"

var (
	ErrRetrievalFailed  = errors.New("RETRIEVAL_FAILED")
	ErrRetrievalTimeout = errors.New("RETRIEVAL_TIMEOUT")
)

// IndexMapping maps every tag field as a keyword so term filters compare
// exactly. Content and service stay full-text for ranking.
var IndexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":       map[string]interface{}{"type": "keyword"},
			"content":  map[string]interface{}{"type": "text"},
			"category": map[string]interface{}{"type": "keyword"},
			"service":  map[string]interface{}{"type": "text", "fields": map[string]interface{}{"raw": map[string]interface{}{"type": "keyword"}}},
			"provider": map[string]interface{}{"type": "keyword"},
			"tier":     map[string]interface{}{"type": "keyword"},
			"source":   map[string]interface{}{"type": "keyword"},
			"language": map[string]interface{}{"type": "keyword"},
		},
	},
}

// ESRetriever queries an index of precomputed chunks mapped with
// IndexMapping.
type ESRetriever struct {
	es     *database.ElasticsearchClient
	index  string
	logger Logger
}

func NewESRetriever(es *database.ElasticsearchClient, index string, log Logger) *ESRetriever {
	return &ESRetriever{
		es:    es,
		index: index,
		logger: log.With(map[string]interface{}{
			"component": Name,
			"backend":   backendElasticsearch,
		}),
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.KnowledgeChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// EnsureIndex creates the index with IndexMapping when it does not exist.
// It reports whether the index was created.
func (r *ESRetriever) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.es.IndexExists(ctx, r.index)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	body, err := json.Marshal(IndexMapping)
	if err != nil {
		return false, fmt.Errorf("encode index mapping: %w", err)
	}
	client := r.es.Client
	res, err := client.Indices.Create(r.index,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return false, fmt.Errorf("create index %s: %w", r.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, fmt.Errorf("create index %s: %s", r.index, res.Status())
	}
	r.logger.Info("knowledge index created", map[string]interface{}{
		"index": r.index,
	})
	return true, nil
}

func (r *ESRetriever) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
	out, err := r.retrieve(ctx, q)
	switch {
	case err != nil:
		metrics.KnowledgeRetrievals.WithLabelValues(backendElasticsearch, "error").Inc()
	case len(out) == 0:
		metrics.KnowledgeRetrievals.WithLabelValues(backendElasticsearch, "empty").Inc()
	default:
		metrics.KnowledgeRetrievals.WithLabelValues(backendElasticsearch, "hit").Inc()
	}
	return out, err
}

func (r *ESRetriever) retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
	body, err := json.Marshal(BuildSearchBody(q))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrRetrievalFailed, err)
	}

	client := r.es.Client
	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(r.index),
		client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrievalTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logger.Warn("search returned error status", map[string]interface{}{
			"index":  r.index,
			"status": res.StatusCode,
		})
		return nil, fmt.Errorf("%w: search status %s", ErrRetrievalFailed, res.Status())
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRetrievalFailed, err)
	}

	candidates := make([]scored, 0, len(decoded.Hits.Hits))
	for _, hit := range decoded.Hits.Hits {
		// analyzers can loosen a term filter; never return a chunk with the wrong tags
		if !Matches(hit.Source, q) {
			continue
		}
		candidates = append(candidates, scored{chunk: hit.Source})
	}
	return limit(preferLanguage(candidates, q.Language), q.MaxResults, q.MaxChars), nil
}

// BuildSearchBody turns a retrieval query into an Elasticsearch request body:
// exact term filters on tags, full-text should clauses for ranking, a boost
// for the turn language, and id as the tie-breaker.
func BuildSearchBody(q models.RetrievalQuery) map[string]interface{} {
	filters := make([]interface{}, 0, 4)
	for _, tag := range []struct{ field, value string }{
		{"category", q.Category},
		{"service", q.Service},
		{"provider", q.Provider},
		{"tier", q.Tier},
	} {
		if tag.value == "" {
			continue
		}
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{tag.field: tag.value},
		})
	}

	boolQuery := map[string]interface{}{"filter": filters}
	var should []interface{}
	if q.Text != "" {
		should = append(should,
			map[string]interface{}{"match": map[string]interface{}{"content": q.Text}},
			map[string]interface{}{"match": map[string]interface{}{"service": q.Text}},
		)
	}
	if q.Language != "" {
		should = append(should, map[string]interface{}{
			"term": map[string]interface{}{"language": map[string]interface{}{"value": string(q.Language), "boost": 5}},
		})
	}
	if len(should) > 0 {
		boolQuery["should"] = should
	}

	size := q.MaxResults
	if size <= 0 {
		size = 10
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"id": "asc"},
		},
		"size": size,
	}
}

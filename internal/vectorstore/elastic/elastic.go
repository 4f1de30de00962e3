package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/m-mizutani/goerr/v2"

	"finassist/internal/domain"
	"finassist/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Config selects the cluster and the index backing one collection.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// Storage keeps vectors in an Elasticsearch dense_vector field and searches
// them with approximate kNN.
type Storage struct {
	client    *elasticsearch.Client
	index     string
	dimension int
}

func NewClient(cfg Config) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create elasticsearch client")
	}
	return es, nil
}

func NewStorage(client *elasticsearch.Client, index string) *Storage {
	return &Storage{client: client, index: index}
}

// Init creates the index with a cosine dense_vector mapping if it is missing.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("invalid dimension", goerr.V("dimension", dimension))
	}
	s.dimension = dimension

	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return goerr.Wrap(err, "failed to check index", goerr.V("index", s.index))
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"vector": map[string]any{
					"type":       "dense_vector",
					"dims":       dimension,
					"index":      true,
					"similarity": "cosine",
				},
				"document": map[string]any{"type": "text"},
				"metadata": map[string]any{"type": "object", "enabled": false},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return goerr.Wrap(err, "failed to encode mapping")
	}
	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create index", goerr.V("index", s.index))
	}
	defer res.Body.Close()
	return checkResponse(res, "create index")
}

// Upsert writes entries with a single bulk request and refreshes the index so
// they are searchable on return.
func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if s.dimension > 0 && len(e.Vector) != s.dimension {
			return goerr.New("vector dimension mismatch",
				goerr.V("id", e.ID), goerr.V("want", s.dimension), goerr.V("got", len(e.Vector)))
		}
		if err := enc.Encode(map[string]any{"index": map[string]any{"_index": s.index, "_id": e.ID}}); err != nil {
			return goerr.Wrap(err, "failed to encode bulk action")
		}
		if err := enc.Encode(document{Vector: e.Vector, Document: e.Document, Metadata: e.Metadata}); err != nil {
			return goerr.Wrap(err, "failed to encode document", goerr.V("id", e.ID))
		}
	}

	res, err := s.client.Bulk(&buf,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return goerr.Wrap(err, "bulk request failed", goerr.V("index", s.index))
	}
	defer res.Body.Close()
	if err := checkResponse(res, "bulk"); err != nil {
		return err
	}

	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return goerr.Wrap(err, "failed to decode bulk response")
	}
	if out.Errors {
		return goerr.New("bulk request reported item errors", goerr.V("index", s.index))
	}
	return nil
}

// Search runs a kNN query. Elasticsearch reports cosine similarity as
// (1+cos)/2, which maps back to the 1-cos distance as 2-2*score.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	query := map[string]any{
		"size": topK,
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": max(topK*10, 100),
		},
		"_source": []string{"document", "metadata"},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode query")
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "search request failed", goerr.V("index", s.index))
	}
	defer res.Body.Close()
	if err := checkResponse(res, "search"); err != nil {
		return nil, err
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode search response")
	}

	matches := make([]domain.Match, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		matches = append(matches, domain.Match{
			ID:       h.ID,
			Distance: vectorstore.ClampDistance(2 - 2*h.Score),
			Document: h.Source.Document,
			Metadata: h.Source.Metadata,
		})
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
	)
	if err != nil {
		return 0, goerr.Wrap(err, "count request failed", goerr.V("index", s.index))
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err := checkResponse(res, "count"); err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, goerr.Wrap(err, "failed to decode count response")
	}
	return out.Count, nil
}

type document struct {
	Vector   []float64      `json:"vector,omitempty"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func checkResponse(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return goerr.New("elasticsearch request failed",
		goerr.V("operation", op),
		goerr.V("status", res.Status()),
		goerr.V("body", strings.TrimSpace(string(raw))))
}

package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const DefaultTopK = 3

var (
	ErrCollectionRequired = errors.New("collection is required")
	ErrCollectionNotFound = errors.New("collection not found")
)

// ChromaConfig locates a Chroma server and the tenant/database to search.
type ChromaConfig struct {
	BaseURL  string
	APIKey   string
	Tenant   string
	Database string
	Timeout  time.Duration
}

// ChromaRetriever searches a Chroma collection by query embedding.
// The collection is chosen per call with retriever.WithIndex.
type ChromaRetriever struct {
	cfg        ChromaConfig
	embedder   embedding.Embedder
	httpClient *http.Client

	mu  sync.RWMutex
	ids map[string]string
}

var _ retriever.Retriever = (*ChromaRetriever)(nil)

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float64 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Distances [][]*float64       `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// NewChromaRetriever creates a retriever. embedder converts queries into vectors.
func NewChromaRetriever(cfg ChromaConfig, embedder embedding.Embedder) *ChromaRetriever {
	if cfg.Tenant == "" {
		cfg.Tenant = "default_tenant"
	}
	if cfg.Database == "" {
		cfg.Database = "default_database"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ChromaRetriever{
		cfg:        cfg,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: timeout},
		ids:        make(map[string]string),
	}
}

// Retrieve returns up to topK documents for query, best match first.
func (r *ChromaRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := DefaultTopK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)

	collection := ""
	if options.Index != nil {
		collection = strings.TrimSpace(*options.Index)
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	embedder := r.embedder
	if options.Embedding != nil {
		embedder = options.Embedding
	}
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	id, err := r.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	vectors, err := embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	var out chromaQueryResponse
	status, err := r.do(ctx, http.MethodPost, r.collectionsPath()+"/"+url.PathEscape(id)+"/query", chromaQueryRequest{
		QueryEmbeddings: vectors,
		NResults:        topK,
		Include:         []string{"documents", "distances", "metadatas"},
	}, &out)
	if status == http.StatusNotFound {
		r.forget(collection)
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}

	return out.documents(options.ScoreThreshold), nil
}

func (r *ChromaRetriever) collectionID(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	id, ok := r.ids[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	var coll chromaCollection
	status, err := r.do(ctx, http.MethodGet, r.collectionsPath()+"/"+url.PathEscape(name), nil, &coll)
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("resolve collection %s: %w", name, err)
	}
	if coll.ID == "" {
		return "", fmt.Errorf("resolve collection %s: empty id", name)
	}

	r.mu.Lock()
	r.ids[name] = coll.ID
	r.mu.Unlock()
	return coll.ID, nil
}

func (r *ChromaRetriever) forget(name string) {
	r.mu.Lock()
	delete(r.ids, name)
	r.mu.Unlock()
}

func (r *ChromaRetriever) collectionsPath() string {
	return fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections",
		url.PathEscape(r.cfg.Tenant), url.PathEscape(r.cfg.Database))
}

// do sends a JSON request and decodes a 2xx body into out. The status code
// is returned alongside any error so callers can tell 404 apart.
func (r *ChromaRetriever) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("x-chroma-token", r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("chroma status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode chroma response: %w", err)
	}
	return resp.StatusCode, nil
}

// documents flattens the first (only) query's results in rank order.
// Chroma reports distances; lower is closer. maxDistance, when set,
// drops anything further away.
func (q chromaQueryResponse) documents(maxDistance *float64) []*schema.Document {
	if len(q.Documents) == 0 {
		return nil
	}

	docs := make([]*schema.Document, 0, len(q.Documents[0]))
	for i, content := range q.Documents[0] {
		if content == nil || strings.TrimSpace(*content) == "" {
			continue
		}

		doc := &schema.Document{Content: *content, MetaData: map[string]any{}}
		if len(q.IDs) > 0 && i < len(q.IDs[0]) {
			doc.ID = q.IDs[0][i]
		}
		if len(q.Metadatas) > 0 && i < len(q.Metadatas[0]) {
			for k, v := range q.Metadatas[0][i] {
				doc.MetaData[k] = v
			}
		}
		if len(q.Distances) > 0 && i < len(q.Distances[0]) && q.Distances[0][i] != nil {
			distance := *q.Distances[0][i]
			if maxDistance != nil && distance > *maxDistance {
				continue
			}
			doc.MetaData["distance"] = distance
		}
		docs = append(docs, doc)
	}
	return docs
}

package rag

import (
	"context"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
)

// Service adapts an eino retriever to the plain-text shape the pipeline uses.
type Service struct {
	retriever retriever.Retriever
	topK      int
}

// NewService wraps r. topK <= 0 falls back to DefaultTopK.
func NewService(r retriever.Retriever, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{retriever: r, topK: topK}
}

// Retrieve returns the text of the best passages for query within collection,
// best first. An unknown collection yields ErrCollectionNotFound.
func (s *Service) Retrieve(ctx context.Context, query, collection string) ([]string, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, ErrCollectionRequired
	}

	docs, err := s.retriever.Retrieve(ctx, query,
		retriever.WithIndex(collection),
		retriever.WithTopK(s.topK),
	)
	if err != nil {
		return nil, err
	}

	passages := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if text := strings.TrimSpace(doc.Content); text != "" {
			passages = append(passages, text)
		}
	}
	log.Printf("[rag] collection=%s passages=%d", collection, len(passages))
	return passages, nil
}

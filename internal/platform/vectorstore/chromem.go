package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"tawarln-chat/internal/model"
)

const (
	metaSource     = "source"
	metaUploadedBy = "uploaded_by"
)

// ChromemStore keeps knowledge chunks in an embedded chromem-go collection.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromem opens a persistent store at path, or an in-memory one when path is empty.
func NewChromem(path, collection string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db failed: %w", err)
		}
	}
	// Vectors always come from the caller, so the collection needs no embedding func.
	c, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create chromem collection failed: %w", err)
	}
	return &ChromemStore{db: db, collection: c}, nil
}

func (s *ChromemStore) Insert(ctx context.Context, chunks []model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata.Data()
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				metaSource:     meta.Source,
				metaUploadedBy: strconv.FormatUint(uint64(meta.UploadedBy), 10),
			},
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add chromem documents failed: %w", err)
	}
	return nil
}

func (s *ChromemStore) Match(ctx context.Context, embedding []float32, threshold float32, count int) ([]model.ChunkMatch, error) {
	total := s.collection.Count()
	if total == 0 || count <= 0 {
		return nil, nil
	}
	if count > total {
		count = total
	}
	results, err := s.collection.QueryEmbedding(ctx, embedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query chromem failed: %w", err)
	}
	matches := make([]model.ChunkMatch, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, model.ChunkMatch{
			ID:         r.ID,
			Content:    r.Content,
			Source:     r.Metadata[metaSource],
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

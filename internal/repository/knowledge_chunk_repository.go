package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"

	"tawarln-chat/internal/model"
)

// KnowledgeChunkRepository keeps chunks in the relational store and matches
// them with an in-process cosine scan.
type KnowledgeChunkRepository struct {
	db *gorm.DB
}

func NewKnowledgeChunkRepository(db *gorm.DB) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: db}
}

func (r *KnowledgeChunkRepository) Insert(ctx context.Context, chunks []model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, 100).Error; err != nil {
		return fmt.Errorf("insert knowledge chunks failed: %w", err)
	}
	return nil
}

func (r *KnowledgeChunkRepository) Match(ctx context.Context, embedding []float32, threshold float32, count int) ([]model.ChunkMatch, error) {
	if count <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	var chunks []model.KnowledgeChunk
	if err := r.db.WithContext(ctx).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list knowledge chunks failed: %w", err)
	}

	matches := make([]model.ChunkMatch, 0, count)
	for i := range chunks {
		// chunks embedded with a different dimension never match
		score, ok := cosineSimilarity(embedding, chunks[i].Embedding)
		if !ok || score < threshold {
			continue
		}
		matches = append(matches, model.ChunkMatch{
			ID:         chunks[i].ID,
			Content:    chunks[i].Content,
			Source:     chunks[i].Metadata.Data().Source,
			Similarity: score,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

func (r *KnowledgeChunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.KnowledgeChunk{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count knowledge chunks failed: %w", err)
	}
	return n, nil
}

func cosineSimilarity(a, b []float32) (float32, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}

package vectorstore

import (
	"context"
	"math"
	"testing"

	"gorm.io/datatypes"

	"tawarln-chat/internal/model"
)

func unit(x, y float32) []float32 {
	n := float32(math.Sqrt(float64(x*x + y*y)))
	return []float32{x / n, y / n}
}

func TestChromemMatchAboveThreshold(t *testing.T) {
	store, err := NewChromem("", "test")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	err = store.Insert(ctx, []model.KnowledgeChunk{
		{ID: "a", Content: "refund policy", Embedding: unit(0.9, 0.43589), Metadata: datatypes.NewJSONType(model.ChunkMetadata{Source: "policy.pdf"})},
		{ID: "b", Content: "unrelated", Embedding: unit(0, 1), Metadata: datatypes.NewJSONType(model.ChunkMetadata{Source: "other.pdf"})},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	matches, err := store.Match(ctx, unit(1, 0), 0.5, 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("matches: got=%+v", matches)
	}
	if matches[0].Similarity < 0.89 || matches[0].Source != "policy.pdf" {
		t.Fatalf("match: got=%+v", matches[0])
	}
}

func TestChromemEmptyStore(t *testing.T) {
	store, err := NewChromem("", "empty")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	matches, err := store.Match(context.Background(), unit(1, 0), 0.5, 5)
	if err != nil || len(matches) != 0 {
		t.Fatalf("got=%v err=%v", matches, err)
	}
}

func TestChromemDimensionMismatchErrors(t *testing.T) {
	store, err := NewChromem("", "dims")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := store.Insert(ctx, []model.KnowledgeChunk{{ID: "a", Content: "x", Embedding: unit(1, 0)}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Match(ctx, []float32{1, 0, 0}, 0.5, 5); err == nil {
		t.Fatalf("expected error for mismatched dimension")
	}
}

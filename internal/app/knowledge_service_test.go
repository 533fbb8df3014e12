package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

type fakeBatchEmbedder struct {
	mu      sync.Mutex
	batches []int
	err     error
}

func (e *fakeBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

type memoryChunkStore struct {
	inserts int
	chunks  []model.KnowledgeChunk
}

func (s *memoryChunkStore) Insert(_ context.Context, chunks []model.KnowledgeChunk) error {
	s.inserts++
	s.chunks = append(s.chunks, chunks...)
	return nil
}

type memoryAudit struct{ entries []*model.AuditLog }

func (a *memoryAudit) Append(_ context.Context, e *model.AuditLog) error {
	a.entries = append(a.entries, e)
	return nil
}

// staffProfiles holds the stored roles the knowledge tests rely on.
func staffProfiles() fakeProfiles {
	return fakeProfiles{
		1: {Username: "ada", Role: model.UserRoleAdmin},
		2: {Username: "bob", Role: model.UserRoleUser},
		5: {Username: "olu", Role: model.UserRoleOwner},
	}
}

func TestIngestRoleGate(t *testing.T) {
	embedder := &fakeBatchEmbedder{}
	svc := NewKnowledgeService(embedder, &memoryChunkStore{}, nil, staffProfiles(), KnowledgeOptions{}, logger.NewNop())

	_, err := svc.Ingest(context.Background(), IngestInput{Text: "x", Title: "t"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous: got=%v want=%v", err, ErrUnauthorized)
	}
	_, err = svc.Ingest(context.Background(), IngestInput{Caller: Caller{UserID: 2, Role: model.UserRoleUser}, Text: "x", Title: "t"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("plain user: got=%v want=%v", err, ErrForbidden)
	}
	_, err = svc.Ingest(context.Background(), IngestInput{Caller: Caller{UserID: 9, Role: model.UserRoleAdmin}, Text: "x", Title: "t"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user: got=%v want=%v", err, ErrUnauthorized)
	}
	if len(embedder.batches) != 0 {
		t.Fatalf("embed calls: got=%d want=0", len(embedder.batches))
	}
}

func TestIngestUsesStoredRole(t *testing.T) {
	embedder := &fakeBatchEmbedder{}
	store := &memoryChunkStore{}
	svc := NewKnowledgeService(embedder, store, nil, staffProfiles(), KnowledgeOptions{}, logger.NewNop())

	// Token still says admin, but the account was demoted.
	_, err := svc.Ingest(context.Background(), IngestInput{Caller: Caller{UserID: 2, Role: model.UserRoleAdmin}, Text: "x", Title: "t"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("demoted admin: got=%v want=%v", err, ErrForbidden)
	}
	if len(embedder.batches) != 0 || store.inserts != 0 {
		t.Fatalf("side effects: embeds=%d inserts=%d", len(embedder.batches), store.inserts)
	}

	// Token says user, but the account was promoted.
	if _, err := svc.Ingest(context.Background(), IngestInput{Caller: Caller{UserID: 1, Role: model.UserRoleUser}, Text: "x", Title: "t"}); err != nil {
		t.Fatalf("promoted user: %v", err)
	}
}

func TestIngestRequiresInput(t *testing.T) {
	svc := NewKnowledgeService(&fakeBatchEmbedder{}, &memoryChunkStore{}, nil, staffProfiles(), KnowledgeOptions{}, logger.NewNop())
	admin := Caller{UserID: 1, Role: model.UserRoleAdmin}

	_, err := svc.Ingest(context.Background(), IngestInput{Caller: admin, Title: "t"})
	if !errors.Is(err, ErrNoKnowledgeInput) {
		t.Fatalf("no input: got=%v want=%v", err, ErrNoKnowledgeInput)
	}
	_, err = svc.Ingest(context.Background(), IngestInput{Caller: admin, Text: "a note", Title: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("untitled note: got=%v want=%v", err, ErrInvalidInput)
	}
}

func TestIngestTextNote(t *testing.T) {
	embedder := &fakeBatchEmbedder{}
	store := &memoryChunkStore{}
	audit := &memoryAudit{}
	svc := NewKnowledgeService(embedder, store, audit, staffProfiles(), KnowledgeOptions{ChunkSize: 100, ChunkOverlap: 20}, logger.NewNop())

	text := strings.Repeat("Refunds are issued within fourteen days of purchase. ", 40)
	res, err := svc.Ingest(context.Background(), IngestInput{
		Caller: Caller{UserID: 5, Role: model.UserRoleOwner},
		Text:   text,
		Title:  "Refund Policy",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Source != "Manual Note: Refund Policy" {
		t.Fatalf("source: got=%q", res.Source)
	}
	if res.Chunks < 2 || res.Chunks != len(store.chunks) {
		t.Fatalf("chunks: got=%d stored=%d", res.Chunks, len(store.chunks))
	}
	if store.inserts != 1 {
		t.Fatalf("insert calls: got=%d want=1", store.inserts)
	}
	if !strings.HasPrefix(store.chunks[0].Content, "[TITLE: Refund Policy]") {
		t.Fatalf("first chunk: got=%q", store.chunks[0].Content)
	}

	total := 0
	for _, n := range embedder.batches {
		if n > embeddingBatchSize {
			t.Fatalf("batch size: got=%d max=%d", n, embeddingBatchSize)
		}
		total += n
	}
	if total != res.Chunks {
		t.Fatalf("embedded: got=%d want=%d", total, res.Chunks)
	}
	for i, c := range store.chunks {
		if c.ID == "" || c.Metadata.Data().UploadedBy != 5 {
			t.Fatalf("chunk %d: got id=%q meta=%+v", i, c.ID, c.Metadata.Data())
		}
		if got := c.Embedding[0]; got != float32(len(c.Content)) {
			t.Fatalf("chunk %d embedding out of order: got=%v want=%d", i, got, len(c.Content))
		}
	}

	if len(audit.entries) != 1 || audit.entries[0].Action != model.AuditActionAddKnowledge {
		t.Fatalf("audit: got=%+v", audit.entries)
	}
	var details map[string]any
	if err := json.Unmarshal(audit.entries[0].Details, &details); err != nil {
		t.Fatalf("audit details: %v", err)
	}
	if details["type"] != "text" || details["chunks"] != float64(res.Chunks) {
		t.Fatalf("audit details: got=%v", details)
	}
}

func TestIngestEmbeddingFailureStoresNothing(t *testing.T) {
	store := &memoryChunkStore{}
	audit := &memoryAudit{}
	svc := NewKnowledgeService(&fakeBatchEmbedder{err: errors.New("quota")}, store, audit, staffProfiles(), KnowledgeOptions{}, logger.NewNop())

	_, err := svc.Ingest(context.Background(), IngestInput{Caller: Caller{UserID: 1, Role: model.UserRoleAdmin}, Text: "note", Title: "t"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if store.inserts != 0 || len(audit.entries) != 0 {
		t.Fatalf("side effects: inserts=%d audit=%d", store.inserts, len(audit.entries))
	}
}

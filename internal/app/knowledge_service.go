package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"tawarln-chat/internal/model"
	"tawarln-chat/internal/pkg/pdfextract"
	"tawarln-chat/internal/platform/logger"
)

const (
	embeddingBatchSize   = 10 // most embedding APIs cap the batch size
	embeddingConcurrency = 4
)

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkWriter interface {
	Insert(ctx context.Context, chunks []model.KnowledgeChunk) error
}

type AuditAppender interface {
	Append(ctx context.Context, entry *model.AuditLog) error
}

type KnowledgeOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

type KnowledgeService struct {
	embedder BatchEmbedder
	store    ChunkWriter
	audit    AuditAppender
	profiles ProfileStore
	splitter textsplitter.RecursiveCharacter
	log      *logger.Logger
}

func NewKnowledgeService(embedder BatchEmbedder, store ChunkWriter, audit AuditAppender, profiles ProfileStore, opts KnowledgeOptions, log *logger.Logger) *KnowledgeService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	return &KnowledgeService{
		embedder: embedder,
		store:    store,
		audit:    audit,
		profiles: profiles,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		),
		log: log,
	}
}

// IngestInput carries either a PDF or a titled note.
type IngestInput struct {
	Caller Caller
	PDF    io.Reader
	Text   string
	Title  string
}

type IngestResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

func (s *KnowledgeService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.Caller.UserID == 0 {
		return nil, ErrUnauthorized
	}
	// The token role can be stale after a demotion; the stored one decides.
	user, err := s.profiles.GetByID(input.Caller.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	if !model.IsPrivilegedRole(user.Role) {
		return nil, ErrForbidden
	}

	raw, source, kind, err := s.rawText(input)
	if err != nil {
		return nil, err
	}

	pieces, err := s.splitter.SplitText(raw)
	if err != nil {
		return nil, fmt.Errorf("split text failed: %w", err)
	}
	kept := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoChunks
	}

	embeddings, err := s.embedAll(ctx, kept)
	if err != nil {
		return nil, err
	}

	meta := datatypes.NewJSONType(model.ChunkMetadata{Source: source, UploadedBy: input.Caller.UserID})
	now := time.Now()
	chunks := make([]model.KnowledgeChunk, len(kept))
	for i, text := range kept {
		chunks[i] = model.KnowledgeChunk{
			ID:        uuid.NewString(),
			Content:   text,
			Embedding: datatypes.JSONSlice[float32](embeddings[i]),
			Metadata:  meta,
			CreatedAt: now,
		}
	}
	if err := s.store.Insert(ctx, chunks); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, input.Caller.UserID, source, kind, len(chunks))
	s.log.Info("knowledge ingested", "user_id", input.Caller.UserID, "source", source, "chunks", len(chunks))
	return &IngestResult{Source: source, Chunks: len(chunks)}, nil
}

func (s *KnowledgeService) rawText(input IngestInput) (raw, source, kind string, err error) {
	if input.PDF != nil {
		text, err := pdfextract.ExtractText(input.PDF)
		switch {
		case errors.Is(err, pdfextract.ErrTooLarge):
			return "", "", "", ErrPayloadTooLarge
		case errors.Is(err, pdfextract.ErrNoText):
			return "", "", "", ErrNoChunks
		case err != nil:
			return "", "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		title := strings.TrimSpace(input.Title)
		if title == "" {
			title = "Untitled"
		}
		return text, title, "pdf", nil
	}

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", "", "", ErrNoKnowledgeInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", "", "", fmt.Errorf("%w: a text note needs a title", ErrInvalidInput)
	}
	return "[TITLE: " + title + "]\n" + text, "Manual Note: " + title, "text", nil
}

// embedAll embeds texts in fixed-size batches and keeps the input order.
func (s *KnowledgeService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingConcurrency)
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := min(start+embeddingBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := s.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks failed: %w", err)
	}
	return out, nil
}

func (s *KnowledgeService) appendAudit(ctx context.Context, userID uint, source, kind string, chunks int) {
	if s.audit == nil {
		return
	}
	details, err := json.Marshal(map[string]any{"source": source, "type": kind, "chunks": chunks})
	if err != nil {
		return
	}
	entry := &model.AuditLog{
		ID:      uuid.NewString(),
		UserID:  userID,
		Action:  model.AuditActionAddKnowledge,
		Details: datatypes.JSON(details),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn("append audit log failed", "user_id", userID, "error", err)
	}
}

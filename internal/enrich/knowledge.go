package enrich

import (
	"context"
	"strings"

	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Matcher returns chunks with similarity >= threshold, best first, at most count.
type Matcher interface {
	Match(ctx context.Context, embedding []float32, threshold float32, count int) ([]model.ChunkMatch, error)
}

type KnowledgeRetrieval struct {
	embedder  Embedder
	store     Matcher
	threshold float32
	count     int
	log       *logger.Logger
}

func NewKnowledgeRetrieval(embedder Embedder, store Matcher, threshold float32, count int, log *logger.Logger) *KnowledgeRetrieval {
	if threshold <= 0 {
		threshold = 0.5
	}
	if count <= 0 {
		count = 5
	}
	return &KnowledgeRetrieval{embedder: embedder, store: store, threshold: threshold, count: count, log: log}
}

func (k *KnowledgeRetrieval) Name() string { return "knowledge" }

func (k *KnowledgeRetrieval) Applies(Query) bool { return true }

// PassesOnMiss lets web search run when the knowledge base has nothing relevant.
func (k *KnowledgeRetrieval) PassesOnMiss() bool { return true }

func (k *KnowledgeRetrieval) Enrich(ctx context.Context, q Query) (Result, bool) {
	vec, err := k.embedder.Embed(ctx, q.Text)
	if err != nil {
		k.log.Warn("knowledge embedding failed", "error", err)
		return Result{}, false
	}
	matches, err := k.store.Match(ctx, vec, k.threshold, k.count)
	if err != nil {
		k.log.Warn("knowledge match failed", "error", err)
		return Result{}, false
	}
	if len(matches) == 0 {
		return Result{}, false
	}
	parts := make([]string, 0, len(matches))
	sources := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		parts = append(parts, m.Content)
		if m.Source != "" && !seen[m.Source] {
			seen[m.Source] = true
			sources = append(sources, m.Source)
		}
	}
	return Result{
		Kind:   KindKnowledge,
		Text:   strings.Join(parts, "\n---\n"),
		Source: strings.Join(sources, ", "),
	}, true
}

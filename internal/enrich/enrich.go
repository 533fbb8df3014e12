package enrich

import (
	"context"
	"strings"

	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

type Kind string

const (
	KindNone      Kind = "none"
	KindScrape    Kind = "scrape"
	KindKnowledge Kind = "knowledge"
	KindSearch    Kind = "search"
)

// Query is what every strategy sees: the extracted query text plus the
// conversation and the caller's web search flag.
type Query struct {
	Text      string
	Turns     []model.ChatTurn
	WebSearch bool
}

type Result struct {
	Kind   Kind
	Text   string
	Source string
}

// Strategy returns ok=false when it fails or finds nothing. Failures never
// reach the caller.
type Strategy interface {
	Name() string
	// Applies reports whether the strategy claims the enrichment slot for q.
	Applies(q Query) bool
	Enrich(ctx context.Context, q Query) (Result, bool)
}

// passer is implemented by strategies that hand the slot to the next
// applicable strategy when they come back empty.
type passer interface {
	PassesOnMiss() bool
}

// Chain runs strategies in order. The first applicable strategy owns the
// slot; its miss ends selection unless it passes.
type Chain struct {
	strategies []Strategy
	log        *logger.Logger
}

func NewChain(log *logger.Logger, strategies ...Strategy) *Chain {
	kept := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Chain{strategies: kept, log: log}
}

func (c *Chain) Select(ctx context.Context, q Query) Result {
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			break
		}
		if !s.Applies(q) {
			continue
		}
		res, ok := s.Enrich(ctx, q)
		if ok && strings.TrimSpace(res.Text) != "" {
			c.log.Debug("enrichment selected", "strategy", s.Name(), "source", res.Source)
			return res
		}
		if p, isPasser := s.(passer); isPasser && p.PassesOnMiss() {
			continue
		}
		c.log.Debug("enrichment slot claimed without result", "strategy", s.Name())
		break
	}
	return Result{Kind: KindNone}
}

// Render builds the replacement user content for an enriched request.
func (r Result) Render(query string) string {
	var header, instruction string
	switch r.Kind {
	case KindScrape:
		header = "[WEBSITE CONTENT from " + r.Source + "]"
		instruction = "Use the website content above to answer. If it does not cover the question, say so."
	case KindKnowledge:
		header = "[INTERNAL KNOWLEDGE BASE]"
		instruction = "Answer using the internal knowledge above. Prefer it over general knowledge when they disagree."
	case KindSearch:
		header = "[WEB SEARCH RESULTS for \"" + r.Source + "\"]"
		instruction = "Answer using the search results above and cite the sources you use with their links."
	default:
		return query
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(r.Text)
	b.WriteString("\n\n")
	b.WriteString(instruction)
	b.WriteString("\n\nOriginal question: ")
	b.WriteString(query)
	return b.String()
}

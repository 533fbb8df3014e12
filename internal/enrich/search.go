package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tawarln-chat/internal/ai"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]SearchHit, error)
}

type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (string, error)
}

// QueryRewriter turns the tail of a conversation into a short search query.
type QueryRewriter struct {
	llm   Completer
	model string
	log   *logger.Logger
}

func NewQueryRewriter(llm Completer, model string, log *logger.Logger) *QueryRewriter {
	return &QueryRewriter{llm: llm, model: model, log: log}
}

const rewritePrompt = "Rewrite the latest user request into a short web search query. Reply with the query only."

// Rewrite never fails: on any problem it returns the raw query.
func (r *QueryRewriter) Rewrite(ctx context.Context, raw string, turns []model.ChatTurn) string {
	if r == nil || r.llm == nil {
		return raw
	}
	start := len(turns) - 3
	if start < 0 {
		start = 0
	}
	var convo strings.Builder
	for _, t := range turns[start:] {
		convo.WriteString(t.Role)
		convo.WriteString(": ")
		convo.WriteString(t.QueryText())
		convo.WriteString("\n")
	}

	out, err := r.llm.Complete(ctx, ai.CompletionRequest{
		Model: r.model,
		Messages: []model.ChatTurn{
			{Role: model.RoleSystem, Content: model.TextContent(rewritePrompt)},
			{Role: model.RoleUser, Content: model.TextContent(convo.String())},
		},
		Temperature: 0.1,
		MaxTokens:   30,
	})
	if err != nil {
		r.log.Warn("search query rewrite failed", "error", err)
		return raw
	}
	out = strings.Trim(strings.TrimSpace(out), "\"'")
	if out == "" {
		return raw
	}
	return out
}

type WebSearch struct {
	searcher Searcher
	rewriter *QueryRewriter
	topK     int
	log      *logger.Logger
}

func NewWebSearch(searcher Searcher, rewriter *QueryRewriter, topK int, log *logger.Logger) *WebSearch {
	if topK <= 0 {
		topK = 5
	}
	return &WebSearch{searcher: searcher, rewriter: rewriter, topK: topK, log: log}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Applies(q Query) bool { return q.WebSearch }

func (w *WebSearch) Enrich(ctx context.Context, q Query) (Result, bool) {
	if !q.WebSearch {
		return Result{}, false
	}
	query := w.rewriter.Rewrite(ctx, q.Text, q.Turns)
	hits, err := w.searcher.Search(ctx, query, w.topK)
	if err != nil {
		w.log.Warn("web search failed", "query", query, "error", err)
		return Result{}, false
	}
	if len(hits) == 0 {
		return Result{}, false
	}
	if len(hits) > w.topK {
		hits = hits[:w.topK]
	}
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s\nSource: %s", i+1, h.Title, h.Snippet, h.Link)
	}
	return Result{Kind: KindSearch, Text: b.String(), Source: query}, true
}

// SerperClient talks to a Serper-compatible search API.
type SerperClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

func NewSerperClient(endpoint, apiKey string, httpClient *http.Client) *SerperClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SerperClient{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey}
}

func (c *SerperClient) Search(ctx context.Context, query string, topK int) ([]SearchHit, error) {
	body, err := json.Marshal(map[string]interface{}{"q": query, "num": topK})
	if err != nil {
		return nil, fmt.Errorf("marshal search request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search response status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Organic []SearchHit `json:"organic"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse search json failed: %w", err)
	}
	return parsed.Organic, nil
}

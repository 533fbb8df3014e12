package enrich

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tawarln-chat/internal/ai"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

type countingStrategy struct {
	name  string
	skip  bool
	res   Result
	ok    bool
	calls int
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Applies(Query) bool { return !s.skip }

func (s *countingStrategy) Enrich(context.Context, Query) (Result, bool) {
	s.calls++
	return s.res, s.ok
}

func TestChainFirstApplicableWins(t *testing.T) {
	first := &countingStrategy{name: "a", skip: true}
	second := &countingStrategy{name: "b", ok: true, res: Result{Kind: KindKnowledge, Text: "kb"}}
	third := &countingStrategy{name: "c", ok: true, res: Result{Kind: KindSearch, Text: "web"}}
	chain := NewChain(logger.NewNop(), first, second, third)

	res := chain.Select(context.Background(), Query{Text: "q"})
	if res.Kind != KindKnowledge {
		t.Fatalf("kind: got=%v want=%v", res.Kind, KindKnowledge)
	}
	if first.calls != 0 || second.calls != 1 || third.calls != 0 {
		t.Fatalf("calls: got=%d,%d,%d want=0,1,0", first.calls, second.calls, third.calls)
	}
}

func TestChainClaimedMissEndsSelection(t *testing.T) {
	claimed := &countingStrategy{name: "a"}
	next := &countingStrategy{name: "b", ok: true, res: Result{Kind: KindSearch, Text: "web"}}
	chain := NewChain(logger.NewNop(), claimed, next)

	if res := chain.Select(context.Background(), Query{}); res.Kind != KindNone {
		t.Fatalf("kind: got=%v want=%v", res.Kind, KindNone)
	}
	if next.calls != 0 {
		t.Fatalf("strategy after a claimed miss ran %d times", next.calls)
	}
}

func TestChainNoneWhenNothingApplies(t *testing.T) {
	chain := NewChain(logger.NewNop(), &countingStrategy{name: "a", skip: true}, &countingStrategy{name: "b", ok: true})
	if res := chain.Select(context.Background(), Query{}); res.Kind != KindNone {
		t.Fatalf("kind: got=%v want=%v", res.Kind, KindNone)
	}
}

func TestChainURLScrapeFailureBlocksSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	search := &countingStrategy{name: "search", ok: true, res: Result{Kind: KindSearch, Text: "web"}}
	chain := NewChain(logger.NewNop(),
		NewURLScrape(URLScrapeConfig{}, srv.Client(), logger.NewNop()),
		search,
	)
	res := chain.Select(context.Background(), Query{Text: "read " + srv.URL + "/page", WebSearch: true})
	if res.Kind != KindNone {
		t.Fatalf("kind: got=%v want=%v", res.Kind, KindNone)
	}
	if search.calls != 0 {
		t.Fatalf("search ran after failed scrape: calls=%d", search.calls)
	}
}

func TestChainKnowledgeMissPassesToSearch(t *testing.T) {
	kb := NewKnowledgeRetrieval(&fakeEmbedder{vec: []float32{1}}, &fakeMatcher{}, 0.5, 5, logger.NewNop())
	search := &countingStrategy{name: "search", ok: true, res: Result{Kind: KindSearch, Text: "web"}}
	chain := NewChain(logger.NewNop(), kb, search)

	if res := chain.Select(context.Background(), Query{Text: "q", WebSearch: true}); res.Kind != KindSearch {
		t.Fatalf("kind: got=%v want=%v", res.Kind, KindSearch)
	}
}

func TestRenderEndsWithOriginalQuestion(t *testing.T) {
	for _, kind := range []Kind{KindScrape, KindKnowledge, KindSearch} {
		out := Result{Kind: kind, Text: "body", Source: "src"}.Render("what is go?")
		if !strings.HasSuffix(out, "Original question: what is go?") {
			t.Fatalf("%s render: got=%q", kind, out)
		}
		if !strings.Contains(out, "body") {
			t.Fatalf("%s render lost text", kind)
		}
	}
	if got := (Result{Kind: KindNone}).Render("plain"); got != "plain" {
		t.Fatalf("none render: got=%q", got)
	}
}

func TestFirstURL(t *testing.T) {
	cases := map[string]string{
		"summarize https://example.com/a.":            "https://example.com/a",
		"see (http://x.io/path?q=1), thanks":          "http://x.io/path?q=1",
		"no link here":                                "",
		"two https://a.com and https://b.com please!": "https://a.com",
	}
	for in, want := range cases {
		if got := FirstURL(in); got != want {
			t.Fatalf("FirstURL(%q): got=%q want=%q", in, got, want)
		}
	}
}

func TestURLScrapeStripsChrome(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, `<html><head><style>.x{}</style></head><body>
<nav>Menu</nav><header>Top</header>
<article>Go   is a
programming language.</article>
<script>alert(1)</script><footer>Copyright</footer><div class="ads">Buy</div>
</body></html>`)
	}))
	defer srv.Close()

	s := NewURLScrape(URLScrapeConfig{UserAgent: "Mozilla/5.0 test"}, srv.Client(), logger.NewNop())
	res, ok := s.Enrich(context.Background(), Query{Text: "summarize " + srv.URL + "/post"})
	if !ok {
		t.Fatalf("expected scrape result")
	}
	if res.Text != "Go is a programming language." {
		t.Fatalf("text: got=%q", res.Text)
	}
	if res.Kind != KindScrape || res.Source != srv.URL+"/post" {
		t.Fatalf("result: got=%+v", res)
	}
	if ua != "Mozilla/5.0 test" {
		t.Fatalf("user agent: got=%q", ua)
	}
}

func TestURLScrapeTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<body>"+strings.Repeat("é", 50)+"</body>")
	}))
	defer srv.Close()

	s := NewURLScrape(URLScrapeConfig{MaxChars: 10}, srv.Client(), logger.NewNop())
	res, ok := s.Enrich(context.Background(), Query{Text: srv.URL})
	if !ok || len([]rune(res.Text)) != 10 {
		t.Fatalf("got ok=%v len=%d", ok, len([]rune(res.Text)))
	}
}

func TestURLScrapeFailureFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewURLScrape(URLScrapeConfig{}, srv.Client(), logger.NewNop())
	if _, ok := s.Enrich(context.Background(), Query{Text: srv.URL}); ok {
		t.Fatalf("404 must not produce a result")
	}
	if s.Applies(Query{Text: "no url"}) {
		t.Fatalf("query without url must not apply")
	}
	if !s.Applies(Query{Text: srv.URL}) {
		t.Fatalf("query with url must apply")
	}
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeMatcher struct {
	matches   []model.ChunkMatch
	threshold float32
	count     int
	calls     int
}

func (f *fakeMatcher) Match(_ context.Context, _ []float32, threshold float32, count int) ([]model.ChunkMatch, error) {
	f.calls++
	f.threshold, f.count = threshold, count
	return f.matches, nil
}

func TestKnowledgeRetrievalJoinsMatches(t *testing.T) {
	store := &fakeMatcher{matches: []model.ChunkMatch{
		{Content: "Refunds take 14 days.", Source: "policy.pdf", Similarity: 0.9},
		{Content: "Contact support.", Source: "policy.pdf", Similarity: 0.7},
	}}
	k := NewKnowledgeRetrieval(&fakeEmbedder{vec: []float32{1}}, store, 0, 0, logger.NewNop())

	res, ok := k.Enrich(context.Background(), Query{Text: "refund policy"})
	if !ok {
		t.Fatalf("expected knowledge result")
	}
	if res.Text != "Refunds take 14 days.\n---\nContact support." {
		t.Fatalf("text: got=%q", res.Text)
	}
	if store.threshold != 0.5 || store.count != 5 {
		t.Fatalf("defaults: got threshold=%v count=%d", store.threshold, store.count)
	}
	if res.Source != "policy.pdf" {
		t.Fatalf("source: got=%q", res.Source)
	}
}

func TestKnowledgeRetrievalEmbedFailure(t *testing.T) {
	store := &fakeMatcher{}
	k := NewKnowledgeRetrieval(&fakeEmbedder{err: &ai.EmbeddingError{Message: "down"}}, store, 0.5, 5, logger.NewNop())
	if _, ok := k.Enrich(context.Background(), Query{Text: "q"}); ok {
		t.Fatalf("embed failure must fall through")
	}
	if store.calls != 0 {
		t.Fatalf("store called after embed failure")
	}
}

type fakeCompleter struct {
	out   string
	err   error
	req   ai.CompletionRequest
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	f.calls++
	f.req = req
	return f.out, f.err
}

func TestWebSearchRewritesAndFormats(t *testing.T) {
	var gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = io.WriteString(w, `{"organic":[{"title":"Go 1.24","link":"https://go.dev","snippet":"Released."}]}`)
	}))
	defer srv.Close()

	llm := &fakeCompleter{out: "\"go 1.24 release\""}
	ws := NewWebSearch(
		NewSerperClient(srv.URL, "k", srv.Client()),
		NewQueryRewriter(llm, "m", logger.NewNop()),
		5,
		logger.NewNop(),
	)
	turns := []model.ChatTurn{
		{Role: model.RoleUser, Content: model.TextContent("a")},
		{Role: model.RoleAssistant, Content: model.TextContent("b")},
		{Role: model.RoleUser, Content: model.TextContent("c")},
		{Role: model.RoleUser, Content: model.TextContent("what's new in go")},
	}
	res, ok := ws.Enrich(context.Background(), Query{Text: "what's new in go", Turns: turns, WebSearch: true})
	if !ok {
		t.Fatalf("expected search result")
	}
	if gotKey != "k" || !strings.Contains(gotBody, `"q":"go 1.24 release"`) {
		t.Fatalf("request: key=%q body=%s", gotKey, gotBody)
	}
	if res.Text != "1. Go 1.24\nReleased.\nSource: https://go.dev" {
		t.Fatalf("text: got=%q", res.Text)
	}
	if llm.req.Temperature != 0.1 || llm.req.MaxTokens != 30 {
		t.Fatalf("rewrite params: got=%+v", llm.req)
	}
	if strings.Contains(llm.req.Messages[1].Content.Text, "user: a\n") {
		t.Fatalf("rewrite should use only the last 3 turns: %q", llm.req.Messages[1].Content.Text)
	}
}

func TestWebSearchRequiresFlag(t *testing.T) {
	llm := &fakeCompleter{out: "x"}
	ws := NewWebSearch(NewSerperClient("http://127.0.0.1:1", "k", nil), NewQueryRewriter(llm, "m", logger.NewNop()), 5, logger.NewNop())
	if ws.Applies(Query{Text: "q"}) {
		t.Fatalf("search applies without flag")
	}
	if _, ok := ws.Enrich(context.Background(), Query{Text: "q"}); ok {
		t.Fatalf("search ran without flag")
	}
	if llm.calls != 0 {
		t.Fatalf("rewrite ran without flag")
	}
}

func TestQueryRewriteFallsBackToRaw(t *testing.T) {
	r := NewQueryRewriter(&fakeCompleter{err: errors.New("boom")}, "m", logger.NewNop())
	if got := r.Rewrite(context.Background(), "raw query", nil); got != "raw query" {
		t.Fatalf("got=%q", got)
	}
	r = NewQueryRewriter(&fakeCompleter{out: "   "}, "m", logger.NewNop())
	if got := r.Rewrite(context.Background(), "raw query", nil); got != "raw query" {
		t.Fatalf("empty rewrite: got=%q", got)
	}
}

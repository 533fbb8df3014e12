package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tawarln-chat/internal/ai"
	"tawarln-chat/internal/app"
	"tawarln-chat/internal/pkg/jwtutil"
	"tawarln-chat/internal/platform/logger"
	"tawarln-chat/internal/ratelimit"
	"tawarln-chat/internal/transport/http/middleware"
	"tawarln-chat/internal/transport/http/response"
)

const testSecret = "handler-secret"

const (
	helloThereSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\ndata: [DONE]\n\n"
	brokenSSE     = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: {\"error\":{\"message\":\"boom\"}}\n\n"
)

type stubLLM struct {
	calls int
	body  string
}

func (s *stubLLM) StreamComplete(context.Context, ai.CompletionRequest) (*ai.ChatStream, error) {
	s.calls++
	body := s.body
	if body == "" {
		body = helloThereSSE
	}
	return ai.NewChatStream(io.NopCloser(strings.NewReader(body))), nil
}

type denyLimiter struct{ retry time.Duration }

func (d denyLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: d.retry}, nil
}

func newChatRouter(llm *stubLLM, limiter ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	catalog := app.NewModelCatalog([]string{"GLM 4.6"}, "GLM 4.6")
	svc := app.NewChatService(llm, limiter, nil, nil, nil, catalog, app.ChatOptions{SystemPrompt: "sys"}, logger.NewNop())
	h := NewChatHandler(svc, catalog)

	r := gin.New()
	r.Use(middleware.Recovery(logger.NewNop()))
	r.POST("/api/v1/chat", middleware.AuthJWT(testSecret), h.Chat)
	r.GET("/api/v1/models", h.Models)
	return r
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(testSecret, time.Hour, 1, "ana", role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func chatBody(text string) *bytes.Reader {
	payload, _ := json.Marshal(map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": text}},
	})
	return bytes.NewReader(payload)
}

func TestChatRequiresToken(t *testing.T) {
	llm := &stubLLM{}
	r := newChatRouter(llm, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("hi"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got=%d want=%d", w.Code, http.StatusUnauthorized)
	}
	var body response.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Fatalf("body: got=%q err=%v", w.Body.String(), err)
	}
	if llm.calls != 0 {
		t.Fatalf("provider calls: got=%d want=0", llm.calls)
	}
}

func TestChatRateLimitedSetsRetryAfter(t *testing.T) {
	llm := &stubLLM{}
	r := newChatRouter(llm, denyLimiter{retry: 1500 * time.Millisecond})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("hi"))
	req.Header.Set("Authorization", bearer(t, "user"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got=%d want=%d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("retry-after: got=%q want=%q", got, "2")
	}
	if llm.calls != 0 {
		t.Fatalf("provider calls: got=%d want=0", llm.calls)
	}
}

func TestChatOversizedQuery(t *testing.T) {
	llm := &stubLLM{}
	r := newChatRouter(llm, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(strings.Repeat("x", 2001)))
	req.Header.Set("Authorization", bearer(t, "user"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", w.Code, http.StatusBadRequest)
	}
	if llm.calls != 0 {
		t.Fatalf("provider calls: got=%d want=0", llm.calls)
	}
}

func TestChatStreamsPlainText(t *testing.T) {
	llm := &stubLLM{}
	r := newChatRouter(llm, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("hi"))
	req.Header.Set("Authorization", bearer(t, "user"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=%d body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Body.String(); got != "Hi there" {
		t.Fatalf("body: got=%q want=%q", got, "Hi there")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type: got=%q", ct)
	}
}

func TestChatStreamsNDJSONOnRequest(t *testing.T) {
	llm := &stubLLM{}
	r := newChatRouter(llm, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("hi"))
	req.Header.Set("Authorization", bearer(t, "user"))
	req.Header.Set("Accept", "application/x-ndjson")
	r.ServeHTTP(w, req)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("frames: got=%d want=3 body=%q", len(lines), w.Body.String())
	}
	if !strings.Contains(lines[2], `"done"`) {
		t.Fatalf("last frame: got=%q", lines[2])
	}
}

func TestChatPlainTextFailureDropsConnection(t *testing.T) {
	llm := &stubLLM{body: brokenSSE}
	srv := httptest.NewServer(newChatRouter(llm, nil))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/chat", chatBody("hi"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", bearer(t, "user"))
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatalf("read: got clean EOF with body=%q, want a broken stream", body)
	}
	if strings.Contains(string(body), "boom") {
		t.Fatalf("provider error leaked into text body: %q", body)
	}
}

func TestChatNDJSONFailureEndsWithErrorFrame(t *testing.T) {
	llm := &stubLLM{body: brokenSSE}
	r := newChatRouter(llm, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("hi"))
	req.Header.Set("Authorization", bearer(t, "user"))
	req.Header.Set("Accept", "application/x-ndjson")
	r.ServeHTTP(w, req)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("frames: got=%d want=2 body=%q", len(lines), w.Body.String())
	}
	if !strings.Contains(lines[1], `"type":"error"`) {
		t.Fatalf("last frame: got=%q", lines[1])
	}
}

func TestModelsListsCatalog(t *testing.T) {
	r := newChatRouter(&stubLLM{}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	var body struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Models) != 1 || body.Default != "GLM 4.6" {
		t.Fatalf("body: got=%+v", body)
	}
}

package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tawarln-chat/internal/platform/logger"
)

const maxScrapeBody = 2 << 20

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

var strippedSelectors = strings.Join([]string{
	"script", "style", "nav", "footer", "header", "aside", "iframe", "noscript", "form", "svg",
	".ad", ".ads", ".advert", ".advertisement", `[id^="ad-"]`, `[class*="cookie"]`,
}, ", ")

type URLScrapeConfig struct {
	UserAgent string
	MaxChars  int
	Timeout   time.Duration
}

type URLScrape struct {
	httpClient *http.Client
	cfg        URLScrapeConfig
	log        *logger.Logger
}

func NewURLScrape(cfg URLScrapeConfig, httpClient *http.Client, log *logger.Logger) *URLScrape {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 6000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &URLScrape{httpClient: httpClient, cfg: cfg, log: log}
}

func (s *URLScrape) Name() string { return "url_scrape" }

// Applies is true whenever the query carries a URL, even if the fetch later fails.
func (s *URLScrape) Applies(q Query) bool { return FirstURL(q.Text) != "" }

func (s *URLScrape) Enrich(ctx context.Context, q Query) (Result, bool) {
	target := FirstURL(q.Text)
	if target == "" {
		return Result{}, false
	}
	text, err := s.fetch(ctx, target)
	if err != nil {
		s.log.Warn("url scrape failed", "url", target, "error", err)
		return Result{}, false
	}
	if text == "" {
		return Result{}, false
	}
	return Result{Kind: KindScrape, Text: text, Source: target}, true
}

// FirstURL returns the first http(s) URL in text with trailing punctuation trimmed.
func FirstURL(text string) string {
	m := urlPattern.FindString(text)
	return strings.TrimRight(m, ".,;:!?)]}")
}

func (s *URLScrape) fetch(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build scrape request failed: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("scrape status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxScrapeBody))
	if err != nil {
		return "", fmt.Errorf("parse html failed: %w", err)
	}
	doc.Find(strippedSelectors).Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if text == "" {
		text = strings.Join(strings.Fields(doc.Text()), " ")
	}
	runes := []rune(text)
	if len(runes) > s.cfg.MaxChars {
		text = string(runes[:s.cfg.MaxChars])
	}
	return text, nil
}

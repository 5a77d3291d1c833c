// Package search implements web search discovery over the DuckDuckGo HTML
// endpoint using gocolly.
package search

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	htmlEndpoint      = "https://html.duckduckgo.com/html/"
	defaultMaxResults = 10
	defaultTimeout    = 15 * time.Second
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Config controls collector behavior.
type Config struct {
	UserAgent  string
	MaxResults int
	Timeout    time.Duration
}

// Provider fetches search results from the DuckDuckGo HTML page.
type Provider struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(cfg.Timeout)
	return &Provider{cfg: cfg, baseCollector: c, logger: logger}
}

// Search returns up to MaxResults hits for the query. Provider failures are
// absorbed: a blocked or unreachable endpoint yields an empty slice.
func (p *Provider) Search(ctx context.Context, query string) []Result {
	if strings.TrimSpace(query) == "" {
		return []Result{}
	}

	results := make([]Result, 0, p.cfg.MaxResults)
	collector := p.baseCollector.Clone()
	collector.OnHTML(".result", func(e *colly.HTMLElement) {
		if len(results) >= p.cfg.MaxResults {
			return
		}
		title := strings.TrimSpace(e.ChildText(".result__title"))
		href := cleanResultURL(e.ChildAttr(".result__a", "href"))
		snippet := strings.TrimSpace(e.ChildText(".result__snippet"))
		if title == "" || href == "" {
			return
		}
		results = append(results, Result{Title: title, URL: href, Snippet: snippet})
	})
	collector.OnError(func(r *colly.Response, err error) {
		p.logger.Warn("web search request failed", zap.String("query", query), zap.Error(err))
	})

	target := htmlEndpoint + "?q=" + url.QueryEscape(query)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(target); err != nil {
			p.logger.Warn("web search visit failed", zap.String("query", query), zap.Error(err))
		}
		collector.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return []Result{}
	}
	return results
}

// cleanResultURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...)
// into the destination URL.
func cleanResultURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.Contains(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultThemeColor = "#000000"
	defaultViewport   = "width=device-width,initial-scale=1"
)

// Scrape fetches a single page with its own browser driver and returns the
// detailed extraction: structured payload, markdown, and derived metadata.
func (o *Orchestrator) Scrape(ctx context.Context, rawURL string, progress ProgressReporter) (*ScrapeResult, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	target := NormalizeURL(rawURL)
	progress.SetAction("Launching browser...")
	driver, err := o.factory.NewDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser driver: %w", err)
	}
	defer driver.Close()

	progress.SetAction("Scraping: " + target)
	html, err := driver.Navigate(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	extractor, err := NewExtractor(html, target)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", target, err)
	}

	meta := extractor.MetaTags()
	themeColor := meta["theme-color"]
	if themeColor == "" {
		themeColor = defaultThemeColor
	}
	viewport := meta["viewport"]
	if viewport == "" {
		viewport = defaultViewport
	}

	o.logger.Debug("detailed scrape complete", zap.String("url", target))
	return &ScrapeResult{
		JSON: ScrapePayload{
			Title:    extractor.Title(),
			Content:  extractor.Text(),
			URL:      target,
			Images:   extractor.Images(),
			Links:    extractor.LinkRefs(),
			Metadata: meta,
		},
		Markdown: extractor.Markdown(),
		Metadata: PageMetadata{
			ThemeColor:  themeColor,
			Viewport:    viewport,
			Title:       extractor.MetaTitle(),
			Language:    extractor.Language(),
			Description: extractor.Description(),
			Favicon:     extractor.Favicon(),
			ScrapeID:    uuid.NewString(),
			SourceURL:   target,
			URL:         target,
			StatusCode:  http.StatusOK,
			ContentType: "text/html",
			CachedAt:    o.clock.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// seedScore is the priority assigned to seed URLs so they always pop before
// discovered links.
const seedScore = 100

// minVisitsBeforePruning lets the first few pages of a session enqueue
// zero-score links so unqueried crawls can still explore.
const minVisitsBeforePruning = 10

// Orchestrator drives crawl sessions. Each session acquires its own browser
// driver from the factory and releases it on every exit path; no state is
// shared between sessions.
type Orchestrator struct {
	factory DriverFactory
	clock   Clock
	logger  *zap.Logger
}

// NewOrchestrator wires the driver factory, clock, and logger.
func NewOrchestrator(factory DriverFactory, clock Clock, logger *zap.Logger) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{factory: factory, clock: clock, logger: logger}
}

// Crawl runs one crawl session to completion and returns the produced
// documents. In per-page mode every fetched URL yields one Document; in
// aggregate mode each seed yields a single site-level Document. A fetch
// failure skips that URL and the session continues; pages gathered before a
// later failure are always returned.
func (o *Orchestrator) Crawl(ctx context.Context, req Request, progress ProgressReporter) ([]Document, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	if len(req.SeedURLs) == 0 {
		return nil, fmt.Errorf("at least one seed url is required")
	}
	start := o.clock.Now()
	defer func() { sessionDuration.Observe(time.Since(start).Seconds()) }()

	progress.SetAction("Launching browser...")
	driver, err := o.factory.NewDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser driver: %w", err)
	}
	defer driver.Close()

	if req.Aggregate {
		return o.crawlAggregate(ctx, driver, req, progress)
	}
	frontier := NewFrontier(req.MaxPages)
	for _, seed := range req.SeedURLs {
		frontier.Push(Task{Score: seedScore, URL: NormalizeURL(seed)})
	}
	docs, _ := o.runFrontier(ctx, driver, frontier, req, progress)
	return docs, nil
}

// crawlAggregate runs one frontier per seed, merging each seed's pages into a
// single site document. Seeds are reduced to their site identity first so
// equivalent spellings of one site always yield the same document.
func (o *Orchestrator) crawlAggregate(ctx context.Context, driver Driver, req Request, progress ProgressReporter) ([]Document, error) {
	var docs []Document
	for _, seed := range req.SeedURLs {
		if progress.Cancelled() || ctx.Err() != nil {
			break
		}
		seedURL := NormalizeSiteURL(seed)
		frontier := NewFrontier(req.MaxPages)
		frontier.Push(Task{Score: seedScore, URL: seedURL})
		pages, visited := o.runFrontier(ctx, driver, frontier, req, progress)
		if len(pages) == 0 {
			continue
		}
		docs = append(docs, o.aggregate(seedURL, pages, visited))
	}
	return docs, nil
}

// runFrontier executes the fetch loop until the frontier drains, the page
// budget is exhausted, or the session is cancelled. It returns per-page
// documents plus the visit order.
func (o *Orchestrator) runFrontier(ctx context.Context, driver Driver, frontier *Frontier, req Request, progress ProgressReporter) ([]Document, []string) {
	var (
		docs    []Document
		visited []string
	)
	for !frontier.Exhausted() {
		if progress.Cancelled() || ctx.Err() != nil {
			break
		}
		task, ok := frontier.Pop()
		if !ok {
			break
		}
		progress.SetAction(fmt.Sprintf("Crawling (%d): %s", task.Score, task.URL))
		o.logger.Info("crawling page",
			zap.String("url", task.URL),
			zap.Int("score", task.Score),
			zap.Int("visited", frontier.VisitedCount()))

		html, err := driver.Navigate(ctx, task.URL)
		if err != nil {
			fetchFailures.Inc()
			o.logger.Warn("fetch failed, skipping url", zap.String("url", task.URL), zap.Error(err))
			continue
		}
		if !frontier.MarkVisited(task.URL) {
			continue
		}
		visited = append(visited, task.URL)

		extractor, err := NewExtractor(html, task.URL)
		if err != nil {
			fetchFailures.Inc()
			o.logger.Warn("extraction failed, skipping url", zap.String("url", task.URL), zap.Error(err))
			continue
		}
		links := extractor.Links(req.Query, req.RestrictDomain)
		docs = append(docs, Document{
			ID:           task.URL,
			ParentURL:    task.ParentURL,
			ChildrenURLs: links,
			Content:      extractor.Markdown(),
			CreatedAt:    o.clock.Now().Unix(),
			Title:        extractor.Title(),
		})
		pagesFetched.Inc()

		for _, link := range links {
			if frontier.Visited(link) {
				continue
			}
			score := ScoreLink(link, req.Query)
			if score > 0 || frontier.VisitedCount() < minVisitsBeforePruning {
				frontier.Push(Task{Score: score, URL: link, ParentURL: task.URL})
			}
		}
	}
	return docs, visited
}

// aggregate merges per-page documents reached from one seed into a single
// site-level document. Page sections appear in visit order under a
// "## Source:" heading and are separated by rule lines; ChildrenURLs lists
// every visited URL except the seed itself.
func (o *Orchestrator) aggregate(seedURL string, pages []Document, visited []string) Document {
	sections := make([]string, 0, len(pages))
	for _, page := range pages {
		sections = append(sections, "## Source: "+page.ID+"\n\n"+page.Content)
	}
	children := make([]string, 0, len(visited))
	for _, u := range visited {
		if u != seedURL {
			children = append(children, u)
		}
	}
	return Document{
		ID:           AggregateDocID(seedURL),
		ParentURL:    seedURL,
		ChildrenURLs: children,
		Content:      strings.Join(sections, "\n\n---\n\n"),
		CreatedAt:    o.clock.Now().Unix(),
		Title:        pages[0].Title,
	}
}

// AggregateDocID derives a stable identity for a site-level document from its
// seed URL.
func AggregateDocID(seedURL string) string {
	sum := sha256.Sum256([]byte(seedURL))
	return hex.EncodeToString(sum[:16])
}

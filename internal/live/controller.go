package live

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sitescout/sitescout/internal/bridge"
	"github.com/sitescout/sitescout/internal/crawler"
	"github.com/sitescout/sitescout/internal/search"
)

const (
	defaultHeartbeat = 100 * time.Millisecond
	defaultFrameRate = 5
	visitLimit       = 3
	contextCharCap   = 4000
)

// Searcher supplies web results for the smart-search flow.
type Searcher interface {
	Search(ctx context.Context, query string) []search.Result
}

// Config tunes session streaming behavior.
type Config struct {
	Heartbeat time.Duration
	// FramesPerSec caps live_frame delivery independent of the heartbeat.
	FramesPerSec float64
}

// Controller runs smart-search sessions. Each Run owns one browser driver;
// blocking navigation is offloaded through the bridge pool so the session can
// observe cancellation while a page loads.
type Controller struct {
	factory  crawler.DriverFactory
	pool     *bridge.Pool
	searcher Searcher
	answers  crawler.AnswerService
	cfg      Config
	logger   *zap.Logger
}

// NewController wires a controller from its collaborators.
func NewController(
	factory crawler.DriverFactory,
	pool *bridge.Pool,
	searcher Searcher,
	answers crawler.AnswerService,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.FramesPerSec <= 0 {
		cfg.FramesPerSec = defaultFrameRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		factory:  factory,
		pool:     pool,
		searcher: searcher,
		answers:  answers,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one smart-search session: web search, visit the top hits with
// a live browser, then generate an answer over the gathered context. The
// caller flags state on client disconnect; after that no further events are
// sent. The heartbeat is always joined before the driver closes.
func (c *Controller) Run(ctx context.Context, query string, state *State, sender Sender) error {
	c.send(ctx, state, sender, Event{Type: EventStatus, Message: "Starting smart search"})

	driver, err := c.factory.NewDriver(ctx)
	if err != nil {
		c.logger.Error("live session browser launch failed", zap.Error(err))
		return c.sendTerminal(ctx, state, sender, Event{Type: EventError, Message: "failed to launch browser"})
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeat(ctx, driver, state, sender, stop)
	}()

	results, items := c.gather(ctx, driver, query, state, sender)

	var answer string
	if !state.Cancelled() {
		state.SetAction("Thinking")
		c.send(ctx, state, sender, Event{Type: EventStatus, Message: "Generating answer..."})
		answer, err = c.answers.Generate(ctx, query, items)
		if err != nil {
			c.logger.Warn("live answer generation failed", zap.String("query", query), zap.Error(err))
			answer = ""
		}
	}

	close(stop)
	wg.Wait()
	driver.Close()

	return c.sendTerminal(ctx, state, sender, Event{
		Type:    EventResults,
		Results: results,
		Answer:  answer,
		Done:    true,
	})
}

// gather searches the web and visits the top hits, extracting answer context
// from each rendered page. Per-page failures are skipped.
func (c *Controller) gather(
	ctx context.Context,
	driver crawler.Driver,
	query string,
	state *State,
	sender Sender,
) ([]search.Result, []crawler.ContextItem) {
	state.SetAction("Searching the web")
	c.send(ctx, state, sender, Event{Type: EventStatus, Message: fmt.Sprintf("Searching the web for: %s", query)})

	results := c.searcher.Search(ctx, query)
	if len(results) > visitLimit {
		results = results[:visitLimit]
	}

	items := make([]crawler.ContextItem, 0, len(results))
	for _, r := range results {
		if state.Cancelled() || ctx.Err() != nil {
			break
		}
		state.SetAction(fmt.Sprintf("Reading: %s", r.URL))

		target := r.URL
		fut, err := c.pool.Submit(ctx, func(jobCtx context.Context) (any, error) {
			return driver.Navigate(jobCtx, target)
		})
		if err != nil {
			c.logger.Warn("live visit submit failed", zap.String("url", target), zap.Error(err))
			continue
		}
		value, err := fut.Wait(ctx)
		if err != nil {
			c.logger.Warn("live visit failed", zap.String("url", target), zap.Error(err))
			continue
		}
		html, _ := value.(string)
		ex, err := crawler.NewExtractor(html, target)
		if err != nil {
			c.logger.Warn("live extraction failed", zap.String("url", target), zap.Error(err))
			continue
		}
		content := ex.Text()
		if len(content) > contextCharCap {
			content = content[:contextCharCap]
		}
		items = append(items, crawler.ContextItem{
			URL:     target,
			Title:   ex.Title(),
			Content: content,
		})
	}
	return results, items
}

// heartbeat periodically captures the browser viewport and pushes a
// live_frame with the current action. Frames stop immediately on
// cancellation; screenshot failures during navigation are tolerated.
func (c *Controller) heartbeat(
	ctx context.Context,
	driver crawler.Driver,
	state *State,
	sender Sender,
	stop <-chan struct{},
) {
	limiter := rate.NewLimiter(rate.Limit(c.cfg.FramesPerSec), 1)
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if state.Cancelled() {
			return
		}
		if !limiter.Allow() {
			continue
		}
		shot, err := driver.Screenshot(ctx)
		if err != nil {
			continue
		}
		ev := Event{
			Type:       EventLiveFrame,
			Screenshot: base64.StdEncoding.EncodeToString(shot),
			Action:     state.Action(),
		}
		if state.Cancelled() {
			return
		}
		if err := sender.Send(ctx, ev); err != nil {
			state.Cancel()
			return
		}
	}
}

// send pushes a non-terminal event, flagging cancellation on delivery failure.
func (c *Controller) send(ctx context.Context, state *State, sender Sender, ev Event) {
	if state.Cancelled() {
		return
	}
	if err := sender.Send(ctx, ev); err != nil {
		state.Cancel()
	}
}

// sendTerminal delivers the session's single closing event. A cancelled
// session ends silently.
func (c *Controller) sendTerminal(ctx context.Context, state *State, sender Sender, ev Event) error {
	if state.Cancelled() {
		return nil
	}
	return sender.Send(ctx, ev)
}

// Package headless provides the chromedp-backed browser driver used for
// crawl and scrape sessions.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/sitescout/sitescout/internal/crawler"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultSettleDelay = 1500 * time.Millisecond
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config controls the behavior of driver sessions.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after DOM ready for hydration.
	SettleDelay time.Duration
	ViewportW   int
	ViewportH   int
}

// Factory launches one chromedp browser per crawl session. Sessions are never
// shared; each Driver owns its allocator and tab and releases both on Close.
type Factory struct {
	cfg Config
}

// NewFactory applies defaults to the driver configuration.
func NewFactory(cfg Config) *Factory {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.ViewportW <= 0 {
		cfg.ViewportW = 1280
	}
	if cfg.ViewportH <= 0 {
		cfg.ViewportH = 800
	}
	return &Factory{cfg: cfg}
}

// NewDriver launches a headless browser and opens a tab. The returned driver
// is bound to one crawl session; a launch failure is fatal to that session.
func (f *Factory) NewDriver(ctx context.Context) (crawler.Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(f.cfg.ViewportW, f.cfg.ViewportH),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// chromedp starts the browser lazily; run the setup actions eagerly so a
	// missing Chrome binary surfaces as a launch failure, not a fetch failure.
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(f.cfg.UserAgent),
	); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	return &Driver{
		cfg:         f.cfg,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

// Driver implements crawler.Driver over a single chromedp tab. It belongs to
// exactly one crawl session. Navigate must only be called from the session
// goroutine; Screenshot may additionally be called from the heartbeat.
type Driver struct {
	cfg         Config
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// Navigate loads a URL, waits for the DOM plus a hydration delay, and returns
// the rendered outer HTML.
func (d *Driver) Navigate(ctx context.Context, url string) (string, error) {
	runCtx, cancel := d.boundedCtx(ctx, d.cfg.NavigationTimeout+d.cfg.SettleDelay)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(d.cfg.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return html, nil
}

// Screenshot captures the current page as PNG bytes. It is best effort; the
// heartbeat tolerates failures while a navigation is in flight.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := d.boundedCtx(ctx, 5*time.Second)
	defer cancel()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close tears down the tab and the browser process. Callers must join any
// goroutine still using the driver (the heartbeat) before closing.
func (d *Driver) Close() {
	d.tabCancel()
	d.allocCancel()
}

// boundedCtx derives a run context from the driver's tab that also honors the
// caller's cancellation and a timeout.
func (d *Driver) boundedCtx(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, timeoutCancel := context.WithTimeout(d.tabCtx, timeout)
	if caller == nil {
		return runCtx, timeoutCancel
	}
	stop := context.AfterFunc(caller, timeoutCancel)
	return runCtx, func() {
		stop()
		timeoutCancel()
	}
}

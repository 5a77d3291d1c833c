package crawler

import (
	"context"
	"time"
)

// Driver is a browser automation session. Navigate blocks until the page is
// rendered and returns the final DOM; implementations are not safe for
// concurrent use and belong to exactly one crawl session.
type Driver interface {
	Navigate(ctx context.Context, url string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close()
}

// DriverFactory launches a fresh browser session. One driver is created per
// crawl session and torn down at session end; drivers are never shared across
// sessions.
type DriverFactory interface {
	NewDriver(ctx context.Context) (Driver, error)
}

// DocumentStore is the persistence collaborator contract. Implementations own
// connection management and schema.
type DocumentStore interface {
	UpsertPages(ctx context.Context, docs []Document) (int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	DeleteSite(ctx context.Context, siteURL string) error
}

// SearchHit is one full-text search result from the document store.
type SearchHit struct {
	ID           string   `json:"id"`
	ParentURL    string   `json:"parentUrl"`
	ChildrenURLs []string `json:"childrenUrls"`
	Content      string   `json:"content,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
	Snippet      string   `json:"snippet"`
}

// AnswerService is the answer-generation collaborator contract.
type AnswerService interface {
	Generate(ctx context.Context, query string, items []ContextItem) (string, error)
	GenerateStream(ctx context.Context, query string, items []ContextItem, history []ChatTurn, fn func(chunk string) error) error
}

// ProgressReporter receives best-effort action updates from the crawl loop and
// carries the cooperative cancellation flag. Implementations must be cheap and
// non-blocking; the loop calls SetAction before every major step and checks
// Cancelled between frontier iterations, never mid-fetch.
type ProgressReporter interface {
	SetAction(action string)
	Cancelled() bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// NopProgress discards actions and never cancels.
type NopProgress struct{}

// SetAction implements ProgressReporter.
func (NopProgress) SetAction(string) {}

// Cancelled implements ProgressReporter.
func (NopProgress) Cancelled() bool { return false }

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Package crawler defines core types shared across subsystems.
package crawler

// Request captures everything needed to run one crawl session.
type Request struct {
	SeedURLs       []string `json:"seed_urls"`
	MaxPages       int      `json:"max_pages"`
	Query          string   `json:"query,omitempty"`
	RestrictDomain bool     `json:"restrict_domain"`
	Aggregate      bool     `json:"aggregate"`
}

// Document is the unit handed to the document store. In per-page mode one
// Document is produced per fetched URL with the normalized URL as its ID; in
// aggregate mode one Document represents an entire site and its ID is a
// deterministic hash of the seed URL.
type Document struct {
	ID           string   `json:"id"`
	ParentURL    string   `json:"parentUrl"`
	ChildrenURLs []string `json:"childrenUrls"`
	Content      string   `json:"content"`
	CreatedAt    int64    `json:"createdAt"`
	Title        string   `json:"title"`
}

// RankedResult is one entry of an in-memory ranking pass, used when crawl
// output is returned directly instead of going through the store.
type RankedResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Score   int    `json:"score"`
}

// ImageRef describes one image found during a detailed scrape.
type ImageRef struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// LinkRef describes one anchor found during a detailed scrape.
type LinkRef struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// PageMetadata holds the derived metadata fields of a detailed scrape.
type PageMetadata struct {
	ThemeColor  string `json:"theme-color"`
	Viewport    string `json:"viewport"`
	Title       string `json:"title"`
	Language    string `json:"language"`
	Description string `json:"description"`
	Favicon     string `json:"favicon"`
	ScrapeID    string `json:"scrapeId"`
	SourceURL   string `json:"sourceURL"`
	URL         string `json:"url"`
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType"`
	CachedAt    string `json:"cachedAt"`
}

// ScrapePayload is the structured view of a detailed scrape.
type ScrapePayload struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	URL      string            `json:"url"`
	Images   []ImageRef        `json:"images"`
	Links    []LinkRef         `json:"links"`
	Metadata map[string]string `json:"metadata"`
}

// ScrapeResult is the complete output of a detailed single-page scrape.
type ScrapeResult struct {
	JSON     ScrapePayload `json:"json"`
	Markdown string        `json:"markdown"`
	Metadata PageMetadata  `json:"metadata"`
}

// ContextItem is one retrieval hit passed to the answer service as grounding.
type ContextItem struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChatTurn is one prior exchange in a chat conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

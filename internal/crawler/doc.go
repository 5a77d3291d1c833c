// Package crawler implements the site crawl engine: URL normalization and
// scoring, the priority frontier, content extraction and markdown conversion,
// the per-session crawl orchestrator, and in-memory ranking for autonomous
// discovery.
package crawler

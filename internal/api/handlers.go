package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sitescout/sitescout/internal/crawler"
	"github.com/sitescout/sitescout/internal/export"
)

const chatTitleLimit = 60

type searchResponse struct {
	Query    string                 `json:"query"`
	URL      string                 `json:"url,omitempty"`
	Results  []crawler.RankedResult `json:"results"`
	AIAnswer string                 `json:"aiAnswer,omitempty"`
	Stored   int                    `json:"pagesStored,omitempty"`
}

// autonomousSearch crawls the default seed set and ranks pages against the
// query, with no target site.
func (s *Server) autonomousSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	results, err := s.orch.AutonomousSearch(r.Context(), query, crawler.NopProgress{})
	if err != nil && len(results) == 0 {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	answer := s.generateAnswer(r, query, itemsFromResults(results))
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: results, AIAnswer: answer})
}

// liveSearch proxies the web search provider without touching a browser.
func (s *Server) liveSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "web search is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": s.searcher.Search(r.Context(), query),
	})
}

// siteSearch crawls one site, indexes it, ranks pages against the query and
// generates a grounded answer. Pages crawled before a mid-crawl failure are
// still ranked and stored.
func (s *Server) siteSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	siteURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if query == "" || siteURL == "" {
		writeError(w, http.StatusBadRequest, "missing query parameters q and url")
		return
	}

	docs, results, err := s.orch.SearchSite(r.Context(), siteURL, query, s.maxPages(r), crawler.NopProgress{})
	if err != nil && len(docs) == 0 {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	stored := s.storePages(r, docs)
	answer := s.generateAnswer(r, query, itemsFromDocs(docs))
	writeJSON(w, http.StatusOK, searchResponse{
		Query:    query,
		URL:      siteURL,
		Results:  results,
		AIAnswer: answer,
		Stored:   stored,
	})
}

// downloadSearch re-runs a site search and streams the results as a file.
func (s *Server) downloadSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	siteURL := strings.TrimSpace(r.URL.Query().Get("url"))
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if query == "" || siteURL == "" {
		writeError(w, http.StatusBadRequest, "missing query parameters q and url")
		return
	}
	if format != "json" && format != "md" {
		writeError(w, http.StatusBadRequest, "format must be json or md")
		return
	}

	docs, results, err := s.orch.SearchSite(r.Context(), siteURL, query, s.maxPages(r), crawler.NopProgress{})
	if err != nil && len(docs) == 0 {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	var body []byte
	contentType := "text/markdown; charset=utf-8"
	if format == "json" {
		contentType = "application/json"
		body, err = export.JSON(results, query)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		body = export.Markdown(results, query)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(query, format)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("download write failed", zap.Error(err))
	}
}

type crawlRequest struct {
	URLs           []string `json:"urls"`
	MaxPages       int      `json:"maxPages"`
	Query          string   `json:"query"`
	RestrictDomain bool     `json:"restrictDomain"`
	Aggregate      bool     `json:"aggregate"`
}

// crawl runs a crawl session and returns the resulting documents.
func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.cfg.Crawler.MaxPagesDefault
	}
	if limit := s.cfg.Crawler.MaxPagesLimit; limit > 0 && maxPages > limit {
		maxPages = limit
	}

	docs, err := s.orch.Crawl(r.Context(), crawler.Request{
		SeedURLs:       req.URLs,
		MaxPages:       maxPages,
		Query:          req.Query,
		RestrictDomain: req.RestrictDomain,
		Aggregate:      req.Aggregate,
	}, crawler.NopProgress{})
	if err != nil && len(docs) == 0 {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	stored := s.storePages(r, docs)
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":   docs,
		"count":       len(docs),
		"pagesStored": stored,
	})
}

type scrapeRequest struct {
	URL string `json:"url"`
}

// scrape renders one page and returns it in the requested format.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "md" && format != "metadata" {
		writeError(w, http.StatusBadRequest, "format must be json, md or metadata")
		return
	}

	result, err := s.orch.Scrape(r.Context(), req.URL, crawler.NopProgress{})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	switch format {
	case "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(result.Markdown)); err != nil {
			s.logger.Warn("scrape write failed", zap.Error(err))
		}
	case "metadata":
		writeJSON(w, http.StatusOK, result.Metadata)
	default:
		writeJSON(w, http.StatusOK, result.JSON)
	}
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}
	records, err := s.store.CrawlHistory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crawls": records})
}

func (s *Server) deleteCrawl(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}
	siteURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if siteURL == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter url")
		return
	}
	if err := s.store.DeleteSite(r.Context(), siteURL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": siteURL})
}

func (s *Server) listChatSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}
	sessions, err := s.store.ChatSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) listChatMessages(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	ok, err := s.store.SessionValid(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat session")
		return
	}
	messages, err := s.store.ChatMessages(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// maxPages reads the optional max_pages query parameter, clamped to the
// configured limit.
func (s *Server) maxPages(r *http.Request) int {
	n := s.cfg.Crawler.MaxPagesDefault
	if raw := r.URL.Query().Get("max_pages"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if limit := s.cfg.Crawler.MaxPagesLimit; limit > 0 && n > limit {
		n = limit
	}
	return n
}

// storePages persists documents when a store is configured. Store failures
// degrade to unstored results.
func (s *Server) storePages(r *http.Request, docs []crawler.Document) int {
	if s.store == nil || len(docs) == 0 {
		return 0
	}
	stored, err := s.store.UpsertPages(r.Context(), docs)
	if err != nil {
		s.logger.Warn("page storage failed", zap.Int("documents", len(docs)), zap.Error(err))
		return 0
	}
	return stored
}

// generateAnswer asks the answer service for a grounded answer; failures
// degrade to answerless results.
func (s *Server) generateAnswer(r *http.Request, query string, items []crawler.ContextItem) string {
	if s.answers == nil || len(items) == 0 {
		return ""
	}
	answer, err := s.answers.Generate(r.Context(), query, items)
	if err != nil {
		s.logger.Warn("answer generation failed", zap.String("query", query), zap.Error(err))
		return ""
	}
	return answer
}

func itemsFromResults(results []crawler.RankedResult) []crawler.ContextItem {
	items := make([]crawler.ContextItem, 0, len(results))
	for _, res := range results {
		items = append(items, crawler.ContextItem{URL: res.URL, Title: res.Title, Content: res.Snippet})
	}
	return items
}

func itemsFromDocs(docs []crawler.Document) []crawler.ContextItem {
	items := make([]crawler.ContextItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, crawler.ContextItem{URL: doc.ParentURL, Title: doc.Title, Content: doc.Content})
	}
	return items
}

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sitescout/sitescout/internal/bridge"
	"github.com/sitescout/sitescout/internal/config"
	"github.com/sitescout/sitescout/internal/crawler"
	"github.com/sitescout/sitescout/internal/live"
	"github.com/sitescout/sitescout/internal/search"
	"github.com/sitescout/sitescout/internal/store/postgres"
)

type fakeDriver struct {
	mu      sync.Mutex
	pages   map[string]string
	visited []string
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited = append(d.visited, url)
	html, ok := d.pages[url]
	if !ok {
		return "", fmt.Errorf("navigate %s: no such page", url)
	}
	return html, nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

func (d *fakeDriver) Close() {}

type fakeFactory struct {
	pages map[string]string
	err   error
}

func (f *fakeFactory) NewDriver(ctx context.Context) (crawler.Driver, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeDriver{pages: f.pages}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	docs     []crawler.Document
	hits     []crawler.SearchHit
	sessions []postgres.ChatSession
	messages map[string][]postgres.ChatMessage
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: map[string][]postgres.ChatMessage{}}
}

func (s *fakeStore) UpsertPages(ctx context.Context, docs []crawler.Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
	return len(docs), nil
}

func (s *fakeStore) Search(ctx context.Context, query string, limit int) ([]crawler.SearchHit, error) {
	return s.hits, nil
}

func (s *fakeStore) DeleteSite(ctx context.Context, siteURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, siteURL)
	return nil
}

func (s *fakeStore) CrawlHistory(ctx context.Context) ([]postgres.SiteRecord, error) {
	return []postgres.SiteRecord{{URL: "https://example.com", CreatedAt: 100, PageCount: 2}}, nil
}

func (s *fakeStore) CreateChatSession(ctx context.Context, targetSite, title string) (postgres.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := postgres.ChatSession{ID: uuid.NewString(), TargetSite: targetSite, Title: title, CreatedAt: 100}
	s.sessions = append(s.sessions, session)
	return session, nil
}

func (s *fakeStore) SessionValid(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.ID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) AddChatMessage(ctx context.Context, sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], postgres.ChatMessage{
		ID: uuid.NewString(), SessionID: sessionID, Role: role, Content: content, CreatedAt: 100,
	})
	return nil
}

func (s *fakeStore) ChatSessions(ctx context.Context) ([]postgres.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]postgres.ChatSession(nil), s.sessions...), nil
}

func (s *fakeStore) ChatMessages(ctx context.Context, sessionID string) ([]postgres.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]postgres.ChatMessage(nil), s.messages[sessionID]...), nil
}

type fakeAnswers struct {
	answer string
	chunks []string
}

func (a *fakeAnswers) Generate(ctx context.Context, query string, items []crawler.ContextItem) (string, error) {
	return a.answer, nil
}

func (a *fakeAnswers) GenerateStream(ctx context.Context, query string, items []crawler.ContextItem, history []crawler.ChatTurn, fn func(chunk string) error) error {
	for _, chunk := range a.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

type fakeSearcher struct {
	results []search.Result
}

func (s *fakeSearcher) Search(ctx context.Context, query string) []search.Result {
	return s.results
}

func sitePages() map[string]string {
	home := `<html><head><title>Home</title></head>
		<body><p>welcome to widgets</p><a href="/pricing">pricing</a></body></html>`
	return map[string]string{
		"https://example.test":  home,
		"https://example.test/": home,
		"https://example.test/pricing": `<html><head><title>Pricing</title></head>
			<body><p>widgets cost ten dollars</p></body></html>`,
	}
}

type serverOptions struct {
	factory  crawler.DriverFactory
	store    Store
	answers  crawler.AnswerService
	searcher live.Searcher
}

func newTestServer(t *testing.T, opts serverOptions) *Server {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	orch := crawler.NewOrchestrator(opts.factory, nil, nil)

	var ctrl *live.Controller
	if opts.factory != nil && opts.searcher != nil {
		pool := bridge.NewPool(2, nil)
		t.Cleanup(pool.Close)
		ctrl = live.NewController(opts.factory, pool, opts.searcher, opts.answers, live.Config{
			Heartbeat:    5 * time.Millisecond,
			FramesPerSec: 1000,
		}, nil)
	}

	return NewServer(orch, opts.store, opts.answers, opts.searcher, ctrl, cfg, nil)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestLiveSearch(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{
		factory:  &fakeFactory{},
		searcher: &fakeSearcher{results: []search.Result{{Title: "Hit", URL: "https://a.test", Snippet: "snip"}}},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/search/live?q=widgets", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Query   string          `json:"query"`
		Results []search.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "widgets", resp.Query)
	require.Len(t, resp.Results, 1)
}

func TestLiveSearchMissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/search/live", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSiteSearchCrawlsRanksAndStores(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := newTestServer(t, serverOptions{
		factory: &fakeFactory{pages: sitePages()},
		store:   store,
		answers: &fakeAnswers{answer: "Widgets cost ten dollars."},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/app/search/site?q=widgets&url=https://example.test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "widgets", resp.Query)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "Widgets cost ten dollars.", resp.AIAnswer)
	require.Equal(t, 1, resp.Stored)
	require.Len(t, store.docs, 1)
}

func TestCrawlEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{pages: sitePages()}})

	body, err := json.Marshal(crawlRequest{
		URLs:           []string{"https://example.test"},
		MaxPages:       2,
		Query:          "widgets",
		RestrictDomain: true,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app/crawl", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []crawler.Document `json:"documents"`
		Count     int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
}

func TestCrawlRequiresURLs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app/crawl", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeMarkdownFormat(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{pages: sitePages()}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app/scrape?format=md",
		strings.NewReader(`{"url":"https://example.test"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	require.Contains(t, rec.Body.String(), "welcome to widgets")
}

func TestScrapeRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{pages: sitePages()}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app/scrape?format=xml",
		strings.NewReader(`{"url":"https://example.test"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpointsRequireStore(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{}})

	for _, path := range []string{"/app/history/crawls", "/app/history/chats"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestCrawlHistoryAndDelete(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := newTestServer(t, serverOptions{factory: &fakeFactory{}, store: store})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/history/crawls", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://example.com")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/app/history/crawls?url=https://example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"https://example.com"}, store.deleted)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/app/history/crawls", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadSearchMarkdown(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{pages: sitePages()}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/app/search/download?q=widgets&url=https://example.test&format=md", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	require.Contains(t, rec.Body.String(), "# Search Results: widgets")
}

func TestChatSiteStreamsAnswer(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.hits = []crawler.SearchHit{
		{ID: "doc-1", ParentURL: "https://example.test", Content: "widgets cost ten dollars"},
	}
	s := newTestServer(t, serverOptions{
		factory: &fakeFactory{},
		store:   store,
		answers: &fakeAnswers{chunks: []string{"Ten ", "dollars."}},
	})

	body := `{"url":"https://example.test","message":"how much do widgets cost"}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app/chat/site", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	var types []string
	var chunks []string
	var sessionID string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev chatEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, ev.Type)
		if ev.Type == "chunk" {
			chunks = append(chunks, ev.Content)
		}
		if ev.Type == "session" {
			sessionID = ev.SessionID
		}
	}
	require.Equal(t, []string{"session", "chunk", "chunk", "done"}, types)
	require.Equal(t, "Ten dollars.", strings.Join(chunks, ""))
	require.NotEmpty(t, sessionID)

	messages := store.messages[sessionID]
	require.Len(t, messages, 2)
	require.Equal(t, "user", messages[0].Role)
	require.Equal(t, "assistant", messages[1].Role)
	require.Equal(t, "Ten dollars.", messages[1].Content)

	// The session is filed under the canonical site identity.
	require.Len(t, store.sessions, 1)
	require.Equal(t, "https://example.test/", store.sessions[0].TargetSite)
}

func TestChatSiteRequiresMessage(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, serverOptions{factory: &fakeFactory{}, store: newFakeStore(), answers: &fakeAnswers{}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app/chat/site", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// Package postgres provides the Postgres-backed document and chat store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitescout/sitescout/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store persists crawled documents and chat history in Postgres. It
// implements crawler.DocumentStore.
type Store struct {
	pool db
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// siteKey is the canonical sites.url value a document is filed under. Seed
// pages carry no parent and anchor their own site.
func siteKey(doc crawler.Document) string {
	if doc.ParentURL == "" {
		return crawler.NormalizeSiteURL(doc.ID)
	}
	return crawler.NormalizeSiteURL(doc.ParentURL)
}

// UpsertPages stores documents, creating site rows for their parents as
// needed. Parent URLs are reduced to their site identity so equivalent
// spellings share one site row. A document stored twice keeps its identity:
// the newer content and child list replace the old. Returns the number of
// documents stored.
func (s *Store) UpsertPages(ctx context.Context, docs []crawler.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		site := siteKey(doc)
		if site == "" || seen[site] {
			continue
		}
		seen[site] = true
		_, err := tx.Exec(ctx,
			`INSERT INTO sites (url, created_at) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING`,
			site, doc.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert site %s: %w", site, err)
		}
	}

	stored := 0
	for _, doc := range docs {
		children := doc.ChildrenURLs
		if children == nil {
			children = []string{}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO pages (id, parent_url, children_urls, content, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
				parent_url = EXCLUDED.parent_url,
				children_urls = EXCLUDED.children_urls,
				content = EXCLUDED.content,
				created_at = EXCLUDED.created_at`,
			doc.ID, siteKey(doc), children, doc.Content, doc.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert page %s: %w", doc.ID, err)
		}
		stored++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return stored, nil
}

// Search runs a full-text query over stored pages, best match first. The
// snippet is a ts_headline excerpt around the match.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]crawler.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, parent_url, children_urls, content, created_at,
			ts_headline('english', content, websearch_to_tsquery('english', $1),
				'MaxWords=40, MinWords=15') AS snippet
		 FROM pages
		 WHERE search_vector @@ websearch_to_tsquery('english', $1)
		 ORDER BY ts_rank(search_vector, websearch_to_tsquery('english', $1)) DESC
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	hits := []crawler.SearchHit{}
	for rows.Next() {
		var hit crawler.SearchHit
		if err := rows.Scan(&hit.ID, &hit.ParentURL, &hit.ChildrenURLs, &hit.Content, &hit.CreatedAt, &hit.Snippet); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

// DeleteSite removes a site by any equivalent spelling of its URL; pages and
// chat sessions cascade.
func (s *Store) DeleteSite(ctx context.Context, siteURL string) error {
	key := crawler.NormalizeSiteURL(siteURL)
	if _, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE url = $1`, key); err != nil {
		return fmt.Errorf("delete site %s: %w", key, err)
	}
	return nil
}

// SiteRecord is one entry in the crawl history listing.
type SiteRecord struct {
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
	PageCount int    `json:"pageCount"`
}

// CrawlHistory lists crawled sites, newest first.
func (s *Store) CrawlHistory(ctx context.Context) ([]SiteRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.url, s.created_at, count(p.id)
		 FROM sites s LEFT JOIN pages p ON p.parent_url = s.url
		 GROUP BY s.url, s.created_at
		 ORDER BY s.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list crawl history: %w", err)
	}
	defer rows.Close()

	records := []SiteRecord{}
	for rows.Next() {
		var rec SiteRecord
		if err := rows.Scan(&rec.URL, &rec.CreatedAt, &rec.PageCount); err != nil {
			return nil, fmt.Errorf("scan crawl history: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl history: %w", err)
	}
	return records, nil
}

// ChatSession is a stored conversation bound to one crawled site.
type ChatSession struct {
	ID         string `json:"id"`
	TargetSite string `json:"targetSite"`
	Title      string `json:"title"`
	CreatedAt  int64  `json:"createdAt"`
}

// ChatMessage is one stored turn in a chat session.
type ChatMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// CreateChatSession opens a conversation for a crawled site. The site row
// must already exist; the target is reduced to its site identity to match it.
func (s *Store) CreateChatSession(ctx context.Context, targetSite, title string) (ChatSession, error) {
	session := ChatSession{
		ID:         uuid.NewString(),
		TargetSite: crawler.NormalizeSiteURL(targetSite),
		Title:      title,
		CreatedAt:  time.Now().Unix(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, target_site, title, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.TargetSite, session.Title, session.CreatedAt,
	)
	if err != nil {
		return ChatSession{}, fmt.Errorf("create chat session: %w", err)
	}
	return session, nil
}

// SessionValid reports whether a chat session exists.
func (s *Store) SessionValid(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chat session: %w", err)
	}
	return exists, nil
}

// AddChatMessage appends a turn to a session.
func (s *Store) AddChatMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), sessionID, role, content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("add chat message: %w", err)
	}
	return nil
}

// ChatSessions lists sessions, newest first.
func (s *Store) ChatSessions(ctx context.Context) ([]ChatSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_site, title, created_at FROM chat_sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ChatSession{}
	for rows.Next() {
		var cs ChatSession
		if err := rows.Scan(&cs.ID, &cs.TargetSite, &cs.Title, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat sessions: %w", err)
	}
	return sessions, nil
}

// ChatMessages lists a session's turns in order.
func (s *Store) ChatMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return messages, nil
}

// Package api exposes the HTTP interface for the crawl and search service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sitescout/sitescout/internal/config"
	"github.com/sitescout/sitescout/internal/crawler"
	"github.com/sitescout/sitescout/internal/live"
	"github.com/sitescout/sitescout/internal/store/postgres"
)

// Store is the persistence surface the handlers need. It is satisfied by
// *postgres.Store; a nil Store runs the service without history or chat.
type Store interface {
	crawler.DocumentStore
	CrawlHistory(ctx context.Context) ([]postgres.SiteRecord, error)
	CreateChatSession(ctx context.Context, targetSite, title string) (postgres.ChatSession, error)
	SessionValid(ctx context.Context, sessionID string) (bool, error)
	AddChatMessage(ctx context.Context, sessionID, role, content string) error
	ChatSessions(ctx context.Context) ([]postgres.ChatSession, error)
	ChatMessages(ctx context.Context, sessionID string) ([]postgres.ChatMessage, error)
}

// Server wires HTTP handlers to the orchestrator, store and answer service.
type Server struct {
	router   chi.Router
	orch     *crawler.Orchestrator
	store    Store
	answers  crawler.AnswerService
	searcher live.Searcher
	liveCtrl *live.Controller
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch *crawler.Orchestrator,
	store Store,
	answers crawler.AnswerService,
	searcher live.Searcher,
	liveCtrl *live.Controller,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:     orch,
		store:    store,
		answers:  answers,
		searcher: searcher,
		liveCtrl: liveCtrl,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/app", func(r chi.Router) {
		// Crawl-backed routes can run for minutes; streaming routes manage
		// their own lifetimes and cannot sit behind a TimeoutHandler.
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(5 * time.Minute))
			r.Get("/search", s.autonomousSearch)
			r.Get("/search/live", s.liveSearch)
			r.Get("/search/site", s.siteSearch)
			r.Get("/search/download", s.downloadSearch)
			r.Post("/crawl", s.crawl)
			r.Post("/scrape", s.scrape)
			r.Route("/history", func(r chi.Router) {
				r.Get("/chats", s.listChatSessions)
				r.Get("/chats/{session_id}", s.listChatMessages)
				r.Get("/crawls", s.listCrawls)
				r.Delete("/crawls", s.deleteCrawl)
			})
		})
		r.Post("/chat/site", s.chatSite)
	})

	r.Get("/ws/smartsearch", s.smartSearchWS)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

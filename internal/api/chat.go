package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sitescout/sitescout/internal/crawler"
)

const chatContextHits = 5

type chatRequest struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Message   string `json:"message"`
}

type chatEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
}

// chatSite answers a question about a crawled site over SSE. Events:
// session (the session id), chunk (answer text), done, error.
func (s *Server) chatSite(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "chat requires persistence")
		return
	}
	if s.answers == nil {
		writeError(w, http.StatusServiceUnavailable, "answer service is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	req.Message = strings.TrimSpace(req.Message)

	targetSite, sessionID, status, errMsg := s.resolveChatSession(r, req)
	if errMsg != "" {
		writeError(w, status, errMsg)
		return
	}

	history, err := s.chatHistory(r, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.AddChatMessage(r.Context(), sessionID, "user", req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := s.chatContext(r, req.Message, targetSite)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendEvent := func(ev chatEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}

	sendEvent(chatEvent{Type: "session", SessionID: sessionID})

	var full strings.Builder
	err = s.answers.GenerateStream(r.Context(), req.Message, items, history, func(chunk string) error {
		full.WriteString(chunk)
		sendEvent(chatEvent{Type: "chunk", Content: chunk})
		return nil
	})
	if err != nil {
		s.logger.Warn("chat stream failed", zap.String("session_id", sessionID), zap.Error(err))
		sendEvent(chatEvent{Type: "error", Message: "answer generation failed"})
		return
	}

	if err := s.store.AddChatMessage(r.Context(), sessionID, "assistant", full.String()); err != nil {
		s.logger.Warn("assistant message storage failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	sendEvent(chatEvent{Type: "done"})
}

// resolveChatSession validates an existing session or opens a new one for
// the given site. Returns the target site, session id, and on failure an
// HTTP status with message.
func (s *Server) resolveChatSession(r *http.Request, req chatRequest) (targetSite, sessionID string, status int, errMsg string) {
	if req.SessionID != "" {
		ok, err := s.store.SessionValid(r.Context(), req.SessionID)
		if err != nil {
			return "", "", http.StatusInternalServerError, err.Error()
		}
		if !ok {
			return "", "", http.StatusNotFound, "unknown chat session"
		}
		sessions, err := s.store.ChatSessions(r.Context())
		if err != nil {
			return "", "", http.StatusInternalServerError, err.Error()
		}
		for _, session := range sessions {
			if session.ID == req.SessionID {
				return session.TargetSite, session.ID, 0, ""
			}
		}
		return "", req.SessionID, 0, ""
	}

	site := strings.TrimSpace(req.URL)
	if site == "" {
		return "", "", http.StatusBadRequest, "url is required for a new chat session"
	}
	// Use the same canonical site identity the store keys sites by so the
	// session's site reference resolves.
	site = crawler.NormalizeSiteURL(site)

	title := req.Message
	if len(title) > chatTitleLimit {
		title = title[:chatTitleLimit]
	}
	session, err := s.store.CreateChatSession(r.Context(), site, title)
	if err != nil {
		return "", "", http.StatusInternalServerError, err.Error()
	}
	return session.TargetSite, session.ID, 0, ""
}

// chatHistory loads prior turns of a session as answer-service history.
func (s *Server) chatHistory(r *http.Request, sessionID string) ([]crawler.ChatTurn, error) {
	messages, err := s.store.ChatMessages(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	turns := make([]crawler.ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, crawler.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

// chatContext retrieves indexed pages matching the question, preferring the
// session's target site.
func (s *Server) chatContext(r *http.Request, query, targetSite string) []crawler.ContextItem {
	hits, err := s.store.Search(r.Context(), query, chatContextHits)
	if err != nil {
		s.logger.Warn("chat context search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	items := make([]crawler.ContextItem, 0, len(hits))
	for _, hit := range hits {
		if targetSite != "" && crawler.NormalizeSiteURL(hit.ParentURL) != targetSite {
			continue
		}
		items = append(items, crawler.ContextItem{
			URL:     hit.ParentURL,
			Title:   hit.ID,
			Content: hit.Content,
		})
	}
	if len(items) == 0 {
		// Nothing site-specific matched; fall back to the global hits.
		for _, hit := range hits {
			items = append(items, crawler.ContextItem{URL: hit.ParentURL, Title: hit.ID, Content: hit.Content})
		}
	}
	return items
}

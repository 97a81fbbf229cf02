package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/chat"
	"github.com/trust-ai-analyzer/internal/history"
	"github.com/trust-ai-analyzer/internal/translate"
	"github.com/trust-ai-analyzer/internal/validation"
)

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Kind  string              `json:"kind"`
	Text  string              `json:"text,omitempty"`
	Files []validation.Upload `json:"files,omitempty"`
}

// AnalyzeResponse carries the result and the handles for follow-up work.
type AnalyzeResponse struct {
	Result    *analysis.Result `json:"result"`
	HistoryID string           `json:"historyId,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
}

// TranslateRequest is the body of POST /api/translate.
type TranslateRequest struct {
	Summary    string             `json:"summary"`
	Highlights []analysis.Insight `json:"highlights,omitempty"`
	Language   string             `json:"language"`
}

// TranslateResponse is the translated text.
type TranslateResponse struct {
	Translation string `json:"translation"`
	Language    string `json:"language"`
}

// SessionResponse identifies a chat session and its visible transcript.
type SessionResponse struct {
	SessionID string                 `json:"sessionId"`
	Messages  []analysis.ChatMessage `json:"messages"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind := analysis.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
	areq := analysis.Request{Kind: kind, Text: req.Text}
	if len(req.Files) > 0 {
		files, err := s.deps.Validator.Files(kind, req.Files)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		areq.Files = files
	}

	result, err := s.deps.Analyzer.Analyze(r.Context(), areq)
	if err != nil {
		status, msg := analyzeStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("Analysis failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	resp := AnalyzeResponse{Result: result}
	item, err := s.deps.History.Add(r.Context(), result)
	if err != nil {
		s.logger.Warn("Failed to record history", zap.Error(err))
	} else {
		resp.HistoryID = item.ID
	}

	session, err := s.deps.Seeder.SeedChat(result)
	if err != nil {
		s.logger.Warn("Failed to open follow-up chat", zap.Error(err))
	} else {
		resp.SessionID = s.sessions.add(&chatSession{
			session:   session,
			historyID: resp.HistoryID,
			hidden:    len(session.History()),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Summary) == "" || strings.TrimSpace(req.Language) == "" {
		writeError(w, http.StatusBadRequest, "summary and language are required")
		return
	}

	text, err := s.deps.Translator.Translate(r.Context(), req.Summary, req.Highlights, req.Language)
	if err != nil {
		if errors.Is(err, translate.ErrTranslate) {
			writeError(w, http.StatusBadGateway, translate.UserMessage)
			return
		}
		writeError(w, http.StatusInternalServerError, translate.UserMessage)
		return
	}
	writeJSON(w, http.StatusOK, TranslateResponse{Translation: text, Language: req.Language})
}

func (s *Server) handleGeneralChat(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Seeder.GeneralSession()
	if err != nil {
		s.logger.Error("Failed to open general chat", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to start the assistant chat.")
		return
	}
	id := s.sessions.add(&chatSession{session: session})
	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: id,
		Messages:  []analysis.ChatMessage{{Role: analysis.RoleModel, Text: chat.GeneralGreeting}},
	})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.History.List(r.Context()))
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.History.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Clear(r.Context()); err != nil {
		s.logger.Error("Failed to clear history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeChat reopens the follow-up conversation of a history item.
func (s *Server) handleResumeChat(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.History.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}

	session, err := s.deps.Seeder.Resume(&item.Result, item.ChatHistory)
	if err != nil {
		s.logger.Error("Failed to resume chat", zap.String("history_id", item.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to resume the chat.")
		return
	}
	cs := &chatSession{
		session:   session,
		historyID: item.ID,
		hidden:    len(session.History()) - len(item.ChatHistory),
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: s.sessions.add(cs), Messages: cs.visible()})
}

func (s *Server) writeHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "History item not found")
		return
	}
	s.logger.Error("History lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Failed to read history")
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Cache.Clear(r.Context()); err != nil {
		s.logger.Error("Failed to clear cache", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": s.deps.Cache.Len(),
		"metrics": s.deps.Cache.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"sessions": s.sessions.len(),
	})
}

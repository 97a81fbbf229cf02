// Package server exposes the analyzer over HTTP and streams follow-up chat
// over websockets.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/analyzer"
	"github.com/trust-ai-analyzer/internal/cache"
	"github.com/trust-ai-analyzer/internal/chat"
	"github.com/trust-ai-analyzer/internal/content"
	"github.com/trust-ai-analyzer/internal/history"
	"github.com/trust-ai-analyzer/internal/jsonx"
	"github.com/trust-ai-analyzer/internal/translate"
	"github.com/trust-ai-analyzer/internal/validation"
)

// Deps are the services behind the API.
type Deps struct {
	Analyzer   *analyzer.Service
	Cache      *cache.Cache
	Seeder     *chat.Seeder
	History    *history.Store
	Translator *translate.Service
	Validator  *validation.FileValidator
}

// Options configures the Server.
type Options struct {
	MaxSessions      int           // Live chat sessions kept (default: 256)
	SessionTTL       time.Duration // Idle session lifetime (default: 1 hour)
	MaxUploadBytes   int64         // Request body limit (default: 32 MiB)
	AllowedOrigins   []string      // Websocket origins; empty allows any
	AnalyzePerMinute int           // Analyses per client per minute; 0 disables
}

// Server provides the HTTP and websocket endpoints.
type Server struct {
	deps     Deps
	opts     Options
	sessions *sessionRegistry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New creates a Server.
func New(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if deps.Validator == nil {
		deps.Validator = validation.New(0)
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		sessions: newSessionRegistry(opts.MaxSessions, opts.SessionTTL),
		logger:   logger.Named("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetupRoutes registers every endpoint on r.
func (s *Server) SetupRoutes(r *mux.Router) {
	r.Use(RequestID(), Recovery(s.logger), Logging(s.logger), SecurityHeaders())

	api := r.PathPrefix("/api").Subrouter()
	api.Use(MaxBytes(s.opts.MaxUploadBytes))

	var analyze http.Handler = http.HandlerFunc(s.handleAnalyze)
	if s.opts.AnalyzePerMinute > 0 {
		analyze = NewRateLimiter(s.opts.AnalyzePerMinute, time.Minute).Middleware()(analyze)
	}
	api.Handle("/analyze", analyze).Methods("POST")
	api.HandleFunc("/translate", s.handleTranslate).Methods("POST")
	api.HandleFunc("/general-chat", s.handleGeneralChat).Methods("POST")

	api.HandleFunc("/history", s.handleListHistory).Methods("GET")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")
	api.HandleFunc("/history/{id}", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/history/{id}/chat", s.handleResumeChat).Methods("POST")

	api.HandleFunc("/cache", s.handleClearCache).Methods("DELETE")
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods("GET")

	r.HandleFunc("/ws/chat/{sessionId}", s.handleWebSocketChat)
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	_ = r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		s.logger.Debug("Route registered", zap.String("path", path), zap.Strings("methods", methods))
		return nil
	})
}

// Handler returns a router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.SetupRoutes(r)
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonx.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	return jsonx.NewDecoder(r.Body).Decode(v)
}

// analyzeStatus maps an analysis failure to its HTTP status and user message.
func analyzeStatus(err error) (int, string) {
	var aerr *analyzer.Error
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, content.ErrUnsupportedDocument):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.As(err, &aerr):
		return http.StatusBadGateway, aerr.Error()
	case errors.Is(err, analysis.ErrFingerprint):
		return http.StatusUnprocessableEntity, "Failed to read the uploaded files."
	}
	return http.StatusInternalServerError, "Failed to analyze content."
}

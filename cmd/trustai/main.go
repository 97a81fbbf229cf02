package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai/router"
	"github.com/trust-ai-analyzer/internal/analyzer"
	"github.com/trust-ai-analyzer/internal/cache"
	"github.com/trust-ai-analyzer/internal/chat"
	"github.com/trust-ai-analyzer/internal/config"
	"github.com/trust-ai-analyzer/internal/content"
	"github.com/trust-ai-analyzer/internal/history"
	"github.com/trust-ai-analyzer/internal/kvstore"
	"github.com/trust-ai-analyzer/internal/parser"
	"github.com/trust-ai-analyzer/internal/server"
	"github.com/trust-ai-analyzer/internal/translate"
	"github.com/trust-ai-analyzer/internal/validation"
)

// spaHandler serves the built frontend, falling back to index.html for
// client-side routes.
type spaHandler struct {
	staticDir http.FileSystem
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "..") {
		http.NotFound(w, r)
		return
	}

	file, err := h.staticDir.Open(strings.TrimPrefix(r.URL.Path, "/"))
	if err == nil {
		stat, err := file.Stat()
		file.Close()
		if err == nil && !stat.IsDir() {
			http.FileServer(h.staticDir).ServeHTTP(w, r)
			return
		}
	}

	r.URL.Path = "/"
	http.FileServer(h.staticDir).ServeHTTP(w, r)
}

func newLogger(production bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if production {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (kvstore.Store, func(), error) {
	if cfg.Backend != "redis" {
		logger.Info("Using in-memory store; cache and history will not survive restarts")
		return kvstore.NewMemoryStore(), func() {}, nil
	}
	rs, err := kvstore.NewRedisStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { _ = rs.Close() }, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := newLogger(false)
		boot.Fatal("Invalid configuration", zap.Error(err))
	}

	logger := newLogger(cfg.IsProduction())
	defer logger.Sync()

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	models, err := router.New(&router.Config{
		GeminiKey:       cfg.Provider.GeminiAPIKey,
		OpenAIKey:       cfg.Provider.OpenAIAPIKey,
		GeminiBaseURL:   cfg.Provider.GeminiBaseURL,
		OpenAIBaseURL:   cfg.Provider.OpenAIBaseURL,
		AnalyzeModel:    cfg.Provider.AnalyzeModel,
		ChatModel:       cfg.Provider.ChatModel,
		DefaultProvider: router.Provider(strings.ToLower(cfg.Provider.Name)),
		RequestTimeout:  cfg.Provider.RequestTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model providers", zap.Error(err))
	}
	logger.Info("Model providers ready",
		zap.Any("available", models.GetProviders()),
		zap.String("default", string(models.GetDefaultProvider())))

	defaultMode, modes, err := cfg.ParsingModes()
	if err != nil {
		logger.Fatal("Invalid parsing configuration", zap.Error(err))
	}
	style, err := chat.ParseStyle(cfg.Chat.Style)
	if err != nil {
		logger.Fatal("Invalid chat configuration", zap.Error(err))
	}

	analysisCache := cache.New(ctx, store, cache.Options{
		Capacity:  cfg.Cache.Capacity,
		KeyPrefix: cfg.Cache.KeyPrefix,
	}, logger)

	svc := analyzer.New(content.NewFileReader(nil), models, analysisCache,
		parser.NewRegistry(defaultMode, modes),
		analyzer.Options{
			MaxDocuments:     cfg.Analysis.MaxDocuments,
			DisableGrounding: cfg.Analysis.DisableGrounding,
			RawDocumentParts: cfg.Analysis.RawDocumentParts,
			Model:            cfg.Provider.AnalyzeModel,
		}, logger)

	translator, err := translate.New(models, translate.Options{
		MaxEntries: cfg.Translate.CacheSize,
		TTL:        cfg.Translate.TTL,
		Model:      cfg.Translate.Model,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize translator", zap.Error(err))
	}
	defer translator.Close()

	api := server.New(server.Deps{
		Analyzer:   svc,
		Cache:      analysisCache,
		Seeder:     chat.NewSeeder(models, style, logger),
		History:    history.New(store, history.Options{MaxItems: cfg.History.MaxItems}, logger),
		Translator: translator,
		Validator:  validation.New(int(cfg.Server.MaxUploadBytes)),
	}, server.Options{
		MaxUploadBytes:   cfg.Server.MaxUploadBytes * 2,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AnalyzePerMinute: cfg.Server.AnalyzePerMinute,
	}, logger)

	r := mux.NewRouter()
	api.SetupRoutes(r)

	if cfg.Server.StaticDir != "" {
		r.PathPrefix("/").Handler(&spaHandler{staticDir: http.Dir(cfg.Server.StaticDir)})
		logger.Info("Serving static files", zap.String("dir", cfg.Server.StaticDir))
	}

	logger.Info("CORS origins", zap.Strings("origins", cfg.Server.AllowedOrigins))
	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", server.RequestIDHeader}),
		handlers.ExposedHeaders([]string{server.RequestIDHeader}),
		handlers.AllowCredentials(),
	)

	srv := &http.Server{
		Handler:      corsObj(r),
		Addr:         cfg.Server.Addr,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	go func() {
		logger.Info("Trust AI API listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup failed", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown error", zap.Error(err))
	}
}

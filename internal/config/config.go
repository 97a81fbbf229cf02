// Package config loads the service configuration from an optional YAML file
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/cache"
	"github.com/trust-ai-analyzer/internal/chat"
	"github.com/trust-ai-analyzer/internal/parser"
)

// DefaultPath is read when TRUSTAI_CONFIG is unset.
const DefaultPath = "config.yaml"

// Config is the full service configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Cache     CacheConfig     `yaml:"cache"`
	Store     StoreConfig     `yaml:"store"`
	Parsing   ParsingConfig   `yaml:"parsing"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Chat      ChatConfig      `yaml:"chat"`
	History   HistoryConfig   `yaml:"history"`
	Translate TranslateConfig `yaml:"translate"`
}

type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	StaticDir        string        `yaml:"static_dir"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	// AnalyzePerMinute bounds analyses per client; 0 disables the limit.
	AnalyzePerMinute int           `yaml:"analyze_per_minute"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
}

type ProviderConfig struct {
	Name           string        `yaml:"name"`
	GeminiAPIKey   string        `yaml:"gemini_api_key"`
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	GeminiBaseURL  string        `yaml:"gemini_base_url"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	AnalyzeModel   string        `yaml:"analyze_model"`
	ChatModel      string        `yaml:"chat_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type CacheConfig struct {
	Capacity  int    `yaml:"capacity"`
	KeyPrefix string `yaml:"key_prefix"`
}

type StoreConfig struct {
	Backend  string `yaml:"backend"` // memory | redis
	RedisURL string `yaml:"redis_url"`
}

type ParsingConfig struct {
	Default string            `yaml:"default"`
	Modes   map[string]string `yaml:"modes"` // kind -> structured | marked
}

type AnalysisConfig struct {
	MaxDocuments     int  `yaml:"max_documents"`
	DisableGrounding bool `yaml:"disable_grounding"`
	RawDocumentParts bool `yaml:"raw_document_parts"`
}

type ChatConfig struct {
	Style string `yaml:"style"` // html | markdown
}

type HistoryConfig struct {
	MaxItems int `yaml:"max_items"`
}

type TranslateConfig struct {
	CacheSize int64         `yaml:"cache_size"`
	TTL       time.Duration `yaml:"ttl"`
	Model     string        `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Addr:           "0.0.0.0:9090",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			MaxUploadBytes: 20 << 20,
			WriteTimeout:   120 * time.Second,
			ReadTimeout:    60 * time.Second,
		},
		Provider: ProviderConfig{RequestTimeout: 180 * time.Second},
		Cache:    CacheConfig{Capacity: cache.MaxSize, KeyPrefix: cache.DefaultKeyPrefix},
		Store:    StoreConfig{Backend: "memory"},
		Parsing:  ParsingConfig{Default: string(parser.ModeStructured)},
		Analysis: AnalysisConfig{MaxDocuments: analysis.DefaultMaxDocuments, RawDocumentParts: true},
		Chat:     ChatConfig{Style: string(chat.StyleHTML)},
		Translate: TranslateConfig{
			CacheSize: 1000,
			TTL:       time.Hour,
		},
	}
}

// Load reads the file named by TRUSTAI_CONFIG (or DefaultPath), applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load() (*Config, error) {
	return LoadFile(getEnv("TRUSTAI_CONFIG", DefaultPath))
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Env = getEnv("TRUSTAI_ENV", c.Env)
	c.Provider.Name = getEnv("TRUSTAI_PROVIDER", c.Provider.Name)
	c.Provider.GeminiAPIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", c.Provider.GeminiAPIKey))
	c.Provider.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.Provider.OpenAIAPIKey)

	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		c.Store.RedisURL = redisURL
		if os.Getenv("TRUSTAI_STORE") == "" {
			c.Store.Backend = "redis"
		}
	}
	c.Store.Backend = getEnv("TRUSTAI_STORE", c.Store.Backend)

	if p := os.Getenv("PORT"); p != "" {
		c.Server.Addr = ":" + p
	}
	if origins := os.Getenv("TRUSTAI_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Server.StaticDir = getEnv("STATIC_DIR", c.Server.StaticDir)
	c.Analysis.MaxDocuments = getEnvInt("TRUSTAI_MAX_DOCUMENTS", c.Analysis.MaxDocuments)
	c.Server.AnalyzePerMinute = getEnvInt("TRUSTAI_ANALYZE_PER_MINUTE", c.Server.AnalyzePerMinute)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ParsingModes resolves the per-kind parsing modes.
func (c *Config) ParsingModes() (parser.Mode, map[analysis.Kind]parser.Mode, error) {
	def, err := parser.ParseMode(c.Parsing.Default)
	if err != nil {
		return "", nil, err
	}
	modes := make(map[analysis.Kind]parser.Mode, len(c.Parsing.Modes))
	for k, v := range c.Parsing.Modes {
		kind := analysis.Kind(strings.ToLower(k))
		if !kind.Valid() {
			return "", nil, fmt.Errorf("parsing.modes: unknown kind %q", k)
		}
		m, err := parser.ParseMode(v)
		if err != nil {
			return "", nil, fmt.Errorf("parsing.modes.%s: %w", k, err)
		}
		modes[kind] = m
	}
	return def, modes, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.GeminiAPIKey == "" && c.Provider.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY (or API_KEY) or OPENAI_API_KEY is required"))
	}
	switch strings.ToLower(c.Provider.Name) {
	case "", "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("provider.name: unknown provider %q", c.Provider.Name))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if _, _, err := c.ParsingModes(); err != nil {
		errs = append(errs, err)
	}
	if c.Analysis.MaxDocuments <= 0 {
		errs = append(errs, fmt.Errorf("analysis.max_documents must be positive, got %d", c.Analysis.MaxDocuments))
	}
	if _, err := chat.ParseStyle(c.Chat.Style); err != nil {
		errs = append(errs, err)
	}
	if c.History.MaxItems < 0 {
		errs = append(errs, fmt.Errorf("history.max_items must not be negative, got %d", c.History.MaxItems))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

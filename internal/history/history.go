// Package history keeps past analyses and their follow-up conversations in
// the key-value store, newest first.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
	"github.com/trust-ai-analyzer/internal/kvstore"
)

// DefaultKey is the store key holding the encoded history.
const DefaultKey = "trust_ai_history"

// ErrNotFound is returned for an unknown item ID.
var ErrNotFound = errors.New("history item not found")

// Options configures a Store.
type Options struct {
	Key      string // Store key (default: DefaultKey)
	MaxItems int    // 0 keeps every item
}

// Store is the analysis history. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	kv       kvstore.Store
	key      string
	maxItems int
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Store.
func New(kv kvstore.Store, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	return &Store{
		kv:       kv,
		key:      opts.Key,
		maxItems: opts.MaxItems,
		now:      time.Now,
		logger:   logger.Named("history"),
	}
}

// Add records result as the newest item and returns it. The ID is the
// creation timestamp.
func (s *Store) Add(ctx context.Context, result *analysis.Result) (*analysis.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.read(ctx)
	ts := s.now().UTC()
	if len(items) > 0 && !ts.After(items[0].Timestamp) {
		ts = items[0].Timestamp.Add(time.Nanosecond)
	}

	stored := *result
	stored.FromCache = false
	item := analysis.HistoryItem{
		ID:          ts.Format(time.RFC3339Nano),
		Timestamp:   ts,
		Result:      stored,
		ChatHistory: []analysis.ChatMessage{},
	}

	items = append([]analysis.HistoryItem{item}, items...)
	if s.maxItems > 0 && len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	if err := s.write(ctx, items); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns every item, newest first.
func (s *Store) List(ctx context.Context) []analysis.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Get returns the item with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*analysis.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.read(ctx) {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// UpdateChat replaces the chat transcript of an item.
func (s *Store) UpdateChat(ctx context.Context, id string, messages []analysis.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.read(ctx)
	for i := range items {
		if items[i].ID == id {
			items[i].ChatHistory = append([]analysis.ChatMessage{}, messages...)
			return s.write(ctx, items)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Clear removes every item.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// read loads the items. Unreadable data is treated as an empty history.
func (s *Store) read(ctx context.Context) []analysis.HistoryItem {
	raw, ok, err := s.kv.GetString(ctx, s.key)
	if err != nil {
		s.logger.Warn("Failed to read history", zap.Error(err))
		return []analysis.HistoryItem{}
	}
	if !ok || raw == "" {
		return []analysis.HistoryItem{}
	}

	var items []analysis.HistoryItem
	if err := jsonx.UnmarshalFromString(raw, &items); err != nil {
		s.logger.Warn("Discarding corrupt history", zap.Error(err))
		return []analysis.HistoryItem{}
	}
	if items == nil {
		items = []analysis.HistoryItem{}
	}
	return items
}

func (s *Store) write(ctx context.Context, items []analysis.HistoryItem) error {
	encoded, err := jsonx.MarshalToString(items)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.SetString(ctx, s.key, encoded); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

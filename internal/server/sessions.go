package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

// chatSession is a live conversation reachable over the websocket.
type chatSession struct {
	mu        sync.Mutex // one turn at a time
	session   ai.Session
	historyID string // empty for the general assistant
	hidden    int    // leading seed turns not shown to the user
}

// visible returns the transcript the user has seen.
func (c *chatSession) visible() []analysis.ChatMessage {
	h := c.session.History()
	if c.hidden >= len(h) {
		return []analysis.ChatMessage{}
	}
	return h[c.hidden:]
}

// sessionRegistry holds live sessions, dropping idle ones after ttl and the
// least recently used ones beyond size.
type sessionRegistry struct {
	sessions *expirable.LRU[string, *chatSession]
}

func newSessionRegistry(size int, ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{sessions: expirable.NewLRU[string, *chatSession](size, nil, ttl)}
}

func (r *sessionRegistry) add(s *chatSession) string {
	id := uuid.New().String()
	r.sessions.Add(id, s)
	return id
}

func (r *sessionRegistry) get(id string) (*chatSession, bool) {
	return r.sessions.Get(id)
}

func (r *sessionRegistry) len() int {
	return r.sessions.Len()
}

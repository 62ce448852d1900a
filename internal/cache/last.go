package cache

import (
	"sync"
	"time"

	"tvwebhook/internal/payload"
)

// Snapshot is the most recently accepted alert.
type Snapshot struct {
	Key        string
	ReceivedAt time.Time
	Raw        payload.IncomingMessage
	Parsed     payload.NormalizedPayload
}

// LastMessage holds exactly one Snapshot. Set replaces it wholesale; readers
// never observe a mix of two writes.
type LastMessage struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// NewLastMessage returns an empty cache.
func NewLastMessage() *LastMessage {
	return &LastMessage{}
}

// Set replaces the cached snapshot.
func (c *LastMessage) Set(s Snapshot) {
	c.mu.Lock()
	c.snap = s
	c.set = true
	c.mu.Unlock()
}

// Get returns the cached snapshot; ok is false until the first Set.
func (c *LastMessage) Get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.set
}

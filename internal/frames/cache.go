package frames

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/i474232898/weather-dashboard/internal/logger"
)

// Backend is durable key/value storage for serialized windows.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// Cache owns the current window for one layer and persists it after every
// merge. Storage errors never reach the caller: a failed read is a cold
// start and a failed write is a cache miss on the next load.
type Cache struct {
	mu      sync.RWMutex
	window  Window
	backend Backend
	key     string
	maxAge  time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock used for the retention horizon.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a Cache. backend may be nil, in which case nothing is persisted.
func NewCache(backend Backend, key string, maxAge time.Duration, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		key:     key,
		maxAge:  maxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the storage key.
func (c *Cache) Key() string { return c.key }

// Load restores the persisted window, filtered to the retention horizon.
func (c *Cache) Load() Window {
	w := c.read()

	c.mu.Lock()
	c.window = w
	c.mu.Unlock()
	return w
}

func (c *Cache) read() Window {
	if c.backend == nil {
		return Window{}
	}
	data, err := c.backend.Get(c.key)
	if err != nil {
		logger.Debug("frame cache %s: cold start: %v", c.key, err)
		return Window{}
	}
	var stored []Frame
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warn("frame cache %s: discarding unreadable entry: %v", c.key, err)
		return Window{}
	}
	return NewWindow(stored).Retain(c.cutoff())
}

// Apply merges fresh frames into the current window, persists the result and
// returns it.
func (c *Cache) Apply(fresh []Frame) Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := Merge(c.window, fresh, c.now().Unix(), c.maxAgeSeconds())
	c.window = next
	c.persist(next)
	return next
}

// Window returns the current window.
func (c *Cache) Window() Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

func (c *Cache) persist(w Window) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(w.Retain(c.cutoff()).Frames())
	if err != nil {
		logger.Warn("frame cache %s: encode failed: %v", c.key, err)
		return
	}
	if err := c.backend.Put(c.key, data); err != nil {
		logger.Warn("frame cache %s: write failed: %v", c.key, err)
	}
}

func (c *Cache) maxAgeSeconds() int64 {
	return int64(c.maxAge / time.Second)
}

func (c *Cache) cutoff() int64 {
	return c.now().Unix() - c.maxAgeSeconds()
}

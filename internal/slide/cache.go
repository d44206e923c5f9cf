package slide

import (
	"log/slog"
	"sync"
)

// DefaultCacheSize bounds the idle handle pool of a Cache.
const DefaultCacheSize = 32

// Cache is a bounded pool of open decoder handles for one locator.
// Handles are expensive to open and unsafe to share between goroutines,
// so callers check one out with Get, use it exclusively, and hand it back
// with Put. The idle pool never exceeds its capacity; the number of
// checked-out handles is unbounded.
//
// A handle is in exactly one of three states: idle in the pool, checked
// out, or closed. The cache never touches a checked-out handle.
type Cache struct {
	locator string
	open    func() (*Handle, error)
	logger  *slog.Logger

	mu          sync.Mutex
	idle        []*Handle
	capacity    int
	outstanding int
	evictErrors int
	closed      bool
}

// NewCache creates a pool for locator with the default capacity.
func NewCache(locator string) *Cache {
	return NewCacheSize(locator, DefaultCacheSize)
}

// NewCacheSize creates a pool with an explicit idle capacity.
func NewCacheSize(locator string, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c := &Cache{locator: locator, capacity: capacity, logger: slog.Default()}
	c.open = func() (*Handle, error) { return OpenContainer(c.locator) }
	return c
}

// Get returns an idle handle, or opens a fresh one when the pool is
// empty. The open runs outside the lock so a slow remote open never
// blocks another goroutine's Get or Put. The caller owns the handle
// exclusively until it calls Put or Discard.
//
// Get does not verify that a pooled handle still sees the same bytes it
// was opened against; concurrent mutation of the resource is out of
// scope.
func (c *Cache) Get() (*Handle, error) {
	c.mu.Lock()
	c.outstanding++
	var h *Handle
	if len(c.idle) > 0 {
		h = c.idle[0]
		copy(c.idle, c.idle[1:])
		c.idle[len(c.idle)-1] = nil
		c.idle = c.idle[:len(c.idle)-1]
	}
	c.mu.Unlock()

	if h != nil {
		return h, nil
	}
	h, err := c.open()
	if err != nil {
		c.mu.Lock()
		c.outstanding--
		c.mu.Unlock()
		return nil, err
	}
	return h, nil
}

// Put returns a checked-out handle to the pool. It never fails: when the
// pool is already full or drained the handle is closed, and a close
// failure is logged and counted rather than propagated, since the caller
// has no recovery action at this point.
func (c *Cache) Put(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.outstanding--
	if !c.closed && len(c.idle) < c.capacity {
		c.idle = append(c.idle, h)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.closeQuietly(h)
}

// Discard closes a checked-out handle instead of pooling it. Use it when
// the handle is known bad, e.g. after a fatal decode error.
func (c *Cache) Discard(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.outstanding--
	c.mu.Unlock()
	c.closeQuietly(h)
}

// Drain closes every idle handle and marks the pool drained. Checked-out
// handles are unaffected; a handle returned after Drain is closed rather
// than pooled, so nothing idles unclosed past the owner's shutdown.
func (c *Cache) Drain() {
	c.mu.Lock()
	c.closed = true
	idle := c.idle
	c.idle = nil
	c.mu.Unlock()
	for _, h := range idle {
		c.closeQuietly(h)
	}
}

func (c *Cache) closeQuietly(h *Handle) {
	if err := h.Close(); err != nil {
		c.mu.Lock()
		c.evictErrors++
		c.mu.Unlock()
		c.logger.Warn("closing evicted slide handle failed",
			"locator", c.locator, "error", err)
	}
}

// Locator returns the resource this pool serves.
func (c *Cache) Locator() string { return c.locator }

// Capacity returns the idle pool bound.
func (c *Cache) Capacity() int { return c.capacity }

// Outstanding returns the number of currently checked-out handles.
func (c *Cache) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstanding
}

// Idle returns the number of handles sitting in the pool.
func (c *Cache) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

// EvictErrors returns how many eviction closes have failed silently.
func (c *Cache) EvictErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictErrors
}

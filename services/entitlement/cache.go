package entitlement

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	userID     uuid.UUID
	roles      []*models.Role
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// RoleCache is an in-memory LRU cache with TTL for resolved role sets.
// Role grants change rarely compared to request volume, so a short TTL
// removes the per-request join without making revocation meaningfully
// slower. Thread-safe via sync.Mutex.
type RoleCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List // Doubly linked list for LRU tracking
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewRoleCache creates a new RoleCache with specified max size and TTL
func NewRoleCache(maxSize int, ttl time.Duration) *RoleCache {
	return &RoleCache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves the cached role set for a user.
// Returns nil, false if not found or expired.
func (c *RoleCache) Get(userID uuid.UUID) ([]*models.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[userID]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(userID)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.roles, true
}

// Set stores a resolved role set. An empty set is cached too: users with
// no roles are the common case and still cost a join on a miss.
func (c *RoleCache) Set(userID uuid.UUID, roles []*models.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[userID]; exists {
		entry.roles = roles
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		userID:     userID,
		roles:      roles,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(userID)
	c.entries[userID] = entry
}

// Invalidate removes the cached role set for a user
func (c *RoleCache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(userID)
}

// Clear removes all entries from the cache
func (c *RoleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *RoleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *RoleCache) removeEntry(userID uuid.UUID) {
	if entry, exists := c.entries[userID]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, userID)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *RoleCache) evictLRU() {
	backElement := c.lruList.Back()
	if backElement != nil {
		userID := backElement.Value.(uuid.UUID)
		c.lruList.Remove(backElement)
		delete(c.entries, userID)
	}
}

// CleanupExpired removes all expired entries
func (c *RoleCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := make([]uuid.UUID, 0)
	for userID, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expired = append(expired, userID)
		}
	}
	for _, userID := range expired {
		c.removeEntry(userID)
	}
	return len(expired)
}

// StartCleanupWorker periodically removes expired entries until stopCh closes.
func (c *RoleCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

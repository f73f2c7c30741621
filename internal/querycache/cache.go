// Package querycache keeps materialized query results for replay. Entries
// are written through a Writer while the producing pipeline runs and become
// visible only after the pipeline commits them.
package querycache

import (
	"encoding/binary"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/harshithgowdakt/granuleflow/internal/logging"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
)

// ErrEntryTooLarge is returned by Writer.FinalizeWrite when the result has
// more rows than an entry may hold. Nothing is stored in that case.
var ErrEntryTooLarge = errors.New("query result too large for the query cache")

// keyNamespace scopes cache fingerprints.
var keyNamespace = uuid.MustParse("5b0c7d0e-8d4f-4c52-9a4e-3f0a51c8e2d1")

// Key fingerprints a query together with the settings that change its result.
type Key uuid.UUID

// NewKey fingerprints query. Runs of whitespace are collapsed so formatting
// differences map to the same entry. scope adds whatever else decides the
// result, such as the fingerprint of the row policies in force; a query run
// under different scopes never shares an entry.
func NewKey(query string, s settings.Settings, scope ...string) Key {
	var buf []byte
	appendPart := func(part string) {
		buf = binary.AppendUvarint(buf, uint64(len(part)))
		buf = append(buf, part...)
	}
	appendPart(strings.Join(strings.Fields(query), " "))
	appendPart(strconv.FormatBool(s.Extremes))
	for _, part := range scope {
		appendPart(part)
	}
	return Key(uuid.NewSHA1(keyNamespace, buf))
}

func (k Key) String() string { return uuid.UUID(k).String() }

// Config bounds the cache.
type Config struct {
	TTL          time.Duration
	MaxEntries   int // 0 means unlimited
	MaxEntryRows int // 0 means unlimited
	Compress     bool
}

// ConfigFromSettings extracts the cache configuration.
func ConfigFromSettings(s settings.Settings) Config {
	return Config{
		TTL:          s.QueryCacheTTL,
		MaxEntries:   s.QueryCacheMaxEntries,
		MaxEntryRows: s.QueryCacheMaxEntryRows,
		Compress:     s.QueryCacheCompress,
	}
}

// Cache is an in-memory result cache safe for concurrent use.
type Cache struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[Key]*Entry
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		cfg:     cfg,
		now:     time.Now,
		logger:  logging.WithComponent("querycache"),
		entries: make(map[Key]*Entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the live entry for key.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.Expires) {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e, true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Key]*Entry)
	c.mu.Unlock()
}

// EvictExpired removes entries past their expiry and returns how many were
// removed.
func (c *Cache) EvictExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.Expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// put stores e, replacing an entry with the same key. When the cache is
// full the entry closest to expiry makes room.
func (c *Cache) put(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[e.Key]; !exists && c.cfg.MaxEntries > 0 {
		for len(c.entries) >= c.cfg.MaxEntries {
			var victim Key
			var first time.Time
			for k, old := range c.entries {
				if first.IsZero() || old.Expires.Before(first) {
					victim, first = k, old.Expires
				}
			}
			delete(c.entries, victim)
			c.logger.Debug("evicted query cache entry to make room", "key", victim)
		}
	}
	c.entries[e.Key] = e
}

// Package cache stores finished artifacts by build hash. A memory tier
// fronts an optional persistent object store; memory misses fall back to the
// store and are promoted.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/packd/internal/artifact"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/metrics"
	"git.home.luguber.info/inful/packd/internal/storage"
)

// Summary describes one cached artifact for reporting.
type Summary struct {
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	Size      int       `json:"size"`
	RawSize   int       `json:"raw_size"`
	Degraded  bool      `json:"degraded,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// tier is the in-memory map of artifacts.
type tier interface {
	get(hash string) (*artifact.Artifact, bool)
	add(a *artifact.Artifact)
	values() []*artifact.Artifact
	len() int
}

// Cache is safe for concurrent use.
type Cache struct {
	mem    tier
	store  storage.ObjectStore
	logger *slog.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the memory tier, evicting least recently used
// entries. Zero or negative keeps it unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.mem = newLRUTier(n)
		}
	}
}

// WithStore adds a persistent tier.
func WithStore(s storage.ObjectStore) Option {
	return func(c *Cache) { c.store = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a cache.
func New(opts ...Option) *Cache {
	c := &Cache{mem: newMapTier(), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up hash and reports which tier answered.
func (c *Cache) Get(ctx context.Context, hash string) (*artifact.Artifact, metrics.CacheResult) {
	if a, ok := c.mem.get(hash); ok {
		return a, metrics.CacheHit
	}
	if c.store == nil {
		return nil, metrics.CacheMiss
	}

	obj, err := c.store.Get(ctx, hash)
	if err != nil {
		if !storage.IsNotFound(err) {
			c.logger.Warn("Persistent cache read failed", logfields.BuildHash(hash), logfields.Error(err))
		}
		return nil, metrics.CacheMiss
	}
	a := fromObject(obj)
	c.mem.add(a)
	return a, metrics.CacheStoreHit
}

// Put stores a. Entries are immutable: a second Put for the same hash keeps
// the first artifact. Persistent write failures are logged, not returned.
func (c *Cache) Put(ctx context.Context, a *artifact.Artifact) {
	if _, ok := c.mem.get(a.Hash); ok {
		return
	}
	c.mem.add(a)
	if c.store == nil {
		return
	}
	if _, err := c.store.Put(ctx, toObject(a)); err != nil {
		c.logger.Warn("Persistent cache write failed",
			logfields.BuildHash(a.Hash),
			logfields.Bundle(a.Name),
			logfields.Error(err))
	}
}

// Len returns the number of artifacts in memory.
func (c *Cache) Len() int { return c.mem.len() }

// Summaries lists the artifacts held in memory.
func (c *Cache) Summaries() []Summary {
	values := c.mem.values()
	out := make([]Summary, 0, len(values))
	for _, a := range values {
		out = append(out, Summary{
			Name:      a.Name,
			Hash:      a.Hash,
			Size:      a.Size(),
			RawSize:   a.RawSize,
			Degraded:  a.Degraded,
			CreatedAt: a.CreatedAt,
		})
	}
	return out
}

// Prune removes persistent entries not accessed within maxAge. Memory
// entries are left alone.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if c.store == nil || maxAge <= 0 {
		return 0, nil
	}
	return c.store.Prune(ctx, time.Now().Add(-maxAge))
}

const (
	metaName      = "name"
	metaIntegrity = "integrity"
	metaRawSize   = "raw_size"
	metaDegraded  = "degraded"
	metaCreatedAt = "created_at"
)

func toObject(a *artifact.Artifact) *storage.Object {
	return &storage.Object{
		Hash: a.Hash,
		Type: storage.ObjectTypeBundle,
		Data: a.Body,
		Metadata: storage.Metadata{Custom: map[string]string{
			metaName:      a.Name,
			metaIntegrity: a.Integrity,
			metaRawSize:   strconv.Itoa(a.RawSize),
			metaDegraded:  strconv.FormatBool(a.Degraded),
			metaCreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
		}},
	}
}

func fromObject(obj *storage.Object) *artifact.Artifact {
	custom := obj.Metadata.Custom
	a := &artifact.Artifact{
		Name:      custom[metaName],
		Hash:      obj.Hash,
		Body:      obj.Data,
		Integrity: custom[metaIntegrity],
		CreatedAt: obj.Metadata.CreatedAt,
	}
	if a.Integrity == "" {
		a.Integrity = artifact.Integrity(obj.Data)
	}
	a.RawSize, _ = strconv.Atoi(custom[metaRawSize])
	a.Degraded, _ = strconv.ParseBool(custom[metaDegraded])
	if t, err := time.Parse(time.RFC3339Nano, custom[metaCreatedAt]); err == nil {
		a.CreatedAt = t
	}
	return a
}

type mapTier struct {
	mu sync.RWMutex
	m  map[string]*artifact.Artifact
}

func newMapTier() *mapTier { return &mapTier{m: make(map[string]*artifact.Artifact)} }

func (t *mapTier) get(hash string) (*artifact.Artifact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.m[hash]
	return a, ok
}

func (t *mapTier) add(a *artifact.Artifact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[a.Hash]; !ok {
		t.m[a.Hash] = a
	}
}

func (t *mapTier) values() []*artifact.Artifact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*artifact.Artifact, 0, len(t.m))
	for _, a := range t.m {
		out = append(out, a)
	}
	return out
}

func (t *mapTier) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

type lruTier struct {
	c *lru.Cache[string, *artifact.Artifact]
}

func newLRUTier(size int) *lruTier {
	c, err := lru.New[string, *artifact.Artifact](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &lruTier{c: c}
}

func (t *lruTier) get(hash string) (*artifact.Artifact, bool) { return t.c.Get(hash) }

func (t *lruTier) add(a *artifact.Artifact) { _, _ = t.c.ContainsOrAdd(a.Hash, a) }

func (t *lruTier) values() []*artifact.Artifact { return t.c.Values() }

func (t *lruTier) len() int { return t.c.Len() }

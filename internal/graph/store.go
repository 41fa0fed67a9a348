package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/incidentstack/faultline/internal/cache"
)

// Store holds the current graph snapshot. Reloads swap the snapshot wholesale,
// so concurrent readers never observe a half-updated graph.
type Store struct {
	current atomic.Pointer[Graph]
}

// NewStore creates a store seeded with the provided snapshot (may be nil).
func NewStore(g *Graph) *Store {
	s := &Store{}
	if g == nil {
		g = New(Document{})
	}
	s.current.Store(g)
	return s
}

// Current returns the active snapshot. Never nil.
func (s *Store) Current() *Graph {
	return s.current.Load()
}

// Swap replaces the active snapshot.
func (s *Store) Swap(g *Graph) {
	if g == nil {
		return
	}
	s.current.Store(g)
}

const cacheKeyDocument = "topology:document"

// Loader reloads the dependency map document from disk into a Store. The raw
// document is mirrored into the cache so a restart can fall back to the last
// good copy when the file is unreadable.
type Loader struct {
	path   string
	store  *Store
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

// NewLoader constructs a loader. cacheProvider may be nil.
func NewLoader(path string, store *Store, cacheProvider cache.Provider, ttl time.Duration, logger *slog.Logger) *Loader {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, store: store, cache: cacheProvider, ttl: ttl, logger: logger}
}

// Reload reads, parses, and swaps in a fresh snapshot. On a read failure it
// tries the cached copy before giving up.
func (l *Loader) Reload(ctx context.Context) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		cached, cacheErr := l.cache.Get(ctx, cacheKeyDocument)
		if cacheErr != nil {
			return fmt.Errorf("read dependency map %s: %w", l.path, err)
		}
		l.logger.Warn("dependency map unreadable, using cached copy", slog.String("path", l.path), slog.Any("error", err))
		data = cached
	}

	g, err := Parse(data)
	if err != nil {
		return err
	}

	l.store.Swap(g)
	_ = l.cache.Set(ctx, cacheKeyDocument, data, l.ttl)
	l.logger.Info("dependency map loaded",
		slog.Int("services", g.Len()),
		slog.String("version", g.Version()))
	return nil
}

// Run reloads the document on the given interval until the context ends.
func (l *Loader) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Reload(ctx); err != nil {
				l.logger.Warn("dependency map reload failed", slog.Any("error", err))
			}
		}
	}
}

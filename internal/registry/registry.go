// Package registry keeps one filter interface per OAF service.
package registry

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/filter"
)

// Factory builds the interface for a service on first use.
type Factory func(svc model.Service) *filter.Interface

type Registry struct {
	logger  *slog.Logger
	factory Factory
	size    int

	mu     sync.Mutex
	cache  *lru.Cache[uint64, *filter.Interface]
	closed bool
}

// New bounds the registry to size services. When the bound is hit the least
// recently used idle interface is closed and dropped; interfaces with
// filters in flight are never evicted, the bound grows instead.
func New(logger *slog.Logger, size int, factory Factory) (*Registry, error) {
	if size <= 0 {
		size = 64
	}
	r := &Registry{logger: logger, factory: factory, size: size}
	c, err := lru.NewWithEvict[uint64, *filter.Interface](size, func(key uint64, fi *filter.Interface) {
		logger.Debug("filter interface evicted", "key", fmt.Sprintf("%016x", key))
		fi.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("registry lru: %w", err)
	}
	r.cache = c
	return r, nil
}

// Key identifies a service by url, collection and limit.
func Key(svc model.Service) uint64 {
	id := strings.TrimRight(strings.TrimSpace(svc.URL), "/") + "\x00" +
		strings.TrimSpace(svc.Collection) + "\x00" +
		fmt.Sprint(svc.Limit)
	return xxhash.Sum64String(id)
}

// Get returns the interface for svc, creating it when absent. Callers
// validate svc first so malformed services never take a slot.
func (r *Registry) Get(svc model.Service) *filter.Interface {
	k := Key(svc)
	r.mu.Lock()
	defer r.mu.Unlock()
	if fi, ok := r.cache.Get(k); ok {
		return fi
	}
	r.makeRoom()
	fi := r.factory(svc)
	r.cache.Add(k, fi)
	r.logger.Debug("filter interface created",
		"collection", svc.Collection,
		"key", fmt.Sprintf("%016x", k))
	return fi
}

// makeRoom frees one slot, skipping busy interfaces. Called with r.mu held.
func (r *Registry) makeRoom() {
	if r.cache.Len() < r.size {
		return
	}
	for _, k := range r.cache.Keys() {
		if fi, ok := r.cache.Peek(k); ok && !fi.Busy() {
			r.cache.Remove(k)
			return
		}
	}
	r.size++
	r.cache.Resize(r.size)
	r.logger.Warn("every filter interface is busy; registry bound raised", "size", r.size)
}

// Lookup returns the interface for svc without creating one.
func (r *Registry) Lookup(svc model.Service) (*filter.Interface, bool) {
	return r.cache.Get(Key(svc))
}

func (r *Registry) Len() int { return r.cache.Len() }

// Readiness is false once the registry has been closed.
func (r *Registry) Readiness() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed, r.cache.Len()
}

// Close closes every interface and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
	r.closed = true
}

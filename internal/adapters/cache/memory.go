// Package cache guarda la última vista de cada set para las lecturas del
// service. Los fallos nunca se propagan: un miss se resuelve en el store.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/ports"
)

var _ ports.SetCache = (*MemoryCache)(nil)

type memEntry struct {
	set     domain.BetSet
	expires time.Time
}

// MemoryCache es la cache por defecto, local al proceso.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache crea la cache. ttl <= 0 desactiva la expiración.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock sustituye el reloj (tests).
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, id string) (domain.BetSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return domain.BetSet{}, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, id)
		return domain.BetSet{}, false
	}
	return e.set.Clone(), true
}

// Put no pisa una entrada viva con una versión más nueva que set.
func (c *MemoryCache) Put(_ context.Context, set domain.BetSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.entries[set.ID]; ok && cur.set.Version > set.Version {
		if cur.expires.IsZero() || !c.now().After(cur.expires) {
			return
		}
	}
	e := memEntry{set: set.Clone()}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[set.ID] = e
}

func (c *MemoryCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len devuelve el número de entradas, incluidas las caducadas aún no purgadas.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Nop no guarda nada. Se usa con cache.driver = none.
type Nop struct{}

var _ ports.SetCache = Nop{}

func (Nop) Get(context.Context, string) (domain.BetSet, bool) { return domain.BetSet{}, false }
func (Nop) Put(context.Context, domain.BetSet)                {}
func (Nop) Invalidate(context.Context, string)                {}

package cache

import (
	"fmt"
	"sync"
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
)

// Cache holds the authoritative per-symbol snapshots. Entries are keyed and
// locked independently so contention scales with symbol count, not with total
// throughput.
type Cache struct {
	mu      sync.RWMutex
	cfg     config.CacheConfig
	entries map[string]*Entry
}

func New(cfg config.CacheConfig) *Cache {
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*Entry),
	}
}

// Entry returns the snapshot holder for a symbol, creating it on first use.
func (c *Cache) Entry(symbol string) *Entry {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[symbol]; ok {
		return e
	}
	e = newEntry(symbol, c.cfg)
	c.entries[symbol] = e
	return e
}

// GetSnapshot returns a copy of the symbol's snapshot.
func (c *Cache) GetSnapshot(symbol string) (models.Snapshot, error) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, fmt.Errorf("symbol %s not tracked", symbol)
	}
	return e.Snapshot(), nil
}

// Symbols lists all tracked symbols.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	return out
}

// ComponentStats describes the freshness of one component of one symbol.
type ComponentStats struct {
	AgeMs  int64  `json:"age_ms"`
	Source Source `json:"source"`
}

// SymbolStats is the observable state of one symbol's snapshot.
type SymbolStats struct {
	Components    map[Component]ComponentStats `json:"components"`
	StreamUpdates int64                        `json:"stream_updates"`
	PullUpdates   int64                        `json:"pull_updates"`
}

// GetStats reports per-symbol freshness ages and update counts. Components
// never fetched are absent from the map rather than synthesized.
func (c *Cache) GetStats() map[string]SymbolStats {
	c.mu.RLock()
	entries := make(map[string]*Entry, len(c.entries))
	for s, e := range c.entries {
		entries[s] = e
	}
	c.mu.RUnlock()

	now := time.Now()
	out := make(map[string]SymbolStats, len(entries))
	for symbol, e := range entries {
		stats := SymbolStats{Components: make(map[Component]ComponentStats)}
		for comp, f := range e.Freshness() {
			stats.Components[comp] = ComponentStats{
				AgeMs:  now.Sub(f.UpdatedAt).Milliseconds(),
				Source: f.Source,
			}
		}
		stats.StreamUpdates, stats.PullUpdates = e.Counters()
		out[symbol] = stats
	}
	return out
}

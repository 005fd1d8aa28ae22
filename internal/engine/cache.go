package engine

import (
	"sort"

	"github.com/leapstack-labs/grumpy/pkg/core"
)

// CacheEntry records the findings produced for one version of a file.
// Findings are stored before severity filtering.
type CacheEntry struct {
	Hash     string
	Findings []core.Finding
}

// Cache maps paths to their last evaluation. It is only valid for the rule
// set whose fingerprint it carries. A Cache returned by the engine is never
// modified afterwards; each pass builds a new one.
type Cache struct {
	Fingerprint string
	Entries     map[string]CacheEntry
	// Complete is set when Entries cover the whole working set, as after
	// EvaluateAll. Only a complete cache can back EvaluateChanges.
	Complete bool
}

// NewCache returns an empty cache for a rule set fingerprint.
func NewCache(fingerprint string) *Cache {
	return &Cache{
		Fingerprint: fingerprint,
		Entries:     make(map[string]CacheEntry),
	}
}

// Lookup returns the cached findings when the entry matches hash.
func (c *Cache) Lookup(path, hash string) ([]core.Finding, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.Entries[path]
	if !ok || entry.Hash != hash {
		return nil, false
	}
	return entry.Findings, true
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// Paths returns the cached paths in sorted order.
func (c *Cache) Paths() []string {
	if c == nil {
		return nil
	}
	paths := make([]string, 0, len(c.Entries))
	for p := range c.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Covers reports whether c is a complete cache for the rule set with
// fingerprint.
func (c *Cache) Covers(fingerprint string) bool {
	return c != nil && c.Complete && c.Fingerprint == fingerprint
}

// Merge returns a copy of c updated with the evaluation of paths in update.
// Paths missing from update are dropped. When c was built for another rule
// set, update is returned unchanged.
func (c *Cache) Merge(update *Cache, paths []string) *Cache {
	if update == nil {
		return c
	}
	if c == nil || c.Fingerprint != update.Fingerprint {
		return update
	}
	out := c.clone()
	for _, p := range uniquePaths(paths) {
		if entry, ok := update.Entries[p]; ok {
			out.Entries[p] = entry
		} else {
			delete(out.Entries, p)
		}
	}
	return out
}

// validFor returns c when it was built for fingerprint, otherwise an empty
// cache. A rule set change invalidates every entry.
func (c *Cache) validFor(fingerprint string) *Cache {
	if c == nil || c.Fingerprint != fingerprint {
		return NewCache(fingerprint)
	}
	return c
}

func (c *Cache) clone() *Cache {
	out := NewCache(c.Fingerprint)
	out.Complete = c.Complete
	for p, e := range c.Entries {
		out.Entries[p] = e
	}
	return out
}

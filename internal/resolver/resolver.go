// Package resolver provides OID name resolution over the loaded object
// tree, with caching for repeated lookups.
package resolver

import (
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"

	"github.com/geekxflood/proteus/internal/mib"
	"github.com/geekxflood/proteus/internal/oid"
)

// ResolverConfig holds configuration for the OID resolver
type ResolverConfig struct {
	CacheEnabled bool          `json:"cache_enabled"`
	CacheSize    int           `json:"cache_size"`
	CacheExpiry  time.Duration `json:"cache_expiry"`
}

// DefaultResolverConfig returns a default resolver configuration
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		CacheEnabled: true,
		CacheSize:    10000,
		CacheExpiry:  1 * time.Hour,
	}
}

// cacheEntry represents a cached resolution result
type cacheEntry struct {
	info      *OIDInfo
	timestamp time.Time
}

// ResolverStats tracks resolver statistics
type ResolverStats struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	TotalLookups   int64 `json:"total_lookups"`
	ExactMatches   int64 `json:"exact_matches"`
	PrefixMatches  int64 `json:"prefix_matches"`
	ReverseLookups int64 `json:"reverse_lookups"`
	CacheEvictions int64 `json:"cache_evictions"`
}

// OIDInfo represents resolved information about an OID
type OIDInfo struct {
	OID         string `json:"oid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Access      string `json:"access,omitempty"`
	Exact       bool   `json:"exact"`
}

// TreeSource yields the current object tree.
type TreeSource interface {
	Tree() *mib.Tree
}

// Resolver provides OID resolution services with caching
type Resolver struct {
	config   *ResolverConfig
	source   TreeSource
	oidCache map[string]*cacheEntry
	mu       sync.RWMutex
	stats    ResolverStats
}

// NewResolver creates a new OID resolver over the object tree
func NewResolver(cfg config.Provider, source TreeSource) (*Resolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("tree source cannot be nil")
	}

	resolverConfig := DefaultResolverConfig()

	if cacheEnabled, err := cfg.GetBool("resolver.cache_enabled", resolverConfig.CacheEnabled); err == nil {
		resolverConfig.CacheEnabled = cacheEnabled
	}

	if cacheSize, err := cfg.GetInt("resolver.cache_size", resolverConfig.CacheSize); err == nil {
		resolverConfig.CacheSize = cacheSize
	}

	if cacheExpiry, err := cfg.GetDuration("resolver.cache_expiry", resolverConfig.CacheExpiry); err == nil {
		resolverConfig.CacheExpiry = cacheExpiry
	}

	return &Resolver{
		config:   resolverConfig,
		source:   source,
		oidCache: make(map[string]*cacheEntry),
	}, nil
}

// ResolveOID resolves an OID to its registered name. An exact match
// returns the node's own name; otherwise the longest registered prefix
// is used with the remaining arcs appended.
func (r *Resolver) ResolveOID(oidText string) (*OIDInfo, error) {
	r.mu.Lock()
	r.stats.TotalLookups++
	r.mu.Unlock()

	target, err := oid.Parse(oidText)
	if err != nil {
		return nil, err
	}
	canonical := target.String()

	if info := r.cachedInfo(canonical); info != nil {
		return info, nil
	}

	r.mu.Lock()
	r.stats.CacheMisses++
	r.mu.Unlock()

	tree := r.source.Tree()

	if node, err := tree.Get(target); err == nil {
		info := &OIDInfo{
			OID:         canonical,
			Name:        node.Name,
			Description: node.Description,
			Type:        node.Type.String(),
			Access:      node.Access.String(),
			Exact:       true,
		}
		r.mu.Lock()
		r.stats.ExactMatches++
		r.mu.Unlock()
		r.cacheResult(canonical, info)
		return info, nil
	}

	// Walk prefixes from longest to shortest.
	for end := len(target) - 1; end > 0; end-- {
		prefix := target[:end]
		node, err := tree.Get(prefix)
		if err != nil {
			continue
		}

		remainder := target[end:]
		info := &OIDInfo{
			OID:  canonical,
			Name: fmt.Sprintf("%s.%s", node.Name, remainder.String()),
		}
		r.mu.Lock()
		r.stats.PrefixMatches++
		r.mu.Unlock()
		r.cacheResult(canonical, info)
		return info, nil
	}

	return nil, fmt.Errorf("no registered prefix for %s", canonical)
}

// ResolveName finds the OID registered under the given name
func (r *Resolver) ResolveName(name string) (*OIDInfo, error) {
	r.mu.Lock()
	r.stats.TotalLookups++
	r.stats.ReverseLookups++
	r.mu.Unlock()

	var found *OIDInfo
	r.source.Tree().Subtree(oid.OID{}, func(entry mib.Entry) bool {
		if entry.Node.Name == name {
			found = &OIDInfo{
				OID:         entry.OID.String(),
				Name:        entry.Node.Name,
				Description: entry.Node.Description,
				Type:        entry.Node.Type.String(),
				Access:      entry.Node.Access.String(),
				Exact:       true,
			}
			return false
		}
		return true
	})

	if found == nil {
		return nil, fmt.Errorf("name %q is not registered", name)
	}

	return found, nil
}

// cachedInfo returns a fresh cached result or nil
func (r *Resolver) cachedInfo(key string) *OIDInfo {
	if !r.config.CacheEnabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.oidCache[key]
	if !ok {
		return nil
	}

	if time.Since(entry.timestamp) > r.config.CacheExpiry {
		delete(r.oidCache, key)
		r.stats.CacheEvictions++
		return nil
	}

	r.stats.CacheHits++
	return entry.info
}

// cacheResult stores a resolution result, evicting stale entries when full
func (r *Resolver) cacheResult(key string, info *OIDInfo) {
	if !r.config.CacheEnabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.oidCache) >= r.config.CacheSize {
		for k, entry := range r.oidCache {
			if time.Since(entry.timestamp) > r.config.CacheExpiry {
				delete(r.oidCache, k)
				r.stats.CacheEvictions++
			}
		}
		// Still full after expiry sweep, drop the new entry.
		if len(r.oidCache) >= r.config.CacheSize {
			return
		}
	}

	r.oidCache[key] = &cacheEntry{info: info, timestamp: time.Now()}
}

// ClearCache drops all cached resolutions. Called after a tree reload.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oidCache = make(map[string]*cacheEntry)
}

// GetStats returns resolver statistics
func (r *Resolver) GetStats() ResolverStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

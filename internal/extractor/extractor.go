// Package extractor finds named entities (people, pets, places, orgs,
// projects) in free-form note text. It runs a precise regex pass and a
// shallow NLP pass, merges the results, and caches them keyed by a prefix
// of the note.
package extractor

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

const (
	// maxInputBytes caps how much of a note is scanned. Longer notes are
	// truncated, not rejected.
	maxInputBytes = 16 * 1024

	// maxEntities caps the merged result set per note.
	maxEntities = 25

	// cacheKeyLen is how many bytes of the whitespace-collapsed note form
	// the cache key.
	cacheKeyLen = 150

	defaultCacheSize     = 1000
	defaultMinConfidence = 0.6
	cacheTTL             = 10 * time.Minute

	// maxCacheBytes bounds the approximate memory held by cached results.
	maxCacheBytes = 5 * 1024 * 1024
)

// Settings table keys for runtime tuning.
const (
	settingCacheSize     = "extractor_cache_size"
	settingMinConfidence = "min_confidence_threshold"
)

// Extractor extracts entities from note text with a bounded result cache.
// Safe for concurrent use.
type Extractor struct {
	cache         *expirable.LRU[string, []types.ExtractedEntity]
	minConfidence float64

	mu         sync.Mutex
	sizes      map[string]int
	totalBytes int
}

// New builds an Extractor, reading cache size and confidence threshold from
// the settings table. Missing or invalid settings fall back to defaults;
// a read error is logged and never blocks construction.
func New(ctx context.Context, settings storage.SettingsReader) *Extractor {
	cacheSize := defaultCacheSize
	minConf := defaultMinConfidence

	if settings != nil {
		if v, err := settings.GetSetting(ctx, settingCacheSize); err == nil {
			if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
				cacheSize = n
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: [extractor] settings read failed, using defaults: %v", err)
		}
		if v, err := settings.GetSetting(ctx, settingMinConfidence); err == nil {
			if f, perr := strconv.ParseFloat(v, 64); perr == nil && f >= 0 && f <= 1 {
				minConf = f
			}
		}
	}

	e := &Extractor{
		minConfidence: minConf,
		sizes:         make(map[string]int),
	}
	e.cache = expirable.NewLRU[string, []types.ExtractedEntity](cacheSize, e.onEvict, cacheTTL)
	return e
}

// Extract returns the entities found in text, highest-confidence-first
// dedup per (normalized text, kind), filtered by the confidence threshold
// and capped at 25. Results are cached.
func (e *Extractor) Extract(text string) []types.ExtractedEntity {
	if len(text) == 0 {
		return nil
	}
	if len(text) > maxInputBytes {
		text = text[:maxInputBytes]
	}

	key := cacheKey(text)
	if cached, ok := e.cache.Get(key); ok {
		return cached
	}

	entities := e.extract(text)
	e.addToCache(key, entities)
	return entities
}

func (e *Extractor) extract(text string) []types.ExtractedEntity {
	merged := append(runPatterns(text), runHeuristics(text)...)

	// Dedup per (normalized text, kind), keeping the highest confidence.
	// Pattern matches come first in the slice, so they win ties.
	type dedupKey struct {
		norm string
		kind types.EntityKind
	}
	best := make(map[dedupKey]types.ExtractedEntity)
	for _, ent := range merged {
		if ent.Confidence < e.minConfidence {
			continue
		}
		k := dedupKey{ent.NormalizedText, ent.Kind}
		if prev, ok := best[k]; ok && prev.Confidence >= ent.Confidence {
			continue
		}
		best[k] = ent
	}

	out := make([]types.ExtractedEntity, 0, len(best))
	for _, ent := range best {
		ent.ID = uuid.New().String()
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Start < out[j].Start
	})
	if len(out) > maxEntities {
		out = out[:maxEntities]
	}
	return out
}

// CacheLen returns the number of cached extraction results.
func (e *Extractor) CacheLen() int {
	return e.cache.Len()
}

// cacheKey collapses whitespace and takes the first 150 bytes.
func cacheKey(text string) string {
	collapsed := normalize(text)
	if len(collapsed) > cacheKeyLen {
		collapsed = collapsed[:cacheKeyLen]
	}
	return collapsed
}

// addToCache stores a result and enforces the byte cap by evicting oldest
// entries until under budget.
func (e *Extractor) addToCache(key string, entities []types.ExtractedEntity) {
	size := entrySize(key, entities)

	e.mu.Lock()
	if prev, ok := e.sizes[key]; ok {
		e.totalBytes -= prev
	}
	e.sizes[key] = size
	e.totalBytes += size
	e.mu.Unlock()

	// Add may trigger onEvict synchronously for the LRU victim; the byte
	// accounting lock is not held across it.
	e.cache.Add(key, entities)

	for {
		e.mu.Lock()
		over := e.totalBytes > maxCacheBytes
		e.mu.Unlock()
		if !over {
			return
		}
		if _, _, ok := e.cache.RemoveOldest(); !ok {
			return
		}
	}
}

// onEvict keeps the byte accounting in sync. Called by the LRU on both
// capacity eviction and TTL expiry.
func (e *Extractor) onEvict(key string, _ []types.ExtractedEntity) {
	e.mu.Lock()
	if sz, ok := e.sizes[key]; ok {
		e.totalBytes -= sz
		delete(e.sizes, key)
	}
	e.mu.Unlock()
}

// entrySize approximates the retained bytes for one cache entry.
func entrySize(key string, entities []types.ExtractedEntity) int {
	size := len(key)
	for _, ent := range entities {
		size += len(ent.ID) + len(ent.Text) + len(ent.NormalizedText) + len(ent.Kind) + len(ent.Method) + 48
	}
	return size
}

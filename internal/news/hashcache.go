package news

import "errors"

// DefaultMaxHashes bounds the in-memory hash set.
const DefaultMaxHashes = 10000

// HashCache is the bounded set of content hashes already persisted. It has
// no internal locking; the Ingestor serializes access.
type HashCache struct {
	store *Store
	max   int
	set   map[string]struct{}
}

// NewHashCache creates an empty cache backed by store for reloads.
func NewHashCache(store *Store, maxSize int) *HashCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxHashes
	}
	return &HashCache{store: store, max: maxSize, set: make(map[string]struct{})}
}

func (h *HashCache) Has(hash string) bool {
	_, ok := h.set[hash]
	return ok
}

func (h *HashCache) Add(hash string) {
	h.set[hash] = struct{}{}
}

func (h *HashCache) Len() int { return len(h.set) }

func (h *HashCache) Max() int { return h.max }

// Exceeded reports whether the set has grown past its bound.
func (h *HashCache) Exceeded() bool { return len(h.set) > h.max }

// Clear empties the set.
func (h *HashCache) Clear() {
	h.set = make(map[string]struct{})
}

// Load adds hashes from the recentDays newest files, newest first, and stops
// once the set is full. Missing hashes are recomputed from content. Corrupt
// files are skipped and reported in the joined error.
func (h *HashCache) Load(recentDays int) (int, error) {
	paths, err := h.store.RecentFiles(recentDays)
	if err != nil {
		return 0, err
	}
	added := 0
	var errs []error
	for _, p := range paths {
		items, err := h.store.LoadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, it := range items {
			if len(h.set) >= h.max {
				return added, errors.Join(errs...)
			}
			hash := it.Hash
			if hash == "" {
				hash = ContentHash(it.Content)
			}
			if _, ok := h.set[hash]; !ok {
				h.set[hash] = struct{}{}
				added++
			}
		}
	}
	return added, errors.Join(errs...)
}

// Reload clears the set and loads it again from recent files.
func (h *HashCache) Reload(recentDays int) (int, error) {
	h.Clear()
	return h.Load(recentDays)
}

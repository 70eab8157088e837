package facts

import (
	"fmt"
	"sync"

	"github.com/docfoundry/docfoundry/pkg/docs"
)

// Duplicate pairs an incoming fact with an indexed fact asserting the same
// key and canonical object.
type Duplicate struct {
	Incoming Fact `json:"incoming"`
	Existing Fact `json:"existing"`
}

// Conflict pairs an incoming fact with an indexed fact that shares its key
// but asserts a different canonical object.
type Conflict struct {
	Incoming Fact   `json:"incoming"`
	Existing Fact   `json:"existing"`
	Reason   string `json:"reason"`
}

// Index stores facts keyed by normalized subject/predicate, then by
// canonical object. Safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	byKey map[string]map[string][]Fact
	count int
}

// NewIndex creates an empty fact index.
func NewIndex() *Index {
	return &Index{byKey: make(map[string]map[string][]Fact)}
}

// Insert adds a fact.
func (x *Index) Insert(f Fact) {
	x.mu.Lock()
	defer x.mu.Unlock()

	byObject, ok := x.byKey[f.NormalizedKey]
	if !ok {
		byObject = make(map[string][]Fact)
		x.byKey[f.NormalizedKey] = byObject
	}
	byObject[f.CanonicalObject] = append(byObject[f.CanonicalObject], f)
	x.count++
}

// Len reports the number of indexed facts.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// FindDuplicates reports, for each incoming fact, every indexed fact under
// the same key and canonical object.
func (x *Index) FindDuplicates(incoming []Fact) []Duplicate {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []Duplicate
	for _, f := range incoming {
		byObject, ok := x.byKey[f.NormalizedKey]
		if !ok {
			continue
		}
		for _, existing := range byObject[f.CanonicalObject] {
			out = append(out, Duplicate{Incoming: f, Existing: existing})
		}
	}
	return out
}

// FindConflicts reports, for each incoming fact, every indexed fact under
// the same key but a different canonical object. Indexed facts matching the
// incoming object are duplicates, never conflicts, but they do not shield
// the other objects recorded under the key.
func (x *Index) FindConflicts(incoming []Fact) []Conflict {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []Conflict
	for _, f := range incoming {
		byObject, ok := x.byKey[f.NormalizedKey]
		if !ok {
			continue
		}
		for object, existing := range byObject {
			if object == f.CanonicalObject {
				continue
			}
			for _, e := range existing {
				out = append(out, Conflict{
					Incoming: f,
					Existing: e,
					Reason: fmt.Sprintf("%q asserts %q but %s says %q",
						f.Subject, f.Object, e.File, object),
				})
			}
		}
	}
	return out
}

// BuildIndex extracts facts from every parsed section and indexes them.
// Fact lines inside a section start one line below its heading.
func BuildIndex(sections []docs.Section) *Index {
	idx := NewIndex()
	for _, section := range sections {
		facts := ExtractFromMarkdown(section.Content, section.File, section.Heading, section.LineStart+1)
		for _, f := range facts {
			idx.Insert(f)
		}
	}
	return idx
}

// Cache holds one fact index per corpus root, rebuilt on demand after
// invalidation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Index
}

// NewCache creates an empty per-root cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Index)}
}

// Get returns the cached index for root, building it from sections when
// absent.
func (c *Cache) Get(root string, sections []docs.Section) *Index {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.entries[root]; ok {
		return idx
	}
	idx := BuildIndex(sections)
	c.entries[root] = idx
	return idx
}

// Invalidate drops the cached index for root.
func (c *Cache) Invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, root)
}

package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/ultradar/internal/exclusion"
)

// Resolver enriches exclusion strategy filters from a Cache.
type Resolver struct {
	cache *Cache
}

// NewResolver wraps c.
func NewResolver(c *Cache) *Resolver { return &Resolver{cache: c} }

// Resolve fills in ids and names from the catalog: a ref is matched by id
// first, then by case-insensitive name. Refs with neither id nor name are
// dropped and duplicates collapsed. When the catalog cannot be loaded the
// refs are returned trimmed and deduplicated but otherwise as given.
func (r *Resolver) Resolve(ctx context.Context, refs []exclusion.StrategyRef) []exclusion.StrategyRef {
	var entries []Entry
	if r != nil && r.cache != nil && len(refs) > 0 {
		var err error
		entries, err = r.cache.Get(ctx)
		if err != nil {
			zap.L().Warn("catalog: enrichment skipped", zap.Error(err))
			entries = nil
		}
	}
	return Enrich(refs, entries)
}

// Enrich resolves refs against entries without touching any cache.
func Enrich(refs []exclusion.StrategyRef, entries []Entry) []exclusion.StrategyRef {
	out := make([]exclusion.StrategyRef, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		ref.ID = strings.TrimSpace(ref.ID)
		ref.Name = strings.TrimSpace(ref.Name)

		if ref.ID != "" {
			if e, ok := byID(entries, ref.ID); ok {
				fill(&ref, e)
			}
		} else if ref.Name != "" {
			if e, ok := byName(entries, ref.Name); ok {
				fill(&ref, e)
			}
		}
		if ref.ID == "" && ref.Name == "" {
			continue
		}

		k := ref.DedupeKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ref)
	}
	return out
}

func fill(ref *exclusion.StrategyRef, e Entry) {
	if ref.ID == "" {
		ref.ID = e.ID
	}
	if ref.Name == "" {
		ref.Name = e.Name
	}
	if ref.Key == "" {
		ref.Key = e.Key
	}
	if ref.Version == 0 {
		ref.Version = e.Version
	}
	if ref.LastModified == "" {
		ref.LastModified = e.LastModified
	}
}

func byID(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func byName(entries []Entry, name string) (Entry, bool) {
	fold := cases.Fold() // Casers are stateful; one per call
	want := fold.String(name)
	for _, e := range entries {
		if fold.String(strings.TrimSpace(e.Name)) == want {
			return e, true
		}
	}
	return Entry{}, false
}

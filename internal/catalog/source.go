package catalog

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/strategy"
)

// Lister is the slice of docstore.Store a DocStoreSource needs.
type Lister interface {
	List(ctx context.Context, prefix string, summary bool) ([]docstore.Entry, error)
}

type entryHead struct {
	StrategyID string          `json:"strategy_id"`
	Name       string          `json:"name"`
	Version    json.RawMessage `json:"version"`
}

// DocStoreSource reads the catalog from the strategy documents under prefix.
// Documents without a strategy_id are left out.
func DocStoreSource(store Lister, prefix string) Source {
	return SourceFunc(func(ctx context.Context) ([]Entry, error) {
		docs, err := store.List(ctx, prefix, false)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: list strategies")
		}
		out := make([]Entry, 0, len(docs))
		for _, d := range docs {
			var h entryHead
			if err := json.Unmarshal(d.Payload, &h); err != nil || h.StrategyID == "" {
				continue
			}
			e := Entry{ID: h.StrategyID, Name: h.Name, Key: d.Key}
			if v, ok := strategy.ParseVersion(h.Version); ok {
				e.Version = v
			}
			if !d.LastModified.IsZero() {
				e.LastModified = d.LastModified.UTC().Format("2006-01-02T15:04:05Z")
			}
			out = append(out, e)
		}
		return out, nil
	})
}

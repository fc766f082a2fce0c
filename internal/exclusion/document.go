// Package exclusion defines the exclusion document: a contiguous run of
// dates removed from curve history, optionally limited to some stores and
// strategies.
package exclusion

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Default text used when the author leaves name or description blank.
const (
	DefaultStoreName   = "Store exclusion"
	DefaultGlobalName  = "Global exclusion"
	DefaultDescription = "Manual exclusion generated from the Strategies page."
)

// Document is a stored exclusion.
type Document struct {
	ExclusionID string   `json:"exclusion_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"created_at"`
	Dates       []string `json:"dates"`
	Filters     Filters  `json:"filters"`
}

// Filters narrow an exclusion. Empty lists mean "all".
type Filters struct {
	Stores     []string      `json:"stores"`
	Strategies []StrategyRef `json:"strategies"`
}

// Global reports whether the exclusion applies to every store.
func (d Document) Global() bool { return len(d.Filters.Stores) == 0 }

// StrategyRef points at a strategy by id, name, or both.
type StrategyRef struct {
	ID           string `json:"strategy_id,omitempty"`
	Name         string `json:"name,omitempty"`
	Key          string `json:"key,omitempty"`
	Version      int    `json:"version,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// UnmarshalJSON also accepts "id" for the strategy id.
func (r *StrategyRef) UnmarshalJSON(b []byte) error {
	type plain StrategyRef
	var in struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return eris.Wrap(err, "exclusion: decode strategy ref")
	}
	*r = StrategyRef(in.plain)
	if r.ID == "" {
		r.ID = in.AltID
	}
	return nil
}

// DedupeKey identifies a ref for duplicate suppression.
func (r StrategyRef) DedupeKey() string {
	return strings.ToLower(r.ID + "::" + r.Name)
}

// Parse decodes an exclusion document.
func Parse(b []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, eris.Wrap(err, "exclusion: parse")
	}
	return &d, nil
}

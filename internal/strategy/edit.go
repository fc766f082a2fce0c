package strategy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Source values for PreviewMeta.
const (
	SourceCreate = "create"
	SourceEdit   = "edit"
)

// Previous is a loaded strategy about to be edited: its unwrapped payload and
// where it is stored.
type Previous struct {
	Payload json.RawMessage
	Bucket  string
	Key     string
	ETag    string
}

type head struct {
	StrategyID string          `json:"strategy_id"`
	Version    json.RawMessage `json:"version"`
	Metadata   struct {
		CreatedBy string `json:"created_by"`
		CreatedAt string `json:"created_at"`
	} `json:"metadata"`
}

// StrategyID returns the id stored in the previous payload, or "" when the
// payload has none or cannot be read.
func (p Previous) StrategyID() string {
	var h head
	if json.Unmarshal(p.Payload, &h) != nil {
		return ""
	}
	return strings.TrimSpace(h.StrategyID)
}

// Edit turns next (built from the edit form) into the successor of prev:
// version becomes prev+1, or 2 when prev's version is unreadable; created_*
// are carried over; edited_* are set; lineage goes into PreviewMeta.
// prev.Key must be set: an edit updates a known object, it never creates one.
// The strategy id is kept from prev; a different id in next is rejected.
func Edit(prev Previous, next Document, editor string, now time.Time) (Document, error) {
	if prev.Key == "" {
		return Document{}, eris.New("strategy: edit needs the loaded object key")
	}
	var h head
	if err := json.Unmarshal(prev.Payload, &h); err != nil {
		return Document{}, eris.Wrap(err, "strategy: read previous version")
	}

	pv, ok := ParseVersion(h.Version)
	next.Version = 2
	if ok {
		next.Version = pv + 1
	}
	prevID := strings.TrimSpace(h.StrategyID)
	switch {
	case next.StrategyID == "":
		next.StrategyID = prevID
	case prevID != "" && next.StrategyID != prevID:
		return Document{}, eris.Errorf("strategy: edit of %s cannot change its id to %s", prevID, next.StrategyID)
	}

	if h.Metadata.CreatedBy != "" {
		next.Metadata.CreatedBy = h.Metadata.CreatedBy
	}
	if h.Metadata.CreatedAt != "" {
		next.Metadata.CreatedAt = h.Metadata.CreatedAt
	}
	next.Metadata.EditedBy = editor
	next.Metadata.EditedAt = now.UTC().Format(time.RFC3339)
	next.Metadata.Version = next.Version

	pm := &PreviewMeta{
		UIOnly:             true,
		Source:             SourceEdit,
		PreviousStrategyID: h.StrategyID,
		OriginalCreatedAt:  h.Metadata.CreatedAt,
		OriginalCreatedBy:  h.Metadata.CreatedBy,
		PreviousS3Bucket:   prev.Bucket,
		PreviousS3Key:      prev.Key,
		PreviousS3ETag:     prev.ETag,
		Notes:              "Edited from an unversioned document.",
	}
	if ok {
		pm.PreviousVersion = &pv
		pm.Notes = fmt.Sprintf("Edited from version %d.", pv)
	}
	if next.PreviewMeta != nil && next.PreviewMeta.Notes != "" {
		pm.Notes = next.PreviewMeta.Notes
	}
	next.PreviewMeta = pm
	return next, nil
}

// ParseVersion reads a version that may be a JSON number or a numeric
// string. ok is false for anything else, including values below 1.
func ParseVersion(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

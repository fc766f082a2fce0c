package docstore

import (
	"encoding/json"
	"math"
	"strings"
)

// Summary is the lightweight projection of a stored document used by list
// views.
type Summary struct {
	Name      string          `json:"name"`
	Version   json.RawMessage `json:"version,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	SizeKB    float64         `json:"size_kb"`
}

type summaryFields struct {
	Name         string          `json:"name"`
	StrategyName string          `json:"strategy_name"`
	StrategyID   string          `json:"strategy_id"`
	ExclusionID  string          `json:"exclusion_id"`
	Version      json.RawMessage `json:"version"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    string          `json:"created_at"`
	Metadata     struct {
		CreatedBy string `json:"created_by"`
		CreatedAt string `json:"created_at"`
		Owner     string `json:"owner"`
	} `json:"metadata"`
}

// Summarize projects payload. Unreadable payloads still yield a summary
// named after the key.
func Summarize(key string, payload []byte, size int64) Summary {
	s := Summary{SizeKB: math.Round(float64(size)/1024*100) / 100}

	var f summaryFields
	_ = json.Unmarshal(payload, &f)

	s.Name = first(f.Name, f.StrategyName, f.StrategyID, f.ExclusionID, baseName(key))
	s.CreatedBy = first(f.Metadata.CreatedBy, f.CreatedBy, f.Metadata.Owner)
	s.CreatedAt = first(f.Metadata.CreatedAt, f.CreatedAt)
	if v := strings.TrimSpace(string(f.Version)); v != "" && v != "null" {
		s.Version = f.Version
	}
	return s
}

func first(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		key = key[i+1:]
	}
	return strings.TrimSuffix(key, ".json")
}

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// readFile decodes a YAML or JSON file into v, picked by extension. Files
// without a known extension are tried as YAML, which also accepts JSON.
func readFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(b, v); err != nil {
			return eris.Wrapf(err, "parse %s", path)
		}
	default:
		if err := yaml.Unmarshal(b, v); err != nil {
			return eris.Wrapf(err, "parse %s", path)
		}
	}
	return nil
}

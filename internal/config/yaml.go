package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// The display config ships as YAML (config.yaml on the device) but the
// typed decode relies on the JSON decoder's DisallowUnknownFields, so
// YAML input is first decoded loosely and re-marshaled as JSON. Files
// without a yaml extension are handed to the JSON decoder as-is.
//
// yaml/v3 decodes mappings with string keys into map[string]any, which
// json.Marshal handles directly; a non-string key (never valid in this
// config) fails the decode and is reported like any other syntax error.
func decodeToJSON(path string, data []byte) (jsonBytes []byte, format string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, "yaml", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	j, err := json.Marshal(tree)
	if err != nil {
		return nil, "yaml", fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}
	return j, "yaml", nil
}

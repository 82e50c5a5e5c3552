package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeJSON reads a scenario configuration in JSON form.
func DecodeJSON(r io.Reader) (*Config, error) {
	dec := json.NewDecoder(r)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding scenario json: %w", err)
	}

	return cfg, nil
}

// DecodeYAML reads a scenario configuration in YAML form.
func DecodeYAML(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding scenario yaml: %w", err)
	}

	return cfg, nil
}

// LoadFile reads a scenario configuration from a file, picking the decoder
// by extension (.json, .yaml, .yml).
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	default:
		return nil, fmt.Errorf("unsupported scenario file extension %q", filepath.Ext(path))
	}
}

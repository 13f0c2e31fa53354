package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// HeadlessConfig reads and writes the headless server's own JSON config file.
// The server tolerates comments and trailing commas in it, so reads do too.
type HeadlessConfig struct {
	path string
}

// NewHeadlessConfig returns a *ConfigurationError when no path is configured.
func NewHeadlessConfig(path string) (*HeadlessConfig, error) {
	if path == "" {
		return nil, &ConfigurationError{Key: "server.headless_config", Reason: "no headless config file configured"}
	}
	return &HeadlessConfig{path: path}, nil
}

// Path returns the config file location.
func (h *HeadlessConfig) Path() string {
	return h.path
}

// Read returns the config as a JSON object.
func (h *HeadlessConfig) Read() (map[string]any, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read headless config: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse headless config %s: %w", h.path, err)
	}
	return doc, nil
}

// Write replaces the config with data, which must be a JSON object. The file
// is replaced atomically so the server never sees a partial write.
func (h *HeadlessConfig) Write(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return fmt.Errorf("invalid headless config: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("invalid headless config: expected a JSON object")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode headless config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".headless-config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write headless config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write headless config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write headless config: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("failed to replace headless config: %w", err)
	}
	return nil
}

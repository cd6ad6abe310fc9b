package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

type decoder func([]byte) (Config, error)

// decoders maps a lower-cased file extension to its document format.
var decoders = map[string]decoder{
	".yaml": FromYAML,
	".yml":  FromYAML,
	".json": FromJSON,
}

// FromFile reads an engine document. The extension selects YAML or JSON.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func FromYAML(data []byte) (Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	return New(doc), nil
}

func FromJSON(data []byte) (Config, error) {
	var doc map[string]any
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("json: %w", err)
	}
	return New(doc), nil
}

// Load reads and validates an engine config. With no path every setting
// takes its default.
func Load(path string) (*Engine, error) {
	c := New(nil)
	if path != "" {
		var err error
		if c, err = FromFile(path); err != nil {
			return nil, err
		}
	}
	return Parse(c)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Loader fills Config objects: it registers their defaults first, then lets each of them read and validate its values.
type Loader struct {
	va *ViperAdapter
}

// NewDefaultLoader returns a Loader that also reads environment variables with the given prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return &Loader{va}
}

func NewLoader(va *ViperAdapter) *Loader {
	return &Loader{va}
}

// LoadFromFile reads the file and loads cfgs. An empty dataType is detected from the file extension.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if dataType == "" {
		var err error
		if dataType, err = DataTypeFromPath(path); err != nil {
			return err
		}
	}
	if err := l.va.ReadFile(path, dataType); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return l.load(cfg, cfgs)
}

func (l *Loader) LoadFromReader(r io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.va.Read(r, dataType); err != nil {
		return err
	}
	return l.load(cfg, cfgs)
}

// LoadDefaults loads cfgs from defaults and environment variables only.
func (l *Loader) LoadDefaults(cfg Config, cfgs ...Config) error {
	return l.load(cfg, cfgs)
}

func (l *Loader) load(first Config, rest []Config) error {
	all := append([]Config{first}, rest...)
	for _, c := range all {
		c.SetProviderDefaults(providerFor(c, l.va))
	}
	for _, c := range all {
		if err := c.Set(providerFor(c, l.va)); err != nil {
			return err
		}
	}
	return nil
}

// DataTypeFromPath maps a file extension to DataType.
func DataTypeFromPath(path string) (DataType, error) {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return DataTypeYAML, nil
	case ".json":
		return DataTypeJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file extension %q", ext)
	}
}

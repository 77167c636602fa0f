/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/config"
)

func loadConfig(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(t, "")
		require.NoError(t, err)
		require.Equal(t, LevelInfo, cfg.Level)
		require.Equal(t, FormatJSON, cfg.Format)
		require.Equal(t, OutputStdout, cfg.Output)
		require.EqualValues(t, DefaultFileRotationMaxSizeBytes, cfg.File.Rotation.MaxSize)
		require.Equal(t, DefaultFileRotationMaxBackups, cfg.File.Rotation.MaxBackups)
	})

	t.Run("text format, debug level", func(t *testing.T) {
		cfg, err := loadConfig(t, "log:\n  level: DEBUG\n  format: text\n")
		require.NoError(t, err)
		require.Equal(t, LevelDebug, cfg.Level)
		require.Equal(t, FormatText, cfg.Format)
	})

	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{"unknown level", "log:\n  level: trace\n", `log.level: unknown value "trace", should be one of [error warn info debug]`},
		{"file without path", "log:\n  output: file\n", `log.file.path: cannot be empty when "file" output is used`},
		{"tiny rotation size", "log:\n  file:\n    rotation:\n      maxSize: 1K\n", "log.file.rotation.maxSize: should be >= 1M"},
		{"no backups", "log:\n  file:\n    rotation:\n      maxBackups: 0\n", "log.file.rotation.maxBackups: should be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.data)
			require.EqualError(t, err, tt.errMsg)
		})
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "relay.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = logPath
	cfg.Level = LevelWarn

	logger, closeFn := NewLogger(cfg)
	logger.Info("not logged")
	logger.With(String("component", "upstream")).Warn("upstream disconnected", Error(errors.New("eof")))
	logger.WithLevel(LevelError).Warn("filtered by the derived level")
	logger.Error("upstream dial failed", Int("attempt", 3))
	closeFn()

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, entries, 2)

	require.Equal(t, "upstream disconnected", entries[0]["msg"])
	require.Equal(t, "warn", entries[0]["level"])
	require.Equal(t, "upstream", entries[0]["component"])
	require.Equal(t, "eof", entries[0]["error"])
	require.EqualValues(t, os.Getpid(), entries[0]["pid"])

	require.Equal(t, "upstream dial failed", entries[1]["msg"])
	require.Equal(t, "error", entries[1]["level"])
	require.EqualValues(t, 3, entries[1]["attempt"])
}

func TestExpandFilePath(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	res := expandFilePath("/var/log/wsrelay-{{starttime}}-{{pid}}.log", start)
	require.Equal(t, fmt.Sprintf("/var/log/wsrelay-202403051407-%d.log", os.Getpid()), res)
}

func TestLevelFromLogf(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		require.Equal(t, lvl, LevelFromLogf(lvl.logfLevel()))
	}
}

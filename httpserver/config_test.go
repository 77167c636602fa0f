/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-wsrelay/config"
)

func TestConfig(t *testing.T) {
	want := &Config{
		Address: "127.0.0.1:8080",
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(time.Hour),
			Read:       config.TimeDuration(7 * time.Minute),
			ReadHeader: config.TimeDuration(time.Minute),
			Idle:       config.TimeDuration(20 * time.Minute),
			Shutdown:   config.TimeDuration(30 * time.Second),
		},
		Limits: LimitsConfig{AcceptRate: 50, AcceptBurst: 10},
		Log:    LogConfig{ExcludedEndpoints: []string{"/healthz"}},
		TLS:    TLSConfig{Enabled: true, Certificate: "/etc/wsrelay/tls.crt", Key: "/etc/wsrelay/tls.key"},
	}
	const yamlData = `
server:
  address: "127.0.0.1:8080"
  timeouts: {write: 1h, read: 7m, readHeader: 1m, idle: 20m, shutdown: 30s}
  limits: {acceptRate: 50, acceptBurst: 10}
  log:
    excludedEndpoints: ["/healthz"]
  tls: {enabled: true, cert: /etc/wsrelay/tls.crt, key: /etc/wsrelay/tls.key}
`
	const jsonData = `{"server": {
	"address": "127.0.0.1:8080",
	"timeouts": {"write": "1h", "read": "7m", "readHeader": "1m", "idle": "20m", "shutdown": "30s"},
	"limits": {"acceptRate": 50, "acceptBurst": 10},
	"log": {"excludedEndpoints": ["/healthz"]},
	"tls": {"enabled": true, "cert": "/etc/wsrelay/tls.crt", "key": "/etc/wsrelay/tls.key"}
}}`

	type wrapper struct {
		Server *Config `mapstructure:"server" json:"server" yaml:"server"`
	}
	decoders := map[string]func(t *testing.T) *Config{
		"loader, yaml": func(t *testing.T) *Config {
			cfg := NewConfig()
			require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				strings.NewReader(yamlData), config.DataTypeYAML, cfg))
			return cfg
		},
		"loader, json": func(t *testing.T) *Config {
			cfg := NewConfig()
			require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				strings.NewReader(jsonData), config.DataTypeJSON, cfg))
			return cfg
		},
		"viper unmarshal": func(t *testing.T) *Config {
			w := wrapper{Server: NewDefaultConfig()}
			vpr := viper.New()
			vpr.SetConfigType("yaml")
			require.NoError(t, vpr.ReadConfig(strings.NewReader(yamlData)))
			require.NoError(t, vpr.Unmarshal(&w, config.UnmarshalOption))
			return w.Server
		},
		"yaml unmarshal": func(t *testing.T) *Config {
			w := wrapper{Server: NewDefaultConfig()}
			require.NoError(t, yaml.Unmarshal([]byte(yamlData), &w))
			return w.Server
		},
		"json unmarshal": func(t *testing.T) *Config {
			w := wrapper{Server: NewDefaultConfig()}
			require.NoError(t, json.Unmarshal([]byte(jsonData), &w))
			return w.Server
		},
	}
	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, want, decode(t))
		})
	}
}

func TestConfig_ExcludedEndpointsReplaceDefaults(t *testing.T) {
	const yamlData = "server:\n  log:\n    excludedEndpoints: [/metrics]\n"

	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(strings.NewReader(yamlData), config.DataTypeYAML, cfg))
	require.Equal(t, []string{"/metrics"}, cfg.Log.ExcludedEndpoints)

	w := struct {
		Server *Config `mapstructure:"server"`
	}{Server: NewDefaultConfig()}
	vpr := viper.New()
	vpr.SetConfigType("yaml")
	require.NoError(t, vpr.ReadConfig(strings.NewReader(yamlData)))
	require.NoError(t, vpr.Unmarshal(&w, config.UnmarshalOption))
	require.Equal(t, []string{"/metrics"}, w.Server.Log.ExcludedEndpoints)
	require.Equal(t, NewDefaultConfig().Timeouts, w.Server.Timeouts, "defaults of absent keys must be kept")
	require.Equal(t, DefaultAddress, w.Server.Address)
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(strings.NewReader(""), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, DefaultAddress, cfg.Address)
	require.Equal(t, []string{"/healthz", "/readyz"}, cfg.Log.ExcludedEndpoints)
}

func TestConfig_AcceptBurstDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		strings.NewReader("server:\n  limits:\n    acceptRate: 5\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, float64(5), cfg.Limits.AcceptRate)
	require.Equal(t, 1, cfg.Limits.AcceptBurst)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name:           "error, invalid address",
			yamlData:       "server:\n  address: []\n",
			expectedErrMsg: `server.address: unable to cast`,
		},
		{
			name:           "error, empty address",
			yamlData:       "server:\n  address: \"\"\n",
			expectedErrMsg: `server.address: cannot be empty`,
		},
		{
			name:           "error, tls without key",
			yamlData:       "server:\n  tls:\n    enabled: true\n    cert: /test/path\n",
			expectedErrMsg: `server.tls.key: both cert and key should be set`,
		},
		{
			name:           "error, zero shutdown timeout",
			yamlData:       "server:\n  timeouts:\n    shutdown: 0s\n",
			expectedErrMsg: `server.timeouts.shutdown: must be positive`,
		},
		{
			name:           "error, negative accept rate",
			yamlData:       "server:\n  limits:\n    acceptRate: -1\n",
			expectedErrMsg: `server.limits.acceptRate: cannot be negative`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(strings.NewReader(tt.yamlData), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.expectedErrMsg)
		})
	}
}

func TestMetricsConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewMetricsConfig()
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(strings.NewReader(""), config.DataTypeYAML, cfg))
		require.Equal(t, NewDefaultMetricsConfig(), cfg)
	})

	t.Run("disabled with empty address", func(t *testing.T) {
		cfg := NewMetricsConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			strings.NewReader("metricsServer:\n  enabled: false\n  address: \"\"\n"), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.False(t, cfg.Enabled)
	})

	t.Run("error, relative path", func(t *testing.T) {
		cfg := NewMetricsConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			strings.NewReader("metricsServer:\n  path: metrics\n"), config.DataTypeYAML, cfg)
		require.EqualError(t, err, `metricsServer.path: must start with "/"`)
	})
}

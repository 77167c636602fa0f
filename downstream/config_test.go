/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"bytes"
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
		def := NewDefaultConfig()
		require.Equal(t, def.QueueDepth, cfg.QueueDepth)
		require.Equal(t, def.ShedThreshold, cfg.ShedThreshold)
		require.Equal(t, def.WriteTimeout, cfg.WriteTimeout)
		require.Equal(t, def.PingInterval, cfg.PingInterval)
		require.Equal(t, def.PongTimeout, cfg.PongTimeout)
		require.Equal(t, def.ReadLimit, cfg.ReadLimit)
		require.Equal(t, def.HandshakeTimeout, cfg.HandshakeTimeout)
		require.Equal(t, def.AdmissionTimeout, cfg.AdmissionTimeout)
		require.Equal(t, def.ReleaseTimeout, cfg.ReleaseTimeout)
		require.Equal(t, def.ShutdownGrace, cfg.ShutdownGrace)
		require.Equal(t, def.ClientAddrHeader, cfg.ClientAddrHeader)
		require.Empty(t, cfg.APIKeys)
		require.Empty(t, cfg.AllowedOrigins)
	})

	t.Run("all values", func(t *testing.T) {
		cfg, err := loadConfig(t, `
downstream:
  queueDepth: 64
  shedThreshold: 128
  writeTimeout: 1s
  pingInterval: 15s
  pongTimeout: 45s
  readLimit: 1K
  handshakeTimeout: 3s
  admissionTimeout: 500ms
  releaseTimeout: 1s
  shutdownGrace: 30s
  clientAddrHeader: x-real-ip
  apiKeys: [k1, k2]
  allowedOrigins: "https://*.example.com, https://example.com"
`)
		require.NoError(t, err)
		require.Equal(t, 64, cfg.QueueDepth)
		require.Equal(t, 128, cfg.ShedThreshold)
		require.Equal(t, time.Second, cfg.WriteTimeout.Duration())
		require.Equal(t, 15*time.Second, cfg.PingInterval.Duration())
		require.Equal(t, 45*time.Second, cfg.PongTimeout.Duration())
		require.EqualValues(t, 1024, cfg.ReadLimit)
		require.Equal(t, 3*time.Second, cfg.HandshakeTimeout.Duration())
		require.Equal(t, 500*time.Millisecond, cfg.AdmissionTimeout.Duration())
		require.Equal(t, time.Second, cfg.ReleaseTimeout.Duration())
		require.Equal(t, 30*time.Second, cfg.ShutdownGrace.Duration())
		require.Equal(t, "X-Real-Ip", cfg.ClientAddrHeader)
		require.Equal(t, []string{"k1", "k2"}, cfg.APIKeys)
		require.Equal(t, []string{"https://*.example.com", "https://example.com"}, cfg.AllowedOrigins)

		rOpts := cfg.RegistryOpts(nil)
		require.EqualValues(t, 1024, rOpts.ReadLimit)
		require.Equal(t, 30*time.Second, rOpts.ShutdownGrace)
		bOpts := cfg.BroadcasterOpts(nil)
		require.Equal(t, 64, bOpts.QueueDepth)
		require.Equal(t, 128, bOpts.ShedThreshold)
	})

	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{"zero queue depth", "downstream:\n  queueDepth: 0\n", "downstream.queueDepth: must be positive"},
		{"negative shed threshold", "downstream:\n  shedThreshold: -1\n", "downstream.shedThreshold: must be positive"},
		{"zero write timeout", "downstream:\n  writeTimeout: 0s\n", "downstream.writeTimeout: must be positive, got 0s"},
		{"pong not after ping", "downstream:\n  pingInterval: 30s\n  pongTimeout: 30s\n",
			"downstream.pongTimeout: must be greater than pingInterval (30s)"},
		{"zero read limit", "downstream:\n  readLimit: 0\n", "downstream.readLimit: must be positive"},
		{"empty api key", "downstream:\n  apiKeys: [k1, \"\"]\n", "downstream.apiKeys: cannot contain empty keys"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.data)
			require.EqualError(t, err, tt.errMsg)
		})
	}
}

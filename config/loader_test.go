/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testServerConfig struct {
	Address string
	Grace   TimeDuration
}

func (c *testServerConfig) KeyPrefix() string { return "server" }

func (c *testServerConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("address", ":8545")
	dp.SetDefault("grace", "5s")
}

func (c *testServerConfig) Set(dp DataProvider) error {
	var err error
	if c.Address, err = dp.GetString("address"); err != nil {
		return err
	}
	c.Grace, err = GetPositiveTimeDuration(dp, "grace")
	return err
}

type testLimitsConfig struct {
	Global int
}

func (c *testLimitsConfig) KeyPrefix() string { return "rateLimit.global" }

func (c *testLimitsConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("limit", 100)
}

func (c *testLimitsConfig) Set(dp DataProvider) error {
	var err error
	c.Global, err = dp.GetInt("limit")
	return err
}

type testAppConfig struct {
	Server *testServerConfig
	Limits *testLimitsConfig
	Skip   *testLimitsConfig
}

func (c *testAppConfig) SetProviderDefaults(dp DataProvider) { CallSetProviderDefaultsForFields(c, dp) }

func (c *testAppConfig) Set(dp DataProvider) error { return CallSetForFields(c, dp) }

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		srvCfg := &testServerConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, srvCfg)
		require.NoError(t, err)
		require.Equal(t, ":8545", srvCfg.Address)
		require.Equal(t, 5*time.Second, srvCfg.Grace.Duration())
	})

	t.Run("values from yaml", func(t *testing.T) {
		srvCfg := &testServerConfig{}
		limCfg := &testLimitsConfig{}
		cfgData := "server:\n  address: \":9999\"\n  grace: 1m\nrateLimit:\n  global:\n    limit: 7\n"
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), DataTypeYAML, srvCfg, limCfg)
		require.NoError(t, err)
		require.Equal(t, ":9999", srvCfg.Address)
		require.Equal(t, time.Minute, srvCfg.Grace.Duration())
		require.Equal(t, 7, limCfg.Global)
	})

	t.Run("validation error contains full key", func(t *testing.T) {
		srvCfg := &testServerConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"server":{"grace":"0s"}}`), DataTypeJSON, srvCfg)
		require.EqualError(t, err, "server.grace: must be positive, got 0s")
	})

	t.Run("nested configs via fields", func(t *testing.T) {
		appCfg := &testAppConfig{Server: &testServerConfig{}, Limits: &testLimitsConfig{}}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"rateLimit":{"global":{"limit":3}}}`), DataTypeJSON, appCfg)
		require.NoError(t, err)
		require.Equal(t, ":8545", appCfg.Server.Address)
		require.Equal(t, 3, appCfg.Limits.Global)
		require.Nil(t, appCfg.Skip)
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":7000\"\n"), 0o600))

	srvCfg := &testServerConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(path, "", srvCfg))
	require.Equal(t, ":7000", srvCfg.Address)

	_, err := DataTypeFromPath("relay.toml")
	require.Error(t, err)
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("WSRELAY_SERVER_ADDRESS", ":1234")
	t.Setenv("WSRELAY_RATELIMIT_GLOBAL_LIMIT", "42")

	srvCfg := &testServerConfig{}
	limCfg := &testLimitsConfig{}
	require.NoError(t, NewDefaultLoader("wsrelay").LoadDefaults(srvCfg, limCfg))
	require.Equal(t, ":1234", srvCfg.Address)
	require.Equal(t, 42, limCfg.Global)
}

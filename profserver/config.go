/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"fmt"
	"net"

	"github.com/acronis/go-wsrelay/config"
)

const (
	cfgKeyPrefix  = "profServer"
	cfgKeyEnabled = "enabled"
	cfgKeyAddress = "address"
)

// DefaultAddress is loopback only: pprof exposes process internals.
const DefaultAddress = "127.0.0.1:8081"

// Config is the profiling server configuration. The server is off unless Enabled is set.
type Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig returns a Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig returns a Config holding the same values the loader would set for empty input.
func NewDefaultConfig() *Config {
	return &Config{Address: DefaultAddress}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyEnabled)
	if err != nil {
		return err
	}
	addr, err := dp.GetString(cfgKeyAddress)
	if err != nil {
		return err
	}
	if _, _, err = net.SplitHostPort(addr); err != nil {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("should be in host:port form, got %q", addr))
	}
	c.Enabled, c.Address = enabled, addr
	return nil
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package attemptlimit

import (
	"fmt"

	"github.com/acronis/go-wsrelay/config"
	"github.com/acronis/go-wsrelay/lrucache"
)

// Alg is a rate limiting algorithm.
type Alg string

// Supported algorithms.
const (
	AlgLeakyBucket   Alg = "leaky_bucket"
	AlgSlidingWindow Alg = "sliding_window"
)

const (
	cfgKeyEnabled = "enabled"
	cfgKeyAlg     = "alg"
	cfgKeyRate    = "rate"
	cfgKeyBurst   = "burst"
	cfgKeyMaxKeys = "maxKeys"
)

const (
	defaultRate    = "5/s"
	defaultBurst   = 10
	defaultMaxKeys = 10000
)

// Config is a configuration of the per-address attempt limiter.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Alg     Alg  `mapstructure:"alg" yaml:"alg" json:"alg"`
	Rate    Rate `mapstructure:"-" yaml:"-" json:"-"`
	// Burst is only used by the leaky bucket algorithm.
	Burst   int `mapstructure:"burst" yaml:"burst" json:"burst"`
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config that is read under the given key prefix.
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAlg, string(AlgLeakyBucket))
	dp.SetDefault(cfgKeyRate, defaultRate)
	dp.SetDefault(cfgKeyBurst, defaultBurst)
	dp.SetDefault(cfgKeyMaxKeys, defaultMaxKeys)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}

	var alg string
	if alg, err = dp.GetStringFromSet(cfgKeyAlg, []string{string(AlgLeakyBucket), string(AlgSlidingWindow)}, true); err != nil {
		return err
	}
	c.Alg = Alg(alg)

	var rateStr string
	if rateStr, err = dp.GetString(cfgKeyRate); err != nil {
		return err
	}
	if c.Rate, err = ParseRate(rateStr); err != nil {
		return dp.WrapKeyErr(cfgKeyRate, err)
	}

	if c.Burst, err = dp.GetInt(cfgKeyBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyBurst, fmt.Errorf("must be >= 0"))
	}

	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, fmt.Errorf("must be positive"))
	}
	return nil
}

// New creates a limiter according to the configuration.
// It returns nil Limiter if limiting is disabled.
func New(cfg *Config, keysZoneMetrics lrucache.MetricsCollector) (Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Alg {
	case AlgSlidingWindow:
		lim, err := NewSlidingWindowLimiter(cfg.Rate, cfg.MaxKeys, keysZoneMetrics)
		if err != nil {
			return nil, err
		}
		return lim, nil
	case AlgLeakyBucket, "":
		lim, err := NewLeakyBucketLimiter(cfg.Rate, cfg.Burst, cfg.MaxKeys)
		if err != nil {
			return nil, err
		}
		return lim, nil
	}
	return nil, fmt.Errorf("unknown attempt limit algorithm %q", cfg.Alg)
}

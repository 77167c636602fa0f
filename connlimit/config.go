/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import (
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/go-wsrelay/config"
)

// StoreType is a type of the counters store.
type StoreType string

// Store types.
const (
	StoreTypeLocal StoreType = "local"
	StoreTypeRedis StoreType = "redis"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyGlobalLimit                 = "global.limit"
	cfgKeyPerAddressLimit             = "perAddress.limit"
	cfgKeyPerAddressExcludedAddresses = "perAddress.excludedAddresses"
	cfgKeyStoreType                   = "store.type"
	cfgKeyStoreRedisURL               = "store.redis.url"
	cfgKeyStoreRedisKeyPrefix         = "store.redis.keyPrefix"
	cfgKeyStoreRedisOperationTimeout  = "store.redis.operationTimeout"
	cfgKeyStoreRedisKeyTTL            = "store.redis.keyTTL"
	cfgKeyStoreRedisProbeInterval     = "store.redis.probeInterval"
	cfgKeyStoreRedisReleaseRetries    = "store.redis.releaseRetries"
)

// Default values.
const (
	DefaultGlobalLimit           = 100
	DefaultPerAddressLimit       = 10
	DefaultRedisKeyPrefix        = "wsrelay:conn:"
	DefaultRedisOperationTimeout = 250 * time.Millisecond
	DefaultRedisKeyTTL           = time.Hour
	DefaultRedisProbeInterval    = 5 * time.Second
	DefaultRedisReleaseRetries   = 3
)

// Config represents a set of configuration parameters for connection limiting.
type Config struct {
	Global     GlobalConfig     `mapstructure:"global" yaml:"global" json:"global"`
	PerAddress PerAddressConfig `mapstructure:"perAddress" yaml:"perAddress" json:"perAddress"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store" json:"store"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// GlobalConfig configures the cap on all connections.
type GlobalConfig struct {
	Limit int64 `mapstructure:"limit" yaml:"limit" json:"limit"`
}

// PerAddressConfig configures the cap on connections from a single client address.
// Addresses matching ExcludedAddresses (glob patterns) are only counted globally.
type PerAddressConfig struct {
	Limit             int64    `mapstructure:"limit" yaml:"limit" json:"limit"`
	ExcludedAddresses []string `mapstructure:"excludedAddresses" yaml:"excludedAddresses" json:"excludedAddresses"`
}

// StoreConfig configures where counters are kept.
type StoreConfig struct {
	Type  StoreType   `mapstructure:"type" yaml:"type" json:"type"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// RedisConfig configures the Redis counters store.
type RedisConfig struct {
	URL              string              `mapstructure:"url" yaml:"url" json:"url"`
	KeyPrefix        string              `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	OperationTimeout config.TimeDuration `mapstructure:"operationTimeout" yaml:"operationTimeout" json:"operationTimeout"`
	KeyTTL           config.TimeDuration `mapstructure:"keyTTL" yaml:"keyTTL" json:"keyTTL"`
	ProbeInterval    config.TimeDuration `mapstructure:"probeInterval" yaml:"probeInterval" json:"probeInterval"`
	ReleaseRetries   int                 `mapstructure:"releaseRetries" yaml:"releaseRetries" json:"releaseRetries"`
}

// NewConfig returns a Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	cfg := NewConfig()
	cfg.Global.Limit = DefaultGlobalLimit
	cfg.PerAddress.Limit = DefaultPerAddressLimit
	cfg.Store = StoreConfig{
		Type: StoreTypeLocal,
		Redis: RedisConfig{
			KeyPrefix:        DefaultRedisKeyPrefix,
			OperationTimeout: config.TimeDuration(DefaultRedisOperationTimeout),
			KeyTTL:           config.TimeDuration(DefaultRedisKeyTTL),
			ProbeInterval:    config.TimeDuration(DefaultRedisProbeInterval),
			ReleaseRetries:   DefaultRedisReleaseRetries,
		},
	}
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyGlobalLimit, DefaultGlobalLimit)
	dp.SetDefault(cfgKeyPerAddressLimit, DefaultPerAddressLimit)
	dp.SetDefault(cfgKeyStoreType, string(StoreTypeLocal))
	dp.SetDefault(cfgKeyStoreRedisKeyPrefix, DefaultRedisKeyPrefix)
	dp.SetDefault(cfgKeyStoreRedisOperationTimeout, DefaultRedisOperationTimeout.String())
	dp.SetDefault(cfgKeyStoreRedisKeyTTL, DefaultRedisKeyTTL.String())
	dp.SetDefault(cfgKeyStoreRedisProbeInterval, DefaultRedisProbeInterval.String())
	dp.SetDefault(cfgKeyStoreRedisReleaseRetries, DefaultRedisReleaseRetries)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Global.Limit, err = getNonNegativeLimit(dp, cfgKeyGlobalLimit); err != nil {
		return err
	}
	if c.PerAddress.Limit, err = getNonNegativeLimit(dp, cfgKeyPerAddressLimit); err != nil {
		return err
	}
	if c.PerAddress.ExcludedAddresses, err = dp.GetStringSlice(cfgKeyPerAddressExcludedAddresses); err != nil {
		return err
	}

	var storeType string
	if storeType, err = dp.GetStringFromSet(
		cfgKeyStoreType, []string{string(StoreTypeLocal), string(StoreTypeRedis)}, true); err != nil {
		return err
	}
	c.Store.Type = StoreType(storeType)

	return c.setRedisConfig(dp)
}

func (c *Config) setRedisConfig(dp config.DataProvider) error {
	var err error

	if c.Store.Redis.URL, err = dp.GetString(cfgKeyStoreRedisURL); err != nil {
		return err
	}
	if c.Store.Type == StoreTypeRedis {
		if c.Store.Redis.URL == "" {
			return dp.WrapKeyErr(cfgKeyStoreRedisURL, fmt.Errorf("cannot be empty when %q store is used", StoreTypeRedis))
		}
		if _, err = url.Parse(c.Store.Redis.URL); err != nil {
			return dp.WrapKeyErr(cfgKeyStoreRedisURL, err)
		}
	}
	if c.Store.Redis.KeyPrefix, err = dp.GetString(cfgKeyStoreRedisKeyPrefix); err != nil {
		return err
	}
	if c.Store.Redis.OperationTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyStoreRedisOperationTimeout); err != nil {
		return err
	}
	if c.Store.Redis.KeyTTL, err = config.GetPositiveTimeDuration(dp, cfgKeyStoreRedisKeyTTL); err != nil {
		return err
	}
	if c.Store.Redis.ProbeInterval, err = config.GetPositiveTimeDuration(dp, cfgKeyStoreRedisProbeInterval); err != nil {
		return err
	}
	if c.Store.Redis.ReleaseRetries, err = dp.GetInt(cfgKeyStoreRedisReleaseRetries); err != nil {
		return err
	}
	if c.Store.Redis.ReleaseRetries < 0 {
		return dp.WrapKeyErr(cfgKeyStoreRedisReleaseRetries, fmt.Errorf("should be >= 0"))
	}
	return nil
}

func getNonNegativeLimit(dp config.DataProvider, key string) (int64, error) {
	limit, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be >= 0"))
	}
	return int64(limit), nil
}

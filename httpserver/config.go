/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"errors"
	"time"

	"github.com/acronis/go-wsrelay/config"
)

const (
	cfgKeyPrefix            = "server"
	cfgKeyAddress           = "address"
	cfgKeyTLSEnabled        = "tls.enabled"
	cfgKeyTLSCert           = "tls.cert"
	cfgKeyTLSKey            = "tls.key"
	cfgKeyTimeoutWrite      = "timeouts.write"
	cfgKeyTimeoutRead       = "timeouts.read"
	cfgKeyTimeoutReadHeader = "timeouts.readHeader"
	cfgKeyTimeoutIdle       = "timeouts.idle"
	cfgKeyTimeoutShutdown   = "timeouts.shutdown"
	cfgKeyAcceptRate        = "limits.acceptRate"
	cfgKeyAcceptBurst       = "limits.acceptBurst"
	cfgKeyLogExcluded       = "log.excludedEndpoints"
)

// DefaultAddress is where downstream clients connect unless configured otherwise.
const DefaultAddress = "0.0.0.0:8545"

var (
	errEmpty    = errors.New("cannot be empty")
	errNegative = errors.New("cannot be negative")
)

// Config is the "server" section: the listener serving websocket upgrades and health endpoints.
// Besides config.Loader it may be decoded with viper, yaml.Unmarshal or json.Unmarshal.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TimeoutsConfig bounds plain HTTP requests. Upgraded websocket connections are hijacked
// and manage their own deadlines.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	// Shutdown bounds the graceful stop.
	Shutdown config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// LimitsConfig throttles accepting of TCP connections.
type LimitsConfig struct {
	// AcceptRate is connections per second. Zero disables throttling.
	AcceptRate float64 `mapstructure:"acceptRate" yaml:"acceptRate" json:"acceptRate"`
	// AcceptBurst is raised to 1 when AcceptRate is set.
	AcceptBurst int `mapstructure:"acceptBurst" yaml:"acceptBurst" json:"acceptBurst"`
}

// LogConfig lists endpoints whose successful requests are not logged.
type LogConfig struct {
	ExcludedEndpoints []string `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
}

// TLSConfig enables serving wss:// directly with the given certificate and key files.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig returns a Config holding the same values the loader would set for empty input.
func NewDefaultConfig() *Config {
	return &Config{
		Address: DefaultAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(30 * time.Second),
			Read:       config.TimeDuration(15 * time.Second),
			ReadHeader: config.TimeDuration(10 * time.Second),
			Idle:       config.TimeDuration(time.Minute),
			Shutdown:   config.TimeDuration(5 * time.Second),
		},
		Log: LogConfig{ExcludedEndpoints: []string{healthzEndpoint, readyzEndpoint}},
	}
}

func (c *Config) KeyPrefix() string {
	return cfgKeyPrefix
}

func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	def := NewDefaultConfig()
	dp.SetDefault(cfgKeyAddress, def.Address)
	dp.SetDefault(cfgKeyTimeoutWrite, def.Timeouts.Write.Duration())
	dp.SetDefault(cfgKeyTimeoutRead, def.Timeouts.Read.Duration())
	dp.SetDefault(cfgKeyTimeoutReadHeader, def.Timeouts.ReadHeader.Duration())
	dp.SetDefault(cfgKeyTimeoutIdle, def.Timeouts.Idle.Duration())
	dp.SetDefault(cfgKeyTimeoutShutdown, def.Timeouts.Shutdown.Duration())
	dp.SetDefault(cfgKeyLogExcluded, def.Log.ExcludedEndpoints)
}

func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errEmpty)
	}
	for _, set := range []func(config.DataProvider) error{c.setTLS, c.setTimeouts, c.setLimits} {
		if err = set(dp); err != nil {
			return err
		}
	}
	c.Log.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcluded)
	return err
}

func (c *Config) setTLS(dp config.DataProvider) (err error) {
	if c.TLS.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if c.TLS.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if c.TLS.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if c.TLS.Enabled && (c.TLS.Certificate == "" || c.TLS.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, errors.New("both cert and key should be set"))
	}
	return nil
}

func (c *Config) setTimeouts(dp config.DataProvider) error {
	for key, dst := range map[string]*config.TimeDuration{
		cfgKeyTimeoutWrite:      &c.Timeouts.Write,
		cfgKeyTimeoutRead:       &c.Timeouts.Read,
		cfgKeyTimeoutReadHeader: &c.Timeouts.ReadHeader,
		cfgKeyTimeoutIdle:       &c.Timeouts.Idle,
	} {
		d, err := dp.GetDuration(key)
		if err != nil {
			return err
		}
		*dst = config.TimeDuration(d)
	}
	var err error
	c.Timeouts.Shutdown, err = config.GetPositiveTimeDuration(dp, cfgKeyTimeoutShutdown)
	return err
}

func (c *Config) setLimits(dp config.DataProvider) (err error) {
	l := &c.Limits
	if l.AcceptRate, err = dp.GetFloat64(cfgKeyAcceptRate); err != nil {
		return err
	}
	if l.AcceptRate < 0 {
		return dp.WrapKeyErr(cfgKeyAcceptRate, errNegative)
	}
	if l.AcceptBurst, err = dp.GetInt(cfgKeyAcceptBurst); err != nil {
		return err
	}
	if l.AcceptBurst < 0 {
		return dp.WrapKeyErr(cfgKeyAcceptBurst, errNegative)
	}
	if l.AcceptRate > 0 && l.AcceptBurst == 0 {
		l.AcceptBurst = 1
	}
	return nil
}

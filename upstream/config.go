/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"fmt"
	"net/url"
	"time"

	"code.cloudfoundry.org/bytefmt"

	"github.com/acronis/go-wsrelay/config"
	"github.com/acronis/go-wsrelay/netutil"
)

const cfgDefaultKeyPrefix = "upstream"

const (
	cfgKeyURL               = "url"
	cfgKeyHeaders           = "headers"
	cfgKeyBackoffMin        = "backoff.min"
	cfgKeyBackoffMax        = "backoff.max"
	cfgKeyBackoffMultiplier = "backoff.multiplier"
	cfgKeyBackoffJitter     = "backoff.jitter"
	cfgKeyHandshakeTimeout  = "handshakeTimeout"
	cfgKeyReadLimit         = "readLimit"
	cfgKeyPingInterval      = "pingInterval"
	cfgKeyPongTimeout       = "pongTimeout"
	cfgKeyDNSServers        = "dns.servers"
	cfgKeyDNSTimeout        = "dns.timeout"
)

// Default values.
const (
	DefaultBackoffMin        = 50 * time.Millisecond
	DefaultBackoffMax        = 20 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffJitter     = 0.2
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReadLimit         = 16 * 1024 * 1024
	DefaultPingInterval      = 10 * time.Second
	DefaultPongTimeout       = 30 * time.Second
	DefaultDNSTimeout        = 2 * time.Second
)

// Config represents a set of configuration parameters of the upstream link.
type Config struct {
	URL              string              `mapstructure:"url" yaml:"url" json:"url"`
	Headers          map[string]string   `mapstructure:"headers" yaml:"headers" json:"headers"`
	Backoff          BackoffConfig       `mapstructure:"backoff" yaml:"backoff" json:"backoff"`
	HandshakeTimeout config.TimeDuration `mapstructure:"handshakeTimeout" yaml:"handshakeTimeout" json:"handshakeTimeout"`
	ReadLimit        config.ByteSize     `mapstructure:"readLimit" yaml:"readLimit" json:"readLimit"`
	PingInterval     config.TimeDuration `mapstructure:"pingInterval" yaml:"pingInterval" json:"pingInterval"`
	PongTimeout      config.TimeDuration `mapstructure:"pongTimeout" yaml:"pongTimeout" json:"pongTimeout"`
	DNS              DNSConfig           `mapstructure:"dns" yaml:"dns" json:"dns"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// BackoffConfig configures reconnect delays.
type BackoffConfig struct {
	Min        config.TimeDuration `mapstructure:"min" yaml:"min" json:"min"`
	Max        config.TimeDuration `mapstructure:"max" yaml:"max" json:"max"`
	Multiplier float64             `mapstructure:"multiplier" yaml:"multiplier" json:"multiplier"`
	Jitter     float64             `mapstructure:"jitter" yaml:"jitter" json:"jitter"`
}

// DNSConfig configures resolving of the upstream host.
// The system resolver is used when Servers is empty.
type DNSConfig struct {
	Servers []string            `mapstructure:"servers" yaml:"servers" json:"servers"`
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values and the given URL.
func NewDefaultConfig(rawURL string) *Config {
	return &Config{
		URL:     rawURL,
		Headers: map[string]string{},
		Backoff: BackoffConfig{
			Min:        config.TimeDuration(DefaultBackoffMin),
			Max:        config.TimeDuration(DefaultBackoffMax),
			Multiplier: DefaultBackoffMultiplier,
			Jitter:     DefaultBackoffJitter,
		},
		HandshakeTimeout: config.TimeDuration(DefaultHandshakeTimeout),
		ReadLimit:        DefaultReadLimit,
		PingInterval:     config.TimeDuration(DefaultPingInterval),
		PongTimeout:      config.TimeDuration(DefaultPongTimeout),
		DNS: DNSConfig{
			Servers: []string{},
			Timeout: config.TimeDuration(DefaultDNSTimeout),
		},
		keyPrefix: cfgDefaultKeyPrefix,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBackoffMin, DefaultBackoffMin.String())
	dp.SetDefault(cfgKeyBackoffMax, DefaultBackoffMax.String())
	dp.SetDefault(cfgKeyBackoffMultiplier, DefaultBackoffMultiplier)
	dp.SetDefault(cfgKeyBackoffJitter, DefaultBackoffJitter)
	dp.SetDefault(cfgKeyHandshakeTimeout, DefaultHandshakeTimeout.String())
	dp.SetDefault(cfgKeyReadLimit, bytefmt.ByteSize(DefaultReadLimit))
	dp.SetDefault(cfgKeyPingInterval, DefaultPingInterval.String())
	dp.SetDefault(cfgKeyPongTimeout, DefaultPongTimeout.String())
	dp.SetDefault(cfgKeyDNSServers, []string{})
	dp.SetDefault(cfgKeyDNSTimeout, DefaultDNSTimeout.String())
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.URL, err = dp.GetString(cfgKeyURL); err != nil {
		return err
	}
	if err = ValidateURL(c.URL); err != nil {
		return dp.WrapKeyErr(cfgKeyURL, err)
	}
	if c.Headers, err = dp.GetStringMapString(cfgKeyHeaders); err != nil {
		return err
	}

	if err = c.setBackoffConfig(dp); err != nil {
		return err
	}

	if c.HandshakeTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyHandshakeTimeout); err != nil {
		return err
	}
	var readLimit uint64
	if readLimit, err = dp.GetSizeInBytes(cfgKeyReadLimit); err != nil {
		return err
	}
	if readLimit == 0 {
		return dp.WrapKeyErr(cfgKeyReadLimit, fmt.Errorf("must be positive"))
	}
	c.ReadLimit = config.ByteSize(readLimit)

	if c.PingInterval, err = config.GetPositiveTimeDuration(dp, cfgKeyPingInterval); err != nil {
		return err
	}
	if c.PongTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyPongTimeout); err != nil {
		return err
	}
	if c.PongTimeout <= c.PingInterval {
		return dp.WrapKeyErr(cfgKeyPongTimeout, fmt.Errorf("must be greater than %s (%s)", cfgKeyPingInterval, c.PingInterval.Duration()))
	}

	if c.DNS.Servers, err = dp.GetStringSlice(cfgKeyDNSServers); err != nil {
		return err
	}
	if _, err = netutil.NormalizeDNSServers(c.DNS.Servers); err != nil {
		return dp.WrapKeyErr(cfgKeyDNSServers, err)
	}
	if c.DNS.Timeout, err = config.GetPositiveTimeDuration(dp, cfgKeyDNSTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) setBackoffConfig(dp config.DataProvider) error {
	var err error
	if c.Backoff.Min, err = config.GetPositiveTimeDuration(dp, cfgKeyBackoffMin); err != nil {
		return err
	}
	if c.Backoff.Max, err = config.GetPositiveTimeDuration(dp, cfgKeyBackoffMax); err != nil {
		return err
	}
	if c.Backoff.Max < c.Backoff.Min {
		return dp.WrapKeyErr(cfgKeyBackoffMax, fmt.Errorf("must be >= %s (%s)", cfgKeyBackoffMin, c.Backoff.Min.Duration()))
	}
	if c.Backoff.Multiplier, err = dp.GetFloat64(cfgKeyBackoffMultiplier); err != nil {
		return err
	}
	if c.Backoff.Multiplier < 1 {
		return dp.WrapKeyErr(cfgKeyBackoffMultiplier, fmt.Errorf("must be >= 1"))
	}
	if c.Backoff.Jitter, err = dp.GetFloat64(cfgKeyBackoffJitter); err != nil {
		return err
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return dp.WrapKeyErr(cfgKeyBackoffJitter, fmt.Errorf("must be within [0, 1]"))
	}
	return nil
}

// ValidateURL checks that the URL is an absolute ws:// or wss:// URL.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme %q, ws or wss expected", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}

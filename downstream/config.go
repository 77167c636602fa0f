/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-wsrelay/config"
	"github.com/acronis/go-wsrelay/fanout"
)

const cfgDefaultKeyPrefix = "downstream"

const (
	cfgKeyQueueDepth       = "queueDepth"
	cfgKeyShedThreshold    = "shedThreshold"
	cfgKeyWriteTimeout     = "writeTimeout"
	cfgKeyPingInterval     = "pingInterval"
	cfgKeyPongTimeout      = "pongTimeout"
	cfgKeyReadLimit        = "readLimit"
	cfgKeyHandshakeTimeout = "handshakeTimeout"
	cfgKeyAdmissionTimeout = "admissionTimeout"
	cfgKeyReleaseTimeout   = "releaseTimeout"
	cfgKeyShutdownGrace    = "shutdownGrace"
	cfgKeyClientAddrHeader = "clientAddrHeader"
	cfgKeyAPIKeys          = "apiKeys"
	cfgKeyAllowedOrigins   = "allowedOrigins"
)

// Default values.
const (
	DefaultQueueDepth       = fanout.DefaultQueueDepth
	DefaultShedThreshold    = fanout.DefaultShedThreshold
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultPongTimeout      = 60 * time.Second
	DefaultReadLimit        = 4 * 1024
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultAdmissionTimeout = 2 * time.Second
	DefaultReleaseTimeout   = 2 * time.Second
	DefaultShutdownGrace    = 5 * time.Second
	DefaultClientAddrHeader = "X-Forwarded-For"
)

// Config represents a set of configuration parameters of downstream connections.
type Config struct {
	QueueDepth       int                 `mapstructure:"queueDepth" yaml:"queueDepth" json:"queueDepth"`
	ShedThreshold    int                 `mapstructure:"shedThreshold" yaml:"shedThreshold" json:"shedThreshold"`
	WriteTimeout     config.TimeDuration `mapstructure:"writeTimeout" yaml:"writeTimeout" json:"writeTimeout"`
	PingInterval     config.TimeDuration `mapstructure:"pingInterval" yaml:"pingInterval" json:"pingInterval"`
	PongTimeout      config.TimeDuration `mapstructure:"pongTimeout" yaml:"pongTimeout" json:"pongTimeout"`
	ReadLimit        config.ByteSize     `mapstructure:"readLimit" yaml:"readLimit" json:"readLimit"`
	HandshakeTimeout config.TimeDuration `mapstructure:"handshakeTimeout" yaml:"handshakeTimeout" json:"handshakeTimeout"`
	AdmissionTimeout config.TimeDuration `mapstructure:"admissionTimeout" yaml:"admissionTimeout" json:"admissionTimeout"`
	ReleaseTimeout   config.TimeDuration `mapstructure:"releaseTimeout" yaml:"releaseTimeout" json:"releaseTimeout"`
	ShutdownGrace    config.TimeDuration `mapstructure:"shutdownGrace" yaml:"shutdownGrace" json:"shutdownGrace"`

	// ClientAddrHeader names the header whose last entry is taken as the client address.
	// Empty means the peer address is always used.
	ClientAddrHeader string `mapstructure:"clientAddrHeader" yaml:"clientAddrHeader" json:"clientAddrHeader"`

	// APIKeys enables authentication via /ws/{apiKey} when not empty.
	APIKeys []string `mapstructure:"apiKeys" yaml:"apiKeys" json:"apiKeys"`

	// AllowedOrigins are glob patterns matched against the Origin header. Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		QueueDepth:       DefaultQueueDepth,
		ShedThreshold:    DefaultShedThreshold,
		WriteTimeout:     config.TimeDuration(DefaultWriteTimeout),
		PingInterval:     config.TimeDuration(DefaultPingInterval),
		PongTimeout:      config.TimeDuration(DefaultPongTimeout),
		ReadLimit:        DefaultReadLimit,
		HandshakeTimeout: config.TimeDuration(DefaultHandshakeTimeout),
		AdmissionTimeout: config.TimeDuration(DefaultAdmissionTimeout),
		ReleaseTimeout:   config.TimeDuration(DefaultReleaseTimeout),
		ShutdownGrace:    config.TimeDuration(DefaultShutdownGrace),
		ClientAddrHeader: DefaultClientAddrHeader,
		APIKeys:          []string{},
		AllowedOrigins:   []string{},
		keyPrefix:        cfgDefaultKeyPrefix,
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
	dp.SetDefault(cfgKeyQueueDepth, DefaultQueueDepth)
	dp.SetDefault(cfgKeyShedThreshold, DefaultShedThreshold)
	dp.SetDefault(cfgKeyWriteTimeout, DefaultWriteTimeout.String())
	dp.SetDefault(cfgKeyPingInterval, DefaultPingInterval.String())
	dp.SetDefault(cfgKeyPongTimeout, DefaultPongTimeout.String())
	dp.SetDefault(cfgKeyReadLimit, DefaultReadLimit)
	dp.SetDefault(cfgKeyHandshakeTimeout, DefaultHandshakeTimeout.String())
	dp.SetDefault(cfgKeyAdmissionTimeout, DefaultAdmissionTimeout.String())
	dp.SetDefault(cfgKeyReleaseTimeout, DefaultReleaseTimeout.String())
	dp.SetDefault(cfgKeyShutdownGrace, DefaultShutdownGrace.String())
	dp.SetDefault(cfgKeyClientAddrHeader, DefaultClientAddrHeader)
	dp.SetDefault(cfgKeyAPIKeys, []string{})
	dp.SetDefault(cfgKeyAllowedOrigins, []string{})
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.QueueDepth, err = dp.GetInt(cfgKeyQueueDepth); err != nil {
		return err
	}
	if c.QueueDepth <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueDepth, fmt.Errorf("must be positive"))
	}
	if c.ShedThreshold, err = dp.GetInt(cfgKeyShedThreshold); err != nil {
		return err
	}
	if c.ShedThreshold <= 0 {
		return dp.WrapKeyErr(cfgKeyShedThreshold, fmt.Errorf("must be positive"))
	}

	if err = c.setTimeouts(dp); err != nil {
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

	if c.ClientAddrHeader, err = dp.GetString(cfgKeyClientAddrHeader); err != nil {
		return err
	}
	c.ClientAddrHeader = http.CanonicalHeaderKey(c.ClientAddrHeader)
	if c.APIKeys, err = dp.GetStringSlice(cfgKeyAPIKeys); err != nil {
		return err
	}
	for _, key := range c.APIKeys {
		if key == "" {
			return dp.WrapKeyErr(cfgKeyAPIKeys, fmt.Errorf("cannot contain empty keys"))
		}
	}
	c.AllowedOrigins, err = dp.GetStringSlice(cfgKeyAllowedOrigins)
	return err
}

func (c *Config) setTimeouts(dp config.DataProvider) error {
	var err error
	if c.WriteTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyWriteTimeout); err != nil {
		return err
	}
	if c.PingInterval, err = config.GetPositiveTimeDuration(dp, cfgKeyPingInterval); err != nil {
		return err
	}
	if c.PongTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyPongTimeout); err != nil {
		return err
	}
	if c.PongTimeout <= c.PingInterval {
		return dp.WrapKeyErr(cfgKeyPongTimeout, fmt.Errorf("must be greater than %s (%s)", cfgKeyPingInterval, c.PingInterval.Duration()))
	}
	if c.HandshakeTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyHandshakeTimeout); err != nil {
		return err
	}
	if c.AdmissionTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyAdmissionTimeout); err != nil {
		return err
	}
	if c.ReleaseTimeout, err = config.GetPositiveTimeDuration(dp, cfgKeyReleaseTimeout); err != nil {
		return err
	}
	c.ShutdownGrace, err = config.GetPositiveTimeDuration(dp, cfgKeyShutdownGrace)
	return err
}

// RegistryOpts builds registry options from the configuration.
func (c *Config) RegistryOpts(metrics MetricsCollector) RegistryOpts {
	return RegistryOpts{
		WriteTimeout:     c.WriteTimeout.Duration(),
		PingInterval:     c.PingInterval.Duration(),
		PongTimeout:      c.PongTimeout.Duration(),
		ReadLimit:        int64(c.ReadLimit),
		AdmissionTimeout: c.AdmissionTimeout.Duration(),
		ReleaseTimeout:   c.ReleaseTimeout.Duration(),
		ShutdownGrace:    c.ShutdownGrace.Duration(),
		Metrics:          metrics,
	}
}

// BroadcasterOpts builds fanout options from the configuration.
func (c *Config) BroadcasterOpts(metrics fanout.MetricsCollector) fanout.BroadcasterOpts {
	return fanout.BroadcasterOpts{QueueDepth: c.QueueDepth, ShedThreshold: c.ShedThreshold, Metrics: metrics}
}

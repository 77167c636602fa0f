/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-wsrelay/config"
	"github.com/acronis/go-wsrelay/log"
)

const cfgDefaultMetricsKeyPrefix = "metricsServer"

const (
	cfgKeyMetricsEnabled = "enabled"
	cfgKeyMetricsAddress = "address"
	cfgKeyMetricsPath    = "path"
)

const (
	defaultMetricsAddress = "0.0.0.0:9000"
	defaultMetricsPath    = "/metrics"
)

// MetricsConfig represents a set of configuration parameters for the server exposing Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

var _ config.Config = (*MetricsConfig)(nil)
var _ config.KeyPrefixProvider = (*MetricsConfig)(nil)

// NewMetricsConfig creates a new instance of the MetricsConfig.
func NewMetricsConfig() *MetricsConfig {
	return &MetricsConfig{}
}

// NewDefaultMetricsConfig creates a new instance of the MetricsConfig with default values.
func NewDefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled: true,
		Address: defaultMetricsAddress,
		Path:    defaultMetricsPath,
	}
}

func (c *MetricsConfig) KeyPrefix() string {
	return cfgDefaultMetricsKeyPrefix
}

// SetProviderDefaults sets default configuration values for the metrics server in config.DataProvider.
func (c *MetricsConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMetricsEnabled, true)
	dp.SetDefault(cfgKeyMetricsAddress, defaultMetricsAddress)
	dp.SetDefault(cfgKeyMetricsPath, defaultMetricsPath)
}

// Set sets the metrics server configuration values from config.DataProvider.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyMetricsAddress); err != nil {
		return err
	}
	if c.Path, err = dp.GetString(cfgKeyMetricsPath); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyMetricsAddress, errEmpty)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return dp.WrapKeyErr(cfgKeyMetricsPath, fmt.Errorf("must start with %q", "/"))
	}
	return nil
}

// NewMetricsServer creates an HTTPServer exposing metrics of the default Prometheus registry.
// Listener may be nil, then the server listens on cfg.Address.
func NewMetricsServer(cfg *MetricsConfig, logger log.FieldLogger, listener net.Listener) *HTTPServer {
	router := chi.NewRouter()
	router.Method(http.MethodGet, cfg.Path, promhttp.Handler())
	router.Method(http.MethodGet, healthzEndpoint, NewLivenessHandler())
	setErrorHandlers(router, "Metrics", logger)

	srvCfg := NewDefaultConfig()
	srvCfg.Address = cfg.Address
	return newWithHandler("metrics", srvCfg, logger, router, listener)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"github.com/acronis/go-wsrelay/config"
	"github.com/acronis/go-wsrelay/connlimit"
	"github.com/acronis/go-wsrelay/downstream"
	"github.com/acronis/go-wsrelay/httpserver"
	"github.com/acronis/go-wsrelay/internal/attemptlimit"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/profserver"
	"github.com/acronis/go-wsrelay/upstream"
)

// DefaultEnvPrefix is a prefix of environment variables overriding configuration values
// (e.g. WSRELAY_UPSTREAM_URL for upstream.url).
const DefaultEnvPrefix = "WSRELAY"

const cfgKeyPrefixAttemptLimit = "downstream.attemptLimit"

// Config aggregates configurations of all relay components.
type Config struct {
	Log           *log.Config
	Server        *httpserver.Config
	MetricsServer *httpserver.MetricsConfig
	ProfServer    *profserver.Config
	Upstream      *upstream.Config
	Downstream    *downstream.Config
	AttemptLimit  *attemptlimit.Config
	RateLimit     *connlimit.Config
}

// NewConfig creates a new Config with not loaded component configurations.
func NewConfig() *Config {
	return &Config{
		Log:           log.NewConfig(),
		Server:        httpserver.NewConfig(),
		MetricsServer: httpserver.NewMetricsConfig(),
		ProfServer:    profserver.NewConfig(),
		Upstream:      upstream.NewConfig(),
		Downstream:    downstream.NewConfig(),
		AttemptLimit:  attemptlimit.NewConfig(cfgKeyPrefixAttemptLimit),
		RateLimit:     connlimit.NewConfig(),
	}
}

func (c *Config) all() []config.Config {
	return []config.Config{
		c.Log, c.Server, c.MetricsServer, c.ProfServer, c.Upstream, c.Downstream, c.AttemptLimit, c.RateLimit,
	}
}

// LoadConfig loads the configuration from the file (YAML or JSON, detected by extension)
// and environment variables with the given prefix. Without a file only defaults and environment variables are used.
func LoadConfig(path, envPrefix string) (*Config, error) {
	cfg := NewConfig()
	cfgs := cfg.all()
	loader := config.NewDefaultLoader(envPrefix)
	var err error
	if path == "" {
		err = loader.LoadDefaults(cfgs[0], cfgs[1:]...)
	} else {
		err = loader.LoadFromFile(path, "", cfgs[0], cfgs[1:]...)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

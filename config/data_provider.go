/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strings"
	"time"
)

// DataType is a format of configuration data.
type DataType string

const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataProvider is what a component Config sees while loading: typed getters over
// already merged file, environment and default values.
// Every getter error names the full key.
type DataProvider interface {
	SetDefault(key string, value interface{})

	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	// GetStringFromSet returns the matching element of set, so a case-insensitive match is normalized.
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetStringMapString(key string) (map[string]string, error)
	GetDuration(key string) (time.Duration, error)
	GetSizeInBytes(key string) (uint64, error)

	WrapKeyErr(key string, err error) error
}

// WrapKeyErr prefixes err with the key it relates to.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// GetPositiveTimeDuration reads a duration that must be greater than zero.
func GetPositiveTimeDuration(dp DataProvider, key string) (TimeDuration, error) {
	d, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("must be positive, got %s", d))
	}
	return TimeDuration(d), nil
}

// Prefixed returns a DataProvider resolving every key under prefix,
// so a component reads "limit" while the file holds "rateLimit.global.limit".
func Prefixed(dp DataProvider, prefix string) DataProvider {
	if prefix == "" {
		return dp
	}
	if p, ok := dp.(prefixed); ok {
		return prefixed{p.DataProvider, p.key(prefix)}
	}
	return prefixed{dp, prefix}
}

type prefixed struct {
	DataProvider
	prefix string
}

func (p prefixed) key(k string) string {
	return strings.Trim(p.prefix+"."+k, ".")
}

func (p prefixed) SetDefault(k string, v interface{}) { p.DataProvider.SetDefault(p.key(k), v) }

func (p prefixed) GetBool(k string) (bool, error)       { return p.DataProvider.GetBool(p.key(k)) }
func (p prefixed) GetInt(k string) (int, error)         { return p.DataProvider.GetInt(p.key(k)) }
func (p prefixed) GetFloat64(k string) (float64, error) { return p.DataProvider.GetFloat64(p.key(k)) }
func (p prefixed) GetString(k string) (string, error)   { return p.DataProvider.GetString(p.key(k)) }

func (p prefixed) GetStringFromSet(k string, set []string, ignoreCase bool) (string, error) {
	return p.DataProvider.GetStringFromSet(p.key(k), set, ignoreCase)
}

func (p prefixed) GetStringSlice(k string) ([]string, error) {
	return p.DataProvider.GetStringSlice(p.key(k))
}

func (p prefixed) GetStringMapString(k string) (map[string]string, error) {
	return p.DataProvider.GetStringMapString(p.key(k))
}

func (p prefixed) GetDuration(k string) (time.Duration, error) {
	return p.DataProvider.GetDuration(p.key(k))
}

func (p prefixed) GetSizeInBytes(k string) (uint64, error) {
	return p.DataProvider.GetSizeInBytes(p.key(k))
}

func (p prefixed) WrapKeyErr(k string, err error) error {
	return WrapKeyErr(p.key(k), err)
}

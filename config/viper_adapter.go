/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is the viper backed DataProvider used by Loader.
type ViperAdapter struct {
	v *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars makes environment variables override file values.
// With prefix "wsrelay" the key "upstream.url" is read from WSRELAY_UPSTREAM_URL.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.v.SetEnvPrefix(prefix)
	va.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.v.AutomaticEnv()
}

// ReadFile merges configuration data from the file at path.
func (va *ViperAdapter) ReadFile(path string, dataType DataType) error {
	va.v.SetConfigFile(path)
	va.v.SetConfigType(string(dataType))
	return va.v.ReadInConfig()
}

// Read merges configuration data from r.
func (va *ViperAdapter) Read(r io.Reader, dataType DataType) error {
	va.v.SetConfigType(string(dataType))
	return va.v.ReadConfig(r)
}

func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.v.SetDefault(key, value)
}

// Has reports whether the key has a value from any source, defaults included.
func (va *ViperAdapter) Has(key string) bool {
	return va.v.IsSet(key)
}

// castKey converts the raw value of key, returning zero for a missing key.
func castKey[T any](va *ViperAdapter, key string, conv func(interface{}) (T, error)) (T, error) {
	raw := va.v.Get(key)
	if raw == nil {
		var zero T
		return zero, nil
	}
	res, err := conv(raw)
	if err != nil {
		return res, WrapKeyErr(key, err)
	}
	return res, nil
}

func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return castKey(va, key, cast.ToBoolE)
}

func (va *ViperAdapter) GetInt(key string) (int, error) {
	return castKey(va, key, cast.ToIntE)
}

func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return castKey(va, key, cast.ToFloat64E)
}

func (va *ViperAdapter) GetString(key string) (string, error) {
	return castKey(va, key, cast.ToStringE)
}

func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castKey(va, key, cast.ToDurationE)
}

// GetStringMapString returns an empty map for a missing key.
func (va *ViperAdapter) GetStringMapString(key string) (map[string]string, error) {
	m, err := castKey(va, key, cast.ToStringMapStringE)
	if m == nil && err == nil {
		m = map[string]string{}
	}
	return m, err
}

func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	val, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if val == s || ignoreCase && strings.EqualFold(val, s) {
			return s, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", val, set))
}

// GetStringSlice also accepts a comma-separated string, which is how lists come from environment variables.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castKey(va, key, func(raw interface{}) ([]string, error) {
		s, ok := raw.(string)
		if !ok {
			return cast.ToStringSliceE(raw)
		}
		var items []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	})
}

// GetSizeInBytes accepts plain numbers as well as human-readable sizes ("16M", "1Gi").
func (va *ViperAdapter) GetSizeInBytes(key string) (uint64, error) {
	return castKey(va, key, func(raw interface{}) (uint64, error) {
		if s, ok := raw.(string); ok {
			var bs ByteSize
			if s == "" {
				return 0, nil
			}
			err := bs.parse(s)
			return uint64(bs), err
		}
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", n)
		}
		return uint64(n), nil
	})
}

func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes. It is decoded from an integer or from a human-readable string ("16MB", "512Ki").
type ByteSize uint64

// TimeDuration is decoded from an integer number of nanoseconds or from a duration string ("1h30m").
type TimeDuration time.Duration

func (b *ByteSize) parse(s string) error {
	n, err := parseScalar(s, func(s string) (uint64, error) {
		// bytefmt understands "M" and "MiB" but not the k8s-style "Mi".
		if len(s) > 2 && s[len(s)-1] == 'i' && strings.ContainsRune("KMGTPE", rune(s[len(s)-2])) {
			s = s[:len(s)-1]
		}
		v, err := bytefmt.ToBytes(s)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
		}
		return v, nil
	})
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

func (d *TimeDuration) parse(s string) error {
	n, err := parseScalar(s, func(s string) (time.Duration, error) {
		v, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
		}
		return v, nil
	})
	if err != nil {
		return err
	}
	*d = TimeDuration(n)
	return nil
}

// parseScalar accepts a non-negative integer as is and hands anything else to parse.
func parseScalar[T ~uint64 | ~int64](s string, parse func(string) (T, error)) (T, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", n)
		}
		return T(n), nil
	}
	return parse(s)
}

func (b *ByteSize) UnmarshalText(text []byte) error { return b.parse(string(text)) }

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.parse(strings.Trim(string(data), `"`))
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return b.parse(value.Value)
}

func (b ByteSize) String() string { return bytefmt.ByteSize(uint64(b)) }

func (b ByteSize) MarshalJSON() ([]byte, error) { return json.Marshal(b.String()) }

func (b ByteSize) MarshalYAML() (interface{}, error) { return b.String(), nil }

func (d *TimeDuration) UnmarshalText(text []byte) error { return d.parse(string(text)) }

func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.parse(strings.Trim(string(data), `"`))
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

// Duration returns d as time.Duration.
func (d TimeDuration) Duration() time.Duration { return time.Duration(d) }

func (d TimeDuration) String() string { return time.Duration(d).String() }

func (d TimeDuration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d TimeDuration) MarshalYAML() (interface{}, error) { return d.String(), nil }

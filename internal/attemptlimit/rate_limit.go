/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package attemptlimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate describes the frequency of attempts.
type Rate struct {
	Count    int
	Duration time.Duration
}

// String returns the rate in the "<count>/<unit>" form.
func (r Rate) String() string {
	unit := r.Duration.String()
	switch r.Duration {
	case time.Second:
		unit = "s"
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	}
	return strconv.Itoa(r.Count) + "/" + unit
}

// ParseRate parses a rate in "<count>/<unit>" form where unit is s, m or h ("10/s", "100/m").
func ParseRate(s string) (Rate, error) {
	countStr, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("rate %q should be in <count>/<unit> form", s)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return Rate{}, fmt.Errorf("rate %q should have a positive count", s)
	}
	var dur time.Duration
	switch unit {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		return Rate{}, fmt.Errorf("rate %q has unknown unit %q, should be one of s, m, h", s, unit)
	}
	return Rate{Count: count, Duration: dur}, nil
}

// Limiter decides whether one more attempt for the key fits the rate.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

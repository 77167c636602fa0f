/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalOption(t *testing.T) {
	type section struct {
		Origins   []string     `mapstructure:"origins"`
		Timeout   TimeDuration `mapstructure:"timeout"`
		Limit     ByteSize     `mapstructure:"limit"`
		Untouched []string     `mapstructure:"untouched"`
	}
	newDefaults := func() *section {
		return &section{
			Origins:   []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"},
			Timeout:   TimeDuration(time.Second),
			Limit:     1024,
			Untouched: []string{"kept"},
		}
	}

	tests := []struct {
		name string
		yaml string
		want func(s *section)
	}{
		{
			name: "shorter list replaces default",
			yaml: "relay:\n  origins: [\"https://x.example.com\"]\n  timeout: 250ms\n  limit: 1Mi\n",
			want: func(s *section) {
				s.Origins = []string{"https://x.example.com"}
				s.Timeout = TimeDuration(250 * time.Millisecond)
				s.Limit = 1024 * 1024
			},
		},
		{
			name: "comma separated string",
			yaml: "relay:\n  origins: \"https://x.example.com,https://y.example.com\"\n",
			want: func(s *section) {
				s.Origins = []string{"https://x.example.com", "https://y.example.com"}
			},
		},
		{
			name: "empty list",
			yaml: "relay:\n  origins: []\n",
			want: func(s *section) {
				s.Origins = []string{}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vpr := viper.New()
			vpr.SetConfigType("yaml")
			require.NoError(t, vpr.ReadConfig(strings.NewReader(tt.yaml)))

			w := struct {
				Relay *section `mapstructure:"relay"`
			}{Relay: newDefaults()}
			require.NoError(t, vpr.Unmarshal(&w, UnmarshalOption))

			want := newDefaults()
			tt.want(want)
			require.Equal(t, want, w.Relay)
		})
	}
}

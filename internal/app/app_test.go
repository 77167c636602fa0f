/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/connlimit"
	"github.com/acronis/go-wsrelay/log/logtest"
	"github.com/acronis/go-wsrelay/testutil"
)

func writeConfigFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("file and env", func(t *testing.T) {
		path := writeConfigFile(t, `
upstream:
  url: ws://127.0.0.1:8546
server:
  address: 127.0.0.1:8080
rateLimit:
  global:
    limit: 100
`)
		t.Setenv("WSRELAYTEST_RATELIMIT_PERADDRESS_LIMIT", "3")
		cfg, err := LoadConfig(path, "WSRELAYTEST")
		require.NoError(t, err)
		require.Equal(t, "ws://127.0.0.1:8546", cfg.Upstream.URL)
		require.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
		require.Equal(t, int64(100), cfg.RateLimit.Global.Limit)
		require.Equal(t, int64(3), cfg.RateLimit.PerAddress.Limit)
		require.Equal(t, connlimit.StoreTypeLocal, cfg.RateLimit.Store.Type)
		require.False(t, cfg.AttemptLimit.Enabled)
		require.False(t, cfg.ProfServer.Enabled)
		require.True(t, cfg.MetricsServer.Enabled)
	})

	t.Run("env only", func(t *testing.T) {
		t.Setenv("WSRELAYTEST_UPSTREAM_URL", "wss://sequencer.example.com/ws")
		cfg, err := LoadConfig("", "WSRELAYTEST")
		require.NoError(t, err)
		require.Equal(t, "wss://sequencer.example.com/ws", cfg.Upstream.URL)
	})

	t.Run("error, invalid upstream url", func(t *testing.T) {
		path := writeConfigFile(t, "upstream:\n  url: http://127.0.0.1:8546\n")
		cfg, err := LoadConfig(path, "WSRELAYTEST")
		require.ErrorContains(t, err, "upstream.url")
		require.Nil(t, cfg)
	})
}

func TestNew_InvalidRedisURL(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  url: ws://127.0.0.1:8546
rateLimit:
  store:
    type: redis
    redis:
      url: "not a redis url"
`)
	cfg, err := LoadConfig(path, "WSRELAYTEST")
	require.NoError(t, err)
	_, err = New(cfg, logtest.NewLogger())
	require.ErrorContains(t, err, "create connection limiter")
}

func TestApp_RelaysFrames(t *testing.T) {
	seq := testutil.NewSequencerServer()
	defer seq.Close()

	addr := testutil.GetLocalAddrWithFreeTCPPort()
	path := writeConfigFile(t, fmt.Sprintf(`
upstream:
  url: %s
  backoff:
    min: 10ms
    max: 50ms
server:
  address: %s
metricsServer:
  enabled: false
downstream:
  attemptLimit:
    enabled: true
    rate: 100/s
rateLimit:
  global:
    limit: 10
  perAddress:
    limit: 1
`, seq.WSURL(), addr))

	cfg, err := LoadConfig(path, "WSRELAYTEST")
	require.NoError(t, err)
	a, err := New(cfg, logtest.NewLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	u := a.Unit()
	a.unit.MustRegisterMetrics()
	defer a.unit.UnregisterMetrics()

	fatalErr := make(chan error, 1)
	go u.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))

	readyz := func() (int, map[string]bool) {
		resp, reqErr := http.Get("http://" + addr + "/readyz")
		if reqErr != nil {
			return 0, nil
		}
		defer func() { _ = resp.Body.Close() }()
		var body struct {
			Components map[string]bool `json:"components"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body.Components
	}
	require.Eventually(t, func() bool {
		code, _ := readyz()
		return code == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	_, components := readyz()
	require.Equal(t, map[string]bool{ComponentUpstream: true, ComponentRateLimitStore: true}, components)

	wsURL := "ws://" + addr + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	require.Eventually(t, func() bool { return a.registry.Len() == 1 }, 3*time.Second, 10*time.Millisecond)

	// The per-address limit is 1.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	_ = resp.Body.Close()

	require.Equal(t, 1, seq.Broadcast(websocket.TextMessage, []byte(`{"seq":1}`)))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	require.Equal(t, `{"seq":1}`, string(data))

	// Losing the upstream makes the relay not ready until it reconnects.
	seq.SetReject(true)
	seq.DropConnections()
	require.Eventually(t, func() bool {
		code, comps := readyz()
		return code == http.StatusServiceUnavailable && !comps[ComponentUpstream]
	}, 3*time.Second, 20*time.Millisecond)
	seq.SetReject(false)
	require.Eventually(t, func() bool {
		code, _ := readyz()
		return code == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, u.Stop(true))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = client.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

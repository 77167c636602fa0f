/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/log/logtest"
	"github.com/acronis/go-wsrelay/testutil"
)

func TestProfServer_Start(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	profServer := New(&Config{Address: "127.0.0.1:0"}, logRecorder)
	fatalErr := make(chan error, 1)
	go profServer.Start(fatalErr)
	require.Eventually(t, func() bool { return profServer.URL() != "" }, 3*time.Second, 10*time.Millisecond)
	defer func() {
		require.NoError(t, profServer.Stop(false))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	}()

	resp, err := http.Get(profServer.URL() + "/debug/pprof/")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, len(respBody) > 0)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestProfServer_StartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { require.NoError(t, ln.Close()) }()

	profServer := New(&Config{Address: ln.Addr().String()}, logtest.NewRecorder())
	fatalErr := make(chan error, 1)
	go profServer.Start(fatalErr)
	require.Error(t, testutil.RequireErrorInChannel(t, fatalErr, 3*time.Second))
	require.Empty(t, profServer.URL())
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package upstream maintains the single websocket link to the sequencer and hands every received
// frame to a Publisher. The link is re-established with exponential backoff whenever it breaks.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/acronis/go-wsrelay/fanout"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/netutil"
	"github.com/acronis/go-wsrelay/service"
)

const controlWriteTimeout = time.Second

// Publisher receives frames read from the upstream.
type Publisher interface {
	Publish(msgType int, data []byte) fanout.Frame
}

// ManagerOpts contains optional parameters for constructing Manager.
type ManagerOpts struct {
	Metrics MetricsCollector
}

// Manager owns the upstream link. Its state is changed only by Run.
type Manager struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	backoff      *Backoff
	readLimit    int64
	pingInterval time.Duration
	pongTimeout  time.Duration
	publisher    Publisher
	state        atomic.Int32
	logger       log.FieldLogger
	metrics      MetricsCollector
}

var _ service.Worker = (*Manager)(nil)

// NewManager creates a new Manager. A malformed URL is reported here, not by Run.
func NewManager(cfg *Config, publisher Publisher, logger log.FieldLogger, opts ManagerOpts) (*Manager, error) {
	if err := ValidateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", cfg.URL, err)
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	header := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout.Duration(),
	}
	if len(cfg.DNS.Servers) != 0 {
		resolver, err := netutil.NewRoundRobinResolver(cfg.DNS.Servers, cfg.DNS.Timeout.Duration())
		if err != nil {
			return nil, fmt.Errorf("create upstream DNS resolver: %w", err)
		}
		dialer.NetDialContext = (&net.Dialer{Resolver: resolver}).DialContext
	}
	m := &Manager{
		url:     cfg.URL,
		header:  header,
		dialer:  dialer,
		backoff: NewBackoff(BackoffOpts{
			Min:        cfg.Backoff.Min.Duration(),
			Max:        cfg.Backoff.Max.Duration(),
			Multiplier: cfg.Backoff.Multiplier,
			Jitter:     cfg.Backoff.Jitter,
		}),
		readLimit:    int64(cfg.ReadLimit),
		pingInterval: cfg.PingInterval.Duration(),
		pongTimeout:  cfg.PongTimeout.Duration(),
		publisher:    publisher,
		logger:       logger.With(log.String("upstream_url", cfg.URL)),
		metrics:      opts.Metrics,
	}
	m.metrics.SetState(StateDisconnected)
	return m, nil
}

// State returns the current state of the link. It is safe to call from any goroutine.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Connected reports whether the link is currently established.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

func (m *Manager) setState(state State) {
	prev := State(m.state.Swap(int32(state)))
	if prev == state {
		return
	}
	m.logger.Debug("upstream link state changed", log.String("from", prev.String()), log.String("to", state.String()))
	m.metrics.SetState(state)
}

// Run keeps the link up until ctx is canceled. It always returns nil.
func (m *Manager) Run(ctx context.Context) error {
	defer m.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.setState(StateConnecting)
		m.metrics.IncConnectAttempts()
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("failed to connect to upstream", log.Int("attempt", m.backoff.Attempt()+1), log.Error(err))
			m.metrics.IncConnectFailures()
		} else {
			m.backoff.Reset()
			m.setState(StateConnected)
			m.logger.Info("connected to upstream")

			err = m.serve(ctx, conn)
			if ctx.Err() != nil {
				m.logger.Info("upstream connection closed on shutdown")
				return nil
			}
			m.logger.Warn("upstream connection lost", log.String("reason", disconnectReason(err)), log.Error(err))
			m.metrics.IncDisconnects()
		}

		m.setState(StateBackoff)
		delay := m.backoff.Next()
		m.logger.Info("reconnecting to upstream after delay",
			log.Duration("delay", delay), log.Int("attempt", m.backoff.Attempt()))
		m.metrics.ObserveBackoff(delay)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := m.dialer.DialContext(ctx, m.url, m.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// serve reads frames until the connection breaks or ctx is canceled.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(m.readLimit)
	extendDeadline := func() error { return conn.SetReadDeadline(time.Now().Add(m.pongTimeout)) }
	if err := extendDeadline(); err != nil {
		_ = conn.Close()
		return err
	}
	conn.SetPongHandler(func(string) error { return extendDeadline() })

	readDone := make(chan struct{})
	keepaliveDone := make(chan struct{})
	go func() {
		defer close(keepaliveDone)
		m.keepalive(ctx, conn, readDone)
	}()
	defer func() {
		close(readDone)
		<-keepaliveDone
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err = extendDeadline(); err != nil {
			return err
		}
		m.metrics.AddReceived(len(data))
		m.publisher.Publish(msgType, data)
	}
}

// keepalive pings the upstream and, on cancellation, says goodbye and closes the socket
// so that the blocked read returns.
func (m *Manager) keepalive(ctx context.Context, conn *websocket.Conn, readDone <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "relay shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(controlWriteTimeout))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout)); err != nil {
				m.logger.Debug("failed to ping upstream", log.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return "close_frame"
	case errors.Is(err, websocket.ErrReadLimit):
		return "frame_too_large"
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "read_error"
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

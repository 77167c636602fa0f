/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/acronis/go-wsrelay/connlimit"
	"github.com/acronis/go-wsrelay/fanout"
	"github.com/acronis/go-wsrelay/log"
)

const (
	closeTextShutdown = "relay shutting down"
	closeTextShed     = "consumer too slow"
)

// Client is an admitted downstream connection.
// The write loop drains the subscriber queue onto the socket, the read loop only detects the close.
type Client struct {
	id         string
	addr       string
	admittedAt time.Time
	conn       Conn
	sub        *fanout.Subscriber
	lease      *connlimit.ConnectionLease
	registry   *Registry
	logger     log.FieldLogger

	// closing asks the write loop to flush the queue and say goodbye.
	closing     chan struct{}
	closingOnce sync.Once

	teardownOnce sync.Once
	done         chan struct{}
}

// ID returns the unique id of the client.
func (c *Client) ID() string {
	return c.id
}

// Addr returns the address the client was admitted with.
func (c *Client) Addr() string {
	return c.addr
}

// AdmittedAt returns the admission time.
func (c *Client) AdmittedAt() time.Time {
	return c.admittedAt
}

// Done is closed when the client is torn down and its slots are released.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) writeLoop() {
	defer c.registry.wg.Done()

	opts := &c.registry.opts
	pingTicker := time.NewTicker(opts.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case frame := <-c.sub.Frames():
			if !c.write(frame) {
				return
			}

		case <-c.closing:
			// Frames queued so far are delivered, newer ones are left to the teardown.
			for n := len(c.sub.Frames()); n > 0; n-- {
				if !c.write(<-c.sub.Frames()) {
					return
				}
			}
			c.sendClose(websocket.CloseGoingAway, closeTextShutdown)
			// The read loop tears the client down once the peer answers, Registry.Stop does it after the grace period.
			<-c.done
			return

		case <-c.sub.Done():
			c.sendClose(websocket.ClosePolicyViolation, closeTextShed)
			c.teardown(DisconnectReasonShed)
			return

		case <-pingTicker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.WriteTimeout)); err != nil {
				c.logger.Debug("failed to ping downstream client", log.Error(err))
				c.teardown(DisconnectReasonWriteError)
				return
			}

		case <-c.done:
			return
		}
	}
}

// write sends the frame. On failure the client is torn down and false is returned.
func (c *Client) write(frame fanout.Frame) bool {
	opts := &c.registry.opts
	_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
	if err := c.conn.WriteMessage(frame.Type, frame.Data); err != nil {
		c.logger.Debug("failed to write frame to downstream client", log.Error(err))
		c.teardown(DisconnectReasonWriteError)
		return false
	}
	opts.Metrics.AddSent(len(frame.Data))
	return true
}

func (c *Client) startClosing() {
	c.closingOnce.Do(func() { close(c.closing) })
}

func (c *Client) readLoop() {
	defer c.registry.wg.Done()

	opts := &c.registry.opts
	c.conn.SetReadLimit(opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	for {
		// Inbound data is not relayed anywhere.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.teardown(readDisconnectReason(err))
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	}
}

func readDisconnectReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return DisconnectReasonClientClosed
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return DisconnectReasonReadLimit
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return DisconnectReasonTimeout
	}
	return DisconnectReasonReadError
}

func (c *Client) sendClose(code int, text string) {
	deadline := time.Now().Add(c.registry.opts.WriteTimeout)
	if err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		c.logger.Debug("failed to send close frame to downstream client", log.Error(err))
	}
}

// teardown runs once per client whatever triggered it first.
func (c *Client) teardown(reason string) {
	c.teardownOnce.Do(func() {
		r := c.registry
		r.broadcaster.Unsubscribe(c.sub)
		_ = c.conn.Close()
		r.releaseLease(c.lease)
		r.clients.Delete(c.id)
		r.opts.Metrics.ClientDisconnected(reason)
		c.logger.Info("downstream client disconnected",
			log.String("reason", reason),
			log.Duration("connected_for", time.Since(c.admittedAt)),
			log.Uint64("dropped_frames", c.sub.Dropped()))
		close(c.done)
	})
}

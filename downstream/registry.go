/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package downstream admits subscriber websocket connections, attaches them to the fanout
// broadcaster and tears them down, returning their connection slots to the limiter.
package downstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"

	"github.com/acronis/go-wsrelay/connlimit"
	"github.com/acronis/go-wsrelay/fanout"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/service"
)

// Limiter grants and returns connection slots. *connlimit.Limiter implements it.
type Limiter interface {
	AcquireConnection(ctx context.Context, addr string) (*connlimit.ConnectionLease, error)
	ReleaseConnection(ctx context.Context, cl *connlimit.ConnectionLease)
}

var _ Limiter = (*connlimit.Limiter)(nil)

// RegistryOpts contains optional parameters for constructing Registry.
// Zero values are replaced with defaults.
type RegistryOpts struct {
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	ReadLimit        int64
	AdmissionTimeout time.Duration
	ReleaseTimeout   time.Duration
	ShutdownGrace    time.Duration
	Metrics          MetricsCollector
}

func (opts *RegistryOpts) setDefaults() {
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.PongTimeout == 0 {
		opts.PongTimeout = DefaultPongTimeout
	}
	if opts.ReadLimit == 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.AdmissionTimeout == 0 {
		opts.AdmissionTimeout = DefaultAdmissionTimeout
	}
	if opts.ReleaseTimeout == 0 {
		opts.ReleaseTimeout = DefaultReleaseTimeout
	}
	if opts.ShutdownGrace == 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
}

// Registry tracks admitted downstream clients.
// It is a service.Unit: Stop closes all clients and waits for their slots to be released.
type Registry struct {
	broadcaster *fanout.Broadcaster
	limiter     Limiter
	clients     *xsync.MapOf[string, *Client]
	opts        RegistryOpts
	logger      log.FieldLogger

	// mu orders loop start-up against Stop, so wg.Add never races with wg.Wait.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

var _ service.Unit = (*Registry)(nil)

// NewRegistry creates a new Registry.
func NewRegistry(broadcaster *fanout.Broadcaster, limiter Limiter, logger log.FieldLogger, opts RegistryOpts) *Registry {
	opts.setDefaults()
	return &Registry{
		broadcaster: broadcaster,
		limiter:     limiter,
		clients:     xsync.NewMapOf[string, *Client](),
		opts:        opts,
		logger:      logger,
	}
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	return r.clients.Size()
}

// Client returns the live client with the given id.
func (r *Registry) Client(id string) (*Client, bool) {
	return r.clients.Load(id)
}

func (r *Registry) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// Admit takes connection slots for the address and, only if they are granted, upgrades the candidate,
// subscribes it to the broadcaster and starts its read and write loops.
func (r *Registry) Admit(ctx context.Context, candidate Candidate, addr string) (*Client, error) {
	if r.isClosing() {
		r.opts.Metrics.IncRejected(RejectReasonShuttingDown)
		return nil, ErrShuttingDown
	}

	acquireCtx, acquireCancel := context.WithTimeout(ctx, r.opts.AdmissionTimeout)
	lease, err := r.limiter.AcquireConnection(acquireCtx, addr)
	acquireCancel()
	if err != nil {
		var limitErr *connlimit.LimitExceededError
		if errors.As(err, &limitErr) {
			reason := RejectReasonLimitGlobal
			if limitErr.Scope.Kind == connlimit.ScopeKindAddress {
				reason = RejectReasonLimitPerAddress
			}
			r.opts.Metrics.IncRejected(reason)
			return nil, &AdmissionError{Kind: KindLimitExceeded, Scope: limitErr.Scope, Err: err}
		}
		r.opts.Metrics.IncRejected(RejectReasonUnavailable)
		return nil, &AdmissionError{Kind: KindUnavailable, Err: err}
	}

	conn, err := candidate.Upgrade()
	if err != nil {
		r.releaseLease(lease)
		r.opts.Metrics.IncRejected(RejectReasonUpgradeFailed)
		return nil, &AdmissionError{Kind: KindUpgradeFailed, Err: err}
	}

	id := xid.New().String()
	c := &Client{
		id:         id,
		addr:       addr,
		admittedAt: time.Now(),
		conn:       conn,
		lease:      lease,
		registry:   r,
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		logger:     r.logger.With(log.String("client_id", id), log.String("client_addr", addr)),
	}

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, closeTextShutdown), time.Now().Add(r.opts.WriteTimeout))
		_ = conn.Close()
		r.releaseLease(lease)
		r.opts.Metrics.IncRejected(RejectReasonShuttingDown)
		return nil, ErrShuttingDown
	}
	c.sub = r.broadcaster.Subscribe(id)
	r.clients.Store(id, c)
	r.wg.Add(2)
	r.mu.Unlock()

	r.opts.Metrics.ClientConnected()
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

func (r *Registry) releaseLease(lease *connlimit.ConnectionLease) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ReleaseTimeout)
	defer cancel()
	r.limiter.ReleaseConnection(ctx, lease)
}

// Start does nothing, clients are admitted by the HTTP handler.
func (r *Registry) Start(fatalError chan<- error) {}

// Stop refuses new clients and closes the live ones.
// Gracefully, every client gets up to ShutdownGrace to receive the frames already queued for it,
// get a "going away" close frame and close its side. Clients that are still open after that are closed forcibly.
func (r *Registry) Stop(gracefully bool) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	if gracefully && r.clients.Size() > 0 {
		r.logger.Info("closing downstream connections", log.Int("clients", r.clients.Size()))
		r.clients.Range(func(_ string, c *Client) bool {
			c.startClosing()
			return true
		})
		graceTimer := time.NewTimer(r.opts.ShutdownGrace)
		defer graceTimer.Stop()
		r.clients.Range(func(_ string, c *Client) bool {
			select {
			case <-c.done:
				return true
			case <-graceTimer.C:
				return false
			}
		})
	}

	r.clients.Range(func(_ string, c *Client) bool {
		c.teardown(DisconnectReasonShutdown)
		return true
	})
	r.wg.Wait()
	return nil
}

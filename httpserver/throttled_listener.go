/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"net"

	"golang.org/x/time/rate"
)

// throttledListener delays Accept calls so that no more than acceptRate connections are accepted per second.
// Pending connections wait in the kernel backlog meanwhile.
type throttledListener struct {
	net.Listener
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
}

func newThrottledListener(l net.Listener, acceptRate float64, burst int) *throttledListener {
	if burst < 1 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &throttledListener{
		Listener: l,
		limiter:  rate.NewLimiter(rate.Limit(acceptRate), burst),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (l *throttledListener) Accept() (net.Conn, error) {
	if err := l.limiter.Wait(l.ctx); err != nil {
		if l.ctx.Err() != nil {
			return nil, net.ErrClosed
		}
		return nil, err
	}
	return l.Listener.Accept()
}

func (l *throttledListener) Close() error {
	l.cancel()
	return l.Listener.Close()
}

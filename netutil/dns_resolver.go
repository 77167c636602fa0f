/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers shared by the relay links.
package netutil

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

const defaultDNSPort = "53"

// NormalizeDNSServers validates DNS server addresses and adds the default port where it is omitted.
func NormalizeDNSServers(addrs []string) ([]string, error) {
	res := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == "" {
			return nil, fmt.Errorf("empty DNS server address")
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			host, port = addr, defaultDNSPort
		}
		if net.ParseIP(host) == nil {
			return nil, fmt.Errorf("DNS server address %q should be an IP", addr)
		}
		res = append(res, net.JoinHostPort(host, port))
	}
	return res, nil
}

// NewRoundRobinResolver creates a resolver that sends queries to the given DNS servers in turn.
// It is used to resolve the upstream host bypassing the system resolver
// (e.g. when the sequencer is registered in a dedicated service discovery DNS).
//
//	resolver, err := netutil.NewRoundRobinResolver([]string{"10.0.0.2", "10.0.0.3:5353"}, 2*time.Second)
//	if err != nil {
//		return err
//	}
//	dialer := &websocket.Dialer{NetDialContext: (&net.Dialer{Resolver: resolver}).DialContext}
func NewRoundRobinResolver(addrs []string, timeout time.Duration) (*net.Resolver, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("at least one DNS server is required")
	}
	servers, err := NormalizeDNSServers(addrs)
	if err != nil {
		return nil, err
	}

	var idx atomic.Uint32
	serversLen := uint32(len(servers)) //nolint:gosec // server count is reasonable

	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			addr := servers[(idx.Add(1)-1)%serversLen]
			return d.DialContext(ctx, network, addr)
		},
	}, nil
}

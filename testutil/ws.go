/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// SequencerServer is a fake upstream sequencer. Every connected peer receives what is passed to Broadcast.
type SequencerServer struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu          sync.Mutex
	conns       map[*websocket.Conn]struct{}
	accepted    int
	lastHeaders http.Header
	reject      bool
}

// NewSequencerServer starts a new fake sequencer.
func NewSequencerServer() *SequencerServer {
	s := &SequencerServer{conns: make(map[*websocket.Conn]struct{})}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// WSURL returns the ws:// URL of the server.
func (s *SequencerServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *SequencerServer) serveWS(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()
	if reject {
		http.Error(rw, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.accepted++
	s.lastHeaders = r.Header.Clone()
	s.mu.Unlock()

	// Drain until the peer goes away so control frames get processed.
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Broadcast writes the message to every connected peer and returns the number of peers written to.
func (s *SequencerServer) Broadcast(msgType int, data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for conn := range s.conns {
		if conn.WriteMessage(msgType, data) == nil {
			n++
		}
	}
	return n
}

// DropConnections closes all current connections without a close handshake.
func (s *SequencerServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

// SetReject makes the server refuse (or accept again) new handshakes.
func (s *SequencerServer) SetReject(reject bool) {
	s.mu.Lock()
	s.reject = reject
	s.mu.Unlock()
}

// ActiveConnections returns the number of currently connected peers.
func (s *SequencerServer) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// AcceptedConnections returns the total number of accepted handshakes.
func (s *SequencerServer) AcceptedConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// LastHeaders returns the request headers of the most recent accepted handshake.
func (s *SequencerServer) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders
}

// Close drops all peers and shuts the server down.
func (s *SequencerServer) Close() {
	s.DropConnections()
	s.Server.Close()
}

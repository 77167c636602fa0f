/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an upgraded downstream websocket. *websocket.Conn implements it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Candidate is a connection that is not upgraded yet.
// Upgrade is called only after the connection slots are granted.
type Candidate interface {
	Upgrade() (Conn, error)
}

type httpCandidate struct {
	upgrader *websocket.Upgrader
	rw       http.ResponseWriter
	r        *http.Request
}

// Upgrade performs the websocket handshake. On failure the upgrader has already replied with an HTTP error.
func (c *httpCandidate) Upgrade() (Conn, error) {
	conn, err := c.upgrader.Upgrade(c.rw, c.r, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

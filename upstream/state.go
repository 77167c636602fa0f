/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

// State is a state of the upstream link.
type State int32

// Link states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateBackoff:      "backoff",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

// ScopeKind is a kind of the counter scope.
type ScopeKind int

// Scope kinds.
const (
	ScopeKindGlobal ScopeKind = iota
	ScopeKindAddress
)

// String returns a label-friendly name of the kind.
func (k ScopeKind) String() string {
	if k == ScopeKindAddress {
		return "per_address"
	}
	return "global"
}

// Scope identifies a single counter: either the global one or the one of a client address.
type Scope struct {
	Kind    ScopeKind
	Address string
}

// GlobalScope returns the scope of the process-wide (or cluster-wide) counter.
func GlobalScope() Scope {
	return Scope{Kind: ScopeKindGlobal}
}

// AddressScope returns the scope of the counter for the given client address.
func AddressScope(addr string) Scope {
	return Scope{Kind: ScopeKindAddress, Address: addr}
}

// Key returns the storage key of the scope.
func (s Scope) Key(prefix string) string {
	if s.Kind == ScopeKindAddress {
		return prefix + "addr:" + s.Address
	}
	return prefix + "global"
}

func (s Scope) String() string {
	return s.Key("")
}

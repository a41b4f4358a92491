package client

import (
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
)

// EventType identifies what an Event carries.
type EventType int

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventType = iota
	// EventConnection carries a transport status event.
	EventConnection
	// EventAuthenticated is emitted after a successful handshake.
	EventAuthenticated
	// EventAuthFailed carries Err and Terminal.
	EventAuthFailed
	EventChannelsUpdated
	EventBalancesUpdated
	EventAppSessionUpdated
	EventTransferCompleted
	// EventPeerError carries an error frame that matched no request.
	EventPeerError
)

// String ...
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "StateChanged"
	case EventConnection:
		return "Connection"
	case EventAuthenticated:
		return "Authenticated"
	case EventAuthFailed:
		return "AuthFailed"
	case EventChannelsUpdated:
		return "ChannelsUpdated"
	case EventBalancesUpdated:
		return "BalancesUpdated"
	case EventAppSessionUpdated:
		return "AppSessionUpdated"
	case EventTransferCompleted:
		return "TransferCompleted"
	case EventPeerError:
		return "PeerError"
	default:
		return "Unknown"
	}
}

// Event is published to subscribers. Only the fields relevant to Type are
// set.
type Event struct {
	Type EventType

	State      State
	Connection net.StatusEvent

	Err      error
	Terminal bool

	Channels   []rpc.Channel
	Balances   []rpc.Balance
	AppSession *AppSession
	Transfer   *rpc.TransferResult
}

// EventListener receives events. Listeners are called from the goroutine
// that caused the event and must not block.
type EventListener func(Event)

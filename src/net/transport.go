package net

import (
	"context"

	"github.com/linecrypto/clearnode/src/common"
)

// Transport provides ordered, asynchronous delivery of frames to and from a
// single remote endpoint.
type Transport interface {
	// Connect opens the connection. It is a no-op when already connected or
	// connecting.
	Connect(ctx context.Context) error

	// Send writes payload, or queues it until the next connection.
	Send(payload []byte)

	// TrySend writes payload only if connected and never queues it. It
	// returns ErrNotConnected, or the write error, otherwise.
	TrySend(payload []byte) error

	// Disconnect closes the connection and suppresses reconnection.
	Disconnect()

	// Status returns the current connection state.
	Status() Status

	AddStatusListener(StatusListener) common.Token
	RemoveStatusListener(common.Token)
	AddMessageListener(MessageListener) common.Token
	RemoveMessageListener(common.Token)
}

// Package client implements the authenticated ClearNode session.
//
// A Client sits on top of a net.Transport. Every time the transport connects
// it runs the authentication handshake:
//
//	Idle -> AuthRequested -> AwaitingVerifyResult -> Authenticated
//
// using either a stored JWT (fast path) or a fresh challenge signed by the
// wallet (EIP-712) or the session key. Failures clear the stored credential
// and session key and retry up to MaxAuthRetries times, after which the
// client enters the terminal Failed state until Retry is called.
//
// Once authenticated, the client issues signed RPCs (channels, balances,
// application sessions, transfers). Each call is correlated with its response
// by request id and is resolved exactly once: with the result, a peer error,
// a timeout, or ErrConnectionClosed when the connection drops.
package client

// Package net implements the WebSocket transport that carries the ClearNode
// protocol.
//
// A WebSocketTransport owns at most one live socket. Frames sent while the
// socket is down are queued and written, in order, as soon as a connection is
// established. Unexpected closes trigger reconnection with exponential backoff
// and random jitter, up to a bounded number of attempts; exhaustion is
// reported through status listeners rather than as an error.
//
// Inbound frames are handed to message listeners in the order they were read.
// Listeners run on the reader goroutine and must not block for long. A
// listener that panics is logged and does not affect the others.
package net

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
)

// fakeTransport is a connected-on-demand Transport that records frames and
// lets tests inject inbound frames.
type fakeTransport struct {
	mu       sync.Mutex
	status   net.Status
	sent     [][]byte
	connects int

	sentCh chan []byte

	statusListeners  *common.Registry[net.StatusListener]
	messageListeners *common.Registry[net.MessageListener]
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status:           net.Disconnected,
		sentCh:           make(chan []byte, 128),
		statusListeners:  common.NewRegistry[net.StatusListener](),
		messageListeners: common.NewRegistry[net.MessageListener](),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.status != net.Disconnected {
		f.mu.Unlock()
		return nil
	}
	f.status = net.Connected
	f.connects++
	f.mu.Unlock()

	f.emit(net.StatusEvent{Status: net.Connected})
	return nil
}

func (f *fakeTransport) Send(payload []byte) {
	frame := append([]byte(nil), payload...)

	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()

	f.sentCh <- frame
}

func (f *fakeTransport) TrySend(payload []byte) error {
	if f.Status() != net.Connected {
		return net.ErrNotConnected
	}
	f.Send(payload)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.drop(nil)
}

// drop simulates the connection going away.
func (f *fakeTransport) drop(cause error) {
	f.mu.Lock()
	was := f.status
	f.status = net.Disconnected
	f.mu.Unlock()

	if was != net.Disconnected {
		f.emit(net.StatusEvent{Status: net.Disconnected, Err: cause})
	}
}

func (f *fakeTransport) Status() net.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) AddStatusListener(l net.StatusListener) common.Token {
	return f.statusListeners.Add(l)
}

func (f *fakeTransport) RemoveStatusListener(tok common.Token) {
	f.statusListeners.Remove(tok)
}

func (f *fakeTransport) AddMessageListener(l net.MessageListener) common.Token {
	return f.messageListeners.Add(l)
}

func (f *fakeTransport) RemoveMessageListener(tok common.Token) {
	f.messageListeners.Remove(tok)
}

func (f *fakeTransport) emit(ev net.StatusEvent) {
	for _, l := range f.statusListeners.Snapshot() {
		l(ev)
	}
}

func (f *fakeTransport) deliver(frame string) {
	for _, l := range f.messageListeners.Snapshot() {
		l([]byte(frame))
	}
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// next returns the next frame sent by the client, decoded.
func (f *fakeTransport) next(t *testing.T) *rpc.Message {
	t.Helper()

	select {
	case frame := <-f.sentCh:
		msg, err := rpc.ParseMessage(frame)
		if err != nil {
			t.Fatalf("client sent a bad frame %s: %v", frame, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for a frame")
	}
	return nil
}

// expectNone checks that nothing else was sent.
func (f *fakeTransport) expectNone(t *testing.T) {
	t.Helper()

	select {
	case frame := <-f.sentCh:
		t.Fatalf("unexpected frame %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

var errAbrupt = errors.New("connection reset by peer")

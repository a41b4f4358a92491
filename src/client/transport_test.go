package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/credentials"
	"github.com/linecrypto/clearnode/src/metrics"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/linecrypto/clearnode/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireConn is the broker side of a connection: frames written by the
// transport come out of out and frames pushed into in are read by it.
type wireConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWireConn() *wireConn {
	return &wireConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *wireConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *wireConn) WriteMessage(_ int, data []byte) error {
	frame := append([]byte(nil), data...)
	select {
	case c.out <- frame:
		return nil
	case <-c.closed:
		return errors.New("use of closed connection")
	}
}

func (c *wireConn) SetWriteDeadline(time.Time) error { return nil }

func (c *wireConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *wireConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *wireConn) reply(frame string) {
	c.in <- []byte(frame)
}

func (c *wireConn) next(t *testing.T) *rpc.Message {
	t.Helper()

	select {
	case frame := <-c.out:
		msg, err := rpc.ParseMessage(frame)
		require.NoError(t, err, "bad frame %s", frame)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for a frame")
	}
	return nil
}

func (c *wireConn) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case frame := <-c.out:
		t.Fatalf("unexpected frame %s", frame)
	case <-time.After(wait):
	}
}

// flakyDialer refuses the first dial and hands out a new wireConn afterwards.
type flakyDialer struct {
	mu    sync.Mutex
	calls int
	conns chan *wireConn
}

func (d *flakyDialer) dial(ctx context.Context, url string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	first := d.calls == 1
	d.mu.Unlock()

	if first {
		return nil, errors.New("connection refused")
	}

	conn := newWireConn()
	d.conns <- conn
	return conn, nil
}

func (d *flakyDialer) accept(t *testing.T) *wireConn {
	t.Helper()

	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("transport never redialed")
	}
	return nil
}

func newWireClient(t *testing.T, reconnectDelay time.Duration) (*Client, *net.WebSocketTransport, *flakyDialer) {
	t.Helper()

	d := &flakyDialer{conns: make(chan *wireConn, 4)}
	tr := net.NewWebSocketTransport(net.Config{
		URL:                  "ws://broker.test/ws",
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   reconnectDelay,
	}, d.dial, nil, common.NewTestEntry(t, "transport"))

	mem := storage.NewInmemStorage()
	creds := credentials.NewStore(mem, common.NewTestEntry(t, "credentials"))

	c, err := New(testConfig(), tr, creds, nil, nil, metrics.New(), common.NewTestEntry(t, "client"))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c, tr, d
}

func handshake(t *testing.T, conn *wireConn) {
	t.Helper()

	req := conn.next(t)
	require.Equal(t, rpc.AuthRequest, req.Method, "the handshake must be the first frame on a connection")
	conn.reply(resFrame(req.ID, "auth_challenge", `{"challenge_message":"ch"}`))

	verify := conn.next(t)
	require.Equal(t, rpc.AuthVerify, verify.Method)
	conn.reply(resFrame(verify.ID, "auth_verify", `{"success":true,"jwt_token":"tok"}`))
}

func TestRequestWaitsForAuthentication(t *testing.T) {
	c, tr, d := newWireClient(t, 20*time.Millisecond)

	assert.Error(t, c.Start(context.Background()))

	type result struct {
		res rpc.TransferResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := c.Transfer(context.Background(), "0xdest", []rpc.TransferAllocation{{Asset: "usdc", Amount: "1"}})
		done <- result{res, err}
	}()

	conn := d.accept(t)
	handshake(t, conn)

	m := conn.next(t)
	require.Equal(t, rpc.Transfer, m.Method)
	conn.reply(resFrame(m.ID, "transfer", `{"transactions":[{"id":9,"asset":"usdc","amount":"1"}]}`))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Len(t, r.res.Transactions, 1)
	case <-time.After(2 * time.Second):
		t.Fatalf("transfer never completed")
	}

	assert.Equal(t, 0, tr.QueueLen())
	assert.Equal(t, 0, c.PendingCount())
}

func TestRejectedRequestIsNeverSent(t *testing.T) {
	c, tr, d := newWireClient(t, 300*time.Millisecond)

	assert.Error(t, c.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Transfer(ctx, "0xdest", []rpc.TransferAllocation{{Asset: "usdc", Amount: "1"}})
	require.Error(t, err)
	assert.Equal(t, 0, tr.QueueLen(), "a rejected transfer was left in the transport queue")

	conn := d.accept(t)
	handshake(t, conn)
	require.NoError(t, c.WaitAuthenticated(context.Background()))

	conn.expectNone(t, 200*time.Millisecond)
	assert.Equal(t, 0, c.PendingCount())
}

func TestCloseWakesWaitingRequest(t *testing.T) {
	c, _, _ := newWireClient(t, time.Hour)

	assert.Error(t, c.Start(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.GetConfig(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrClientClosed), "got %v", err)
	case <-time.After(time.Second):
		t.Fatalf("request still waiting after Close")
	}
}

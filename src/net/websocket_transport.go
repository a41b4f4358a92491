package net

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/metrics"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

var (
	// ErrTransportClosed is returned by Connect when Disconnect was called
	// while the dial was in flight.
	ErrTransportClosed = errors.New("transport closed")

	// ErrNotConnected is returned by TrySend when there is no live connection.
	ErrNotConnected = errors.New("not connected")
)

// Config holds the transport tunables.
type Config struct {
	URL                  string
	DialTimeout          time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxJitter   time.Duration
	// Heartbeat is the ping interval. Zero disables pings.
	Heartbeat time.Duration
	// WriteTimeout bounds every write. Zero means writeWait.
	WriteTimeout time.Duration
}

// WebSocketTransport implements Transport over a WebSocket. A single mutex
// guards the connection state and the queue and serializes writes.
type WebSocketTransport struct {
	mu sync.Mutex

	config Config
	dial   Dialer

	status         Status
	conn           Conn
	connID         uuid.UUID
	queue          [][]byte
	attempts       int
	intentional    bool
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	rnd            *rand.Rand

	statusListeners  *common.Registry[StatusListener]
	messageListeners *common.Registry[MessageListener]

	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// NewWebSocketTransport creates a transport in the Disconnected state. m may
// be nil.
func NewWebSocketTransport(config Config, dial Dialer, m *metrics.Metrics, logger *logrus.Entry) *WebSocketTransport {
	if dial == nil {
		dial = WebSocketDialer(nil)
	}

	return &WebSocketTransport{
		config:           config,
		dial:             dial,
		status:           Disconnected,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		statusListeners:  common.NewRegistry[StatusListener](),
		messageListeners: common.NewRegistry[MessageListener](),
		metrics:          m,
		logger:           logger,
	}
}

// Status implements Transport.
func (t *WebSocketTransport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// QueueLen returns the number of frames waiting for a connection.
func (t *WebSocketTransport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// AddStatusListener implements Transport.
func (t *WebSocketTransport) AddStatusListener(l StatusListener) common.Token {
	return t.statusListeners.Add(l)
}

// RemoveStatusListener implements Transport.
func (t *WebSocketTransport) RemoveStatusListener(tok common.Token) {
	t.statusListeners.Remove(tok)
}

// AddMessageListener implements Transport.
func (t *WebSocketTransport) AddMessageListener(l MessageListener) common.Token {
	return t.messageListeners.Add(l)
}

// RemoveMessageListener implements Transport.
func (t *WebSocketTransport) RemoveMessageListener(tok common.Token) {
	t.messageListeners.Remove(tok)
}

// Connect implements Transport. An explicit Connect resets the reconnect
// budget. A failed dial schedules a reconnect and returns the dial error.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.status != Disconnected {
		t.mu.Unlock()
		return nil
	}
	t.intentional = false
	t.attempts = 0
	t.stopReconnectTimerLocked()
	t.setStatusLocked(Connecting)
	t.mu.Unlock()

	t.logger.WithField("url", t.config.URL).Debug("Connecting")
	t.notifyStatus(StatusEvent{Status: Connecting})

	return t.dialAndServe(ctx, 0)
}

func (t *WebSocketTransport) dialAndServe(ctx context.Context, attempt int) error {
	dctx := ctx
	if t.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, t.config.DialTimeout)
		defer cancel()
	}

	conn, err := t.dial(dctx, t.config.URL)

	t.mu.Lock()

	if err != nil {
		if t.status != Connecting {
			t.mu.Unlock()
			return err
		}
		t.setStatusLocked(Disconnected)
		ev := StatusEvent{Status: Disconnected, Err: err}
		if !t.intentional {
			ev = t.scheduleReconnectLocked(err)
		}
		t.mu.Unlock()

		t.logger.WithError(err).WithField("attempt", attempt).Warn("Dial failed")
		t.notifyStatus(ev)

		return err
	}

	if t.intentional || t.status != Connecting {
		t.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}

	id := uuid.New()
	t.conn = conn
	t.connID = id
	t.attempts = 0
	t.setStatusLocked(Connected)

	flushed, flushErr := t.flushLocked()
	if flushErr == nil {
		t.startHeartbeatLocked(id)
	}

	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"conn":    id.String(),
		"flushed": flushed,
	}).Info("Connected")

	t.notifyStatus(StatusEvent{Status: Connected, Attempt: attempt})

	go t.readLoop(conn, id)

	if flushErr != nil {
		t.connectionLost(id, flushErr)
	}

	return nil
}

// flushLocked writes queued frames in FIFO order. Frames that could not be
// written stay queued.
func (t *WebSocketTransport) flushLocked() (int, error) {
	n := 0
	for len(t.queue) > 0 {
		if err := t.writeLocked(t.queue[0]); err != nil {
			t.metrics.SetQueueDepth(len(t.queue))
			return n, err
		}
		t.queue[0] = nil
		t.queue = t.queue[1:]
		n++
		t.metrics.FrameSent()
	}
	t.queue = nil
	t.metrics.SetQueueDepth(0)
	return n, nil
}

// Send implements Transport.
func (t *WebSocketTransport) Send(payload []byte) {
	frame := make([]byte, len(payload))
	copy(frame, payload)

	t.mu.Lock()

	if t.status == Connected && t.conn != nil {
		err := t.writeLocked(frame)
		if err == nil {
			t.mu.Unlock()
			t.metrics.FrameSent()
			return
		}

		t.queue = append(t.queue, frame)
		t.metrics.SetQueueDepth(len(t.queue))
		id := t.connID
		t.mu.Unlock()

		t.logger.WithError(err).Warn("Write failed, frame queued")
		t.connectionLost(id, err)
		return
	}

	t.queue = append(t.queue, frame)
	t.metrics.SetQueueDepth(len(t.queue))
	t.mu.Unlock()
}

// TrySend implements Transport. The frame is written on the live connection
// or not at all.
func (t *WebSocketTransport) TrySend(payload []byte) error {
	t.mu.Lock()

	if t.status != Connected || t.conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}

	err := t.writeLocked(payload)
	id := t.connID
	t.mu.Unlock()

	if err != nil {
		t.logger.WithError(err).Warn("Write failed, frame dropped")
		t.connectionLost(id, err)
		return err
	}

	t.metrics.FrameSent()
	return nil
}

// writeLocked writes one text frame under the write deadline.
func (t *WebSocketTransport) writeLocked(frame []byte) error {
	timeout := t.config.WriteTimeout
	if timeout <= 0 {
		timeout = writeWait
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// Disconnect implements Transport. Queued frames are kept for the next
// Connect.
func (t *WebSocketTransport) Disconnect() {
	t.mu.Lock()
	t.intentional = true
	t.stopReconnectTimerLocked()
	t.stopHeartbeatLocked()

	conn := t.conn
	t.conn = nil
	changed := t.status != Disconnected
	t.setStatusLocked(Disconnected)
	t.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		conn.Close()
	}

	if changed {
		t.logger.Info("Disconnected")
		t.notifyStatus(StatusEvent{Status: Disconnected})
	}
}

func (t *WebSocketTransport) readLoop(conn Conn, id uuid.UUID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.connectionLost(id, err)
			return
		}

		if !t.isCurrent(id) {
			return
		}

		t.metrics.FrameReceived()

		for _, l := range t.messageListeners.Snapshot() {
			l := l
			common.SafeCall(t.logger, "message listener", func() { l(data) })
		}
	}
}

func (t *WebSocketTransport) isCurrent(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.connID == id
}

// connectionLost tears down the connection identified by id. Calls for a
// connection that is no longer current are ignored.
func (t *WebSocketTransport) connectionLost(id uuid.UUID, cause error) {
	t.mu.Lock()
	if t.conn == nil || t.connID != id {
		t.mu.Unlock()
		return
	}

	conn := t.conn
	t.conn = nil
	t.stopHeartbeatLocked()
	t.setStatusLocked(Disconnected)

	ev := StatusEvent{Status: Disconnected, Err: cause}
	if !t.intentional {
		ev = t.scheduleReconnectLocked(cause)
	}
	t.mu.Unlock()

	conn.Close()

	t.logger.WithError(cause).WithField("conn", id.String()).Warn("Connection lost")
	t.notifyStatus(ev)
}

func (t *WebSocketTransport) scheduleReconnectLocked(cause error) StatusEvent {
	if t.attempts >= t.config.MaxReconnectAttempts {
		return StatusEvent{
			Status:    Disconnected,
			Attempt:   t.attempts,
			Exhausted: true,
			Err:       cause,
		}
	}

	t.attempts++
	attempt := t.attempts
	delay := Backoff(t.config.ReconnectBaseDelay, attempt, t.config.ReconnectMaxJitter, t.rnd)

	t.reconnectTimer = time.AfterFunc(delay, func() { t.reconnect(attempt) })
	t.metrics.IncReconnects()

	return StatusEvent{
		Status:  Disconnected,
		Attempt: attempt,
		Delay:   delay,
		Err:     cause,
	}
}

func (t *WebSocketTransport) reconnect(attempt int) {
	t.mu.Lock()
	if t.intentional || t.status != Disconnected || t.attempts != attempt {
		t.mu.Unlock()
		return
	}
	t.reconnectTimer = nil
	t.setStatusLocked(Connecting)
	t.mu.Unlock()

	t.logger.WithField("attempt", attempt).Debug("Reconnecting")
	t.notifyStatus(StatusEvent{Status: Connecting, Attempt: attempt})

	t.dialAndServe(context.Background(), attempt)
}

func (t *WebSocketTransport) stopReconnectTimerLocked() {
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
}

func (t *WebSocketTransport) startHeartbeatLocked(id uuid.UUID) {
	if t.config.Heartbeat <= 0 {
		return
	}

	stop := make(chan struct{})
	t.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(t.config.Heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				if t.conn == nil || t.connID != id {
					t.mu.Unlock()
					return
				}
				err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				t.mu.Unlock()

				if err != nil {
					t.connectionLost(id, err)
					return
				}
			}
		}
	}()
}

func (t *WebSocketTransport) stopHeartbeatLocked() {
	if t.heartbeatStop != nil {
		close(t.heartbeatStop)
		t.heartbeatStop = nil
	}
}

func (t *WebSocketTransport) setStatusLocked(s Status) {
	t.status = s
	t.metrics.SetConnectionStatus(int(s))
}

func (t *WebSocketTransport) notifyStatus(ev StatusEvent) {
	for _, l := range t.statusListeners.Snapshot() {
		l := l
		common.SafeCall(t.logger, "status listener", func() { l(ev) })
	}
}

package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/credentials"
	"github.com/linecrypto/clearnode/src/crypto/eip712"
	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/linecrypto/clearnode/src/metrics"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/sirupsen/logrus"
)

// Challenge signer modes.
const (
	SignerAuto    = "auto"
	SignerEIP712  = "eip712"
	SignerSession = "session"
)

// Config holds the protocol settings of a Client.
type Config struct {
	AppName     string
	Scope       string
	Application string
	// SessionDuration is how long the session key stays valid.
	SessionDuration time.Duration
	// WalletAddress identifies the user when no wallet key is loaded.
	WalletAddress string
	// ChallengeSigner is SignerAuto, SignerEIP712 or SignerSession.
	ChallengeSigner string
	Allowances      []rpc.Allowance

	RequestTimeout      time.Duration
	MaxAuthRetries      int
	FetchChannelsOnAuth bool
}

// Client drives authentication and signed RPCs over a Transport.
type Client struct {
	config    Config
	transport net.Transport
	creds     *credentials.Store
	wallet    *eip712.WalletSigner
	sessions  *SessionRegistry
	metrics   *metrics.Metrics
	logger    *logrus.Entry

	nextID uint64
	now    func() time.Time

	pending   *pendingTable
	listeners *common.Registry[EventListener]

	statusToken  common.Token
	messageToken common.Token

	// mu guards everything below.
	mu         sync.Mutex
	state      State
	retryCount int
	expire     uint64
	jwtAttempt bool
	changed    chan struct{}
	closed     bool
	channels   []rpc.Channel
	balances   []rpc.Balance
	nodeConfig *rpc.NodeConfig
	outbox     []Event
	deferred   [][]byte
}

// New creates a Client and subscribes it to the transport. wallet may be nil,
// in which case challenges are answered with the session key. sessions and m
// may be nil.
func New(
	config Config,
	transport net.Transport,
	creds *credentials.Store,
	wallet keys.Signer,
	sessions *SessionRegistry,
	m *metrics.Metrics,
	logger *logrus.Entry,
) (*Client, error) {
	switch config.ChallengeSigner {
	case "":
		config.ChallengeSigner = SignerAuto
	case SignerAuto, SignerSession:
	case SignerEIP712:
		if wallet == nil {
			return nil, fmt.Errorf("challenge signer %q requires a wallet key", SignerEIP712)
		}
	default:
		return nil, fmt.Errorf("unknown challenge signer %q", config.ChallengeSigner)
	}

	if config.MaxAuthRetries < 1 {
		config.MaxAuthRetries = 1
	}

	if sessions == nil {
		sessions = NewSessionRegistry(nil, logger)
	}

	c := &Client{
		config:    config,
		transport: transport,
		creds:     creds,
		sessions:  sessions,
		metrics:   m,
		logger:    logger,
		nextID:    uint64(time.Now().UnixMilli()),
		now:       time.Now,
		pending:   newPendingTable(),
		listeners: common.NewRegistry[EventListener](),
		state:     Idle,
		changed:   make(chan struct{}),
	}

	if wallet != nil {
		c.wallet = eip712.NewWalletSigner(wallet, eip712.Domain{Name: config.AppName})
	}

	c.statusToken = transport.AddStatusListener(c.onStatus)
	c.messageToken = transport.AddMessageListener(c.onMessage)

	c.publishSessionStats()

	return c, nil
}

// Start connects the transport. The handshake starts as soon as the
// connection is up. Connection errors are also reported to subscribers and
// followed by automatic reconnection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClientClosed
	}

	return c.transport.Connect(ctx)
}

// Close detaches the client from the transport, disconnects it and rejects
// pending requests.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.broadcastLocked()
	c.mu.Unlock()

	c.transport.RemoveStatusListener(c.statusToken)
	c.transport.RemoveMessageListener(c.messageToken)
	c.transport.Disconnect()

	c.rejectPending(ErrClientClosed)

	c.mu.Lock()
	if c.state != Failed {
		c.setStateLocked(Idle)
	}
	c.flushUnlock()
}

// Subscribe registers l for client events.
func (c *Client) Subscribe(l EventListener) common.Token {
	return c.listeners.Add(l)
}

// Unsubscribe removes a listener. Removing twice is a no-op.
func (c *Client) Unsubscribe(tok common.Token) {
	c.listeners.Remove(tok)
}

// State returns the authentication state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthenticated ...
func (c *Client) IsAuthenticated() bool {
	return c.State() == Authenticated
}

// RetryCount returns the number of failed authentication attempts since the
// last success.
func (c *Client) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// ExpireTimestamp is the expiry, in unix seconds, requested for the current
// session key.
func (c *Client) ExpireTimestamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expire
}

// ConnectionStatus returns the transport status.
func (c *Client) ConnectionStatus() net.Status {
	return c.transport.Status()
}

// Channels returns the last channel list received.
func (c *Client) Channels() []rpc.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]rpc.Channel(nil), c.channels...)
}

// Balances returns the last ledger balances received.
func (c *Client) Balances() []rpc.Balance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]rpc.Balance(nil), c.balances...)
}

// NodeConfig returns the broker configuration, if it was fetched.
func (c *Client) NodeConfig() (rpc.NodeConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodeConfig == nil {
		return rpc.NodeConfig{}, false
	}
	return *c.nodeConfig, true
}

// Sessions returns the application session registry.
func (c *Client) Sessions() *SessionRegistry {
	return c.sessions
}

// PendingCount returns the number of requests awaiting a response.
func (c *Client) PendingCount() int {
	return c.pending.size()
}

// Address is the identity the client authenticates as.
func (c *Client) Address() string {
	if c.wallet != nil {
		return c.wallet.Address()
	}
	if c.config.WalletAddress != "" {
		return c.config.WalletAddress
	}
	if key, err := c.creds.GetOrCreateSessionKey(); err == nil {
		return key.Address
	}
	return ""
}

// WaitAuthenticated blocks until the client is authenticated, authentication
// failed terminally, or ctx is done.
func (c *Client) WaitAuthenticated(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, changed := c.state, c.changed
		c.mu.Unlock()

		switch state {
		case Authenticated:
			return nil
		case Failed:
			return ErrAuthenticationFailed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Retry leaves the Failed state and grants one more authentication attempt.
// It reconnects the transport if needed.
func (c *Client) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != Failed {
		c.mu.Unlock()
		return nil
	}
	c.retryCount = c.config.MaxAuthRetries - 1
	c.setStateLocked(Idle)
	c.flushUnlock()

	c.logger.Info("Retrying authentication")

	if c.transport.Status() == net.Connected {
		c.startAuth()
		return nil
	}
	return c.transport.Connect(ctx)
}

// Logout forgets the credential and the session key and disconnects.
func (c *Client) Logout() {
	c.creds.ClearCredential()
	c.creds.ClearSessionKey()

	c.transport.Disconnect()
	c.rejectPending(ErrConnectionClosed)

	c.mu.Lock()
	c.retryCount = 0
	c.jwtAttempt = false
	c.setStateLocked(Idle)
	c.flushUnlock()

	c.logger.Info("Logged out")
}

func (c *Client) requestID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// setStateLocked records a transition and queues the matching event.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"from": c.state.String(),
		"to":   s.String(),
	}).Debug("Auth state")

	c.state = s
	c.broadcastLocked()
	c.metrics.SetAuthState(int(s))

	c.emitLocked(Event{Type: EventStateChanged, State: s})
}

// broadcastLocked wakes everyone waiting on a state change.
func (c *Client) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) emitLocked(ev Event) {
	c.outbox = append(c.outbox, ev)
}

// flushUnlock releases mu, then sends the queued frames and delivers the
// queued events. The transport may call back into the client, so neither
// happens under mu.
func (c *Client) flushUnlock() {
	events, frames := c.outbox, c.deferred
	c.outbox, c.deferred = nil, nil
	c.mu.Unlock()

	for _, f := range frames {
		c.transport.Send(f)
	}
	c.publish(events...)
}

func (c *Client) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	listeners := c.listeners.Snapshot()
	for _, ev := range events {
		for _, l := range listeners {
			l, ev := l, ev
			common.SafeCall(c.logger, "event listener", func() { l(ev) })
		}
	}
}

func (c *Client) rejectPending(err error) {
	reqs := c.pending.drain()
	for _, r := range reqs {
		r.resolve(response{err: err})
	}
	if len(reqs) > 0 {
		c.logger.WithError(err).WithField("requests", len(reqs)).Debug("Rejected pending requests")
	}
	c.metrics.SetPending(0)
}

func (c *Client) publishSessionStats() {
	st := c.sessions.Stats()
	c.metrics.SetAppSessions(st.Active, st.Closed)
}

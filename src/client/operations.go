package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/sirupsen/logrus"
)

// call signs and sends a request with the session key and waits for the
// response.
func (c *Client) call(ctx context.Context, method rpc.Method, params interface{}) (*rpc.Message, error) {
	return c.callWith(ctx, method, params, false)
}

// callWith is call. A foreign response answers a question about another
// participant and must not replace the client's own state.
//
// Requests wait for authentication and are written only on a live
// connection. They are never queued in the transport, so a request that was
// rejected can not be sent later.
func (c *Client) callWith(ctx context.Context, method rpc.Method, params interface{}, foreign bool) (*rpc.Message, error) {
	start := time.Now()

	var deadline <-chan time.Time
	if c.config.RequestTimeout > 0 {
		timer := time.NewTimer(c.config.RequestTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	if err := c.awaitAuthenticated(ctx, method, deadline); err != nil {
		c.metrics.ObserveRequest(method.String(), outcome(err), time.Since(start))
		return nil, err
	}

	key, err := c.creds.GetOrCreateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}

	id := c.requestID()
	frame, err := rpc.NewRequest(id, method, params, c.now()).Sign(key.Signer())
	if err != nil {
		return nil, err
	}

	remaining := c.config.RequestTimeout - time.Since(start)
	if c.config.RequestTimeout > 0 && remaining <= 0 {
		remaining = time.Millisecond
	}

	req := c.pending.add(id, method, remaining, c.expireRequest)
	req.foreign = foreign
	c.metrics.SetPending(c.pending.size())

	c.logger.WithFields(logrus.Fields{
		"method": method.String(),
		"id":     id,
	}).Debug("Sending request")

	if err := c.transport.TrySend(frame); err != nil {
		if _, ok := c.pending.take(id); ok {
			c.metrics.SetPending(c.pending.size())
		}
		c.metrics.ObserveRequest(method.String(), "closed", time.Since(start))
		return nil, fmt.Errorf("%s request %d: %v: %w", method, id, err, ErrConnectionClosed)
	}

	select {
	case res := <-req.result:
		c.metrics.ObserveRequest(method.String(), outcome(res.err), time.Since(start))
		return res.msg, res.err
	case <-ctx.Done():
		if _, ok := c.pending.take(id); ok {
			c.metrics.SetPending(c.pending.size())
		}
		c.metrics.ObserveRequest(method.String(), "cancelled", time.Since(start))
		return nil, ctx.Err()
	}
}

// awaitAuthenticated blocks until the client is authenticated. It fails fast
// when the client is closed or authentication failed for good.
func (c *Client) awaitAuthenticated(ctx context.Context, method rpc.Method, deadline <-chan time.Time) error {
	for {
		c.mu.Lock()
		closed, state, changed := c.closed, c.state, c.changed
		c.mu.Unlock()

		switch {
		case closed:
			return ErrClientClosed
		case state == Failed:
			return ErrAuthenticationFailed
		case state == Authenticated:
			return nil
		}

		select {
		case <-changed:
		case <-deadline:
			return fmt.Errorf("%s request waiting for authentication: %w", method, ErrRequestTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) expireRequest(id uint64) {
	req, ok := c.pending.take(id)
	if !ok {
		return
	}
	c.metrics.SetPending(c.pending.size())

	c.logger.WithFields(logrus.Fields{
		"method": req.method.String(),
		"id":     id,
	}).Warn("Request timed out")

	req.resolve(response{err: fmt.Errorf("%s request %d: %w", req.method, id, ErrRequestTimeout)})
}

func outcome(err error) string {
	var perr *rpc.PeerError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr):
		return "peer_error"
	case errors.Is(err, ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrClientClosed):
		return "closed"
	default:
		return "error"
	}
}

// GetChannels fetches the channels of the authenticated participant.
func (c *Client) GetChannels(ctx context.Context) ([]rpc.Channel, error) {
	msg, err := c.call(ctx, rpc.GetChannels, rpc.ParticipantParams(c.Address()))
	if err != nil {
		return nil, err
	}
	return rpc.ParseChannels(msg.Params)
}

// GetLedgerBalances fetches the ledger balances of participant, or of the
// authenticated participant when participant is empty.
func (c *Client) GetLedgerBalances(ctx context.Context, participant string) ([]rpc.Balance, error) {
	own := c.Address()
	if participant == "" {
		participant = own
	}
	foreign := !keys.SameAddress(participant, own)
	msg, err := c.callWith(ctx, rpc.GetLedgerBalances, rpc.ParticipantParams(participant), foreign)
	if err != nil {
		return nil, err
	}
	return rpc.ParseBalances(msg.Params)
}

// GetConfig fetches the broker configuration.
func (c *Client) GetConfig(ctx context.Context) (rpc.NodeConfig, error) {
	msg, err := c.call(ctx, rpc.GetConfig, map[string]interface{}{})
	if err != nil {
		return rpc.NodeConfig{}, err
	}
	return rpc.ParseNodeConfig(msg.Params)
}

// CreateAppSession validates req, creates the session on the broker and
// records it. Validation errors are returned before anything is sent.
func (c *Client) CreateAppSession(ctx context.Context, req AppSessionRequest) (*AppSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Nonce == 0 {
		req.Nonce = uint64(c.now().UnixMilli())
	}

	msg, err := c.call(ctx, rpc.CreateAppSession, req.params().Map())
	if err != nil {
		return nil, err
	}

	res, err := rpc.ParseAppSessionResult(msg.Params)
	if err != nil {
		return nil, err
	}

	status := SessionStatus(res.Status)
	if status == "" {
		status = SessionOpen
	}

	s := &AppSession{
		ID:           res.AppSessionID,
		Status:       status,
		Protocol:     req.Protocol,
		Participants: req.Participants,
		Weights:      req.Weights,
		Quorum:       req.Quorum,
		Allocations:  req.Allocations,
		Version:      res.Version,
		CreatedAt:    c.now().UTC(),
	}
	c.sessions.Add(s)
	c.publishSessionStats()

	c.logger.WithFields(logrus.Fields{
		"id":           s.ID,
		"participants": len(s.Participants),
	}).Info("App session created")

	s, _ = c.sessions.Get(s.ID)
	c.publish(Event{Type: EventAppSessionUpdated, AppSession: s})

	return s, nil
}

// CloseAppSession closes a session with the final allocations. When final is
// nil the allocations the session was created with are used.
func (c *Client) CloseAppSession(ctx context.Context, id string, final []rpc.Allocation) (*AppSession, error) {
	if id == "" {
		return nil, invalid("app_session_id", "empty")
	}

	known, ok := c.sessions.Get(id)
	if final == nil {
		if !ok {
			return nil, invalid("allocations", "unknown session %s and no allocations given", id)
		}
		final = known.Allocations
	}
	for i, a := range final {
		if a.Participant == "" || a.Asset == "" {
			return nil, invalid("allocations", "allocation %d is incomplete", i)
		}
		if !decimalPattern.MatchString(a.Amount) {
			return nil, invalid("allocations", "allocation %d: bad amount %q", i, a.Amount)
		}
	}

	params := rpc.CloseAppSessionParams{AppSessionID: id, Allocations: final}
	msg, err := c.call(ctx, rpc.CloseAppSession, params.Map())
	if err != nil {
		return nil, err
	}

	version := ""
	if res, err := rpc.ParseAppSessionResult(msg.Params); err == nil {
		version = res.Version
	}

	now := c.now()
	if !ok {
		c.sessions.Add(&AppSession{
			ID:          id,
			Status:      SessionOpen,
			Allocations: final,
			CreatedAt:   now.UTC(),
		})
	}
	s, _ := c.sessions.MarkClosed(id, final, now)
	if version != "" {
		s, _ = c.sessions.Update(id, SessionClosed, version, now)
	}
	c.publishSessionStats()

	c.logger.WithField("id", id).Info("App session closed")
	c.publish(Event{Type: EventAppSessionUpdated, AppSession: s})

	return s, nil
}

// Transfer moves funds from the authenticated participant's ledger to
// destination.
func (c *Client) Transfer(ctx context.Context, destination string, allocations []rpc.TransferAllocation) (rpc.TransferResult, error) {
	if destination == "" {
		return rpc.TransferResult{}, invalid("destination", "empty")
	}
	if len(allocations) == 0 {
		return rpc.TransferResult{}, invalid("allocations", "at least one allocation required")
	}

	allocs := make([]rpc.TransferAllocation, 0, len(allocations))
	for i, a := range allocations {
		asset := strings.ToLower(strings.TrimSpace(a.Asset))
		if asset == "" {
			return rpc.TransferResult{}, invalid("allocations", "allocation %d: missing asset", i)
		}
		if !decimalPattern.MatchString(a.Amount) || strings.Trim(a.Amount, "0.") == "" {
			return rpc.TransferResult{}, invalid("allocations", "allocation %d: amount must be positive, got %q", i, a.Amount)
		}
		allocs = append(allocs, rpc.TransferAllocation{Asset: asset, Amount: a.Amount})
	}

	params := rpc.TransferParams{Destination: destination, Allocations: allocs}
	msg, err := c.call(ctx, rpc.Transfer, params.Map())
	if err != nil {
		return rpc.TransferResult{}, err
	}

	return rpc.ParseTransferResult(msg.Params)
}

func (c *Client) fetchChannelsAfterAuth() {
	timeout := c.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	channels, err := c.GetChannels(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Fetching channels after authentication")
		return
	}
	c.logger.WithField("channels", len(channels)).Debug("Fetched channels after authentication")
}

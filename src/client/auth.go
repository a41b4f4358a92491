package client

import (
	"fmt"

	"github.com/linecrypto/clearnode/src/crypto/eip712"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/sirupsen/logrus"
)

func (c *Client) onStatus(ev net.StatusEvent) {
	c.publish(Event{Type: EventConnection, Connection: ev})

	switch ev.Status {
	case net.Connected:
		c.startAuth()
	case net.Disconnected:
		c.connectionDropped(ev)
	}
}

// connectionDropped resets the handshake. The session key and the stored
// credential survive, so the next connection can use the fast path.
func (c *Client) connectionDropped(ev net.StatusEvent) {
	c.rejectPending(ErrConnectionClosed)

	c.mu.Lock()
	c.jwtAttempt = false
	if c.state != Failed {
		c.setStateLocked(Idle)
	}
	c.flushUnlock()

	if ev.Exhausted {
		c.logger.WithField("attempts", ev.Attempt).Error("Reconnect attempts exhausted")
	}
}

// startAuth begins the handshake on a fresh connection, with the stored
// credential if there is one.
func (c *Client) startAuth() {
	c.mu.Lock()
	if c.closed || c.state == Failed || c.state == Authenticated {
		c.mu.Unlock()
		return
	}

	var frame []byte
	var err error

	if jwt, ok := c.creds.GetCredential(); ok {
		c.jwtAttempt = true
		frame, err = rpc.NewRequest(c.requestID(), rpc.AuthVerify, rpc.JWTParams(jwt), c.now()).Sign()
		if err == nil {
			c.setStateLocked(AwaitingVerifyResult)
			c.logger.Debug("Authenticating with stored credential")
		}
	} else {
		frame, err = c.authRequestLocked()
	}

	if err != nil {
		c.authFailureLocked(err)
	} else {
		c.sendLocked(frame)
	}
	c.flushUnlock()
}

// authRequestLocked builds auth_request for the current session key, creating
// the key if needed, and moves to AuthRequested.
func (c *Client) authRequestLocked() ([]byte, error) {
	key, err := c.creds.GetOrCreateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}

	c.expire = uint64(c.now().Add(c.config.SessionDuration).Unix())

	params := rpc.AuthRequestParams{
		Address:     c.identityLocked(key.Address),
		SessionKey:  key.Address,
		AppName:     c.config.AppName,
		Expire:      c.expire,
		Scope:       c.config.Scope,
		Application: c.config.Application,
		Allowances:  c.config.Allowances,
	}

	frame, err := rpc.NewRequest(c.requestID(), rpc.AuthRequest, params.Map(), c.now()).Sign()
	if err != nil {
		return nil, err
	}

	c.setStateLocked(AuthRequested)

	c.logger.WithFields(logrus.Fields{
		"address":     params.Address,
		"session_key": params.SessionKey,
		"attempt":     c.retryCount + 1,
	}).Info("Requesting authentication")

	return frame, nil
}

func (c *Client) identityLocked(sessionAddress string) string {
	switch {
	case c.wallet != nil:
		return c.wallet.Address()
	case c.config.WalletAddress != "":
		return c.config.WalletAddress
	default:
		return sessionAddress
	}
}

func (c *Client) useWallet() bool {
	switch c.config.ChallengeSigner {
	case SignerEIP712:
		return true
	case SignerSession:
		return false
	default:
		return c.wallet != nil
	}
}

func (c *Client) handleChallenge(msg *rpc.Message) {
	c.mu.Lock()
	if c.state != AuthRequested {
		state := c.state
		c.mu.Unlock()
		c.logger.WithField("state", state.String()).Warn("Unexpected auth challenge")
		return
	}

	frame, err := c.answerChallengeLocked(msg)
	if err != nil {
		c.authFailureLocked(err)
	} else {
		c.setStateLocked(AwaitingVerifyResult)
		c.sendLocked(frame)
	}
	c.flushUnlock()
}

func (c *Client) answerChallengeLocked(msg *rpc.Message) ([]byte, error) {
	challenge, err := rpc.ParseChallenge(msg.Params)
	if err != nil {
		return nil, err
	}

	key, err := c.creds.GetOrCreateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}

	req := rpc.NewRequest(c.requestID(), rpc.AuthVerify, rpc.ChallengeParams(challenge), c.now())

	if !c.useWallet() {
		c.logger.Debug("Answering challenge with session key")
		return req.Sign(key.Signer())
	}

	policy := eip712.Policy{
		Challenge:   challenge,
		Scope:       c.config.Scope,
		Wallet:      c.wallet.Address(),
		Application: c.config.Application,
		Participant: key.Address,
		Expire:      c.expire,
		Allowances:  c.config.Allowances,
	}

	sig, err := c.wallet.SignPolicy(policy)
	if err != nil {
		return nil, fmt.Errorf("signing policy: %w", err)
	}

	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Answering challenge with wallet signature")
	return rpc.Frame(payload, [][]byte{sig})
}

func (c *Client) handleVerify(msg *rpc.Message) {
	res, err := rpc.ParseVerifyResult(msg.Params)

	c.mu.Lock()
	if c.state != AwaitingVerifyResult {
		state := c.state
		c.mu.Unlock()
		c.logger.WithField("state", state.String()).Warn("Unexpected auth verify result")
		return
	}

	if err == nil && !res.Success {
		err = fmt.Errorf("broker rejected verification")
	}
	if err != nil {
		c.authFailureLocked(err)
		c.flushUnlock()
		return
	}

	if res.JWT != "" {
		c.creds.StoreCredential(res.JWT)
	}
	fetch := c.config.FetchChannelsOnAuth

	c.retryCount = 0
	c.jwtAttempt = false
	c.setStateLocked(Authenticated)
	c.emitLocked(Event{Type: EventAuthenticated, State: Authenticated})
	c.metrics.AuthAttempt("success")
	c.flushUnlock()

	c.logger.Info("Authenticated")

	if fetch {
		go c.fetchChannelsAfterAuth()
	}
}

// authFailureLocked handles a failed step of the handshake. A rejected stored
// credential falls back to the full flow without using up a retry.
func (c *Client) authFailureLocked(cause error) {
	if c.jwtAttempt {
		c.jwtAttempt = false
		c.creds.ClearCredential()
		c.metrics.AuthAttempt("jwt_rejected")

		c.logger.WithError(cause).Info("Stored credential rejected, requesting a new one")

		frame, err := c.authRequestLocked()
		if err == nil {
			c.sendLocked(frame)
			return
		}
		cause = err
	}

	c.creds.ClearCredential()
	c.creds.ClearSessionKey()
	c.retryCount++
	c.metrics.AuthAttempt("failure")

	fields := logrus.Fields{
		"attempt": c.retryCount,
		"max":     c.config.MaxAuthRetries,
	}

	if c.retryCount < c.config.MaxAuthRetries && c.transport.Status() == net.Connected {
		c.logger.WithError(cause).WithFields(fields).Warn("Authentication failed, retrying")
		c.emitLocked(Event{Type: EventAuthFailed, Err: cause})

		frame, err := c.authRequestLocked()
		if err == nil {
			c.sendLocked(frame)
			return
		}
		cause = err
		c.retryCount = c.config.MaxAuthRetries
	}

	if c.retryCount > c.config.MaxAuthRetries {
		c.retryCount = c.config.MaxAuthRetries
	}

	if c.retryCount < c.config.MaxAuthRetries {
		// disconnected mid-handshake, the next connection starts over
		c.setStateLocked(Idle)
		c.emitLocked(Event{Type: EventAuthFailed, Err: cause})
		return
	}

	c.logger.WithError(cause).WithFields(fields).Error("Authentication failed")
	c.setStateLocked(Failed)
	c.emitLocked(Event{
		Type:     EventAuthFailed,
		Err:      fmt.Errorf("%w: %v", ErrAuthenticationFailed, cause),
		Terminal: true,
	})
}

// sendLocked queues frame for the transport. It is sent by flushUnlock.
func (c *Client) sendLocked(frame []byte) {
	c.deferred = append(c.deferred, frame)
}

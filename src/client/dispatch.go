package client

import (
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/sirupsen/logrus"
)

// onMessage handles one inbound frame: state is updated first, then the
// matching pending request, if any, is resolved.
func (c *Client) onMessage(data []byte) {
	msg, err := rpc.ParseMessage(data)
	if err != nil {
		c.logger.WithError(err).Warn("Dropping malformed frame")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"method": msg.Name,
		"id":     msg.ID,
	}).Debug("Received frame")

	var req *pendingRequest
	if msg.HasID {
		req, _ = c.pending.get(msg.ID)
	}
	ownResponse := req != nil

	switch msg.Method {
	case rpc.AuthChallenge:
		c.handleChallenge(msg)
	case rpc.AuthVerify:
		c.handleVerify(msg)
	case rpc.Error:
		if c.handleError(msg) {
			return
		}
	case rpc.GetChannels:
		c.replaceChannels(msg)
	case rpc.ChannelUpdate:
		c.mergeChannels(msg)
	case rpc.GetLedgerBalances:
		if req == nil || !req.foreign {
			c.replaceBalances(msg)
		}
	case rpc.BalanceUpdate:
		c.replaceBalances(msg)
	case rpc.GetConfig:
		c.storeNodeConfig(msg)
	case rpc.CreateAppSession, rpc.CloseAppSession, rpc.AppSessionUpdate:
		if !ownResponse {
			c.applyAppSession(msg)
		}
	case rpc.Transfer:
		c.transferCompleted(msg)
	case rpc.Ping:
		c.pong(msg)
	case rpc.Pong, rpc.AuthRequest:
	default:
		c.logger.WithField("method", msg.Name).Info("Ignoring unknown method")
	}

	if ownResponse {
		c.resolve(msg)
	}
}

func (c *Client) resolve(msg *rpc.Message) {
	req, ok := c.pending.take(msg.ID)
	if !ok {
		return
	}
	c.metrics.SetPending(c.pending.size())
	req.resolve(response{msg: msg})
}

// handleError routes an error frame to the request it answers, to the
// handshake, or to subscribers. It reports whether a request was rejected.
func (c *Client) handleError(msg *rpc.Message) bool {
	perr := rpc.ParsePeerError("", msg.Params)

	if msg.HasID {
		if req, ok := c.pending.take(msg.ID); ok {
			perr.Method = req.method.String()
			c.metrics.SetPending(c.pending.size())
			req.resolve(response{err: perr})
			return true
		}
	}

	c.mu.Lock()
	if c.state.handshaking() {
		perr.Method = "auth"
		c.authFailureLocked(perr)
		c.flushUnlock()
		return false
	}
	c.emitLocked(Event{Type: EventPeerError, Err: perr})
	c.flushUnlock()

	c.logger.WithError(perr).Warn("Peer error")
	return false
}

func (c *Client) replaceChannels(msg *rpc.Message) {
	channels, err := rpc.ParseChannels(msg.Params)
	if err != nil {
		c.logger.WithError(err).Warn("Bad channel list")
		return
	}

	c.mu.Lock()
	c.channels = channels
	c.emitLocked(Event{Type: EventChannelsUpdated, Channels: append([]rpc.Channel(nil), channels...)})
	c.flushUnlock()

	c.logger.WithField("channels", len(channels)).Debug("Channels updated")
}

func (c *Client) mergeChannels(msg *rpc.Message) {
	updates, err := rpc.ParseChannels(msg.Params)
	if err != nil {
		c.logger.WithError(err).Warn("Bad channel update")
		return
	}

	c.mu.Lock()
	for _, u := range updates {
		replaced := false
		for i := range c.channels {
			if c.channels[i].ChannelID == u.ChannelID {
				c.channels[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			c.channels = append(c.channels, u)
		}
	}
	c.emitLocked(Event{Type: EventChannelsUpdated, Channels: append([]rpc.Channel(nil), c.channels...)})
	c.flushUnlock()
}

func (c *Client) replaceBalances(msg *rpc.Message) {
	balances, err := rpc.ParseBalances(msg.Params)
	if err != nil {
		c.logger.WithError(err).Warn("Bad balances")
		return
	}

	c.mu.Lock()
	c.balances = balances
	c.emitLocked(Event{Type: EventBalancesUpdated, Balances: append([]rpc.Balance(nil), balances...)})
	c.flushUnlock()
}

func (c *Client) storeNodeConfig(msg *rpc.Message) {
	cfg, err := rpc.ParseNodeConfig(msg.Params)
	if err != nil {
		c.logger.WithError(err).Warn("Bad node config")
		return
	}

	c.mu.Lock()
	c.nodeConfig = &cfg
	c.mu.Unlock()
}

// applyAppSession updates a known session from a broker notification.
// Sessions the client never created are ignored.
func (c *Client) applyAppSession(msg *rpc.Message) {
	res, err := rpc.ParseAppSessionResult(msg.Params)
	if err != nil {
		c.logger.WithError(err).Debug("Bad app session notification")
		return
	}

	status := SessionStatus(res.Status)
	if msg.Method == rpc.CloseAppSession {
		status = SessionClosed
	}

	s, ok := c.sessions.Update(res.AppSessionID, status, res.Version, c.now())
	if !ok {
		c.logger.WithField("id", res.AppSessionID).Debug("Notification for unknown app session")
		return
	}

	c.publishSessionStats()
	c.publish(Event{Type: EventAppSessionUpdated, AppSession: s})
}

func (c *Client) transferCompleted(msg *rpc.Message) {
	res, err := rpc.ParseTransferResult(msg.Params)
	if err != nil {
		c.logger.WithError(err).Warn("Bad transfer result")
		return
	}
	c.publish(Event{Type: EventTransferCompleted, Transfer: &res})
}

func (c *Client) pong(msg *rpc.Message) {
	frame, err := rpc.NewRequest(msg.ID, rpc.Pong, nil, c.now()).Sign()
	if err != nil {
		c.logger.WithError(err).Error("Encoding pong")
		return
	}
	c.transport.Send(frame)
}

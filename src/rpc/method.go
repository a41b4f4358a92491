package rpc

// Method is the closed set of protocol methods known to the client.
type Method int

const (
	// Unknown covers every method name the client does not recognise.
	Unknown Method = iota
	AuthRequest
	AuthChallenge
	AuthVerify
	Error
	GetChannels
	GetLedgerBalances
	GetConfig
	CreateAppSession
	CloseAppSession
	Transfer
	// BalanceUpdate, ChannelUpdate and AppSessionUpdate are unsolicited
	// pushes.
	BalanceUpdate
	ChannelUpdate
	AppSessionUpdate
	Ping
	Pong
)

var methodNames = map[Method]string{
	AuthRequest:       "auth_request",
	AuthChallenge:     "auth_challenge",
	AuthVerify:        "auth_verify",
	Error:             "error",
	GetChannels:       "get_channels",
	GetLedgerBalances: "get_ledger_balances",
	GetConfig:         "get_config",
	CreateAppSession:  "create_app_session",
	CloseAppSession:   "close_app_session",
	Transfer:          "transfer",
	BalanceUpdate:     "bu",
	ChannelUpdate:     "cu",
	AppSessionUpdate:  "asu",
	Ping:              "ping",
	Pong:              "pong",
}

var methodsByName = func() map[string]Method {
	res := make(map[string]Method, len(methodNames)+4)
	for m, n := range methodNames {
		res[n] = m
	}
	// long forms used by older brokers
	res["BalanceUpdate"] = BalanceUpdate
	res["balance_update"] = BalanceUpdate
	res["channel_update"] = ChannelUpdate
	res["app_session_update"] = AppSessionUpdate
	return res
}()

// String returns the wire name.
func (m Method) String() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return "unknown"
}

// ParseMethod maps a wire name to a Method, or Unknown.
func ParseMethod(name string) Method {
	if m, ok := methodsByName[name]; ok {
		return m
	}
	return Unknown
}

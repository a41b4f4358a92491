package client

// State is the authentication state of a Client.
type State int

const (
	// Idle means no handshake is in progress, typically because the
	// transport is not connected.
	Idle State = iota
	// AuthRequested means auth_request was sent and a challenge is expected.
	AuthRequested
	// AwaitingVerifyResult means auth_verify was sent.
	AwaitingVerifyResult
	// Authenticated means signed RPCs are accepted by the broker.
	Authenticated
	// Failed is terminal until Retry is called.
	Failed
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AuthRequested:
		return "AuthRequested"
	case AwaitingVerifyResult:
		return "AwaitingVerifyResult"
	case Authenticated:
		return "Authenticated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s State) handshaking() bool {
	return s == AuthRequested || s == AwaitingVerifyResult
}

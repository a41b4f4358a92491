package rpc

import (
	"strconv"

	"github.com/linecrypto/clearnode/src/crypto/eip712"
)

// Allowance is a spending allowance granted to the session key. It is the
// same value the wallet signs in the auth policy.
type Allowance = eip712.Allowance

func allowanceList(as []Allowance) []interface{} {
	res := make([]interface{}, 0, len(as))
	for _, a := range as {
		res = append(res, map[string]interface{}{
			"asset":  a.Asset,
			"amount": a.Amount,
		})
	}
	return res
}

// AuthRequestParams opens the handshake.
type AuthRequestParams struct {
	Address     string
	SessionKey  string
	AppName     string
	Expire      uint64
	Scope       string
	Application string
	Allowances  []Allowance
}

// Map returns the wire object.
func (p AuthRequestParams) Map() map[string]interface{} {
	return map[string]interface{}{
		"address":     p.Address,
		"session_key": p.SessionKey,
		"app_name":    p.AppName,
		"expire":      strconv.FormatUint(p.Expire, 10),
		"scope":       p.Scope,
		"application": p.Application,
		"allowances":  allowanceList(p.Allowances),
	}
}

// ChallengeParams answers an auth challenge.
func ChallengeParams(challenge string) map[string]interface{} {
	return map[string]interface{}{"challenge": challenge}
}

// JWTParams re-authenticates with a stored token.
func JWTParams(jwt string) map[string]interface{} {
	return map[string]interface{}{"jwt": jwt}
}

// ParticipantParams is used by get_channels and get_ledger_balances.
func ParticipantParams(participant string) map[string]interface{} {
	return map[string]interface{}{"participant": participant}
}

// Allocation assigns an amount of an asset to a participant.
type Allocation struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

func allocationList(as []Allocation) []interface{} {
	res := make([]interface{}, 0, len(as))
	for _, a := range as {
		res = append(res, map[string]interface{}{
			"participant": a.Participant,
			"asset":       a.Asset,
			"amount":      a.Amount,
		})
	}
	return res
}

// AppDefinition describes the governance of an application session.
type AppDefinition struct {
	Protocol     string
	Participants []string
	Weights      []uint64
	Quorum       uint64
	Challenge    uint64
	Nonce        uint64
}

// CreateAppSessionParams ...
type CreateAppSessionParams struct {
	Definition  AppDefinition
	Allocations []Allocation
}

// Map returns the wire object.
func (p CreateAppSessionParams) Map() map[string]interface{} {
	participants := make([]interface{}, 0, len(p.Definition.Participants))
	for _, pt := range p.Definition.Participants {
		participants = append(participants, pt)
	}
	weights := make([]interface{}, 0, len(p.Definition.Weights))
	for _, w := range p.Definition.Weights {
		weights = append(weights, w)
	}

	return map[string]interface{}{
		"definition": map[string]interface{}{
			"protocol":     p.Definition.Protocol,
			"participants": participants,
			"weights":      weights,
			"quorum":       p.Definition.Quorum,
			"challenge":    p.Definition.Challenge,
			"nonce":        p.Definition.Nonce,
		},
		"allocations": allocationList(p.Allocations),
	}
}

// CloseAppSessionParams ...
type CloseAppSessionParams struct {
	AppSessionID string
	Allocations  []Allocation
}

// Map returns the wire object.
func (p CloseAppSessionParams) Map() map[string]interface{} {
	return map[string]interface{}{
		"app_session_id": p.AppSessionID,
		"allocations":    allocationList(p.Allocations),
	}
}

// TransferAllocation is an amount of one asset.
type TransferAllocation struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// TransferParams ...
type TransferParams struct {
	Destination string
	Allocations []TransferAllocation
}

// Map returns the wire object.
func (p TransferParams) Map() map[string]interface{} {
	allocs := make([]interface{}, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		allocs = append(allocs, map[string]interface{}{
			"asset":  a.Asset,
			"amount": a.Amount,
		})
	}
	return map[string]interface{}{
		"destination": p.Destination,
		"allocations": allocs,
	}
}

package rpc

import (
	"encoding/json"
	"fmt"
)

// Channel is a state channel as reported by get_channels or a channel update.
// Numeric fields are decimal strings and timestamps use TimeLayout.
type Channel struct {
	ChannelID   string `json:"channelId"`
	Participant string `json:"participant"`
	Status      string `json:"status"`
	Token       string `json:"token"`
	Wallet      string `json:"wallet"`
	Amount      string `json:"amount"`
	ChainID     string `json:"chainId"`
	Adjudicator string `json:"adjudicator"`
	Challenge   string `json:"challenge"`
	Nonce       string `json:"nonce"`
	Version     string `json:"version"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

var channelIDKeys = []string{"channel_id", "channelId", "id"}

// ParseChannels accepts {channels:[...]}, a bare array or a single channel.
func ParseChannels(raw json.RawMessage) ([]Channel, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding channels: %w", err)
	}

	items, err := listOf(v, []string{"channels"}, channelIDKeys)
	if err != nil {
		return nil, fmt.Errorf("decoding channels: %w", err)
	}

	res := make([]Channel, 0, len(items))
	for _, m := range items {
		res = append(res, channelFrom(m))
	}
	return res, nil
}

func channelFrom(m map[string]interface{}) Channel {
	return Channel{
		ChannelID:   pickString(m, channelIDKeys...),
		Participant: pickString(m, "participant"),
		Status:      pickString(m, "status"),
		Token:       pickString(m, "token"),
		Wallet:      pickString(m, "wallet"),
		Amount:      pickString(m, "amount"),
		ChainID:     pickString(m, "chain_id", "chainId"),
		Adjudicator: pickString(m, "adjudicator"),
		Challenge:   pickString(m, "challenge"),
		Nonce:       pickString(m, "nonce"),
		Version:     pickString(m, "version"),
		CreatedAt:   pickTime(m, "created_at", "createdAt"),
		UpdatedAt:   pickTime(m, "updated_at", "updatedAt"),
	}
}

// Balance is one ledger balance.
type Balance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// ParseBalances accepts {ledger_balances:[...]}, {balances:[...]}, a bare
// array or a single balance.
func ParseBalances(raw json.RawMessage) ([]Balance, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding balances: %w", err)
	}

	items, err := listOf(v,
		[]string{"ledger_balances", "ledgerBalances", "balances", "balance_updates"},
		[]string{"asset"},
	)
	if err != nil {
		return nil, fmt.Errorf("decoding balances: %w", err)
	}

	res := make([]Balance, 0, len(items))
	for _, m := range items {
		res = append(res, Balance{
			Asset:  pickString(m, "asset"),
			Amount: pickString(m, "amount"),
		})
	}
	return res, nil
}

// ParseChallenge extracts the challenge string from an auth_challenge push.
func ParseChallenge(raw json.RawMessage) (string, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return "", fmt.Errorf("decoding challenge: %w", err)
	}

	var challenge string
	switch t := v.(type) {
	case string:
		challenge = t
	case map[string]interface{}:
		challenge = pickString(t, "challenge_message", "challengeMessage", "challenge")
	}

	if challenge == "" {
		return "", fmt.Errorf("auth challenge without challenge message")
	}
	return challenge, nil
}

// VerifyResult is the outcome of auth_verify.
type VerifyResult struct {
	Success    bool
	JWT        string
	Address    string
	SessionKey string
}

// ParseVerifyResult decodes an auth_verify result. A missing success flag
// counts as success when a token is present.
func ParseVerifyResult(raw json.RawMessage) (VerifyResult, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("decoding auth verify result: %w", err)
	}

	res := VerifyResult{
		JWT:        pickString(m, "jwt_token", "jwtToken", "jwt"),
		Address:    pickString(m, "address"),
		SessionKey: pickString(m, "session_key", "sessionKey"),
	}

	success, ok := pickBool(m, "success")
	if !ok {
		success = res.JWT != ""
	}
	res.Success = success

	return res, nil
}

// ParsePeerError builds a PeerError from error params, which are either a
// string or an object with an error or message field.
func ParsePeerError(method string, raw json.RawMessage) *PeerError {
	e := &PeerError{Method: method}

	v, err := decodeValue(raw)
	switch t := v.(type) {
	case string:
		e.Message = t
	case map[string]interface{}:
		e.Message = pickString(t, "error", "message")
	}

	if e.Message == "" {
		if err != nil || len(raw) == 0 {
			e.Message = "unknown error"
		} else {
			e.Message = string(raw)
		}
	}

	return e
}

// AppSessionResult is the broker's answer to create/close app session and
// the payload of app session updates.
type AppSessionResult struct {
	AppSessionID string `json:"appSessionId"`
	Status       string `json:"status"`
	Version      string `json:"version"`
}

// ParseAppSessionResult ...
func ParseAppSessionResult(raw json.RawMessage) (AppSessionResult, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return AppSessionResult{}, fmt.Errorf("decoding app session result: %w", err)
	}

	res := AppSessionResult{
		AppSessionID: pickString(m, "app_session_id", "appSessionId", "app_session", "id"),
		Status:       pickString(m, "status"),
		Version:      pickString(m, "version"),
	}
	if res.AppSessionID == "" {
		return res, fmt.Errorf("app session result without id")
	}
	return res, nil
}

// Transaction is one ledger transaction produced by a transfer.
type Transaction struct {
	ID          string `json:"id"`
	TxType      string `json:"txType"`
	FromAccount string `json:"fromAccount"`
	ToAccount   string `json:"toAccount"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	CreatedAt   string `json:"createdAt"`
}

// TransferResult ...
type TransferResult struct {
	Transactions []Transaction `json:"transactions"`
}

// ParseTransferResult accepts {transactions:[...]}, a bare array or a single
// transaction.
func ParseTransferResult(raw json.RawMessage) (TransferResult, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return TransferResult{}, fmt.Errorf("decoding transfer result: %w", err)
	}

	items, err := listOf(v, []string{"transactions"}, []string{"id", "tx_type", "txType"})
	if err != nil {
		return TransferResult{}, fmt.Errorf("decoding transfer result: %w", err)
	}

	res := TransferResult{Transactions: make([]Transaction, 0, len(items))}
	for _, m := range items {
		res.Transactions = append(res.Transactions, Transaction{
			ID:          pickString(m, "id"),
			TxType:      pickString(m, "tx_type", "txType"),
			FromAccount: pickString(m, "from_account", "fromAccount"),
			ToAccount:   pickString(m, "to_account", "toAccount"),
			Asset:       pickString(m, "asset"),
			Amount:      pickString(m, "amount"),
			CreatedAt:   pickTime(m, "created_at", "createdAt"),
		})
	}
	return res, nil
}

// Network is one chain supported by the broker.
type Network struct {
	ChainID            string `json:"chainId"`
	Name               string `json:"name"`
	CustodyAddress     string `json:"custodyAddress"`
	AdjudicatorAddress string `json:"adjudicatorAddress"`
}

// NodeConfig is the result of get_config.
type NodeConfig struct {
	BrokerAddress string    `json:"brokerAddress"`
	Networks      []Network `json:"networks"`
}

// ParseNodeConfig ...
func ParseNodeConfig(raw json.RawMessage) (NodeConfig, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg := NodeConfig{
		BrokerAddress: pickString(m, "broker_address", "brokerAddress"),
	}

	nets, _ := pick(m, "networks")
	items, err := listOf(nets, nil, nil)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("decoding config networks: %w", err)
	}

	cfg.Networks = make([]Network, 0, len(items))
	for _, n := range items {
		cfg.Networks = append(cfg.Networks, Network{
			ChainID:            pickString(n, "chain_id", "chainId"),
			Name:               pickString(n, "name"),
			CustodyAddress:     pickString(n, "custody_address", "custodyAddress"),
			AdjudicatorAddress: pickString(n, "adjudicator_address", "adjudicatorAddress"),
		})
	}

	return cfg, nil
}

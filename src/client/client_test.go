package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/credentials"
	"github.com/linecrypto/clearnode/src/crypto/eip712"
	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/linecrypto/clearnode/src/metrics"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/linecrypto/clearnode/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	walletAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	application   = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
)

type harness struct {
	c     *Client
	ft    *fakeTransport
	creds *credentials.Store
	mem   *storage.InmemStorage
}

func testConfig() Config {
	return Config{
		AppName:         "Line Crypto",
		Scope:           "line-crypto.app",
		Application:     application,
		SessionDuration: time.Hour,
		RequestTimeout:  2 * time.Second,
		MaxAuthRetries:  3,
	}
}

func newHarness(t *testing.T, mutate func(*Config), wallet keys.Signer) *harness {
	t.Helper()

	conf := testConfig()
	if mutate != nil {
		mutate(&conf)
	}

	mem := storage.NewInmemStorage()
	ft := newFakeTransport()
	creds := credentials.NewStore(mem, common.NewTestEntry(t, "credentials"))
	sessions := NewSessionRegistry(mem, common.NewTestEntry(t, "sessions"))

	c, err := New(conf, ft, creds, wallet, sessions, metrics.New(), common.NewTestEntry(t, "client"))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return &harness{c: c, ft: ft, creds: creds, mem: mem}
}

func resFrame(id uint64, method, params string) string {
	return fmt.Sprintf(`{"res":[%d,%q,[%s],%d],"sig":[]}`, id, method, params, time.Now().UnixMilli())
}

func decodeParams(t *testing.T, m *rpc.Message) map[string]interface{} {
	t.Helper()
	var p map[string]interface{}
	require.NoError(t, json.Unmarshal(m.Params, &p))
	return p
}

func (h *harness) authenticate(t *testing.T) {
	t.Helper()

	require.NoError(t, h.c.Start(context.Background()))

	req := h.ft.next(t)
	require.Equal(t, rpc.AuthRequest, req.Method)
	h.ft.deliver(resFrame(req.ID, "auth_challenge", `{"challenge_message":"ch-1"}`))

	verify := h.ft.next(t)
	require.Equal(t, rpc.AuthVerify, verify.Method)
	h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":true,"jwt_token":"tok1"}`))

	require.Equal(t, Authenticated, h.c.State())
}

func (h *harness) sessionAddress(t *testing.T) string {
	t.Helper()
	key, err := h.creds.GetOrCreateSessionKey()
	require.NoError(t, err)
	return key.Address
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := []Event{}
	for _, ev := range l.events {
		if ev.Type == t {
			res = append(res, ev)
		}
	}
	return res
}

func TestHandshakeWithSessionKey(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	events := &eventLog{}
	h.c.Subscribe(events.record)

	require.NoError(t, h.c.Start(ctx))

	req := h.ft.next(t)
	require.Equal(t, rpc.AuthRequest, req.Method)
	assert.Empty(t, req.Signatures)
	assert.Equal(t, AuthRequested, h.c.State())

	sessionAddr := h.sessionAddress(t)
	params := decodeParams(t, req)
	assert.Equal(t, sessionAddr, params["session_key"])
	assert.Equal(t, sessionAddr, params["address"])
	assert.Equal(t, "Line Crypto", params["app_name"])
	assert.Equal(t, "line-crypto.app", params["scope"])
	assert.Equal(t, application, params["application"])
	assert.Equal(t, strconv.FormatUint(h.c.ExpireTimestamp(), 10), params["expire"])
	assert.Equal(t, []interface{}{}, params["allowances"])

	h.ft.deliver(resFrame(req.ID, "auth_challenge", `{"challenge_message":"ch-1"}`))

	verify := h.ft.next(t)
	require.Equal(t, rpc.AuthVerify, verify.Method)
	assert.Equal(t, AwaitingVerifyResult, h.c.State())
	assert.Equal(t, "ch-1", decodeParams(t, verify)["challenge"])

	signers, err := verify.RecoverSigners()
	require.NoError(t, err)
	assert.Equal(t, []string{sessionAddr}, signers)

	h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":true,"jwt_token":"tok1"}`))

	require.NoError(t, h.c.WaitAuthenticated(ctx))
	assert.True(t, h.c.IsAuthenticated())
	assert.Equal(t, 0, h.c.RetryCount())

	jwt, ok := h.creds.GetCredential()
	assert.True(t, ok)
	assert.Equal(t, "tok1", jwt)

	assert.Len(t, events.ofType(EventAuthenticated), 1)
	h.ft.expectNone(t)
}

func TestHandshakeWithWallet(t *testing.T) {
	walletKey, err := keys.ParsePrivateKeyHex(walletKeyHex)
	require.NoError(t, err)

	h := newHarness(t, nil, keys.NewECDSASigner(walletKey))

	require.NoError(t, h.c.Start(context.Background()))

	req := h.ft.next(t)
	params := decodeParams(t, req)
	assert.Equal(t, walletAddress, params["address"])

	sessionAddr := h.sessionAddress(t)
	assert.Equal(t, sessionAddr, params["session_key"])

	h.ft.deliver(resFrame(req.ID, "auth_challenge", `{"challengeMessage":"ch-2"}`))

	verify := h.ft.next(t)
	require.Len(t, verify.Signatures, 1)

	sig, err := keys.DecodeSignature(verify.Signatures[0])
	require.NoError(t, err)

	policy := eip712.Policy{
		Challenge:   "ch-2",
		Scope:       "line-crypto.app",
		Wallet:      walletAddress,
		Application: application,
		Participant: sessionAddr,
		Expire:      h.c.ExpireTimestamp(),
	}
	signer, err := eip712.RecoverPolicySigner(eip712.Domain{Name: "Line Crypto"}, policy, sig)
	require.NoError(t, err)
	assert.Equal(t, walletAddress, signer)
}

func TestEIP712SignerRequiresWallet(t *testing.T) {
	mem := storage.NewInmemStorage()
	conf := testConfig()
	conf.ChallengeSigner = SignerEIP712

	_, err := New(conf, newFakeTransport(), credentials.NewStore(mem, common.NewTestEntry(t, "credentials")), nil, nil, nil, common.NewTestEntry(t, "client"))
	assert.Error(t, err)

	conf.ChallengeSigner = "carrier-pigeon"
	_, err = New(conf, newFakeTransport(), credentials.NewStore(mem, common.NewTestEntry(t, "credentials")), nil, nil, nil, common.NewTestEntry(t, "client"))
	assert.Error(t, err)
}

func TestAuthRetryCeiling(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	events := &eventLog{}
	h.c.Subscribe(events.record)

	require.NoError(t, h.c.Start(ctx))

	sessionKeys := map[interface{}]bool{}
	for i := 0; i < 3; i++ {
		req := h.ft.next(t)
		require.Equal(t, rpc.AuthRequest, req.Method, "attempt %d", i)
		sessionKeys[decodeParams(t, req)["session_key"]] = true

		if i == 0 {
			// first attempt is rejected at verification
			h.ft.deliver(resFrame(req.ID, "auth_challenge", `{"challenge_message":"c"}`))
			verify := h.ft.next(t)
			require.Equal(t, rpc.AuthVerify, verify.Method)
			h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":false}`))
			continue
		}

		h.ft.deliver(resFrame(req.ID, "error", `{"error":"invalid signature"}`))
	}

	h.ft.expectNone(t)

	assert.Equal(t, Failed, h.c.State())
	assert.Equal(t, 3, h.c.RetryCount())
	assert.Len(t, sessionKeys, 3, "every failure should discard the session key")

	err := h.c.WaitAuthenticated(ctx)
	assert.True(t, errors.Is(err, ErrAuthenticationFailed))

	_, ok := h.creds.GetCredential()
	assert.False(t, ok)

	failures := events.ofType(EventAuthFailed)
	require.Len(t, failures, 3)
	assert.False(t, failures[0].Terminal)
	assert.False(t, failures[1].Terminal)
	assert.True(t, failures[2].Terminal)
	assert.True(t, errors.Is(failures[2].Err, ErrAuthenticationFailed))

	// RPCs fail fast while Failed
	before := h.ft.sentCount()
	_, err = h.c.GetChannels(ctx)
	assert.True(t, errors.Is(err, ErrAuthenticationFailed))
	assert.Equal(t, before, h.ft.sentCount())

	// a reconnect does not restart the handshake
	h.ft.drop(errAbrupt)
	require.NoError(t, h.c.Start(ctx))
	h.ft.expectNone(t)
	assert.Equal(t, Failed, h.c.State())

	// Retry grants exactly one more attempt
	require.NoError(t, h.c.Retry(ctx))
	req := h.ft.next(t)
	require.Equal(t, rpc.AuthRequest, req.Method)
	h.ft.deliver(resFrame(req.ID, "error", `{"error":"still invalid"}`))

	h.ft.expectNone(t)
	assert.Equal(t, Failed, h.c.State())
	assert.Equal(t, 3, h.c.RetryCount())
}

func TestRetryAfterFailureCanSucceed(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxAuthRetries = 1 }, nil)
	ctx := context.Background()

	require.NoError(t, h.c.Start(ctx))
	req := h.ft.next(t)
	h.ft.deliver(resFrame(req.ID, "error", `"nope"`))
	require.Equal(t, Failed, h.c.State())

	require.NoError(t, h.c.Retry(ctx))
	req = h.ft.next(t)
	h.ft.deliver(resFrame(req.ID, "auth_challenge", `{"challenge_message":"c"}`))
	verify := h.ft.next(t)
	h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":true,"jwt_token":"tok9"}`))

	require.NoError(t, h.c.WaitAuthenticated(ctx))
	assert.Equal(t, 0, h.c.RetryCount())
}

func TestJWTFastPathFallback(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.creds.StoreCredential("stale")

	require.NoError(t, h.c.Start(context.Background()))

	verify := h.ft.next(t)
	require.Equal(t, rpc.AuthVerify, verify.Method)
	assert.Empty(t, verify.Signatures)
	assert.Equal(t, "stale", decodeParams(t, verify)["jwt"])
	assert.Equal(t, AwaitingVerifyResult, h.c.State())

	h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":false}`))

	req := h.ft.next(t)
	require.Equal(t, rpc.AuthRequest, req.Method)
	assert.Equal(t, 0, h.c.RetryCount(), "a rejected token does not use up a retry")

	_, ok := h.creds.GetCredential()
	assert.False(t, ok)

	h.ft.deliver(resFrame(req.ID, "auth_challenge", `{"challenge_message":"c"}`))
	verify = h.ft.next(t)
	h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":true,"jwt_token":"tok2"}`))

	assert.Equal(t, Authenticated, h.c.State())
	jwt, _ := h.creds.GetCredential()
	assert.Equal(t, "tok2", jwt)
}

func TestOutOfOrderResponses(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	type result struct {
		participant string
		balances    []rpc.Balance
		err         error
	}

	participants := []string{"p1", "p2", "p3"}
	results := make(chan result, len(participants))

	for _, p := range participants {
		p := p
		go func() {
			b, err := h.c.GetLedgerBalances(context.Background(), p)
			results <- result{p, b, err}
		}()
	}

	ids := map[string]uint64{}
	for range participants {
		m := h.ft.next(t)
		require.Equal(t, rpc.GetLedgerBalances, m.Method)
		ids[decodeParams(t, m)["participant"].(string)] = m.ID
	}
	require.Len(t, ids, 3)

	for i := len(participants) - 1; i >= 0; i-- {
		p := participants[i]
		h.ft.deliver(resFrame(ids[p], "get_ledger_balances", fmt.Sprintf(`[{"asset":"usdc","amount":"%s"}]`, p)))
	}

	for range participants {
		r := <-results
		require.NoError(t, r.err)
		require.Len(t, r.balances, 1)
		assert.Equal(t, r.participant, r.balances[0].Amount)
	}

	assert.Equal(t, 0, h.c.PendingCount())
}

func TestDisconnectRejectsPending(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	sessionAddr := h.sessionAddress(t)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := h.c.GetChannels(context.Background())
			errs <- err
		}()
	}
	for i := 0; i < 3; i++ {
		h.ft.next(t)
	}
	require.Equal(t, 3, h.c.PendingCount())

	h.ft.drop(errAbrupt)

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.True(t, errors.Is(err, ErrConnectionClosed), "got %v", err)
		case <-time.After(2 * time.Second):
			t.Fatalf("pending request was not rejected")
		}
	}

	assert.Equal(t, 0, h.c.PendingCount())
	assert.Equal(t, Idle, h.c.State())
	assert.False(t, h.c.IsAuthenticated())

	// the session key and the token survive a dropped connection
	assert.Equal(t, sessionAddr, h.sessionAddress(t))

	require.NoError(t, h.c.Start(context.Background()))
	verify := h.ft.next(t)
	require.Equal(t, rpc.AuthVerify, verify.Method)
	assert.Equal(t, "tok1", decodeParams(t, verify)["jwt"])

	h.ft.deliver(resFrame(verify.ID, "auth_verify", `{"success":true}`))
	assert.Equal(t, Authenticated, h.c.State())
}

func TestPeerErrorRejectsRequest(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	errs := make(chan error, 1)
	go func() {
		_, err := h.c.GetChannels(context.Background())
		errs <- err
	}()

	m := h.ft.next(t)
	h.ft.deliver(resFrame(m.ID, "error", `{"error":"boom"}`))

	err := <-errs
	var perr *rpc.PeerError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "get_channels", perr.Method)
	assert.Equal(t, "boom", perr.Message)

	assert.Equal(t, Authenticated, h.c.State())
	assert.Equal(t, 0, h.c.PendingCount())
}

func TestRequestTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RequestTimeout = 50 * time.Millisecond }, nil)
	h.authenticate(t)

	_, err := h.c.GetChannels(context.Background())
	assert.True(t, errors.Is(err, ErrRequestTimeout), "got %v", err)
	assert.Equal(t, 0, h.c.PendingCount())

	// a late response is ignored
	m := h.ft.next(t)
	h.ft.deliver(resFrame(m.ID, "get_channels", `{"channels":[]}`))
	assert.Equal(t, 0, h.c.PendingCount())
}

func TestRequestCancelled(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := h.c.GetConfig(ctx)
		errs <- err
	}()

	m := h.ft.next(t)
	require.Equal(t, rpc.GetConfig, m.Method)
	assert.JSONEq(t, `{}`, string(m.Params))

	cancel()
	assert.True(t, errors.Is(<-errs, context.Canceled))
	assert.Equal(t, 0, h.c.PendingCount())
}

func TestChannelListNormalization(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	events := &eventLog{}
	h.c.Subscribe(events.record)

	h.ft.deliver(`{"method":"get_channels","params":{"channels":[{"id":1,"amount":500,"createdAt":"2024-01-02T03:04:05Z"}]}}`)

	channels := h.c.Channels()
	require.Len(t, channels, 1)
	assert.Equal(t, "1", channels[0].ChannelID)
	assert.Equal(t, "500", channels[0].Amount)
	assert.Equal(t, "2024-01-02T03:04:05.000Z", channels[0].CreatedAt)

	// channel updates merge by id
	h.ft.deliver(`{"res":[null,"cu",[{"channel_id":"1","amount":"650"}],0]}`)
	h.ft.deliver(`{"res":[null,"cu",[{"channel_id":"2","amount":"1"}],0]}`)

	channels = h.c.Channels()
	require.Len(t, channels, 2)
	assert.Equal(t, "650", channels[0].Amount)

	assert.Len(t, events.ofType(EventChannelsUpdated), 3)
}

func TestFetchChannelsOnAuth(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.FetchChannelsOnAuth = true }, nil)
	h.authenticate(t)

	m := h.ft.next(t)
	require.Equal(t, rpc.GetChannels, m.Method)
	assert.Equal(t, h.c.Address(), decodeParams(t, m)["participant"])

	signers, err := m.RecoverSigners()
	require.NoError(t, err)
	assert.Equal(t, []string{h.sessionAddress(t)}, signers)

	h.ft.deliver(resFrame(m.ID, "get_channels", `{"channels":[{"channel_id":"0xc","status":"open"}]}`))
	assert.Len(t, h.c.Channels(), 1)
}

func TestBalancePush(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	h.ft.deliver(`{"res":[null,"bu",[{"balance_updates":[{"asset":"usdc","amount":"12"}]}],0]}`)
	assert.Equal(t, []rpc.Balance{{Asset: "usdc", Amount: "12"}}, h.c.Balances())
}

func TestForeignBalancesLeaveOwnBalances(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	h.ft.deliver(`{"res":[null,"bu",[{"balance_updates":[{"asset":"usdc","amount":"12"}]}],0]}`)
	own := []rpc.Balance{{Asset: "usdc", Amount: "12"}}
	require.Equal(t, own, h.c.Balances())

	query := func(participant, amount string) []rpc.Balance {
		res := make(chan []rpc.Balance, 1)
		go func() {
			b, err := h.c.GetLedgerBalances(context.Background(), participant)
			assert.NoError(t, err)
			res <- b
		}()

		m := h.ft.next(t)
		require.Equal(t, rpc.GetLedgerBalances, m.Method)
		h.ft.deliver(resFrame(m.ID, "get_ledger_balances", fmt.Sprintf(`[{"asset":"usdc","amount":%q}]`, amount)))

		select {
		case b := <-res:
			return b
		case <-time.After(2 * time.Second):
			t.Fatalf("no balances for %s", participant)
		}
		return nil
	}

	other := query(walletAddress, "999")
	assert.Equal(t, []rpc.Balance{{Asset: "usdc", Amount: "999"}}, other)
	assert.Equal(t, own, h.c.Balances(), "another participant's balances replaced ours")

	// own address in any case replaces
	query(strings.ToLower(h.c.Address()), "5")
	assert.Equal(t, []rpc.Balance{{Asset: "usdc", Amount: "5"}}, h.c.Balances())

	query("", "7")
	assert.Equal(t, []rpc.Balance{{Asset: "usdc", Amount: "7"}}, h.c.Balances())
}

func TestUnknownAndMalformedFramesAreIgnored(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	h.ft.deliver(`{"res":[null,"shiny_new_thing",[{"x":1}],0]}`)
	h.ft.deliver(`this is not json`)
	h.ft.deliver(`{"unexpected":true}`)

	assert.Equal(t, Authenticated, h.c.State())
	h.ft.expectNone(t)
}

func TestServerPing(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	h.ft.deliver(`{"res":[5,"ping",[],0]}`)

	pong := h.ft.next(t)
	assert.Equal(t, rpc.Pong, pong.Method)
	assert.Equal(t, uint64(5), pong.ID)
}

func TestListenerPanicIsIsolated(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.c.Subscribe(func(Event) { panic("listener bug") })
	events := &eventLog{}
	tok := h.c.Subscribe(events.record)

	h.authenticate(t)
	assert.Len(t, events.ofType(EventAuthenticated), 1)

	h.c.Unsubscribe(tok)
	h.c.Unsubscribe(tok)
	h.ft.deliver(`{"method":"get_channels","params":[]}`)
	assert.Empty(t, events.ofType(EventChannelsUpdated))
}

func TestTransfer(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	events := &eventLog{}
	h.c.Subscribe(events.record)

	type result struct {
		res rpc.TransferResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := h.c.Transfer(context.Background(), "0xdest", []rpc.TransferAllocation{{Asset: "USDC", Amount: "1.5"}})
		done <- result{res, err}
	}()

	m := h.ft.next(t)
	require.Equal(t, rpc.Transfer, m.Method)
	assert.JSONEq(t, `{"destination":"0xdest","allocations":[{"asset":"usdc","amount":"1.5"}]}`, string(m.Params))

	h.ft.deliver(resFrame(m.ID, "transfer", `{"transactions":[{"id":1,"tx_type":"transfer","asset":"usdc","amount":"1.5"}]}`))

	r := <-done
	require.NoError(t, r.err)
	require.Len(t, r.res.Transactions, 1)
	assert.Equal(t, "1", r.res.Transactions[0].ID)
	assert.Len(t, events.ofType(EventTransferCompleted), 1)
}

func TestTransferValidation(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	before := h.ft.sentCount()

	cases := []struct {
		dest   string
		allocs []rpc.TransferAllocation
	}{
		{"", []rpc.TransferAllocation{{Asset: "usdc", Amount: "1"}}},
		{"0xdest", nil},
		{"0xdest", []rpc.TransferAllocation{{Asset: "", Amount: "1"}}},
		{"0xdest", []rpc.TransferAllocation{{Asset: "usdc", Amount: "0"}}},
		{"0xdest", []rpc.TransferAllocation{{Asset: "usdc", Amount: "-3"}}},
		{"0xdest", []rpc.TransferAllocation{{Asset: "usdc", Amount: "1e5"}}},
	}
	for i, c := range cases {
		_, err := h.c.Transfer(context.Background(), c.dest, c.allocs)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "case %d: got %v", i, err)
	}

	assert.Equal(t, before, h.ft.sentCount())
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	before := h.sessionAddress(t)

	h.c.Logout()

	assert.Equal(t, Idle, h.c.State())
	assert.Equal(t, net.Disconnected, h.c.ConnectionStatus())

	_, ok := h.creds.GetCredential()
	assert.False(t, ok)
	assert.NotEqual(t, before, h.sessionAddress(t))
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.authenticate(t)

	errs := make(chan error, 1)
	go func() {
		_, err := h.c.GetChannels(context.Background())
		errs <- err
	}()
	h.ft.next(t)

	h.c.Close()

	err := <-errs
	assert.True(t, errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrClientClosed), "got %v", err)
	assert.True(t, errors.Is(h.c.Start(context.Background()), ErrClientClosed))

	_, err = h.c.GetChannels(context.Background())
	assert.True(t, errors.Is(err, ErrClientClosed))
}

package evm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/newwallet-io/wallet-sdk/bridge"
	"github.com/newwallet-io/wallet-sdk/codec"
	"github.com/newwallet-io/wallet-sdk/provider"
	"github.com/newwallet-io/wallet-sdk/rpcerr"
	"github.com/newwallet-io/wallet-sdk/wire"
)

type fakeCall struct {
	typ     wire.Type
	ns      wire.Namespace
	payload any
}

type fakeTransport struct {
	mu          sync.Mutex
	ready       bool
	connectRes  *wire.ConnectionResult
	connectErr  error
	connectGate chan struct{}
	connectReqs []wire.ConnectRequest
	calls       []fakeCall
	callRes     json.RawMessage
	callErr     error
	eventFns    []bridge.EventHandler
	closeFns    []func()
}

func (f *fakeTransport) Connect(ctx context.Context, req wire.ConnectRequest) (*wire.ConnectionResult, error) {
	f.mu.Lock()
	f.connectReqs = append(f.connectReqs, req)
	gate := f.connectGate
	res, err := f.connectRes, f.connectErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
	return res, nil
}

func (f *fakeTransport) Call(ctx context.Context, typ wire.Type, ns wire.Namespace, payload any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{typ: typ, ns: ns, payload: payload})
	res, err := f.callRes, f.callErr
	f.mu.Unlock()
	return res, err
}

func (f *fakeTransport) Notify(ctx context.Context, typ wire.Type, ns wire.Namespace, payload any) error {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{typ: typ, ns: ns, payload: payload})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) OnEvent(fn bridge.EventHandler) {
	f.eventFns = append(f.eventFns, fn)
}

func (f *fakeTransport) OnSessionClosed(fn func()) {
	f.closeFns = append(f.closeFns, fn)
}

func (f *fakeTransport) fire(ns wire.Namespace, ev wire.Event) {
	for _, fn := range f.eventFns {
		fn(ns, ev)
	}
}

func (f *fakeTransport) closeSession() {
	f.mu.Lock()
	f.ready = false
	f.mu.Unlock()
	for _, fn := range f.closeFns {
		fn()
	}
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) lastCall(t *testing.T) fakeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no call recorded")
	}
	return f.calls[len(f.calls)-1]
}

func sepoliaResult() *wire.ConnectionResult {
	return &wire.ConnectionResult{
		Accounts: map[wire.Namespace][]string{
			wire.NamespaceEVM: {"0x1111111111111111111111111111111111111111"},
		},
		Chains: map[wire.Namespace]string{wire.NamespaceEVM: wire.ChainSepolia},
	}
}

func connected(t *testing.T, f *fakeTransport) *Provider {
	t.Helper()
	if f.connectRes == nil {
		f.connectRes = sepoliaResult()
	}
	p := New(f, Config{})
	if _, err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return p
}

func wantCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("want error code %d, got nil", code)
	}
	if got := rpcerr.CodeOf(err); got != code {
		t.Fatalf("want code %d, got %d (%v)", code, got, err)
	}
}

func TestConnectCachesAccountsAndChain(t *testing.T) {
	f := &fakeTransport{connectRes: sepoliaResult()}
	p := New(f, Config{})

	var connectEvents int
	p.On(EventConnect, func(json.RawMessage) { connectEvents++ })

	accounts, err := p.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected accounts %v", accounts)
	}
	if p.State() != provider.StateConnected {
		t.Fatalf("state = %v", p.State())
	}
	if got := p.ChainID(); got != "0xaa36a7" {
		t.Fatalf("chain id = %q, want 0xaa36a7", got)
	}
	if connectEvents != 1 {
		t.Fatalf("connect events = %d", connectEvents)
	}

	req := f.connectReqs[0]
	chains := req.RequiredNamespaces[wire.NamespaceEVM].Chains
	var mainnet, sepolia bool
	for _, c := range chains {
		mainnet = mainnet || c == wire.ChainEthereum
		sepolia = sepolia || c == wire.ChainSepolia
	}
	if !mainnet || !sepolia {
		t.Fatalf("requested chains %v lack testnet expansion", chains)
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	f := &fakeTransport{connectErr: rpcerr.New(rpcerr.CodeUserRejected, "")}
	p := New(f, Config{})

	_, err := p.Connect(context.Background())
	wantCode(t, err, rpcerr.CodeUserRejected)
	if p.State() != provider.StateDisconnected {
		t.Fatalf("state = %v after failed connect", p.State())
	}
}

func TestConnectWhileConnectingRejected(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeTransport{connectRes: sepoliaResult(), connectGate: gate}
	p := New(f, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Connect(context.Background())
		done <- err
	}()

	// Wait until the first attempt is parked inside the transport.
	deadline := time.Now().Add(time.Second)
	for {
		f.mu.Lock()
		started := len(f.connectReqs) > 0
		f.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first connect never started")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := p.Connect(context.Background())
	wantCode(t, err, rpcerr.CodeInvalidRequest)

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first connect: %v", err)
	}
}

func TestConnectWhenConnectedReturnsCache(t *testing.T) {
	f := &fakeTransport{}
	p := connected(t, f)

	accounts, err := p.Connect(context.Background())
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("accounts = %v", accounts)
	}
	if len(f.connectReqs) != 1 {
		t.Fatalf("second connect went to the wire: %d requests", len(f.connectReqs))
	}
}

func TestRequestBeforeConnectFailsFast(t *testing.T) {
	f := &fakeTransport{}
	p := New(f, Config{})

	_, err := p.PersonalSign(context.Background(), "hello", "0x1111111111111111111111111111111111111111")
	wantCode(t, err, rpcerr.CodeDisconnected)
	if f.callCount() != 0 {
		t.Fatalf("%d calls reached the transport", f.callCount())
	}

	_, err = p.Request(context.Background(), MethodChainID, nil)
	wantCode(t, err, rpcerr.CodeDisconnected)
}

func TestPopupGoneFlipsDisconnected(t *testing.T) {
	f := &fakeTransport{}
	p := connected(t, f)

	f.mu.Lock()
	f.ready = false
	f.mu.Unlock()

	_, err := p.PersonalSign(context.Background(), "hi", "0x1111111111111111111111111111111111111111")
	wantCode(t, err, rpcerr.CodeDisconnected)
	if p.State() != provider.StateDisconnected {
		t.Fatalf("state = %v", p.State())
	}
	if len(p.Accounts()) != 0 {
		t.Fatal("accounts survived disconnect")
	}
}

func TestPersonalSignEncodings(t *testing.T) {
	f := &fakeTransport{callRes: json.RawMessage(`{"signature":"0xdeadbeef"}`)}
	p := connected(t, f)

	sig, err := p.PersonalSign(context.Background(), "hello", "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("sign text: %v", err)
	}
	if sig != "0xdeadbeef" {
		t.Fatalf("signature = %q", sig)
	}
	call := f.lastCall(t)
	if call.typ != wire.TypeEthSignMessage || call.ns != wire.NamespaceEVM {
		t.Fatalf("call = %v/%v", call.typ, call.ns)
	}
	msg := call.payload.(signMessagePayload)
	if msg.Message.Encoding != codec.EncodingUTF8 || msg.Message.Data != "hello" {
		t.Fatalf("text message encoded as %+v", msg.Message)
	}

	if _, err := p.PersonalSign(context.Background(), "0x68656c6c6f", "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("sign hex: %v", err)
	}
	msg = f.lastCall(t).payload.(signMessagePayload)
	if msg.Message.Encoding != codec.EncodingBase64 {
		t.Fatalf("hex message encoded as %v, want base64", msg.Message.Encoding)
	}
	raw, err := codec.DecodeMessage(msg.Message)
	if err != nil || string(raw) != "hello" {
		t.Fatalf("decoded %q, %v", raw, err)
	}
}

func TestSignVersusSendTransaction(t *testing.T) {
	tx := &codec.TxRequest{Value: codec.BigIntFromUint64(1)}

	f := &fakeTransport{callRes: json.RawMessage(`{"rawTransaction":"0x01"}`)}
	p := connected(t, f)

	signed, err := p.SignTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed != "0x01" {
		t.Fatalf("signed = %q", signed)
	}
	payload := f.lastCall(t).payload.(signTransactionPayload)
	if payload.Submit {
		t.Fatal("sign-only request carried submit flag")
	}

	f.mu.Lock()
	f.callRes = json.RawMessage(`{"hash":"0xabc"}`)
	f.mu.Unlock()

	hash, err := p.SendTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if hash != "0xabc" {
		t.Fatalf("hash = %q", hash)
	}
	payload = f.lastCall(t).payload.(signTransactionPayload)
	if !payload.Submit {
		t.Fatal("send request missing submit flag")
	}
}

func TestSwitchChainUpdatesCacheAfterConfirm(t *testing.T) {
	f := &fakeTransport{connectRes: &wire.ConnectionResult{
		Accounts: map[wire.Namespace][]string{
			wire.NamespaceEVM: {"0x1111111111111111111111111111111111111111"},
		},
		Chains: map[wire.Namespace]string{wire.NamespaceEVM: wire.ChainEthereum},
	}}
	p := connected(t, f)
	if p.ChainID() != "0x1" {
		t.Fatalf("chain id = %q", p.ChainID())
	}

	var changed []string
	p.On(EventChainChanged, func(data json.RawMessage) {
		var c string
		_ = json.Unmarshal(data, &c)
		changed = append(changed, c)
	})

	f.mu.Lock()
	f.connectRes = sepoliaResult()
	f.mu.Unlock()

	if err := p.SwitchChain(context.Background(), "0xaa36a7"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if p.ChainID() != "0xaa36a7" {
		t.Fatalf("chain id = %q after switch", p.ChainID())
	}
	if len(changed) != 1 || changed[0] != "0xaa36a7" {
		t.Fatalf("chainChanged events = %v", changed)
	}
}

func TestSwitchChainRejectionKeepsCache(t *testing.T) {
	f := &fakeTransport{}
	p := connected(t, f)
	before := p.ChainID()

	f.mu.Lock()
	f.connectErr = rpcerr.New(rpcerr.CodeChainNotAdded, "")
	f.mu.Unlock()

	err := p.SwitchChain(context.Background(), "0x2105")
	wantCode(t, err, rpcerr.CodeChainNotAdded)
	if p.ChainID() != before {
		t.Fatalf("chain id mutated to %q on failed switch", p.ChainID())
	}
}

func TestAccountsChangedEventUpdatesCache(t *testing.T) {
	f := &fakeTransport{}
	p := connected(t, f)

	var seen [][]string
	p.On(EventAccountsChanged, func(data json.RawMessage) {
		var a []string
		_ = json.Unmarshal(data, &a)
		seen = append(seen, a)
	})

	next := []string{"0x3333333333333333333333333333333333333333"}
	data, _ := json.Marshal(next)
	f.fire(wire.NamespaceEVM, wire.Event{Name: EventAccountsChanged, Data: data})

	if got := p.Accounts(); len(got) != 1 || got[0] != next[0] {
		t.Fatalf("accounts = %v", got)
	}
	if len(seen) != 1 {
		t.Fatalf("listener fired %d times", len(seen))
	}

	// Events for other namespaces never reach this façade.
	f.fire(wire.NamespaceSolana, wire.Event{Name: EventAccountsChanged, Data: data})
	if len(seen) != 1 {
		t.Fatal("foreign namespace event dispatched")
	}
}

func TestSessionClosedEmitsDisconnect(t *testing.T) {
	f := &fakeTransport{}
	p := connected(t, f)

	var disconnects int
	p.On(EventDisconnect, func(json.RawMessage) { disconnects++ })

	f.closeSession()
	if p.State() != provider.StateDisconnected {
		t.Fatalf("state = %v", p.State())
	}
	if disconnects != 1 {
		t.Fatalf("disconnect events = %d", disconnects)
	}

	// A second close must not emit again.
	f.closeSession()
	if disconnects != 1 {
		t.Fatalf("disconnect events = %d after repeat close", disconnects)
	}
}

func TestRequestDispatch(t *testing.T) {
	f := &fakeTransport{callRes: json.RawMessage(`{"signature":"0x01"}`)}
	p := connected(t, f)

	got, err := p.Request(context.Background(), MethodChainID, nil)
	if err != nil {
		t.Fatalf("chainId: %v", err)
	}
	if got != "0xaa36a7" {
		t.Fatalf("chainId = %v", got)
	}

	got, err = p.Request(context.Background(), MethodPersonalSign, []string{"hi", "0x1111111111111111111111111111111111111111"})
	if err != nil {
		t.Fatalf("personal_sign: %v", err)
	}
	if got != "0x01" {
		t.Fatalf("signature = %v", got)
	}

	_, err = p.Request(context.Background(), "eth_getBalance", nil)
	wantCode(t, err, rpcerr.CodeUnsupportedMethod)

	_, err = p.Request(context.Background(), MethodPersonalSign, []string{"only-message"})
	wantCode(t, err, rpcerr.CodeInvalidParams)
}

func TestOffStopsListener(t *testing.T) {
	f := &fakeTransport{}
	p := connected(t, f)

	var fired int
	id := p.On(EventChainChanged, func(json.RawMessage) { fired++ })
	p.Off(EventChainChanged, id)
	p.Off(EventChainChanged, id)

	f.fire(wire.NamespaceEVM, wire.Event{Name: EventChainChanged, Data: json.RawMessage(`"0x1"`)})
	if fired != 0 {
		t.Fatalf("removed listener fired %d times", fired)
	}
}

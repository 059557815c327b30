// Package evm exposes the EVM (eip155) wallet façade: an EIP-1193 style
// request dispatcher plus typed convenience methods on top of the bridge.
package evm

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/newwallet-io/wallet-sdk/codec"
	"github.com/newwallet-io/wallet-sdk/internal/logx"
	"github.com/newwallet-io/wallet-sdk/provider"
	"github.com/newwallet-io/wallet-sdk/rpcerr"
	"github.com/newwallet-io/wallet-sdk/wire"
)

// RPC methods the façade dispatches.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodPersonalSign    = "personal_sign"
	MethodSendTransaction = "eth_sendTransaction"
	MethodSignTransaction = "eth_signTransaction"
	MethodSignTypedDataV4 = "eth_signTypedData_v4"
)

// Events the façade emits.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
)

var methods = []string{
	MethodRequestAccounts, MethodAccounts, MethodChainID, MethodSwitchChain,
	MethodPersonalSign, MethodSendTransaction, MethodSignTransaction,
	MethodSignTypedDataV4,
}

// Config configures the façade.
type Config struct {
	// Chains to request in CAIP-2 form; the testnet variant of each is
	// requested alongside. Defaults to Ethereum mainnet.
	Chains []string
}

// Provider is the EVM façade. One instance per application; safe for
// concurrent use.
type Provider struct {
	t   provider.Transport
	cfg Config

	mu       sync.Mutex
	state    provider.State
	accounts []string
	chainID  string

	events provider.Emitter
}

// New builds a façade on t and subscribes it to wallet events.
func New(t provider.Transport, cfg Config) *Provider {
	if len(cfg.Chains) == 0 {
		cfg.Chains = []string{wire.ChainEthereum}
	}
	p := &Provider{t: t, cfg: cfg}
	t.OnEvent(p.handleEvent)
	t.OnSessionClosed(p.handleSessionClosed)
	return p
}

// State returns the façade connection state.
func (p *Provider) State() provider.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Accounts returns the cached connected accounts.
func (p *Provider) Accounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.accounts...)
}

// ChainID returns the cached active chain id (hex form, e.g. "0x1").
func (p *Provider) ChainID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// On registers an event listener; Off removes it. Removal of an unknown id
// is a no-op.
func (p *Provider) On(event string, fn provider.Listener) provider.ListenerID {
	return p.events.On(event, fn)
}

func (p *Provider) Off(event string, id provider.ListenerID) {
	p.events.Off(event, id)
}

// Request is the generic JSON-RPC style entry point.
func (p *Provider) Request(ctx context.Context, method string, params any) (any, error) {
	switch method {
	case MethodRequestAccounts:
		return p.Connect(ctx)
	case MethodAccounts:
		return p.Accounts(), nil
	case MethodChainID:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.state != provider.StateConnected {
			return nil, rpcerr.New(rpcerr.CodeDisconnected, "")
		}
		return p.chainID, nil
	case MethodPersonalSign:
		var args []string
		if err := coerceParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, rpcerr.New(rpcerr.CodeInvalidParams, "personal_sign expects [message, address]")
		}
		return p.PersonalSign(ctx, args[0], args[1])
	case MethodSwitchChain:
		var args []switchChainParams
		if err := coerceParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 || args[0].ChainID == "" {
			return nil, rpcerr.New(rpcerr.CodeInvalidParams, "wallet_switchEthereumChain expects [{chainId}]")
		}
		return nil, p.SwitchChain(ctx, args[0].ChainID)
	case MethodSendTransaction:
		tx, err := txParam(params)
		if err != nil {
			return nil, err
		}
		return p.SendTransaction(ctx, tx)
	case MethodSignTransaction:
		tx, err := txParam(params)
		if err != nil {
			return nil, err
		}
		return p.SignTransaction(ctx, tx)
	case MethodSignTypedDataV4:
		var args []json.RawMessage
		if err := coerceParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, rpcerr.New(rpcerr.CodeInvalidParams, "eth_signTypedData_v4 expects [address, typedData]")
		}
		var addr string
		if err := json.Unmarshal(args[0], &addr); err != nil {
			return nil, rpcerr.New(rpcerr.CodeInvalidParams, "invalid address parameter")
		}
		var td apitypes.TypedData
		if err := json.Unmarshal(args[1], &td); err != nil {
			return nil, rpcerr.Errorf(rpcerr.CodeInvalidParams, "invalid typed data: %v", err)
		}
		return p.SignTypedData(ctx, addr, &td)
	default:
		return nil, rpcerr.Errorf(rpcerr.CodeUnsupportedMethod, "method %q is not supported", method)
	}
}

// Connect runs the handshake and caches the granted accounts and chain.
// Failures of any kind leave the façade disconnected; nothing is retried.
func (p *Provider) Connect(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	switch p.state {
	case provider.StateConnected:
		accounts := append([]string(nil), p.accounts...)
		p.mu.Unlock()
		return accounts, nil
	case provider.StateConnecting:
		p.mu.Unlock()
		return nil, rpcerr.New(rpcerr.CodeInvalidRequest, "connection attempt already in progress")
	}
	p.state = provider.StateConnecting
	p.mu.Unlock()

	res, err := p.t.Connect(ctx, p.connectRequest(p.cfg.Chains))
	if err != nil {
		p.mu.Lock()
		p.state = provider.StateDisconnected
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	p.state = provider.StateConnected
	p.accounts = append([]string(nil), res.Accounts[wire.NamespaceEVM]...)
	p.chainID = hexFromCAIP2(res.Chains[wire.NamespaceEVM])
	accounts := append([]string(nil), p.accounts...)
	chainID := p.chainID
	p.mu.Unlock()

	logx.Log.Info().Str("chain", chainID).Int("accounts", len(accounts)).Msg("evm provider connected")
	p.events.Emit(EventConnect, mustJSON(map[string]string{"chainId": chainID}))
	return accounts, nil
}

// Disconnect clears the cached connection. The wallet keeps running; only
// this façade's state is dropped.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	wasConnected := p.state != provider.StateDisconnected
	p.state = provider.StateDisconnected
	p.accounts = nil
	p.chainID = ""
	p.mu.Unlock()
	if wasConnected {
		p.events.Emit(EventDisconnect, nil)
	}
}

// PersonalSign asks the wallet to sign a message with address's key. A "0x"
// hex message is treated as binary, anything else as UTF-8 text.
func (p *Provider) PersonalSign(ctx context.Context, message, address string) (string, error) {
	if err := p.requireConnected(); err != nil {
		return "", err
	}
	enc := codec.EncodeTextMessage(message)
	if strings.HasPrefix(message, "0x") {
		if raw, err := hexutil.Decode(message); err == nil {
			enc = codec.EncodeBinaryMessage(raw)
		}
	}
	payload := signMessagePayload{Message: enc, Address: address}
	raw, err := p.t.Call(ctx, wire.TypeEthSignMessage, wire.NamespaceEVM, payload)
	if err != nil {
		return "", err
	}
	return signatureResult(raw)
}

// SignTypedData asks the wallet for an EIP-712 v4 signature.
func (p *Provider) SignTypedData(ctx context.Context, address string, td *apitypes.TypedData) (string, error) {
	if err := p.requireConnected(); err != nil {
		return "", err
	}
	tdJSON, err := json.Marshal(td)
	if err != nil {
		return "", rpcerr.Errorf(rpcerr.CodeInternalError, "encode typed data: %v", err)
	}
	payload := signMessagePayload{
		Message:  codec.Encoded{Encoding: codec.EncodingJSON, Data: string(tdJSON)},
		Address:  address,
		Standard: "eth_signTypedData_v4",
	}
	raw, err := p.t.Call(ctx, wire.TypeEthSignMessage, wire.NamespaceEVM, payload)
	if err != nil {
		return "", err
	}
	return signatureResult(raw)
}

// SignTransaction asks the wallet to sign tx and returns the RLP-encoded
// signed transaction as a hex string.
func (p *Provider) SignTransaction(ctx context.Context, tx *codec.TxRequest) (string, error) {
	raw, err := p.signTx(ctx, tx, false)
	if err != nil {
		return "", err
	}
	var out struct {
		RawTransaction string `json:"rawTransaction"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.RawTransaction == "" {
		return "", rpcerr.New(rpcerr.CodeInternalError, "wallet returned no signed transaction")
	}
	return out.RawTransaction, nil
}

// SendTransaction asks the wallet to sign and broadcast tx and returns the
// transaction hash.
func (p *Provider) SendTransaction(ctx context.Context, tx *codec.TxRequest) (string, error) {
	raw, err := p.signTx(ctx, tx, true)
	if err != nil {
		return "", err
	}
	var out struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Hash == "" {
		return "", rpcerr.New(rpcerr.CodeInternalError, "wallet returned no transaction hash")
	}
	return out.Hash, nil
}

func (p *Provider) signTx(ctx context.Context, tx *codec.TxRequest, submit bool) (json.RawMessage, error) {
	if err := p.requireConnected(); err != nil {
		return nil, err
	}
	enc, err := codec.EncodeEVMTx(tx)
	if err != nil {
		return nil, err
	}
	payload := signTransactionPayload{Transaction: enc, Submit: submit}
	return p.t.Call(ctx, wire.TypeEthSignTransaction, wire.NamespaceEVM, payload)
}

// SwitchChain asks the wallet to move to chainID (hex form). The cached
// chain changes only after the wallet confirms. Chains the wallet does not
// know fail with code 4902.
func (p *Provider) SwitchChain(ctx context.Context, chainID string) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	caip, err := caip2FromHex(chainID)
	if err != nil {
		return err
	}
	res, err := p.t.Connect(ctx, p.connectRequest([]string{caip}))
	if err != nil {
		return err
	}
	confirmed, ok := res.Chains[wire.NamespaceEVM]
	if !ok {
		return rpcerr.New(rpcerr.CodeChainNotAdded, "")
	}
	hexID := hexFromCAIP2(confirmed)
	p.mu.Lock()
	changed := p.chainID != hexID
	p.chainID = hexID
	if accts, ok := res.Accounts[wire.NamespaceEVM]; ok {
		p.accounts = append([]string(nil), accts...)
	}
	p.mu.Unlock()
	if changed {
		p.events.Emit(EventChainChanged, mustJSON(hexID))
	}
	return nil
}

func (p *Provider) requireConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != provider.StateConnected {
		return rpcerr.New(rpcerr.CodeDisconnected, "")
	}
	if !p.t.Ready() {
		// The popup went away since we last looked.
		p.state = provider.StateDisconnected
		p.accounts = nil
		p.chainID = ""
		return rpcerr.New(rpcerr.CodeDisconnected, "")
	}
	return nil
}

func (p *Provider) connectRequest(chains []string) wire.ConnectRequest {
	return wire.ConnectRequest{RequiredNamespaces: map[wire.Namespace]wire.NamespaceConfig{
		wire.NamespaceEVM: {
			Chains:  wire.WithTestnets(chains),
			Methods: append([]string(nil), methods...),
			Events:  []string{EventAccountsChanged, EventChainChanged},
		},
	}}
}

func (p *Provider) handleEvent(ns wire.Namespace, ev wire.Event) {
	if ns != wire.NamespaceEVM {
		return
	}
	switch ev.Name {
	case EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(ev.Data, &accounts); err != nil {
			logx.Log.Warn().Err(err).Msg("bad accountsChanged payload")
			return
		}
		p.mu.Lock()
		p.accounts = accounts
		p.mu.Unlock()
	case EventChainChanged:
		var chain string
		if err := json.Unmarshal(ev.Data, &chain); err != nil {
			logx.Log.Warn().Err(err).Msg("bad chainChanged payload")
			return
		}
		p.mu.Lock()
		p.chainID = chain
		p.mu.Unlock()
	}
	p.events.Emit(ev.Name, ev.Data)
}

func (p *Provider) handleSessionClosed() {
	p.mu.Lock()
	wasConnected := p.state == provider.StateConnected
	p.state = provider.StateDisconnected
	p.accounts = nil
	p.chainID = ""
	p.mu.Unlock()
	if wasConnected {
		p.events.Emit(EventDisconnect, nil)
	}
}

type signMessagePayload struct {
	Message  codec.Encoded `json:"message"`
	Address  string        `json:"address"`
	Standard string        `json:"standard,omitempty"`
}

type signTransactionPayload struct {
	Transaction codec.Encoded `json:"transaction"`
	Submit      bool          `json:"submit"`
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func signatureResult(raw json.RawMessage) (string, error) {
	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Signature == "" {
		return "", rpcerr.New(rpcerr.CodeInternalError, "wallet returned no signature")
	}
	return out.Signature, nil
}

// coerceParams reshapes generic params into the expected form via JSON.
func coerceParams(params, into any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return rpcerr.Errorf(rpcerr.CodeInvalidParams, "unencodable params: %v", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return rpcerr.Errorf(rpcerr.CodeInvalidParams, "invalid params: %v", err)
	}
	return nil
}

// txParam extracts the transaction request from either a bare object or a
// one-element array, the two shapes callers use.
func txParam(params any) (*codec.TxRequest, error) {
	if tx, ok := params.(*codec.TxRequest); ok {
		return tx, nil
	}
	var list []codec.TxRequest
	if err := coerceParams(params, &list); err == nil && len(list) > 0 {
		return &list[0], nil
	}
	var tx codec.TxRequest
	if err := coerceParams(params, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// caip2FromHex converts a hex chain id ("0x1") to CAIP-2 ("eip155:1").
func caip2FromHex(chainID string) (string, error) {
	v, err := hexutil.DecodeBig(chainID)
	if err != nil {
		return "", rpcerr.Errorf(rpcerr.CodeInvalidParams, "invalid chain id %q", chainID)
	}
	return "eip155:" + v.String(), nil
}

// hexFromCAIP2 converts "eip155:1" to "0x1". Unparseable input passes
// through unchanged so the wallet's value is still visible to the caller.
func hexFromCAIP2(chain string) string {
	ref, ok := strings.CutPrefix(chain, "eip155:")
	if !ok {
		return chain
	}
	v, ok := new(big.Int).SetString(ref, 10)
	if !ok {
		return chain
	}
	return hexutil.EncodeBig(v)
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// IsValidAddress reports whether s is a well-formed EVM address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

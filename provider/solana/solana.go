// Package solana exposes the Solana wallet façade: wallet-standard style
// connect, sign and send operations on top of the bridge.
package solana

import (
	"context"
	"encoding/json"
	"sync"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/newwallet-io/wallet-sdk/codec"
	"github.com/newwallet-io/wallet-sdk/internal/logx"
	"github.com/newwallet-io/wallet-sdk/provider"
	"github.com/newwallet-io/wallet-sdk/rpcerr"
	"github.com/newwallet-io/wallet-sdk/wire"
)

// Events the façade emits.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

var methods = []string{
	"signMessage", "signTransaction", "signAllTransactions",
	"signAndSendTransaction",
}

// Config configures the façade.
type Config struct {
	// Chains to request in CAIP-2 form; the devnet variant of each is
	// requested alongside. Defaults to Solana mainnet.
	Chains []string
}

// SendOptions tune how the wallet submits a transaction it signed.
type SendOptions struct {
	SkipPreflight       bool   `json:"skipPreflight,omitempty"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
	MaxRetries          *uint  `json:"maxRetries,omitempty"`
}

// Provider is the Solana façade. Safe for concurrent use.
type Provider struct {
	t   provider.Transport
	cfg Config

	mu     sync.Mutex
	state  provider.State
	pubkey solanago.PublicKey
	chain  string

	events provider.Emitter
}

// New builds a façade on t and subscribes it to wallet events.
func New(t provider.Transport, cfg Config) *Provider {
	if len(cfg.Chains) == 0 {
		cfg.Chains = []string{wire.ChainSolanaMainnet}
	}
	p := &Provider{t: t, cfg: cfg}
	t.OnSessionClosed(p.handleSessionClosed)
	return p
}

// State returns the façade connection state.
func (p *Provider) State() provider.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsConnected reports whether a wallet session is established.
func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == provider.StateConnected
}

// PublicKey returns the connected account. The zero key means not connected.
func (p *Provider) PublicKey() solanago.PublicKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pubkey
}

// Chain returns the active chain in CAIP-2 form.
func (p *Provider) Chain() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain
}

// On registers an event listener; Off removes it.
func (p *Provider) On(event string, fn provider.Listener) provider.ListenerID {
	return p.events.On(event, fn)
}

func (p *Provider) Off(event string, id provider.ListenerID) {
	p.events.Off(event, id)
}

// Connect runs the handshake and returns the wallet's account key.
func (p *Provider) Connect(ctx context.Context) (solanago.PublicKey, error) {
	p.mu.Lock()
	switch p.state {
	case provider.StateConnected:
		pk := p.pubkey
		p.mu.Unlock()
		return pk, nil
	case provider.StateConnecting:
		p.mu.Unlock()
		return solanago.PublicKey{}, rpcerr.New(rpcerr.CodeInvalidRequest, "connection attempt already in progress")
	}
	p.state = provider.StateConnecting
	p.mu.Unlock()

	req := wire.ConnectRequest{RequiredNamespaces: map[wire.Namespace]wire.NamespaceConfig{
		wire.NamespaceSolana: {
			Chains:  wire.WithTestnets(p.cfg.Chains),
			Methods: append([]string(nil), methods...),
			Events:  []string{EventConnect, EventDisconnect},
		},
	}}
	res, err := p.t.Connect(ctx, req)
	if err != nil {
		p.mu.Lock()
		p.state = provider.StateDisconnected
		p.mu.Unlock()
		return solanago.PublicKey{}, err
	}

	accounts := res.Accounts[wire.NamespaceSolana]
	if len(accounts) == 0 {
		p.mu.Lock()
		p.state = provider.StateDisconnected
		p.mu.Unlock()
		return solanago.PublicKey{}, rpcerr.New(rpcerr.CodeInternalError, "wallet granted no solana account")
	}
	pk, err := solanago.PublicKeyFromBase58(accounts[0])
	if err != nil {
		p.mu.Lock()
		p.state = provider.StateDisconnected
		p.mu.Unlock()
		return solanago.PublicKey{}, rpcerr.Errorf(rpcerr.CodeInternalError, "invalid account key %q: %v", accounts[0], err)
	}

	p.mu.Lock()
	p.state = provider.StateConnected
	p.pubkey = pk
	p.chain = res.Chains[wire.NamespaceSolana]
	chain := p.chain
	p.mu.Unlock()

	logx.Log.Info().Str("chain", chain).Str("account", pk.String()).Msg("solana provider connected")
	p.events.Emit(EventConnect, mustJSON(pk.String()))
	return pk, nil
}

// Disconnect tells the wallet the session is over and clears local state.
// The notification is best effort.
func (p *Provider) Disconnect(ctx context.Context) {
	p.mu.Lock()
	wasConnected := p.state == provider.StateConnected
	p.state = provider.StateDisconnected
	p.pubkey = solanago.PublicKey{}
	p.chain = ""
	p.mu.Unlock()
	if !wasConnected {
		return
	}
	if err := p.t.Notify(ctx, wire.TypeDisconnect, wire.NamespaceSolana, nil); err != nil {
		logx.Log.Debug().Err(err).Msg("disconnect notify failed")
	}
	p.events.Emit(EventDisconnect, nil)
}

// SignMessage asks the wallet to sign an arbitrary byte message.
func (p *Provider) SignMessage(ctx context.Context, message []byte) (solanago.Signature, error) {
	pk, err := p.requireConnected()
	if err != nil {
		return solanago.Signature{}, err
	}
	payload := signMessagePayload{
		Message:   codec.EncodeBinaryMessage(message),
		PublicKey: pk.String(),
	}
	raw, err := p.t.Call(ctx, wire.TypeSolSignMessage, wire.NamespaceSolana, payload)
	if err != nil {
		return solanago.Signature{}, err
	}
	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Signature == "" {
		return solanago.Signature{}, rpcerr.New(rpcerr.CodeInternalError, "wallet returned no signature")
	}
	return signatureFromBase58(out.Signature)
}

// SignTransaction asks the wallet to sign tx and returns the signed
// transaction.
func (p *Provider) SignTransaction(ctx context.Context, tx *solanago.Transaction) (*solanago.Transaction, error) {
	if _, err := p.requireConnected(); err != nil {
		return nil, err
	}
	enc, err := codec.EncodeSolanaTx(tx)
	if err != nil {
		return nil, err
	}
	raw, err := p.t.Call(ctx, wire.TypeSolSignTransaction, wire.NamespaceSolana, signTransactionPayload{Transaction: enc})
	if err != nil {
		return nil, err
	}
	var out struct {
		Transaction codec.SolanaTxPayload `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, rpcerr.New(rpcerr.CodeInternalError, "wallet returned no signed transaction")
	}
	return codec.DecodeSolanaTx(out.Transaction)
}

// SignAllTransactions asks the wallet to sign every transaction in txs. The
// result preserves input order; a count mismatch fails the whole batch.
func (p *Provider) SignAllTransactions(ctx context.Context, txs []*solanago.Transaction) ([]*solanago.Transaction, error) {
	if _, err := p.requireConnected(); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, rpcerr.New(rpcerr.CodeInvalidParams, "no transactions to sign")
	}
	encoded := make([]codec.SolanaTxPayload, 0, len(txs))
	for _, tx := range txs {
		enc, err := codec.EncodeSolanaTx(tx)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, enc)
	}
	raw, err := p.t.Call(ctx, wire.TypeSolSignAllTransactions, wire.NamespaceSolana, signAllPayload{Transactions: encoded})
	if err != nil {
		return nil, err
	}
	var out struct {
		Transactions []codec.SolanaTxPayload `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, rpcerr.New(rpcerr.CodeInternalError, "wallet returned no signed transactions")
	}
	if len(out.Transactions) != len(txs) {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError,
			"wallet signed %d of %d transactions", len(out.Transactions), len(txs))
	}
	signed := make([]*solanago.Transaction, len(out.Transactions))
	for i, payload := range out.Transactions {
		tx, err := codec.DecodeSolanaTx(payload)
		if err != nil {
			return nil, err
		}
		signed[i] = tx
	}
	return signed, nil
}

// SignAndSendTransaction asks the wallet to sign tx and submit it, returning
// the transaction signature.
func (p *Provider) SignAndSendTransaction(ctx context.Context, tx *solanago.Transaction, opts *SendOptions) (solanago.Signature, error) {
	if _, err := p.requireConnected(); err != nil {
		return solanago.Signature{}, err
	}
	enc, err := codec.EncodeSolanaTx(tx)
	if err != nil {
		return solanago.Signature{}, err
	}
	payload := signAndSendPayload{Transaction: enc, Options: opts}
	raw, err := p.t.Call(ctx, wire.TypeSolSignAndSendTransaction, wire.NamespaceSolana, payload)
	if err != nil {
		return solanago.Signature{}, err
	}
	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Signature == "" {
		return solanago.Signature{}, rpcerr.New(rpcerr.CodeInternalError, "wallet returned no signature")
	}
	return signatureFromBase58(out.Signature)
}

func (p *Provider) requireConnected() (solanago.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != provider.StateConnected {
		return solanago.PublicKey{}, rpcerr.New(rpcerr.CodeDisconnected, "")
	}
	if !p.t.Ready() {
		p.state = provider.StateDisconnected
		p.pubkey = solanago.PublicKey{}
		p.chain = ""
		return solanago.PublicKey{}, rpcerr.New(rpcerr.CodeDisconnected, "")
	}
	return p.pubkey, nil
}

func (p *Provider) handleSessionClosed() {
	p.mu.Lock()
	wasConnected := p.state == provider.StateConnected
	p.state = provider.StateDisconnected
	p.pubkey = solanago.PublicKey{}
	p.chain = ""
	p.mu.Unlock()
	if wasConnected {
		p.events.Emit(EventDisconnect, nil)
	}
}

type signMessagePayload struct {
	Message   codec.Encoded `json:"message"`
	PublicKey string        `json:"publicKey"`
}

type signTransactionPayload struct {
	Transaction codec.SolanaTxPayload `json:"transaction"`
}

type signAllPayload struct {
	Transactions []codec.SolanaTxPayload `json:"transactions"`
}

type signAndSendPayload struct {
	Transaction codec.SolanaTxPayload `json:"transaction"`
	Options     *SendOptions          `json:"options,omitempty"`
}

func signatureFromBase58(s string) (solanago.Signature, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return solanago.Signature{}, rpcerr.Errorf(rpcerr.CodeInternalError, "invalid signature encoding: %v", err)
	}
	return solanago.SignatureFromBytes(raw), nil
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

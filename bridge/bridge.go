// Package bridge is the message transport between the SDK and the wallet
// window. It owns the single active popup session and the pending-request
// table, turns "send a typed request" into one awaitable operation, and fans
// unsolicited wallet events out to subscribers.
//
// Trust boundary: every inbound message is discarded unless its origin equals
// the origin derived from the configured wallet URL. Correlation is by id
// only; for every id exactly one of response, timeout or window-closure
// settles the request.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newwallet-io/wallet-sdk/internal/logx"
	"github.com/newwallet-io/wallet-sdk/internal/metrics"
	"github.com/newwallet-io/wallet-sdk/popup"
	"github.com/newwallet-io/wallet-sdk/rpcerr"
	"github.com/newwallet-io/wallet-sdk/wire"
)

const (
	// DefaultReadyTimeout bounds the wait for the wallet's READY message.
	DefaultReadyTimeout = 10 * time.Second
	// DefaultRequestTimeout bounds each request; generous because most
	// requests wait on a human.
	DefaultRequestTimeout = 2 * time.Minute
)

// Config configures a Bridge. WalletURL is required; the wallet origin is
// derived from it at construction and never changes afterwards.
type Config struct {
	WalletURL      string
	Opener         popup.Opener  // defaults to popup.WSOpener
	ReadyTimeout   time.Duration // defaults to DefaultReadyTimeout
	RequestTimeout time.Duration // defaults to DefaultRequestTimeout
	PollInterval   time.Duration // defaults to popup.DefaultPollInterval
}

// EventHandler receives unsolicited wallet events.
type EventHandler func(ns wire.Namespace, ev wire.Event)

// Bridge is the message transport. Safe for concurrent use; any number of
// requests may be in flight at once.
type Bridge struct {
	cfg    Config
	origin string

	mu         sync.Mutex
	sess       *session
	pending    map[string]*pending
	connecting bool

	hmu      sync.RWMutex
	eventFns []EventHandler
	closeFns []func()
}

type session struct {
	win      popup.Window
	ready    bool          // guarded by Bridge.mu
	readyCh  chan struct{} // closed when READY arrives
	closedCh chan struct{} // closed on teardown
	stopPoll func()
}

type pending struct {
	id      string
	typ     wire.Type
	ns      wire.Namespace
	ch      chan settled
	timer   *time.Timer
	started time.Time
}

type settled struct {
	result json.RawMessage
	err    error
}

// New builds a Bridge. Fails when the wallet URL has no derivable origin.
func New(cfg Config) (*Bridge, error) {
	origin, err := popup.OriginOf(cfg.WalletURL)
	if err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "invalid wallet url: %v", err)
	}
	if cfg.Opener == nil {
		cfg.Opener = popup.WSOpener{}
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Bridge{
		cfg:     cfg,
		origin:  origin,
		pending: map[string]*pending{},
	}, nil
}

// Origin returns the wallet origin all messages are validated against.
func (b *Bridge) Origin() string { return b.origin }

// Ready reports whether a handshaken session exists.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess != nil && b.sess.ready && !b.sess.win.IsClosed()
}

// OnEvent subscribes to unsolicited wallet events.
func (b *Bridge) OnEvent(fn EventHandler) {
	b.hmu.Lock()
	b.eventFns = append(b.eventFns, fn)
	b.hmu.Unlock()
}

// OnSessionClosed subscribes to session teardown, however it happens.
func (b *Bridge) OnSessionClosed(fn func()) {
	b.hmu.Lock()
	b.closeFns = append(b.closeFns, fn)
	b.hmu.Unlock()
}

// Connect opens a wallet session if none exists, completes the READY
// handshake and performs the connection request. Connection attempts are
// serialized: a second call while one is in flight fails fast.
func (b *Bridge) Connect(ctx context.Context, req wire.ConnectRequest) (*wire.ConnectionResult, error) {
	b.mu.Lock()
	if b.connecting {
		b.mu.Unlock()
		return nil, rpcerr.New(rpcerr.CodeInvalidRequest, "connection attempt already in progress")
	}
	b.connecting = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.connecting = false
		b.mu.Unlock()
	}()

	s, err := b.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	ready := s.ready
	b.mu.Unlock()
	if !ready {
		select {
		case <-s.readyCh:
		case <-s.closedCh:
			return nil, rpcerr.New(rpcerr.CodeUserRejected, "wallet window closed during connection")
		case <-time.After(b.cfg.ReadyTimeout):
			b.teardown(s, rpcerr.New(rpcerr.CodeInternalError, "Wallet did not respond"))
			return nil, rpcerr.New(rpcerr.CodeInternalError, "Wallet did not respond")
		case <-ctx.Done():
			return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "connect aborted: %v", ctx.Err())
		}
	}

	raw, err := b.call(ctx, s, wire.TypeConnectWallet, wire.NamespaceNone, req)
	if err != nil {
		return nil, err
	}
	var res wire.ConnectionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "malformed connection result: %v", err)
	}
	logx.Log.Info().Str("origin", b.origin).Msg("wallet connected")
	return &res, nil
}

// Call posts one request on the existing session and awaits its response.
// Without a handshaken session it fails immediately and nothing hits the
// wire.
func (b *Bridge) Call(ctx context.Context, typ wire.Type, ns wire.Namespace, payload any) (json.RawMessage, error) {
	b.mu.Lock()
	s := b.sess
	ready := s != nil && s.ready
	b.mu.Unlock()
	if !ready {
		return nil, rpcerr.New(rpcerr.CodeDisconnected, "")
	}
	return b.call(ctx, s, typ, ns, payload)
}

// Notify posts a one-way message on the current session, if any. Used for
// fire-and-forget notifications such as DISCONNECT; a missing session is not
// an error because there is nobody left to notify.
func (b *Bridge) Notify(ctx context.Context, typ wire.Type, ns wire.Namespace, payload any) error {
	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	if s == nil || s.win.IsClosed() {
		return nil
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	req := wire.Request{Type: typ, Network: ns, Timestamp: time.Now().UnixMilli(), Payload: raw}
	data, err := json.Marshal(req)
	if err != nil {
		return rpcerr.Errorf(rpcerr.CodeInternalError, "encode notification: %v", err)
	}
	if err := s.win.Post(ctx, b.origin, data); err != nil {
		return rpcerr.Errorf(rpcerr.CodeInternalError, "post notification: %v", err)
	}
	return nil
}

// Close tears down the current session. Outstanding requests settle as
// disconnected.
func (b *Bridge) Close() {
	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	if s != nil {
		b.teardown(s, rpcerr.New(rpcerr.CodeDisconnected, ""))
	}
}

func (b *Bridge) ensureSession(ctx context.Context) (*session, error) {
	b.mu.Lock()
	if b.sess != nil && !b.sess.win.IsClosed() {
		s := b.sess
		b.mu.Unlock()
		return s, nil
	}
	b.mu.Unlock()

	win, err := b.cfg.Opener.Open(ctx, b.cfg.WalletURL)
	if err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "wallet window blocked: %v", err)
	}
	metrics.RecordPopupOpen()
	s := &session{
		win:      win,
		readyCh:  make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	s.stopPoll = popup.Watch(win, b.cfg.PollInterval, func() {
		b.teardown(s, rpcerr.New(rpcerr.CodeUserRejected, "wallet window closed"))
	})
	go b.dispatch(s)

	b.mu.Lock()
	if b.sess != nil && !b.sess.win.IsClosed() {
		// Lost a race with a concurrent open; keep the existing session.
		existing := b.sess
		b.mu.Unlock()
		s.stopPoll()
		_ = win.Close()
		return existing, nil
	}
	b.sess = s
	b.mu.Unlock()
	logx.Log.Debug().Str("origin", b.origin).Msg("wallet window opened")
	return s, nil
}

func (b *Bridge) call(ctx context.Context, s *session, typ wire.Type, ns wire.Namespace, payload any) (json.RawMessage, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	req := wire.Request{Type: typ, Network: ns, ID: id, Timestamp: time.Now().UnixMilli(), Payload: raw}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "encode request: %v", err)
	}

	p := &pending{
		id:      id,
		typ:     typ,
		ns:      ns,
		ch:      make(chan settled, 1),
		started: time.Now(),
	}
	b.mu.Lock()
	b.pending[id] = p
	p.timer = time.AfterFunc(b.cfg.RequestTimeout, func() { b.expire(p) })
	b.mu.Unlock()

	if err := s.win.Post(ctx, b.origin, data); err != nil {
		if b.take(p) {
			p.timer.Stop()
			return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "post to wallet: %v", err)
		}
		// Settled concurrently (window closed while posting); report that
		// outcome instead.
		res := <-p.ch
		return res.result, res.err
	}
	logx.Log.Debug().Str("id", id).Str("type", string(typ)).Str("network", string(ns)).Msg("request posted")

	select {
	case res := <-p.ch:
		return res.result, res.err
	case <-ctx.Done():
		if b.take(p) {
			p.timer.Stop()
			metrics.RecordRequest(string(typ), string(ns), false)
			return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "request aborted: %v", ctx.Err())
		}
		res := <-p.ch
		return res.result, res.err
	}
}

// take removes p from the pending table. Whoever takes a pending entry owns
// its settlement; each entry is taken at most once.
func (b *Bridge) take(p *pending) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[p.id] != p {
		return false
	}
	delete(b.pending, p.id)
	return true
}

func (b *Bridge) expire(p *pending) {
	if !b.take(p) {
		return
	}
	metrics.RecordRequest(string(p.typ), string(p.ns), false)
	logx.Log.Warn().Str("id", p.id).Str("type", string(p.typ)).Msg("request timed out")
	p.ch <- settled{err: rpcerr.Errorf(rpcerr.CodeInternalError, "wallet did not answer %s", p.typ)}
}

func (b *Bridge) dispatch(s *session) {
	for msg := range s.win.Messages() {
		if msg.Origin != b.origin {
			metrics.RecordDroppedMessage("origin_mismatch")
			logx.Log.Warn().Str("origin", msg.Origin).Msg("dropping message from foreign origin")
			continue
		}
		var env wire.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			metrics.RecordDroppedMessage("malformed")
			logx.Log.Debug().Err(err).Msg("dropping unparseable message")
			continue
		}
		switch env.Type {
		case wire.TypeReady:
			b.markReady(s)
		case wire.TypeWalletEvent:
			var ev wire.Event
			if err := json.Unmarshal(env.Payload, &ev); err != nil || ev.Name == "" {
				metrics.RecordDroppedMessage("malformed")
				continue
			}
			b.emit(env.Network, ev)
		default:
			b.settle(env)
		}
	}
	b.teardown(s, rpcerr.New(rpcerr.CodeUserRejected, "wallet window closed"))
}

func (b *Bridge) markReady(s *session) {
	b.mu.Lock()
	already := s.ready
	if !already {
		s.ready = true
	}
	b.mu.Unlock()
	if !already {
		close(s.readyCh)
		logx.Log.Debug().Str("origin", b.origin).Msg("wallet ready")
	}
}

func (b *Bridge) settle(env wire.Envelope) {
	b.mu.Lock()
	p := b.pending[env.ID]
	if p == nil {
		b.mu.Unlock()
		metrics.RecordDroppedMessage("stale")
		logx.Log.Debug().Str("id", env.ID).Str("type", string(env.Type)).Msg("dropping response with no pending request")
		return
	}
	if p.typ != env.Type || p.ns != env.Network {
		// The id exists but the response claims a different type or
		// network; treat it as forged and keep the request pending.
		b.mu.Unlock()
		metrics.RecordDroppedMessage("mismatch")
		logx.Log.Warn().Str("id", env.ID).Str("type", string(env.Type)).Msg("dropping response with mismatched type or network")
		return
	}
	delete(b.pending, env.ID)
	b.mu.Unlock()
	p.timer.Stop()

	var rp wire.ResponsePayload
	if err := json.Unmarshal(env.Payload, &rp); err != nil {
		metrics.RecordRequest(string(p.typ), string(p.ns), false)
		p.ch <- settled{err: rpcerr.Errorf(rpcerr.CodeInternalError, "malformed response payload: %v", err)}
		return
	}
	metrics.RecordRequest(string(p.typ), string(p.ns), rp.Success)
	metrics.ObserveRequestDuration(string(p.typ), time.Since(p.started))
	if !rp.Success {
		code := rpcerr.CodeUnknown
		if rp.ErrorCode != nil {
			code = *rp.ErrorCode
		}
		p.ch <- settled{err: rpcerr.New(code, rp.Message)}
		return
	}
	p.ch <- settled{result: rp.Result}
}

// teardown destroys a session and settles everything pending on it with
// cause. Idempotent per session.
func (b *Bridge) teardown(s *session, cause *rpcerr.Error) {
	b.mu.Lock()
	select {
	case <-s.closedCh:
		b.mu.Unlock()
		return
	default:
	}
	close(s.closedCh)
	if b.sess == s {
		b.sess = nil
	}
	pend := b.pending
	b.pending = map[string]*pending{}
	b.mu.Unlock()

	s.stopPoll()
	_ = s.win.Close()
	for _, p := range pend {
		p.timer.Stop()
		metrics.RecordRequest(string(p.typ), string(p.ns), false)
		p.ch <- settled{err: cause}
	}
	logx.Log.Info().Str("origin", b.origin).Int("aborted", len(pend)).Msg("wallet session closed")

	b.hmu.RLock()
	fns := append([]func(){}, b.closeFns...)
	b.hmu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *Bridge) emit(ns wire.Namespace, ev wire.Event) {
	b.hmu.RLock()
	fns := append([]EventHandler{}, b.eventFns...)
	b.hmu.RUnlock()
	logx.Log.Debug().Str("network", string(ns)).Str("event", ev.Name).Msg("wallet event")
	for _, fn := range fns {
		fn(ns, ev)
	}
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "encode payload: %v", err)
	}
	return raw, nil
}

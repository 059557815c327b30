// Package popup abstracts the wallet window: an untrusted counterpart
// reachable only through message passing. The concrete mechanism is
// swappable; production uses a WebSocket connection to the wallet agent,
// tests use an in-process pipe.
package popup

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Message is one inbound message together with the origin the channel
// implementation attributes to its sender. Origin is the trust anchor;
// consumers must validate it before acting on Data.
type Message struct {
	Origin string
	Data   []byte
}

// Window is an open wallet window.
type Window interface {
	// Post delivers data to the window. targetOrigin must name the origin
	// the caller believes it is talking to; posting to any other origin is
	// refused.
	Post(ctx context.Context, targetOrigin string, data []byte) error
	// Messages yields inbound messages. The channel is closed when the
	// window goes away.
	Messages() <-chan Message
	// IsClosed reports whether the window is gone. There is no portable
	// close event, so callers poll this.
	IsClosed() bool
	// Close is idempotent.
	Close() error
}

// Opener opens wallet windows.
type Opener interface {
	Open(ctx context.Context, walletURL string) (Window, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, walletURL string) (Window, error)

func (f OpenerFunc) Open(ctx context.Context, walletURL string) (Window, error) {
	return f(ctx, walletURL)
}

// OriginOf derives the origin (scheme://host) from a wallet URL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse wallet url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("wallet url %q has no origin", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// DefaultPollInterval is how often Watch checks window liveness.
const DefaultPollInterval = 500 * time.Millisecond

// Watch polls win until it reports closed, then calls onClosed once. The
// returned stop function cancels the poll and is idempotent; either outcome
// releases the ticker.
func Watch(win Window, interval time.Duration, onClosed func()) (stop func()) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if win.IsClosed() {
					onClosed()
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

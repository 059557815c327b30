package popup

import (
	"context"
	"fmt"
	"sync"
)

// Pipe returns an in-process Window plus the wallet-side handle driving it.
// It exists so the transport can be exercised without a real wallet agent;
// the wallet end may forge origins, which real channels cannot.
func Pipe(origin string) (*PipeWindow, *PipeEnd) {
	w := &PipeWindow{
		origin: origin,
		msgs:   make(chan Message, 16),
		out:    make(chan []byte, 16),
	}
	return w, &PipeEnd{w: w}
}

// PipeWindow is the SDK-facing end of an in-process window pair.
type PipeWindow struct {
	origin string
	msgs   chan Message
	out    chan []byte

	mu     sync.Mutex
	closed bool
}

func (w *PipeWindow) Post(ctx context.Context, targetOrigin string, data []byte) error {
	if w.IsClosed() {
		return fmt.Errorf("wallet window is closed")
	}
	if targetOrigin != w.origin {
		return fmt.Errorf("refusing to post to %q, window origin is %q", targetOrigin, w.origin)
	}
	select {
	case w.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *PipeWindow) Messages() <-chan Message { return w.msgs }

func (w *PipeWindow) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *PipeWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.msgs)
	}
	return nil
}

// PipeEnd plays the wallet: it observes what the SDK posted and injects
// inbound messages with any origin, including hostile ones.
type PipeEnd struct {
	w *PipeWindow
}

// Send injects an inbound message. Messages sent after the window closed are
// silently dropped, mirroring a real closed window.
func (e *PipeEnd) Send(origin string, data []byte) {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	if e.w.closed {
		return
	}
	e.w.msgs <- Message{Origin: origin, Data: data}
}

// Sent yields the payloads the SDK posted to the window.
func (e *PipeEnd) Sent() <-chan []byte { return e.w.out }

// CloseWindow simulates the user closing the wallet window.
func (e *PipeEnd) CloseWindow() { _ = e.w.Close() }

// Origin returns the origin the window was created with.
func (e *PipeEnd) Origin() string { return e.w.origin }

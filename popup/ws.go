package popup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/newwallet-io/wallet-sdk/internal/logx"
)

// WSOpener opens wallet windows over WebSocket. The wallet agent is expected
// to accept the connection and speak the wire protocol over text frames.
type WSOpener struct{}

func (WSOpener) Open(ctx context.Context, walletURL string) (Window, error) {
	origin, err := OriginOf(walletURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, walletURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open wallet window: %w", err)
	}
	w := &wsWindow{
		conn:   conn,
		origin: origin,
		msgs:   make(chan Message, 16),
	}
	go w.readLoop()
	return w, nil
}

type wsWindow struct {
	conn   *websocket.Conn
	origin string
	msgs   chan Message
	closed atomic.Bool
	once   sync.Once
}

func (w *wsWindow) readLoop() {
	ctx := context.Background()
	for {
		_, data, err := w.conn.Read(ctx)
		if err != nil {
			w.closed.Store(true)
			close(w.msgs)
			logx.Log.Debug().Str("origin", w.origin).Err(err).Msg("wallet window read loop ended")
			return
		}
		// Transport authenticates the peer; every frame on this
		// connection carries the dialed origin.
		w.msgs <- Message{Origin: w.origin, Data: data}
	}
}

func (w *wsWindow) Post(ctx context.Context, targetOrigin string, data []byte) error {
	if w.closed.Load() {
		return fmt.Errorf("wallet window is closed")
	}
	if targetOrigin != w.origin {
		return fmt.Errorf("refusing to post to %q, window origin is %q", targetOrigin, w.origin)
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsWindow) Messages() <-chan Message { return w.msgs }

func (w *wsWindow) IsClosed() bool { return w.closed.Load() }

func (w *wsWindow) Close() error {
	w.once.Do(func() {
		w.closed.Store(true)
		_ = w.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return nil
}

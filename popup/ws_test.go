package popup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestWSWindowRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := context.Background()
		// Echo one message back.
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		_ = c.Write(ctx, websocket.MessageText, data)
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	win, err := (WSOpener{}).Open(ctx, wsURL+"/wallet")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = win.Close() }()

	origin, _ := OriginOf(wsURL)
	if err := win.Post(ctx, origin, []byte(`{"type":"READY"}`)); err != nil {
		t.Fatalf("post: %v", err)
	}
	select {
	case m := <-win.Messages():
		if m.Origin != origin {
			t.Fatalf("message origin = %q, want %q", m.Origin, origin)
		}
		if string(m.Data) != `{"type":"READY"}` {
			t.Fatalf("payload = %s", m.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}

	if err := win.Post(ctx, "ws://other.example", []byte("x")); err == nil {
		t.Fatal("post to a foreign origin must fail")
	}
}

func TestWSWindowDetectsPeerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	win, err := (WSOpener{}).Open(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case _, ok := <-win.Messages():
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel never closed")
	}
	if !win.IsClosed() {
		t.Fatal("window should report closed")
	}
	if err := win.Close(); err != nil {
		t.Fatalf("close after peer close: %v", err)
	}
}

func TestWSOpenFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := (WSOpener{}).Open(ctx, "ws://127.0.0.1:1/nothing"); err == nil {
		t.Fatal("dial to a dead endpoint must fail")
	}
}

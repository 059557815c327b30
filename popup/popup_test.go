package popup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestOriginOf(t *testing.T) {
	cases := []struct {
		url  string
		want string
		ok   bool
	}{
		{"ws://wallet.example.com:9443/connect", "ws://wallet.example.com:9443", true},
		{"https://wallet.example.com/popup?x=1", "https://wallet.example.com", true},
		{"not a url", "", false},
		{"/relative/path", "", false},
	}
	for _, c := range cases {
		got, err := OriginOf(c.url)
		if c.ok != (err == nil) {
			t.Fatalf("OriginOf(%q) err = %v", c.url, err)
		}
		if got != c.want {
			t.Fatalf("OriginOf(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestWatchDetectsClose(t *testing.T) {
	win, end := Pipe("ws://wallet.test")
	var fired atomic.Int32
	stop := Watch(win, 5*time.Millisecond, func() { fired.Add(1) })
	defer stop()

	end.CloseWindow()
	deadline := time.After(time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("watch never noticed the closed window")
		case <-time.After(time.Millisecond):
		}
	}
	if fired.Load() != 1 {
		t.Fatalf("onClosed fired %d times", fired.Load())
	}
	// Stopping after the callback fired is a no-op.
	stop()
	stop()
}

func TestWatchStopIsIdempotent(t *testing.T) {
	win, _ := Pipe("ws://wallet.test")
	stop := Watch(win, time.Millisecond, func() { t.Error("onClosed on a live window") })
	stop()
	stop()
	time.Sleep(10 * time.Millisecond)
}

func TestPipeRefusesForeignTargetOrigin(t *testing.T) {
	win, _ := Pipe("ws://wallet.test")
	err := win.Post(context.Background(), "ws://evil.test", []byte("x"))
	if err == nil {
		t.Fatal("post to a foreign origin must fail")
	}
}

func TestPipeCloseSemantics(t *testing.T) {
	win, end := Pipe("ws://wallet.test")
	end.Send("ws://wallet.test", []byte("a"))
	if err := win.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := win.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Pending message is still readable, then the channel closes.
	if m, ok := <-win.Messages(); !ok || string(m.Data) != "a" {
		t.Fatalf("expected buffered message, got %v %v", m, ok)
	}
	if _, ok := <-win.Messages(); ok {
		t.Fatal("messages channel should be closed")
	}
	// Sends after close are dropped, not panics.
	end.Send("ws://wallet.test", []byte("late"))
	if err := win.Post(context.Background(), "ws://wallet.test", []byte("x")); err == nil {
		t.Fatal("post on a closed window must fail")
	}
}

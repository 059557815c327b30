package rpcerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestMessageTable(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{CodeUserRejected, "User rejected the request"},
		{CodeDisconnected, "The provider is disconnected"},
		{CodeInternalError, "Internal error"},
		{CodeVersionNotSupported, "JSON-RPC version not supported"},
		{CodeUnknown, "Unknown error"},
	}
	for _, c := range cases {
		if got := Message(c.code); got != c.want {
			t.Fatalf("Message(%d) = %q, want %q", c.code, got, c.want)
		}
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve(CodeUserRejected, ""); got != "User rejected the request" {
		t.Fatalf("canonical: %q", got)
	}
	if got := Resolve(CodeUserRejected, "nope"); got != "nope" {
		t.Fatalf("custom override: %q", got)
	}
	// Unlisted code falls back to the catch-all entry.
	if got := Resolve(99999, ""); got != "Unknown error" {
		t.Fatalf("fallback: %q", got)
	}
}

func TestErrorChain(t *testing.T) {
	base := New(CodeChainNotAdded, "")
	wrapped := fmt.Errorf("switch chain: %w", base)

	pe, ok := FromError(wrapped)
	if !ok || pe.Code != CodeChainNotAdded {
		t.Fatalf("FromError failed: %v %v", pe, ok)
	}
	if !Is(wrapped, CodeChainNotAdded) {
		t.Fatal("Is should match the wrapped code")
	}
	if Is(wrapped, CodeUserRejected) {
		t.Fatal("Is matched the wrong code")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatal("untyped errors must map to the catch-all code")
	}
}

func TestWithData(t *testing.T) {
	e := New(CodeInvalidParams, "").WithData(map[string]string{"field": "to"})
	if e.Data == nil || e.Code != CodeInvalidParams {
		t.Fatalf("data not attached: %+v", e)
	}
	if e.Error() != "wallet rpc error -32602: Invalid method parameters" {
		t.Fatalf("unexpected text: %s", e.Error())
	}
}

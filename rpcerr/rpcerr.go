// Package rpcerr defines the closed error taxonomy shared with the wallet
// agent. Codes are fixed for wire compatibility; callers branch on Code and
// treat Message as advisory text.
package rpcerr

import (
	"errors"
	"fmt"
)

// User interaction codes (EIP-1193).
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeChainNotAdded     = 4902
)

// Protocol codes (JSON-RPC 2.0).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Blockchain codes (EIP-1474 server range).
const (
	CodeInvalidInput        = -32000
	CodeResourceNotFound    = -32001
	CodeResourceUnavailable = -32002
	CodeTransactionRejected = -32003
	CodeMethodNotSupported  = -32004
	CodeLimitExceeded       = -32005
	CodeVersionNotSupported = -32006
)

// CodeUnknown is the catch-all for codes outside the table.
const CodeUnknown = -1

var messages = map[int]string{
	CodeUserRejected:      "User rejected the request",
	CodeUnauthorized:      "The requested account and method have not been authorized by the user",
	CodeUnsupportedMethod: "The requested method is not supported by this wallet",
	CodeDisconnected:      "The provider is disconnected",
	CodeChainDisconnected: "The provider is disconnected from the specified chain",
	CodeChainNotAdded:     "The requested chain has not been added by the wallet",

	CodeParseError:     "Invalid JSON received",
	CodeInvalidRequest: "The request is not a valid request object",
	CodeMethodNotFound: "The method does not exist",
	CodeInvalidParams:  "Invalid method parameters",
	CodeInternalError:  "Internal error",

	CodeInvalidInput:        "Invalid input",
	CodeResourceNotFound:    "Resource not found",
	CodeResourceUnavailable: "Resource unavailable",
	CodeTransactionRejected: "Transaction rejected",
	CodeMethodNotSupported:  "Method not supported",
	CodeLimitExceeded:       "Request limit exceeded",
	CodeVersionNotSupported: "JSON-RPC version not supported",

	CodeUnknown: "Unknown error",
}

// Message returns the canonical message for a code, falling back to the
// catch-all entry for unlisted codes.
func Message(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[CodeUnknown]
}

// Resolve picks the message for a failure: the custom text when the wallet
// supplied one, else the canonical table entry. It never fails.
func Resolve(code int, custom string) string {
	if custom != "" {
		return custom
	}
	return Message(code)
}

// Error is the only failure value that crosses the public API. Data is an
// optional opaque payload attached by the wallet.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// New builds an Error for code, using custom text when non-empty.
func New(code int, custom string) *Error {
	return &Error{Code: code, Message: Resolve(code, custom)}
}

// Errorf builds an Error with formatted custom text.
func Errorf(code int, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithData returns a copy of e carrying the given payload.
func (e *Error) WithData(data any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Data: data}
}

// FromError unwraps err into an *Error when one is in its chain.
func FromError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code int) bool {
	pe, ok := FromError(err)
	return ok && pe.Code == code
}

// CodeOf returns the code carried by err, or CodeUnknown for untyped errors.
func CodeOf(err error) int {
	if pe, ok := FromError(err); ok {
		return pe.Code
	}
	return CodeUnknown
}

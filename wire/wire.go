// Package wire defines the message envelopes exchanged between the SDK and a
// wallet agent. Both directions carry JSON objects; requests and responses are
// correlated by id, and the type/network pair of a response must agree with
// the pending request it answers.
package wire

import "encoding/json"

// Type enumerates wallet message types.
type Type string

const (
	TypeReady                     Type = "READY"
	TypeConnectWallet             Type = "CONNECT_WALLET"
	TypeDisconnect                Type = "DISCONNECT"
	TypeEthSignTransaction        Type = "ETH_SIGN_TRANSACTION"
	TypeEthSignMessage            Type = "ETH_SIGN_MESSAGE"
	TypeSolSignMessage            Type = "SOL_SIGN_MESSAGE"
	TypeSolSignTransaction        Type = "SOL_SIGN_TRANSACTION"
	TypeSolSignAllTransactions    Type = "SOL_SIGN_ALL_TRANSACTIONS"
	TypeSolSignAndSendTransaction Type = "SOL_SIGN_AND_SEND_TRANSACTION"
	TypeWalletEvent               Type = "WALLET_EVENT"
)

// Namespace identifies a blockchain family.
type Namespace string

const (
	NamespaceEVM    Namespace = "eip155"
	NamespaceSolana Namespace = "solana"
	// NamespaceNone is used on messages that are not scoped to a single
	// chain family, such as the connection handshake.
	NamespaceNone Namespace = ""
)

// Request is an outbound message to the wallet.
type Request struct {
	Type      Type            `json:"type"`
	Network   Namespace       `json:"network,omitempty"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is an inbound message answering a Request with the same id.
type Response struct {
	Type    Type            `json:"type"`
	Network Namespace       `json:"network,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload ResponsePayload `json:"payload"`
}

// ResponsePayload carries the outcome of a request. On success Result holds
// the method-specific body; on failure ErrorCode and Message describe it.
type ResponsePayload struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	ErrorCode *int            `json:"errorCode,omitempty"`
}

// Envelope is the minimal shape shared by every inbound message. It is
// decoded first to route READY, events and responses without guessing.
type Envelope struct {
	Type    Type            `json:"type"`
	Network Namespace       `json:"network,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the payload of a WALLET_EVENT message. Events bypass the pending
// request table entirely.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

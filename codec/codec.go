// Package codec converts chain-native transaction and message objects into
// transport-safe payloads and back. Functions here are pure: no I/O, no
// state. Every failure is a typed rpcerr value so nothing untyped crosses
// the wire boundary.
package codec

// Encoding tags the representation of a payload. The set is closed; decoders
// reject anything else rather than guessing.
type Encoding string

const (
	EncodingJSON   Encoding = "json"
	EncodingBase64 Encoding = "base64"
	EncodingUTF8   Encoding = "utf8"
)

// Encoded is a payload together with the tag the decoder needs.
type Encoded struct {
	Encoding Encoding `json:"encoding"`
	Data     string   `json:"data"`
}

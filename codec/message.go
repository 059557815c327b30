package codec

import (
	"encoding/base64"

	"github.com/newwallet-io/wallet-sdk/rpcerr"
)

// EncodeTextMessage wraps a string message. Text passes through unchanged
// under the utf8 tag.
func EncodeTextMessage(s string) Encoded {
	return Encoded{Encoding: EncodingUTF8, Data: s}
}

// EncodeBinaryMessage wraps raw bytes under the base64 tag. Round-trips are
// byte-exact.
func EncodeBinaryMessage(b []byte) Encoded {
	return Encoded{Encoding: EncodingBase64, Data: base64.StdEncoding.EncodeToString(b)}
}

// DecodeMessage returns the message bytes for a tagged payload. Tags outside
// the closed set fail; the decoder never guesses.
func DecodeMessage(e Encoded) ([]byte, error) {
	switch e.Encoding {
	case EncodingUTF8:
		return []byte(e.Data), nil
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(e.Data)
		if err != nil {
			return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "invalid base64 message: %v", err)
		}
		return b, nil
	default:
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "unrecognized message encoding %q", e.Encoding)
	}
}

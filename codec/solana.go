package codec

import (
	"encoding/base64"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/newwallet-io/wallet-sdk/rpcerr"
)

// SolanaTxPayload is the transport form of a Solana transaction: base64 of
// the canonical binary serialization plus the flag that selects the legacy
// or versioned deserializer.
type SolanaTxPayload struct {
	Encoding  Encoding `json:"encoding"`
	Data      string   `json:"data"`
	Versioned bool     `json:"versioned"`
}

// EncodeSolanaTx serializes a transaction for transport.
func EncodeSolanaTx(tx *solana.Transaction) (SolanaTxPayload, error) {
	if tx == nil {
		return SolanaTxPayload{}, rpcerr.New(rpcerr.CodeInternalError, "nil transaction")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return SolanaTxPayload{}, rpcerr.Errorf(rpcerr.CodeInternalError, "serialize transaction: %v", err)
	}
	return SolanaTxPayload{
		Encoding:  EncodingBase64,
		Data:      base64.StdEncoding.EncodeToString(raw),
		Versioned: tx.Message.GetVersion() != solana.MessageVersionLegacy,
	}, nil
}

// DecodeSolanaTx reverses EncodeSolanaTx. The payload must deserialize to a
// structurally valid transaction of the variant the flag names.
func DecodeSolanaTx(p SolanaTxPayload) (*solana.Transaction, error) {
	if p.Encoding != EncodingBase64 {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "unexpected transaction encoding %q", p.Encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "invalid base64 transaction: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "deserialize transaction: %v", err)
	}
	versioned := tx.Message.GetVersion() != solana.MessageVersionLegacy
	if versioned != p.Versioned {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "transaction variant mismatch: payload flagged versioned=%v", p.Versioned)
	}
	return tx, nil
}

package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/newwallet-io/wallet-sdk/rpcerr"
)

// BigInt is a big.Int whose JSON form is the reversible marker object
// {"type":"bigint","value":"<decimal>"}, so integer magnitude survives the
// JSON boundary regardless of size.
type BigInt big.Int

// NewBigInt wraps v. The value is copied.
func NewBigInt(v *big.Int) *BigInt {
	if v == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(v))
}

// BigIntFromUint64 wraps v as a BigInt.
func BigIntFromUint64(v uint64) *BigInt {
	return (*BigInt)(new(big.Int).SetUint64(v))
}

// Int returns the wrapped value. The result aliases b.
func (b *BigInt) Int() *big.Int { return (*big.Int)(b) }

func (b *BigInt) String() string { return (*big.Int)(b).String() }

type bigintMarker struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MarshalJSON emits the bigint marker object.
func (b *BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(bigintMarker{Type: "bigint", Value: (*big.Int)(b).String()})
}

// UnmarshalJSON reverses the marker. Plain JSON numbers are accepted for
// values a counterpart chose not to mark; any other shape or marker type is
// rejected.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty bigint value")
	}
	if data[0] == '{' {
		var m bigintMarker
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return fmt.Errorf("malformed bigint marker: %w", err)
		}
		if m.Type != "bigint" {
			return fmt.Errorf("unsupported marker type %q", m.Type)
		}
		v, ok := new(big.Int).SetString(m.Value, 10)
		if !ok {
			return fmt.Errorf("invalid bigint value %q", m.Value)
		}
		*b = BigInt(*v)
		return nil
	}
	v, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return fmt.Errorf("invalid bigint literal %s", data)
	}
	*b = BigInt(*v)
	return nil
}

// TxRequest is an EVM transaction request as callers hand it to the wallet.
// Integer fields use BigInt so nothing is truncated in transit.
type TxRequest struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *BigInt         `json:"value,omitempty"`
	Gas                  *BigInt         `json:"gas,omitempty"`
	GasPrice             *BigInt         `json:"gasPrice,omitempty"`
	MaxFeePerGas         *BigInt         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *BigInt         `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *BigInt         `json:"nonce,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	ChainID              *BigInt         `json:"chainId,omitempty"`
}

// EncodeEVMTx serializes a transaction request for transport.
func EncodeEVMTx(tx *TxRequest) (Encoded, error) {
	if tx == nil {
		return Encoded{}, rpcerr.New(rpcerr.CodeInternalError, "nil transaction request")
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		return Encoded{}, rpcerr.Errorf(rpcerr.CodeInternalError, "encode transaction: %v", err)
	}
	return Encoded{Encoding: EncodingJSON, Data: string(raw)}, nil
}

// DecodeEVMTx reverses EncodeEVMTx. Unknown fields and malformed markers are
// failures, not best-effort decodes.
func DecodeEVMTx(p Encoded) (*TxRequest, error) {
	if p.Encoding != EncodingJSON {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "unexpected transaction encoding %q", p.Encoding)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(p.Data)))
	dec.DisallowUnknownFields()
	var tx TxRequest
	if err := dec.Decode(&tx); err != nil {
		return nil, rpcerr.Errorf(rpcerr.CodeInternalError, "decode transaction: %v", err)
	}
	return &tx, nil
}

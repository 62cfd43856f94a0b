package rpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Coin mirrors cosmos.base.v1beta1.Coin.
type Coin struct {
	Denom  string
	Amount string
}

// encodeBalanceRequest builds cosmos.bank.v1beta1.QueryBalanceRequest.
func encodeBalanceRequest(address, denom string) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, address)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, denom)
	return b
}

// decodeBalanceResponse reads cosmos.bank.v1beta1.QueryBalanceResponse. An
// absent balance field means zero.
func decodeBalanceResponse(b []byte) (Coin, error) {
	coin := Coin{Amount: "0"}
	err := walkFields(b, func(num protowire.Number, val []byte) error {
		if num != 1 {
			return nil
		}
		return walkFields(val, func(num protowire.Number, val []byte) error {
			switch num {
			case 1:
				coin.Denom = string(val)
			case 2:
				coin.Amount = string(val)
			}
			return nil
		})
	})
	if err != nil {
		return Coin{}, fmt.Errorf("decode balance response: %w", err)
	}
	return coin, nil
}

// walkFields calls fn for every length-delimited field in b and skips the rest.
func walkFields(b []byte, fn func(protowire.Number, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		val, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := fn(num, val); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

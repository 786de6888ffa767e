package chain

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"daoup/internal/model"
)

// Query paths and message type URLs of the Cosmos SDK and wasmd modules.
const (
	pathSmartContractState = "/cosmwasm.wasm.v1.Query/SmartContractState"
	pathContractsByCode    = "/cosmwasm.wasm.v1.Query/ContractsByCode"
	pathAccount            = "/cosmos.auth.v1beta1.Query/Account"
	pathBalance            = "/cosmos.bank.v1beta1.Query/Balance"

	typeMsgExecuteContract     = "/cosmwasm.wasm.v1.MsgExecuteContract"
	typeMsgInstantiateContract = "/cosmwasm.wasm.v1.MsgInstantiateContract"
	typeSecp256k1PubKey        = "/cosmos.crypto.secp256k1.PubKey"

	signModeDirect = 1
)

// message is a protobuf encoder that skips zero values like proto3 does.
type message []byte

func (m message) str(num protowire.Number, v string) message {
	if v == "" {
		return m
	}
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendString(m, v)
}

func (m message) bytes(num protowire.Number, v []byte) message {
	if len(v) == 0 {
		return m
	}
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, v)
}

// embed writes a nested message even when it is empty.
func (m message) embed(num protowire.Number, v []byte) message {
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, v)
}

func (m message) uint(num protowire.Number, v uint64) message {
	if v == 0 {
		return m
	}
	m = protowire.AppendTag(m, num, protowire.VarintType)
	return protowire.AppendVarint(m, v)
}

func (m message) boolean(num protowire.Number, v bool) message {
	if !v {
		return m
	}
	return m.uint(num, 1)
}

func encodeAny(typeURL string, value []byte) []byte {
	return message(nil).str(1, typeURL).bytes(2, value)
}

func encodeCoin(coin model.Coin) []byte {
	return message(nil).str(1, coin.Denom).str(2, coin.Amount)
}

func encodeCoins(m message, num protowire.Number, coins []model.Coin) message {
	for _, coin := range coins {
		m = m.embed(num, encodeCoin(coin))
	}
	return m
}

// field is one decoded protobuf field; only varint and length-delimited values are kept.
type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

func decodeFields(b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
			}
			f.varint = v
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
			}
			f.bytes = v
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
			}
			n = m
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

func decodeCoin(b []byte) (model.Coin, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return model.Coin{}, err
	}
	var coin model.Coin
	for _, f := range fields {
		switch f.num {
		case 1:
			coin.Denom = string(f.bytes)
		case 2:
			coin.Amount = string(f.bytes)
		}
	}
	if coin.Amount == "" {
		coin.Amount = "0"
	}
	return coin, nil
}

func decodeAny(b []byte) (string, []byte, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return "", nil, err
	}
	var (
		typeURL string
		value   []byte
	)
	for _, f := range fields {
		switch f.num {
		case 1:
			typeURL = string(f.bytes)
		case 2:
			value = f.bytes
		}
	}
	return typeURL, value, nil
}

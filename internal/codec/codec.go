// Package codec implements the canonical/v1 byte encoding used for
// tile ABI inputs and outputs, commitment input, and cache blobs.
//
// The encoding is positional and self-describing only to the extent
// needed to round-trip: every value carries a one-byte kind tag, and
// tuples are a count-prefixed sequence of values in declaration order.
// Equal logical values always serialize to identical bytes; nothing
// here depends on map iteration order, allocation order, or pointer
// identity.
package codec

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/raster-lang/raster/internal/rasterrors"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindUint64
	KindBytes
	KindTuple
)

// Value is a canonically-encodable argument or return value. Exactly
// one of the fields is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Bool  bool
	Uint  uint64
	Bytes []byte
	Tuple []Value
}

// Unit is the empty value, used for arity-0 tile I/O.
func Unit() Value { return Value{Kind: KindUnit} }

// Bool constructs a boolean value (used for the Recur step function's
// leading `done` output).
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Uint64 constructs an unsigned 64-bit integer value.
func Uint64(u uint64) Value { return Value{Kind: KindUint64, Uint: u} }

// Bytes constructs an opaque byte-string value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// Tuple constructs a fixed-arity positional tuple.
func Tuple(vs ...Value) Value { return Value{Kind: KindTuple, Tuple: vs} }

// Equal reports whether two values are logically equal, independent of
// any transient representation detail.
func Equal(a, b Value) bool {
	return string(Encode(a)) == string(Encode(b))
}

// Encode renders v as canonical/v1 bytes.
func Encode(v Value) []byte {
	var b cryptobyte.Builder
	encodeValue(&b, v)
	return b.BytesOrPanic()
}

func encodeValue(b *cryptobyte.Builder, v Value) {
	b.AddUint8(uint8(v.Kind))
	switch v.Kind {
	case KindUnit:
		// no payload
	case KindBool:
		u := uint8(0)
		if v.Bool {
			u = 1
		}
		b.AddUint8(u)
	case KindUint64:
		b.AddUint64(v.Uint)
	case KindBytes:
		payload := v.Bytes
		b.AddUint32(uint32(len(payload)))
		b.AddBytes(payload)
	case KindTuple:
		b.AddUint32(uint32(len(v.Tuple)))
		for _, elem := range v.Tuple {
			encodeValue(b, elem)
		}
	}
}

// Decode parses canonical/v1 bytes back into a Value. It returns a
// Serialization error on any malformed input, including trailing
// bytes.
func Decode(data []byte) (Value, error) {
	s := cryptobyte.String(data)
	v, err := decodeValue(&s)
	if err != nil {
		return Value{}, err
	}
	if len(s) != 0 {
		return Value{}, rasterrors.New(rasterrors.Serialization, "trailing bytes after decoded value")
	}
	return v, nil
}

func decodeValue(s *cryptobyte.String) (Value, error) {
	var kindByte uint8
	if !s.ReadUint8(&kindByte) {
		return Value{}, rasterrors.New(rasterrors.Serialization, "truncated value: missing kind tag")
	}
	switch Kind(kindByte) {
	case KindUnit:
		return Unit(), nil
	case KindBool:
		var u uint8
		if !s.ReadUint8(&u) {
			return Value{}, rasterrors.New(rasterrors.Serialization, "truncated bool value")
		}
		return Bool(u != 0), nil
	case KindUint64:
		var u uint64
		if !s.ReadUint64(&u) {
			return Value{}, rasterrors.New(rasterrors.Serialization, "truncated uint64 value")
		}
		return Uint64(u), nil
	case KindBytes:
		var payload []byte
		var n uint32
		if !s.ReadUint32(&n) {
			return Value{}, rasterrors.New(rasterrors.Serialization, "truncated bytes length")
		}
		if !s.ReadBytes(&payload, int(n)) {
			return Value{}, rasterrors.New(rasterrors.Serialization, "truncated bytes payload")
		}
		return Bytes(payload), nil
	case KindTuple:
		var n uint32
		if !s.ReadUint32(&n) {
			return Value{}, rasterrors.New(rasterrors.Serialization, "truncated tuple length")
		}
		elems := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			elem, err := decodeValue(s)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, elem)
		}
		return Tuple(elems...), nil
	default:
		return Value{}, rasterrors.New(rasterrors.Serialization, fmt.Sprintf("unknown value kind %d", kindByte))
	}
}

// EncodeArgs packs a tile's arguments per the arity rule:
// arity 0 consumes the encoding of unit; arity 1 consumes the
// encoding of its single argument; arity N>1 consumes the encoding of
// an N-tuple in declaration order.
func EncodeArgs(arity int, vals []Value) ([]byte, error) {
	switch {
	case arity == 0:
		return Encode(Unit()), nil
	case arity == 1:
		if len(vals) != 1 {
			return nil, rasterrors.New(rasterrors.Serialization, fmt.Sprintf("arity 1 expects exactly one value, got %d", len(vals)))
		}
		return Encode(vals[0]), nil
	default:
		if len(vals) != arity {
			return nil, rasterrors.New(rasterrors.Serialization, fmt.Sprintf("arity %d expects %d values, got %d", arity, arity, len(vals)))
		}
		return Encode(Tuple(vals...)), nil
	}
}

// DecodeArgs unpacks tile arguments per the same arity rule, returning
// exactly `arity` values in declaration order.
func DecodeArgs(arity int, data []byte) ([]Value, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	switch {
	case arity == 0:
		if v.Kind != KindUnit {
			return nil, rasterrors.New(rasterrors.Serialization, "arity 0 expects the unit encoding")
		}
		return nil, nil
	case arity == 1:
		return []Value{v}, nil
	default:
		if v.Kind != KindTuple || len(v.Tuple) != arity {
			return nil, rasterrors.New(rasterrors.Serialization, fmt.Sprintf("arity %d expects a %d-tuple", arity, arity))
		}
		return v.Tuple, nil
	}
}

package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// fieldFunc consumes the value of one field from b and returns the number of
// bytes it used.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk calls fn for every field of the message in b.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[n:]
	}

	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}

	return n, nil
}

func wireTypeError(num protowire.Number, got, want protowire.Type) error {
	return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, num, got, want)
}

func consumeMessage(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, wireTypeError(num, typ, protowire.BytesType)
	}

	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}

	return v, n, nil
}

func consumeUint32(num protowire.Number, typ protowire.Type, b []byte, dst *uint32) (int, error) {
	if typ != protowire.VarintType {
		return 0, wireTypeError(num, typ, protowire.VarintType)
	}

	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d overflows uint32", ErrMalformed, num)
	}

	*dst = uint32(v)

	return n, nil
}

func consumeFloat(num protowire.Number, typ protowire.Type, b []byte, dst *float32) (int, error) {
	if typ != protowire.Fixed32Type {
		return 0, wireTypeError(num, typ, protowire.Fixed32Type)
	}

	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}

	*dst = math.Float32frombits(v)

	return n, nil
}

// appendUint32 appends a varint field, omitting the zero value.
func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// appendFloat appends a fixed32 float field, omitting the zero value.
func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

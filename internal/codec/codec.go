// Package codec converts an ImageSpec to and from the compact token embedded
// in request paths.
//
// The token is the protobuf wire encoding of
//
//	message ImageSpec {
//	  repeated Spec specs = 1;
//	  uint32 version = 15;
//	}
//
//	message Spec {
//	  oneof data {
//	    Resize resize = 1;
//	    Crop crop = 2;
//	    FlipV flipv = 3;
//	    FlipH fliph = 4;
//	    Contrast contrast = 5;
//	    Filter filter = 6;
//	    Watermark watermark = 7;
//	    Blur blur = 8;
//	    Grayscale grayscale = 9;
//	  }
//	}
//
// wrapped in unpadded URL-safe base64, so it can be used as a path segment
// without escaping.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/buzzzzx/shanbor/internal/model"
)

// Version is the schema version written into every token.
const Version = 1

var (
	// ErrMalformed is returned when a token is not a valid encoding.
	ErrMalformed = errors.New("malformed spec token")
	// ErrUnknownVariant is returned when a token uses a step, kernel or
	// preset this version does not support.
	ErrUnknownVariant = errors.New("unknown spec variant")
)

const (
	fieldSpecs   protowire.Number = 1
	fieldVersion protowire.Number = 15
)

const (
	tagResize protowire.Number = iota + 1
	tagCrop
	tagFlipV
	tagFlipH
	tagContrast
	tagFilter
	tagWatermark
	tagBlur
	tagGrayscale
)

var encoding = base64.RawURLEncoding

// Encode returns the token for spec.
func Encode(spec model.ImageSpec) (string, error) {
	b, err := Marshal(spec)
	if err != nil {
		return "", err
	}

	return encoding.EncodeToString(b), nil
}

// Decode parses a token produced by Encode.
func Decode(token string) (model.ImageSpec, error) {
	b, err := encoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return model.ImageSpec{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Unmarshal(b)
}

// ExampleURL builds a request url for imageURL against the server at base,
// using a resize + watermark + filter spec. Handy for manual testing.
func ExampleURL(base, imageURL string) (string, error) {
	spec := model.NewImageSpec(
		model.Resize{Width: 500, Height: 800, Filter: model.SampleFilterCatmullRom},
		model.Watermark{X: 20, Y: 20},
		model.Filter{Kind: model.FilterMarine},
	)

	token, err := Encode(spec)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/image/%s/%s", strings.TrimRight(base, "/"), token, url.PathEscape(imageURL)), nil
}

// Marshal returns the protobuf encoding of spec.
func Marshal(spec model.ImageSpec) ([]byte, error) {
	var b []byte

	for i, step := range spec.Steps {
		msg, err := marshalStep(step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		b = protowire.AppendTag(b, fieldSpecs, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	b = appendUint32(b, fieldVersion, Version)

	return b, nil
}

func marshalStep(step model.Step) ([]byte, error) {
	var (
		tag protowire.Number
		m   []byte
	)

	switch s := step.(type) {
	case model.Resize:
		if !s.Filter.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, s.Filter)
		}
		tag = tagResize
		m = appendUint32(m, 1, s.Width)
		m = appendUint32(m, 2, s.Height)
		m = appendUint32(m, 4, uint32(s.Filter))
	case model.Crop:
		tag = tagCrop
		m = appendUint32(m, 1, s.X)
		m = appendUint32(m, 2, s.Y)
		m = appendUint32(m, 3, s.Width)
		m = appendUint32(m, 4, s.Height)
	case model.FlipV:
		tag = tagFlipV
	case model.FlipH:
		tag = tagFlipH
	case model.Contrast:
		tag = tagContrast
		m = appendFloat(m, 1, s.Amount)
	case model.Filter:
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, s.Kind)
		}
		tag = tagFilter
		m = appendUint32(m, 1, uint32(s.Kind))
	case model.Watermark:
		tag = tagWatermark
		m = appendUint32(m, 1, s.X)
		m = appendUint32(m, 2, s.Y)
	case model.Blur:
		tag = tagBlur
		m = appendFloat(m, 1, s.Sigma)
	case model.Grayscale:
		tag = tagGrayscale
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownVariant, step)
	}

	b := protowire.AppendTag(nil, tag, protowire.BytesType)
	b = protowire.AppendBytes(b, m)

	return b, nil
}

// Unmarshal parses the protobuf encoding of an ImageSpec.
// Unknown top-level fields are skipped.
func Unmarshal(b []byte) (model.ImageSpec, error) {
	var spec model.ImageSpec

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSpecs:
			msg, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}

			step, err := unmarshalStep(msg)
			if err != nil {
				return 0, fmt.Errorf("step %d: %w", len(spec.Steps), err)
			}

			spec.Steps = append(spec.Steps, step)
			return n, nil
		case fieldVersion:
			var v uint32
			return consumeUint32(num, typ, b, &v)
		default:
			return skip(num, typ, b)
		}
	})
	if err != nil {
		return model.ImageSpec{}, err
	}

	return spec, nil
}

func unmarshalStep(b []byte) (model.Step, error) {
	var (
		step    model.Step
		unknown protowire.Number
	)

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < tagResize || num > tagGrayscale {
			unknown = num
			return skip(num, typ, b)
		}

		msg, n, err := consumeMessage(num, typ, b)
		if err != nil {
			return 0, err
		}

		// oneof: the last variant on the wire wins.
		step, err = unmarshalVariant(num, msg)
		if err != nil {
			return 0, err
		}

		return n, nil
	})
	if err != nil {
		return nil, err
	}

	if unknown != 0 {
		return nil, fmt.Errorf("%w: step field %d", ErrUnknownVariant, unknown)
	}
	if step == nil {
		return nil, fmt.Errorf("%w: empty step", ErrMalformed)
	}

	return step, nil
}

func unmarshalVariant(tag protowire.Number, b []byte) (model.Step, error) {
	switch tag {
	case tagResize:
		var r model.Resize
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeUint32(num, typ, b, &r.Width)
			case 2:
				return consumeUint32(num, typ, b, &r.Height)
			case 3:
				// resize type: only the default (plain scaling) is supported.
				var rtype uint32
				n, err := consumeUint32(num, typ, b, &rtype)
				if err == nil && rtype != 0 {
					return 0, fmt.Errorf("%w: resize type %d", ErrUnknownVariant, rtype)
				}
				return n, err
			case 4:
				var f uint32
				n, err := consumeUint32(num, typ, b, &f)
				r.Filter = model.SampleFilter(f)
				return n, err
			default:
				return skip(num, typ, b)
			}
		})
		if err != nil {
			return nil, err
		}
		if !r.Filter.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, r.Filter)
		}
		return r, nil
	case tagCrop:
		var c model.Crop
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeUint32(num, typ, b, &c.X)
			case 2:
				return consumeUint32(num, typ, b, &c.Y)
			case 3:
				return consumeUint32(num, typ, b, &c.Width)
			case 4:
				return consumeUint32(num, typ, b, &c.Height)
			default:
				return skip(num, typ, b)
			}
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case tagFlipV:
		if err := walk(b, skip); err != nil {
			return nil, err
		}
		return model.FlipV{}, nil
	case tagFlipH:
		if err := walk(b, skip); err != nil {
			return nil, err
		}
		return model.FlipH{}, nil
	case tagContrast:
		var c model.Contrast
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				return consumeFloat(num, typ, b, &c.Amount)
			}
			return skip(num, typ, b)
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case tagFilter:
		var f model.Filter
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				var k uint32
				n, err := consumeUint32(num, typ, b, &k)
				f.Kind = model.FilterKind(k)
				return n, err
			}
			return skip(num, typ, b)
		})
		if err != nil {
			return nil, err
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, f.Kind)
		}
		return f, nil
	case tagWatermark:
		var w model.Watermark
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeUint32(num, typ, b, &w.X)
			case 2:
				return consumeUint32(num, typ, b, &w.Y)
			default:
				return skip(num, typ, b)
			}
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	case tagBlur:
		var bl model.Blur
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				return consumeFloat(num, typ, b, &bl.Sigma)
			}
			return skip(num, typ, b)
		})
		if err != nil {
			return nil, err
		}
		return bl, nil
	case tagGrayscale:
		if err := walk(b, skip); err != nil {
			return nil, err
		}
		return model.Grayscale{}, nil
	default:
		return nil, fmt.Errorf("%w: step field %d", ErrUnknownVariant, tag)
	}
}

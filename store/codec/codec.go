// Package codec implements the tagged, self-describing value encoding every
// EMList and EMDict value (and every EMDict key) is stored as. The codec is
// the only place host-language value shapes meet the store; everything
// below it deals in byte slices.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Tag identifies the type of an encoded value.
type Tag byte

const (
	TagNull     Tag = 0
	TagBool     Tag = 1
	TagInt      Tag = 2
	TagFloat64  Tag = 3
	TagString   Tag = 4
	TagBytes    Tag = 5
	TagSequence Tag = 6
	TagMapping  Tag = 7
	TagOpaque   Tag = 8

	// HostTagBase is the first tag value reserved for host-language
	// extensions; this package never produces or consumes tags in
	// [HostTagBase, 255] itself.
	HostTagBase Tag = 128
)

// Pair is one (key, value) entry of a Mapping, in insertion order.
type Pair struct {
	Key   any
	Value any
}

// Mapping is the Go-side representation of tag 7: an ordered sequence of
// key/value pairs rather than a Go map, since codec keys need not be
// comparable Go values (they are themselves arbitrary encoded values).
type Mapping []Pair

// Sequence is the Go-side representation of tag 6.
type Sequence []any

// Opaque is the Go-side representation of tag 8: raw bytes whose
// interpretation belongs to the caller, not the codec.
type Opaque []byte

// Encode renders v as a self-describing byte blob. Supported Go types are
// nil, bool, every built-in integer type (encoded as int64), float32/float64,
// string, []byte, Sequence, Mapping, and Opaque.
func Encode(v any) ([]byte, error) {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, byte(TagNull)), nil
	case bool:
		buf = append(buf, byte(TagBool))
		if val {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case int:
		return appendInt(buf, int64(val)), nil
	case int8:
		return appendInt(buf, int64(val)), nil
	case int16:
		return appendInt(buf, int64(val)), nil
	case int32:
		return appendInt(buf, int64(val)), nil
	case int64:
		return appendInt(buf, val), nil
	case uint:
		return appendInt(buf, int64(val)), nil
	case uint8:
		return appendInt(buf, int64(val)), nil
	case uint16:
		return appendInt(buf, int64(val)), nil
	case uint32:
		return appendInt(buf, int64(val)), nil
	case uint64:
		return appendInt(buf, int64(val)), nil
	case float32:
		return appendFloat(buf, float64(val)), nil
	case float64:
		return appendFloat(buf, val), nil
	case string:
		if !utf8.ValidString(val) {
			return nil, fmt.Errorf("codec: encode string: %w", ErrInvalidUTF8)
		}
		buf = append(buf, byte(TagString))
		buf = appendUvarint(buf, uint64(len(val)))
		return append(buf, val...), nil
	case []byte:
		buf = append(buf, byte(TagBytes))
		buf = appendUvarint(buf, uint64(len(val)))
		return append(buf, val...), nil
	case Opaque:
		buf = append(buf, byte(TagOpaque))
		buf = appendUvarint(buf, uint64(len(val)))
		return append(buf, val...), nil
	case Sequence:
		buf = append(buf, byte(TagSequence))
		buf = appendUvarint(buf, uint64(len(val)))
		for _, elem := range val {
			var err error
			buf, err = appendValue(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case Mapping:
		buf = append(buf, byte(TagMapping))
		buf = appendUvarint(buf, uint64(len(val)))
		for _, p := range val {
			var err error
			buf, err = appendValue(buf, p.Key)
			if err != nil {
				return nil, err
			}
			buf, err = appendValue(buf, p.Value)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("codec: encode: unsupported Go type %T", v)
	}
}

func appendInt(buf []byte, v int64) []byte {
	buf = append(buf, byte(TagInt))
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendFloat(buf []byte, v float64) []byte {
	buf = append(buf, byte(TagFloat64))
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	return append(buf, tmp[:]...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Decode parses one value from the start of b and returns it along with the
// number of bytes consumed.
func Decode(b []byte) (any, int, error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("codec: decode: %w", ErrTruncated)
	}
	tag := Tag(b[0])
	rest := b[1:]
	switch tag {
	case TagNull:
		return nil, 1, nil
	case TagBool:
		if len(rest) < 1 {
			return nil, 0, fmt.Errorf("codec: decode bool: %w", ErrTruncated)
		}
		return rest[0] != 0, 2, nil
	case TagInt:
		v, n := binary.Varint(rest)
		if n <= 0 {
			return nil, 0, fmt.Errorf("codec: decode int: %w", ErrTruncated)
		}
		return v, 1 + n, nil
	case TagFloat64:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("codec: decode float64: %w", ErrTruncated)
		}
		bits := binary.LittleEndian.Uint64(rest[:8])
		return math.Float64frombits(bits), 1 + 8, nil
	case TagString:
		length, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: decode string length: %w", err)
		}
		rest = rest[n:]
		if uint64(len(rest)) < length {
			return nil, 0, fmt.Errorf("codec: decode string: %w", ErrTruncated)
		}
		s := string(rest[:length])
		if !utf8.ValidString(s) {
			return nil, 0, fmt.Errorf("codec: decode string: %w", ErrInvalidUTF8)
		}
		return s, 1 + n + int(length), nil
	case TagBytes:
		length, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: decode bytes length: %w", err)
		}
		rest = rest[n:]
		if uint64(len(rest)) < length {
			return nil, 0, fmt.Errorf("codec: decode bytes: %w", ErrTruncated)
		}
		out := make([]byte, length)
		copy(out, rest[:length])
		return out, 1 + n + int(length), nil
	case TagOpaque:
		length, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: decode opaque length: %w", err)
		}
		rest = rest[n:]
		if uint64(len(rest)) < length {
			return nil, 0, fmt.Errorf("codec: decode opaque: %w", ErrTruncated)
		}
		out := make(Opaque, length)
		copy(out, rest[:length])
		return out, 1 + n + int(length), nil
	case TagSequence:
		count, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: decode sequence count: %w", err)
		}
		consumed := 1 + n
		rest = rest[n:]
		seq := make(Sequence, 0, count)
		for i := uint64(0); i < count; i++ {
			v, m, err := Decode(rest)
			if err != nil {
				return nil, 0, err
			}
			seq = append(seq, v)
			rest = rest[m:]
			consumed += m
		}
		return seq, consumed, nil
	case TagMapping:
		count, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: decode mapping count: %w", err)
		}
		consumed := 1 + n
		rest = rest[n:]
		m := make(Mapping, 0, count)
		for i := uint64(0); i < count; i++ {
			k, n1, err := Decode(rest)
			if err != nil {
				return nil, 0, err
			}
			rest = rest[n1:]
			consumed += n1
			v, n2, err := Decode(rest)
			if err != nil {
				return nil, 0, err
			}
			rest = rest[n2:]
			consumed += n2
			m = append(m, Pair{Key: k, Value: v})
		}
		return m, consumed, nil
	default:
		return nil, 0, fmt.Errorf("codec: decode: tag %d: %w", tag, ErrUnknownTag)
	}
}

func readUvarint(b []byte) (uint64, int, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, ErrTruncated
	}
	return v, n, nil
}

package writers

// Value encoding: the exact inverse of readers.Decode.

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/google/uuid"

	"tqedit/types"
)

func Uint32LE(n uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, n)
}

func bad_value(v any, t types.VarType) error {
	return types.NewError(types.KindEncoding, "encode", -1, fmt.Sprintf("can't encode %T as %v", v, t))
}

func to_int32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	case uint32:
		return int32(n), true
	}
	return 0, false
}

func to_float32(v any) (float32, bool) {
	switch f := v.(type) {
	case float32:
		return f, true
	case float64:
		return float32(f), true
	}
	return 0, false
}

func to_uid(v any) (uuid.UUID, bool) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, true
	case [types.UIDSize]byte:
		return uuid.UUID(u), true
	case []byte:
		if len(u) == types.UIDSize {
			var out uuid.UUID
			copy(out[:], u)
			return out, true
		}
	}
	return uuid.Nil, false
}

// Normalize converts a loosely typed value (an int for an Integer, say) into the
// type readers.Decode would produce.
func Normalize(v any, t types.VarType) (any, error) {
	var out any
	ok := false
	switch t {
	case types.VT_INT:
		out, ok = to_int32(v)
	case types.VT_FLOAT:
		out, ok = to_float32(v)
	case types.VT_STRING, types.VT_UTF16:
		out, ok = v.(string)
	case types.VT_UID:
		out, ok = to_uid(v)
	case types.VT_STREAM:
		var b []byte
		b, ok = v.([]byte)
		out = append([]byte{}, b...)
	}
	if !ok {
		return nil, bad_value(v, t)
	}
	return out, nil
}

// Encode encodes v as type t.
func Encode(v any, t types.VarType) ([]byte, error) {
	v, err := Normalize(v, t)
	if err != nil {
		return nil, err
	}
	switch t {
	case types.VT_INT:
		return Uint32LE(uint32(v.(int32))), nil
	case types.VT_FLOAT:
		return Uint32LE(math.Float32bits(v.(float32))), nil
	case types.VT_STRING:
		s := v.(string)
		return append(Uint32LE(uint32(len(s))), s...), nil
	case types.VT_UTF16:
		units := utf16.Encode([]rune(v.(string)))
		out := Uint32LE(uint32(len(units)))
		for _, u := range units {
			out = binary.LittleEndian.AppendUint16(out, u)
		}
		return out, nil
	case types.VT_UID:
		u := v.(uuid.UUID)
		return append([]byte{}, u[:]...), nil
	case types.VT_STREAM:
		b := v.([]byte)
		return append(Uint32LE(uint32(len(b))), b...), nil
	}
	return nil, bad_value(v, t)
}

func EncodeKey(name string) []byte {
	return append(Uint32LE(uint32(len(name))), name...)
}

// EncodeRecord encodes a whole key/value record.
func EncodeRecord(name string, t types.VarType, v any) ([]byte, error) {
	val, err := Encode(v, t)
	if err != nil {
		return nil, err
	}
	return append(EncodeKey(name), val...), nil
}

// RecordLen is the encoded length of a record without building it.
func RecordLen(name string, t types.VarType, v any) (int, error) {
	val, err := Encode(v, t)
	if err != nil {
		return 0, err
	}
	return 4 + len(name) + len(val), nil
}

func EncodeEndRecord() []byte {
	return append(EncodeKey(types.EndBlock), Uint32LE(types.EndMarker)...)
}

// EncodeBlock frames already-encoded content as a block with the correct size.
func EncodeBlock(content ...[]byte) []byte {
	n := 0
	for _, c := range content {
		n += len(c)
	}
	begin := EncodeKey(types.BeginBlock)
	end := EncodeEndRecord()
	size := len(begin) + 4 + n + len(end)

	out := make([]byte, 0, size)
	out = append(out, begin...)
	out = append(out, Uint32LE(uint32(size))...)
	for _, c := range content {
		out = append(out, c...)
	}
	return append(out, end...)
}

// MustRecord is EncodeRecord for values known to be valid, such as literals in tables and tests.
func MustRecord(name string, t types.VarType, v any) []byte {
	b, err := EncodeRecord(name, t, v)
	if err != nil {
		panic(err)
	}
	return b
}

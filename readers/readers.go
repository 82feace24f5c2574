package readers

// Value decoding.  Everything here works on a whole in-memory buffer with an
// explicit cursor, since the tokenizer needs to know exactly where every record sits.

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/google/uuid"

	"tqedit/types"
)

func truncated(cur int, want int, have int) error {
	return types.NewError(types.KindMalformedRecord, "decode", cur,
		fmt.Sprintf("truncated: need %v bytes, %v available", want, have))
}

func read_fixed(buf []byte, cur *int, size int) ([]byte, error) {
	if size < 0 || *cur < 0 || *cur+size > len(buf) {
		return nil, truncated(*cur, size, max(len(buf)-*cur, 0))
	}
	out := buf[*cur : *cur+size]
	*cur += size
	return out, nil
}

func ReadUint32(buf []byte, cur *int) (uint32, error) {
	b, err := read_fixed(buf, cur, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func ReadInt(buf []byte, cur *int) (int32, error) {
	n, err := ReadUint32(buf, cur)
	return int32(n), err
}

func ReadFloat(buf []byte, cur *int) (float32, error) {
	n, err := ReadUint32(buf, cur)
	return math.Float32frombits(n), err
}

// read_length reads a uint32 count and checks that count*unit bytes actually follow.
func read_length(buf []byte, cur *int, unit int) (int, error) {
	start := *cur
	n, err := ReadUint32(buf, cur)
	if err != nil {
		return 0, err
	}
	avail := len(buf) - *cur
	if uint64(n)*uint64(unit) > uint64(avail) {
		*cur = start
		return 0, types.NewError(types.KindMalformedRecord, "decode", start,
			fmt.Sprintf("declared length %v exceeds the %v bytes left", n, avail))
	}
	return int(n), nil
}

// ReadString reads a length-prefixed string: no terminator, exactly n bytes.
func ReadString(buf []byte, cur *int) (string, error) {
	n, err := read_length(buf, cur, 1)
	if err != nil {
		return "", err
	}
	b, err := read_fixed(buf, cur, n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUTF16 reads a string whose prefix counts UTF-16 code units, not bytes.
func ReadUTF16(buf []byte, cur *int) (string, error) {
	n, err := read_length(buf, cur, 2)
	if err != nil {
		return "", err
	}
	b, err := read_fixed(buf, cur, 2*n)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

func ReadUID(buf []byte, cur *int) (uuid.UUID, error) {
	b, err := read_fixed(buf, cur, types.UIDSize)
	if err != nil {
		return uuid.Nil, err
	}
	var u uuid.UUID
	copy(u[:], b)
	return u, nil
}

// ReadStream returns a copy, so callers can't scribble on the original buffer.
func ReadStream(buf []byte, cur *int) ([]byte, error) {
	n, err := read_length(buf, cur, 1)
	if err != nil {
		return nil, err
	}
	b, err := read_fixed(buf, cur, n)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

// Decode decodes one value of type t at offset.
// Returns the value and the number of bytes consumed.
func Decode(buf []byte, offset int, t types.VarType) (any, int, error) {
	cur := offset
	var v any
	var err error
	switch t {
	case types.VT_INT:
		v, err = ReadInt(buf, &cur)
	case types.VT_FLOAT:
		v, err = ReadFloat(buf, &cur)
	case types.VT_STRING:
		v, err = ReadString(buf, &cur)
	case types.VT_UTF16:
		v, err = ReadUTF16(buf, &cur)
	case types.VT_UID:
		v, err = ReadUID(buf, &cur)
	case types.VT_STREAM:
		v, err = ReadStream(buf, &cur)
	default:
		return nil, 0, types.NewError(types.KindMalformedRecord, "decode", offset, "unresolved type "+t.String())
	}
	if err != nil {
		return nil, 0, err
	}
	return v, cur - offset, nil
}

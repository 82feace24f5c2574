package writers

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tqedit/readers"
	"tqedit/types"
)

func TestEncodeDecode(t *testing.T) {
	values := []struct {
		t types.VarType
		v any
	}{
		{types.VT_INT, int32(math.MinInt32)},
		{types.VT_INT, int32(-1)},
		{types.VT_FLOAT, float32(math.SmallestNonzeroFloat32)},
		{types.VT_FLOAT, float32(-0.5)},
		{types.VT_STRING, ""},
		{types.VT_STRING, "Records/Skills/Warfare/Onslaught.dbr"},
		{types.VT_UTF16, "Ἀχιλλεύς \U0001F600"},
		{types.VT_UID, uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")},
		{types.VT_STREAM, []byte{}},
		{types.VT_STREAM, []byte{0, 1, 2, 255}},
	}
	for _, tt := range values {
		b, err := Encode(tt.v, tt.t)
		require.NoError(t, err)
		got, n, err := readers.Decode(b, 0, tt.t)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, tt.v, got)
	}
}

func TestEncodeUTF16CountsCodeUnits(t *testing.T) {
	b, err := Encode("a\U0001F600", types.VT_UTF16)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0}, b[:4])
	assert.Len(t, b, 4+6)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(7, types.VT_INT)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	v, err = Normalize(2.5, types.VT_FLOAT)
	require.NoError(t, err)
	assert.Equal(t, float32(2.5), v)

	id := uuid.New()
	v, err = Normalize(id[:], types.VT_UID)
	require.NoError(t, err)
	assert.Equal(t, id, v)

	_, err = Normalize("seven", types.VT_INT)
	assert.True(t, errors.Is(err, types.ErrEncoding))
	_, err = Normalize(int64(math.MaxInt64), types.VT_INT)
	assert.Error(t, err)
	_, err = Normalize([]byte{1, 2}, types.VT_UID)
	assert.Error(t, err)
}

func TestEncodeBlock(t *testing.T) {
	rec := MustRecord("money", types.VT_INT, 10)
	b := EncodeBlock(rec)
	assert.Equal(t, readers.MinBlockLen+len(rec), len(b))
	require.NoError(t, CheckBlocks(b))
	require.NoError(t, CheckBlocks(append(append([]byte{}, b...), EncodeBlock()...)))

	n, err := RecordLen("money", types.VT_INT, 10)
	require.NoError(t, err)
	assert.Equal(t, len(rec), n)

	assert.Error(t, CheckBlocks(b[:len(b)-1]))
	assert.Panics(t, func() { MustRecord("money", types.VT_INT, "lots") })
}

package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tqedit/types"
)

func TestSmash(t *testing.T) {
	assert.Equal(t, "currentStats_charLevel", Smash("currentStats.charLevel"))
	assert.Equal(t, "a_b_", Smash("a b!"))
}

func TestFuzzyMatch(t *testing.T) {
	names := []string{"skillPoints", "skillLevel", "skillName", "money", "currentStats.charLevel", "modifierPoints"}

	tests := []struct {
		input string
		want  string
		kind  types.Kind
	}{
		{"money", "money", types.KindOther},
		{"MONEY", "money", types.KindOther},
		{"currentstats charlevel", "currentStats.charLevel", types.KindOther},
		{"skillp", "skillPoints", types.KindOther},
		{"charlev", "currentStats.charLevel", types.KindOther},
		{"skill", "", types.KindAmbiguous},
		{"points", "", types.KindAmbiguous},
		{"gold", "", types.KindNotFound},
	}
	for _, tt := range tests {
		got, err := FuzzyMatch(names, tt.input, "variable")
		if tt.want == "" {
			require.Error(t, err, tt.input)
			assert.Equal(t, tt.kind, types.KindOf(err), tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("0x10", types.VT_INT)
	require.NoError(t, err)
	assert.Equal(t, int32(16), v)

	v, err = ParseValue("-2.5", types.VT_FLOAT)
	require.NoError(t, err)
	assert.Equal(t, float32(-2.5), v)

	v, err = ParseValue("Hero", types.VT_UTF16)
	require.NoError(t, err)
	assert.Equal(t, "Hero", v)

	id := uuid.New()
	v, err = ParseValue(id.String(), types.VT_UID)
	require.NoError(t, err)
	assert.Equal(t, id, v)

	v, err = ParseValue("00 ff 10", types.VT_STREAM)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0xff, 0x10}, v)
	assert.Equal(t, "00ff10", FormatValue(v))

	for _, bad := range []struct {
		text string
		t    types.VarType
	}{
		{"lots", types.VT_INT},
		{"99999999999", types.VT_INT},
		{"x", types.VT_FLOAT},
		{"not-a-uid", types.VT_UID},
		{"abc", types.VT_STREAM},
		{"zz", types.VT_STREAM},
		{"1", types.VT_UNKNOWN},
	} {
		_, err := ParseValue(bad.text, bad.t)
		assert.True(t, errors.Is(err, types.ErrEncoding), bad.text)
	}
}

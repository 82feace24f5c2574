package writers_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tqedit/changes"
	"tqedit/player"
	"tqedit/readers"
	"tqedit/stash"
	"tqedit/testutil"
	"tqedit/types"
	"tqedit/writers"
)

func parse(t *testing.T, buf []byte, f *readers.Format) (*types.Index, *changes.Table) {
	t.Helper()
	idx, err := readers.Parse(buf, f)
	require.NoError(t, err)
	return idx, changes.New(idx)
}

func size_at(buf []byte, start int) int {
	return int(binary.LittleEndian.Uint32(buf[start+readers.BeginRecordLen-4:]))
}

func TestRoundTrip(t *testing.T) {
	for name, tt := range map[string]struct {
		buf []byte
		f   *readers.Format
	}{
		"player": {testutil.PlayerBytes(), player.Format},
		"mobile": {testutil.MobilePlayerBytes(), player.Format},
		"stash":  {testutil.StashBytes(2), stash.Format},
	} {
		t.Run(name, func(t *testing.T) {
			idx, tbl := parse(t, tt.buf, tt.f)
			out, err := writers.Rewrite(tt.buf, idx, tbl)
			require.NoError(t, err)
			assert.Equal(t, tt.buf, out)

			out, err = writers.Rewrite(tt.buf, idx, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.buf, out)
		})
	}
}

func TestScalarOverrideTouchesOnlyItsValue(t *testing.T) {
	buf := testutil.PlayerBytes()
	idx, tbl := parse(t, buf, player.Format)

	v, err := idx.FirstVar(player.SkillPoints)
	require.NoError(t, err)
	require.NoError(t, tbl.SetScalar(v.BlockOffset, player.SkillPoints, 15))

	out, err := writers.Rewrite(buf, idx, tbl)
	require.NoError(t, err)
	require.Len(t, out, len(buf))

	diff := []int{}
	for i := range buf {
		if buf[i] != out[i] {
			diff = append(diff, i)
		}
	}
	// an int32 going from 3 to 15 changes one byte
	assert.Equal(t, []int{v.ValueOffset}, diff)

	idx2, err := readers.Parse(out, player.Format)
	require.NoError(t, err)
	v2, err := idx2.FirstVar(player.SkillPoints)
	require.NoError(t, err)
	assert.Equal(t, int32(15), v2.Value)
}

func TestStringLengthChange(t *testing.T) {
	for _, name := range []string{"Achilles the Magnificent", "Al"} {
		t.Run(name, func(t *testing.T) {
			buf := testutil.PlayerBytes()
			idx, tbl := parse(t, buf, player.Format)
			v, err := idx.FirstVar(player.PlayerName)
			require.NoError(t, err)
			main := idx.Blocks[v.BlockOffset]

			require.NoError(t, tbl.SetScalar(main.Start, player.PlayerName, name))
			out, err := writers.Rewrite(buf, idx, tbl)
			require.NoError(t, err)

			delta := 2 * (len(name) - len(testutil.Name))
			assert.Equal(t, len(buf)+delta, len(out))
			assert.Equal(t, main.Size+delta, size_at(out, main.Start))
			assert.Equal(t, main.Size+delta, tbl.ProjectedSize(main.Start))

			idx2, err := readers.Parse(out, player.Format)
			require.NoError(t, err)
			v2, err := idx2.FirstVar(player.PlayerName)
			require.NoError(t, err)
			assert.Equal(t, name, v2.Value)
			assert.Equal(t, v.Length+delta, v2.Length)

			// everything after the main block is unchanged, only shifted
			assert.Equal(t, buf[main.End+1:], out[main.End+1+delta:])
		})
	}
}

func TestNestedStringChangeUpdatesAncestors(t *testing.T) {
	buf := testutil.PlayerBytes()
	idx, tbl := parse(t, buf, player.Format)
	skill := idx.NthBlockWith(player.SkillName, 1)
	skills := skill.Parent

	require.NoError(t, tbl.SetScalar(skill.Start, player.SkillName, "Records/Skills/Short.dbr"))
	out, err := writers.Rewrite(buf, idx, tbl)
	require.NoError(t, err)

	delta := len("Records/Skills/Short.dbr") - len("Records/Skills/Warfare/Onslaught.dbr")
	assert.Equal(t, skill.Size+delta, size_at(out, skill.Start))
	assert.Equal(t, skills.Size+delta, size_at(out, skills.Start))
	assert.Equal(t, len(buf)+delta, len(out))
}

func TestRemoveBlock(t *testing.T) {
	buf := testutil.PlayerBytes()
	idx, tbl := parse(t, buf, player.Format)
	skill := idx.NthBlockWith(player.SkillName, 0)
	skills := skill.Parent
	inventory := idx.Root.Children()[4]

	require.NoError(t, tbl.RemoveBlock(skill.Start))
	out, err := writers.Rewrite(buf, idx, tbl)
	require.NoError(t, err)

	assert.Equal(t, len(buf)-skill.Size, len(out))
	assert.Equal(t, skills.Size-skill.Size, size_at(out, skills.Start))
	assert.Equal(t, 0, tbl.ProjectedSize(skill.Start))
	// later blocks keep their bytes and move down by the removed length
	assert.Equal(t, buf[inventory.Start:], out[inventory.Start-skill.Size:])

	idx2, err := readers.Parse(out, player.Format)
	require.NoError(t, err)
	assert.Len(t, idx2.BlocksWith(player.SkillName), 1)
}

// A skill block holding skillLevel=5 and skillPoints=10 elsewhere: set skillPoints
// to 15 and drop the skill block in the same rewrite.
func TestSetAndRemoveTogether(t *testing.T) {
	skill := writers.EncodeBlock(writers.MustRecord("skillLevel", types.VT_INT, 5))
	outer := writers.EncodeBlock(
		writers.MustRecord("skillPoints", types.VT_INT, 10),
		skill,
	)
	buf := append(testutil.DefaultPlayer().Header(), outer...)
	idx, tbl := parse(t, buf, player.Format)

	outerBlock := idx.Root.Children()[0]
	skillBlock := outerBlock.Children()[0]
	require.Equal(t, len(skill), skillBlock.Size)

	require.NoError(t, tbl.SetScalar(outerBlock.Start, player.SkillPoints, 15))
	require.NoError(t, tbl.RemoveBlock(skillBlock.Start))
	out, err := writers.Rewrite(buf, idx, tbl)
	require.NoError(t, err)

	assert.False(t, bytes.Contains(out, skill))
	assert.Equal(t, outerBlock.Size-len(skill), size_at(out, outerBlock.Start))

	idx2, err := readers.Parse(out, player.Format)
	require.NoError(t, err)
	v, err := idx2.FirstVar(player.SkillPoints)
	require.NoError(t, err)
	assert.Equal(t, int32(15), v.Value)
	assert.Empty(t, idx2.BlocksWith("skillLevel"))
}

func TestReplaceBlock(t *testing.T) {
	buf := testutil.PlayerBytes()
	idx, tbl := parse(t, buf, player.Format)
	skill := idx.NthBlockWith(player.SkillName, 0)

	// duplicate the first skill
	orig := buf[skill.Start : skill.End+1]
	require.NoError(t, tbl.ReplaceBlock(skill.Start, append(append([]byte{}, orig...), orig...)))
	out, err := writers.Rewrite(buf, idx, tbl)
	require.NoError(t, err)
	assert.Equal(t, len(buf)+skill.Size, len(out))

	idx2, err := readers.Parse(out, player.Format)
	require.NoError(t, err)
	assert.Len(t, idx2.BlocksWith(player.SkillName), 3)

	assert.True(t, errors.Is(tbl.ReplaceBlock(skill.Start, []byte("junk")), types.ErrEncoding))
	assert.True(t, errors.Is(tbl.ReplaceBlock(skill.Start, nil), types.ErrEncoding))
}

func TestStashChecksumRecomputed(t *testing.T) {
	buf := testutil.StashBytes(2)
	idx, tbl := parse(t, buf, stash.Format)
	item := stash.Items(idx)[0]
	require.NoError(t, tbl.SetScalar(item.Start, "baseName", "Records/Items/Longer/Ring.dbr"))

	out, err := writers.Rewrite(buf, idx, tbl)
	require.NoError(t, err)
	idx2, err := readers.Parse(out, stash.Format)
	require.NoError(t, err, "checksum must match the new contents")
	v, err := idx2.Var(stash.Items(idx2)[0].Start, "baseName")
	require.NoError(t, err)
	assert.Equal(t, "Records/Items/Longer/Ring.dbr", v.Value)
}

func TestRewriterStates(t *testing.T) {
	buf := testutil.PlayerBytes()
	idx, tbl := parse(t, buf, player.Format)

	w := writers.NewRewriter(buf, idx, tbl)
	assert.Equal(t, writers.WS_READY, w.State)
	_, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, writers.WS_PERSIST, w.State)
	w.Done()
	assert.Equal(t, writers.WS_DONE, w.State)

	_, err = w.Bytes()
	assert.Error(t, err)
	assert.Equal(t, writers.WS_ABORTED, w.State)
}

func TestRewriterWriteFile(t *testing.T) {
	path := testutil.CharacterDir(t, testutil.PlayerBytes())
	buf := testutil.PlayerBytes()
	idx, tbl := parse(t, buf, player.Format)
	require.NoError(t, tbl.SetByName("money", 5))

	w := writers.NewRewriter(buf, idx, tbl)
	require.NoError(t, w.WriteFile(path))
	assert.Equal(t, writers.WS_DONE, w.State)

	idx2 := testutil.MustParseFile(t, path, player.Format)
	v, err := idx2.FirstVar("money")
	require.NoError(t, err)
	assert.Equal(t, int32(5), v.Value)
}

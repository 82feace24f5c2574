// Package testutil builds small but complete save files for tests.
package testutil

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tqedit/readers"
	"tqedit/types"
	"tqedit/writers"
)

var (
	UniqueId = uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	ItemGuid = uuid.MustParse("ffeeddcc-bbaa-9988-7766-554433221100")
)

const (
	Name   = "Hero"
	SaveId = "1234567890"
)

var rec = writers.MustRecord

// Player is a player file.  Blocks, in order: main, attributes, stats, skills (one
// block holding two skill blocks), inventory (holding one item).
type Player struct {
	HeaderVersion int
	PlayerVersion int
	Mobile        bool
	Name          string
}

func DefaultPlayer() Player {
	return Player{HeaderVersion: 3, PlayerVersion: 5, Name: Name}
}

func (p Player) Header() []byte {
	return bytes.Join([][]byte{
		rec("headerVersion", types.VT_INT, p.HeaderVersion),
		rec("playerCharacterClass", types.VT_STRING, "Warfare"),
		rec("uniqueId", types.VT_UID, UniqueId),
		rec("streamData", types.VT_STREAM, []byte{1, 2, 3}),
		rec("playerClassTag", types.VT_STRING, "tagCharClass01"),
		rec("playerLevel", types.VT_INT, 10),
		rec("playerVersion", types.VT_INT, p.PlayerVersion),
	}, nil)
}

func (p Player) Main() []byte {
	parts := [][]byte{}
	if p.Mobile {
		parts = append(parts, rec("mySaveId", types.VT_STRING, SaveId), rec("myPlayerName", types.VT_STRING, p.Name))
	} else {
		parts = append(parts, rec("myPlayerName", types.VT_UTF16, p.Name))
	}
	parts = append(parts,
		rec("money", types.VT_INT, 1000),
		rec("temp", types.VT_FLOAT, 1.0),
	)
	return writers.EncodeBlock(parts...)
}

func Attributes() []byte {
	return writers.EncodeBlock(
		rec("temp", types.VT_FLOAT, 50.0),
		rec("temp", types.VT_FLOAT, 51.0),
		rec("temp", types.VT_FLOAT, 52.0),
		rec("temp", types.VT_FLOAT, 300.0),
		rec("temp", types.VT_FLOAT, 301.0),
	)
}

func Stats() []byte {
	return writers.EncodeBlock(
		rec("skillPoints", types.VT_INT, 3),
		rec("modifierPoints", types.VT_INT, 2),
		rec("experiencePoints", types.VT_INT, 12345),
	)
}

func Skill(name string, level int) []byte {
	return writers.EncodeBlock(
		rec("skillName", types.VT_STRING, name),
		rec("skillLevel", types.VT_INT, level),
		rec("skillEnabled", types.VT_INT, 1),
	)
}

func Skills() []byte {
	return writers.EncodeBlock(
		rec("max", types.VT_INT, 2),
		Skill("Records/Skills/Warfare/WarfareMastery.dbr", 1),
		Skill("Records/Skills/Warfare/Onslaught.dbr", 4),
	)
}

func Inventory() []byte {
	return writers.EncodeBlock(
		rec("itemPositionsSavedAsGridCoords", types.VT_INT, 1),
		writers.EncodeBlock(
			rec("baseName", types.VT_STRING, "Records/Items/Sword.dbr"),
			rec("seed", types.VT_INT, 42),
			rec("itemGuid", types.VT_UID, ItemGuid),
		),
	)
}

func (p Player) Bytes() []byte {
	return bytes.Join([][]byte{p.Header(), p.Main(), Attributes(), Stats(), Skills(), Inventory()}, nil)
}

// PlayerBytes is the default desktop player file.
func PlayerBytes() []byte {
	return DefaultPlayer().Bytes()
}

func MobilePlayerBytes() []byte {
	p := DefaultPlayer()
	p.Mobile = true
	return p.Bytes()
}

func StashItem(base string, x float32) []byte {
	return writers.EncodeBlock(
		rec("stackCount", types.VT_INT, 1),
		rec("baseName", types.VT_STRING, base),
		rec("seed", types.VT_INT, 7),
		rec("itemGuid", types.VT_UID, ItemGuid),
		rec("xOffset", types.VT_FLOAT, x),
		rec("yOffset", types.VT_FLOAT, 0.0),
	)
}

// StashBytes is a stash file with two items and a valid checksum.
func StashBytes(version int) []byte {
	body := bytes.Join([][]byte{
		rec("stashVersion", types.VT_INT, version),
		rec("fName", types.VT_STREAM, []byte("winsys.dxb")),
		rec("sackWidth", types.VT_INT, 10),
		rec("sackHeight", types.VT_INT, 18),
		writers.EncodeBlock(
			rec("numItems", types.VT_INT, 2),
			StashItem("Records/Items/Ring.dbr", 0),
			StashItem("Records/Items/Amulet.dbr", 2),
		),
	}, nil)
	return append(body, writers.Uint32LE(crc32.ChecksumIEEE(body))...)
}

// CharacterDir writes a desktop character directory "_<name>" under a fresh temp
// dir, with a player file, a stash and one unrelated file.  It returns the player
// file's path.
func CharacterDir(t *testing.T, player []byte) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "_"+Name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "Player.chr")
	require.NoError(t, os.WriteFile(path, player, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "winsys.dxb"), StashBytes(2), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.txt"), []byte("x=1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup_old.chr"), []byte("old"), 0644))
	return path
}

// MustParseFile reads and parses path, failing the test on any error.
func MustParseFile(t *testing.T, path string, f *readers.Format) *types.Index {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	idx, err := readers.Parse(buf, f)
	require.NoError(t, err)
	return idx
}

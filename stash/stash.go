// Package stash describes the per-character stash file, which unlike the player file
// ends with a CRC-32 of its contents.
package stash

import (
	"fmt"

	"tqedit/readers"
	"tqedit/tables"
	"tqedit/types"
)

const BT_ITEM types.BlockType = types.BT_FORMAT + iota

const FileName = "winsys.dxb"

var Format = &readers.Format{
	Name:            "stash",
	MinSize:         readers.ChecksumLen + 16,
	Checksum:        true,
	InitialPlatform: types.PLATFORM_WINDOWS,
	Lookup:          tables.StashVar,
	FilterBlockType: func(bt types.BlockType, name string) types.BlockType {
		if bt == types.BT_BODY && name == "stackCount" {
			return BT_ITEM
		}
		return bt
	},
	ReadHeader: func(h *types.HeaderInfo, v *types.Variable) {
		if v.Name == "stashVersion" {
			h.Version = int(v.Value.(int32))
		}
	},
	ValidateHeader: func(h types.HeaderInfo) error {
		if !tables.StashVersions[h.Version] {
			return types.NewError(types.KindIncompatibleVersion, "stash", -1,
				fmt.Sprintf("unsupported stashVersion %v", h.Version))
		}
		return nil
	},
}

// Items lists the item blocks in file order.
func Items(idx *types.Index) []*types.Block {
	out := []*types.Block{}
	for _, b := range idx.BlocksWith("stackCount") {
		if b.Type == BT_ITEM {
			out = append(out, b)
		}
	}
	return out
}

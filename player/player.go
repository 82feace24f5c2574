// Package player knows the specifics of Player.chr: which blocks are which, the
// positional attribute variables, the mobile sentinel and the supported versions.
package player

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"tqedit/readers"
	"tqedit/tables"
	"tqedit/types"
)

const (
	BT_MAIN types.BlockType = types.BT_FORMAT + iota
	BT_ATTRIBUTES
	BT_STATS
	BT_SKILL
	BT_ITEM
)

func BlockTypeName(bt types.BlockType) string {
	switch bt {
	case types.BT_FILE:
		return "header"
	case types.BT_BODY:
		return "body"
	case BT_MAIN:
		return "main"
	case BT_ATTRIBUTES:
		return "attributes"
	case BT_STATS:
		return "stats"
	case BT_SKILL:
		return "skill"
	case BT_ITEM:
		return "item"
	}
	return fmt.Sprint(bt)
}

// Well-known variable names.
const (
	SaveId      = "mySaveId"
	PlayerName  = "myPlayerName"
	SkillName   = "skillName"
	SkillLevel  = "skillLevel"
	SkillPoints = "skillPoints"
	SkillMax    = "max"
	temp        = "temp"
)

// Files shorter than this can't hold a header.
const min_size = 50

// Format is the tokenizer configuration for player files.
var Format = &readers.Format{
	Name:                    "player",
	MinSize:                 min_size,
	InitialPlatform:         types.PLATFORM_WINDOWS,
	Lookup:                  tables.PlayerVar,
	PreprocessVariable:      preprocess_variable,
	FilterBlockType:         filter_block_type,
	PrepareSpecialVariable:  prepare_special_variable,
	ProcessSpecialVariables: process_special_variables,
	ReadHeader:              read_header,
	ValidateHeader:          validate_header,
}

// The mobile build is the only one that writes a save id into the main block.
func preprocess_variable(p *readers.Parser, name string, keyOffset int, bt types.BlockType) {
	if name == SaveId && bt == BT_MAIN {
		p.SetPlatform(types.PLATFORM_MOBILE)
	}
}

func filter_block_type(bt types.BlockType, name string) types.BlockType {
	if bt != types.BT_BODY {
		return bt
	}
	switch name {
	case SaveId, PlayerName:
		return BT_MAIN
	case temp:
		// attribute temps are always in a block of their own; the difficulty temp sits
		// at the end of the main block, which is retyped by then
		return BT_ATTRIBUTES
	case SkillPoints:
		return BT_STATS
	case SkillName:
		return BT_SKILL
	case "baseName":
		return BT_ITEM
	}
	return bt
}

func prepare_special_variable(p *readers.Parser, v *types.Variable) {
	if v.Name == temp {
		p.PutSpecial(temp, v)
	}
}

// process_special_variables names the positional temps of a block.
func process_special_variables(p *readers.Parser, b *types.Block) {
	temps := p.Special(temp)
	switch len(temps) {
	case 0:
		return
	case 1:
		temps[0].Alias = tables.Difficulty
	case len(tables.Attributes):
		for i, v := range temps {
			v.Alias = tables.Attributes[i]
		}
	default:
		logrus.WithFields(logrus.Fields{"block": b.Start, "count": len(temps)}).Warn("unexpected number of temp variables")
		return
	}
	for _, v := range temps {
		logrus.WithFields(logrus.Fields{"block": b.Start, "var": v.String()}).Debug("special variable")
	}
}

func read_header(h *types.HeaderInfo, v *types.Variable) {
	switch v.Name {
	case "headerVersion":
		h.Version = int(v.Value.(int32))
	case "playerVersion":
		h.PlayerVersion = int(v.Value.(int32))
	case "playerLevel":
		h.PlayerLevel = int(v.Value.(int32))
	case "playerCharacterClass":
		h.CharacterClass = v.Value.(string)
	case "playerClassTag":
		h.ClassTag = v.Value.(string)
	}
}

func validate_header(h types.HeaderInfo) error {
	if _, ok := tables.PlayerHeaderVersions[h.Version]; !ok {
		return types.NewError(types.KindIncompatibleVersion, "player", -1,
			fmt.Sprintf("headerVersion must be 2 or 3, got %v", h.Version))
	}
	if h.PlayerVersion != tables.PlayerVersion {
		return types.NewError(types.KindIncompatibleVersion, "player", -1,
			fmt.Sprintf("playerVersion must be %v, got %v", tables.PlayerVersion, h.PlayerVersion))
	}
	return nil
}

// GameName is the game edition a header version belongs to.
func GameName(h types.HeaderInfo) string {
	return tables.PlayerHeaderVersions[h.Version]
}

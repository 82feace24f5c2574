package tables

// Variable tables live in their own file because they are large.
//
// Every variable name a file may contain is listed here with its wire type.  A name
// missing from the table of the detected platform is a fatal parse error, so when the
// game grows a new variable it has to be added here first.

import "tqedit/types"

// Player file variables as written by the desktop build.
var player_windows = map[string]types.VarType{
	// header (root level)
	"headerVersion":        types.VT_INT,
	"playerCharacterClass": types.VT_STRING,
	"uniqueId":             types.VT_UID,
	"streamData":           types.VT_STREAM,
	"playerClassTag":       types.VT_STRING,
	"playerLevel":          types.VT_INT,
	"playerVersion":        types.VT_INT,

	// main block
	"myPlayerName":             types.VT_UTF16,
	"isInMainQuest":            types.VT_INT,
	"disableAutoPopV2":         types.VT_INT,
	"numTutorialPagesV2":       types.VT_INT,
	"currentPageV2":            types.VT_INT,
	"teleportUIDsSize":         types.VT_INT,
	"teleportUID":              types.VT_UID,
	"versionCheckTeleportInfo": types.VT_INT,
	"compassState":             types.VT_INT,
	"skillWindowShowHelp":      types.VT_INT,
	"money":                    types.VT_INT,
	"hasBeenInGame":            types.VT_INT,
	"uiState":                  types.VT_STREAM,

	// "temp" is positional: five in the attributes block (str, dex, int, life, mana),
	// one at the end of the main block (difficulty).
	"temp": types.VT_FLOAT,

	// stats block
	"skillPoints":                   types.VT_INT,
	"modifierPoints":                types.VT_INT,
	"experiencePoints":              types.VT_INT,
	"currentStats.charLevel":        types.VT_INT,
	"currentStats.experiencePoints": types.VT_INT,
	"playTimeInSeconds":             types.VT_INT,
	"numberOfDeaths":                types.VT_INT,
	"numberOfKills":                 types.VT_INT,
	"greatestMonsterKilledName":     types.VT_STRING,

	// skills
	"max":             types.VT_INT,
	"skillName":       types.VT_STRING,
	"skillLevel":      types.VT_INT,
	"skillEnabled":    types.VT_INT,
	"skillActive":     types.VT_INT,
	"skillSubLevel":   types.VT_INT,
	"skillTransition": types.VT_INT,

	// inventory
	"itemPositionsSavedAsGridCoords": types.VT_INT,
	"numberOfSacks":                  types.VT_INT,
	"currentlyFocusedSackNumber":     types.VT_INT,
	"tempBool":                       types.VT_INT,
	"size":                           types.VT_INT,
	"baseName":                       types.VT_STRING,
	"prefixName":                     types.VT_STRING,
	"suffixName":                     types.VT_STRING,
	"relicName":                      types.VT_STRING,
	"relicBonus":                     types.VT_STRING,
	"seed":                           types.VT_INT,
	"var1":                           types.VT_INT,
	"pointX":                         types.VT_INT,
	"pointY":                         types.VT_INT,
	"itemGuid":                       types.VT_UID,
}

// Differences on the mobile build.  Names mapped to VT_UNKNOWN don't exist there.
var player_mobile_diff = map[string]types.VarType{
	"mySaveId":     types.VT_STRING,
	"myPlayerName": types.VT_STRING,
}

// Stash files are the same on every platform.
var stash_all = map[string]types.VarType{
	"stashVersion": types.VT_INT,
	"fName":        types.VT_STREAM,
	"sackWidth":    types.VT_INT,
	"sackHeight":   types.VT_INT,
	"numItems":     types.VT_INT,
	"stackCount":   types.VT_INT,
	"baseName":     types.VT_STRING,
	"prefixName":   types.VT_STRING,
	"suffixName":   types.VT_STRING,
	"relicName":    types.VT_STRING,
	"relicBonus":   types.VT_STRING,
	"seed":         types.VT_INT,
	"var1":         types.VT_INT,
	"xOffset":      types.VT_FLOAT,
	"yOffset":      types.VT_FLOAT,
	"itemGuid":     types.VT_UID,
}

var player = map[types.Platform]map[string]types.VarType{}

func init() {
	player[types.PLATFORM_WINDOWS] = player_windows

	mobile := map[string]types.VarType{}
	for k, v := range player_windows {
		mobile[k] = v
	}
	for k, v := range player_mobile_diff {
		if v == types.VT_UNKNOWN {
			delete(mobile, k)
			continue
		}
		mobile[k] = v
	}
	player[types.PLATFORM_MOBILE] = mobile
}

// PlayerVar resolves a player file variable for a platform.  An undefined platform
// is treated as desktop.
func PlayerVar(p types.Platform, name string) (types.VarType, bool) {
	if p == types.PLATFORM_UNDEFINED {
		p = types.PLATFORM_WINDOWS
	}
	t, ok := player[p][name]
	return t, ok
}

func StashVar(p types.Platform, name string) (types.VarType, bool) {
	t, ok := stash_all[name]
	return t, ok
}

// PlatformOnly lists the player variables that exist on p but not on other.
func PlatformOnly(p types.Platform, other types.Platform) []string {
	out := []string{}
	for k := range player[p] {
		if _, ok := player[other][k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Attribute aliases for the five "temp" variables of the attributes block, in file order.
var Attributes = []string{"str", "dex", "int", "life", "mana"}

const Difficulty = "difficulty"

// Supported versions.
var (
	PlayerHeaderVersions = map[int]string{2: "TQIT", 3: "TQAE"}
	PlayerVersion        = 5
	StashVersions        = map[int]bool{1: true, 2: true}
)

package types

import (
	"fmt"
	"strings"
)

// Reserved keys.  A block opens with BeginBlock followed by its full encoded size,
// and closes with EndBlock followed by EndMarker.
const (
	BeginBlock = "begin_block"
	EndBlock   = "end_block"
	EndMarker  = 0xDEADC0DE

	UIDSize = 16
)

// VarType is the wire type of a variable's value.
type VarType int

const (
	VT_UNKNOWN VarType = iota
	VT_INT
	VT_FLOAT
	VT_STRING
	VT_UTF16
	VT_UID
	VT_STREAM
)

func (t VarType) String() string {
	switch t {
	case VT_INT:
		return "Integer"
	case VT_FLOAT:
		return "Float"
	case VT_STRING:
		return "String"
	case VT_UTF16:
		return "UTF16String"
	case VT_UID:
		return "UID"
	case VT_STREAM:
		return "Stream"
	}
	return "Unknown"
}

// BlockType tags a region.  Values below BT_FORMAT are shared by every format;
// format packages define their own from BT_FORMAT upwards.
type BlockType int

const (
	BT_FILE BlockType = iota // the unframed root
	BT_BODY                  // any framed block nobody has retyped yet

	BT_FORMAT = 16
)

// Platform is the variant of the game that wrote a file.
type Platform int

const (
	PLATFORM_UNDEFINED Platform = iota
	PLATFORM_WINDOWS
	PLATFORM_MOBILE
)

func (p Platform) String() string {
	return []string{"undefined", "windows", "mobile"}[p]
}

func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "windows", "desktop", "pc":
		return PLATFORM_WINDOWS, nil
	case "mobile", "android", "ios":
		return PLATFORM_MOBILE, nil
	}
	return PLATFORM_UNDEFINED, NewError(KindOther, "platform", -1, fmt.Sprintf("unknown platform %q", s))
}

// Variable is one decoded key/value record.
// Length covers the whole record: key prefix, key, value.
type Variable struct {
	Name        string
	Alias       string
	Type        VarType
	Value       any
	KeyOffset   int
	ValueOffset int
	Length      int
	BlockOffset int
}

// Matches reports whether n names this variable, either directly or via its alias.
func (v *Variable) Matches(n string) bool {
	return v.Name == n || (v.Alias != "" && v.Alias == n)
}

func (v *Variable) String() string {
	name := v.Name
	if v.Alias != "" {
		name += "(" + v.Alias + ")"
	}
	return fmt.Sprintf("%v@%v %v=%v", name, v.KeyOffset, v.Type, v.Value)
}

// Item is one entry of a block in file order: exactly one of Var and Block is set.
type Item struct {
	Var   *Variable
	Block *Block
}

// Block is one nested region.  Start and End are inclusive offsets into the
// original buffer, so End-Start+1 == Size.
type Block struct {
	Start  int
	End    int
	Size   int
	Type   BlockType
	Parent *Block
	Items  []Item
	Vars   VarList
}

// Framed is false only for the root, which has no begin/end records.
func (b *Block) Framed() bool {
	return b.Parent != nil
}

func (b *Block) Children() []*Block {
	out := []*Block{}
	for _, it := range b.Items {
		if it.Block != nil {
			out = append(out, it.Block)
		}
	}
	return out
}

// Depth is 0 for the root.
func (b *Block) Depth() int {
	d := 0
	for p := b.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Ancestors lists enclosing blocks, innermost first, root last.
func (b *Block) Ancestors() []*Block {
	out := []*Block{}
	for p := b.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// Find returns the variables of this block matching name or alias, in file order.
func (b *Block) Find(name string) []*Variable {
	out := []*Variable{}
	for _, v := range b.Vars.All() {
		if v.Matches(name) {
			out = append(out, v)
		}
	}
	return out
}

// VarList is an ordered multimap.  Repeated names are positionally significant, so
// insertion order is kept both globally and per name.
type VarList struct {
	order  []*Variable
	byName map[string][]*Variable
}

func (l *VarList) Put(v *Variable) {
	if l.byName == nil {
		l.byName = map[string][]*Variable{}
	}
	l.order = append(l.order, v)
	l.byName[v.Name] = append(l.byName[v.Name], v)
}

func (l *VarList) Get(name string) []*Variable {
	return l.byName[name]
}

// First returns nil if there is no variable called name.
func (l *VarList) First(name string) *Variable {
	vs := l.byName[name]
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

func (l *VarList) All() []*Variable {
	return l.order
}

func (l *VarList) Len() int {
	return len(l.order)
}

// HeaderInfo is the summary of the root-level fields of a file.
type HeaderInfo struct {
	Version        int // headerVersion for players, stashVersion for stashes
	PlayerVersion  int
	PlayerLevel    int
	CharacterClass string
	ClassTag       string
	Platform       Platform
}

// State is the edit state of a block or variable in an overlay.
type State int

const (
	ST_UNMODIFIED State = iota
	ST_REPLACED
	ST_REMOVED
)

func (s State) String() string {
	return []string{"unmodified", "replaced", "removed"}[s]
}

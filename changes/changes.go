// Package changes holds pending edits to a parsed save file without touching the
// file's bytes or its index.  The rewrite engine consults it at write time.
package changes

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tqedit/types"
	"tqedit/writers"
)

type block_change struct {
	state   types.State
	payload []byte
}

type var_change struct {
	state  types.State
	value  any
	length int // encoded record length under this change
}

type insert_key struct {
	block  int
	before int
}

// Table is the overlay.  It is safe for concurrent use; edits are applied one at a
// time in the order the lock hands them out.
type Table struct {
	mu sync.RWMutex

	idx      *types.Index
	blocks   map[int]block_change
	vars     map[int]var_change
	inserted map[insert_key][]*types.Variable
	delta    map[int]int // projected size change per block start
	ops      []Op
}

func New(idx *types.Index) *Table {
	t := &Table{idx: idx}
	t.reset()
	return t
}

func (t *Table) reset() {
	t.blocks = map[int]block_change{}
	t.vars = map[int]var_change{}
	t.inserted = map[insert_key][]*types.Variable{}
	t.delta = map[int]int{}
	t.ops = nil
}

// Reset throws away every pending edit.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// Index is the read-only index this table applies to.
func (t *Table) Index() *types.Index {
	return t.idx
}

// Empty reports whether there is nothing to write.
func (t *Table) Empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ops) == 0
}

func (t *Table) block(start int) (*types.Block, error) {
	b, ok := t.idx.Blocks[start]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "changes", start, "no block at offset")
	}
	return b, nil
}

// writable fails if b or anything around it was removed or replaced: edits inside
// such a block could never reach the output.
func (t *Table) writable(b *types.Block) error {
	for p := b; p != nil; p = p.Parent {
		if c, ok := t.blocks[p.Start]; ok && c.state != types.ST_UNMODIFIED {
			return types.NewError(types.KindOther, "changes", b.Start,
				fmt.Sprintf("block at %v is %v", p.Start, c.state))
		}
	}
	return nil
}

// contribution is how many bytes block b currently adds to its parent.
func (t *Table) contribution(b *types.Block) int {
	c := t.blocks[b.Start]
	switch c.state {
	case types.ST_REMOVED:
		return 0
	case types.ST_REPLACED:
		return len(c.payload)
	}
	return b.Size + t.delta[b.Start]
}

// grow adds d to the projected size of b and every block around it.
func (t *Table) grow(b *types.Block, d int) {
	if d == 0 {
		return
	}
	for p := b; p != nil; p = p.Parent {
		t.delta[p.Start] += d
	}
}

// ProjectedSize is what the size field of the block at start will hold after a
// rewrite: 0 for a removed block, the payload length for a replaced one.
func (t *Table) ProjectedSize(start int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.idx.Blocks[start]
	if !ok {
		return 0
	}
	return t.contribution(b)
}

func (t *Table) var_length(v *types.Variable) int {
	if c, ok := t.vars[v.KeyOffset]; ok {
		return c.length
	}
	return v.Length
}

// SetScalar overrides the value of the variable called (or aliased) name in the
// block at blockStart.  The value must be encodable as the variable's type.
func (t *Table) SetScalar(blockStart int, name string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set_scalar(blockStart, name, value)
}

func (t *Table) set_scalar(blockStart int, name string, value any) error {
	b, err := t.block(blockStart)
	if err != nil {
		return err
	}
	if err := t.writable(b); err != nil {
		return err
	}
	v, err := t.idx.Var(blockStart, name)
	if err != nil {
		if ins := t.find_inserted(blockStart, name); ins != nil {
			return t.set_inserted(b, ins, value)
		}
		return err
	}
	if c, ok := t.vars[v.KeyOffset]; ok && c.state == types.ST_REMOVED {
		// re-encoded records live on as insertions under the same name
		if ins := t.find_inserted(blockStart, v.Name); ins != nil {
			return t.set_inserted(b, ins, value)
		}
		return types.NewError(types.KindOther, "changes", v.KeyOffset, name+" was removed")
	}

	norm, err := writers.Normalize(value, v.Type)
	if err != nil {
		return err
	}
	length, err := writers.RecordLen(v.Name, v.Type, norm)
	if err != nil {
		return err
	}

	t.grow(b, length-t.var_length(v))
	t.vars[v.KeyOffset] = var_change{state: types.ST_REPLACED, value: norm, length: length}
	t.ops = append(t.ops, Op{Kind: OP_SET, Block: blockStart, Name: name, Type: v.Type, Value: norm})
	logrus.WithFields(logrus.Fields{"block": blockStart, "name": name, "value": norm}).Debug("set")
	return nil
}

func (t *Table) set_inserted(b *types.Block, v *types.Variable, value any) error {
	norm, err := writers.Normalize(value, v.Type)
	if err != nil {
		return err
	}
	oldLen, _ := writers.RecordLen(v.Name, v.Type, v.Value)
	newLen, err := writers.RecordLen(v.Name, v.Type, norm)
	if err != nil {
		return err
	}
	t.grow(b, newLen-oldLen)
	v.Value = norm
	t.ops = append(t.ops, Op{Kind: OP_SET, Block: b.Start, Name: v.Name, Type: v.Type, Value: norm})
	return nil
}

// anchors lists the insertion points of b in output order.
func anchors(b *types.Block) []int {
	out := make([]int, 0, len(b.Items)+1)
	for _, it := range b.Items {
		if it.Block != nil {
			out = append(out, it.Block.Start)
		} else {
			out = append(out, it.Var.KeyOffset)
		}
	}
	return append(out, -1)
}

// find_inserted returns the first record called name inserted into the block, in
// the order they will be written.
func (t *Table) find_inserted(blockStart int, name string) *types.Variable {
	b, err := t.block(blockStart)
	if err != nil {
		return nil
	}
	for _, at := range anchors(b) {
		for _, v := range t.inserted[insert_key{blockStart, at}] {
			if v.Name == name {
				return v
			}
		}
	}
	return nil
}

// Scalar returns the pending value for name in the block at blockStart.  It is sparse:
// ok is false when nothing overrides the original, and callers fall back to the index.
func (t *Table) Scalar(blockStart int, name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ins := t.find_inserted(blockStart, name); ins != nil {
		return ins.Value, true
	}
	v, err := t.idx.Var(blockStart, name)
	if err != nil {
		return nil, false
	}
	c, ok := t.vars[v.KeyOffset]
	if !ok || c.state != types.ST_REPLACED {
		return nil, false
	}
	return c.value, true
}

// Removed reports whether the variable called name in the block at blockStart is gone.
func (t *Table) Removed(blockStart int, name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, err := t.idx.Var(blockStart, name)
	if err != nil {
		return false
	}
	return t.vars[v.KeyOffset].state == types.ST_REMOVED
}

// SetByName sets the first variable called name anywhere in the file.
func (t *Table) SetByName(name string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.idx.NthBlockWith(name, 0)
	if b == nil {
		return types.NewError(types.KindNotFound, "changes", -1, "no variable "+name)
	}
	return t.set_scalar(b.Start, name, value)
}

// RemoveBlock marks the block at start for deletion.
func (t *Table) RemoveBlock(start int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := t.block(start)
	if err != nil {
		return err
	}
	if !b.Framed() {
		return types.NewError(types.KindOther, "changes", start, "can't remove the root")
	}
	if c, ok := t.blocks[start]; ok && c.state == types.ST_REMOVED {
		return nil
	}
	if err := t.writable(b.Parent); err != nil {
		return err
	}
	t.grow(b.Parent, -t.contribution(b))
	t.blocks[start] = block_change{state: types.ST_REMOVED}
	t.ops = append(t.ops, Op{Kind: OP_REMOVE_BLOCK, Block: start})
	logrus.WithField("block", start).Debug("block removed")
	return nil
}

// ReplaceBlock substitutes raw for the block at start.  raw must be one or more
// complete blocks; cloning a block is done by replacing it with itself plus the copy.
func (t *Table) ReplaceBlock(start int, raw []byte) error {
	if err := writers.CheckBlocks(raw); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := t.block(start)
	if err != nil {
		return err
	}
	if !b.Framed() {
		return types.NewError(types.KindOther, "changes", start, "can't replace the root")
	}
	if err := t.writable(b.Parent); err != nil {
		return err
	}
	payload := append([]byte{}, raw...)
	t.grow(b.Parent, len(payload)-t.contribution(b))
	t.blocks[start] = block_change{state: types.ST_REPLACED, payload: payload}
	t.ops = append(t.ops, Op{Kind: OP_REPLACE_BLOCK, Block: start, Payload: payload})
	return nil
}

// RemoveVariable drops a variable from the output.
func (t *Table) RemoveVariable(blockStart int, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := t.block(blockStart)
	if err != nil {
		return err
	}
	if err := t.writable(b); err != nil {
		return err
	}
	v, err := t.idx.Var(blockStart, name)
	if err != nil {
		return err
	}
	if t.vars[v.KeyOffset].state == types.ST_REMOVED {
		return nil
	}
	t.grow(b, -t.var_length(v))
	t.vars[v.KeyOffset] = var_change{state: types.ST_REMOVED}
	t.ops = append(t.ops, Op{Kind: OP_REMOVE_VAR, Block: blockStart, Name: name})
	return nil
}

// First, as the anchor of InsertVariable, puts the new record ahead of everything
// already in the block, child blocks included.
const First = "<first>"

// InsertVariable adds a new record to the block at blockStart, just before the
// variable called before, or at the end of the block when before is "".
func (t *Table) InsertVariable(blockStart int, before string, name string, vt types.VarType, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := t.block(blockStart)
	if err != nil {
		return err
	}
	if err := t.writable(b); err != nil {
		return err
	}
	if name == "" || name == types.BeginBlock || name == types.EndBlock {
		return types.NewError(types.KindEncoding, "changes", blockStart, fmt.Sprintf("bad variable name %q", name))
	}
	at := -1
	if before == First {
		at = anchors(b)[0]
	} else if before != "" {
		v, err := t.idx.Var(blockStart, before)
		if err != nil {
			return err
		}
		at = v.KeyOffset
	}
	norm, err := writers.Normalize(value, vt)
	if err != nil {
		return err
	}
	length, err := writers.RecordLen(name, vt, norm)
	if err != nil {
		return err
	}

	k := insert_key{blockStart, at}
	t.inserted[k] = append(t.inserted[k], &types.Variable{
		Name: name, Type: vt, Value: norm, KeyOffset: -1, ValueOffset: -1, Length: length, BlockOffset: blockStart,
	})
	t.grow(b, length)
	t.ops = append(t.ops, Op{Kind: OP_INSERT_VAR, Block: blockStart, Before: before, Name: name, Type: vt, Value: norm})
	return nil
}

// BlockChange implements writers.Overlay.
func (t *Table) BlockChange(start int) (types.State, []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := t.blocks[start]
	return c.state, c.payload
}

// VarChange implements writers.Overlay.
func (t *Table) VarChange(keyOffset int) (types.State, any) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := t.vars[keyOffset]
	return c.state, c.value
}

// Inserted implements writers.Overlay.
func (t *Table) Inserted(blockStart int, before int) []*types.Variable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inserted[insert_key{blockStart, before}]
}

package changes

import (
	"fmt"

	"github.com/pkg/errors"

	"tqedit/types"
)

type OpKind int

const (
	OP_SET OpKind = iota
	OP_REMOVE_BLOCK
	OP_REPLACE_BLOCK
	OP_REMOVE_VAR
	OP_INSERT_VAR
)

func (k OpKind) String() string {
	return []string{"set", "remove-block", "replace-block", "remove-var", "insert-var"}[k]
}

// Op is one recorded edit.  A table's ops replayed onto a fresh table over the same
// index reproduce it exactly.
type Op struct {
	Kind    OpKind
	Block   int
	Name    string
	Before  string
	Type    types.VarType
	Value   any
	Payload []byte
}

func (o Op) String() string {
	switch o.Kind {
	case OP_SET:
		return fmt.Sprintf("set %v@%v = %v", o.Name, o.Block, o.Value)
	case OP_REMOVE_BLOCK:
		return fmt.Sprintf("remove block %v", o.Block)
	case OP_REPLACE_BLOCK:
		return fmt.Sprintf("replace block %v (%v bytes)", o.Block, len(o.Payload))
	case OP_REMOVE_VAR:
		return fmt.Sprintf("remove %v@%v", o.Name, o.Block)
	case OP_INSERT_VAR:
		return fmt.Sprintf("insert %v@%v before %q = %v", o.Name, o.Block, o.Before, o.Value)
	}
	return "?"
}

// Ops returns a copy of the edit log, oldest first.
func (t *Table) Ops() []Op {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Op{}, t.ops...)
}

// Apply performs one op.
func (t *Table) Apply(o Op) error {
	switch o.Kind {
	case OP_SET:
		return t.SetScalar(o.Block, o.Name, o.Value)
	case OP_REMOVE_BLOCK:
		return t.RemoveBlock(o.Block)
	case OP_REPLACE_BLOCK:
		return t.ReplaceBlock(o.Block, o.Payload)
	case OP_REMOVE_VAR:
		return t.RemoveVariable(o.Block, o.Name)
	case OP_INSERT_VAR:
		return t.InsertVariable(o.Block, o.Before, o.Name, o.Type, o.Value)
	}
	return errors.Errorf("unknown op kind %v", o.Kind)
}

// Replay applies ops in order, stopping at the first failure.
func (t *Table) Replay(ops []Op) error {
	for i, o := range ops {
		if err := t.Apply(o); err != nil {
			return errors.Wrapf(err, "replaying op %v (%v)", i, o)
		}
	}
	return nil
}

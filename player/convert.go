package player

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"tqedit/changes"
	"tqedit/tables"
	"tqedit/types"
)

// ref is the name that picks v out of its block unambiguously.
func ref(v *types.Variable) string {
	if v.Alias != "" {
		return v.Alias
	}
	return v.Name
}

func current(t *changes.Table, v *types.Variable) any {
	if val, ok := t.Scalar(v.BlockOffset, ref(v)); ok {
		return val
	}
	return v.Value
}

func convert_value(v any, from types.VarType, to types.VarType) (any, error) {
	text := func(t types.VarType) bool { return t == types.VT_STRING || t == types.VT_UTF16 }
	if from == to || (text(from) && text(to)) {
		return v, nil
	}
	return nil, types.NewError(types.KindEncoding, "convert", -1, fmt.Sprintf("can't convert %v to %v", from, to))
}

// Convert records in t everything needed to turn the loaded file into one for
// target: variables the target doesn't have are removed, variables it encodes
// differently are re-encoded in place, and a mobile target gets saveId.
func Convert(t *changes.Table, target types.Platform, saveId string) error {
	idx := t.Index()
	from := idx.Header.Platform
	if target == types.PLATFORM_UNDEFINED || target == from {
		return types.NewError(types.KindOther, "convert", -1, fmt.Sprintf("can't convert a %v file to %v", from, target))
	}
	log := logrus.WithFields(logrus.Fields{"from": from, "to": target})

	// The sentinel goes in first: it has to precede everything it changes the type of.
	if target == types.PLATFORM_MOBILE {
		main := idx.NthBlockWith(PlayerName, 0)
		if main == nil {
			return types.NewError(types.KindNotFound, "convert", -1, "no main block")
		}
		if err := t.InsertVariable(main.Start, changes.First, SaveId, types.VT_STRING, saveId); err != nil {
			return err
		}
	}

	err := idx.Walk(func(b *types.Block) error {
		for _, v := range b.Vars.All() {
			if t.Removed(b.Start, ref(v)) {
				continue
			}
			tt, ok := tables.PlayerVar(target, v.Name)
			if !ok {
				log.WithField("var", v.Name).Debug("dropping")
				if err := t.RemoveVariable(b.Start, ref(v)); err != nil {
					return err
				}
				continue
			}
			if tt == v.Type {
				continue
			}
			val, err := convert_value(current(t, v), v.Type, tt)
			if err != nil {
				return err
			}
			log.WithField("var", v.Name).Debug("re-encoding")
			if err := t.RemoveVariable(b.Start, ref(v)); err != nil {
				return err
			}
			// anchored on the removed record, so it lands where the old one was
			if err := t.InsertVariable(b.Start, ref(v), v.Name, tt, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("conversion prepared")
	return nil
}

package main

import (
	"fmt"
	"strings"

	"tqedit/player"
	"tqedit/session"
	"tqedit/stash"
	"tqedit/types"
	"tqedit/utils"
)

func block_name(s *session.Session, bt types.BlockType) string {
	if s.Format == stash.Format {
		if bt == stash.BT_ITEM {
			return "item"
		}
		return fmt.Sprint(bt)
	}
	return player.BlockTypeName(bt)
}

// dump lists every block and variable in file order, pending edits included.  Each
// line starts with the offset it was read from.
func dump(s *session.Session) []string {
	out := []string{}
	h := s.Index.Header
	out = append(out, fmt.Sprintf("%v file, %v bytes, platform %v", s.Format.Name, len(s.Bytes()), h.Platform))
	if s.Format == player.Format {
		out = append(out, fmt.Sprintf("game %v, level %v, class %v", player.GameName(h), h.PlayerLevel, h.ClassTag))
	}

	s.Index.Walk(func(b *types.Block) error {
		for _, a := range b.Ancestors() {
			if st, _ := s.Changes.BlockChange(a.Start); st != types.ST_UNMODIFIED {
				return nil
			}
		}
		indent := strings.Repeat("   ", b.Depth())
		if b.Framed() {
			out = append(out, fmt.Sprintf("[%v] %vblock %v-%v (%v)", b.Start, indent, b.Start, b.End, block_name(s, b.Type)))
		}
		if st, _ := s.Changes.BlockChange(b.Start); st != types.ST_UNMODIFIED {
			out = append(out, fmt.Sprintf("[%v] %v   (%v)", b.Start, indent, st))
			return nil
		}
		for _, v := range b.Vars.All() {
			name := v.Name
			if v.Alias != "" {
				name = v.Alias
			}
			val := v.Value
			switch st, changed := s.Changes.VarChange(v.KeyOffset); st {
			case types.ST_REMOVED:
				out = append(out, fmt.Sprintf("[%v] %v   %v: (removed)", v.KeyOffset, indent, name))
				continue
			case types.ST_REPLACED:
				val = changed
			}
			out = append(out, fmt.Sprintf("[%v] %v   %v: %v", v.KeyOffset, indent, name, utils.FormatValue(val)))
		}
		return nil
	})

	if ops := s.Changes.Ops(); len(ops) > 0 {
		out = append(out, "", "Pending:")
		for _, o := range ops {
			out = append(out, "   "+o.String())
		}
	}
	return out
}

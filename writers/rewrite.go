package writers

import (
	"bytes"
	"fmt"
	"hash/crc32"

	"github.com/sirupsen/logrus"

	"tqedit/readers"
	"tqedit/types"
)

// Overlay is the view of pending edits the rewrite engine needs.  changes.Table
// implements it.
type Overlay interface {
	// BlockChange reports whether the block starting at start is removed or replaced.
	// payload is only meaningful for ST_REPLACED.
	BlockChange(start int) (state types.State, payload []byte)
	// VarChange does the same for the variable whose key is at keyOffset.
	VarChange(keyOffset int) (state types.State, value any)
	// Inserted lists new variables to emit in block blockStart just before the item
	// at offset before; before == -1 means just before the block's end.
	Inserted(blockStart int, before int) []*types.Variable
}

// Sizer is optionally implemented by overlays that keep track of what each block's
// size should become.  The rewrite engine cross-checks against it.
type Sizer interface {
	ProjectedSize(start int) int
}

// NoChanges is the empty overlay: rewriting with it reproduces the original.
var NoChanges Overlay = no_changes{}

type no_changes struct{}

func (no_changes) BlockChange(int) (types.State, []byte) { return types.ST_UNMODIFIED, nil }
func (no_changes) VarChange(int) (types.State, any)      { return types.ST_UNMODIFIED, nil }
func (no_changes) Inserted(int, int) []*types.Variable   { return nil }

type WriteState int

const (
	WS_READY WriteState = iota
	WS_APPLY_OVERLAY
	WS_RECOMPUTE_SIZES
	WS_RECOMPUTE_CHECKSUM
	WS_PERSIST
	WS_DONE
	WS_ABORTED
)

func (s WriteState) String() string {
	return []string{"Ready", "ApplyOverlay", "RecomputeSizes", "RecomputeChecksum", "PersistAtomic", "Done", "Aborted"}[s]
}

// frame remembers where an emitted block landed so its size field can be filled in
// once everything inside it is known.
type frame struct {
	block  *types.Block
	start  int
	sizeAt int
	end    int
}

// Rewriter merges an original buffer, its index and an overlay into new file bytes.
// It is single use.
type Rewriter struct {
	State WriteState

	buf     []byte
	idx     *types.Index
	overlay Overlay
	out     bytes.Buffer
	frames  []frame
	log     *logrus.Entry
}

func NewRewriter(buf []byte, idx *types.Index, overlay Overlay) *Rewriter {
	if overlay == nil {
		overlay = NoChanges
	}
	return &Rewriter{
		buf:     buf,
		idx:     idx,
		overlay: overlay,
		log:     logrus.WithField("component", "rewrite"),
	}
}

// Rewrite is a shortcut for NewRewriter(...).Bytes().
func Rewrite(buf []byte, idx *types.Index, overlay Overlay) ([]byte, error) {
	return NewRewriter(buf, idx, overlay).Bytes()
}

func (w *Rewriter) abort(err error) ([]byte, error) {
	w.State = WS_ABORTED
	w.log.WithError(err).Warn("rewrite aborted")
	return nil, err
}

// Bytes produces the rewritten file.  Nothing is persisted.
func (w *Rewriter) Bytes() ([]byte, error) {
	if w.State != WS_READY {
		return w.abort(types.NewError(types.KindOther, "rewrite", -1, "rewriter already used (state "+w.State.String()+")"))
	}
	if w.idx == nil || w.idx.Root == nil {
		return w.abort(types.NewError(types.KindEncoding, "rewrite", -1, "no index"))
	}

	w.State = WS_APPLY_OVERLAY
	if err := w.emit_block(w.idx.Root); err != nil {
		return w.abort(err)
	}

	w.State = WS_RECOMPUTE_SIZES
	if err := w.patch_sizes(); err != nil {
		return w.abort(err)
	}

	w.State = WS_RECOMPUTE_CHECKSUM
	if w.idx.Checksum {
		w.out.Write(Uint32LE(crc32.ChecksumIEEE(w.out.Bytes())))
	}

	out := w.out.Bytes()
	w.State = WS_PERSIST
	w.log.WithFields(logrus.Fields{"in": len(w.buf), "out": len(out)}).Debug("rewritten")
	return out, nil
}

// WriteFile rewrites and atomically replaces path.
func (w *Rewriter) WriteFile(path string) error {
	out, err := w.Bytes()
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(path, out); err != nil {
		w.State = WS_ABORTED
		return err
	}
	w.State = WS_DONE
	return nil
}

// Done marks a rewrite whose bytes were persisted by someone else (a zip writer, say).
func (w *Rewriter) Done() {
	if w.State == WS_PERSIST {
		w.State = WS_DONE
	}
}

func (w *Rewriter) emit_block(b *types.Block) error {
	if b.Framed() {
		state, payload := w.overlay.BlockChange(b.Start)
		switch state {
		case types.ST_REMOVED:
			w.log.WithField("offset", b.Start).Debug("dropping removed block")
			return nil
		case types.ST_REPLACED:
			if err := CheckBlocks(payload); err != nil {
				return err
			}
			w.out.Write(payload)
			return nil
		}
	}

	fi := -1
	if b.Framed() {
		fi = len(w.frames)
		start := w.out.Len()
		// begin_block key, verbatim
		w.out.Write(w.buf[b.Start : b.Start+readers.BeginRecordLen-4])
		w.frames = append(w.frames, frame{block: b, start: start, sizeAt: w.out.Len()})
		w.out.Write([]byte{0, 0, 0, 0})
	}

	for _, it := range b.Items {
		before := 0
		if it.Block != nil {
			before = it.Block.Start
		} else {
			before = it.Var.KeyOffset
		}
		if err := w.emit_inserted(b, before); err != nil {
			return err
		}

		if it.Block != nil {
			if err := w.emit_block(it.Block); err != nil {
				return err
			}
			continue
		}
		if err := w.emit_var(it.Var); err != nil {
			return err
		}
	}
	if err := w.emit_inserted(b, -1); err != nil {
		return err
	}

	if b.Framed() {
		w.out.Write(w.buf[b.End+1-readers.EndRecordLen : b.End+1])
		w.frames[fi].end = w.out.Len()
	}
	return nil
}

func (w *Rewriter) emit_var(v *types.Variable) error {
	state, value := w.overlay.VarChange(v.KeyOffset)
	switch state {
	case types.ST_REMOVED:
		return nil
	case types.ST_REPLACED:
		rec, err := EncodeRecord(v.Name, v.Type, value)
		if err != nil {
			return err
		}
		w.out.Write(rec)
		return nil
	}
	w.out.Write(w.buf[v.KeyOffset : v.KeyOffset+v.Length])
	return nil
}

func (w *Rewriter) emit_inserted(b *types.Block, before int) error {
	for _, v := range w.overlay.Inserted(b.Start, before) {
		rec, err := EncodeRecord(v.Name, v.Type, v.Value)
		if err != nil {
			return err
		}
		w.out.Write(rec)
	}
	return nil
}

// patch_sizes writes every emitted block's real length into its size field.  Frames
// are patched innermost first, although with final positions known the order
// doesn't change the result.
func (w *Rewriter) patch_sizes() error {
	out := w.out.Bytes()
	sizer, _ := w.overlay.(Sizer)
	for i := len(w.frames) - 1; i >= 0; i-- {
		f := w.frames[i]
		size := f.end - f.start
		copy(out[f.sizeAt:], Uint32LE(uint32(size)))
		if sizer != nil {
			if want := sizer.ProjectedSize(f.block.Start); want != size {
				return types.NewError(types.KindEncoding, "rewrite", f.block.Start,
					fmt.Sprintf("block size %v disagrees with projected size %v", size, want))
			}
		}
	}
	if sizer != nil {
		body := w.out.Len()
		if want := sizer.ProjectedSize(0); want != body {
			return types.NewError(types.KindEncoding, "rewrite", 0,
				fmt.Sprintf("file size %v disagrees with projected size %v", body, want))
		}
	}
	return nil
}

// CheckBlocks verifies that payload is a run of whole blocks whose size fields match
// their lengths.  Replacement payloads are emitted verbatim, so this is the only check
// they get.
func CheckBlocks(payload []byte) error {
	if len(payload) == 0 {
		return types.NewError(types.KindEncoding, "rewrite", -1, "empty replacement payload")
	}
	cur := 0
	for cur < len(payload) {
		start := cur
		key, err := readers.ReadString(payload, &cur)
		if err != nil || key != types.BeginBlock {
			return types.NewError(types.KindEncoding, "rewrite", start, "replacement payload must consist of blocks")
		}
		size, err := readers.ReadUint32(payload, &cur)
		if err != nil || int(size) < readers.MinBlockLen || start+int(size) > len(payload) {
			return types.NewError(types.KindEncoding, "rewrite", start, "replacement block size is wrong")
		}
		end := start + int(size)
		if !bytes.Equal(payload[end-readers.EndRecordLen:end], EncodeEndRecord()) {
			return types.NewError(types.KindEncoding, "rewrite", start, "replacement block is not closed by end_block")
		}
		cur = end
	}
	return nil
}

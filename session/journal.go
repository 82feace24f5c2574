package session

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"tqedit/changes"
	"tqedit/types"
	"tqedit/writers"
)

// The journal carries pending edits between separate runs of the command line tool:
// load writes an empty one, each edit appends to it, save replays it and deletes it.
//
// On disk: magic, raw length, stored length, then the gob stream, LZ4 block
// compressed unless that would not make it smaller.

var journal_magic = []byte("TQJ\x01")

const journal_header_len = 12

// An lz4 block never expands more than this.
const lz4_max_ratio = 255

func init() {
	gob.Register(int32(0))
	gob.Register(float32(0))
	gob.Register("")
	gob.Register(uuid.UUID{})
	gob.Register([]byte{})
}

type Journal struct {
	Source string
	Sum    uint32
	Format string
	Ops    []changes.Op
}

// WriteJournal saves the session's pending edits to path.
func (s *Session) WriteJournal(path string) error {
	s.mu.Lock()
	j := Journal{Source: s.Path, Sum: s.sum, Format: s.Format.Name, Ops: s.Changes.Ops()}
	s.mu.Unlock()

	raw := bytes.Buffer{}
	encoder := gob.NewEncoder(&raw)
	if err := encoder.Encode(j.Source); err != nil {
		return types.WrapError(types.KindEncoding, "journal", err)
	}
	if err := encoder.Encode(&j); err != nil {
		return types.WrapError(types.KindEncoding, "journal", err)
	}

	data := raw.Bytes()
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return types.WrapError(types.KindEncoding, "journal", errors.Wrap(err, "lz4 compress"))
	}
	stored := dst[:n]
	if n == 0 || n >= len(data) {
		stored = data
	}

	out := make([]byte, 0, journal_header_len+len(stored))
	out = append(out, journal_magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(stored)))
	out = append(out, stored...)
	return writers.WriteFileAtomic(path, out)
}

// ReadJournal loads a journal without applying it.
func ReadJournal(path string) (*Journal, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.KindIOFailure, "journal", errors.Wrapf(err, "read %s", path))
	}
	if len(buf) < journal_header_len || !bytes.Equal(buf[:4], journal_magic) {
		return nil, types.NewError(types.KindMalformedRecord, "journal", 0, path+" is not a journal")
	}
	rawLen := int(binary.LittleEndian.Uint32(buf[4:]))
	storedLen := int(binary.LittleEndian.Uint32(buf[8:]))
	stored := buf[journal_header_len:]
	if storedLen != len(stored) {
		return nil, types.NewError(types.KindMalformedRecord, "journal", 8, "journal truncated")
	}

	if rawLen < storedLen || rawLen > lz4_max_ratio*storedLen {
		return nil, types.NewError(types.KindMalformedRecord, "journal", 4, "implausible journal size")
	}

	data := stored
	if storedLen != rawLen {
		data = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, data)
		if err != nil {
			return nil, types.WrapError(types.KindMalformedRecord, "journal", errors.Wrap(err, "lz4 decompress"))
		}
		if n != rawLen {
			return nil, types.NewError(types.KindMalformedRecord, "journal", journal_header_len, "journal decompressed to the wrong size")
		}
	}

	decoder := gob.NewDecoder(bytes.NewReader(data))
	var source string
	if err := decoder.Decode(&source); err != nil {
		return nil, types.WrapError(types.KindMalformedRecord, "journal", err)
	}
	j := Journal{}
	if err := decoder.Decode(&j); err != nil {
		return nil, types.WrapError(types.KindMalformedRecord, "journal", err)
	}
	if j.Source != source {
		return nil, types.NewError(types.KindMalformedRecord, "journal", -1, "journal source mismatch")
	}
	return &j, nil
}

// Resume replays j onto the session.  The journal must have been written against
// exactly the bytes the session holds; anything else means the file changed since.
func (s *Session) Resume(j *Journal) error {
	s.mu.Lock()
	sum := s.sum
	s.mu.Unlock()
	switch {
	case j.Source != s.Path:
		return types.NewError(types.KindOther, "journal", -1, "journal belongs to "+j.Source)
	case j.Format != s.Format.Name:
		return types.NewError(types.KindOther, "journal", -1, "journal is for a "+j.Format+" file")
	case j.Sum != sum:
		return types.NewError(types.KindIOFailure, "journal", -1, s.Path+" changed since the journal was written")
	}
	s.Changes.Reset()
	return s.Changes.Replay(j.Ops)
}

// RemoveJournal deletes path; a missing journal is not an error.
func RemoveJournal(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.KindIOFailure, "journal", err)
	}
	return nil
}

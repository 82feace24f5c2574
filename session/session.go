// Package session owns one loaded save file: its bytes, its index and the pending
// edits on top of them.  There is no global "current character"; callers hold the
// *Session and drop it when they are done.
package session

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tqedit/changes"
	"tqedit/readers"
	"tqedit/types"
	"tqedit/writers"
)

type Session struct {
	Path    string
	Name    string
	Format  *readers.Format
	Index   *types.Index
	Changes *changes.Table

	buf []byte
	sum uint32
	// pending is the checksum of a save being written, valid while saving is set.
	pending uint32
	saving  bool
	stale   atomic.Bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	log     *logrus.Entry
}

// CharacterName derives a character's name from the directory holding its files
// ("_Name" on desktop).
func CharacterName(path string) string {
	return strings.TrimPrefix(filepath.Base(filepath.Dir(path)), "_")
}

// Load reads and parses path.  It fails with ErrConcurrentOperation while a save to
// the same file is running.
func Load(path string, f *readers.Format) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, types.WrapError(types.KindIOFailure, "load", err)
	}
	s := &Session{
		Path:   abs,
		Name:   CharacterName(abs),
		Format: f,
		log:    logrus.WithFields(logrus.Fields{"file": abs, "format": f.Name}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) load() error {
	if Busy(s.Path) {
		return types.NewError(types.KindConcurrentOperation, "load", -1, "a save is in progress for "+s.Path)
	}
	buf, err := os.ReadFile(s.Path)
	if err != nil {
		return types.WrapError(types.KindIOFailure, "load", errors.Wrapf(err, "read %s", s.Path))
	}
	return s.adopt(buf)
}

// adopt makes buf the session's original and starts over with no edits.
func (s *Session) adopt(buf []byte) error {
	idx, err := readers.Parse(buf, s.Format)
	if err != nil {
		return err
	}
	s.buf = buf
	s.mu.Lock()
	s.sum = crc32.ChecksumIEEE(buf)
	s.mu.Unlock()
	s.Index = idx
	s.Changes = changes.New(idx)
	s.stale.Store(false)
	s.log.WithFields(logrus.Fields{"size": len(buf), "platform": idx.Header.Platform}).Info("loaded")
	return nil
}

// Reload throws away the index and every pending edit and reads the file again.
func (s *Session) Reload() error {
	return s.load()
}

// Bytes is the original file content.  It must not be modified.
func (s *Session) Bytes() []byte {
	return s.buf
}

func (s *Session) Platform() types.Platform {
	return s.Index.Header.Platform
}

// Stale is set when the file changed on disk behind the session's back.
func (s *Session) Stale() bool {
	return s.stale.Load()
}

// Render produces the bytes a Save would write, without writing them.
func (s *Session) Render() ([]byte, error) {
	return writers.Rewrite(s.buf, s.Index, s.Changes)
}

// Save rewrites the file with the pending edits.  A second Save on the same file
// while one is running fails straight away with ErrConcurrentOperation.  On success
// the session continues from the new file with no pending edits.
func (s *Session) Save() error {
	release, err := Acquire(s.Path)
	if err != nil {
		return err
	}
	defer release()

	if s.Stale() {
		return types.NewError(types.KindIOFailure, "save", -1, s.Path+" was changed by another program; reload first")
	}

	out, err := s.Render()
	if err != nil {
		return err
	}
	s.set_pending(crc32.ChecksumIEEE(out), true)
	defer s.set_pending(0, false)
	if err := writers.WriteFileAtomic(s.Path, out); err != nil {
		return err
	}
	s.log.WithField("size", len(out)).Info("saved")
	return s.adopt(out)
}

// set_pending lets the watcher recognize our own write before adopt catches up.
func (s *Session) set_pending(sum uint32, saving bool) {
	s.mu.Lock()
	s.pending, s.saving = sum, saving
	s.mu.Unlock()
}

// expected reports whether sum is what the file should hold right now.
func (s *Session) expected(sum uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sum == s.sum || (s.saving && sum == s.pending)
}

// Value is the current value of name in the block at blockStart: the pending edit if
// there is one, the original otherwise.
func (s *Session) Value(blockStart int, name string) (any, error) {
	if v, ok := s.Changes.Scalar(blockStart, name); ok {
		return v, nil
	}
	v, err := s.Index.Var(blockStart, name)
	if err != nil {
		return nil, err
	}
	if s.Changes.Removed(blockStart, name) {
		return nil, types.NewError(types.KindNotFound, "value", v.KeyOffset, name+" was removed")
	}
	return v.Value, nil
}

// ValueByName is Value for the first block holding name.
func (s *Session) ValueByName(name string) (any, error) {
	b := s.Index.NthBlockWith(name, 0)
	if b == nil {
		return nil, types.NewError(types.KindNotFound, "value", -1, "no variable "+name)
	}
	return s.Value(b.Start, name)
}

func (s *Session) Int(blockStart int, name string) (int, error) {
	v, err := s.Value(blockStart, name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int32)
	if !ok {
		return 0, types.NewError(types.KindEncoding, "value", -1, name+" is not an integer")
	}
	return int(n), nil
}

func (s *Session) String(blockStart int, name string) (string, error) {
	v, err := s.Value(blockStart, name)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", types.NewError(types.KindEncoding, "value", -1, name+" is not a string")
	}
	return str, nil
}

// Close stops the watcher, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

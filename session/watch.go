package session

import (
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"tqedit/types"
)

// Watch starts watching the session's file.  When the file's content stops matching
// what the session last read or wrote, the session goes stale and, if notify is not
// nil, the path is sent on it.  The send never blocks: a full or unread channel
// misses the notification, so give it room for one.  The game writes its saves in place, so this is how
// an edit made while the game is running gets noticed before it clobbers anything.
func (s *Session) Watch(notify chan<- string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return types.WrapError(types.KindIOFailure, "watch", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.Path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					s.check(notify)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.WithError(err).Warn("watcher error")
			}
		}
	}()

	// Watching the directory rather than the file survives the rename of an atomic save.
	if err := watcher.Add(filepath.Dir(s.Path)); err != nil {
		watcher.Close()
		return types.WrapError(types.KindIOFailure, "watch", errors.Wrapf(err, "watch %s", filepath.Dir(s.Path)))
	}
	s.watcher = watcher
	return nil
}

func (s *Session) check(notify chan<- string) {
	buf, err := os.ReadFile(s.Path)
	if err != nil {
		// mid-rename, most likely; the next event will tell
		return
	}
	if s.expected(crc32.ChecksumIEEE(buf)) {
		return
	}
	if !s.stale.Swap(true) {
		s.log.Warn("file changed on disk")
		if notify == nil {
			return
		}
		select {
		case notify <- s.Path:
		default:
			s.log.Debug("nobody listening for changes")
		}
	}
}

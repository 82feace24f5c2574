package session

import (
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"tqedit/types"
)

// One save at a time per file, process-wide.  Waiting is never an option: a second
// writer is turned away, not queued.
var guards = struct {
	sync.Mutex
	m map[string]*semaphore.Weighted
}{m: map[string]*semaphore.Weighted{}}

func guard(path string) *semaphore.Weighted {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	guards.Lock()
	defer guards.Unlock()
	g, ok := guards.m[path]
	if !ok {
		g = semaphore.NewWeighted(1)
		guards.m[path] = g
	}
	return g
}

// Acquire claims the save guard for path, or fails with ErrConcurrentOperation if
// someone else holds it.  Call release when done.
func Acquire(path string) (release func(), err error) {
	g := guard(path)
	if !g.TryAcquire(1) {
		return nil, types.NewError(types.KindConcurrentOperation, "save", -1, "a save is already in progress for "+path)
	}
	var once sync.Once
	return func() { once.Do(func() { g.Release(1) }) }, nil
}

// Busy reports whether a save to path is running right now.
func Busy(path string) bool {
	g := guard(path)
	if !g.TryAcquire(1) {
		return true
	}
	g.Release(1)
	return false
}

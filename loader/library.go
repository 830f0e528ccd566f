package loader

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// library is a mapped Library shared by every handle loaded from the same
// path. It is closed exactly once, when the last holder releases it.
type library struct {
	path   string
	lib    Library
	refs   atomic.Int32
	once   sync.Once
	onDrop func(*library)
	logger *slog.Logger
}

func newLibrary(path string, lib Library, onDrop func(*library), logger *slog.Logger) *library {
	l := &library{path: path, lib: lib, onDrop: onDrop, logger: logger}
	l.refs.Store(1)
	return l
}

// tryRetain adds a holder unless the library is already being released.
func (l *library) tryRetain() bool {
	for {
		n := l.refs.Load()
		if n <= 0 {
			return false
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (l *library) release() {
	n := l.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(fmt.Sprintf("library %s released more times than retained", l.path))
	}
	l.once.Do(func() {
		if l.onDrop != nil {
			l.onDrop(l)
		}
		if err := l.lib.Close(); err != nil {
			l.logger.Warn("Closing library failed.", "path", l.path, "error", err)
			return
		}
		l.logger.Debug("Library released.", "path", l.path)
	})
}

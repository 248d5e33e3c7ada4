package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/lmejias/vidsift/pkg/logging"
)

// FileLocker grants locks via flock on files under a shared directory. It
// serializes workers on the same host or on a shared filesystem.
type FileLocker struct {
	dir    string
	logger *logging.Logger
}

// NewFileLocker creates a FileLocker, creating the lock directory if needed
func NewFileLocker(dir string, logger *logging.Logger) (*FileLocker, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "vidsift-locks")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLocker{dir: dir, logger: logger}, nil
}

// Acquire takes an exclusive flock on the key's lock file. If another
// process holds it, ErrLockHeld is returned immediately.
func (fl *FileLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	path := filepath.Join(fl.dir, key+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
		}
		return nil, fmt.Errorf("failed to flock %s: %w", path, err)
	}

	fl.logger.Debug("lock acquired", map[string]interface{}{"key": key})
	return &fileLock{file: f, path: path}, nil
}

type fileLock struct {
	file *os.File
	path string
	once sync.Once
	err  error
}

// Release drops the flock and closes the file. The lock file itself stays
// behind; a stale file carries no lock once its holder exits.
func (l *fileLock) Release() error {
	l.once.Do(func() {
		if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
			l.err = fmt.Errorf("failed to unlock %s: %w", l.path, err)
		}
		if cerr := l.file.Close(); cerr != nil && l.err == nil {
			l.err = cerr
		}
	})
	return l.err
}

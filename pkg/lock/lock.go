package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
)

// ErrLockHeld is returned when the lock is already held by another worker.
// Acquisition never blocks waiting for the holder.
var ErrLockHeld = errors.New("lock already held")

// Lock is a held lock; Release is idempotent
type Lock interface {
	Release() error
}

// Locker grants exclusive named locks without blocking
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

// SanitizeKey maps a video name to a lock key safe for filenames and redis
// keys. Distinct names that sanitize to the same key contend for one lock.
func SanitizeKey(name string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		".", "_",
		"/", "_",
		"\\", "_",
		":", "_",
	)
	return "video_process_" + replacer.Replace(name)
}

// New creates a Locker for the configured backend
func New(cfg config.LockConfig, logger *logging.Logger) (Locker, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileLocker(cfg.Dir, logger)
	case "redis":
		return NewRedisLocker(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown lock backend: %s", cfg.Backend)
	}
}

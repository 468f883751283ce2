// Package flock serializes sync passes across processes with a lock
// file. Acquisition is fail-fast: a held lock means another pass is in
// flight and this one should simply not start.
package flock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/rs/zerolog"
)

// Lock guards a store directory. Zero value is not usable; construct
// with New.
type Lock struct {
	path   string
	logger zerolog.Logger
}

// New creates a lock backed by the given file path.
func New(path string) *Lock {
	return &Lock{path: path, logger: logging.GetLogger("flock")}
}

// Acquire takes the lock or fails immediately with LOCK_CONTENTION when
// another process holds it. Creation is atomic (O_EXCL), so two
// processes can never both succeed.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrLockContention, "failed to create lock directory for %s", l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Newf(errors.ErrLockContention, "another sync is running (lock held at %s)", l.path)
		}
		return errors.Wrapf(err, errors.ErrLockContention, "failed to create lock file %s", l.path)
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrLockContention, "failed to write lock file %s", l.path)
	}

	l.logger.Debug().Str("path", l.path).Msg("Lock acquired")
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn().Err(err).Str("path", l.path).Msg("Failed to remove lock file")
	}
}

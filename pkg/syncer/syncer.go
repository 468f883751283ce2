// Package syncer orchestrates one full reconciliation pass and the
// long-running watch loop around it. A pass is strictly sequential:
// lock, refresh local blobs from edited working copies, snapshot,
// pull, snapshot again, reconcile, persist, push, unlock. Nothing in a
// pass runs concurrently, so the engine needs no internal locking.
package syncer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/microdot/pkg/crypto"
	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/flock"
	"github.com/arthur-debert/microdot/pkg/gitignore"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/reconcile"
	"github.com/arthur-debert/microdot/pkg/status"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/arthur-debert/microdot/pkg/types"
	"github.com/arthur-debert/microdot/pkg/vcs"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Params wires a syncer together.
type Params struct {
	FS           types.FS
	Materializer *store.Materializer
	ChannelDir   string
	StatusList   *status.List
	Marker       reconcile.Marker
	VCS          vcs.Adapter // nil disables transport
	Lock         *flock.Lock
	Gitignore    *gitignore.File
	Clock        clockwork.Clock
	Interval     time.Duration

	// EncryptNew encrypts items adopted from plain files dropped into
	// the channel directory.
	EncryptNew bool
}

// Syncer runs reconciliation passes over one channel.
type Syncer struct {
	p      Params
	rec    *reconcile.Reconciler
	logger zerolog.Logger
}

// New builds a syncer.
func New(p Params) *Syncer {
	return &Syncer{
		p:      p,
		rec:    reconcile.New(p.Materializer, p.FS, p.ChannelDir, p.StatusList, p.Marker),
		logger: logging.GetLogger("syncer"),
	}
}

// Sync runs one pass. A pull failure skips the pass with state
// unchanged, a push failure leaves the pass applied but unshipped; both
// come back as recoverable VCS errors the next pass retries. Lock
// contention and status persistence failures abort the pass.
func (s *Syncer) Sync(ctx context.Context) (reconcile.Summary, error) {
	if err := s.p.Lock.Acquire(); err != nil {
		return reconcile.Summary{}, err
	}
	defer s.p.Lock.Release()

	if err := s.p.StatusList.Load(); err != nil {
		return reconcile.Summary{}, err
	}
	if err := s.refreshLocal(); err != nil {
		return reconcile.Summary{}, err
	}

	pre, err := store.Scan(s.p.FS, s.p.ChannelDir)
	if err != nil {
		return reconcile.Summary{}, err
	}

	if s.p.VCS != nil {
		if err := s.p.VCS.Pull(ctx); err != nil {
			// recoverable: the next tick retries with state unchanged
			s.logger.Warn().Err(err).Msg("Pull failed, skipping pass")
			return reconcile.Summary{}, err
		}
	}

	post, err := store.Scan(s.p.FS, s.p.ChannelDir)
	if err != nil {
		return reconcile.Summary{}, err
	}

	inputs, classifyErrs := reconcile.Classify(pre, post, s.p.StatusList)
	sum := s.rec.Run(inputs)
	sum.Errors = append(classifyErrs, sum.Errors...)

	if s.p.Gitignore != nil {
		if err := s.p.Gitignore.Sync(s.p.StatusList.Names()); err != nil {
			return sum, err
		}
	}
	if err := s.p.StatusList.Save(); err != nil {
		return sum, err
	}

	if s.p.VCS != nil {
		if err := s.p.VCS.Push(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Push failed, next pass retries")
			return sum, err
		}
	}

	s.logger.Info().
		Int("examined", sum.Examined).
		Int("mutations", sum.Mutations()).
		Int("conflicts", len(sum.Conflicts)).
		Int("errors", len(sum.Errors)).
		Msg("Sync pass complete")
	return sum, nil
}

// Watch runs passes until the context is canceled. Each pass is
// followed by a wait for the interval tick or a change in the channel
// directory, whichever comes first. Cancellation is observed between
// passes only; a running pass always completes.
func (s *Syncer) Watch(ctx context.Context) error {
	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(s.p.ChannelDir); err == nil {
			events = watcher.Events
		} else {
			s.logger.Warn().Err(err).Str("dir", s.p.ChannelDir).Msg("Directory watch unavailable, interval only")
		}
	} else {
		s.logger.Warn().Err(err).Msg("Filesystem watcher unavailable, interval only")
	}

	for {
		if _, err := s.Sync(ctx); err != nil {
			recoverable := errors.IsErrorCode(err, errors.ErrLockContention) ||
				errors.IsErrorCode(err, errors.ErrVcs)
			if !recoverable {
				return err
			}
			s.logger.Warn().Err(err).Msg("Skipping pass")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.p.Clock.After(s.p.Interval):
		case ev := <-events:
			s.logger.Debug().Str("event", ev.String()).Msg("Change detected, waking early")
			drain(events)
		}
	}
}

// drain coalesces the event burst a single save typically produces.
func drain(events chan fsnotify.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

// refreshLocal folds working-copy edits back into the store before the
// pass snapshots it: an edited working copy becomes a fresh blob
// replacing the old one, and plain files dropped into the channel
// directory are adopted as new items. Per-item failures are logged and
// skipped.
func (s *Syncer) refreshLocal() error {
	snap, err := store.Scan(s.p.FS, s.p.ChannelDir)
	if err != nil {
		return err
	}

	for _, name := range snap.Names() {
		entries := snap.Canonical(name)
		if len(entries) != 1 {
			continue
		}
		if err := s.refreshEntry(entries[0]); err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("Skipping working copy refresh")
		}
	}

	return s.adoptNew(snap)
}

// refreshEntry re-seals one entry when its working copy diverged from
// the stored blob.
func (s *Syncer) refreshEntry(entry store.Entry) error {
	wc := store.WorkingCopyPath(s.p.ChannelDir, entry.ID.Name)
	if _, err := s.p.FS.Stat(wc); err != nil {
		return nil
	}

	var plain []byte
	var err error
	if entry.ID.Kind == identity.KindDirectory {
		plain, err = crypto.PackDir(s.p.FS, wc)
	} else {
		plain, err = s.p.FS.ReadFile(wc)
	}
	if err != nil {
		return err
	}

	stored, err := s.p.Materializer.Open(entry)
	if err != nil {
		return err
	}
	if bytes.Equal(plain, stored) {
		return nil
	}

	id, blob, err := s.p.Materializer.Seal(entry.ID.Name, plain, s.p.Clock.Now().UTC(), entry.ID.Kind, entry.ID.Encrypted)
	if err != nil {
		return err
	}
	if id.Hash == entry.ID.Hash {
		return nil
	}
	if _, err := store.WriteEntry(s.p.FS, s.p.ChannelDir, id, blob); err != nil {
		return err
	}
	if err := s.p.FS.Remove(entry.Path); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to remove superseded %s", entry.Path)
	}

	s.logger.Info().Str("name", entry.ID.Name).Str("old", entry.ID.Hash).Str("new", id.Hash).Msg("Working copy changed, new version sealed")
	return nil
}

// adoptNew turns unknown plain entries at the top of the channel
// directory into tracked items. Dotted names and working copies of
// known items are left alone.
func (s *Syncer) adoptNew(snap *store.Snapshot) error {
	known := make(map[string]struct{})
	for _, name := range snap.Names() {
		// nested logical names claim their top-level segment
		top := name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			top = name[:i]
		}
		known[top] = struct{}{}
	}

	dirents, err := s.p.FS.ReadDir(s.p.ChannelDir)
	if err != nil {
		if os.IsNotExist(err) {
			// fresh store: nothing to adopt until the first item shows up
			return nil
		}
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to read channel directory %s", s.p.ChannelDir)
	}

	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") || identity.IsEncoded(name) {
			continue
		}
		if _, ok := known[name]; ok {
			continue
		}

		kind := identity.KindFile
		var plain []byte
		if de.IsDir() {
			kind = identity.KindDirectory
			plain, err = crypto.PackDir(s.p.FS, filepath.Join(s.p.ChannelDir, name))
		} else {
			plain, err = s.p.FS.ReadFile(filepath.Join(s.p.ChannelDir, name))
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("Skipping new item")
			continue
		}

		id, blob, err := s.p.Materializer.Seal(name, plain, s.p.Clock.Now().UTC(), kind, s.p.EncryptNew)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("Skipping new item")
			continue
		}
		if _, err := store.WriteEntry(s.p.FS, s.p.ChannelDir, id, blob); err != nil {
			return err
		}
		s.logger.Info().Str("name", name).Str("hash", id.Hash).Stringer("kind", kind).Msg("Adopted new item")
	}
	return nil
}

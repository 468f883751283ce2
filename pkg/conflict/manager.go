// Package conflict owns the conflict lifecycle: materializing a losing
// version under a conflict-marked filename, listing open conflicts off
// a fresh disk scan, and resolving a pair into a new canonical version.
package conflict

import (
	"bytes"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/microdot/pkg/crypto"
	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/merge"
	"github.com/arthur-debert/microdot/pkg/status"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/arthur-debert/microdot/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Manager handles conflicts for one store.
type Manager struct {
	fs     types.FS
	mat    *store.Materializer
	status *status.List
	merger merge.Merger
	clock  clockwork.Clock
	tmpDir string
	logger zerolog.Logger
}

// NewManager builds a conflict manager. tmpDir hosts scratch trees
// during directory resolution.
func NewManager(fsys types.FS, mat *store.Materializer, list *status.List, merger merge.Merger, clock clockwork.Clock, tmpDir string) *Manager {
	return &Manager{
		fs:     fsys,
		mat:    mat,
		status: list,
		merger: merger,
		clock:  clock,
		tmpDir: tmpDir,
		logger: logging.GetLogger("conflict"),
	}
}

// Materialize renames the losing version's blob to carry the conflict
// marker. The canonical version and the status entry stay untouched, so
// no content is ever lost to a concurrent edit.
func (m *Manager) Materialize(channelDir string, canonical, loser store.Entry) (store.Entry, error) {
	conflictID := loser.ID.AsConflict()
	target, err := store.EncodePath(channelDir, conflictID)
	if err != nil {
		return store.Entry{}, err
	}
	if err := m.fs.Rename(loser.Path, target); err != nil {
		return store.Entry{}, errors.Wrapf(err, errors.ErrFileWrite, "failed to mark %s as conflict", loser.Path)
	}

	m.logger.Warn().Str("name", loser.ID.Name).
		Str("kept", canonical.ID.Hash).Str("marked", loser.ID.Hash).
		Msg("Conflict materialized")
	return store.Entry{ID: conflictID, Path: target}, nil
}

// List returns every open conflict in the channel, off a fresh scan so
// the answer reflects the disk, not stale bookkeeping.
func (m *Manager) List(channelDir string) ([]store.Entry, error) {
	snap, err := store.Scan(m.fs, channelDir)
	if err != nil {
		return nil, err
	}
	return snap.AllConflicts(), nil
}

// Detect returns the canonical version and the conflict-marked versions
// of a logical name. NO_CONFLICT when the name has no open conflict.
func (m *Manager) Detect(channelDir, name string) (store.Entry, []store.Entry, error) {
	snap, err := store.Scan(m.fs, channelDir)
	if err != nil {
		return store.Entry{}, nil, err
	}

	conflicts := snap.Conflicts(name)
	if len(conflicts) == 0 {
		return store.Entry{}, nil, errors.Newf(errors.ErrNoConflict, "no open conflict for %s", name)
	}
	canonical := snap.Canonical(name)
	if len(canonical) != 1 {
		return store.Entry{}, nil, errors.Newf(errors.ErrInvariant,
			"%d canonical versions of %s alongside its conflict", len(canonical), name)
	}
	return canonical[0], conflicts, nil
}

// Resolve merges a conflict-marked file (path relative to the channel
// directory, identity-encoded) with its canonical sibling into a new
// version. Ordering is write-then-delete: the merged blob is written
// and verified readable before either old version goes away, and a
// merge abort leaves everything exactly as it was.
func (m *Manager) Resolve(channelDir, encoded string) error {
	conflictID, err := parseConflictName(encoded)
	if err != nil {
		return err
	}

	canonical, conflicts, err := m.Detect(channelDir, conflictID.Name)
	if err != nil {
		return err
	}
	var loser *store.Entry
	for i := range conflicts {
		if conflicts[i].ID.Hash == conflictID.Hash {
			loser = &conflicts[i]
			break
		}
	}
	if loser == nil {
		return errors.Newf(errors.ErrNoConflict, "no conflict with hash %s for %s", conflictID.Hash, conflictID.Name)
	}

	currentPlain, err := m.mat.Open(canonical)
	if err != nil {
		return err
	}
	conflictPlain, err := m.mat.Open(*loser)
	if err != nil {
		return err
	}

	var resolved []byte
	if canonical.ID.Kind == identity.KindDirectory {
		resolved, err = m.mergeTrees(canonical.ID.Name, currentPlain, conflictPlain)
	} else {
		resolved, err = m.merger.Merge(canonical.ID.Name, currentPlain, conflictPlain)
	}
	if err != nil {
		return err
	}

	newID, blob, err := m.mat.Seal(canonical.ID.Name, resolved, m.clock.Now().UTC(), canonical.ID.Kind, canonical.ID.Encrypted)
	if err != nil {
		return err
	}

	newEntry, err := store.WriteEntry(m.fs, channelDir, newID, blob)
	if err != nil {
		return err
	}
	if check, err := m.mat.Open(newEntry); err != nil || !bytes.Equal(check, resolved) {
		return errors.Newf(errors.ErrInternal, "resolved version of %s failed verification", canonical.ID.Name)
	}
	if err := m.mat.WriteWorkingCopy(channelDir, newEntry); err != nil {
		return err
	}

	for _, old := range []string{canonical.Path, loser.Path} {
		if old == newEntry.Path {
			continue
		}
		if err := m.fs.Remove(old); err != nil {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to remove superseded %s", old)
		}
	}

	m.status.Upsert(newEntry.ID)
	if err := m.status.Save(); err != nil {
		return err
	}

	m.logger.Info().Str("name", canonical.ID.Name).Str("hash", newEntry.ID.Hash).Msg("Conflict resolved")
	return nil
}

// mergeTrees resolves a directory conflict: both archives unpack into
// scratch trees, files present on only one side survive, files differing
// on both sides go through the merger one by one, and the merged tree
// packs back into one archive.
func (m *Manager) mergeTrees(name string, current, conflict []byte) ([]byte, error) {
	base := filepath.Join(m.tmpDir, "resolve-"+strings.ReplaceAll(name, "/", "_"))
	curDir := filepath.Join(base, "current")
	conDir := filepath.Join(base, "conflict")
	defer func() { _ = m.fs.RemoveAll(base) }()

	for dir, archive := range map[string][]byte{curDir: current, conDir: conflict} {
		if err := m.fs.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to create %s", dir)
		}
		if err := crypto.UnpackDir(m.fs, archive, dir); err != nil {
			return nil, err
		}
	}

	curFiles, err := listFiles(m.fs, curDir)
	if err != nil {
		return nil, err
	}
	conFiles, err := listFiles(m.fs, conDir)
	if err != nil {
		return nil, err
	}

	union := make(map[string]struct{})
	for _, f := range curFiles {
		union[f] = struct{}{}
	}
	for _, f := range conFiles {
		union[f] = struct{}{}
	}
	rels := make([]string, 0, len(union))
	for f := range union {
		rels = append(rels, f)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		curPath := filepath.Join(curDir, filepath.FromSlash(rel))
		conPath := filepath.Join(conDir, filepath.FromSlash(rel))

		curData, curErr := m.fs.ReadFile(curPath)
		conData, conErr := m.fs.ReadFile(conPath)

		switch {
		case curErr == nil && conErr != nil:
			// only on the current side, keep as-is
		case curErr != nil && conErr == nil:
			if err := m.fs.MkdirAll(filepath.Dir(curPath), 0755); err != nil {
				return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to create parent of %s", curPath)
			}
			if err := m.fs.WriteFile(curPath, conData, 0600); err != nil {
				return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", curPath)
			}
		case curErr == nil && conErr == nil && !bytes.Equal(curData, conData):
			merged, err := m.merger.Merge(path.Join(name, rel), curData, conData)
			if err != nil {
				return nil, err
			}
			if err := m.fs.WriteFile(curPath, merged, 0600); err != nil {
				return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", curPath)
			}
		}
	}

	return crypto.PackDir(m.fs, curDir)
}

// listFiles returns sorted slash-separated relative paths of all
// regular files under dir.
func listFiles(fsys types.FS, dir string) ([]string, error) {
	var files []string
	var walk func(rel string) error
	walk = func(rel string) error {
		entries, err := fsys.ReadDir(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read directory %s", rel)
		}
		for _, entry := range entries {
			childRel := entry.Name()
			if rel != "" {
				childRel = rel + "/" + entry.Name()
			}
			if entry.IsDir() {
				if err := walk(childRel); err != nil {
					return err
				}
				continue
			}
			files = append(files, childRel)
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// parseConflictName decodes an identity-encoded path relative to the
// channel directory and requires the conflict marker.
func parseConflictName(encoded string) (identity.Identity, error) {
	encoded = filepath.ToSlash(encoded)
	dir, base := path.Split(encoded)

	id, err := identity.Parse(base)
	if err != nil {
		return identity.Identity{}, err
	}
	if !id.Conflict {
		return identity.Identity{}, errors.Newf(errors.ErrNoConflict, "%s is not conflict-marked", encoded)
	}
	if dir != "" {
		id.Name = path.Join(dir, id.Name)
	}
	return id, nil
}

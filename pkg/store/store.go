// Package store reads and writes the physical layout of a channel
// directory: identity-encoded blobs plus their plain-named working
// copies. It knows nothing about reconciliation decisions.
package store

import (
	"path"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/types"
)

// Entry pairs a decoded identity with the physical file that carries it.
type Entry struct {
	ID   identity.Identity
	Path string
}

// EncodePath returns the physical path for an identity inside a channel
// directory. Logical names may contain slashes; only the final path
// element is identity-encoded.
func EncodePath(dir string, id identity.Identity) (string, error) {
	nameDir, base := path.Split(id.Name)
	fileID := id
	fileID.Name = base
	encoded, err := identity.Encode(fileID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(nameDir), encoded), nil
}

// WorkingCopyPath returns where the decrypted (or plain) working copy of
// a logical name lives: next to its blob, under the bare logical name.
func WorkingCopyPath(dir, name string) string {
	return filepath.Join(dir, filepath.FromSlash(name))
}

// WriteEntry writes a blob under its identity-encoded filename and
// returns the resulting entry.
func WriteEntry(fsys types.FS, dir string, id identity.Identity, blob []byte) (Entry, error) {
	target, err := EncodePath(dir, id)
	if err != nil {
		return Entry{}, err
	}
	if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Entry{}, errors.Wrapf(err, errors.ErrFileWrite, "failed to create parent of %s", target)
	}
	if err := fsys.WriteFile(target, blob, 0644); err != nil {
		return Entry{}, errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", target)
	}
	return Entry{ID: id, Path: target}, nil
}

// Snapshot is the decoded content of one channel directory at one point
// in time. Canonical and conflict-marked entries are kept apart.
type Snapshot struct {
	canonical map[string][]Entry
	conflicts map[string][]Entry
}

// Scan walks a channel directory and decodes every identity-encoded
// file. Files whose names fail to parse are logged and skipped; one bad
// filename never stops a scan. A missing channel directory yields an
// empty snapshot.
func Scan(fsys types.FS, dir string) (*Snapshot, error) {
	logger := logging.GetLogger("store")
	snap := &Snapshot{
		canonical: make(map[string][]Entry),
		conflicts: make(map[string][]Entry),
	}

	if _, err := fsys.Stat(dir); err != nil {
		return snap, nil
	}

	var walk func(rel string) error
	walk = func(rel string) error {
		entries, err := fsys.ReadDir(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read channel directory %s", rel)
		}
		for _, de := range entries {
			childRel := de.Name()
			if rel != "" {
				childRel = rel + "/" + de.Name()
			}
			if de.IsDir() {
				if err := walk(childRel); err != nil {
					return err
				}
				continue
			}
			if !identity.IsEncoded(de.Name()) {
				// plain working copy or foreign file
				continue
			}

			id, err := identity.Parse(de.Name())
			if err != nil {
				logger.Warn().Err(err).Str("file", childRel).Msg("Skipping unparseable filename")
				continue
			}
			if rel != "" {
				id.Name = rel + "/" + id.Name
			}

			entry := Entry{ID: id, Path: filepath.Join(dir, filepath.FromSlash(childRel))}
			if id.Conflict {
				snap.conflicts[id.Name] = append(snap.conflicts[id.Name], entry)
			} else {
				snap.canonical[id.Name] = append(snap.canonical[id.Name], entry)
			}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, err
	}
	return snap, nil
}

// Names returns every logical name with at least one canonical or
// conflict entry, sorted.
func (s *Snapshot) Names() []string {
	seen := make(map[string]struct{})
	for name := range s.canonical {
		seen[name] = struct{}{}
	}
	for name := range s.conflicts {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Canonical returns the non-conflict entries for a logical name. A
// healthy store has at most one; two appear transiently after a pull
// brought in a concurrent version.
func (s *Snapshot) Canonical(name string) []Entry {
	return s.canonical[name]
}

// Conflicts returns the conflict-marked entries for a logical name.
func (s *Snapshot) Conflicts(name string) []Entry {
	return s.conflicts[name]
}

// AllConflicts returns every conflict-marked entry in the snapshot,
// ordered by logical name.
func (s *Snapshot) AllConflicts() []Entry {
	var names []string
	for name := range s.conflicts {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []Entry
	for _, name := range names {
		all = append(all, s.conflicts[name]...)
	}
	return all
}

// HasVersion reports whether the snapshot holds a canonical entry for
// name with the given content hash.
func (s *Snapshot) HasVersion(name, hash string) bool {
	for _, e := range s.canonical[name] {
		if e.ID.Hash == hash {
			return true
		}
	}
	return false
}

// Package status persists the "last version both sides agreed on" per
// logical name. The list is the sole memory of prior reconciliation:
// losing it is safe but degrades the next pass to treating every file as
// new, so saves are atomic with respect to process crash.
package status

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/types"
	"github.com/rs/zerolog"
)

// List is the persisted mapping from logical name to last-reconciled
// identity. One entry per logical name.
type List struct {
	fs      types.FS
	path    string
	entries map[string]identity.Identity
	logger  zerolog.Logger
}

// New creates a status list backed by the given file. Call Load before
// reading entries.
func New(fsys types.FS, path string) *List {
	return &List{
		fs:      fsys,
		path:    path,
		entries: make(map[string]identity.Identity),
		logger:  logging.GetLogger("status"),
	}
}

// Load reads the list from disk. A missing file is the empty list (first
// run), not an error; any other read failure aborts, because proceeding
// with an empty list would make every tracked item look new. Malformed
// lines are logged and skipped so one bad entry cannot take the whole
// list down.
func (l *List) Load() error {
	l.entries = make(map[string]identity.Identity)

	data, err := l.fs.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug().Str("path", l.path).Msg("No status list found, starting empty")
			return nil
		}
		return errors.Wrapf(err, errors.ErrStatusList, "failed to read %s", l.path)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, err := identity.Parse(line)
		if err != nil {
			l.logger.Warn().Err(err).Str("line", line).Msg("Skipping malformed status entry")
			continue
		}
		l.entries[id.Name] = id
	}

	l.logger.Debug().Int("entries", len(l.entries)).Str("path", l.path).Msg("Loaded status list")
	return nil
}

// Save writes the list durably: content goes to a temporary file in the
// same directory which is then renamed over the real one, so a crash
// mid-write never leaves a partial list.
func (l *List) Save() error {
	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrStatusList, "failed to create metadata directory for %s", l.path)
	}

	names := l.Names()
	var sb strings.Builder
	for _, name := range names {
		encoded, err := identity.Encode(l.entries[name])
		if err != nil {
			return errors.Wrapf(err, errors.ErrStatusList, "failed to encode status entry for %s", name)
		}
		sb.WriteString(encoded)
		sb.WriteByte('\n')
	}

	tmp := l.path + ".tmp"
	if err := l.fs.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrStatusList, "failed to write %s", tmp)
	}
	if err := l.fs.Rename(tmp, l.path); err != nil {
		return errors.Wrapf(err, errors.ErrStatusList, "failed to replace %s", l.path)
	}

	l.logger.Debug().Int("entries", len(names)).Str("path", l.path).Msg("Saved status list")
	return nil
}

// Get returns the entry for a logical name.
func (l *List) Get(name string) (identity.Identity, bool) {
	id, ok := l.entries[name]
	return id, ok
}

// Upsert records an identity as the agreed version of its logical name,
// replacing any previous entry.
func (l *List) Upsert(id identity.Identity) {
	l.logger.Debug().Str("name", id.Name).Str("hash", id.Hash).Msg("Status upsert")
	l.entries[id.Name] = id
}

// Remove drops the entry for a logical name. Removing an absent name is
// a no-op.
func (l *List) Remove(name string) {
	l.logger.Debug().Str("name", name).Msg("Status remove")
	delete(l.entries, name)
}

// Names returns all logical names in the list, sorted.
func (l *List) Names() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

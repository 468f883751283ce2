// Package gitignore keeps the store's .gitignore aligned with the set
// of working copies. Working copies are plain decrypted files living
// next to their blobs; they must never reach the remote, so each one
// gets an ignore line.
package gitignore

import (
	"sort"
	"strings"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/types"
	"github.com/rs/zerolog"
)

const header = "# managed by microdot, do not edit"

// File manages the ignore list at one path.
type File struct {
	fs     types.FS
	path   string
	logger zerolog.Logger
}

// New creates a manager for the .gitignore at path.
func New(fsys types.FS, path string) *File {
	return &File{fs: fsys, path: path, logger: logging.GetLogger("gitignore")}
}

// Sync rewrites the managed block so exactly the given working-copy
// names are ignored. Lines outside the managed block are preserved.
func (f *File) Sync(names []string) error {
	user := f.userLines()

	managed := make([]string, 0, len(names))
	for _, name := range names {
		managed = append(managed, "/"+name)
	}
	sort.Strings(managed)

	var sb strings.Builder
	for _, line := range user {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(header)
	sb.WriteByte('\n')
	for _, line := range managed {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if err := f.fs.WriteFile(f.path, []byte(sb.String()), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", f.path)
	}
	f.logger.Debug().Int("entries", len(managed)).Str("path", f.path).Msg("Updated gitignore")
	return nil
}

// userLines returns everything before the managed header, trailing
// blank lines trimmed. A missing file yields nothing.
func (f *File) userLines() []string {
	data, err := f.fs.ReadFile(f.path)
	if err != nil {
		return nil
	}

	var user []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == header {
			break
		}
		user = append(user, line)
	}
	for len(user) > 0 && strings.TrimSpace(user[len(user)-1]) == "" {
		user = user[:len(user)-1]
	}
	return user
}

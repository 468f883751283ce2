package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/arthur-debert/microdot/pkg/filesystem"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/arthur-debert/microdot/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemFS() types.FS {
	return filesystem.NewAfero(afero.NewMemMapFs())
}

func mustWrite(t *testing.T, fsys types.FS, dir string, id identity.Identity, blob string) store.Entry {
	t.Helper()
	entry, err := store.WriteEntry(fsys, dir, id, []byte(blob))
	require.NoError(t, err)
	return entry
}

func fileID(name, hash string) identity.Identity {
	return identity.New(name, hash, time.Unix(1700000000, 0).UTC(), identity.KindFile, false)
}

func TestEncodePath(t *testing.T) {
	got, err := store.EncodePath("/store/common", fileID("bashrc", "aaaa"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/store/common", "bashrc#aaaa#1700000000#F"), got)

	// slashes in the logical name become directories
	got, err = store.EncodePath("/store/common", fileID(".config/git/config", "bbbb"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/store/common", ".config/git", "config#bbbb#1700000000#F"), got)
}

func TestScanEmptyOrMissingDir(t *testing.T) {
	snap, err := store.Scan(newMemFS(), "/store/common")
	require.NoError(t, err)
	assert.Empty(t, snap.Names())
}

func TestScanDecodesEntries(t *testing.T) {
	fsys := newMemFS()
	mustWrite(t, fsys, "/store/common", fileID("bashrc", "aaaa"), "blob-a")
	mustWrite(t, fsys, "/store/common", fileID(".config/git/config", "bbbb"), "blob-b")
	mustWrite(t, fsys, "/store/common", fileID("vimrc", "cccc").AsConflict(), "blob-c")
	// working copies are not identity files and must be ignored
	require.NoError(t, fsys.WriteFile("/store/common/bashrc", []byte("plain"), 0644))

	snap, err := store.Scan(fsys, "/store/common")
	require.NoError(t, err)

	assert.Equal(t, []string{".config/git/config", "bashrc", "vimrc"}, snap.Names())
	require.Len(t, snap.Canonical("bashrc"), 1)
	assert.Equal(t, "aaaa", snap.Canonical("bashrc")[0].ID.Hash)
	require.Len(t, snap.Canonical(".config/git/config"), 1)
	assert.Empty(t, snap.Canonical("vimrc"))
	require.Len(t, snap.Conflicts("vimrc"), 1)
	assert.True(t, snap.Conflicts("vimrc")[0].ID.Conflict)
	assert.True(t, snap.HasVersion("bashrc", "aaaa"))
	assert.False(t, snap.HasVersion("bashrc", "ffff"))
}

func TestScanSkipsMalformedNames(t *testing.T) {
	fsys := newMemFS()
	mustWrite(t, fsys, "/store/common", fileID("bashrc", "aaaa"), "blob-a")
	require.NoError(t, fsys.WriteFile("/store/common/broken#entry", []byte("x"), 0644))

	snap, err := store.Scan(fsys, "/store/common")
	require.NoError(t, err)

	assert.Equal(t, []string{"bashrc"}, snap.Names())
}

func TestScanGroupsMultipleVersions(t *testing.T) {
	fsys := newMemFS()
	mustWrite(t, fsys, "/store/common", fileID("bashrc", "aaaa"), "old")
	mustWrite(t, fsys, "/store/common", fileID("bashrc", "ffff"), "new")

	snap, err := store.Scan(fsys, "/store/common")
	require.NoError(t, err)

	assert.Len(t, snap.Canonical("bashrc"), 2)
}

func TestAllConflictsSorted(t *testing.T) {
	fsys := newMemFS()
	mustWrite(t, fsys, "/store/common", fileID("zshrc", "aaaa").AsConflict(), "z")
	mustWrite(t, fsys, "/store/common", fileID("bashrc", "bbbb").AsConflict(), "b")

	snap, err := store.Scan(fsys, "/store/common")
	require.NoError(t, err)

	all := snap.AllConflicts()
	require.Len(t, all, 2)
	assert.Equal(t, "bashrc", all[0].ID.Name)
	assert.Equal(t, "zshrc", all[1].ID.Name)
}

package gitignore

import (
	"testing"

	"github.com/arthur-debert/microdot/pkg/filesystem"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncWritesManagedBlock(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	f := New(fsys, "/store/.gitignore")

	require.NoError(t, f.Sync([]string{"vimrc", "bashrc", "config/git/config"}))

	data, err := fsys.ReadFile("/store/.gitignore")
	require.NoError(t, err)
	assert.Equal(t,
		"# managed by microdot, do not edit\n/bashrc\n/config/git/config\n/vimrc\n",
		string(data))
}

func TestSyncPreservesUserLines(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/store/.gitignore",
		[]byte("*.swp\n\n# managed by microdot, do not edit\n/old\n"), 0644))

	f := New(fsys, "/store/.gitignore")
	require.NoError(t, f.Sync([]string{"bashrc"}))

	data, err := fsys.ReadFile("/store/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "*.swp\n# managed by microdot, do not edit\n/bashrc\n", string(data))
}

func TestSyncEmptySet(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	f := New(fsys, "/store/.gitignore")

	require.NoError(t, f.Sync(nil))

	data, err := fsys.ReadFile("/store/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "# managed by microdot, do not edit\n", string(data))
}

package reconcile

import (
	"testing"
	"time"

	mderrors "github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/filesystem"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/status"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/arthur-debert/microdot/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const channelDir = "/store/common"

func writeBlob(t *testing.T, fsys types.FS, name, hash string, conflict bool) store.Entry {
	t.Helper()
	id := identity.New(name, hash, time.Unix(1700000000, 0).UTC(), identity.KindFile, false)
	if conflict {
		id = id.AsConflict()
	}
	e, err := store.WriteEntry(fsys, channelDir, id, []byte("content-"+hash))
	require.NoError(t, err)
	return e
}

func snapshot(t *testing.T, fsys types.FS) *store.Snapshot {
	t.Helper()
	snap, err := store.Scan(fsys, channelDir)
	require.NoError(t, err)
	return snap
}

func TestClassifyAttribution(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")

	// survives the pull untouched
	writeBlob(t, fsys, "bashrc", "h1", false)
	pre := snapshot(t, fsys)

	// pull delivers a concurrent version alongside it
	writeBlob(t, fsys, "bashrc", "h2", false)
	// and a brand new item
	writeBlob(t, fsys, "vimrc", "h9", false)
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	require.Empty(t, errs)
	require.Len(t, inputs, 2)

	bashrc := inputs[0]
	assert.Equal(t, "bashrc", bashrc.Name)
	require.NotNil(t, bashrc.Local)
	require.NotNil(t, bashrc.Remote)
	assert.Equal(t, "h1", bashrc.Local.ID.Hash)
	assert.Equal(t, "h2", bashrc.Remote.ID.Hash)
	assert.False(t, bashrc.LocalGone)

	vimrc := inputs[1]
	assert.Equal(t, "vimrc", vimrc.Name)
	assert.Nil(t, vimrc.Local)
	require.NotNil(t, vimrc.Remote)
	assert.Equal(t, "h9", vimrc.Remote.ID.Hash)
}

func TestClassifyLocalGone(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")

	gone := writeBlob(t, fsys, "bashrc", "h1", false)
	list.Upsert(gone.ID)
	pre := snapshot(t, fsys)

	// the pull removed the blob
	require.NoError(t, fsys.Remove(gone.Path))
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	require.Empty(t, errs)
	require.Len(t, inputs, 1)

	in := inputs[0]
	require.NotNil(t, in.Local)
	assert.Equal(t, "h1", in.Local.ID.Hash)
	assert.True(t, in.LocalGone)
	assert.Nil(t, in.Remote)
	require.NotNil(t, in.Status)
	assert.Equal(t, "h1", in.Status.Hash)
}

func TestClassifyStatusOnlyName(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")
	list.Upsert(identity.New("zshrc", "h1", time.Unix(1700000000, 0).UTC(), identity.KindFile, false))

	pre := snapshot(t, fsys)
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	require.Empty(t, errs)
	require.Len(t, inputs, 1)
	assert.Nil(t, inputs[0].Local)
	assert.Nil(t, inputs[0].Remote)
	require.NotNil(t, inputs[0].Status)
}

func TestClassifyConflictMarkedEntriesStayOut(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")

	writeBlob(t, fsys, "bashrc", "h1", false)
	writeBlob(t, fsys, "bashrc", "h2", true)
	pre := snapshot(t, fsys)
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	require.Empty(t, errs)
	require.Len(t, inputs, 1)

	// only the canonical version participates, flagged as conflicted
	require.NotNil(t, inputs[0].Local)
	assert.Equal(t, "h1", inputs[0].Local.ID.Hash)
	assert.Nil(t, inputs[0].Remote)
	assert.True(t, inputs[0].Conflicted)

	// names without conflict markers stay unflagged
	writeBlob(t, fsys, "vimrc", "h3", false)
	clean := snapshot(t, fsys)
	inputs, errs = Classify(clean, clean, list)
	require.Empty(t, errs)
	for _, in := range inputs {
		if in.Name == "vimrc" {
			assert.False(t, in.Conflicted)
		}
	}
}

func TestClassifyInvariantErrorsDoNotStopOthers(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")

	// two canonical versions before any pull is out of table
	writeBlob(t, fsys, "broken", "h1", false)
	writeBlob(t, fsys, "broken", "h2", false)
	writeBlob(t, fsys, "fine", "h3", false)
	pre := snapshot(t, fsys)
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	require.Len(t, errs, 1)
	assert.True(t, mderrors.IsErrorCode(errs[0], mderrors.ErrInvariant))

	require.Len(t, inputs, 1)
	assert.Equal(t, "fine", inputs[0].Name)
}

func TestClassifyTooManyPostVersions(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")

	pre := snapshot(t, fsys)
	writeBlob(t, fsys, "bashrc", "h1", false)
	writeBlob(t, fsys, "bashrc", "h2", false)
	writeBlob(t, fsys, "bashrc", "h3", false)
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	assert.Empty(t, inputs)
	require.Len(t, errs, 1)
	assert.True(t, mderrors.IsErrorCode(errs[0], mderrors.ErrInvariant))
}

func TestClassifyNestedNames(t *testing.T) {
	fsys := filesystem.NewAfero(afero.NewMemMapFs())
	list := status.New(fsys, "/store/.microdot/status.list")

	writeBlob(t, fsys, "config/git/config", "h1", false)
	pre := snapshot(t, fsys)
	post := snapshot(t, fsys)

	inputs, errs := Classify(pre, post, list)
	require.Empty(t, errs)
	require.Len(t, inputs, 1)
	assert.Equal(t, "config/git/config", inputs[0].Name)
	require.NotNil(t, inputs[0].Local)
}

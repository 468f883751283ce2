package store

import (
	"time"

	"github.com/arthur-debert/microdot/pkg/crypto"
	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/types"
)

// Materializer converts between store blobs and plain working copies.
// It owns the encrypt/decrypt step so callers deal in plaintext only.
type Materializer struct {
	fs     types.FS
	cipher crypto.Cipher
	hasher types.Hasher
}

// NewMaterializer builds a materializer. cipher may be nil when no store
// key is configured; encrypted entries then fail with a DECRYPTION error
// instead of crashing.
func NewMaterializer(fsys types.FS, cipher crypto.Cipher, hasher types.Hasher) *Materializer {
	return &Materializer{fs: fsys, cipher: cipher, hasher: hasher}
}

// Open reads an entry's blob and returns its plaintext: file content for
// files, a tar archive for directories.
func (m *Materializer) Open(entry Entry) ([]byte, error) {
	blob, err := m.fs.ReadFile(entry.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", entry.Path)
	}
	if !entry.ID.Encrypted {
		return blob, nil
	}
	if m.cipher == nil {
		return nil, errors.Newf(errors.ErrDecryption, "no encryption key configured, cannot open %s", entry.ID.Name)
	}
	return m.cipher.Decrypt(blob)
}

// Seal converts plaintext into a blob plus a freshly minted identity.
// For directories the plaintext must be a tar archive (see crypto.PackDir).
func (m *Materializer) Seal(name string, plaintext []byte, ts time.Time, kind identity.Kind, encrypted bool) (identity.Identity, []byte, error) {
	blob := plaintext
	if encrypted {
		if m.cipher == nil {
			return identity.Identity{}, nil, errors.Newf(errors.ErrEncryption, "no encryption key configured, cannot seal %s", name)
		}
		sealed, err := m.cipher.Encrypt(plaintext)
		if err != nil {
			return identity.Identity{}, nil, err
		}
		blob = sealed
	}
	return identity.New(name, m.hasher.Sum(blob), ts, kind, encrypted), blob, nil
}

// WriteWorkingCopy materializes an entry's plain content next to its
// blob: a regular file for file entries, an extracted tree for directory
// entries. Any previous working copy is replaced.
func (m *Materializer) WriteWorkingCopy(channelDir string, entry Entry) error {
	plaintext, err := m.Open(entry)
	if err != nil {
		return err
	}

	target := WorkingCopyPath(channelDir, entry.ID.Name)
	switch entry.ID.Kind {
	case identity.KindDirectory:
		if err := m.fs.RemoveAll(target); err != nil {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to clear %s", target)
		}
		if err := m.fs.MkdirAll(target, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to create %s", target)
		}
		return crypto.UnpackDir(m.fs, plaintext, target)
	default:
		if err := m.fs.WriteFile(target, plaintext, 0600); err != nil {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", target)
		}
		return nil
	}
}

// RemoveWorkingCopy deletes the working copy of a logical name if one
// exists.
func (m *Materializer) RemoveWorkingCopy(channelDir, name string) error {
	target := WorkingCopyPath(channelDir, name)
	if _, err := m.fs.Stat(target); err != nil {
		return nil
	}
	if err := m.fs.RemoveAll(target); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to remove %s", target)
	}
	return nil
}

// Hasher exposes the content hasher used for minting identities.
func (m *Materializer) Hasher() types.Hasher {
	return m.hasher
}

package types

import "io/fs"

// FS abstracts filesystem operations so the engine can run against the
// real OS filesystem in production and an afero filesystem in tests.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	ReadDir(name string) ([]fs.DirEntry, error)
}

// Hasher produces the short content fingerprint carried inside identity
// filenames. Equality of fingerprints is the only version comparison the
// engine ever performs.
type Hasher interface {
	Sum(data []byte) string
}

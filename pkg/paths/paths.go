// Package paths provides centralized path handling for microdot.
// It implements XDG Base Directory specification compliance and
// provides a consistent API for all path operations in the codebase.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/microdot/pkg/errors"
)

// Environment variable names
const (
	// EnvDotfilesRoot is the primary environment variable for the store location
	EnvDotfilesRoot = "MICRODOT_DOTFILES_ROOT"

	// EnvConfigDir overrides the XDG config directory for microdot
	EnvConfigDir = "MICRODOT_CONFIG_DIR"

	// EnvStateDir overrides the XDG state directory for microdot
	EnvStateDir = "MICRODOT_STATE_DIR"
)

// Default directories and files
// IMPORTANT: These constants define the store's internal metadata layout
// and are NOT user-configurable. External tooling (shell completion,
// listing) parses on this layout.
const (
	// AppDirName is the directory name used under XDG base directories
	AppDirName = "microdot"

	// MetadataDirName is the private metadata directory inside the store
	MetadataDirName = ".microdot"

	// StatusListFile is the status list filename inside the metadata dir
	StatusListFile = "status.list"

	// LockFile is the reconciliation lock filename inside the metadata dir
	LockFile = "sync.lock"

	// TmpDirName holds scratch files for decrypt/merge inside the metadata dir
	TmpDirName = "tmp"

	// ConfigFile is the main configuration filename
	ConfigFile = "config.toml"

	// GitignoreFile keeps decrypted working copies out of the shared store
	GitignoreFile = ".gitignore"

	// DefaultChannel is the channel used when none is configured
	DefaultChannel = "common"
)

// Paths provides centralized path management for microdot
type Paths struct {
	root      string
	configDir string
	stateDir  string
}

// New creates a Paths instance. The store root is resolved from the
// explicit argument, then MICRODOT_DOTFILES_ROOT, then the XDG data dir.
func New(root string) (*Paths, error) {
	if root == "" {
		root = os.Getenv(EnvDotfilesRoot)
	}
	if root == "" {
		root = filepath.Join(xdg.DataHome, AppDirName, "dotfiles")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigValid, "cannot resolve dotfiles root %q", root)
	}

	configDir := os.Getenv(EnvConfigDir)
	if configDir == "" {
		configDir = filepath.Join(xdg.ConfigHome, AppDirName)
	}

	stateDir := os.Getenv(EnvStateDir)
	if stateDir == "" {
		stateDir = filepath.Join(xdg.StateHome, AppDirName)
	}

	return &Paths{
		root:      abs,
		configDir: configDir,
		stateDir:  stateDir,
	}, nil
}

// DotfilesRoot returns the root of the shared store.
func (p *Paths) DotfilesRoot() string {
	return p.root
}

// ConfigDir returns the user configuration directory.
func (p *Paths) ConfigDir() string {
	return p.configDir
}

// ConfigFilePath returns the main configuration file path.
func (p *Paths) ConfigFilePath() string {
	return filepath.Join(p.configDir, ConfigFile)
}

// StateDir returns the state directory (logs, caches).
func (p *Paths) StateDir() string {
	return p.stateDir
}

// MetadataDir returns the store's private metadata directory.
func (p *Paths) MetadataDir() string {
	return filepath.Join(p.root, MetadataDirName)
}

// StatusListPath returns the path of the persisted status list.
func (p *Paths) StatusListPath() string {
	return filepath.Join(p.MetadataDir(), StatusListFile)
}

// LockPath returns the path of the reconciliation lock file.
func (p *Paths) LockPath() string {
	return filepath.Join(p.MetadataDir(), LockFile)
}

// TmpDir returns the scratch directory used during decrypt and merge.
func (p *Paths) TmpDir() string {
	return filepath.Join(p.MetadataDir(), TmpDirName)
}

// GitignorePath returns the store's gitignore file path.
func (p *Paths) GitignorePath() string {
	return filepath.Join(p.root, GitignoreFile)
}

// ChannelDir returns the directory of a channel. An empty name selects
// the default channel.
func (p *Paths) ChannelDir(name string) string {
	if name == "" {
		name = DefaultChannel
	}
	return filepath.Join(p.root, name)
}

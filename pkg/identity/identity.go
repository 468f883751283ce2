// Package identity implements the content-addressed naming scheme for
// dotfile versions. Every physical file in the store carries its full
// identity in its filename:
//
//	<logical_name>#<hash>#<timestamp>#<F|D>[#CRYPT][#CONFLICT]
//
// The logical name identifies which dotfile a file is a version of; the
// hash identifies which version. Two files are the same version iff their
// hashes are equal. Timestamps are a display aid only and never decide
// which version wins.
package identity

import (
	"time"
)

// Kind distinguishes file identities from directory identities.
// Directories are archived and shipped as a single blob.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// String returns the single-letter wire token for the kind.
func (k Kind) String() string {
	if k == KindDirectory {
		return "D"
	}
	return "F"
}

// Identity is the content-addressed descriptor of one physical file in
// the store.
type Identity struct {
	// Name is the logical name: the path of the dotfile relative to its
	// channel, independent of version.
	Name string

	// Hash is the short content fingerprint of the stored blob
	// (ciphertext for encrypted items, plain content otherwise).
	Hash string

	// Timestamp records when this version was created. Display aid only.
	Timestamp time.Time

	Kind      Kind
	Encrypted bool

	// Conflict marks this identity as an unresolved alternate version
	// sitting alongside the canonical one.
	Conflict bool
}

// New mints an identity for a freshly written blob.
func New(name, hash string, ts time.Time, kind Kind, encrypted bool) Identity {
	return Identity{
		Name:      name,
		Hash:      hash,
		Timestamp: ts,
		Kind:      kind,
		Encrypted: encrypted,
	}
}

// SameVersion reports whether two identities describe the same version.
// Content hash equality is the only authority for this.
func (id Identity) SameVersion(other Identity) bool {
	return id.Hash == other.Hash
}

// SameItem reports whether two identities describe the same logical
// dotfile, regardless of version.
func (id Identity) SameItem(other Identity) bool {
	return id.Name == other.Name
}

// AsConflict returns a copy of the identity with the conflict flag set.
func (id Identity) AsConflict() Identity {
	id.Conflict = true
	return id
}

// Package reconcile implements the per-name comparison algorithm that
// keeps the store consistent across machines.
//
// For every logical name a pass gathers three facts: the local-side
// version A (the blob as of the latest local encryption pass), the
// remote-side version B (what the pull delivered), and the status entry
// S (the last version both sides agreed on). A fixed decision table maps
// each combination to exactly one operation. Because the shared store
// cannot merge binary content, concurrent modification never picks a
// silent winner: both versions survive, one conflict-marked, until a
// human resolves them.
package reconcile

import (
	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/store"
)

// Op is the action the table selects for one logical name.
type Op int

const (
	// OpNone: nothing to do.
	OpNone Op = iota

	// OpConfirm: both sides hold the same version; (re)record agreement.
	OpConfirm

	// OpTrackLocal: new local item; record it, the push ships it.
	OpTrackLocal

	// OpMaterializeRemote: new remote item; write its working copy and
	// record it.
	OpMaterializeRemote

	// OpAdoptRemote: remote changed since agreement, local did not;
	// replace the local version with the remote one.
	OpAdoptRemote

	// OpKeepLocal: local changed since agreement, remote did not; keep
	// the local version, drop any stale remote blob.
	OpKeepLocal

	// OpDeleteLocal: remote deleted the item after agreement; delete it
	// locally and forget it.
	OpDeleteLocal

	// OpDeleteRemote: local deleted the item after agreement; delete the
	// pulled blob and forget it.
	OpDeleteRemote

	// OpConflict: both sides changed independently; keep both versions,
	// the losing one conflict-marked. Status stays untouched until a
	// human resolves it.
	OpConflict

	// OpDropStatus: stale bookkeeping; the item is gone everywhere.
	OpDropStatus
)

var opNames = map[Op]string{
	OpNone:              "none",
	OpConfirm:           "confirm",
	OpTrackLocal:        "track-local",
	OpMaterializeRemote: "materialize-remote",
	OpAdoptRemote:       "adopt-remote",
	OpKeepLocal:         "keep-local",
	OpDeleteLocal:       "delete-local",
	OpDeleteRemote:      "delete-remote",
	OpConflict:          "conflict",
	OpDropStatus:        "drop-status",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "unknown"
}

// Input is one row of facts for one logical name.
type Input struct {
	Name string

	// Local is the local-side version A, nil when absent.
	Local *store.Entry

	// Remote is the remote-side version B delivered by the pull, nil
	// when nothing arrived.
	Remote *store.Entry

	// Status is the agreed version S, nil when the name was never
	// reconciled.
	Status *identity.Identity

	// LocalGone is set when the pull removed the local-side blob: the
	// remote end committed a deletion or replacement of the version we
	// had. Local still describes that version; its file no longer
	// exists.
	LocalGone bool

	// Conflicted is set when the name has conflict-marked versions on
	// disk. An open conflict freezes the name.
	Conflicted bool
}

// Decide evaluates the table for one logical name. It is pure: no I/O,
// no dependence on other names, deterministic for equal inputs. Hash
// equality is the only version comparison; timestamps never participate.
//
// States outside the table indicate a bug or manual tampering with the
// store and come back as INVARIANT_VIOLATION, never a silent guess.
func Decide(in Input) (Op, error) {
	a, b, s := in.Local, in.Remote, in.Status

	if in.Conflicted {
		// An open conflict freezes the name: no operation runs and the
		// status entry stays put until a human resolves the pair.
		return OpNone, nil
	}

	switch {
	case a == nil && b == nil:
		if s != nil {
			// Item removed everywhere; only bookkeeping remains.
			return OpDropStatus, nil
		}
		return OpNone, nil

	case a != nil && b == nil:
		if in.LocalGone {
			// The pull deleted our version without a replacement. That
			// is only legal for a version the remote knew, i.e. the
			// agreed one.
			if s != nil && s.Hash == a.ID.Hash {
				return OpDeleteLocal, nil
			}
			return OpNone, errors.Newf(errors.ErrInvariant,
				"pull removed unpushed version of %s (hash %s)", in.Name, a.ID.Hash)
		}
		if s == nil {
			return OpTrackLocal, nil
		}
		if s.Hash == a.ID.Hash {
			return OpNone, nil
		}
		// Local moved past the agreed version; the remote side has not
		// spoken, so the local change stands and the push ships it.
		return OpKeepLocal, nil

	case a == nil && b != nil:
		if s == nil {
			return OpMaterializeRemote, nil
		}
		if s.Hash == b.ID.Hash {
			// Already reconciled in an earlier pass.
			return OpNone, nil
		}
		// The item was agreed, the local side no longer has any version
		// of it: local deleted it. Deletion wins over the remote change.
		return OpDeleteRemote, nil

	default: // both present
		if in.LocalGone {
			// Remote replaced the agreed version: legal only when local
			// was still sitting on it.
			if s != nil && s.Hash == a.ID.Hash {
				return OpAdoptRemote, nil
			}
			return OpNone, errors.Newf(errors.ErrInvariant,
				"pull replaced unpushed version of %s (hash %s)", in.Name, a.ID.Hash)
		}
		if a.ID.Hash == b.ID.Hash {
			return OpConfirm, nil
		}
		if s == nil {
			return OpConflict, nil
		}
		if s.Hash == a.ID.Hash {
			return OpAdoptRemote, nil
		}
		if s.Hash == b.ID.Hash {
			return OpKeepLocal, nil
		}
		return OpConflict, nil
	}
}

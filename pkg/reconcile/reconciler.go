package reconcile

import (
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/status"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/rs/zerolog"
)

// Marker materializes a detected conflict: the losing version is kept on
// disk under a conflict-marked filename next to the canonical one.
// Implemented by the conflict manager.
type Marker interface {
	Materialize(channelDir string, canonical, loser store.Entry) (store.Entry, error)
}

// Summary reports what one reconciliation pass did.
type Summary struct {
	Examined     int
	Unchanged    int
	Tracked      int
	Materialized int
	Adopted      int
	Kept         int
	Deleted      int
	Dropped      int

	// Conflicts lists logical names newly put into conflict this pass.
	Conflicts []string

	// Errors collects per-name failures. One bad name never stops the
	// others.
	Errors []error
}

// Mutations counts file or status changes; two passes without external
// change must report zero for the second.
func (s Summary) Mutations() int {
	return s.Tracked + s.Materialized + s.Adopted + s.Kept + s.Deleted + s.Dropped + len(s.Conflicts)
}

// Reconciler applies decision-table operations to a channel directory.
type Reconciler struct {
	fs         *store.Materializer
	raw        rawFS
	channelDir string
	status     *status.List
	marker     Marker
	logger     zerolog.Logger
}

// rawFS is the subset of types.FS the reconciler needs besides the
// materializer.
type rawFS interface {
	Remove(name string) error
}

// New builds a reconciler for one channel.
func New(mat *store.Materializer, raw rawFS, channelDir string, list *status.List, marker Marker) *Reconciler {
	return &Reconciler{
		fs:         mat,
		raw:        raw,
		channelDir: channelDir,
		status:     list,
		marker:     marker,
		logger:     logging.GetLogger("reconcile"),
	}
}

// Run evaluates and applies the table for every input. Inputs are
// independent: a failure on one name is recorded and the rest proceed.
// The status list is mutated in memory only; the caller persists it.
func (r *Reconciler) Run(inputs []Input) Summary {
	var sum Summary
	for _, in := range inputs {
		sum.Examined++

		op, err := Decide(in)
		if err != nil {
			// out-of-table state: surface loudly, touch nothing
			r.logger.Error().Err(err).Str("name", in.Name).Msg("Reconciliation invariant violated")
			sum.Errors = append(sum.Errors, err)
			continue
		}

		r.logger.Debug().Str("name", in.Name).Stringer("op", op).Msg("Reconciling")
		if err := r.apply(op, in, &sum); err != nil {
			r.logger.Error().Err(err).Str("name", in.Name).Stringer("op", op).Msg("Failed to apply")
			sum.Errors = append(sum.Errors, err)
		}
	}
	return sum
}

func (r *Reconciler) apply(op Op, in Input, sum *Summary) error {
	switch op {
	case OpNone:
		sum.Unchanged++
		return nil

	case OpConfirm:
		r.status.Upsert(in.Local.ID)
		sum.Unchanged++
		return nil

	case OpTrackLocal:
		r.logger.Info().Str("name", in.Name).Str("hash", in.Local.ID.Hash).Msg("New local item")
		r.status.Upsert(in.Local.ID)
		sum.Tracked++
		return nil

	case OpMaterializeRemote:
		r.logger.Info().Str("name", in.Name).Str("hash", in.Remote.ID.Hash).Msg("New remote item")
		if err := r.fs.WriteWorkingCopy(r.channelDir, *in.Remote); err != nil {
			return err
		}
		r.status.Upsert(in.Remote.ID)
		sum.Materialized++
		return nil

	case OpAdoptRemote:
		r.logger.Info().Str("name", in.Name).
			Str("old", in.Local.ID.Hash).Str("new", in.Remote.ID.Hash).
			Msg("Adopting remote version")
		if !in.LocalGone {
			if err := r.raw.Remove(in.Local.Path); err != nil {
				return err
			}
		}
		if err := r.fs.WriteWorkingCopy(r.channelDir, *in.Remote); err != nil {
			return err
		}
		r.status.Upsert(in.Remote.ID)
		sum.Adopted++
		return nil

	case OpKeepLocal:
		r.logger.Info().Str("name", in.Name).Str("hash", in.Local.ID.Hash).Msg("Keeping local version")
		if in.Remote != nil {
			if err := r.raw.Remove(in.Remote.Path); err != nil {
				return err
			}
		}
		r.status.Upsert(in.Local.ID)
		sum.Kept++
		return nil

	case OpDeleteLocal:
		r.logger.Info().Str("name", in.Name).Msg("Remote deleted item, removing locally")
		if !in.LocalGone {
			if err := r.raw.Remove(in.Local.Path); err != nil {
				return err
			}
		}
		if err := r.fs.RemoveWorkingCopy(r.channelDir, in.Name); err != nil {
			return err
		}
		r.status.Remove(in.Name)
		sum.Deleted++
		return nil

	case OpDeleteRemote:
		r.logger.Info().Str("name", in.Name).Msg("Local deleted item, dropping pulled version")
		if err := r.raw.Remove(in.Remote.Path); err != nil {
			return err
		}
		if err := r.fs.RemoveWorkingCopy(r.channelDir, in.Name); err != nil {
			return err
		}
		r.status.Remove(in.Name)
		sum.Deleted++
		return nil

	case OpConflict:
		r.logger.Warn().Str("name", in.Name).
			Str("local", in.Local.ID.Hash).Str("remote", in.Remote.ID.Hash).
			Msg("Concurrent modification, keeping both versions")
		// local is the canonical candidate, the pulled version gets the
		// conflict marker; the status entry stays as-is until a human
		// resolves it
		if _, err := r.marker.Materialize(r.channelDir, *in.Local, *in.Remote); err != nil {
			return err
		}
		sum.Conflicts = append(sum.Conflicts, in.Name)
		return nil

	case OpDropStatus:
		r.logger.Info().Str("name", in.Name).Msg("Dropping stale status entry")
		if err := r.fs.RemoveWorkingCopy(r.channelDir, in.Name); err != nil {
			return err
		}
		r.status.Remove(in.Name)
		sum.Dropped++
		return nil
	}
	return nil
}

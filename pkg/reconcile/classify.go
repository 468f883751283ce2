package reconcile

import (
	"sort"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/status"
	"github.com/arthur-debert/microdot/pkg/store"
)

// Classify turns a pre-pull snapshot, a post-pull snapshot and the
// status list into one Input per logical name.
//
// Side attribution works off the pull itself: a blob already present
// before the pull belongs to the local side; a blob the pull delivered
// belongs to the remote side. When the pull removed the local-side blob
// the input carries LocalGone so the table can tell a remote deletion
// from a local change.
//
// Names whose physical state cannot be attributed (several non-conflict
// blobs on one side) are reported as INVARIANT_VIOLATION errors and
// excluded from the inputs; they must not stop other names.
func Classify(pre, post *store.Snapshot, list *status.List) ([]Input, []error) {
	names := make(map[string]struct{})
	for _, n := range pre.Names() {
		names[n] = struct{}{}
	}
	for _, n := range post.Names() {
		names[n] = struct{}{}
	}
	for _, n := range list.Names() {
		names[n] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var inputs []Input
	var errs []error

	for _, name := range sorted {
		in, err := classifyName(name, pre, post, list)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, errs
}

func classifyName(name string, pre, post *store.Snapshot, list *status.List) (Input, error) {
	preEntries := pre.Canonical(name)
	postEntries := post.Canonical(name)

	if len(preEntries) > 1 {
		return Input{}, errors.Newf(errors.ErrInvariant,
			"%d non-conflict versions of %s before the pull", len(preEntries), name)
	}
	if len(postEntries) > 2 {
		return Input{}, errors.Newf(errors.ErrInvariant,
			"%d non-conflict versions of %s after the pull", len(postEntries), name)
	}

	var survivor, arrival *store.Entry
	for i := range postEntries {
		e := postEntries[i]
		if pre.HasVersion(name, e.ID.Hash) {
			if survivor != nil {
				return Input{}, errors.Newf(errors.ErrInvariant,
					"two surviving local versions of %s", name)
			}
			survivor = &e
		} else {
			if arrival != nil {
				return Input{}, errors.Newf(errors.ErrInvariant,
					"two pulled versions of %s", name)
			}
			arrival = &e
		}
	}

	in := Input{Name: name, Remote: arrival, Conflicted: len(post.Conflicts(name)) > 0}
	if survivor != nil {
		in.Local = survivor
	} else if len(preEntries) == 1 {
		// the pull removed the version we had
		e := preEntries[0]
		in.Local = &e
		in.LocalGone = true
	}

	if s, ok := list.Get(name); ok {
		in.Status = &s
	}
	return in, nil
}

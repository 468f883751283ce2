package reconcile

import (
	"testing"
	"time"

	mderrors "github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(name, hash string) *store.Entry {
	return &store.Entry{
		ID:   identity.New(name, hash, time.Unix(1700000000, 0).UTC(), identity.KindFile, false),
		Path: "/store/common/" + name + "#" + hash + "#1700000000#F",
	}
}

func statusOf(name, hash string) *identity.Identity {
	id := identity.New(name, hash, time.Unix(1690000000, 0).UTC(), identity.KindFile, false)
	return &id
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Op
	}{
		{
			name: "new_local_item",
			in:   Input{Name: "x", Local: entry("x", "h1")},
			want: OpTrackLocal,
		},
		{
			name: "new_remote_item",
			in:   Input{Name: "x", Remote: entry("x", "h1")},
			want: OpMaterializeRemote,
		},
		{
			name: "in_sync_no_remote_activity",
			in:   Input{Name: "x", Local: entry("x", "h1"), Status: statusOf("x", "h1")},
			want: OpNone,
		},
		{
			name: "local_changed_remote_silent",
			in:   Input{Name: "x", Local: entry("x", "h2"), Status: statusOf("x", "h1")},
			want: OpKeepLocal,
		},
		{
			name: "remote_already_reconciled",
			in:   Input{Name: "x", Remote: entry("x", "h1"), Status: statusOf("x", "h1")},
			want: OpNone,
		},
		{
			name: "local_deleted_after_agreement",
			in:   Input{Name: "x", Remote: entry("x", "h2"), Status: statusOf("x", "h1")},
			want: OpDeleteRemote,
		},
		{
			name: "both_hold_same_version",
			in:   Input{Name: "x", Local: entry("x", "h1"), Remote: entry("x", "h1")},
			want: OpConfirm,
		},
		{
			name: "independent_creation_conflict",
			in:   Input{Name: "x", Local: entry("x", "h1"), Remote: entry("x", "h2")},
			want: OpConflict,
		},
		{
			name: "remote_changed_local_clean",
			in:   Input{Name: "x", Local: entry("x", "h1"), Remote: entry("x", "h2"), Status: statusOf("x", "h1")},
			want: OpAdoptRemote,
		},
		{
			name: "local_changed_remote_clean",
			in:   Input{Name: "x", Local: entry("x", "h2"), Remote: entry("x", "h1"), Status: statusOf("x", "h1")},
			want: OpKeepLocal,
		},
		{
			name: "both_changed_conflict",
			in:   Input{Name: "x", Local: entry("x", "h2"), Remote: entry("x", "h3"), Status: statusOf("x", "h1")},
			want: OpConflict,
		},
		{
			name: "stale_status_entry",
			in:   Input{Name: "x", Status: statusOf("x", "h1")},
			want: OpDropStatus,
		},
		{
			name: "nothing_anywhere",
			in:   Input{Name: "x"},
			want: OpNone,
		},
		{
			// the canonical version alone would be a new local item, but
			// the open conflict freezes the name until a human resolves it
			name: "open_conflict_freezes_untracked_name",
			in:   Input{Name: "x", Local: entry("x", "h1"), Conflicted: true},
			want: OpNone,
		},
		{
			name: "open_conflict_freezes_tracked_name",
			in:   Input{Name: "x", Local: entry("x", "h2"), Status: statusOf("x", "h1"), Conflicted: true},
			want: OpNone,
		},
		{
			name: "remote_deleted_agreed_version",
			in:   Input{Name: "x", Local: entry("x", "h1"), Status: statusOf("x", "h1"), LocalGone: true},
			want: OpDeleteLocal,
		},
		{
			name: "remote_replaced_agreed_version",
			in:   Input{Name: "x", Local: entry("x", "h1"), Remote: entry("x", "h2"), Status: statusOf("x", "h1"), LocalGone: true},
			want: OpAdoptRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideInvariantViolations(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{
			// the pull can never remove a version it was never given
			name: "pull_removed_unpushed_version",
			in:   Input{Name: "x", Local: entry("x", "h2"), Status: statusOf("x", "h1"), LocalGone: true},
		},
		{
			name: "pull_removed_untracked_version",
			in:   Input{Name: "x", Local: entry("x", "h2"), LocalGone: true},
		},
		{
			name: "pull_replaced_unpushed_version",
			in:   Input{Name: "x", Local: entry("x", "h2"), Remote: entry("x", "h3"), Status: statusOf("x", "h1"), LocalGone: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decide(tt.in)
			require.Error(t, err)
			assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrInvariant), "want INVARIANT_VIOLATION, got %v", err)
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	in := Input{Name: "x", Local: entry("x", "h2"), Remote: entry("x", "h3"), Status: statusOf("x", "h1")}
	first, err := Decide(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := Decide(in)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

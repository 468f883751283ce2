package identity

import (
	"testing"
	"time"

	mderrors "github.com/arthur-debert/microdot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()

	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{
			name: "plain_file",
			id:   New("bashrc", "a1b2c3d4", ts, KindFile, false),
			want: "bashrc#a1b2c3d4#1700000000#F",
		},
		{
			name: "encrypted_file",
			id:   New("ssh_config", "deadbeef", ts, KindFile, true),
			want: "ssh_config#deadbeef#1700000000#F#CRYPT",
		},
		{
			name: "encrypted_directory",
			id:   New("gnupg", "cafef00d", ts, KindDirectory, true),
			want: "gnupg#cafef00d#1700000000#D#CRYPT",
		},
		{
			name: "conflict_marker",
			id:   New("vimrc", "0badf00d", ts, KindFile, false).AsConflict(),
			want: "vimrc#0badf00d#1700000000#F#CONFLICT",
		},
		{
			name: "encrypted_conflict",
			id:   New("netrc", "12345678", ts, KindFile, true).AsConflict(),
			want: "netrc#12345678#1700000000#F#CRYPT#CONFLICT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRejectsSeparatorInName(t *testing.T) {
	_, err := Encode(New("bad#name", "abcd", time.Now(), KindFile, false))
	require.Error(t, err)
	assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrParse))

	_, err = Encode(Identity{Hash: "abcd", Timestamp: time.Now()})
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()

	ids := []Identity{
		New("bashrc", "a1b2c3d4", ts, KindFile, false),
		New("ssh_config", "deadbeef", ts, KindFile, true),
		New("gnupg", "cafef00d", ts, KindDirectory, true),
		New("vimrc", "0badf00d", ts, KindFile, false).AsConflict(),
		New("netrc", "12345678", ts, KindFile, true).AsConflict(),
		New("profile", "87654321", ts, KindDirectory, false),
	}

	for _, id := range ids {
		encoded, err := Encode(id)
		require.NoError(t, err)

		parsed, err := Parse(encoded)
		require.NoError(t, err, "parse %q", encoded)
		assert.Equal(t, id, parsed, "round trip of %q", encoded)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too_few_segments", "bashrc#a1b2"},
		{"too_many_segments", "a#b#1#F#CRYPT#CONFLICT#EXTRA"},
		{"empty_name", "#a1b2#1700000000#F"},
		{"empty_hash", "bashrc##1700000000#F"},
		{"non_numeric_timestamp", "bashrc#a1b2#yesterday#F"},
		{"unknown_kind", "bashrc#a1b2#1700000000#X"},
		{"unknown_marker", "bashrc#a1b2#1700000000#F#SHINY"},
		{"markers_out_of_order", "bashrc#a1b2#1700000000#F#CONFLICT#CRYPT"},
		{"plain_filename", "bashrc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrParse), "want PARSE, got %v", err)
		})
	}
}

func TestSameVersionAndItem(t *testing.T) {
	a := New("bashrc", "aaaa", time.Unix(1, 0), KindFile, false)
	b := New("bashrc", "bbbb", time.Unix(2, 0), KindFile, false)
	c := New("vimrc", "aaaa", time.Unix(3, 0), KindFile, false)

	assert.True(t, a.SameItem(b))
	assert.False(t, a.SameVersion(b))
	assert.True(t, a.SameVersion(c))
	assert.False(t, a.SameItem(c))
}

func TestLogicalName(t *testing.T) {
	assert.Equal(t, "bashrc", LogicalName("bashrc#a1b2#1700000000#F#CONFLICT"))
	assert.Equal(t, "bashrc", LogicalName("bashrc"))
	assert.True(t, IsEncoded("bashrc#a1b2#1700000000#F"))
	assert.False(t, IsEncoded("bashrc"))
}

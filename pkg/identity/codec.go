package identity

import (
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/microdot/pkg/errors"
)

const (
	// Separator joins the segments of an encoded identity filename.
	// Logical names must never contain it.
	Separator = "#"

	tokenCrypt    = "CRYPT"
	tokenConflict = "CONFLICT"
)

// Encode renders an identity into its on-disk filename. It fails fast on
// logical names containing the separator rather than silently producing a
// filename that would parse back differently.
func Encode(id Identity) (string, error) {
	if id.Name == "" {
		return "", errors.New(errors.ErrParse, "logical name is empty")
	}
	if strings.Contains(id.Name, Separator) {
		return "", errors.Newf(errors.ErrParse, "logical name contains %q: %s", Separator, id.Name)
	}

	segments := []string{
		id.Name,
		id.Hash,
		strconv.FormatInt(id.Timestamp.Unix(), 10),
		id.Kind.String(),
	}
	if id.Encrypted {
		segments = append(segments, tokenCrypt)
	}
	if id.Conflict {
		segments = append(segments, tokenConflict)
	}
	return strings.Join(segments, Separator), nil
}

// Parse decodes an identity filename. The segment order is fixed: name,
// hash, timestamp, kind, then optional CRYPT and CONFLICT markers.
func Parse(s string) (Identity, error) {
	segments := strings.Split(s, Separator)
	if len(segments) < 4 || len(segments) > 6 {
		return Identity{}, errors.Newf(errors.ErrParse, "expected 4-6 segments, got %d", len(segments)).
			WithDetail("filename", s)
	}

	name := segments[0]
	if name == "" {
		return Identity{}, errors.New(errors.ErrParse, "logical name is empty").WithDetail("filename", s)
	}

	hash := segments[1]
	if hash == "" {
		return Identity{}, errors.New(errors.ErrParse, "content hash is empty").WithDetail("filename", s)
	}

	ts, err := strconv.ParseInt(segments[2], 10, 64)
	if err != nil {
		return Identity{}, errors.Wrapf(err, errors.ErrParse, "non-numeric timestamp %q", segments[2]).
			WithDetail("filename", s)
	}

	var kind Kind
	switch segments[3] {
	case "F":
		kind = KindFile
	case "D":
		kind = KindDirectory
	default:
		return Identity{}, errors.Newf(errors.ErrParse, "unknown kind %q", segments[3]).
			WithDetail("filename", s)
	}

	id := Identity{
		Name:      name,
		Hash:      hash,
		Timestamp: time.Unix(ts, 0).UTC(),
		Kind:      kind,
	}

	for _, seg := range segments[4:] {
		switch seg {
		case tokenCrypt:
			id.Encrypted = true
		case tokenConflict:
			id.Conflict = true
		default:
			return Identity{}, errors.Newf(errors.ErrParse, "unknown marker %q", seg).
				WithDetail("filename", s)
		}
	}
	// CONFLICT before CRYPT would have been accepted above, but only the
	// fixed order round-trips; reject the swap.
	if id.Conflict && id.Encrypted && segments[4] != tokenCrypt {
		return Identity{}, errors.New(errors.ErrParse, "markers out of order").WithDetail("filename", s)
	}

	return id, nil
}

// IsEncoded reports whether a filename looks like an encoded identity.
// Plain working copies and foreign files do not contain the separator.
func IsEncoded(filename string) bool {
	return strings.Contains(filename, Separator)
}

// LogicalName strips everything from the first separator onward. This is
// the operation CLI consumers use to derive the logical name from a
// conflict-file argument.
func LogicalName(filename string) string {
	if i := strings.Index(filename, Separator); i >= 0 {
		return filename[:i]
	}
	return filename
}

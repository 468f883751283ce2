package crypto

import (
	"archive/tar"
	"bytes"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/types"
)

// PackDir archives a directory tree into a single tar blob. Entries are
// written in sorted order with zeroed timestamps so the archive depends
// only on content.
func PackDir(fsys types.FS, dir string) ([]byte, error) {
	files, dirs, err := walkTree(fsys, dir)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, rel := range dirs {
		hdr := &tar.Header{
			Name:     rel + "/",
			Typeflag: tar.TypeDir,
			Mode:     0755,
			ModTime:  time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to archive %s", rel)
		}
	}

	for _, rel := range files {
		data, err := fsys.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", rel)
		}
		hdr := &tar.Header{
			Name:     rel,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(data)),
			ModTime:  time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to archive %s", rel)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "failed to archive %s", rel)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrFileWrite, "failed to finalize archive")
	}
	return buf.Bytes(), nil
}

// UnpackDir extracts a tar blob produced by PackDir into dest. Entries
// escaping dest are rejected.
func UnpackDir(fsys types.FS, data []byte, dest string) error {
	tr := tar.NewReader(bytes.NewReader(data))

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrFileAccess, "corrupted directory archive")
		}

		name := path.Clean(hdr.Name)
		if name == ".." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
			return errors.Newf(errors.ErrFileAccess, "unsafe path in archive: %s", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fsys.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to create %s", target)
			}
		case tar.TypeReg:
			if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to create parent of %s", target)
			}
			content, err := io.ReadAll(tr)
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "failed to extract %s", name)
			}
			if err := fsys.WriteFile(target, content, 0644); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", target)
			}
		default:
			// symlinks and specials are not part of the archive format
			return errors.Newf(errors.ErrFileAccess, "unsupported entry type in archive: %s", hdr.Name)
		}
	}
}

// walkTree returns sorted slash-separated relative paths of all files and
// directories under dir.
func walkTree(fsys types.FS, dir string) (files, dirs []string, err error) {
	var walk func(rel string) error
	walk = func(rel string) error {
		entries, err := fsys.ReadDir(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read directory %s", rel)
		}
		for _, entry := range entries {
			childRel := entry.Name()
			if rel != "" {
				childRel = rel + "/" + entry.Name()
			}
			if entry.IsDir() {
				dirs = append(dirs, childRel)
				if err := walk(childRel); err != nil {
					return err
				}
			} else {
				files = append(files, childRel)
			}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, nil, err
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}

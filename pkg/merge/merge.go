// Package merge produces a single resolved content from two conflicting
// versions. The store cannot merge on its own, so resolution is a human
// affair: git merge-file builds a conflict-marked draft, the user's
// editor finishes it, and an explicit confirmation gates the result.
package merge

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/logging"
)

const defaultEditor = "vim"

// Merger turns two conflicting plaintexts into one resolved plaintext.
type Merger interface {
	Merge(name string, current, conflict []byte) ([]byte, error)
}

// EditorMerger is the interactive Merger: git merge-file with an empty
// common ancestor yields a draft holding both sides in conflict
// markers, $EDITOR edits it, and the user confirms before anything is
// applied. Declining returns MERGE_ABORTED.
type EditorMerger struct {
	// Editor overrides $EDITOR; empty means environment then vim.
	Editor string

	// In and Out carry the confirmation dialog; nil means stdin/stdout.
	In  io.Reader
	Out io.Writer
}

// Merge implements Merger.
func (m *EditorMerger) Merge(name string, current, conflict []byte) ([]byte, error) {
	logger := logging.GetLogger("merge")

	dir, err := os.MkdirTemp("", "microdot-merge-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMergeFailed, "failed to create merge workspace")
	}
	defer os.RemoveAll(dir)

	draft := filepath.Join(dir, "current")
	base := filepath.Join(dir, "empty")
	theirs := filepath.Join(dir, "conflict")
	for path, data := range map[string][]byte{draft: current, base: nil, theirs: conflict} {
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, errors.Wrapf(err, errors.ErrMergeFailed, "failed to stage %s", path)
		}
	}

	// exit status counts conflicts, so nonzero is still success; only a
	// negative status signals failure
	cmd := exec.Command("git", "merge-file",
		"-L", "current", "-L", "empty", "-L", "conflict",
		draft, base, theirs)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exit *exec.ExitError
		if !stderrors.As(err, &exit) || exit.ExitCode() < 0 {
			return nil, errors.Wrapf(err, errors.ErrMergeFailed, "git merge-file failed: %s", out)
		}
	}

	if err := m.edit(draft); err != nil {
		return nil, err
	}

	resolved, err := os.ReadFile(draft)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMergeFailed, "failed to read merge result")
	}

	m.list(name, resolved)
	if !m.confirm(fmt.Sprintf("Apply merged content to %s?", name)) {
		logger.Info().Str("name", name).Msg("Merge canceled")
		return nil, errors.Newf(errors.ErrMergeAborted, "merge of %s canceled", name)
	}
	return resolved, nil
}

func (m *EditorMerger) edit(path string) error {
	editor := m.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = defaultEditor
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, errors.ErrMergeFailed, "failed to run editor %s", editor)
	}
	return nil
}

// list prints the merge result with line numbers so the user sees what
// the confirmation applies.
func (m *EditorMerger) list(name string, content []byte) {
	out := m.out()
	fmt.Fprintf(out, "merged %s:\n", name)
	for i, line := range strings.Split(strings.TrimRight(string(content), "\n"), "\n") {
		fmt.Fprintf(out, "%4d: %s\n", i+1, line)
	}
}

func (m *EditorMerger) confirm(prompt string) bool {
	in := m.In
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprintf(m.out(), "%s [y/N] ", prompt)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (m *EditorMerger) out() io.Writer {
	if m.Out != nil {
		return m.Out
	}
	return os.Stdout
}

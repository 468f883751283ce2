// Package vcs moves store content between machines through a git
// repository. The store's per-version filenames keep merges trivial
// (every change is an add or a delete), so the adapter only needs
// commit, pull and push.
package vcs

import (
	"context"
	"os/exec"
	"strings"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/rs/zerolog"
)

// Adapter is the transport the sync orchestrator drives. Pull brings
// remote commits into the store directory, Push ships local state out.
// Both are optional in the sense that a failure is recoverable: the
// caller skips the affected phase and tries again next pass.
type Adapter interface {
	Pull(ctx context.Context) error
	Push(ctx context.Context) error
}

// ShellGit implements Adapter by shelling out to the git command, bound
// to one store directory.
type ShellGit struct {
	dir    string
	logger zerolog.Logger
}

// NewShellGit creates an adapter for the repository at dir. The
// directory must already be a git checkout with an origin remote.
func NewShellGit(dir string) *ShellGit {
	return &ShellGit{dir: dir, logger: logging.GetLogger("vcs")}
}

// Pull commits any local state first, then pulls from origin. The
// commit before the pull is what guarantees pulls never clobber
// uncommitted local versions.
func (g *ShellGit) Pull(ctx context.Context) error {
	if err := g.commitAll(ctx); err != nil {
		return err
	}
	if out, err := g.run(ctx, "pull", "--no-rebase", "origin"); err != nil {
		return errors.Wrapf(err, errors.ErrVcs, "git pull failed: %s", out)
	}
	g.logger.Debug().Str("dir", g.dir).Msg("Pulled from origin")
	return nil
}

// Push commits any remaining local state and pushes to origin.
func (g *ShellGit) Push(ctx context.Context) error {
	if err := g.commitAll(ctx); err != nil {
		return err
	}
	if out, err := g.run(ctx, "push", "origin"); err != nil {
		return errors.Wrapf(err, errors.ErrVcs, "git push failed: %s", out)
	}
	g.logger.Debug().Str("dir", g.dir).Msg("Pushed to origin")
	return nil
}

// commitAll stages everything and commits when the index has changes.
func (g *ShellGit) commitAll(ctx context.Context) error {
	if out, err := g.run(ctx, "add", "-A"); err != nil {
		return errors.Wrapf(err, errors.ErrVcs, "git add failed: %s", out)
	}

	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return errors.Wrapf(err, errors.ErrVcs, "git status failed: %s", out)
	}
	if strings.TrimSpace(out) == "" {
		return nil
	}

	if out, err := g.run(ctx, "commit", "-m", "sync"); err != nil {
		return errors.Wrapf(err, errors.ErrVcs, "git commit failed: %s", out)
	}
	g.logger.Info().Str("dir", g.dir).Msg("Committed local changes")
	return nil
}

func (g *ShellGit) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loykin/botsup/internal/config"
)

// ErrSyncFailed is fatal for the whole invocation. The working copy is
// restored to its pre-sync state before it is returned.
var ErrSyncFailed = errors.New("repository synchronization failed")

// Signal is the outcome of one synchronization, consumed once per invocation.
type Signal int

const (
	Unchanged Signal = iota
	Updated
	NewlyInstalled
)

func (s Signal) String() string {
	switch s {
	case Updated:
		return "updated"
	case NewlyInstalled:
		return "newly-installed"
	default:
		return "unchanged"
	}
}

// Syncer keeps the working copy in line with the upstream remote using the
// git binary. Local uncommitted modifications survive a successful sync via
// stash/pop.
type Syncer struct {
	s   config.Settings
	log *slog.Logger
}

func New(s config.Settings, log *slog.Logger) *Syncer {
	return &Syncer{s: s, log: log}
}

// Cloned reports whether a working copy exists.
func (sy *Syncer) Cloned() bool {
	_, err := os.Stat(filepath.Join(sy.s.WorkDir, ".git"))
	return err == nil
}

// Sync ensures the working copy matches upstream. An absent copy is cloned
// (NewlyInstalled). An existing copy is fast-forwarded, stashing dirty state
// around the pull; HEAD movement decides Updated vs Unchanged. On any failure
// the pre-sync state is restored and ErrSyncFailed is returned.
func (sy *Syncer) Sync(ctx context.Context) (Signal, error) {
	if !sy.Cloned() {
		return sy.clone(ctx)
	}

	before, err := sy.head(ctx)
	if err != nil {
		return Unchanged, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	stashed := false
	if sy.dirty(ctx) {
		sy.log.Debug("stashing local modifications before pull")
		if err := sy.git(ctx, "stash", "push", "--include-untracked", "--quiet"); err != nil {
			return Unchanged, fmt.Errorf("%w: stash: %v", ErrSyncFailed, err)
		}
		stashed = true
	}

	pullErr := sy.git(ctx, "pull", "--ff-only", "--quiet", "origin", sy.s.Branch)
	if pullErr != nil {
		if stashed {
			_ = sy.git(ctx, "stash", "pop", "--quiet")
		}
		return Unchanged, fmt.Errorf("%w: pull: %v", ErrSyncFailed, pullErr)
	}

	if stashed {
		if popErr := sy.git(ctx, "stash", "pop", "--quiet"); popErr != nil {
			// The stash conflicts with the update. Rewind to the commit the
			// stash was cut from, where it applies cleanly, leaving the tree
			// exactly as before the sync.
			_ = sy.git(ctx, "reset", "--hard", "--quiet", before)
			_ = sy.git(ctx, "stash", "pop", "--quiet")
			return Unchanged, fmt.Errorf("%w: local changes conflict with update: %v", ErrSyncFailed, popErr)
		}
	}

	after, err := sy.head(ctx)
	if err != nil {
		return Unchanged, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if after != before {
		sy.log.Info("working copy updated", "from", short(before), "to", short(after))
		return Updated, nil
	}
	return Unchanged, nil
}

func (sy *Syncer) clone(ctx context.Context) (Signal, error) {
	if sy.s.RepoURL == "" {
		return Unchanged, fmt.Errorf("%w: no working copy at %s and project.repo_url is not configured", ErrSyncFailed, sy.s.WorkDir)
	}
	if err := os.MkdirAll(filepath.Dir(sy.s.WorkDir), 0o750); err != nil {
		return Unchanged, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	sy.log.Info("cloning worker source", "url", sy.s.RepoURL, "branch", sy.s.Branch)
	cmd := exec.CommandContext(ctx, "git", "clone", "--branch", sy.s.Branch, "--quiet", sy.s.RepoURL, sy.s.WorkDir)
	if out, err := run(cmd); err != nil {
		return Unchanged, fmt.Errorf("%w: clone: %v: %s", ErrSyncFailed, err, out)
	}
	return NewlyInstalled, nil
}

// head returns the current commit id of the working copy.
func (sy *Syncer) head(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", sy.s.WorkDir, "rev-parse", "HEAD")
	out, err := run(cmd)
	if err != nil {
		return "", fmt.Errorf("rev-parse: %v: %s", err, out)
	}
	return strings.TrimSpace(out), nil
}

// dirty reports uncommitted modifications, including untracked files.
func (sy *Syncer) dirty(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", sy.s.WorkDir, "status", "--porcelain")
	out, err := run(cmd)
	return err == nil && strings.TrimSpace(out) != ""
}

func (sy *Syncer) git(ctx context.Context, args ...string) error {
	full := append([]string{"-C", sy.s.WorkDir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	if out, err := run(cmd); err != nil {
		return fmt.Errorf("git %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return nil
}

func run(cmd *exec.Cmd) (string, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	// Stash creates commit objects, which git refuses without an identity.
	// Deploy users often have none configured, so provide a fallback.
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=botsup", "GIT_AUTHOR_EMAIL=botsup@localhost",
		"GIT_COMMITTER_NAME=botsup", "GIT_COMMITTER_EMAIL=botsup@localhost",
	)
	err := cmd.Run()
	return buf.String(), err
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

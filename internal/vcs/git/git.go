// Package git provides the git implementation of the VCS capability.
//
// This package wraps the git binary to provide the operations the sync
// engine needs: fetching refs, worktree-backed workspaces, commit-range
// walks and patch render/apply. Commands run with exec.CommandContext so
// callers can bound them with a timeout.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/wptsync/wptsync/internal/vcs"
)

// Git implements vcs.Repo for a local git clone.
type Git struct {
	// name is the configured repository name (e.g. "gecko")
	name string

	// root is the repository root directory path
	root string
}

// New creates a Git handle for the repository at root.
// The path must be the root of an existing git repository.
func New(name, root string) (*Git, error) {
	g := &Git{name: name, root: root}

	out, err := g.run(context.Background(), root, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, vcs.ErrNotInVCS
	}
	g.root = strings.TrimSpace(out)

	return g, nil
}

// Name returns the configured repository name.
func (g *Git) Name() string {
	return g.name
}

// Root returns the repository root directory path.
func (g *Git) Root() string {
	return g.root
}

// run executes a git command in dir, returning combined output.
// Failures are reported as *vcs.CommandError with the output attached.
func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &vcs.CommandError{
			Args:   args,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.String(), nil
}

// runInput executes a git command in dir feeding input on stdin.
func (g *Git) runInput(ctx context.Context, dir, input string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &vcs.CommandError{
			Args:   args,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.String(), nil
}

// Fetch fetches a ref from the named remote.
func (g *Git) Fetch(ctx context.Context, remote, ref string, tags bool) error {
	args := []string{"fetch"}
	if !tags {
		args = append(args, "--no-tags")
	}
	args = append(args, remote)
	if ref != "" {
		args = append(args, ref)
	}

	_, err := g.run(ctx, g.root, args...)
	return err
}

// FetchRefspec fetches an explicit refspec from the named remote.
func (g *Git) FetchRefspec(ctx context.Context, remote, refspec string) error {
	_, err := g.run(ctx, g.root, "fetch", "--no-tags", remote, refspec)
	return err
}

package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wptsync/wptsync/internal/vcs"
)

// worktreeDir is where sync worktrees live, under the main repository's
// .git directory so they are cleaned up with the clone.
const worktreeDir = "wptsync-worktrees"

// GitWorkspace implements vcs.Workspace using a git worktree.
type GitWorkspace struct {
	git    *Git
	path   string
	branch string
}

// CreateWorkspace creates an isolated workspace backed by a git worktree.
//
// Idempotent: if a healthy worktree already exists at the derived path it is
// returned unchanged, so the call is safe to repeat across process restarts.
func (g *Git) CreateWorkspace(ctx context.Context, opts vcs.WorkspaceOptions) (vcs.Workspace, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}

	path := opts.Path
	if path == "" {
		path = filepath.Join(g.root, ".git", worktreeDir, opts.Name)
	}

	if exists, err := g.worktreeExists(ctx, path); err != nil {
		return nil, err
	} else if exists {
		ws := &GitWorkspace{git: g, path: path, branch: opts.Name}
		if err := ws.IsHealthy(); err == nil {
			return ws, nil
		}
		// Unhealthy, remove and recreate
		if err := g.removeWorktree(path); err != nil {
			return nil, fmt.Errorf("failed to remove unhealthy worktree: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	if !g.RefExists(opts.Name) {
		if err := g.CreateRef(opts.Name, opts.Base); err != nil {
			return nil, fmt.Errorf("failed to create ref: %w", err)
		}
	}

	if _, err := g.run(ctx, g.root, "worktree", "add", "-f", path, opts.Name); err != nil {
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}

	return &GitWorkspace{git: g, path: path, branch: opts.Name}, nil
}

// Workspace returns a handle to an existing workspace by name.
func (g *Git) Workspace(ctx context.Context, name string) (vcs.Workspace, error) {
	path := filepath.Join(g.root, ".git", worktreeDir, name)

	exists, err := g.worktreeExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, vcs.ErrWorkspaceNotFound
	}

	return &GitWorkspace{git: g, path: path, branch: name}, nil
}

// ListWorkspaces returns information about existing worktrees.
func (g *Git) ListWorkspaces(ctx context.Context) ([]vcs.WorkspaceInfo, error) {
	out, err := g.run(ctx, g.root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var workspaces []vcs.WorkspaceInfo
	var current *vcs.WorkspaceInfo

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			if current != nil {
				workspaces = append(workspaces, *current)
				current = nil
			}
			continue
		}

		if strings.HasPrefix(line, "worktree ") {
			path := strings.TrimSpace(strings.TrimPrefix(line, "worktree "))
			current = &vcs.WorkspaceInfo{
				Name:    filepath.Base(path),
				Path:    path,
				IsValid: true,
			}
		} else if strings.HasPrefix(line, "branch ") && current != nil {
			ref := strings.TrimSpace(strings.TrimPrefix(line, "branch "))
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}

	if current != nil {
		workspaces = append(workspaces, *current)
	}

	return workspaces, nil
}

// worktreeExists checks if a worktree exists at the given path.
func (g *Git) worktreeExists(ctx context.Context, path string) (bool, error) {
	workspaces, err := g.ListWorkspaces(ctx)
	if err != nil {
		return false, err
	}

	absPath, _ := filepath.Abs(path)
	for _, ws := range workspaces {
		wsAbsPath, _ := filepath.Abs(ws.Path)
		if wsAbsPath == absPath {
			return true, nil
		}
	}

	return false, nil
}

// removeWorktree removes a git worktree, falling back to manual cleanup.
func (g *Git) removeWorktree(path string) error {
	ctx := context.Background()
	if _, err := g.run(ctx, g.root, "worktree", "remove", path, "--force"); err != nil {
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return fmt.Errorf("failed to remove worktree: %w (git error: %v)", removeErr, err)
		}
		// Prune stale entries left behind by the manual removal
		_, _ = g.run(ctx, g.root, "worktree", "prune")
	}

	return nil
}

// Path returns the filesystem path of the workspace.
func (w *GitWorkspace) Path() string {
	return w.path
}

// Branch returns the branch the workspace is checked out on.
func (w *GitWorkspace) Branch() string {
	return w.branch
}

// Tip returns the commit hash of the workspace's current HEAD.
func (w *GitWorkspace) Tip(ctx context.Context) (string, error) {
	out, err := w.git.run(ctx, w.path, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace tip: %w", err)
	}

	return strings.TrimSpace(out), nil
}

// ResetHard resets the workspace to the given ref, discarding local state.
func (w *GitWorkspace) ResetHard(ctx context.Context, ref string) error {
	_, err := w.git.run(ctx, w.path, "reset", "--hard", ref)
	return err
}

// FetchRefspec fetches an explicit refspec into the shared object store.
func (w *GitWorkspace) FetchRefspec(ctx context.Context, remote, refspec string) error {
	_, err := w.git.run(ctx, w.path, "fetch", "--no-tags", remote, refspec)
	return err
}

// Merge merges the given ref into the workspace branch.
func (w *GitWorkspace) Merge(ctx context.Context, ref string) error {
	_, err := w.git.run(ctx, w.path, "merge", ref)
	return err
}

// Checkout checks out the given ref in the workspace.
func (w *GitWorkspace) Checkout(ctx context.Context, ref string) error {
	_, err := w.git.run(ctx, w.path, "checkout", ref)
	return err
}

// HasChanges returns true if the workspace has uncommitted changes.
func (w *GitWorkspace) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"status", "--porcelain"}
	args = append(args, paths...)

	out, err := w.git.run(ctx, w.path, args...)
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}

	return len(strings.TrimSpace(out)) > 0, nil
}

// Add stages the given paths.
func (w *GitWorkspace) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add"}, paths...)
	if _, err := w.git.run(ctx, w.path, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}

	return nil
}

// Commit creates a commit in the workspace.
func (w *GitWorkspace) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	if len(opts.Paths) > 0 {
		if err := w.Add(ctx, opts.Paths...); err != nil {
			return err
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	if _, err := w.git.run(ctx, w.path, args...); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}

	return nil
}

// Push pushes the workspace branch to the named remote.
// The raw stdout and stderr are returned so callers can extract
// remote-generated identifiers from the output.
func (w *GitWorkspace) Push(ctx context.Context, remote string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "git", "push", remote, w.branch)
	cmd.Dir = w.path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), stderr.String(), &vcs.CommandError{
			Args:   []string{"push", remote, w.branch},
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.String(), stderr.String(), nil
}

// Cleanup removes the workspace worktree and its branch.
func (w *GitWorkspace) Cleanup() error {
	if err := w.git.removeWorktree(w.path); err != nil {
		return err
	}

	if w.git.RefExists(w.branch) {
		return w.git.DeleteRef(w.branch)
	}

	return nil
}

// IsHealthy verifies the workspace is in a usable state.
func (w *GitWorkspace) IsHealthy() error {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		return fmt.Errorf("workspace path does not exist")
	}

	gitFile := filepath.Join(w.path, ".git")
	if _, err := os.Stat(gitFile); err != nil {
		return fmt.Errorf("workspace .git file missing")
	}

	exists, err := w.git.worktreeExists(context.Background(), w.path)
	if err != nil {
		return fmt.Errorf("failed to check worktree list: %w", err)
	}
	if !exists {
		return fmt.Errorf("workspace not in git worktree list")
	}

	return nil
}

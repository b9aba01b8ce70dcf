// Package vcs defines the version-control capability consumed by the sync
// engine.
//
// The interfaces here cover exactly the operations the downstream sync needs:
// fetching refs, maintaining isolated worktree-backed workspaces, walking
// commit ranges, rendering commits as portable patches and applying them
// under a directory prefix. The git implementation lives in internal/vcs/git.
//
// All operations shell out to an external binary and are therefore
// potentially slow; every method takes a context so callers can bound them.
package vcs

import "context"

// Repo is a handle to a local clone of a named remote repository.
//
// A Repo owns references and workspaces; per-workspace mutation happens
// through the Workspace interface instead.
type Repo interface {
	// Name returns the repository's configured name (e.g. "web-platform-tests").
	Name() string

	// Root returns the repository root directory path.
	Root() string

	// Fetch fetches a ref from the named remote. When tags is false the
	// fetch excludes tags (--no-tags).
	Fetch(ctx context.Context, remote, ref string, tags bool) error

	// FetchRefspec fetches an explicit refspec, e.g. "pull/9/head:refs/heads/pull_9".
	// Tags are never fetched.
	FetchRefspec(ctx context.Context, remote, refspec string) error

	// RefExists returns true if the named local branch exists.
	RefExists(name string) bool

	// CreateRef creates a new branch at the specified base.
	// If base is empty, creates at the current HEAD.
	CreateRef(name, base string) error

	// DeleteRef deletes the named branch.
	DeleteRef(name string) error

	// Tip returns the commit hash the given ref points at.
	Tip(ctx context.Context, ref string) (string, error)

	// CreateWorkspace creates (or reuses) an isolated workspace.
	// Creation is idempotent: if a healthy workspace already exists for
	// the same name it is returned unchanged.
	CreateWorkspace(ctx context.Context, opts WorkspaceOptions) (Workspace, error)

	// ListWorkspaces returns information about existing workspaces.
	ListWorkspaces(ctx context.Context) ([]WorkspaceInfo, error)

	// Workspace returns a handle to an existing workspace by name.
	// Returns ErrWorkspaceNotFound if no such workspace exists.
	Workspace(ctx context.Context, name string) (Workspace, error)
}

// Workspace is an isolated, mutable checkout bound to one sync.
//
// In git this is a worktree sharing the main repository's object store.
// All mutating operations run inside the workspace directory and never
// touch the main checkout.
type Workspace interface {
	// Path returns the filesystem path of the workspace.
	Path() string

	// Branch returns the branch the workspace is checked out on.
	Branch() string

	// Tip returns the commit hash of the workspace's current HEAD.
	Tip(ctx context.Context) (string, error)

	// ResetHard resets the workspace to the given ref, discarding local state.
	ResetHard(ctx context.Context, ref string) error

	// FetchRefspec fetches an explicit refspec into the shared object store.
	FetchRefspec(ctx context.Context, remote, refspec string) error

	// Merge merges the given ref into the workspace branch.
	Merge(ctx context.Context, ref string) error

	// Checkout checks out the given ref in the workspace.
	Checkout(ctx context.Context, ref string) error

	// CommitsBetween returns the commits reachable from head but not from
	// base, ordered oldest first.
	CommitsBetween(ctx context.Context, base, head string) ([]string, error)

	// RenderPatch renders a single commit as a self-contained email-format
	// patch including author and message metadata.
	RenderPatch(ctx context.Context, commit string) (string, error)

	// ApplyPatch applies an email-format patch, rebasing its paths under
	// dirPrefix. The returned error carries the tool diagnostic when the
	// patch does not apply.
	ApplyPatch(ctx context.Context, patch, dirPrefix string) error

	// HasChanges returns true if the workspace has uncommitted changes.
	// If paths are specified, only those paths are checked.
	HasChanges(ctx context.Context, paths ...string) (bool, error)

	// Add stages the given paths.
	Add(ctx context.Context, paths ...string) error

	// Commit creates a commit in the workspace.
	Commit(ctx context.Context, opts CommitOptions) error

	// Push pushes the workspace branch to the named remote, returning the
	// raw stdout and stderr of the push.
	Push(ctx context.Context, remote string) (stdout, stderr string, err error)

	// Cleanup removes the workspace and its branch.
	Cleanup() error

	// IsHealthy verifies the workspace is in a usable state.
	IsHealthy() error
}

// WorkspaceOptions configures workspace creation.
type WorkspaceOptions struct {
	// Name is the workspace identifier and branch name (e.g. "PR_9").
	Name string

	// Path is the filesystem path for the worktree. If empty a path under
	// the repository's metadata directory is used.
	Path string

	// Base is the ref the workspace branch is created at when the branch
	// does not exist yet.
	Base string
}

// WorkspaceInfo describes an existing workspace.
type WorkspaceInfo struct {
	// Name is the workspace identifier.
	Name string

	// Path is the filesystem path.
	Path string

	// Branch is the checked-out branch.
	Branch string

	// IsValid indicates if the workspace is healthy.
	IsValid bool
}

// CommitOptions configures a commit operation.
type CommitOptions struct {
	// Message is the commit message (required).
	Message string

	// Paths specifies files to commit. Empty commits all staged changes.
	Paths []string

	// AllowEmpty allows creating a commit with no content changes.
	AllowEmpty bool
}

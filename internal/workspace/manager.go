// Package workspace manages the isolated checkouts owned by a sync.
//
// Each sync owns up to two workspaces, one per repository, named
// deterministically from the change-request id. Creation is lazy and
// idempotent; teardown is explicit. Workspaces are deliberately kept around
// after failures so diagnostics and resumption are possible.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/wptsync/wptsync/internal/store"
	"github.com/wptsync/wptsync/internal/vcs"
)

// Role identifies which of a sync's two repositories a workspace belongs to.
type Role int

const (
	// RoleSource is the upstream test-suite repository.
	RoleSource Role = iota

	// RoleTarget is the downstream tree.
	RoleTarget
)

// String returns a human-readable representation of the role.
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Recorder persists workspace names on the owning sync record. store.Tx
// satisfies this, so recording happens inside the caller's transaction
// scope.
type Recorder interface {
	SetSourceWorkspace(ctx context.Context, syncID int64, name string) error
	SetTargetWorkspace(ctx context.Context, syncID int64, name string) error
}

// Manager creates, locates and tears down sync workspaces.
type Manager struct {
	source vcs.Repo
	target vcs.Repo
	logger *log.Logger
}

// New creates a Manager over the source and target repositories.
// If logger is nil, a default logger writing to stderr is used.
func New(source, target vcs.Repo, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[workspace] ", log.LstdFlags)
	}
	return &Manager{source: source, target: target, logger: logger}
}

// BranchName returns the deterministic workspace/branch name for a
// change-request.
func BranchName(prID int) string {
	return fmt.Sprintf("PR_%d", prID)
}

// Ensure returns the sync's workspace for the given role, creating it at
// base if it does not exist yet and recording its name on the sync record.
//
// Idempotent: repeated calls (including across process restarts) return the
// same workspace. Creation failure is fatal and propagated; retrying
// silently would risk corrupting sync state.
func (m *Manager) Ensure(ctx context.Context, rec Recorder, s *store.Sync, role Role, base string) (vcs.Workspace, string, error) {
	repo := m.repo(role)
	name := BranchName(s.PRID)

	ws, err := repo.CreateWorkspace(ctx, vcs.WorkspaceOptions{
		Name: name,
		Base: base,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to ensure %s workspace for PR %d: %w", role, s.PRID, err)
	}

	if err := m.record(ctx, rec, s, role, name); err != nil {
		return nil, "", err
	}

	return ws, name, nil
}

// Remove tears down all workspaces owned by a sync and clears their names
// from the sync record. Used after terminal success or abandonment, never
// automatically on failure.
func (m *Manager) Remove(ctx context.Context, rec Recorder, s *store.Sync) error {
	for _, role := range []Role{RoleSource, RoleTarget} {
		name := m.recordedName(s, role)
		if name == "" {
			continue
		}

		ws, err := m.repo(role).Workspace(ctx, name)
		if errors.Is(err, vcs.ErrWorkspaceNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to locate %s workspace %s: %w", role, name, err)
		}

		m.logger.Printf("Removing %s workspace %s", role, name)
		if err := ws.Cleanup(); err != nil {
			return fmt.Errorf("failed to remove %s workspace %s: %w", role, name, err)
		}

		if err := m.record(ctx, rec, s, role, ""); err != nil {
			return err
		}
	}

	return nil
}

// Tip returns the current tip revision of the sync's workspace for the
// given role. Returns vcs.ErrWorkspaceNotFound when the workspace was never
// created.
func (m *Manager) Tip(ctx context.Context, s *store.Sync, role Role) (string, error) {
	name := m.recordedName(s, role)
	if name == "" {
		return "", vcs.ErrWorkspaceNotFound
	}

	ws, err := m.repo(role).Workspace(ctx, name)
	if err != nil {
		return "", err
	}

	return ws.Tip(ctx)
}

// repo maps a role to its repository.
func (m *Manager) repo(role Role) vcs.Repo {
	if role == RoleSource {
		return m.source
	}
	return m.target
}

// recordedName returns the workspace name the sync record holds for a role.
func (m *Manager) recordedName(s *store.Sync, role Role) string {
	if role == RoleSource {
		return s.SourceWS
	}
	return s.TargetWS
}

// record persists a workspace name for a role, updating both the store and
// the in-memory sync record.
func (m *Manager) record(ctx context.Context, rec Recorder, s *store.Sync, role Role, name string) error {
	var err error
	if role == RoleSource {
		if s.SourceWS != name {
			err = rec.SetSourceWorkspace(ctx, s.ID, name)
			if err == nil {
				s.SourceWS = name
			}
		}
	} else {
		if s.TargetWS != name {
			err = rec.SetTargetWorkspace(ctx, s.ID, name)
			if err == nil {
				s.TargetWS = name
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to record %s workspace name: %w", role, err)
	}

	return nil
}

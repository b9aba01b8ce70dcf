package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/wptsync/wptsync/internal/store"
	"github.com/wptsync/wptsync/internal/vcs"
	"github.com/wptsync/wptsync/internal/workspace"
)

// Updater triggers a full orchestration pass for a sync.
type Updater interface {
	Update(ctx context.Context, s *store.Sync) error
}

// SourceTips reports the current tip of a sync's workspaces.
// workspace.Manager satisfies this.
type SourceTips interface {
	Tip(ctx context.Context, s *store.Sync, role workspace.Role) (string, error)
}

// Reactor decides, from a CI status notification, whether a sync is already
// at the reported revision or needs an orchestration pass.
//
// The reactor is the idempotence guard for the whole pipeline: the
// orchestrator itself never re-detects "nothing changed", so duplicate
// pending events must be absorbed here.
type Reactor struct {
	ciContext string
	tips      SourceTips
	orch      Updater
	logger    *log.Logger
}

// NewReactor creates a Reactor that recognizes the given CI context.
// If logger is nil, a default logger writing to stderr is used.
func NewReactor(ciContext string, tips SourceTips, orch Updater, logger *log.Logger) *Reactor {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Reactor{ciContext: ciContext, tips: tips, orch: orch, logger: logger}
}

// OnStatus handles one CI status notification for a sync.
//
// Events with a foreign context or an unrecognized state are logged and
// ignored. A pending event whose revision matches the source workspace tip
// is a no-op; a stale revision (or a sync with no source workspace yet)
// triggers the orchestrator. A passed event is currently a no-op.
func (r *Reactor) OnStatus(ctx context.Context, s *store.Sync, ev StatusEvent) error {
	if ev.Context != r.ciContext {
		r.logger.Printf("Ignoring status with context %q for PR %d", ev.Context, s.PRID)
		return nil
	}

	switch ev.State {
	case StatePending:
		stale, err := r.isStale(ctx, s, ev.SHA)
		if err != nil {
			return err
		}
		if !stale {
			r.logger.Printf("PR %d already at %s, nothing to do", s.PRID, ev.SHA)
			return nil
		}
		r.logger.Printf("PR %d stale relative to %s, updating", s.PRID, ev.SHA)
		return r.orch.Update(ctx, s)

	case StatePassed:
		// Reserved for automatic try pushes
		r.logger.Printf("CI passed for PR %d", s.PRID)
		return nil

	default:
		r.logger.Printf("Ignoring status state %q for PR %d", ev.State, s.PRID)
		return nil
	}
}

// isStale reports whether the sync's source workspace is behind the
// revision a status event announced. A sync with no source workspace yet is
// always stale.
func (r *Reactor) isStale(ctx context.Context, s *store.Sync, sha string) (bool, error) {
	tip, err := r.tips.Tip(ctx, s, workspace.RoleSource)
	if errors.Is(err, vcs.ErrWorkspaceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read source workspace tip for PR %d: %w", s.PRID, err)
	}
	return tip != sha, nil
}

package downstream

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/wptsync/wptsync/internal/config"
	"github.com/wptsync/wptsync/internal/routing"
	"github.com/wptsync/wptsync/internal/store"
	"github.com/wptsync/wptsync/internal/tracker"
	"github.com/wptsync/wptsync/internal/translate"
	"github.com/wptsync/wptsync/internal/vcs"
	"github.com/wptsync/wptsync/internal/workspace"
)

// ManifestUpdater regenerates the target tree's test manifest. It is built
// per pass, rooted at the target workspace. buildtool.Mach satisfies this.
type ManifestUpdater interface {
	WPTManifestUpdate(ctx context.Context) error
}

// ChangeLister reports the files changed since a baseline. It is built per
// pass, rooted at the source workspace. buildtool.WPT satisfies this.
type ChangeLister interface {
	FilesChanged(ctx context.Context, baseline string) ([]string, error)
}

// Deps carries the collaborators an Orchestrator is built from.
//
// The tool factories produce runners rooted at a workspace path; leaving
// them nil selects the real build tools.
type Deps struct {
	DB         *store.DB
	Config     *config.Config
	Source     vcs.Repo
	Target     vcs.Repo
	Workspaces *workspace.Manager
	Translator *translate.Translator
	Tracker    tracker.Tracker

	NewManifestUpdater func(root string) ManifestUpdater
	NewChangeLister    func(root string) ChangeLister
	NewPathClassifier  func(root string) routing.PathClassifier

	Logger *log.Logger
}

// Orchestrator drives one sync through the downstream state machine:
// fetching-source, translating, updating-metadata, classifying, reported.
//
// A pass runs inside a single store transaction, so a crash mid-pass leaves
// the record at its pre-invocation state. Failures additionally mark the
// sync with the error terminal state in a follow-up transaction; workspaces
// are left intact for diagnosis. The orchestrator does not detect "nothing
// changed" itself; duplicate triggers are absorbed by the status reactor.
type Orchestrator struct {
	deps   Deps
	logger *log.Logger
}

// New creates an Orchestrator from its collaborators.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stderr, "[downstream] ", log.LstdFlags)
	}
	return &Orchestrator{deps: deps, logger: deps.Logger}
}

// Update runs one full downstream pass for a sync.
//
// On failure the main transaction rolls back and the sync is marked with
// the error state separately, so the error terminal survives while the
// partial record updates do not.
func (o *Orchestrator) Update(ctx context.Context, s *store.Sync) error {
	err := o.deps.DB.WithTx(ctx, func(tx *store.Tx) error {
		return o.pass(ctx, tx, s)
	})
	if err != nil {
		if serr := o.deps.DB.WithTx(ctx, func(tx *store.Tx) error {
			return tx.SetState(ctx, s.ID, store.StateError)
		}); serr != nil {
			o.logger.Printf("Failed to record error state for sync %d: %v", s.ID, serr)
		}
		s.State = store.StateError
	}
	return err
}

// pass executes the state machine inside one transaction.
func (o *Orchestrator) pass(ctx context.Context, tx *store.Tx, s *store.Sync) error {
	cfg := o.deps.Config
	rep := &issueReporter{tracker: o.deps.Tracker, bug: s.Bug, logger: o.logger}

	// fetching-source
	if err := o.setState(ctx, tx, s, store.StateFetchingSource); err != nil {
		return err
	}

	if err := o.deps.Source.Fetch(ctx, cfg.Source.Remote, baseRefName(cfg.Source), false); err != nil {
		return o.fail(ctx, rep, s, ErrFetch,
			"fetching %s from %s for PR %d failed:\n%s",
			cfg.Source.BaseRef, cfg.Source.Remote, s.PRID, vcs.Diagnostic(err))
	}

	srcWS, _, err := o.deps.Workspaces.Ensure(ctx, tx, s, workspace.RoleSource, cfg.Source.BaseRef)
	if err != nil {
		return o.fail(ctx, rep, s, ErrWorkspace,
			"preparing source workspace for PR %d failed:\n%s", s.PRID, vcs.Diagnostic(err))
	}
	if err := srcWS.ResetHard(ctx, cfg.Source.BaseRef); err != nil {
		return o.fail(ctx, rep, s, ErrWorkspace,
			"resetting source workspace to %s failed:\n%s", cfg.Source.BaseRef, vcs.Diagnostic(err))
	}

	prRef := fmt.Sprintf("pull_%d", s.PRID)
	refspec := fmt.Sprintf("pull/%d/head:refs/heads/%s", s.PRID, prRef)
	if err := srcWS.FetchRefspec(ctx, cfg.Source.Remote, refspec); err != nil {
		return o.fail(ctx, rep, s, ErrFetch,
			"fetching %s for PR %d failed:\n%s", refspec, s.PRID, vcs.Diagnostic(err))
	}
	if err := srcWS.Merge(ctx, prRef); err != nil {
		return o.fail(ctx, rep, s, ErrWorkspace,
			"merging %s for PR %d failed:\n%s", prRef, s.PRID, vcs.Diagnostic(err))
	}

	// The changed-file set is an upstream-relative query; capture it now,
	// before the target tree enters the picture.
	var changed []string
	if o.deps.NewChangeLister != nil {
		changed, err = o.deps.NewChangeLister(srcWS.Path()).FilesChanged(ctx, cfg.Source.BaseRef)
		if err != nil {
			o.logger.Printf("Failed to list changed files for PR %d, routing will use the default: %v", s.PRID, err)
			changed = nil
		}
	}

	if err := o.deps.Target.Fetch(ctx, cfg.Target.Remote, baseRefName(cfg.Target), false); err != nil {
		return o.fail(ctx, rep, s, ErrFetch,
			"fetching %s from %s failed:\n%s", cfg.Target.BaseRef, cfg.Target.Remote, vcs.Diagnostic(err))
	}

	tgtWS, _, err := o.deps.Workspaces.Ensure(ctx, tx, s, workspace.RoleTarget, cfg.Target.BaseRef)
	if err != nil {
		return o.fail(ctx, rep, s, ErrWorkspace,
			"preparing target workspace for PR %d failed:\n%s", s.PRID, vcs.Diagnostic(err))
	}
	if err := tgtWS.ResetHard(ctx, cfg.Target.BaseRef); err != nil {
		return o.fail(ctx, rep, s, ErrWorkspace,
			"resetting target workspace to %s failed:\n%s", cfg.Target.BaseRef, vcs.Diagnostic(err))
	}

	// translating
	if err := o.setState(ctx, tx, s, store.StateTranslating); err != nil {
		return err
	}
	if err := o.deps.Translator.Translate(ctx, srcWS, cfg.Source.BaseRef, tgtWS, rep); err != nil {
		// The translator already reported the failing commit
		return err
	}

	// updating-metadata
	if err := o.setState(ctx, tx, s, store.StateUpdatingMetadata); err != nil {
		return err
	}
	if err := o.updateMetadata(ctx, tgtWS); err != nil {
		return o.fail(ctx, rep, s, ErrMetadataRegen,
			"regenerating test metadata for PR %d failed:\n%s", s.PRID, vcs.Diagnostic(err))
	}

	// classifying
	if err := o.setState(ctx, tx, s, store.StateClassifying); err != nil {
		return err
	}
	dec := o.classify(ctx, tgtWS.Path(), changed)
	if err := o.deps.Tracker.SetRouting(ctx, s.Bug, dec.Product, dec.Component); err != nil {
		o.logger.Printf("Failed to route issue %d to %s :: %s: %v", s.Bug, dec.Product, dec.Component, err)
	}

	if err := o.setState(ctx, tx, s, store.StateReported); err != nil {
		return err
	}

	o.logger.Printf("Sync %d for PR %d reported as %s :: %s", s.ID, s.PRID, dec.Product, dec.Component)
	return nil
}

// updateMetadata regenerates the manifest in the target workspace and, when
// it changed anything, commits the result as its own commit so the ported
// history stays a faithful mirror of upstream.
func (o *Orchestrator) updateMetadata(ctx context.Context, ws vcs.Workspace) error {
	if o.deps.NewManifestUpdater == nil {
		return nil
	}

	if err := o.deps.NewManifestUpdater(ws.Path()).WPTManifestUpdate(ctx); err != nil {
		return err
	}

	dirty, err := ws.HasChanges(ctx, o.deps.Config.MetaPath)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	if err := ws.Add(ctx, o.deps.Config.MetaPath); err != nil {
		return err
	}
	return ws.Commit(ctx, vcs.CommitOptions{
		Message: fmt.Sprintf("[wpt-sync] downstream %s: update manifest", ws.Branch()),
	})
}

// classify computes the routing decision for the changed files, falling
// back to the configured default on any failure.
func (o *Orchestrator) classify(ctx context.Context, root string, changed []string) routing.Decision {
	def := routing.Decision{
		Product:   o.deps.Config.DefaultProduct,
		Component: o.deps.Config.DefaultComponent,
	}
	if o.deps.NewPathClassifier == nil {
		return def
	}

	classifier := routing.New(o.deps.NewPathClassifier(root), o.deps.Config.PathPrefix, o.logger)
	return classifier.Classify(ctx, changed, def)
}

// setState advances the sync's state, wrapping store failures.
func (o *Orchestrator) setState(ctx context.Context, tx *store.Tx, s *store.Sync, state store.State) error {
	if err := tx.SetState(ctx, s.ID, state); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStore, err)
	}
	s.State = state
	return nil
}

// fail reports a failure on the tracker issue and returns it wrapped in its
// failure kind. The error terminal state is recorded by Update once the
// main transaction has rolled back.
func (o *Orchestrator) fail(ctx context.Context, rep *issueReporter, s *store.Sync, kind error, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	o.logger.Printf("Sync %d failed: %v", s.ID, err)
	rep.ReportFailure(ctx, fmt.Sprintf("Downstreaming failed because %s", err))
	return fmt.Errorf("%w: %v", kind, err)
}

// baseRefName strips the remote prefix from a baseline ref, yielding the
// name to fetch ("origin/master" fetched from "origin" is "master").
func baseRefName(rc config.RepoConfig) string {
	return strings.TrimPrefix(rc.BaseRef, rc.Remote+"/")
}

// issueReporter posts failure comments to a sync's tracker issue. Comment
// failures are logged and dropped; losing a comment must not change the
// sync outcome.
type issueReporter struct {
	tracker tracker.Tracker
	bug     int64
	logger  *log.Logger
}

// ReportFailure posts text as a comment on the issue.
func (r *issueReporter) ReportFailure(ctx context.Context, text string) {
	if r.bug == 0 {
		r.logger.Printf("No tracker issue to report to: %s", text)
		return
	}
	if err := r.tracker.Comment(ctx, r.bug, text); err != nil {
		r.logger.Printf("Failed to comment on issue %d: %v", r.bug, err)
	}
}

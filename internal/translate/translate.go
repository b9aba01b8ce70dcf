// Package translate ports a sequence of upstream commits onto the target
// tree.
//
// Each commit between the upstream baseline and the change-request tip is
// rendered as a self-contained email-format patch and applied, oldest first,
// under the target tree's configured subdirectory prefix. Later commits may
// depend on earlier ones, so the first render or apply failure aborts the
// whole translation: a partial history with gaps would silently
// desynchronize the mirror. Conflicts are surfaced to a human through the
// tracker issue instead of being auto-resolved.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/wptsync/wptsync/internal/vcs"
)

// Sentinel failure kinds for translation. Check with errors.Is().
var (
	// ErrRender is returned when a commit cannot be rendered as a patch.
	ErrRender = errors.New("patch render failed")

	// ErrApply is returned when a rendered patch does not apply to the
	// target workspace.
	ErrApply = errors.New("patch apply failed")
)

// Reporter posts human-readable failure reports to the sync's tracker
// issue. Reporting failures are logged, never propagated: losing a comment
// must not change the translation outcome.
type Reporter interface {
	ReportFailure(ctx context.Context, text string)
}

// Translator applies upstream commits to a target workspace.
type Translator struct {
	// dirPrefix is the target-tree subdirectory all patches are rebased
	// onto before application.
	dirPrefix string

	logger *log.Logger
}

// New creates a Translator. If logger is nil, a default logger writing to
// stderr is used.
func New(dirPrefix string, logger *log.Logger) *Translator {
	if logger == nil {
		logger = log.New(os.Stderr, "[translate] ", log.LstdFlags)
	}
	return &Translator{dirPrefix: dirPrefix, logger: logger}
}

// Translate ports every commit reachable from source's tip but not from
// baseline onto target, oldest first.
//
// Commits whose rendered patch carries no content change are skipped; they
// are upstream commits that became no-ops under the target tree's path
// filter. On the first failure the translation stops, the failing commit
// and tool diagnostic are reported, and the matching sentinel error is
// returned. Already-applied commits are left in place for diagnosis.
func (t *Translator) Translate(ctx context.Context, source vcs.Workspace, baseline string, target vcs.Workspace, report Reporter) error {
	commits, err := source.CommitsBetween(ctx, baseline, "HEAD")
	if err != nil {
		t.logger.Printf("Failed to enumerate commits since %s: %v", baseline, err)
		report.ReportFailure(ctx, fmt.Sprintf(
			"Downstreaming failed because enumerating commits since %s failed:\n%s",
			baseline, vcs.Diagnostic(err)))
		return fmt.Errorf("%w: %v", ErrRender, err)
	}

	t.logger.Printf("Translating %d commits onto %s", len(commits), target.Branch())

	for _, commit := range commits {
		patch, err := source.RenderPatch(ctx, commit)
		if err != nil {
			t.logger.Printf("Failed to create patch from %s: %v", commit, err)
			report.ReportFailure(ctx, fmt.Sprintf(
				"Downstreaming failed because creating patch from %s failed:\n%s",
				commit, vcs.Diagnostic(err)))
			return fmt.Errorf("%w: commit %s: %v", ErrRender, commit, err)
		}

		if isEmptyPatch(patch) {
			t.logger.Printf("Skipping empty patch for %s", commit)
			continue
		}

		if err := target.ApplyPatch(ctx, patch, t.dirPrefix); err != nil {
			t.logger.Printf("Failed to import patch %s: %v", commit, err)
			report.ReportFailure(ctx, fmt.Sprintf(
				"Downstreaming failed because applying patch from %s failed:\n%s",
				commit, vcs.Diagnostic(err)))
			return fmt.Errorf("%w: commit %s: %v", ErrApply, commit, err)
		}
	}

	return nil
}

// isEmptyPatch reports whether a rendered patch carries no content change,
// only metadata. An email-format patch with no diff body ends in a run of
// blank lines.
func isEmptyPatch(patch string) bool {
	return strings.HasSuffix(patch, "\n\n\n")
}

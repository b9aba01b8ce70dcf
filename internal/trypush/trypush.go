// Package trypush schedules CI try runs for a sync's ported changes.
//
// A try run is requested by pushing a temporary empty commit whose message
// is a scheduling directive naming the target platforms, job suites and
// test-path selectors derived from the affected tests. The commit never
// lands: it is reset away after the push regardless of outcome.
package trypush

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/wptsync/wptsync/internal/vcs"
)

// resultsURLBase is where a scheduled run's results can be watched.
const resultsURLBase = "https://treeherder.mozilla.org/#/jobs?repo=try&revision="

// revRe extracts the scheduled revision from the try remote's push output.
var revRe = regexp.MustCompile(`revision=([0-9a-f]{40})`)

// suiteForType maps a test type to the CI suite that runs it.
var suiteForType = map[string]string{
	"testharness": "web-platform-tests",
	"reftest":     "web-platform-tests-reftests",
	"wdspec":      "web-platform-tests-wdspec",
}

// typeOrder fixes the suite emission order so directives are deterministic.
var typeOrder = []string{"testharness", "reftest", "wdspec"}

// platformSuffix is appended to the main suite to pin the machine pool.
const platformSuffix = "[linux64-stylo,Ubuntu,10.10,Windows 7,Windows 8,Windows 10]"

// AffectedLister reports the tests affected since a baseline as
// tab-separated (path, type) pairs. buildtool.WPT satisfies this.
type AffectedLister interface {
	TestsAffected(ctx context.Context, baseline string) ([]string, error)
}

// AffectedTests groups affected test paths by their test type, preserving
// the tool's path order within each type.
func AffectedTests(lines []string) (map[string][]string, error) {
	byType := make(map[string][]string)
	for _, line := range lines {
		pair := strings.Split(strings.TrimSpace(line), "\t")
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed affected-test line %q", line)
		}
		byType[pair[1]] = append(byType[pair[1]], pair[0])
	}
	return byType, nil
}

// Message builds the single-line try directive for the given affected
// tests. Test types with no runnable suite mapping are skipped.
func Message(testsByType map[string][]string) string {
	var jobs []string
	var selectors []string

	for _, testType := range typeOrder {
		paths := testsByType[testType]
		if len(paths) == 0 {
			continue
		}

		suite := suiteForType[testType]
		machines := ""
		if suite == "web-platform-tests" {
			machines = platformSuffix
		}
		jobs = append(jobs, suite+machines, suite+"-e10s"+machines)

		for _, p := range paths {
			selectors = append(selectors, suite+":"+p)
		}
	}

	return fmt.Sprintf(
		"try: -b do -p win32,win64,linux64,linux -u %s -t none --artifact --try-test-paths %s",
		strings.Join(jobs, ","), strings.Join(selectors, ","))
}

// Pusher pushes try runs from a target workspace.
type Pusher struct {
	remote string
	logger *log.Logger
}

// NewPusher creates a Pusher targeting the named try remote.
// If logger is nil, a default logger writing to stderr is used.
func NewPusher(remote string, logger *log.Logger) *Pusher {
	if logger == nil {
		logger = log.New(os.Stderr, "[trypush] ", log.LstdFlags)
	}
	return &Pusher{remote: remote, logger: logger}
}

// Push schedules a try run carrying the given directive message and returns
// the results URL for the scheduled revision.
//
// The directive rides on a temporary empty commit that is always reset
// away afterwards, push success or not, so the workspace branch keeps only
// real ported history.
func (p *Pusher) Push(ctx context.Context, ws vcs.Workspace, message string) (string, error) {
	if err := ws.Commit(ctx, vcs.CommitOptions{Message: message, AllowEmpty: true}); err != nil {
		return "", fmt.Errorf("failed to create try commit: %w", err)
	}

	stdout, stderr, pushErr := ws.Push(ctx, p.remote)

	if err := ws.ResetHard(ctx, "HEAD~"); err != nil {
		p.logger.Printf("Failed to drop try commit on %s: %v", ws.Branch(), err)
	}

	if pushErr != nil {
		return "", fmt.Errorf("failed to push to %s: %w", p.remote, pushErr)
	}

	// The scheduled revision may land on either stream depending on the
	// remote's hooks.
	match := revRe.FindStringSubmatch(stdout)
	if match == nil {
		match = revRe.FindStringSubmatch(stderr)
	}
	if match == nil {
		return "", fmt.Errorf("push output carries no scheduled revision:\n%s%s", stdout, stderr)
	}

	url := resultsURLBase + match[1]
	p.logger.Printf("Scheduled try run: %s", url)
	return url, nil
}

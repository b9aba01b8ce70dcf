// Package buildtool wraps the external tooling shipped inside the two
// trees: the target tree's build driver and the upstream suite's own CLI.
//
// Both are invoked as subprocesses from their tree roots. Output parsing
// stays in the callers; this package only runs commands and reports
// failures with full diagnostics.
package buildtool

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// runTool executes a tree-local tool and returns its stdout. Failures carry
// the command line and stderr so tracker comments can include a usable
// diagnostic.
func runTool(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s failed: %w\n%s", name, strings.Join(args, " "), err, stderr.String())
	}

	return stdout.String(), nil
}

// Mach drives the target tree's build tool.
type Mach struct {
	root   string
	logger *log.Logger
}

// NewMach creates a Mach runner rooted at the given target-tree checkout.
// If logger is nil, a default logger writing to stderr is used.
func NewMach(root string, logger *log.Logger) *Mach {
	if logger == nil {
		logger = log.New(os.Stderr, "[mach] ", log.LstdFlags)
	}
	return &Mach{root: root, logger: logger}
}

// WPTManifestUpdate regenerates the test manifest after ported commits
// changed the mirrored test files.
func (m *Mach) WPTManifestUpdate(ctx context.Context) error {
	m.logger.Printf("Regenerating test manifest in %s", m.root)
	_, err := runTool(ctx, m.root, "./mach", "wpt-manifest-update")
	return err
}

// ClassifyPaths asks the build tool which bug component owns each path.
// The report is line-oriented: a "Product :: Component" header line
// followed by indented path lines attributed to it.
func (m *Mach) ClassifyPaths(ctx context.Context, paths []string) (string, error) {
	args := append([]string{"file-info", "bugzilla-component"}, paths...)
	return runTool(ctx, m.root, "./mach", args...)
}

// WPT drives the upstream suite's own command-line tool from a source
// workspace checkout.
type WPT struct {
	root   string
	logger *log.Logger
}

// NewWPT creates a WPT runner rooted at the given source checkout.
// If logger is nil, a default logger writing to stderr is used.
func NewWPT(root string, logger *log.Logger) *WPT {
	if logger == nil {
		logger = log.New(os.Stderr, "[wpt] ", log.LstdFlags)
	}
	return &WPT{root: root, logger: logger}
}

// Manifest regenerates the suite's own manifest in the source checkout.
func (w *WPT) Manifest(ctx context.Context) error {
	w.logger.Printf("Updating suite manifest in %s", w.root)
	_, err := runTool(ctx, w.root, "./wpt", "manifest")
	return err
}

// FilesChanged lists the files touched between the baseline and the
// checkout's tip, one path per line.
func (w *WPT) FilesChanged(ctx context.Context, baseline string) ([]string, error) {
	out, err := runTool(ctx, w.root, "./wpt", "files-changed", baseline+"..HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// TestsAffected lists the tests affected by the changes since baseline,
// one "path\ttype" pair per line. New tests are included.
func (w *WPT) TestsAffected(ctx context.Context, baseline string) ([]string, error) {
	out, err := runTool(ctx, w.root, "./wpt", "tests-affected", "--show-type", "--new", baseline+"..HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// splitLines splits tool output into non-empty lines.
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

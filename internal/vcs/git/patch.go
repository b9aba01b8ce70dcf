package git

import (
	"context"
	"fmt"
	"strings"
)

// CommitsBetween returns the commits reachable from head but not from base,
// ordered oldest first. This is the order upstream history was authored in,
// which is the order patches must be applied in.
func (w *GitWorkspace) CommitsBetween(ctx context.Context, base, head string) ([]string, error) {
	out, err := w.git.run(ctx, w.path, "rev-list", "--reverse", base+".."+head)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits %s..%s: %w", base, head, err)
	}

	var commits []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		commits = append(commits, line)
	}

	return commits, nil
}

// RenderPatch renders a single commit as an email-format patch, including
// author and message metadata. A trailing newline is appended so an empty
// change is detectable by its "\n\n\n" suffix.
func (w *GitWorkspace) RenderPatch(ctx context.Context, commit string) (string, error) {
	out, err := w.git.run(ctx, w.path, "show", "--pretty=email", commit)
	if err != nil {
		return "", fmt.Errorf("failed to render patch for %s: %w", commit, err)
	}

	return out + "\n", nil
}

// ApplyPatch applies an email-format patch to the workspace, rebasing its
// paths under dirPrefix. On failure the in-progress am session is aborted so
// the workspace stays usable, and the error carries the tool diagnostic.
func (w *GitWorkspace) ApplyPatch(ctx context.Context, patch, dirPrefix string) error {
	args := []string{"am"}
	if dirPrefix != "" {
		args = append(args, "--directory="+dirPrefix)
	}
	args = append(args, "-")

	if _, err := w.git.runInput(ctx, w.path, patch, args...); err != nil {
		_, _ = w.git.run(ctx, w.path, "am", "--abort")
		return err
	}

	return nil
}

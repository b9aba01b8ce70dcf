package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/wptsync/wptsync/internal/vcs"
)

// RefExists returns true if the named local branch exists.
func (g *Git) RefExists(name string) bool {
	_, err := g.run(context.Background(), g.root,
		"show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// CreateRef creates a new branch at the specified base.
// If base is empty, creates at the current HEAD.
func (g *Git) CreateRef(name, base string) error {
	if g.RefExists(name) {
		return vcs.ErrRefExists
	}

	args := []string{"branch", name}
	if base != "" {
		args = append(args, base)
	}

	if _, err := g.run(context.Background(), g.root, args...); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}

	return nil
}

// DeleteRef deletes the named branch.
func (g *Git) DeleteRef(name string) error {
	if !g.RefExists(name) {
		return vcs.ErrRefNotFound
	}

	if _, err := g.run(context.Background(), g.root, "branch", "-D", name); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", name, err)
	}

	return nil
}

// Tip returns the commit hash the given ref points at.
func (g *Git) Tip(ctx context.Context, ref string) (string, error) {
	out, err := g.run(ctx, g.root, "rev-parse", "--verify", ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ref %s: %w", ref, err)
	}

	return strings.TrimSpace(out), nil
}

package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wptsync/wptsync/internal/vcs"
)

// requireGit skips tests when no git binary is available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// runGit runs a git command in dir, failing the test on error.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

// initRepo creates a git repository with an initial commit on main.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "wptsync@example.com")
	runGit(t, dir, "config", "user.name", "wptsync")
	runGit(t, dir, "config", "commit.gpgsign", "false")

	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("base\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	runGit(t, dir, "add", "README")
	runGit(t, dir, "commit", "-m", "initial")

	return dir
}

// commitFile writes and commits a file inside a workspace.
func commitFile(t *testing.T, ws vcs.Workspace, name, content, msg string) {
	t.Helper()

	path := filepath.Join(ws.Path(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := ws.Add(context.Background(), name); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := ws.Commit(context.Background(), vcs.CommitOptions{Message: msg}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestNewRejectsNonRepo(t *testing.T) {
	requireGit(t)

	if _, err := New("x", t.TempDir()); !errors.Is(err, vcs.ErrNotInVCS) {
		t.Errorf("expected ErrNotInVCS, got %v", err)
	}
}

func TestRefLifecycle(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	g, err := New("test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := g.CreateRef("feature", "main"); err != nil {
		t.Fatalf("CreateRef failed: %v", err)
	}
	if !g.RefExists("feature") {
		t.Error("created branch should exist")
	}
	if err := g.CreateRef("feature", "main"); !errors.Is(err, vcs.ErrRefExists) {
		t.Errorf("expected ErrRefExists, got %v", err)
	}

	mainTip, err := g.Tip(context.Background(), "main")
	if err != nil {
		t.Fatalf("Tip failed: %v", err)
	}
	featureTip, err := g.Tip(context.Background(), "feature")
	if err != nil {
		t.Fatalf("Tip failed: %v", err)
	}
	if mainTip != featureTip {
		t.Errorf("branch should point at its base, got %s and %s", mainTip, featureTip)
	}

	if err := g.DeleteRef("feature"); err != nil {
		t.Fatalf("DeleteRef failed: %v", err)
	}
	if err := g.DeleteRef("feature"); !errors.Is(err, vcs.ErrRefNotFound) {
		t.Errorf("expected ErrRefNotFound, got %v", err)
	}
}

func TestCreateWorkspaceIsIdempotent(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	g, err := New("test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	opts := vcs.WorkspaceOptions{Name: "PR_1", Base: "main"}

	ws1, err := g.CreateWorkspace(ctx, opts)
	if err != nil {
		t.Fatalf("first CreateWorkspace failed: %v", err)
	}
	ws2, err := g.CreateWorkspace(ctx, opts)
	if err != nil {
		t.Fatalf("second CreateWorkspace failed: %v", err)
	}

	if ws1.Path() != ws2.Path() {
		t.Errorf("expected the same workspace path, got %q and %q", ws1.Path(), ws2.Path())
	}
	if ws1.Branch() != "PR_1" {
		t.Errorf("expected branch PR_1, got %q", ws1.Branch())
	}

	found, err := g.Workspace(ctx, "PR_1")
	if err != nil {
		t.Fatalf("Workspace lookup failed: %v", err)
	}
	if found.Path() != ws1.Path() {
		t.Errorf("lookup returned a different workspace: %q", found.Path())
	}

	if _, err := g.Workspace(ctx, "PR_2"); !errors.Is(err, vcs.ErrWorkspaceNotFound) {
		t.Errorf("expected ErrWorkspaceNotFound, got %v", err)
	}
}

func TestWorkspaceCleanup(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	g, err := New("test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	ws, err := g.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_3", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := g.Workspace(ctx, "PR_3"); !errors.Is(err, vcs.ErrWorkspaceNotFound) {
		t.Errorf("workspace should be gone, got %v", err)
	}
	if g.RefExists("PR_3") {
		t.Error("workspace branch should be deleted")
	}
}

func TestCommitsBetweenOldestFirst(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	g, err := New("test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	ws, err := g.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_4", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	commitFile(t, ws, "t1.html", "one\n", "add t1")
	commitFile(t, ws, "t2.html", "two\n", "add t2")

	commits, err := ws.CommitsBetween(ctx, "main", "HEAD")
	if err != nil {
		t.Fatalf("CommitsBetween failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}

	// Oldest first: the first commit must carry t1.html
	patch, err := ws.RenderPatch(ctx, commits[0])
	if err != nil {
		t.Fatalf("RenderPatch failed: %v", err)
	}
	if !strings.Contains(patch, "t1.html") {
		t.Errorf("first commit should add t1.html:\n%s", patch)
	}
	if !strings.HasSuffix(patch, "\n") {
		t.Error("rendered patch should end with a newline")
	}
}

func TestRenderPatchEmptyCommit(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	g, err := New("test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	ws, err := g.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_5", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	if err := ws.Commit(ctx, vcs.CommitOptions{Message: "no-op", AllowEmpty: true}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	tip, err := ws.Tip(ctx)
	if err != nil {
		t.Fatalf("Tip failed: %v", err)
	}

	patch, err := ws.RenderPatch(ctx, tip)
	if err != nil {
		t.Fatalf("RenderPatch failed: %v", err)
	}
	if !strings.HasSuffix(patch, "\n\n\n") {
		t.Errorf("a commit with no content change should render with a blank tail:\n%q", patch)
	}
}

func TestApplyPatchUnderPrefix(t *testing.T) {
	requireGit(t)

	source := initRepo(t)
	target := initRepo(t)

	srcGit, err := New("source", source)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tgtGit, err := New("target", target)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	srcWS, err := srcGit.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_6", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}
	tgtWS, err := tgtGit.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_6", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	commitFile(t, srcWS, "t1.html", "one\n", "add t1")
	commits, err := srcWS.CommitsBetween(ctx, "main", "HEAD")
	if err != nil {
		t.Fatalf("CommitsBetween failed: %v", err)
	}

	patch, err := srcWS.RenderPatch(ctx, commits[0])
	if err != nil {
		t.Fatalf("RenderPatch failed: %v", err)
	}

	if err := tgtWS.ApplyPatch(ctx, patch, "mirror"); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tgtWS.Path(), "mirror", "t1.html")); err != nil {
		t.Errorf("patch should land under the prefix: %v", err)
	}
}

func TestApplyPatchFailureLeavesWorkspaceUsable(t *testing.T) {
	requireGit(t)

	source := initRepo(t)
	target := initRepo(t)

	srcGit, err := New("source", source)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tgtGit, err := New("target", target)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	srcWS, err := srcGit.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_7", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}
	tgtWS, err := tgtGit.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_7", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	commitFile(t, srcWS, "t1.html", "one\n", "add t1")
	commitFile(t, srcWS, "t2.html", "two\n", "add t2")
	commits, err := srcWS.CommitsBetween(ctx, "main", "HEAD")
	if err != nil {
		t.Fatalf("CommitsBetween failed: %v", err)
	}

	patch1, err := srcWS.RenderPatch(ctx, commits[0])
	if err != nil {
		t.Fatalf("RenderPatch failed: %v", err)
	}
	patch2, err := srcWS.RenderPatch(ctx, commits[1])
	if err != nil {
		t.Fatalf("RenderPatch failed: %v", err)
	}

	if err := tgtWS.ApplyPatch(ctx, patch1, "mirror"); err != nil {
		t.Fatalf("first ApplyPatch failed: %v", err)
	}

	// Applying the same patch again must fail: the file already exists
	if err := tgtWS.ApplyPatch(ctx, patch1, "mirror"); err == nil {
		t.Fatal("expected the duplicate patch to fail")
	}

	// The aborted am session must not block further patches
	if err := tgtWS.ApplyPatch(ctx, patch2, "mirror"); err != nil {
		t.Errorf("workspace should be usable after an aborted apply: %v", err)
	}
}

func TestHasChangesAndReset(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	g, err := New("test", dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	ws, err := g.CreateWorkspace(ctx, vcs.WorkspaceOptions{Name: "PR_8", Base: "main"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	dirty, err := ws.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if dirty {
		t.Error("fresh workspace should be clean")
	}

	if err := os.WriteFile(filepath.Join(ws.Path(), "README"), []byte("changed\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	dirty, err = ws.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if !dirty {
		t.Error("modified workspace should be dirty")
	}

	if err := ws.ResetHard(ctx, "main"); err != nil {
		t.Fatalf("ResetHard failed: %v", err)
	}
	dirty, err = ws.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if dirty {
		t.Error("reset workspace should be clean")
	}
}

package workspace

import (
	"context"
	"testing"

	"github.com/wptsync/wptsync/internal/store"
	"github.com/wptsync/wptsync/internal/vcs"
)

// fakeWS is a minimal workspace with a fixed tip.
type fakeWS struct {
	vcs.Workspace
	name    string
	tip     string
	cleaned bool
}

func (f *fakeWS) Tip(ctx context.Context) (string, error) { return f.tip, nil }
func (f *fakeWS) Cleanup() error                          { f.cleaned = true; return nil }

// fakeRepo hands out one workspace per name and counts creations.
type fakeRepo struct {
	vcs.Repo
	workspaces map[string]*fakeWS
	creations  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{workspaces: make(map[string]*fakeWS)}
}

func (f *fakeRepo) CreateWorkspace(ctx context.Context, opts vcs.WorkspaceOptions) (vcs.Workspace, error) {
	if ws, ok := f.workspaces[opts.Name]; ok {
		return ws, nil
	}
	f.creations++
	ws := &fakeWS{name: opts.Name, tip: "tip-" + opts.Name}
	f.workspaces[opts.Name] = ws
	return ws, nil
}

func (f *fakeRepo) Workspace(ctx context.Context, name string) (vcs.Workspace, error) {
	ws, ok := f.workspaces[name]
	if !ok {
		return nil, vcs.ErrWorkspaceNotFound
	}
	return ws, nil
}

// fakeRecorder captures workspace-name updates.
type fakeRecorder struct {
	sourceCalls int
	targetCalls int
	source      string
	target      string
}

func (f *fakeRecorder) SetSourceWorkspace(ctx context.Context, syncID int64, name string) error {
	f.sourceCalls++
	f.source = name
	return nil
}

func (f *fakeRecorder) SetTargetWorkspace(ctx context.Context, syncID int64, name string) error {
	f.targetCalls++
	f.target = name
	return nil
}

func TestEnsureIsIdempotent(t *testing.T) {
	source := newFakeRepo()
	target := newFakeRepo()
	m := New(source, target, nil)
	rec := &fakeRecorder{}
	s := &store.Sync{ID: 1, PRID: 9}

	ws1, name1, err := m.Ensure(context.Background(), rec, s, RoleSource, "origin/master")
	if err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	ws2, name2, err := m.Ensure(context.Background(), rec, s, RoleSource, "origin/master")
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	if ws1 != ws2 {
		t.Error("Ensure returned different workspaces for the same sync")
	}
	if name1 != name2 || name1 != "PR_9" {
		t.Errorf("expected name PR_9 both times, got %q and %q", name1, name2)
	}
	if source.creations != 1 {
		t.Errorf("expected one workspace creation, got %d", source.creations)
	}
	if rec.sourceCalls != 1 {
		t.Errorf("expected one name record, got %d", rec.sourceCalls)
	}
	if s.SourceWS != "PR_9" {
		t.Errorf("sync record should hold the workspace name, got %q", s.SourceWS)
	}
}

func TestEnsureRolesAreIndependent(t *testing.T) {
	source := newFakeRepo()
	target := newFakeRepo()
	m := New(source, target, nil)
	rec := &fakeRecorder{}
	s := &store.Sync{ID: 1, PRID: 4}

	if _, _, err := m.Ensure(context.Background(), rec, s, RoleSource, "origin/master"); err != nil {
		t.Fatalf("source Ensure failed: %v", err)
	}
	if _, _, err := m.Ensure(context.Background(), rec, s, RoleTarget, "mozilla/central"); err != nil {
		t.Fatalf("target Ensure failed: %v", err)
	}

	if source.creations != 1 || target.creations != 1 {
		t.Errorf("expected one creation per repository, got %d and %d", source.creations, target.creations)
	}
	if s.SourceWS != "PR_4" || s.TargetWS != "PR_4" {
		t.Errorf("both roles should be recorded, got %q and %q", s.SourceWS, s.TargetWS)
	}
}

func TestRemoveCleansUpAndClearsNames(t *testing.T) {
	source := newFakeRepo()
	target := newFakeRepo()
	m := New(source, target, nil)
	rec := &fakeRecorder{}
	s := &store.Sync{ID: 1, PRID: 7}

	ws, _, err := m.Ensure(context.Background(), rec, s, RoleSource, "origin/master")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if err := m.Remove(context.Background(), rec, s); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if !ws.(*fakeWS).cleaned {
		t.Error("workspace should be cleaned up")
	}
	if s.SourceWS != "" {
		t.Errorf("workspace name should be cleared, got %q", s.SourceWS)
	}
	if rec.source != "" {
		t.Errorf("cleared name should be recorded, got %q", rec.source)
	}
}

func TestTipWithoutWorkspace(t *testing.T) {
	m := New(newFakeRepo(), newFakeRepo(), nil)
	s := &store.Sync{ID: 1, PRID: 2}

	if _, err := m.Tip(context.Background(), s, RoleSource); err != vcs.ErrWorkspaceNotFound {
		t.Errorf("expected ErrWorkspaceNotFound, got %v", err)
	}
}

func TestTipReturnsWorkspaceTip(t *testing.T) {
	source := newFakeRepo()
	m := New(source, newFakeRepo(), nil)
	rec := &fakeRecorder{}
	s := &store.Sync{ID: 1, PRID: 3}

	if _, _, err := m.Ensure(context.Background(), rec, s, RoleSource, "origin/master"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	tip, err := m.Tip(context.Background(), s, RoleSource)
	if err != nil {
		t.Fatalf("Tip failed: %v", err)
	}
	if tip != "tip-PR_3" {
		t.Errorf("expected tip-PR_3, got %q", tip)
	}
}

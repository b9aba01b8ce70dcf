package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeTool serves a canned classification report and records the paths it
// was asked about.
type fakeTool struct {
	report string
	err    error
	calls  int
	paths  []string
}

func (f *fakeTool) ClassifyPaths(ctx context.Context, paths []string) (string, error) {
	f.calls++
	f.paths = paths
	return f.report, f.err
}

var defaultDecision = Decision{Product: "Testing", Component: "web-platform-tests"}

// report builds a classification report from (component, file count) pairs.
func report(entries ...interface{}) string {
	out := ""
	for i := 0; i < len(entries); i += 2 {
		component := entries[i].(string)
		count := entries[i+1].(int)
		out += component + "\n"
		for j := 0; j < count; j++ {
			out += fmt.Sprintf("  file%d.html\n", j)
		}
	}
	return out
}

func TestClassifyEmptyFilesReturnsDefault(t *testing.T) {
	tool := &fakeTool{}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), nil, defaultDecision)
	if got != defaultDecision {
		t.Errorf("expected default %v, got %v", defaultDecision, got)
	}
	if tool.calls != 0 {
		t.Errorf("tool should not be queried for an empty file set")
	}
}

func TestClassifyPrefixesPaths(t *testing.T) {
	tool := &fakeTool{report: report("Core :: DOM", 1)}
	c := New(tool, "testing/web-platform/tests", nil)

	c.Classify(context.Background(), []string{"dom/test.html"}, defaultDecision)

	want := []string{"testing/web-platform/tests/dom/test.html"}
	if diff := cmp.Diff(want, tool.paths); diff != "" {
		t.Errorf("queried paths mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyMajorityWins(t *testing.T) {
	tool := &fakeTool{report: report("Core :: DOM", 3, "Core :: Layout", 7)}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	want := Decision{Product: "Core", Component: "Layout"}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClassifyUnknownDemoted(t *testing.T) {
	tool := &fakeTool{report: report(Unknown, 5, "Core :: DOM", 2)}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	want := Decision{Product: "Core", Component: "DOM"}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClassifyAllUnknownFallsBack(t *testing.T) {
	tool := &fakeTool{report: report(Unknown, 4)}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	if got != defaultDecision {
		t.Errorf("expected default %v, got %v", defaultDecision, got)
	}
}

func TestClassifyToolErrorFallsBack(t *testing.T) {
	tool := &fakeTool{err: fmt.Errorf("tool crashed")}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	if got != defaultDecision {
		t.Errorf("expected default %v, got %v", defaultDecision, got)
	}
}

func TestClassifyMalformedReportFallsBack(t *testing.T) {
	// Detail line before any header
	tool := &fakeTool{report: "  orphan.html\nCore :: DOM\n  file.html\n"}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	if got != defaultDecision {
		t.Errorf("expected default %v, got %v", defaultDecision, got)
	}
}

func TestClassifyComponentWithoutProductKeepsDefaultProduct(t *testing.T) {
	tool := &fakeTool{report: report("General", 2)}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	want := Decision{Product: "Testing", Component: "General"}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClassifyTieKeepsFirstSeen(t *testing.T) {
	tool := &fakeTool{report: report("Core :: DOM", 2, "Core :: Layout", 2)}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	want := Decision{Product: "Core", Component: "DOM"}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClassifyHeaderWithNoFilesIgnored(t *testing.T) {
	tool := &fakeTool{report: report("Core :: Layout", 0, "Core :: DOM", 1)}
	c := New(tool, "testing/web-platform/tests", nil)

	got := c.Classify(context.Background(), []string{"a"}, defaultDecision)
	want := Decision{Product: "Core", Component: "DOM"}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

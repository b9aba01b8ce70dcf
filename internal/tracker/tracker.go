// Package tracker abstracts the downstream issue tracker.
//
// Every sync drives exactly one tracker issue: created at intake, commented
// on for progress and failures, and rerouted once classification finishes.
package tracker

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// Tracker is the issue-tracker capability the sync engine consumes.
type Tracker interface {
	// Create files a new issue and returns its id.
	Create(ctx context.Context, summary, body, product, component string) (int64, error)

	// Comment appends a comment to an existing issue.
	Comment(ctx context.Context, id int64, text string) error

	// SetRouting moves an issue to the given product and component.
	SetRouting(ctx context.Context, id int64, product, component string) error
}

// LogTracker is a Tracker that records issues in memory and logs every
// operation. It stands in when no real tracker is configured, keeping the
// sync pipeline runnable against local clones.
type LogTracker struct {
	logger *log.Logger

	nextID atomic.Int64

	mu     sync.Mutex
	issues map[int64]*loggedIssue
}

type loggedIssue struct {
	summary   string
	product   string
	component string
	comments  []string
}

// NewLogTracker creates a LogTracker. If logger is nil, a default logger
// writing to stderr is used.
func NewLogTracker(logger *log.Logger) *LogTracker {
	if logger == nil {
		logger = log.New(os.Stderr, "[tracker] ", log.LstdFlags)
	}
	return &LogTracker{
		logger: logger,
		issues: make(map[int64]*loggedIssue),
	}
}

// Create files a new in-memory issue with a process-unique id.
func (t *LogTracker) Create(ctx context.Context, summary, body, product, component string) (int64, error) {
	id := t.nextID.Add(1)

	t.mu.Lock()
	t.issues[id] = &loggedIssue{
		summary:   summary,
		product:   product,
		component: component,
	}
	t.mu.Unlock()

	t.logger.Printf("Created issue %d [%s :: %s] %s", id, product, component, summary)
	return id, nil
}

// Comment appends a comment to an issue. Comments on unknown issues are
// still logged; the tracker is best-effort by design.
func (t *LogTracker) Comment(ctx context.Context, id int64, text string) error {
	t.mu.Lock()
	if issue, ok := t.issues[id]; ok {
		issue.comments = append(issue.comments, text)
	}
	t.mu.Unlock()

	t.logger.Printf("Issue %d comment: %s", id, text)
	return nil
}

// SetRouting moves an issue to a new product and component.
func (t *LogTracker) SetRouting(ctx context.Context, id int64, product, component string) error {
	t.mu.Lock()
	if issue, ok := t.issues[id]; ok {
		issue.product = product
		issue.component = component
	}
	t.mu.Unlock()

	t.logger.Printf("Issue %d routed to %s :: %s", id, product, component)
	return nil
}

// Issue returns a snapshot of a recorded issue, for inspection in tests.
func (t *LogTracker) Issue(id int64) (summary, product, component string, comments []string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, ok := t.issues[id]
	if !ok {
		return "", "", "", nil, false
	}
	return issue.summary, issue.product, issue.component, append([]string(nil), issue.comments...), true
}

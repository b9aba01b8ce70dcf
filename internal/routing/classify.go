// Package routing computes the bug-routing decision for a sync.
//
// The classifier asks the build tool which component owns each changed file
// and reduces the possibly multi-valued, possibly-unknown answer to a single
// (product, component) pair. Classification is advisory: any failure or
// ambiguity falls back to the caller's default rather than surfacing an
// error.
package routing

import (
	"context"
	"log"
	"os"
	"path"
	"sort"
	"strings"
)

// Unknown is the sentinel component name the build tool emits for files it
// cannot attribute. It is a non-actionable routing target, so it is
// deprioritized whenever any alternative exists.
const Unknown = "UNKNOWN"

// Decision is the (product, component) pair assigned to a tracker issue.
type Decision struct {
	Product   string
	Component string
}

// PathClassifier is the build-tool capability the classifier consumes.
// The returned report is line-oriented: a component header line followed by
// zero or more indented file lines attributed to that header.
type PathClassifier interface {
	ClassifyPaths(ctx context.Context, paths []string) (string, error)
}

// Classifier reduces per-path classification output to a routing decision.
type Classifier struct {
	tool   PathClassifier
	prefix string
	logger *log.Logger
}

// New creates a Classifier. prefix is the target-tree subpath prepended to
// every changed file before querying. If logger is nil, a default logger
// writing to stderr is used.
func New(tool PathClassifier, prefix string, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[routing] ", log.LstdFlags)
	}
	return &Classifier{tool: tool, prefix: prefix, logger: logger}
}

// Classify picks a routing decision for the given changed files.
//
// An empty input returns def immediately: early in translation the files may
// not exist in the target tree yet, so no classification is meaningful.
// Otherwise the files are prefixed with the target-tree subpath, classified,
// and reduced by frequency with the Unknown sentinel demoted. Errors and
// unusable output fall back to def.
func (c *Classifier) Classify(ctx context.Context, files []string, def Decision) Decision {
	if len(files) == 0 {
		return def
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, path.Join(c.prefix, f))
	}

	report, err := c.tool.ClassifyPaths(ctx, paths)
	if err != nil {
		c.logger.Printf("Classification failed, using default: %v", err)
		return def
	}

	component, ok := reduce(report)
	if !ok {
		return def
	}

	return parseDecision(component, def)
}

// reduce parses the line-oriented classification report and picks the most
// frequent component. Ties keep first-seen order; the Unknown sentinel is
// replaced by the runner-up when one exists. Returns ok=false when nothing
// usable remains.
func reduce(report string) (string, bool) {
	counts := make(map[string]int)
	var order []string
	current := ""

	for _, line := range strings.Split(report, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, " ") {
			if current == "" {
				// Detail line before any header: malformed report
				return "", false
			}
			counts[current]++
			continue
		}

		current = strings.TrimSpace(line)
		if _, seen := counts[current]; !seen {
			counts[current] = 0
			order = append(order, current)
		}
	}

	// Drop components that attracted no files
	candidates := order[:0:0]
	for _, name := range order {
		if counts[name] > 0 {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return counts[candidates[i]] > counts[candidates[j]]
	})

	component := candidates[0]
	if component == Unknown && len(candidates) > 1 {
		component = candidates[1]
	}
	if component == Unknown {
		return "", false
	}

	return component, true
}

// parseDecision splits a "Product :: Component" string into a Decision.
// A string with no separator keeps def's product.
func parseDecision(component string, def Decision) Decision {
	parts := strings.SplitN(component, " :: ", 2)
	if len(parts) == 2 {
		return Decision{Product: parts[0], Component: parts[1]}
	}
	return Decision{Product: def.Product, Component: component}
}

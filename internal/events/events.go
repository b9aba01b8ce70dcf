// Package events defines the typed inbound forge events and the reactor
// that turns CI status notifications into sync work.
package events

import (
	"fmt"
)

// CI status states the reactor understands. Any other state is ignored.
const (
	StatePending = "pending"
	StatePassed  = "passed"
)

// ChangeRequestEvent is an inbound notification that a change request was
// opened or updated upstream.
type ChangeRequestEvent struct {
	Number int    `json:"changeRequestId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Validate checks the event for the fields intake requires.
func (e *ChangeRequestEvent) Validate() error {
	if e.Number <= 0 {
		return fmt.Errorf("change-request event has no id")
	}
	if e.Title == "" {
		return fmt.Errorf("change-request event %d has no title", e.Number)
	}
	return nil
}

// StatusEvent is an inbound CI status notification for a change request's
// head revision.
type StatusEvent struct {
	Context string `json:"context"`
	State   string `json:"state"`
	SHA     string `json:"sha"`
}

// Validate checks the event for the fields the reactor requires.
func (e *StatusEvent) Validate() error {
	if e.Context == "" {
		return fmt.Errorf("status event has no context")
	}
	if e.State == "" {
		return fmt.Errorf("status event has no state")
	}
	if e.SHA == "" {
		return fmt.Errorf("status event has no revision")
	}
	return nil
}

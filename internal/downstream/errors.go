package downstream

import "errors"

// Failure kinds for a downstream sync pass. Check with errors.Is(). Patch
// render/apply kinds live in the translate package next to their source.
var (
	// ErrFetch is returned when fetching an upstream or baseline ref fails.
	ErrFetch = errors.New("fetch failed")

	// ErrWorkspace is returned when a sync workspace cannot be prepared.
	ErrWorkspace = errors.New("workspace preparation failed")

	// ErrMetadataRegen is returned when the manifest regeneration tool fails.
	ErrMetadataRegen = errors.New("metadata regeneration failed")

	// ErrStateStore is returned when persisting sync state fails.
	ErrStateStore = errors.New("sync state update failed")
)

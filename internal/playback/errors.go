package playback

import (
	"errors"
	"fmt"
)

// The command surface returns typed errors so transport bindings can map
// them mechanically. No command fails silently: every submission ends in an
// ack or one of these.
var (
	// ErrNotFound means the referenced media id is absent from the catalog.
	// The command has no effect on playback state.
	ErrNotFound = errors.New("media not found")

	// ErrInvalidState means the command is not valid in the current state
	// (resume while stopped, next on a stream). Rejected without side
	// effects.
	ErrInvalidState = errors.New("command not valid in current state")

	// ErrUnsupported means the active backend cannot perform the requested
	// transport operation and no fallback is configured.
	ErrUnsupported = errors.New("operation not supported by active media")

	// ErrSuperseded is the Busy outcome of the newest-wins queue: the
	// command was replaced by a later one before it started executing.
	ErrSuperseded = errors.New("command superseded by a newer one")

	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("playback service closed")
)

// LoadError wraps a backend failure to acquire or start a media source. The
// orchestrator is in the Error state with Message preserved; it recovers on
// the next PlayMedia.
type LoadError struct {
	MediaID string
	Cause   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.MediaID, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

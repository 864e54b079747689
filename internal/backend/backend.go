// Package backend contains the playback adapters, one per media kind. Each
// adapter translates the uniform transport contract into its engine's native
// calls and owns one background worker so a blocking engine call never
// stalls the caller beyond its context deadline.
package backend

import (
	"context"
	"errors"

	"github.com/matteklund/homedeck/internal/media"
)

// ErrUnsupported is returned for transport operations the adapter's media
// kind cannot perform (pausing a live stream, track navigation on a single
// target). Callers decide the fallback.
var ErrUnsupported = errors.New("backend: operation not supported")

// Interface is the uniform capability surface of one playback backend.
//
// Load acquires the playback source: it opens the stream URL, resolves the
// album track at the given zero-based index, or issues the play-favorite
// command on the speaker. It is the only potentially slow call and honors
// ctx cancellation. Play ensures the transport is rolling after a
// successful Load; for kinds whose Load already starts output it is a
// no-op.
type Interface interface {
	Kind() media.Kind
	Load(ctx context.Context, d media.Descriptor, trackIndex int) error
	Play() error
	Pause() error
	Resume() error
	Stop() error
	// Next and Previous return the resulting zero-based track index. At the
	// album boundary they are a no-op returning the index unchanged.
	Next() (int, error)
	Previous() (int, error)
	SetVolume(level float64) error
	Volume() float64
	// TrackIndex returns the current track index, or false when the active
	// source has no track position (streams, single-target favorites).
	TrackIndex() (int, bool)
	Events() <-chan Event
	Close() error
}

// EventType classifies events an adapter pushes back to its orchestrator.
type EventType int

const (
	// EventTrackChanged signals playback moved to another track on its own
	// (album auto-advance).
	EventTrackChanged EventType = iota
	// EventFinished signals the loaded media played to its natural end.
	EventFinished
	// EventFailed signals a runtime playback failure.
	EventFailed
)

// Event is an asynchronous notification from an adapter.
type Event struct {
	Type       EventType
	TrackIndex int
	Err        error
}

const eventBufferSize = 16

// sendEvent delivers e without blocking, dropping it if the buffer is full.
func sendEvent(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
	}
}

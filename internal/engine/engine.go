// Package engine wraps the native audio engine used for local playback of
// files and network streams. Backends drive it through Interface so tests
// can substitute the Mock.
package engine

import (
	"context"
	"errors"
	"time"
)

// State represents the engine playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsActive returns true if playback is active (Playing or Paused).
func (s State) IsActive() bool {
	return s == Playing || s == Paused
}

// ErrUnsupported is returned for transport operations the current source
// cannot perform, such as pausing a live stream.
var ErrUnsupported = errors.New("engine: operation not supported for current source")

// NoPosition marks sources without a seekable playback position.
const NoPosition = time.Duration(-1)

// Interface defines the engine contract for dependency injection and testing.
// PlayFile and PlayStream honor ctx up to the point the new source is
// committed: a call whose context is canceled before that point leaves the
// engine's current source untouched.
type Interface interface {
	PlayFile(ctx context.Context, path string) error
	PlayStream(ctx context.Context, url string) error
	Stop()
	Pause() error
	Resume() error
	SetVolume(v float64)
	Volume() float64
	State() State
	Position() time.Duration // NoPosition for live streams
	FinishedChan() <-chan struct{}
	Close() error
}

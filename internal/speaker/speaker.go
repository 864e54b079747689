// Package speaker defines the capability contract a networked speaker
// integration must satisfy. The hub only depends on this interface; the
// discovery protocol and transport of a concrete speaker SDK live behind it.
package speaker

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no speaker is reachable.
var ErrUnavailable = errors.New("speaker: device unavailable")

// Favorite is one preset stored on the speaker. The handle is opaque and
// only meaningful to the controller that listed it.
type Favorite struct {
	Handle     string
	Title      string
	Descr      string
	ArtworkURL string
	TrackCount int // 0 when the favorite is a single target (station, single)
}

// Controller is the uniform control surface over one speaker (or group).
// All calls may block on the network and honor ctx cancellation.
type Controller interface {
	Favorites(ctx context.Context) ([]Favorite, error)
	PlayFavorite(ctx context.Context, handle string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, level float64) error
}

package playback

import "github.com/matteklund/homedeck/internal/media"

// StateChange is emitted when the playback status changes.
type StateChange struct {
	Previous Status
	Current  Status
}

// TrackChange is emitted when playback moves to a different track of the
// active media, whether by command or by album auto-advance.
type TrackChange struct {
	MediaID  string
	Position int
	Track    *media.Track
}

// VolumeChange is emitted when the output level changes.
type VolumeChange struct {
	Volume float64
}

// ErrorEvent is emitted when a backend failure moves the hub to the error
// state.
type ErrorEvent struct {
	MediaID string
	Message string
}

package playback

import "github.com/matteklund/homedeck/internal/media"

// Status represents the hub playback state machine.
//
// Valid transitions:
//   - Stopped → Loading  (via PlayMedia)
//   - Loading → Playing  (load committed)
//   - Loading → Error    (load failed or timed out)
//   - Playing → Paused   (via Pause)
//   - Paused  → Playing  (via Resume)
//   - Playing/Paused → Stopped (via Stop, or album played to its end)
//   - any     → Loading  (PlayMedia replaces current playback)
//   - any     → Error    (runtime backend failure)
//
// Error is recoverable: the next PlayMedia is accepted normally.
type Status int

const (
	StatusStopped Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
	StatusError
)

// String returns the status name as used on the wire.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsActive returns true if some media is loaded (playing or paused).
func (s Status) IsActive() bool {
	return s == StatusPlaying || s == StatusPaused
}

// MarshalText lets Status serialize as its string form in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NoTrack marks snapshots whose active media has no track position.
const NoTrack = -1

// Snapshot is the read-only copy of the playback state handed to control
// surfaces. It is never a live reference into orchestrator state.
type Snapshot struct {
	Status        Status       `json:"status"`
	MediaID       string       `json:"current_media_id,omitempty"`
	MediaKind     media.Kind   `json:"media_type,omitempty"`
	Track         *media.Track `json:"current_track,omitempty"`
	TrackPosition int          `json:"track_position"` // zero-based, NoTrack when not applicable
	Volume        float64      `json:"volume"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// clone returns a deep copy, detaching the track pointer.
func (s Snapshot) clone() Snapshot {
	out := s
	if s.Track != nil {
		t := *s.Track
		out.Track = &t
	}
	return out
}

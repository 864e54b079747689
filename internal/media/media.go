// Package media defines the catalog data model: descriptors for playable
// units (radio streams, local albums, remote-speaker favorites) and their
// kind-specific payloads.
package media

import (
	"errors"
	"fmt"
)

// Kind identifies which playback backend a descriptor belongs to.
type Kind string

const (
	KindStream         Kind = "stream"
	KindLocalAlbum     Kind = "local_album"
	KindRemoteFavorite Kind = "remote_favorite"
)

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStream, KindLocalAlbum, KindRemoteFavorite:
		return true
	}
	return false
}

// ErrWrongKind is returned when a kind-specific payload is requested from a
// descriptor of another kind.
var ErrWrongKind = errors.New("media: payload does not match descriptor kind")

// Track is one entry of a local album.
// Numbers need not be contiguous but are unique within an album.
type Track struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Source string `json:"source"` // file path of the audio source
}

// Album is the payload of a KindLocalAlbum descriptor.
type Album struct {
	Tracks []Track
}

// Stream is the payload of a KindStream descriptor.
type Stream struct {
	URL string
}

// Favorite is the payload of a KindRemoteFavorite descriptor. The handle is
// opaque to everything but the speaker backend that issued it.
type Favorite struct {
	Handle     string
	TrackCount int // 0 when unknown or single-target (no track navigation)
}

// Descriptor is one immutable catalog entry. Exactly one of the payload
// fields matching Kind is set; access goes through the accessor methods so a
// mismatch surfaces as ErrWrongKind instead of a zero value.
type Descriptor struct {
	id          string
	kind        Kind
	displayName string
	description string
	artworkRef  string

	stream   *Stream
	album    *Album
	favorite *Favorite
}

// NewStream creates a stream descriptor.
func NewStream(id, displayName, url string) Descriptor {
	return Descriptor{
		id:          id,
		kind:        KindStream,
		displayName: displayName,
		stream:      &Stream{URL: url},
	}
}

// NewAlbum creates a local-album descriptor. Tracks must already be sorted
// by number ascending; callers building albums from scans use library.Scan
// which guarantees this.
func NewAlbum(id, displayName string, tracks []Track) Descriptor {
	return Descriptor{
		id:          id,
		kind:        KindLocalAlbum,
		displayName: displayName,
		album:       &Album{Tracks: tracks},
	}
}

// NewFavorite creates a remote-favorite descriptor.
func NewFavorite(id, displayName, handle string, trackCount int) Descriptor {
	return Descriptor{
		id:          id,
		kind:        KindRemoteFavorite,
		displayName: displayName,
		favorite:    &Favorite{Handle: handle, TrackCount: trackCount},
	}
}

func (d Descriptor) ID() string          { return d.id }
func (d Descriptor) Kind() Kind          { return d.kind }
func (d Descriptor) DisplayName() string { return d.displayName }
func (d Descriptor) Description() string { return d.description }
func (d Descriptor) ArtworkRef() string  { return d.artworkRef }

// WithDetails returns a copy with description and artwork reference set.
func (d Descriptor) WithDetails(description, artworkRef string) Descriptor {
	d.description = description
	d.artworkRef = artworkRef
	return d
}

// Stream returns the stream payload.
func (d Descriptor) Stream() (Stream, error) {
	if d.kind != KindStream || d.stream == nil {
		return Stream{}, fmt.Errorf("%w: want %s, have %s", ErrWrongKind, KindStream, d.kind)
	}
	return *d.stream, nil
}

// Album returns the album payload.
func (d Descriptor) Album() (Album, error) {
	if d.kind != KindLocalAlbum || d.album == nil {
		return Album{}, fmt.Errorf("%w: want %s, have %s", ErrWrongKind, KindLocalAlbum, d.kind)
	}
	return *d.album, nil
}

// Favorite returns the remote-favorite payload.
func (d Descriptor) Favorite() (Favorite, error) {
	if d.kind != KindRemoteFavorite || d.favorite == nil {
		return Favorite{}, fmt.Errorf("%w: want %s, have %s", ErrWrongKind, KindRemoteFavorite, d.kind)
	}
	return *d.favorite, nil
}

// HasTracks reports whether the descriptor supports track navigation.
func (d Descriptor) HasTracks() bool {
	switch d.kind {
	case KindLocalAlbum:
		return d.album != nil && len(d.album.Tracks) > 0
	case KindRemoteFavorite:
		return d.favorite != nil && d.favorite.TrackCount > 1
	}
	return false
}

// TrackAt returns the album track at the given zero-based position.
func (a Album) TrackAt(position int) (Track, bool) {
	if position < 0 || position >= len(a.Tracks) {
		return Track{}, false
	}
	return a.Tracks[position], true
}

// Summary is the JSON shape control surfaces receive when listing media.
type Summary struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	ArtworkRef  string `json:"artwork_ref,omitempty"`
	TrackCount  int    `json:"track_count,omitempty"`
}

// Summarize builds the list/browse representation of a descriptor.
func (d Descriptor) Summarize() Summary {
	s := Summary{
		ID:          d.id,
		Kind:        d.kind,
		DisplayName: d.displayName,
		Description: d.description,
		ArtworkRef:  d.artworkRef,
	}
	switch d.kind {
	case KindLocalAlbum:
		if d.album != nil {
			s.TrackCount = len(d.album.Tracks)
		}
	case KindRemoteFavorite:
		if d.favorite != nil {
			s.TrackCount = d.favorite.TrackCount
		}
	}
	return s
}

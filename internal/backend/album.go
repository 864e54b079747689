package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/matteklund/homedeck/internal/engine"
	"github.com/matteklund/homedeck/internal/media"
)

// AlbumPlayer plays local albums track by track through the audio engine.
// When a track plays to its end the next one starts automatically; at the
// end of the album playback stops and EventFinished is emitted.
type AlbumPlayer struct {
	eng    engine.Interface
	w      *worker
	events chan Event

	mu          sync.Mutex
	album       media.Album
	index       int
	loaded      bool
	cancelWatch chan struct{}
}

// NewAlbumPlayer creates the local-album backend on top of the given engine.
func NewAlbumPlayer(eng engine.Interface) *AlbumPlayer {
	return &AlbumPlayer{
		eng:    eng,
		w:      newWorker(),
		events: make(chan Event, eventBufferSize),
	}
}

func (p *AlbumPlayer) Kind() media.Kind { return media.KindLocalAlbum }

// Load resolves the track at the given zero-based index (default first) and
// prepares playback. Output starts in Play.
func (p *AlbumPlayer) Load(_ context.Context, d media.Descriptor, trackIndex int) error {
	album, err := d.Album()
	if err != nil {
		return err
	}
	if len(album.Tracks) == 0 {
		return fmt.Errorf("album %s has no tracks", d.ID())
	}
	if trackIndex < 0 || trackIndex >= len(album.Tracks) {
		return fmt.Errorf("album %s: track index %d out of range", d.ID(), trackIndex)
	}

	p.stopWatch()
	p.mu.Lock()
	p.album = album
	p.index = trackIndex
	p.loaded = true
	p.mu.Unlock()
	return nil
}

// Play starts output at the loaded track.
func (p *AlbumPlayer) Play() error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return fmt.Errorf("no album loaded")
	}
	track, _ := p.album.TrackAt(p.index)
	p.mu.Unlock()

	ctx := context.Background()
	if err := p.w.do(ctx, func() error { return p.eng.PlayFile(ctx, track.Source) }); err != nil {
		return fmt.Errorf("play track %d: %w", track.Number, err)
	}

	p.mu.Lock()
	cancel := make(chan struct{})
	p.cancelWatch = cancel
	p.mu.Unlock()
	go p.watch(cancel)
	return nil
}

func (p *AlbumPlayer) Pause() error  { return p.eng.Pause() }
func (p *AlbumPlayer) Resume() error { return p.eng.Resume() }

func (p *AlbumPlayer) Stop() error {
	p.stopWatch()
	p.eng.Stop()
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
	return nil
}

// Next moves to the following track. At the last track it is a no-op and
// returns the current index unchanged.
func (p *AlbumPlayer) Next() (int, error) {
	return p.skip(+1)
}

// Previous moves to the preceding track. At the first track it is a no-op.
func (p *AlbumPlayer) Previous() (int, error) {
	return p.skip(-1)
}

func (p *AlbumPlayer) skip(delta int) (int, error) {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return 0, fmt.Errorf("no album loaded")
	}
	target := p.index + delta
	if target < 0 || target >= len(p.album.Tracks) {
		index := p.index
		p.mu.Unlock()
		return index, nil
	}
	p.index = target
	track, _ := p.album.TrackAt(target)
	cancel := p.cancelWatch
	p.cancelWatch = nil
	p.mu.Unlock()

	if cancel != nil {
		close(cancel)
	}
	ctx := context.Background()
	if err := p.w.do(ctx, func() error { return p.eng.PlayFile(ctx, track.Source) }); err != nil {
		return target, fmt.Errorf("play track %d: %w", track.Number, err)
	}

	p.mu.Lock()
	next := make(chan struct{})
	p.cancelWatch = next
	p.mu.Unlock()
	go p.watch(next)
	return target, nil
}

func (p *AlbumPlayer) SetVolume(level float64) error {
	p.eng.SetVolume(level)
	return nil
}

func (p *AlbumPlayer) Volume() float64 { return p.eng.Volume() }

func (p *AlbumPlayer) TrackIndex() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return 0, false
	}
	return p.index, true
}

func (p *AlbumPlayer) Events() <-chan Event { return p.events }

func (p *AlbumPlayer) Close() error {
	p.Stop()
	p.w.close()
	return nil
}

// watch advances to the next track when the engine reports a natural
// finish, or winds down playback at the end of the album.
func (p *AlbumPlayer) watch(cancel chan struct{}) {
	for {
		select {
		case <-cancel:
			return
		case <-p.eng.FinishedChan():
			// The finish may have raced the cancellation; a replaced track
			// ending must not advance the new source.
			select {
			case <-cancel:
				return
			default:
			}
			p.mu.Lock()
			if !p.loaded {
				p.mu.Unlock()
				return
			}
			if p.index+1 >= len(p.album.Tracks) {
				p.loaded = false
				p.cancelWatch = nil
				p.mu.Unlock()
				sendEvent(p.events, Event{Type: EventFinished})
				return
			}
			p.index++
			track, _ := p.album.TrackAt(p.index)
			index := p.index
			p.mu.Unlock()

			if err := p.eng.PlayFile(context.Background(), track.Source); err != nil {
				sendEvent(p.events, Event{Type: EventFailed, Err: err})
				return
			}
			sendEvent(p.events, Event{Type: EventTrackChanged, TrackIndex: index})
		}
	}
}

func (p *AlbumPlayer) stopWatch() {
	p.mu.Lock()
	if p.cancelWatch != nil {
		close(p.cancelWatch)
		p.cancelWatch = nil
	}
	p.mu.Unlock()
}

// Verify AlbumPlayer implements Interface at compile time.
var _ Interface = (*AlbumPlayer)(nil)

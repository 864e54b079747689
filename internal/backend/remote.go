package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matteklund/homedeck/internal/media"
	"github.com/matteklund/homedeck/internal/speaker"
)

// remoteOpTimeout bounds the quick transport calls that do not go through
// Load's caller-supplied context.
const remoteOpTimeout = 5 * time.Second

// RemotePlayer drives favorite playback on a networked speaker through the
// speaker capability contract. Audio never touches the local engine; the
// speaker renders it itself.
type RemotePlayer struct {
	ctrl   speaker.Controller
	w      *worker
	events chan Event

	mu     sync.Mutex
	loaded bool
	multi  bool // favorite supports track navigation
	count  int
	index  int
	level  float64
}

// NewRemotePlayer creates the remote-favorite backend.
func NewRemotePlayer(ctrl speaker.Controller) *RemotePlayer {
	return &RemotePlayer{
		ctrl:   ctrl,
		w:      newWorker(),
		events: make(chan Event, eventBufferSize),
		level:  0.5,
	}
}

func (p *RemotePlayer) Kind() media.Kind { return media.KindRemoteFavorite }

// Load issues the play-favorite command on the speaker; for favorites that
// is the whole acquisition, so Play is a no-op afterwards.
func (p *RemotePlayer) Load(ctx context.Context, d media.Descriptor, trackIndex int) error {
	fav, err := d.Favorite()
	if err != nil {
		return err
	}

	if err := p.w.do(ctx, func() error {
		return p.ctrl.PlayFavorite(ctx, fav.Handle)
	}); err != nil {
		return fmt.Errorf("play favorite %s: %w", d.ID(), err)
	}

	p.mu.Lock()
	p.loaded = true
	p.multi = fav.TrackCount > 1
	p.count = fav.TrackCount
	p.index = 0
	p.mu.Unlock()

	// The speaker starts favorites at their first entry; skip forward to
	// honor a track hint.
	for i := 0; i < trackIndex && fav.TrackCount > 1 && i < fav.TrackCount-1; i++ {
		if _, err := p.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Play is a no-op: the speaker starts output in Load.
func (p *RemotePlayer) Play() error { return nil }

func (p *RemotePlayer) Pause() error {
	return p.call(p.ctrl.Pause)
}

func (p *RemotePlayer) Resume() error {
	return p.call(p.ctrl.Resume)
}

func (p *RemotePlayer) Stop() error {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
	return p.call(p.ctrl.Stop)
}

func (p *RemotePlayer) Next() (int, error) {
	p.mu.Lock()
	if !p.multi {
		index := p.index
		p.mu.Unlock()
		return index, ErrUnsupported
	}
	if p.index+1 >= p.count {
		index := p.index
		p.mu.Unlock()
		return index, nil
	}
	index := p.index
	p.mu.Unlock()

	if err := p.call(p.ctrl.Next); err != nil {
		return index, err
	}
	p.mu.Lock()
	p.index++
	index = p.index
	p.mu.Unlock()
	return index, nil
}

func (p *RemotePlayer) Previous() (int, error) {
	p.mu.Lock()
	if !p.multi {
		index := p.index
		p.mu.Unlock()
		return index, ErrUnsupported
	}
	if p.index == 0 {
		p.mu.Unlock()
		return 0, nil
	}
	index := p.index
	p.mu.Unlock()

	if err := p.call(p.ctrl.Previous); err != nil {
		return index, err
	}
	p.mu.Lock()
	p.index--
	index = p.index
	p.mu.Unlock()
	return index, nil
}

func (p *RemotePlayer) SetVolume(level float64) error {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	return p.call(func(ctx context.Context) error {
		return p.ctrl.SetVolume(ctx, level)
	})
}

func (p *RemotePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *RemotePlayer) TrackIndex() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || !p.multi {
		return 0, false
	}
	return p.index, true
}

func (p *RemotePlayer) Events() <-chan Event { return p.events }

func (p *RemotePlayer) Close() error {
	p.w.close()
	return nil
}

func (p *RemotePlayer) call(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
	defer cancel()
	return p.w.do(ctx, func() error { return fn(ctx) })
}

// Verify RemotePlayer implements Interface at compile time.
var _ Interface = (*RemotePlayer)(nil)

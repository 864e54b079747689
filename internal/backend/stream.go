package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matteklund/homedeck/internal/engine"
	"github.com/matteklund/homedeck/internal/media"
)

// StreamPlayer plays internet radio streams through the audio engine.
type StreamPlayer struct {
	eng    engine.Interface
	w      *worker
	events chan Event

	mu          sync.Mutex
	cancelWatch chan struct{}
}

// NewStreamPlayer creates the stream backend on top of the given engine.
func NewStreamPlayer(eng engine.Interface) *StreamPlayer {
	return &StreamPlayer{
		eng:    eng,
		w:      newWorker(),
		events: make(chan Event, eventBufferSize),
	}
}

func (p *StreamPlayer) Kind() media.Kind { return media.KindStream }

// Load opens the stream URL and starts output. The slow part (connect,
// first decode) runs on the worker, bounded by ctx.
func (p *StreamPlayer) Load(ctx context.Context, d media.Descriptor, _ int) error {
	st, err := d.Stream()
	if err != nil {
		return err
	}

	p.stopWatch()
	if err := p.w.do(ctx, func() error { return p.eng.PlayStream(ctx, st.URL) }); err != nil {
		return fmt.Errorf("open stream %s: %w", d.ID(), err)
	}

	p.mu.Lock()
	cancel := make(chan struct{})
	p.cancelWatch = cancel
	p.mu.Unlock()
	go p.watch(cancel)
	return nil
}

// Play is a no-op: output starts in Load.
func (p *StreamPlayer) Play() error { return nil }

// Pause is unsupported for live streams: there is no resumable position.
func (p *StreamPlayer) Pause() error {
	if err := p.eng.Pause(); err != nil {
		if errors.Is(err, engine.ErrUnsupported) {
			return ErrUnsupported
		}
		return err
	}
	return nil
}

func (p *StreamPlayer) Resume() error {
	if err := p.eng.Resume(); err != nil {
		if errors.Is(err, engine.ErrUnsupported) {
			return ErrUnsupported
		}
		return err
	}
	return nil
}

func (p *StreamPlayer) Stop() error {
	p.stopWatch()
	p.eng.Stop()
	return nil
}

func (p *StreamPlayer) Next() (int, error)     { return 0, ErrUnsupported }
func (p *StreamPlayer) Previous() (int, error) { return 0, ErrUnsupported }

func (p *StreamPlayer) SetVolume(level float64) error {
	p.eng.SetVolume(level)
	return nil
}

func (p *StreamPlayer) Volume() float64 { return p.eng.Volume() }

// TrackIndex always reports no position: a live stream has none.
func (p *StreamPlayer) TrackIndex() (int, bool) { return 0, false }

func (p *StreamPlayer) Events() <-chan Event { return p.events }

func (p *StreamPlayer) Close() error {
	p.Stop()
	p.w.close()
	return nil
}

// watch reports an unexpected end of the stream as a failure; a live
// stream is not supposed to finish.
func (p *StreamPlayer) watch(cancel chan struct{}) {
	select {
	case <-cancel:
	case <-p.eng.FinishedChan():
		// The finish may have raced the cancellation; a replaced stream
		// ending is not a failure.
		select {
		case <-cancel:
			return
		default:
		}
		sendEvent(p.events, Event{Type: EventFailed, Err: errors.New("stream ended unexpectedly")})
	}
}

func (p *StreamPlayer) stopWatch() {
	p.mu.Lock()
	if p.cancelWatch != nil {
		close(p.cancelWatch)
		p.cancelWatch = nil
	}
	p.mu.Unlock()
}

// Verify StreamPlayer implements Interface at compile time.
var _ Interface = (*StreamPlayer)(nil)

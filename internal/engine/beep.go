package engine

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

const sampleRate = beep.SampleRate(44100)

var speakerOnce sync.Once

// Verify Player implements Interface at compile time.
var _ Interface = (*Player)(nil)

// Player is the beep-based engine implementation.
type Player struct {
	mu sync.Mutex

	state    State
	live     bool // current source is a live stream (no pause, no position)
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	streamer beep.StreamCloser
	format   beep.Format
	closer   io.Closer // underlying file or response body
	level    float64
	finished chan struct{}
	done     chan struct{}
}

// NewPlayer creates a beep engine with the given initial volume level.
func NewPlayer(level float64) (*Player, error) {
	var initErr error
	speakerOnce.Do(func() {
		initErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return nil, fmt.Errorf("init speaker: %w", initErr)
	}
	return &Player{
		state:    Stopped,
		level:    clampLevel(level),
		finished: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// PlayFile starts playback of a local audio file.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mp3" && ext != ".flac" {
		return fmt.Errorf("unsupported format: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	return p.start(ctx, streamer, format, f, false)
}

// PlayStream starts playback of an mp3 network stream.
func (p *Player) PlayStream(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream %s: status %s", url, resp.Status)
	}

	streamer, format, err := mp3.Decode(resp.Body)
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("decode stream: %w", err)
	}

	return p.start(ctx, streamer, format, resp.Body, true)
}

// start replaces the current source with the new one in a single critical
// section. A cancellation that landed while the source was being acquired
// aborts here, before the current source is disturbed.
func (p *Player) start(ctx context.Context, streamer beep.StreamCloser, format beep.Format, closer io.Closer, live bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		streamer.Close()
		closer.Close()
		return err
	}
	p.stopLocked()

	// Drop a finish signal left over from a source that ended just as it
	// was being replaced.
	select {
	case <-p.finished:
	default:
	}

	resampled := beep.Resample(4, format.SampleRate, sampleRate, streamer)
	p.ctrl = &beep.Ctrl{Streamer: resampled}
	p.volume = &effects.Volume{
		Streamer: p.ctrl,
		Base:     2,
		Volume:   levelToGain(p.level),
		Silent:   p.level == 0,
	}
	p.streamer = streamer
	p.format = format
	p.closer = closer
	p.live = live
	p.state = Playing
	done := make(chan struct{})
	p.done = done

	speaker.Play(beep.Seq(p.volume, beep.Callback(func() {
		select {
		case <-done:
			// Stopped explicitly, not a natural finish.
		default:
			select {
			case p.finished <- struct{}{}:
			default:
			}
		}
	})))

	return nil
}

// Stop stops playback and releases the current source.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.state == Stopped {
		return
	}

	select {
	case <-p.done:
	default:
		close(p.done)
	}

	speaker.Clear()

	if p.streamer != nil {
		p.streamer.Close()
		p.streamer = nil
	}
	if p.closer != nil {
		p.closer.Close()
		p.closer = nil
	}
	p.ctrl = nil
	p.volume = nil
	p.live = false
	p.state = Stopped
}

// Pause pauses playback. Live streams have no resumable position and
// return ErrUnsupported.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live {
		return ErrUnsupported
	}
	if p.state != Playing || p.ctrl == nil {
		return nil
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
	p.state = Paused
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live {
		return ErrUnsupported
	}
	if p.state != Paused || p.ctrl == nil {
		return nil
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	p.state = Playing
	return nil
}

// SetVolume sets the output level, clamped to [0.0, 1.0].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = clampLevel(v)
	if p.volume == nil {
		return
	}
	speaker.Lock()
	p.volume.Volume = levelToGain(p.level)
	p.volume.Silent = p.level == 0
	speaker.Unlock()
}

// Volume returns the current output level.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// State returns the engine state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the playback position of the current source, or
// NoPosition for live streams.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live {
		return NoPosition
	}
	if p.streamer == nil {
		return 0
	}
	seeker, ok := p.streamer.(beep.StreamSeeker)
	if !ok {
		return 0
	}
	return p.format.SampleRate.D(seeker.Position())
}

// FinishedChan delivers a signal when a source plays to its natural end.
func (p *Player) FinishedChan() <-chan struct{} {
	return p.finished
}

// Close stops playback and releases engine resources.
func (p *Player) Close() error {
	p.Stop()
	return nil
}

func clampLevel(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// levelToGain maps a linear [0,1] level onto the exponential gain scale
// beep's Volume effect expects. Level 1.0 is unity gain.
func levelToGain(level float64) float64 {
	if level <= 0 {
		return -10 // silenced anyway via Silent
	}
	return math.Log2(level)
}

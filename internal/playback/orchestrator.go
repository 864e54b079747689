// Package playback owns the single "now playing" state shared by every
// control surface. The orchestrator serializes commands from concurrent
// callers, dispatches them to the backend matching the target media's kind,
// and republishes consistent status snapshots.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/matteklund/homedeck/internal/backend"
	"github.com/matteklund/homedeck/internal/catalog"
	"github.com/matteklund/homedeck/internal/media"
)

// DefaultLoadTimeout bounds a backend load before the hub gives up and
// reports an error instead of hanging.
const DefaultLoadTimeout = 10 * time.Second

// Options configure orchestrator behavior.
type Options struct {
	// LoadTimeout bounds backend Load calls. Zero means DefaultLoadTimeout.
	LoadTimeout time.Duration
	// PauseFallback controls what Pause does when the active backend cannot
	// pause (live streams): false surfaces the unsupported error untouched,
	// true stops playback, remembers the media id, and reports paused so a
	// later Resume restarts it.
	PauseFallback bool
	// InitialVolume is the starting output level. Clamped to [0, 1].
	InitialVolume float64
}

type cmdKind int

const (
	cmdPlay cmdKind = iota
	cmdStop
	cmdPause
	cmdResume
	cmdNext
	cmdPrevious
	cmdVolume
)

type command struct {
	kind      cmdKind
	id        string
	trackHint int
	level     float64
	reply     chan error
}

type taggedEvent struct {
	src backend.Interface
	e   backend.Event
}

type loadResult struct {
	seq     uint64
	adapter backend.Interface
	desc    media.Descriptor
	err     error
}

type inflightLoad struct {
	reply chan error
}

// Orchestrator is the playback state machine. All mutation goes through its
// run loop; at most one playback-mutating command executes at any instant,
// and a queued-but-unstarted command is superseded by a newer submission
// (newest-wins, depth 1).
type Orchestrator struct {
	log      zerolog.Logger
	cat      *catalog.Catalog
	backends map[media.Kind]backend.Interface

	loadTimeout   time.Duration
	pauseFallback bool

	state *stateCell

	cmdMu    chan struct{} // 1-slot semaphore guarding pending/closed
	pending  *command
	closed   bool
	cmdReady chan struct{}

	loadDone chan loadResult
	events   chan taggedEvent
	done     chan struct{}

	// run-loop-owned fields, never touched outside run()
	seq        uint64
	active     backend.Interface
	activeDesc media.Descriptor
	loadCancel context.CancelFunc
	inflight   *inflightLoad
	loading    bool     // a load goroutine is out; its result has not arrived yet
	deferred   *command // play waiting for a canceled load to unwind
	resumeID   string
	resumeHint int
}

// New creates the orchestrator over the given catalog and backends and
// starts its run loop.
func New(cat *catalog.Catalog, backends []backend.Interface, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	byKind := make(map[media.Kind]backend.Interface, len(backends))
	for _, b := range backends {
		byKind[b.Kind()] = b
	}

	o := &Orchestrator{
		log:           log,
		cat:           cat,
		backends:      byKind,
		loadTimeout:   opts.LoadTimeout,
		pauseFallback: opts.PauseFallback,
		state: newStateCell(Snapshot{
			Status:        StatusStopped,
			TrackPosition: NoTrack,
			Volume:        clampVolume(opts.InitialVolume),
		}),
		cmdMu:    make(chan struct{}, 1),
		cmdReady: make(chan struct{}, 1),
		loadDone: make(chan loadResult),
		events:   make(chan taggedEvent, 32),
		done:     make(chan struct{}),
	}

	for _, b := range backends {
		go o.forward(b)
	}
	go o.run()
	return o
}

// forward tags one backend's events with their source and feeds them into
// the run loop.
func (o *Orchestrator) forward(b backend.Interface) {
	for {
		select {
		case <-o.done:
			return
		case e := <-b.Events():
			select {
			case o.events <- taggedEvent{src: b, e: e}:
			case <-o.done:
				return
			}
		}
	}
}

// PlayMedia starts playback of the catalog entry with the given id,
// replacing whatever is currently playing. trackHint is the zero-based
// starting track for multi-track media; pass 0 for the first track.
func (o *Orchestrator) PlayMedia(id string, trackHint int) error {
	return o.submit(&command{kind: cmdPlay, id: id, trackHint: trackHint})
}

// Stop stops playback and clears the active media.
func (o *Orchestrator) Stop() error {
	return o.submit(&command{kind: cmdStop})
}

// Pause pauses playback. See Options.PauseFallback for behavior on media
// that cannot pause.
func (o *Orchestrator) Pause() error {
	return o.submit(&command{kind: cmdPause})
}

// Resume resumes paused playback. Only valid from the paused state.
func (o *Orchestrator) Resume() error {
	return o.submit(&command{kind: cmdResume})
}

// NextTrack skips to the next track of the active media. At the last track
// it acks without changing position.
func (o *Orchestrator) NextTrack() error {
	return o.submit(&command{kind: cmdNext})
}

// PreviousTrack moves to the previous track of the active media.
func (o *Orchestrator) PreviousTrack() error {
	return o.submit(&command{kind: cmdPrevious})
}

// SetVolume sets the output level, clamped to [0.0, 1.0].
func (o *Orchestrator) SetVolume(level float64) error {
	return o.submit(&command{kind: cmdVolume, level: level})
}

// Status returns a copy of the current playback state. It never blocks on
// an in-flight command.
func (o *Orchestrator) Status() Snapshot {
	return o.state.load()
}

// Subscribe creates a new event subscription.
func (o *Orchestrator) Subscribe() *Subscription {
	return o.state.subscribe()
}

// Unsubscribe removes a subscription and closes its Done channel.
func (o *Orchestrator) Unsubscribe(sub *Subscription) {
	o.state.unsubscribe(sub)
}

// Close shuts the orchestrator down, stopping active playback.
func (o *Orchestrator) Close() error {
	o.cmdMu <- struct{}{}
	if o.closed {
		<-o.cmdMu
		return nil
	}
	o.closed = true
	if o.pending != nil {
		o.pending.reply <- ErrClosed
		o.pending = nil
	}
	<-o.cmdMu

	close(o.done)
	for _, b := range o.backends {
		if err := b.Stop(); err != nil {
			o.log.Warn().Err(err).Msg("stop backend on close")
		}
		if err := b.Close(); err != nil {
			o.log.Warn().Err(err).Msg("close backend")
		}
	}
	o.state.closeSubs()
	return nil
}

func (o *Orchestrator) submit(c *command) error {
	c.reply = make(chan error, 1)

	o.cmdMu <- struct{}{}
	if o.closed {
		<-o.cmdMu
		return ErrClosed
	}
	if o.pending != nil {
		// Newest wins: the queued-but-unstarted command is superseded.
		o.pending.reply <- ErrSuperseded
	}
	o.pending = c
	<-o.cmdMu

	select {
	case o.cmdReady <- struct{}{}:
	default:
	}

	select {
	case err := <-c.reply:
		return err
	case <-o.done:
		return ErrClosed
	}
}

func (o *Orchestrator) run() {
	for {
		select {
		case <-o.done:
			o.cancelLoad()
			return
		case <-o.cmdReady:
			o.cmdMu <- struct{}{}
			c := o.pending
			o.pending = nil
			<-o.cmdMu
			if c != nil {
				o.execute(c)
			}
		case r := <-o.loadDone:
			o.finishLoad(r)
		case te := <-o.events:
			o.handleBackendEvent(te)
		}
	}
}

func (o *Orchestrator) execute(c *command) {
	switch c.kind {
	case cmdPlay:
		o.startPlay(c)
	case cmdStop:
		o.doStop()
		c.reply <- nil
	case cmdPause:
		c.reply <- o.doPause()
	case cmdResume:
		o.doResume(c)
	case cmdNext:
		c.reply <- o.doSkip(+1)
	case cmdPrevious:
		c.reply <- o.doSkip(-1)
	case cmdVolume:
		c.reply <- o.doVolume(c.level)
	}
}

// startPlay validates the target and launches the load off the run loop so
// status reads and newer commands keep flowing while a backend acquires the
// source. While an earlier load is still unwinding the newest play is held
// back, so at most one load goroutine ever touches the engine: the stale
// one is silenced before its replacement starts.
func (o *Orchestrator) startPlay(c *command) {
	if o.loading {
		o.supersedeLoad()
		if o.deferred != nil {
			o.deferred.reply <- ErrSuperseded
		}
		o.deferred = c
		return
	}

	d, ok := o.cat.Get(c.id)
	if !ok {
		// Request-validation failure: no state transition.
		c.reply <- fmt.Errorf("%w: %q", ErrNotFound, c.id)
		return
	}
	adapter, ok := o.backends[d.Kind()]
	if !ok {
		le := &LoadError{MediaID: c.id, Cause: fmt.Errorf("no backend configured for kind %s", d.Kind())}
		o.commitError(c.id, d.Kind(), le.Error())
		c.reply <- le
		return
	}

	o.stopActive()
	o.resumeID = ""

	o.seq++
	seq := o.seq
	ctx, cancel := context.WithTimeout(context.Background(), o.loadTimeout)
	o.loadCancel = cancel
	o.inflight = &inflightLoad{reply: c.reply}
	o.loading = true

	level := o.state.load().Volume
	o.state.commit(func(s *Snapshot) {
		s.Status = StatusLoading
		s.MediaID = d.ID()
		s.MediaKind = d.Kind()
		s.Track = nil
		s.TrackPosition = NoTrack
		s.ErrorMessage = ""
	})
	o.log.Info().Str("media", d.ID()).Str("kind", string(d.Kind())).Msg("loading media")

	go func() {
		err := adapter.Load(ctx, d, c.trackHint)
		if err == nil {
			err = adapter.Play()
		}
		if err == nil {
			if verr := adapter.SetVolume(level); verr != nil {
				o.log.Warn().Err(verr).Msg("apply volume after load")
			}
		}
		cancel()
		select {
		case o.loadDone <- loadResult{seq: seq, adapter: adapter, desc: d, err: err}:
		case <-o.done:
		}
	}()
}

// finishLoad commits a completed load, but only if its sequence number is
// still current: a completion that lands after a newer command started is
// discarded instead of overwriting the newer state.
func (o *Orchestrator) finishLoad(r loadResult) {
	o.loading = false
	if r.seq != o.seq {
		// Superseded or stopped while in flight. Its submitter was already
		// answered; silence whatever the canceled call may have started
		// before the cancellation took hold, then release the play held
		// behind it. No newer load has touched the engine yet, so the Stop
		// cannot hit anyone else's audio.
		if err := r.adapter.Stop(); err != nil {
			o.log.Warn().Err(err).Msg("stop superseded backend")
		}
		if c := o.deferred; c != nil {
			o.deferred = nil
			o.startPlay(c)
			if !o.loading && o.state.load().Status == StatusLoading {
				// The held play failed validation, leaving the canceled
				// load's snapshot behind with nothing running.
				o.state.commit(func(s *Snapshot) {
					s.Status = StatusStopped
					s.MediaID = ""
					s.MediaKind = ""
					s.Track = nil
					s.TrackPosition = NoTrack
					s.ErrorMessage = ""
				})
			}
		}
		return
	}

	reply := o.inflight.reply
	o.inflight = nil
	o.loadCancel = nil

	if r.err != nil {
		cause := r.err
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = fmt.Errorf("load timed out after %s", o.loadTimeout)
		}
		if err := r.adapter.Stop(); err != nil {
			o.log.Warn().Err(err).Msg("stop backend after failed load")
		}
		le := &LoadError{MediaID: r.desc.ID(), Cause: cause}
		o.commitError(r.desc.ID(), r.desc.Kind(), le.Error())
		o.log.Warn().Str("media", r.desc.ID()).Err(cause).Msg("load failed")
		reply <- le
		return
	}

	o.active = r.adapter
	o.activeDesc = r.desc
	track, pos := o.currentTrack()
	o.state.commit(func(s *Snapshot) {
		s.Status = StatusPlaying
		s.MediaID = r.desc.ID()
		s.MediaKind = r.desc.Kind()
		s.Track = track
		s.TrackPosition = pos
		s.ErrorMessage = ""
	})
	o.log.Info().Str("media", r.desc.ID()).Msg("playing")
	reply <- nil
}

func (o *Orchestrator) doStop() {
	o.supersedeLoad()
	if o.deferred != nil {
		o.deferred.reply <- ErrSuperseded
		o.deferred = nil
	}
	o.seq++ // invalidate any completion still in flight
	o.stopActive()
	o.resumeID = ""
	o.state.commit(func(s *Snapshot) {
		s.Status = StatusStopped
		s.MediaID = ""
		s.MediaKind = ""
		s.Track = nil
		s.TrackPosition = NoTrack
		s.ErrorMessage = ""
	})
	o.log.Info().Msg("stopped")
}

func (o *Orchestrator) doPause() error {
	snap := o.state.load()
	if snap.Status != StatusPlaying || o.active == nil {
		return ErrInvalidState
	}

	err := o.active.Pause()
	switch {
	case err == nil:
		o.state.commit(func(s *Snapshot) { s.Status = StatusPaused })
		return nil
	case errors.Is(err, backend.ErrUnsupported):
		if !o.pauseFallback {
			return fmt.Errorf("%w: pause", ErrUnsupported)
		}
		// Fallback: stop the source but present it as paused, so resume
		// restarts the same media from the top.
		o.stopActive()
		o.resumeID = snap.MediaID
		o.resumeHint = 0
		if snap.TrackPosition != NoTrack {
			o.resumeHint = snap.TrackPosition
		}
		o.state.commit(func(s *Snapshot) { s.Status = StatusPaused })
		o.log.Info().Str("media", snap.MediaID).Msg("pause fallback: stopped with restart pending")
		return nil
	default:
		o.stopActive()
		o.commitError(snap.MediaID, snap.MediaKind, err.Error())
		return &LoadError{MediaID: snap.MediaID, Cause: err}
	}
}

func (o *Orchestrator) doResume(c *command) {
	snap := o.state.load()
	if snap.Status != StatusPaused {
		c.reply <- ErrInvalidState
		return
	}

	if o.resumeID != "" {
		// Paused via the stop fallback: restart the remembered media.
		o.startPlay(&command{kind: cmdPlay, id: o.resumeID, trackHint: o.resumeHint, reply: c.reply})
		return
	}
	if o.active == nil {
		c.reply <- ErrInvalidState
		return
	}

	if err := o.active.Resume(); err != nil {
		o.stopActive()
		o.commitError(snap.MediaID, snap.MediaKind, err.Error())
		c.reply <- &LoadError{MediaID: snap.MediaID, Cause: err}
		return
	}
	o.state.commit(func(s *Snapshot) { s.Status = StatusPlaying })
	c.reply <- nil
}

func (o *Orchestrator) doSkip(delta int) error {
	snap := o.state.load()
	if !snap.Status.IsActive() || o.active == nil {
		return ErrInvalidState
	}
	if !o.activeDesc.HasTracks() {
		return ErrInvalidState
	}

	var err error
	if delta > 0 {
		_, err = o.active.Next()
	} else {
		_, err = o.active.Previous()
	}
	switch {
	case errors.Is(err, backend.ErrUnsupported):
		return ErrInvalidState
	case err != nil:
		o.stopActive()
		o.commitError(snap.MediaID, snap.MediaKind, err.Error())
		return &LoadError{MediaID: snap.MediaID, Cause: err}
	}

	track, pos := o.currentTrack()
	o.state.commit(func(s *Snapshot) {
		s.Track = track
		s.TrackPosition = pos
	})
	return nil
}

func (o *Orchestrator) doVolume(level float64) error {
	level = clampVolume(level)
	o.state.commit(func(s *Snapshot) { s.Volume = level })
	if o.active != nil {
		if err := o.active.SetVolume(level); err != nil {
			o.log.Warn().Err(err).Msg("set backend volume")
		}
	}
	return nil
}

// handleBackendEvent folds asynchronous adapter notifications (album
// auto-advance, natural finish, runtime failure) into the state, discarding
// events from backends that are no longer active.
func (o *Orchestrator) handleBackendEvent(te taggedEvent) {
	if te.src != o.active {
		return
	}

	switch te.e.Type {
	case backend.EventTrackChanged:
		track, pos := o.currentTrack()
		o.state.commit(func(s *Snapshot) {
			s.Track = track
			s.TrackPosition = pos
		})
	case backend.EventFinished:
		o.active = nil
		o.activeDesc = media.Descriptor{}
		o.state.commit(func(s *Snapshot) {
			s.Status = StatusStopped
			s.MediaID = ""
			s.MediaKind = ""
			s.Track = nil
			s.TrackPosition = NoTrack
			s.ErrorMessage = ""
		})
		o.log.Info().Msg("playback finished")
	case backend.EventFailed:
		snap := o.state.load()
		if err := te.src.Stop(); err != nil {
			o.log.Warn().Err(err).Msg("stop backend after failure")
		}
		o.active = nil
		o.activeDesc = media.Descriptor{}
		msg := "playback failed"
		if te.e.Err != nil {
			msg = te.e.Err.Error()
		}
		o.commitError(snap.MediaID, snap.MediaKind, msg)
		o.log.Warn().Str("media", snap.MediaID).Str("error", msg).Msg("backend failure")
	}
}

// currentTrack resolves the active backend's track index against the active
// descriptor's track list.
func (o *Orchestrator) currentTrack() (*media.Track, int) {
	if o.active == nil {
		return nil, NoTrack
	}
	index, ok := o.active.TrackIndex()
	if !ok {
		return nil, NoTrack
	}
	if album, err := o.activeDesc.Album(); err == nil {
		if t, ok := album.TrackAt(index); ok {
			return &t, index
		}
	}
	// Multi-track favorites expose a position but no track metadata.
	return nil, index
}

func (o *Orchestrator) commitError(mediaID string, kind media.Kind, msg string) {
	o.state.commit(func(s *Snapshot) {
		s.Status = StatusError
		s.MediaID = mediaID
		s.MediaKind = kind
		s.Track = nil
		s.TrackPosition = NoTrack
		s.ErrorMessage = msg
	})
}

// supersedeLoad cancels the in-flight load, if any, answering its submitter.
// The load goroutine keeps running until its result arrives; bumping seq
// makes that result land stale.
func (o *Orchestrator) supersedeLoad() {
	o.cancelLoad()
	if o.inflight != nil {
		o.inflight.reply <- ErrSuperseded
		o.inflight = nil
		o.seq++
	}
}

func (o *Orchestrator) cancelLoad() {
	if o.loadCancel != nil {
		o.loadCancel()
		o.loadCancel = nil
	}
}

func (o *Orchestrator) stopActive() {
	if o.active == nil {
		return
	}
	if err := o.active.Stop(); err != nil {
		o.log.Warn().Err(err).Msg("stop active backend")
	}
	o.active = nil
	o.activeDesc = media.Descriptor{}
}

func clampVolume(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

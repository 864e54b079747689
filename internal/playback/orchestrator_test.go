package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/matteklund/homedeck/internal/backend"
	"github.com/matteklund/homedeck/internal/catalog"
	"github.com/matteklund/homedeck/internal/engine"
	"github.com/matteklund/homedeck/internal/media"
)

func newTestHub(t *testing.T, opts Options, backends ...backend.Interface) (*Orchestrator, *catalog.Catalog) {
	t.Helper()
	if opts.InitialVolume == 0 {
		opts.InitialVolume = 0.7
	}
	cat := catalog.New()
	o := New(cat, backends, opts, zerolog.Nop())
	t.Cleanup(func() { _ = o.Close() })
	return o, cat
}

func testStream(id string) media.Descriptor {
	return media.NewStream(id, id, "http://example.com/"+id)
}

func testAlbum(id string, trackCount int) media.Descriptor {
	tracks := make([]media.Track, trackCount)
	for i := range tracks {
		tracks[i] = media.Track{Number: i + 1, Title: "Track", Source: "/music/t.mp3"}
	}
	return media.NewAlbum(id, id, tracks)
}

func waitStatus(t *testing.T, o *Orchestrator, want Status) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := o.Status()
		if snap.Status == want {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("status never reached %s, last %s", want, snap.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPlayMediaUnknownID(t *testing.T) {
	o, _ := newTestHub(t, Options{}, backend.NewMock(media.KindStream))

	err := o.PlayMedia("nope", 0)
	require.ErrorIs(t, err, ErrNotFound)

	snap := o.Status()
	require.Equal(t, StatusStopped, snap.Status)
	require.Empty(t, snap.MediaID)
}

func TestPlayStream(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))

	snap := o.Status()
	require.Equal(t, StatusPlaying, snap.Status)
	require.Equal(t, "p1", snap.MediaID)
	require.Equal(t, media.KindStream, snap.MediaKind)
	require.Nil(t, snap.Track)
	require.Equal(t, NoTrack, snap.TrackPosition)
	require.Equal(t, []string{"p1"}, mock.LoadCalls())
}

func TestPlayAlbumReportsTrack(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 1))

	snap := o.Status()
	require.Equal(t, StatusPlaying, snap.Status)
	require.Equal(t, 1, snap.TrackPosition)
	require.NotNil(t, snap.Track)
	require.Equal(t, 2, snap.Track.Number)
}

func TestPlayReplacesCurrent(t *testing.T) {
	stream := backend.NewMock(media.KindStream)
	album := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, stream, album)
	cat.Upsert(testStream("p1"))
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("p1", 0))
	require.NoError(t, o.PlayMedia("abbeyroad", 0))

	snap := o.Status()
	require.Equal(t, StatusPlaying, snap.Status)
	require.Equal(t, "abbeyroad", snap.MediaID)
	require.Equal(t, 1, stream.StopCalls())
}

func TestPauseResumePreservesMediaAndTrack(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 2))
	require.NoError(t, o.Pause())

	snap := o.Status()
	require.Equal(t, StatusPaused, snap.Status)
	require.Equal(t, "abbeyroad", snap.MediaID)
	require.Equal(t, 2, snap.TrackPosition)

	require.NoError(t, o.Resume())
	snap = o.Status()
	require.Equal(t, StatusPlaying, snap.Status)
	require.Equal(t, "abbeyroad", snap.MediaID)
	require.Equal(t, 2, snap.TrackPosition)
	require.Equal(t, []string{"abbeyroad"}, mock.LoadCalls(), "resume must not reload")
}

func TestPauseInvalidWhenStopped(t *testing.T) {
	o, _ := newTestHub(t, Options{}, backend.NewMock(media.KindStream))
	require.ErrorIs(t, o.Pause(), ErrInvalidState)
	require.ErrorIs(t, o.Resume(), ErrInvalidState)
}

func TestPauseUnsupportedWithoutFallback(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	mock.SetPauseError(backend.ErrUnsupported)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))
	require.ErrorIs(t, o.Pause(), ErrUnsupported)

	// Rejected without side effects.
	require.Equal(t, StatusPlaying, o.Status().Status)
	require.Zero(t, mock.StopCalls())
}

func TestPauseFallbackStopsAndResumeRestarts(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	mock.SetPauseError(backend.ErrUnsupported)
	o, cat := newTestHub(t, Options{PauseFallback: true}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))
	require.NoError(t, o.Pause())

	snap := o.Status()
	require.Equal(t, StatusPaused, snap.Status)
	require.Equal(t, "p1", snap.MediaID)
	require.Equal(t, 1, mock.StopCalls())

	require.NoError(t, o.Resume())
	snap = o.Status()
	require.Equal(t, StatusPlaying, snap.Status)
	require.Equal(t, "p1", snap.MediaID)
	require.Equal(t, []string{"p1", "p1"}, mock.LoadCalls())
}

func TestNextAtLastTrackIsNoOp(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 2))

	require.NoError(t, o.PlayMedia("abbeyroad", 1))
	require.NoError(t, o.NextTrack())

	require.Equal(t, 1, o.Status().TrackPosition)
}

func TestPreviousAtFirstTrackIsNoOp(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 2))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))
	require.NoError(t, o.PreviousTrack())

	require.Equal(t, 0, o.Status().TrackPosition)
}

func TestTrackNavigation(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))
	require.NoError(t, o.NextTrack())
	require.Equal(t, 1, o.Status().TrackPosition)
	require.NoError(t, o.NextTrack())
	require.Equal(t, 2, o.Status().TrackPosition)
	require.NoError(t, o.PreviousTrack())
	require.Equal(t, 1, o.Status().TrackPosition)
}

func TestSkipOnStreamInvalidState(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))
	require.ErrorIs(t, o.NextTrack(), ErrInvalidState)
	require.ErrorIs(t, o.PreviousTrack(), ErrInvalidState)
}

func TestSkipWhileStoppedInvalidState(t *testing.T) {
	o, _ := newTestHub(t, Options{}, backend.NewMock(media.KindLocalAlbum))
	require.ErrorIs(t, o.NextTrack(), ErrInvalidState)
}

func TestInFlightLoadSuperseded(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	mock.LoadBlock = make(chan struct{})
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("a"))
	cat.Upsert(testStream("b"))

	firstErr := make(chan error, 1)
	go func() { firstErr <- o.PlayMedia("a", 0) }()
	waitStatus(t, o, StatusLoading)

	secondErr := make(chan error, 1)
	go func() { secondErr <- o.PlayMedia("b", 0) }()

	// The first submitter is answered as soon as the newer play takes over.
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded play never returned")
	}

	// The second load starts only once the canceled one has unwound and
	// been silenced.
	waitFor(t, func() bool { return mock.StopCalls() == 1 })

	// Release the second load and let it commit.
	mock.LoadBlock <- struct{}{}
	select {
	case err := <-secondErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second play never returned")
	}
	require.Equal(t, "b", o.Status().MediaID)
}

func TestSupersededLoadNeverReachesEngine(t *testing.T) {
	eng := engine.NewMock()
	eng.StreamBlock = make(chan struct{})
	stream := backend.NewStreamPlayer(eng)
	album := backend.NewAlbumPlayer(eng)
	o, cat := newTestHub(t, Options{}, stream, album)
	cat.Upsert(testStream("p1"))
	cat.Upsert(testAlbum("abbeyroad", 2))

	firstErr := make(chan error, 1)
	go func() { firstErr <- o.PlayMedia("p1", 0) }()
	waitStatus(t, o, StatusLoading)

	require.NoError(t, o.PlayMedia("abbeyroad", 0))
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded play never returned")
	}

	// The album owns the shared engine; the canceled stream load aborted
	// without its source ever being committed.
	snap := o.Status()
	require.Equal(t, StatusPlaying, snap.Status)
	require.Equal(t, "abbeyroad", snap.MediaID)
	require.Empty(t, eng.StreamCalls())
	require.Equal(t, []string{"/music/t.mp3"}, eng.FileCalls())
	require.Equal(t, engine.Playing, eng.State())
}

func TestLoadTimeoutEntersErrorState(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	mock.LoadBlock = make(chan struct{})
	o, cat := newTestHub(t, Options{LoadTimeout: 30 * time.Millisecond}, mock)
	cat.Upsert(testStream("p1"))

	err := o.PlayMedia("p1", 0)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "p1", le.MediaID)

	snap := o.Status()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "p1", snap.MediaID)
	require.NotEmpty(t, snap.ErrorMessage)

	// Error state recovers on the next play.
	mock.LoadBlock = nil
	require.NoError(t, o.PlayMedia("p1", 0))
	require.Equal(t, StatusPlaying, o.Status().Status)
	require.Empty(t, o.Status().ErrorMessage)
}

func TestLoadFailureEntersErrorState(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	mock.SetLoadError(errors.New("no such file"))
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	err := o.PlayMedia("abbeyroad", 0)
	var le *LoadError
	require.ErrorAs(t, err, &le)

	snap := o.Status()
	require.Equal(t, StatusError, snap.Status)
	require.Contains(t, snap.ErrorMessage, "no such file")
}

func TestAutoAdvanceUpdatesTrack(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))

	mock.SetTrackIndex(1)
	mock.Emit(backend.Event{Type: backend.EventTrackChanged, TrackIndex: 1})

	deadline := time.After(2 * time.Second)
	for o.Status().TrackPosition != 1 {
		select {
		case <-deadline:
			t.Fatalf("track position stuck at %d", o.Status().TrackPosition)
		case <-time.After(5 * time.Millisecond):
		}
	}
	snap := o.Status()
	require.NotNil(t, snap.Track)
	require.Equal(t, 2, snap.Track.Number)
}

func TestFinishedEventStops(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 1))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))
	mock.Emit(backend.Event{Type: backend.EventFinished})

	snap := waitStatus(t, o, StatusStopped)
	require.Empty(t, snap.MediaID)
	require.Equal(t, NoTrack, snap.TrackPosition)
}

func TestFailedEventEntersErrorState(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))
	mock.Emit(backend.Event{Type: backend.EventFailed, Err: errors.New("stream ended unexpectedly")})

	snap := waitStatus(t, o, StatusError)
	require.Equal(t, "p1", snap.MediaID)
	require.Contains(t, snap.ErrorMessage, "stream ended unexpectedly")
}

func TestEventsFromInactiveBackendIgnored(t *testing.T) {
	stream := backend.NewMock(media.KindStream)
	album := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, stream, album)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))
	album.Emit(backend.Event{Type: backend.EventFinished})

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StatusPlaying, o.Status().Status)
	require.Equal(t, "p1", o.Status().MediaID)
}

func TestSetVolumeClampsAndApplies(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.PlayMedia("p1", 0))
	require.NoError(t, o.SetVolume(1.5))
	require.Equal(t, 1.0, o.Status().Volume)
	require.Equal(t, 1.0, mock.Volume())

	require.NoError(t, o.SetVolume(-0.2))
	require.Equal(t, 0.0, o.Status().Volume)
}

func TestSetVolumeWhileStoppedPersists(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	require.NoError(t, o.SetVolume(0.25))
	require.NoError(t, o.PlayMedia("p1", 0))
	// The stored level is applied once the load commits.
	require.Equal(t, 0.25, mock.Volume())
}

func TestStopClearsState(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))
	require.NoError(t, o.Stop())

	snap := o.Status()
	require.Equal(t, StatusStopped, snap.Status)
	require.Empty(t, snap.MediaID)
	require.Nil(t, snap.Track)
	require.Equal(t, 1, mock.StopCalls())

	// Stop while stopped still acks.
	require.NoError(t, o.Stop())
}

func TestSubscribePublishesTransitions(t *testing.T) {
	mock := backend.NewMock(media.KindStream)
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testStream("p1"))

	sub := o.Subscribe()
	defer o.Unsubscribe(sub)

	require.NoError(t, o.PlayMedia("p1", 0))

	first := recvState(t, sub)
	require.Equal(t, StatusStopped, first.Previous)
	require.Equal(t, StatusLoading, first.Current)

	second := recvState(t, sub)
	require.Equal(t, StatusLoading, second.Previous)
	require.Equal(t, StatusPlaying, second.Current)
}

func TestSubscribeVolumeEvents(t *testing.T) {
	o, _ := newTestHub(t, Options{}, backend.NewMock(media.KindStream))

	sub := o.Subscribe()
	defer o.Unsubscribe(sub)

	require.NoError(t, o.SetVolume(0.4))
	select {
	case e := <-sub.VolumeChanged:
		require.Equal(t, 0.4, e.Volume)
	case <-time.After(2 * time.Second):
		t.Fatal("no volume event")
	}
}

func TestUnsubscribeClosesDone(t *testing.T) {
	o, _ := newTestHub(t, Options{}, backend.NewMock(media.KindStream))

	sub := o.Subscribe()
	o.Unsubscribe(sub)

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
}

func TestCloseRejectsCommands(t *testing.T) {
	cat := catalog.New()
	o := New(cat, []backend.Interface{backend.NewMock(media.KindStream)}, Options{}, zerolog.Nop())
	require.NoError(t, o.Close())
	require.ErrorIs(t, o.PlayMedia("p1", 0), ErrClosed)
	require.ErrorIs(t, o.Stop(), ErrClosed)
	// Close is idempotent.
	require.NoError(t, o.Close())
}

func TestPauseFailureStopsBackend(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	mock.SetPauseError(errors.New("device detached"))
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))

	err := o.Pause()
	var le *LoadError
	require.ErrorAs(t, err, &le)

	snap := o.Status()
	require.Equal(t, StatusError, snap.Status)
	require.Contains(t, snap.ErrorMessage, "device detached")
	require.Equal(t, 1, mock.StopCalls())
	// The backend was released along with the error transition.
	require.ErrorIs(t, o.Pause(), ErrInvalidState)
}

func TestSkipFailureStopsBackend(t *testing.T) {
	mock := backend.NewMock(media.KindLocalAlbum)
	mock.SetSkipError(errors.New("seek failed"))
	o, cat := newTestHub(t, Options{}, mock)
	cat.Upsert(testAlbum("abbeyroad", 3))

	require.NoError(t, o.PlayMedia("abbeyroad", 0))

	err := o.NextTrack()
	var le *LoadError
	require.ErrorAs(t, err, &le)

	snap := o.Status()
	require.Equal(t, StatusError, snap.Status)
	require.Contains(t, snap.ErrorMessage, "seek failed")
	require.Equal(t, 1, mock.StopCalls())
	require.ErrorIs(t, o.NextTrack(), ErrInvalidState)
}

func TestCloseClosesBackends(t *testing.T) {
	stream := backend.NewMock(media.KindStream)
	album := backend.NewMock(media.KindLocalAlbum)
	cat := catalog.New()
	o := New(cat, []backend.Interface{stream, album}, Options{}, zerolog.Nop())

	require.NoError(t, o.Close())

	require.Equal(t, 1, stream.CloseCalls())
	require.Equal(t, 1, album.CloseCalls())
}

func recvState(t *testing.T, sub *Subscription) StateChange {
	t.Helper()
	select {
	case e := <-sub.StateChanged:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no state event")
		return StateChange{}
	}
}

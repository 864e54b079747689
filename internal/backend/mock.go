package backend

import (
	"context"
	"sync"

	"github.com/matteklund/homedeck/internal/media"
)

// Mock is a test double for a backend adapter.
type Mock struct {
	mu sync.Mutex

	kind       media.Kind
	loadCalls  []string
	stopCalls  int
	pauseCalls int
	closeCalls int
	trackCount int
	index      int
	loaded     bool
	level      float64

	loadErr  error
	pauseErr error
	playErr  error
	skipErr  error

	// LoadBlock, when set, is received from inside Load so tests can hold a
	// load in flight until they choose to release it.
	LoadBlock chan struct{}

	events chan Event
}

// NewMock creates a mock adapter for the given kind.
func NewMock(kind media.Kind) *Mock {
	return &Mock{
		kind:   kind,
		level:  0.7,
		events: make(chan Event, eventBufferSize),
	}
}

func (m *Mock) Kind() media.Kind { return m.kind }

func (m *Mock) Load(ctx context.Context, d media.Descriptor, trackIndex int) error {
	if m.LoadBlock != nil {
		select {
		case <-m.LoadBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = append(m.loadCalls, d.ID())
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	m.index = trackIndex
	if album, err := d.Album(); err == nil {
		m.trackCount = len(album.Tracks)
	} else if fav, err := d.Favorite(); err == nil {
		m.trackCount = fav.TrackCount
	} else {
		m.trackCount = 0
	}
	return nil
}

func (m *Mock) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playErr
}

func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	return m.pauseErr
}

func (m *Mock) Resume() error { return nil }

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.loaded = false
	return nil
}

func (m *Mock) Next() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trackCount == 0 {
		return 0, ErrUnsupported
	}
	if m.skipErr != nil {
		return m.index, m.skipErr
	}
	if m.index+1 < m.trackCount {
		m.index++
	}
	return m.index, nil
}

func (m *Mock) Previous() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trackCount == 0 {
		return 0, ErrUnsupported
	}
	if m.skipErr != nil {
		return m.index, m.skipErr
	}
	if m.index > 0 {
		m.index--
	}
	return m.index, nil
}

func (m *Mock) SetVolume(level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	return nil
}

func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Mock) TrackIndex() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.trackCount == 0 {
		return 0, false
	}
	return m.index, true
}

func (m *Mock) Events() <-chan Event { return m.events }

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// Test helpers

func (m *Mock) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *Mock) SetPauseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseErr = err
}

func (m *Mock) SetSkipError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipErr = err
}

func (m *Mock) LoadCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadCalls...)
}

func (m *Mock) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

func (m *Mock) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

func (m *Mock) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// SetTrackIndex moves the reported track position, as auto-advance does.
func (m *Mock) SetTrackIndex(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = i
}

// Emit pushes an adapter event, as the real adapters do on auto-advance,
// finish, and failure.
func (m *Mock) Emit(e Event) {
	sendEvent(m.events, e)
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)

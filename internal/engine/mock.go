package engine

import (
	"context"
	"sync"
	"time"
)

// Mock is a test double for the engine.
type Mock struct {
	mu sync.Mutex

	state       State
	level       float64
	position    time.Duration
	live        bool
	playErr     error
	pauseErr    error
	fileCalls   []string
	streamCalls []string
	stopCalls   int
	finished    chan struct{}

	// PlayDelay makes PlayFile/PlayStream block before returning, for
	// timeout and cancellation tests.
	PlayDelay time.Duration

	// FileBlock and StreamBlock, when set, are received from inside
	// PlayFile/PlayStream so tests can hold an engine call in flight until
	// they choose to release it. A canceled context releases the call
	// without committing the source.
	FileBlock   chan struct{}
	StreamBlock chan struct{}
}

// NewMock creates a new mock engine for testing.
func NewMock() *Mock {
	return &Mock{
		state:    Stopped,
		level:    0.7,
		finished: make(chan struct{}, 1),
	}
}

func (m *Mock) PlayFile(ctx context.Context, path string) error {
	if err := m.wait(ctx, m.FileBlock); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileCalls = append(m.fileCalls, path)
	if m.playErr != nil {
		return m.playErr
	}
	m.drainFinished()
	m.live = false
	m.state = Playing
	return nil
}

func (m *Mock) PlayStream(ctx context.Context, url string) error {
	if err := m.wait(ctx, m.StreamBlock); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamCalls = append(m.streamCalls, url)
	if m.playErr != nil {
		return m.playErr
	}
	m.drainFinished()
	m.live = true
	m.state = Playing
	return nil
}

// wait models the slow part of source acquisition. Like the real engine, a
// cancellation that lands before the source is committed aborts the call
// without the engine ever seeing it.
func (m *Mock) wait(ctx context.Context, gate chan struct{}) error {
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.PlayDelay > 0 {
		select {
		case <-time.After(m.PlayDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// drainFinished drops a finish signal left over from the previous source.
// Callers hold m.mu.
func (m *Mock) drainFinished() {
	select {
	case <-m.finished:
	default:
	}
}

func (m *Mock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.state = Stopped
	m.live = false
}

func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pauseErr != nil {
		return m.pauseErr
	}
	if m.live {
		return ErrUnsupported
	}
	if m.state == Playing {
		m.state = Paused
	}
	return nil
}

func (m *Mock) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live {
		return ErrUnsupported
	}
	if m.state == Paused {
		m.state = Playing
	}
	return nil
}

func (m *Mock) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	m.level = v
}

func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live {
		return NoPosition
	}
	return m.position
}

func (m *Mock) FinishedChan() <-chan struct{} {
	return m.finished
}

func (m *Mock) Close() error {
	m.Stop()
	return nil
}

// Test helpers

func (m *Mock) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

func (m *Mock) SetPauseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseErr = err
}

func (m *Mock) FileCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fileCalls...)
}

func (m *Mock) StreamCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.streamCalls...)
}

func (m *Mock) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// SimulateFinished simulates the current source reaching its natural end.
func (m *Mock) SimulateFinished() {
	m.mu.Lock()
	m.state = Stopped
	m.mu.Unlock()
	select {
	case m.finished <- struct{}{}:
	default:
	}
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)

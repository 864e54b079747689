package speaker

import (
	"context"
	"sync"
)

// Mock is a test double for a speaker controller.
type Mock struct {
	mu sync.Mutex

	favorites  []Favorite
	playCalls  []string
	nextCalls  int
	prevCalls  int
	stopCalls  int
	pauseCalls int
	level      float64
	playErr    error
	listErr    error
	skipErr    error
}

// NewMock creates a mock controller with the given favorites.
func NewMock(favorites ...Favorite) *Mock {
	return &Mock{favorites: favorites, level: 0.5}
}

func (m *Mock) Favorites(_ context.Context) ([]Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]Favorite(nil), m.favorites...), nil
}

func (m *Mock) PlayFavorite(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls = append(m.playCalls, handle)
	return m.playErr
}

func (m *Mock) Pause(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	return nil
}

func (m *Mock) Resume(_ context.Context) error { return nil }

func (m *Mock) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return nil
}

func (m *Mock) Next(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipErr != nil {
		return m.skipErr
	}
	m.nextCalls++
	return nil
}

func (m *Mock) Previous(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipErr != nil {
		return m.skipErr
	}
	m.prevCalls++
	return nil
}

func (m *Mock) SetVolume(_ context.Context, level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	return nil
}

// Test helpers

func (m *Mock) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

func (m *Mock) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

func (m *Mock) SetSkipError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipErr = err
}

func (m *Mock) PlayCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.playCalls...)
}

func (m *Mock) NextCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextCalls
}

func (m *Mock) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// Verify Mock implements Controller at compile time.
var _ Controller = (*Mock)(nil)

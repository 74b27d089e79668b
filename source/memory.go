package source

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// NewMemory creates new in-memory source.
func NewMemory() *Memory {
	return &Memory{
		content: map[string][]byte{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

// Memory serves content from memory. Used for testing.
type Memory struct {
	mu      sync.Mutex
	content map[string][]byte
	errs    map[string]error
	calls   map[string]int
	gate    chan struct{}
	waiting int
}

// Put stores content under the locator.
func (m *Memory) Put(locator string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.content[locator] = data
	delete(m.errs, locator)
}

// Fail makes fetches of the locator return error until Put is called.
func (m *Memory) Fail(locator string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errs[locator] = err
}

// Pause makes fetches wait until Resume is called or their context is canceled.
func (m *Memory) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Resume releases paused fetches.
func (m *Memory) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns the number of fetches started for the locator.
func (m *Memory) Calls(locator string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[locator]
}

// Waiting returns the number of fetches blocked by Pause.
func (m *Memory) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.waiting
}

// Fetch returns content stored under the locator.
func (m *Memory) Fetch(ctx context.Context, locator string) ([]byte, error) {
	m.mu.Lock()
	m.calls[locator]++
	gate := m.gate
	if gate != nil {
		m.waiting++
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}

		m.mu.Lock()
		m.waiting--
		m.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errs[locator]; err != nil {
		return nil, err
	}
	data, exists := m.content[locator]
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "locator %q", locator)
	}
	return data, nil
}

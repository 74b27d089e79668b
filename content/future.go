package content

import (
	"context"
	"sync"

	"github.com/outofforest/mass"
	"github.com/pkg/errors"
)

func newFuture(massFuture *mass.Mass[Future]) *Future {
	f := massFuture.New()
	f.doneCh = make(chan struct{})
	return f
}

func resolvedFuture(payload Payload, err error) *Future {
	f := &Future{doneCh: make(chan struct{})}
	f.resolve(payload, err)
	return f
}

// Future is the result of the fetch which might not be completed yet.
type Future struct {
	mu        sync.Mutex
	doneCh    chan struct{}
	resolved  bool
	payload   Payload
	err       error
	callbacks []func(payload Payload, err error)
}

// Done returns channel closed when future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.doneCh
}

// Resolved reports whether the future is resolved.
func (f *Future) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.resolved
}

// Result returns the result of the future. It blocks until future is resolved.
func (f *Future) Result() (Payload, error) {
	<-f.doneCh
	return f.payload, f.err
}

// Wait waits until future is resolved or context is canceled.
func (f *Future) Wait(ctx context.Context) (Payload, error) {
	select {
	case <-ctx.Done():
		return Payload{}, errors.WithStack(ctx.Err())
	case <-f.doneCh:
		return f.payload, f.err
	}
}

// Then registers callback invoked once the future is resolved. If future is resolved already, callback is invoked
// immediately. Otherwise it runs on the goroutine resolving the future, so it must not block and must not call the
// cache.
func (f *Future) Then(fn func(payload Payload, err error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	fn(f.payload, f.err)
}

func (f *Future) resolve(payload Payload, err error) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.resolved = true
	f.payload = payload
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.doneCh)
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(payload, err)
	}
}

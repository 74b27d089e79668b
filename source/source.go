package source

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when source does not contain requested content.
	ErrNotFound = errors.New("content not found")

	// ErrUnsupportedScheme is returned by router if no fetcher is registered for the scheme of the locator.
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
)

// Fetcher fetches raw content bytes identified by locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc adapts function to Fetcher interface.
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// NewRouter creates new router.
func NewRouter() *Router {
	return &Router{
		routes: map[string]Fetcher{},
	}
}

// Router dispatches fetches to fetchers registered for the scheme of the locator.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Fetcher
}

// Route registers fetcher for the scheme. Locators without scheme use the fetcher registered for "".
func (r *Router) Route(scheme string, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[scheme] = f
}

// Fetch fetches content using fetcher registered for the scheme of the locator.
func (r *Router) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid locator %q", locator)
	}

	r.mu.RLock()
	f, exists := r.routes[u.Scheme]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Wrapf(ErrUnsupportedScheme, "scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, locator)
}

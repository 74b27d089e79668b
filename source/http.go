package source

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// NewHTTP creates new HTTP source. If client is nil, http.DefaultClient is used.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client}
}

// HTTP downloads content from http:// and https:// locators.
type HTTP struct {
	client *http.Client
}

// Fetch downloads the content.
func (h *HTTP) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid locator %q", locator)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrNotFound, "locator %q", locator)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.Errorf("fetching %q failed with status %s", locator, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

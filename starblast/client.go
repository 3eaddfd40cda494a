package starblast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nicebartender/starinfo/joincode"
)

const (
	// DirectoryURL lists every running system grouped by the host serving it.
	DirectoryURL = "https://starblast.io/simstatus.json"

	// StatusBaseURL is the community status API.
	StatusBaseURL = "https://starblast.dankdmitron.dev"

	// DefaultTimeout bounds each outbound request.
	DefaultTimeout = 30 * time.Second
)

// Client queries the Starblast directory and status APIs. It keeps no state
// between calls and is safe for concurrent use.
type Client struct {
	httpClient    *http.Client
	directoryURL  string
	statusBaseURL string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDirectoryURL overrides the directory document location.
func WithDirectoryURL(url string) ClientOption {
	return func(c *Client) {
		c.directoryURL = url
	}
}

// WithStatusBaseURL overrides the status API base URL.
func WithStatusBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.statusBaseURL = url
	}
}

// NewClient creates a client pointed at the public endpoints.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		directoryURL:  DirectoryURL,
		statusBaseURL: StatusBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup runs the full pipeline for a session reference. Sessions without an
// address are resolved through the directory first; a session missing from
// the directory is still queried by id alone. On success the summary carries
// the address that was actually used.
func (c *Client) Lookup(ctx context.Context, ref joincode.Ref) (*Summary, error) {
	address := ref.Address
	if address == "" {
		resolved, err := c.ResolveAddress(ctx, ref.ID)
		switch {
		case err == nil:
			address = resolved
		case errors.Is(err, ErrNotInDirectory):
			slog.Debug("starblast: system not listed in directory", "id", ref.ID)
		default:
			slog.Warn("starblast: directory lookup failed", "id", ref.ID, "err", err)
			return nil, ErrFetchFailed
		}
	}

	return c.FetchStatus(ctx, ref.ID, address)
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp, nil
}

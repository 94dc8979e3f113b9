package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/metrics"
	"git.home.luguber.info/inful/packd/internal/retry"
	"git.home.luguber.info/inful/packd/internal/version"
)

// AcceptAbbreviated requests the abbreviated packument, which carries
// everything resolution needs at a fraction of the size.
const AcceptAbbreviated = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

const maxMetadataBytes = 64 << 20

var (
	// ErrNotFound is returned when the registry does not know the package.
	ErrNotFound = errors.NewError(errors.CategoryNotFound, "package not found").Build()
	// ErrUnusableMetadata is returned when the registry answers with a body
	// that cannot be decoded.
	ErrUnusableMetadata = errors.NewError(errors.CategoryNetwork, "unusable registry metadata").Build()
)

// Client fetches package metadata from an npm-compatible registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithRetryPolicy sets the backoff policy for transient failures.
func WithRetryPolicy(p retry.Policy) Option { return func(c *Client) { c.policy = p } }

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a registry client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.DefaultPolicy(),
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MetadataURL returns the packument URL for a qualified package name. Scoped
// names keep their "@" and escape the "/".
func (c *Client) MetadataURL(qualified string) string {
	return c.baseURL + "/" + url.PathEscape(qualified)
}

// Fetch returns the metadata for qualified. Transient failures (transport
// errors, 429, 5xx) are retried according to the client's policy.
func (c *Client) Fetch(ctx context.Context, qualified string) (*Metadata, error) {
	start := time.Now()
	var meta *Metadata
	err := c.policy.Do(ctx, errors.IsRetryable,
		func(attempt int, err error) {
			c.recorder.IncRegistryRetry()
			c.logger.Warn("Retrying registry fetch",
				logfields.Package(qualified),
				logfields.Attempt(attempt),
				logfields.Error(err))
		},
		func() error {
			var err error
			meta, err = c.fetchOnce(ctx, qualified)
			return err
		})

	switch {
	case err == nil:
		c.recorder.ObserveRegistryFetch(time.Since(start), metrics.RegistryOK)
	case errors.HasCategory(err, errors.CategoryNotFound):
		c.recorder.ObserveRegistryFetch(time.Since(start), metrics.RegistryNotFound)
	default:
		c.recorder.ObserveRegistryFetch(time.Since(start), metrics.RegistryError)
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) fetchOnce(ctx context.Context, qualified string) (*Metadata, error) {
	target := c.MetadataURL(qualified)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to create registry request").
			WithContext("url", target).
			Build()
	}
	req.Header.Set("Accept", AcceptAbbreviated)
	req.Header.Set("User-Agent", "packd/"+version.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkError("registry request failed").
			WithCause(err).
			WithContext("url", target).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound.WithContext("package", qualified)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.NetworkError(fmt.Sprintf("registry error: %s", resp.Status)).
			WithContext("url", target).
			WithContext("code", resp.StatusCode).
			Build()
	case resp.StatusCode != http.StatusOK:
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.NewError(errors.CategoryNetwork, fmt.Sprintf("registry error: %s", resp.Status)).
			WithContext("url", target).
			WithContext("code", resp.StatusCode).
			WithContext("response", strings.ReplaceAll(string(limitedBody), "\n", " ")).
			Build()
	}

	var meta Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&meta); err != nil {
		return nil, ErrUnusableMetadata.WithCause(err).WithContext("url", target)
	}
	return &meta, nil
}

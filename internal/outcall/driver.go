// Package outcall wraps the host's outbound-HTTP primitive behind a
// deterministic result surface: a transform keeps only the response body,
// truncated to the per-source byte cap, so every replica observes identical
// bytes.
package outcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// MaxResponseBytes is the hard cap on any upstream response body.
const MaxResponseBytes uint64 = 500 * 1024

// Failure modes of a fetch. The driver performs no retries; redundancy
// across sources is the aggregator's policy.
var (
	ErrHTTPRejected     = errors.New("outcall: upstream rejected request")
	ErrResponseTooLarge = errors.New("outcall: response exceeds byte cap")
	ErrTimeout          = errors.New("outcall: request timed out")
)

// Response is the raw upstream reply before the transform runs.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// HostClient is the host's outbound HTTP primitive.
type HostClient interface {
	Do(ctx context.Context, url string, maxBytes uint64) (Response, error)
}

// Request describes one fetch.
type Request struct {
	SourceID string
	URL      string
	MaxBytes uint64
}

// Driver issues fetches through the host primitive and applies the
// transform to the reply.
type Driver struct {
	client HostClient
	logger zerolog.Logger
}

// NewDriver constructs a Driver around the given host client.
func NewDriver(client HostClient, logger zerolog.Logger) *Driver {
	return &Driver{
		client: client,
		logger: logger.With().Str("component", "outcall").Logger(),
	}
}

// Fetch performs one GET against the source URL and returns the transformed
// body. Non-2xx statuses surface as ErrHTTPRejected; bodies above the byte
// cap as ErrResponseTooLarge; deadline expiry as ErrTimeout.
func (d *Driver) Fetch(ctx context.Context, req Request) ([]byte, error) {
	maxBytes := req.MaxBytes
	if maxBytes == 0 || maxBytes > MaxResponseBytes {
		maxBytes = MaxResponseBytes
	}

	resp, err := d.client.Do(ctx, req.URL, maxBytes)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, req.SourceID)
		}
		d.logger.Debug().Err(err).Str("source", req.SourceID).Msg("outcall failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrHTTPRejected, req.SourceID, err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrHTTPRejected, req.SourceID, resp.Status)
	}
	if uint64(len(resp.Body)) > maxBytes {
		return nil, fmt.Errorf("%w: %s: %d bytes", ErrResponseTooLarge, req.SourceID, len(resp.Body))
	}
	return TransformBody(resp, maxBytes), nil
}

// TransformBody is the replica-agreement transform: it drops the status line
// and every header and keeps the body truncated to maxBytes. It must stay a
// pure function of the response.
func TransformBody(resp Response, maxBytes uint64) []byte {
	body := resp.Body
	if uint64(len(body)) > maxBytes {
		body = body[:maxBytes]
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

// HTTPClient is the production HostClient backed by net/http.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// HTTPClientOptions tune the production client.
type HTTPClientOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPClient builds the production HostClient.
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "xrate-oracle/1.0"
	}
	return &HTTPClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Do implements HostClient.
func (c *HTTPClient) Do(ctx context.Context, url string, maxBytes uint64) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return Response{}, ErrTimeout
		}
		return Response{}, err
	}
	defer resp.Body.Close()

	// Read one byte beyond the cap so oversized bodies are detectable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return Response{}, err
	}

	return Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

var _ HostClient = (*HTTPClient)(nil)

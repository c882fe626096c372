package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/coordinator"
	"xrate-oracle/internal/rate"
)

// ClientOptions parameterise the oracle client.
type ClientOptions struct {
	BaseURL string
	Caller  string
	Cycles  uint64
	Timeout time.Duration
}

// Client queries a running oracle over its ingress API.
type Client struct {
	opts   ClientOptions
	client *http.Client
	logger zerolog.Logger
}

// NewClient constructs an oracle client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "oracle_client").Logger(),
	}
}

// resultEnvelope mirrors the ingress reply.
type resultEnvelope struct {
	Ok  *rate.ExchangeRate `json:"ok"`
	Err *rate.Error        `json:"err"`
}

// GetExchangeRate asks the oracle for one pair at one minute. The returned
// cycles figure is what the oracle retained.
func (c *Client) GetExchangeRate(ctx context.Context, pair asset.Pair, ts uint64) (*rate.ExchangeRate, *rate.Error, uint64, error) {
	reqBody := coordinator.Request{
		BaseAsset:  pair.Base,
		QuoteAsset: pair.Quote,
		Timestamp:  &ts,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, 0, err
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/v1/rates"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-Principal", c.opts.Caller)
	req.Header.Set("X-Attached-Cycles", strconv.FormatUint(c.opts.Cycles, 10))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, 0, fmt.Errorf("oracle replied %d", resp.StatusCode)
	}

	var envelope resultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, nil, 0, err
	}
	accepted, _ := strconv.ParseUint(resp.Header.Get("X-Cycles-Accepted"), 10, 64)

	if envelope.Ok == nil && envelope.Err == nil {
		return nil, nil, accepted, errors.New("empty result envelope")
	}
	return envelope.Ok, envelope.Err, accepted, nil
}

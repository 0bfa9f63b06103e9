// Package gateway provides a resilient HTTP device link for tower
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/logger"
	twrdom "hangar/internal/services/tower/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUA        = "hangar-tower"
	defaultMaxRetry  = 3
	defaultRetryBase = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	// BaseURL of the fleet gateway, e.g. http://gateway:8080
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// AuthToken is sent as a bearer token when set
	AuthToken string

	// Retry config for transient responses
	MaxRetries int
	RetryBase  time.Duration
}

// Client posts commands to the fleet gateway and reads the ack
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("device_gateway"),
	}
}

type commandEnvelope struct {
	CommandID  string         `json:"command_id"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type ackEnvelope struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Execute transmits one command and waits for the gateway ack.
// 5xx and transport errors retry with backoff; 4xx fail immediately
func (c *Client) Execute(ctx context.Context, cmd twrdom.Command) (twrdom.Ack, error) {
	body, err := json.Marshal(commandEnvelope{
		CommandID:  cmd.ID.String(),
		Type:       string(cmd.Type),
		Parameters: cmd.Parameters,
	})
	if err != nil {
		return twrdom.Ack{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "encode command envelope")
	}
	url := fmt.Sprintf("%s/v1/drones/%d/commands", c.opts.BaseURL, cmd.DroneID)

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return twrdom.Ack{}, ctx.Err()
			case <-time.After(c.opts.RetryBase << uint(attempt-1)):
			}
		}

		ack, retryable, err := c.post(ctx, url, body)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if !retryable {
			return twrdom.Ack{}, err
		}
		c.log.Warn().Int64("drone_id", cmd.DroneID).Int("attempt", attempt+1).Err(err).
			Msg("device gateway call failed; retrying")
	}
	return twrdom.Ack{}, perr.Wrap(lastErr, perr.ErrorCodeUnavailable, "device gateway unreachable")
}

func (c *Client) post(ctx context.Context, url string, body []byte) (twrdom.Ack, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return twrdom.Ack{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return twrdom.Ack{}, true, err
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return twrdom.Ack{}, true, perr.Unavailablef("gateway returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return twrdom.Ack{}, false, perr.InvalidArgf("gateway rejected command with %d", resp.StatusCode)
	}

	var ack ackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return twrdom.Ack{}, true, perr.Wrap(err, perr.ErrorCodeUnavailable, "decode gateway ack")
	}
	return twrdom.Ack{OK: ack.OK, Detail: ack.Detail}, false, nil
}

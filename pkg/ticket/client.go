package ticket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrTicketSubmission is returned when the outbound creation request fails.
var ErrTicketSubmission = errors.New("ticket: submission failed")

// Client submits creation requests to the ticketing endpoint. Outbound calls
// are rate limited so a large scan cannot hammer the API.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
	limiter  *rate.Limiter
}

// ClientConfig holds the ticketing endpoint settings.
type ClientConfig struct {
	Endpoint          string
	Username          string
	Password          string
	RequestsPerMinute int
	Timeout           time.Duration
}

// NewClient builds a ticket client. A zero RequestsPerMinute defaults to 30.
func NewClient(cfg ClientConfig) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

// Submit renders the batch against the template and POSTs it. One request per
// batch; there is no retry, failures surface to the caller.
func (c *Client) Submit(ctx context.Context, t Template, batch Batch) error {
	body, err := t.Render(batch)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrTicketSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTicketSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.New().String())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTicketSubmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrTicketSubmission, c.endpoint, resp.StatusCode, detail)
	}
	return nil
}

// Package gateway forwards single predictions from the upload service to the
// inference gateway.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Response is the gateway answer passed back to the caller unchanged
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client proxies prediction requests
type Client struct {
	http    *resty.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		timeout: timeout,
	}
}

// Forward posts body to the prediction endpoint of format
func (c *Client) Forward(ctx context.Context, format string, body []byte) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/api/v1/predict/" + format)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	return &Response{
		Status:      res.StatusCode(),
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}, nil
}

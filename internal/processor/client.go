package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrGatewayStatus is returned when the gateway answers with a non-200 status
	ErrGatewayStatus = errors.New("gateway returned non-success status")

	// ErrMalformedResponse is returned when the gateway body has no usable prediction
	ErrMalformedResponse = errors.New("malformed gateway response")
)

// ClientConfig holds inference gateway client settings
type ClientConfig struct {
	BaseURL  string
	Endpoint string
	Timeout  time.Duration
	// ModelGroup is sent for rows without a model_group column
	ModelGroup string
}

// Client calls the inference gateway over HTTP
type Client struct {
	http       *resty.Client
	endpoint   string
	timeout    time.Duration
	modelGroup string
	logger     *slog.Logger
}

// NewClient creates a gateway client. Timeout bounds each call.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		modelGroup: cfg.ModelGroup,
		logger:     logger,
	}
}

type predictionResponse struct {
	PredictedPrice json.RawMessage `json:"predicted_price"`
}

// Predict posts one row and returns the predicted price
func (c *Client) Predict(ctx context.Context, row map[string]any) (float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(c.payload(row)).
		Post(c.endpoint)
	if err != nil {
		return 0, fmt.Errorf("gateway request failed: %w", err)
	}

	if res.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("%w: %d: %s", ErrGatewayStatus, res.StatusCode(), snippet(res.Body()))
	}

	var body predictionResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return parsePrice(body.PredictedPrice)
}

const modelGroupField = "model_group"

// payload adds the default model group without touching the dataset row
func (c *Client) payload(row map[string]any) map[string]any {
	if c.modelGroup == "" {
		return row
	}
	if _, ok := row[modelGroupField]; ok {
		return row
	}

	body := make(map[string]any, len(row)+1)
	for k, v := range row {
		body[k] = v
	}
	body[modelGroupField] = c.modelGroup
	return body
}

// parsePrice accepts a number or a non-empty array whose first element is a number
func parsePrice(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: predicted_price missing", ErrMalformedResponse)
	}

	if raw[0] == '[' {
		var values []float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if len(values) == 0 {
			return 0, fmt.Errorf("%w: predicted_price is empty", ErrMalformedResponse)
		}
		return values[0], nil
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return value, nil
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

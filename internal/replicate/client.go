package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	replicatego "github.com/replicate/replicate-go"
)

// DefaultBaseURL is the public predictions API endpoint.
const DefaultBaseURL = "https://api.replicate.com/v1"

// Status is the lifecycle state of a prediction.
type Status = replicatego.Status

const (
	StatusStarting   = replicatego.Starting
	StatusProcessing = replicatego.Processing
	StatusSucceeded  = replicatego.Succeeded
	StatusFailed     = replicatego.Failed
	StatusCanceled   = replicatego.Canceled
)

// ErrMalformedPrediction is returned when the API accepts a prediction but
// the response carries neither a status nor an ID to poll.
var ErrMalformedPrediction = errors.New("replicate: prediction response has no id or status")

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Token is sent as a bearer token. Required.
	Token string

	// HTTPClient defaults to a client without a timeout; predictions can
	// take minutes.
	HTTPClient *http.Client

	// PollInterval is how often a pending prediction is polled.
	// Default: 1s
	PollInterval time.Duration

	Logger *slog.Logger
}

// Client runs models through the predictions API.
// It is safe for concurrent use.
type Client struct {
	api          *replicatego.Client
	pollInterval time.Duration
}

// New creates a new Client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("replicate: token is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Logger != nil {
		next := httpClient.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		logged := *httpClient
		logged.Transport = &loggingTransport{next: next, logger: cfg.Logger}
		httpClient = &logged
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	api, err := replicatego.NewClient(
		replicatego.WithToken(cfg.Token),
		replicatego.WithBaseURL(strings.TrimSuffix(base, "/")),
		replicatego.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}

	return &Client{api: api, pollInterval: poll}, nil
}

// Generate runs model with input and blocks until the prediction finishes.
// model is either "owner/name" (latest version) or "owner/name:version".
func (c *Client) Generate(ctx context.Context, model string, input map[string]any) (Output, error) {
	pred, err := c.CreatePrediction(ctx, model, input)
	if err != nil {
		return nil, err
	}

	if err := c.Wait(ctx, pred); err != nil {
		return nil, err
	}

	out, err := json.Marshal(pred.Output)
	if err != nil {
		return nil, fmt.Errorf("encode prediction output: %w", err)
	}
	return Output(out), nil
}

// CreatePrediction starts a prediction for model.
func (c *Client) CreatePrediction(ctx context.Context, model string, input map[string]any) (*replicatego.Prediction, error) {
	owner, name, version, err := parseModel(model)
	if err != nil {
		return nil, err
	}

	var pred *replicatego.Prediction
	if version != "" {
		pred, err = c.api.CreatePrediction(ctx, version, replicatego.PredictionInput(input), nil, false)
	} else {
		pred, err = c.api.CreatePredictionWithModel(ctx, owner, name, replicatego.PredictionInput(input), nil, false)
	}
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	if pred == nil || (pred.ID == "" && pred.Status == "") {
		return nil, ErrMalformedPrediction
	}
	return pred, nil
}

// Wait polls pred in place until it reaches a terminal state. Failed and
// canceled predictions are returned as *PredictionError.
func (c *Client) Wait(ctx context.Context, pred *replicatego.Prediction) error {
	if !pred.Status.Terminated() {
		if pred.ID == "" {
			return ErrMalformedPrediction
		}
		if err := c.api.Wait(ctx, pred, replicatego.WithPollingInterval(c.pollInterval)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("poll prediction %s: %w", pred.ID, err)
		}
	}

	if pred.Status != StatusSucceeded {
		return &PredictionError{
			ID:      pred.ID,
			Status:  pred.Status,
			Message: errorMessage(pred.Error),
		}
	}
	return nil
}

// parseModel splits "owner/name[:version]".
func parseModel(model string) (owner, name, version string, err error) {
	id, version, hasVersion := strings.Cut(model, ":")
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", "", fmt.Errorf("replicate: invalid model identifier %q, want owner/name[:version]", model)
	}
	if hasVersion && version == "" {
		return "", "", "", fmt.Errorf("replicate: empty version in model identifier %q", model)
	}
	return owner, name, version, nil
}

// errorMessage flattens the prediction error field, which is usually a
// string but is not guaranteed to be.
func errorMessage(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

// loggingTransport logs every API round trip at debug level.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("request", "method", req.Method, "url", req.URL.String())

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}

	t.logger.Debug("response",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

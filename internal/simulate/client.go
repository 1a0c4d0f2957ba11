package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
)

// Submission outcomes.
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
)

// Retry policy for a full ingestion queue.
const (
	maxSubmitAttempts = 8
	retryBaseDelay    = 50 * time.Millisecond
)

// Errors returned by the client.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrQueueFull        = errors.New("queue full after retries")
)

// Client is a thin JSON client for the liftmap HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	for _, code := range want {
		if resp.StatusCode != code {
			continue
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, path, resp.StatusCode, bytes.TrimSpace(data))
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
	return err
}

// StartSession opens a recording session.
func (c *Client) StartSession(ctx context.Context, elevatorID, technician string) (model.Session, error) {
	var s model.Session
	body := map[string]string{"elevator_id": elevatorID, "technician": technician}
	_, err := c.do(ctx, http.MethodPost, "/sessions", body, &s, http.StatusCreated)
	return s, err
}

type samplesBody struct {
	BatchID string               `json:"batch_id"`
	Samples []trajectory.Reading `json:"samples"`
}

// Submit posts one batch and reports whether it was accepted or a duplicate.
// A full queue is retried with exponential backoff.
func (c *Client) Submit(ctx context.Context, b model.SampleBatch) (result string, retries int, err error) { //nolint:gocritic // hugeParam: batches travel by value
	path := "/sessions/" + b.SessionID + "/samples"
	body := samplesBody{BatchID: b.BatchID, Samples: b.Readings}

	delay := retryBaseDelay
	for attempt := range maxSubmitAttempts {
		code, err := c.do(ctx, http.MethodPost, path, body, nil,
			http.StatusAccepted, http.StatusOK, http.StatusTooManyRequests)
		if err != nil {
			return "", attempt, err
		}
		switch code {
		case http.StatusAccepted:
			return resultAccepted, attempt, nil
		case http.StatusOK:
			return resultDuplicate, attempt, nil
		}
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", maxSubmitAttempts, ErrQueueFull
}

// Finish closes a session and returns its report.
func (c *Client) Finish(ctx context.Context, sessionID string) (model.Report, error) {
	var r model.Report
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/finish", nil, &r, http.StatusOK)
	return r, err
}

// Report fetches the stored report of a finished session.
func (c *Client) Report(ctx context.Context, sessionID string) (model.Report, error) {
	var r model.Report
	_, err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/report", nil, &r, http.StatusOK)
	return r, err
}

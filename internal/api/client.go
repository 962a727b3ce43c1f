// Package api is a client for the rover server's HTTP endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrRejected is returned when the server answers success=false.
var ErrRejected = errors.New("api: request rejected")

// Result is the common response envelope.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CaptureResult reports the files written by a capture request.
type CaptureResult struct {
	Result
	Files []string `json:"files,omitempty"`
}

// Mission is one entry of the mission history.
type Mission struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// MissionList is the mission history response.
type MissionList struct {
	Result
	Missions []Mission `json:"missions"`
}

// StartRequest is the mission start body.
type StartRequest struct {
	Task       string `json:"task"`
	DistanceCm int    `json:"distanceCm"`
}

// Client calls the rover server. Failures are returned to the caller and
// never retried.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient creates a client. A nil httpClient gets a 10s timeout.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{HTTPClient: httpClient, BaseURL: baseURL}
}

// Capture asks the server to save the current detection frame.
func (c *Client) Capture(ctx context.Context) (CaptureResult, error) {
	var out CaptureResult
	err := c.do(ctx, http.MethodPost, "/api/capture", nil, &out)
	return out, checkResult(out.Result, err)
}

// Missions lists the mission history.
func (c *Client) Missions(ctx context.Context) ([]Mission, error) {
	var out MissionList
	err := c.do(ctx, http.MethodGet, "/api/missions", nil, &out)
	if err := checkResult(out.Result, err); err != nil {
		return nil, err
	}
	return out.Missions, nil
}

// Report fetches a mission report as raw bytes; rendering it is left to the
// caller.
func (c *Client) Report(ctx context.Context, missionID string) ([]byte, error) {
	req, err := c.request(ctx, http.MethodGet, "/api/missions/"+url.PathEscape(missionID)+"/report", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

// StartMission starts a mission on the server.
func (c *Client) StartMission(ctx context.Context, task string, distanceCm int) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/api/mission/start", StartRequest{Task: task, DistanceCm: distanceCm}, &out)
	return out, checkResult(out, err)
}

// StopMission stops the active mission.
func (c *Client) StopMission(ctx context.Context) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/api/mission/stop", nil, &out)
	return out, checkResult(out, err)
}

func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// checkResult turns success=false into ErrRejected carrying the server
// message.
func checkResult(r Result, err error) error {
	if err != nil {
		return err
	}
	if !r.Success {
		if r.Message != "" {
			return fmt.Errorf("%w: %s", ErrRejected, r.Message)
		}
		return ErrRejected
	}
	return nil
}

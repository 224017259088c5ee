package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/radioscope/capsession/internal/devices"
)

// Client drives a remote capture agent. It implements devices.Backend and
// never retries: every call is sent exactly once.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ devices.Backend = (*Client)(nil)

// NewClient returns a client for the agent at baseURL. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// Error is a non-2xx reply from the agent.
type Error struct {
	Path       string
	StatusCode int
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s: %s (status %d)", e.Path, e.Message, e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &Error{Path: path, StatusCode: resp.StatusCode, Message: e.Error, RequestID: resp.Header.Get(RequestIDHeader)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agent %s: decode response: %w", path, err)
	}
	return nil
}

// Heartbeat checks that the agent is reachable.
func (c *Client) Heartbeat(ctx context.Context) (HeartbeatResponse, error) {
	var hb HeartbeatResponse
	err := c.do(ctx, http.MethodGet, "/v0/heartbeat", nil, &hb)
	return hb, err
}

func (c *Client) CaptureStart(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/capture-start", struct{}{}, nil)
}

func (c *Client) CaptureStop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/capture-stop", struct{}{}, nil)
}

func (c *Client) Capturing(ctx context.Context) (bool, error) {
	var st StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v0/backend/status", nil, &st); err != nil {
		return false, err
	}
	return st.Capturing, nil
}

func (c *Client) WriteOutput(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/write-output", WriteOutputRequest{Enabled: enabled}, nil)
}

func (c *Client) NewCompoundScan(ctx context.Context, target, label, firstScanLabel string) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/compound-scan",
		CompoundScanRequest{Target: target, Label: label, FirstScanLabel: firstScanLabel}, nil)
}

func (c *Client) NewScan(ctx context.Context, label string) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/scan", ScanRequest{Label: label}, nil)
}

func (c *Client) SetTarget(ctx context.Context, description string) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/target", TargetRequest{Description: description}, nil)
}

func (c *Client) Setup(ctx context.Context, p devices.SetupParams) error {
	return c.do(ctx, http.MethodPost, "/v0/backend/setup", SetupRequest{
		OutputDir:     p.OutputDir,
		ExperimentID:  p.ExperimentID,
		Observer:      p.Observer,
		Description:   p.Description,
		DumpPeriodS:   p.DumpPeriod.Seconds(),
		EffectiveLOHz: p.EffectiveLOHz,
	}, nil)
}

func (c *Client) CurrentFiles(ctx context.Context) ([]string, error) {
	var f FilesResponse
	if err := c.do(ctx, http.MethodGet, "/v0/backend/files", nil, &f); err != nil {
		return nil, err
	}
	return f.Files, nil
}

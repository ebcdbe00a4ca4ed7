package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is where a locally running engine listens.
	DefaultBaseURL = "http://localhost:8900"

	// hookPath receives serialized events.
	hookPath = "/api/active/hook"
)

// ClientConfig tunes the hook client.
type ClientConfig struct {
	// BaseURL of the engine. Defaults to DefaultBaseURL.
	BaseURL string
	// Timeout bounds the whole request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client delivers hook events to a running engine over HTTP. It is
// fail-open end to end: connection errors, timeouts, non-2xx statuses and
// malformed responses all yield an empty Result so the wrapped action
// always proceeds.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a hook client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type clientEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message   string `json:"message"`
		Operation string `json:"operation,omitempty"`
	} `json:"error"`
}

// Send posts the event and returns whatever the engine produced. The
// returned Result is never nil; any failure along the way is logged and
// reported as an empty result.
func (c *Client) Send(ctx context.Context, ev Event) *Result {
	empty := &Result{SessionID: ev.SessionID}

	body, err := json.Marshal(ev)
	if err != nil {
		c.logger.Debug("hook event marshal failed", zap.Error(err))
		return empty
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+hookPath, bytes.NewReader(body))
	if err != nil {
		c.logger.Debug("hook request build failed", zap.Error(err))
		return empty
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("hook delivery failed, continuing", zap.Error(err))
		return empty
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("hook delivery rejected, continuing",
			zap.Int("status", resp.StatusCode))
		return empty
	}

	var env clientEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.logger.Debug("hook response decode failed, continuing", zap.Error(err))
		return empty
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		c.logger.Debug("hook rejected by engine, continuing", zap.String("reason", msg))
		return empty
	}

	var res Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		c.logger.Debug("hook result decode failed, continuing", zap.Error(err))
		return empty
	}
	if res.SessionID == "" {
		res.SessionID = ev.SessionID
	}
	return &res
}

// Healthy reports whether the engine answers its health endpoint. Used by
// the hook command to short-circuit when no engine is running.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

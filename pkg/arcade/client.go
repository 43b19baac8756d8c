// Package arcade talks to an ArcadeDB-style document store over its HTTP
// command API. All access is best-effort: transport failures are throttled
// in the logs and surface as empty results so the engine keeps running.
package arcade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agentswarm/swarmd/pkg/config"
)

// errLogInterval throttles backend error logging.
const errLogInterval = 15 * time.Second

// Client issues SQL commands against one database.
type Client struct {
	httpClient *http.Client
	baseURL    string
	database   string
	user       string
	password   string

	lastErrLog atomic.Int64 // unix nanos of the last error log
	logger     *slog.Logger
}

// NewClient builds a client from backend options.
func NewClient(opts config.ArcadeDBOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "arcade")
	if strings.Contains(opts.User, ":") {
		logger.Warn("Username contains a colon and cannot be encoded in basic auth", "user", opts.User)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(opts.URL, "/"),
		database:   opts.Database,
		user:       opts.User,
		password:   opts.Password,
		logger:     logger,
	}
}

type commandRequest struct {
	Language   string         `json:"language"`
	Command    string         `json:"command"`
	Serializer string         `json:"serializer"`
	AutoCommit bool           `json:"autoCommit"`
	Params     map[string]any `json:"params"`
}

type commandResponse struct {
	Result []map[string]any `json:"result"`
}

// Command posts one SQL command and returns the result records.
func (c *Client) Command(ctx context.Context, command string, params map[string]any) ([]map[string]any, error) {
	body, err := json.Marshal(commandRequest{
		Language:   "sql",
		Command:    command,
		Serializer: "record",
		AutoCommit: true,
		Params:     params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	endpoint := c.baseURL + "/api/v1/command/" + url.PathEscape(c.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logThrottled("Backend request failed", err)
		return nil, fmt.Errorf("post command: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		c.logThrottled("Backend command rejected", err)
		return nil, err
	}

	var parsed commandResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Result, nil
}

// logThrottled logs at most one backend error per errLogInterval.
func (c *Client) logThrottled(msg string, err error) {
	now := time.Now().UnixNano()
	last := c.lastErrLog.Load()
	if now-last < int64(errLogInterval) {
		return
	}
	if c.lastErrLog.CompareAndSwap(last, now) {
		c.logger.Error(msg, "error", err)
	}
}

// asInt64 extracts an integer from a backend value. Numbers may arrive as
// strings, so string parsing is the fallback.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// asString extracts a string, tolerating non-string scalars.
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

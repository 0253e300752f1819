// Package whop is the enforcement executor: a thin client for the platform
// API that actually deletes messages, warns users, and pings admins.
package whop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/skimmerhq/skimmer/engine"
)

const DefaultAPIHost = "https://api.whop.com/api/v2"

type Client struct {
	host   string
	apiKey string
	http   *retryablehttp.Client
	logger *slog.Logger
}

var _ engine.Enforcer = (*Client)(nil)

func NewClient(host, apiKey string, logger *slog.Logger) *Client {
	if host == "" {
		host = DefaultAPIHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil
	return &Client{
		host:   host,
		apiKey: apiKey,
		http:   rc,
		logger: logger,
	}
}

func (c *Client) request(ctx context.Context, method, path string, body any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.host+path, buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform API request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusMethodNotAllowed:
		// the platform has no such operation for this tenant
		return fmt.Errorf("%w: %s %s (HTTP %d)", engine.ErrNotSupported, method, path, resp.StatusCode)
	default:
		return fmt.Errorf("platform API error: %s %s (HTTP %d)", method, path, resp.StatusCode)
	}
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.request(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil)
}

func (c *Client) SendDM(ctx context.Context, userID, message string) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/users/%s/dm", userID), map[string]string{"message": message})
}

func (c *Client) TimeoutUser(ctx context.Context, userID string, durationSecs int) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/users/%s/timeout", userID), map[string]int{"duration": durationSecs})
}

func (c *Client) MuteUser(ctx context.Context, userID string, durationSecs int) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/users/%s/mute", userID), map[string]int{"duration": durationSecs})
}

func (c *Client) NotifyChannel(ctx context.Context, channelID, message string) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), map[string]string{"content": message})
}

func (c *Client) HideContent(ctx context.Context, forumID, postID string) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/forums/%s/posts/%s/hide", forumID, postID), nil)
}

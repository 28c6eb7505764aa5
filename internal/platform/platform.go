// Package platform implements the long-poll messaging platform client: the
// only component that speaks to the Telegram-style update/send HTTP API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	requestTimeout = 30 * time.Second
	pollTimeout    = 10 * time.Second
)

// Update is the subset of a platform update this core cares about.
type Update struct {
	UpdateID int64      `json:"update_id"`
	Message  *UpdateMsg `json:"message,omitempty"`
}

// UpdateMsg is the message payload of an Update.
type UpdateMsg struct {
	Chat From   `json:"chat"`
	Text string `json:"text"`
	From *From  `json:"from,omitempty"`
}

// From carries chat or user identity fields.
type From struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Language  string `json:"language_code,omitempty"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

// Client is the shared platform client. It must be created with New and
// explicitly closed with Close on shutdown.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

// New returns a Client that authenticates with token against baseURL (the
// platform's API root, e.g. "https://api.telegram.org"). A nil log uses
// slog.Default().
func New(baseURL, token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    fmt.Sprintf("%s/bot%s", baseURL, token),
		log:        log,
	}
}

// GetUpdates issues a long-poll GET for updates starting at offset. It fails
// soft: any network error or non-OK platform response is logged and an empty
// slice is returned, never an error, so the poller's loop is never disturbed
// by transient platform trouble.
func (c *Client) GetUpdates(ctx context.Context, offset int) []Update {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))

	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	reqURL := c.baseURL + "/getUpdates?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to build getUpdates request", "err", err)

		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to get updates from platform", "err", err)

		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		c.log.ErrorContext(ctx, "platform returned non-OK status for getUpdates", "status", resp.StatusCode)

		return nil
	}

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.ErrorContext(ctx, "failed to decode getUpdates response", "err", err)

		return nil
	}

	if !parsed.OK {
		c.log.ErrorContext(ctx, "platform API reported an error", "response", parsed)

		return nil
	}

	return parsed.Result
}

// SendMessage posts text to chatID. The caller is responsible for retrying
// on a returned error, per the poller's send-with-backoff policy.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to platform: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform returned status %d for sendMessage", resp.StatusCode) //nolint:err113
	}

	return nil
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

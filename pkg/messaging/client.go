// Package messaging sends SMS through the telephony provider. Credentials
// are per-sending-number: each provisioned number carries its own account
// sid and auth token.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Credentials authenticate a send for one sending number.
type Credentials struct {
	AccountSID string
	AuthToken  string
}

// Message is the provider's acknowledgement of a queued send.
type Message struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Client talks to the SMS provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an SMS client with bounded timeouts.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// Send queues one message. Each recipient is an independent send; callers
// decide how to aggregate per-recipient outcomes.
func (c *Client) Send(ctx context.Context, creds Credentials, from, to, body string) (*Message, error) {
	if creds.AccountSID == "" || creds.AuthToken == "" {
		return nil, fmt.Errorf("missing credentials for sending number %s", from)
	}

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, creds.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	req.SetBasicAuth(creds.AccountSID, creds.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("sms send to %s failed with status %d: %s", to, resp.StatusCode, string(data))
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode send response: %w", err)
	}

	c.logger.Debug().
		Str("to", to).
		Str("message_sid", msg.SID).
		Str("status", msg.Status).
		Msg("SMS queued")

	return &msg, nil
}

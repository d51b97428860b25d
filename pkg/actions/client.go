// Package actions is a thin adapter over the automation-action provider:
// it invokes a pre-built integration action by key with resolved parameters.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// InvokeResult is the provider's response to an action invocation.
type InvokeResult struct {
	Success     bool                   `json:"success"`
	ReturnValue interface{}            `json:"returnValue,omitempty"`
	Exports     map[string]interface{} `json:"exports,omitempty"`
	Logs        []string               `json:"logs,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Client talks to the automation-action provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an action provider client with bounded timeouts.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
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

// Invoke runs the action identified by actionKey with the given parameters.
func (c *Client) Invoke(ctx context.Context, actionKey string, params map[string]interface{}) (*InvokeResult, error) {
	payload, err := json.Marshal(map[string]interface{}{"parameters": params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action parameters: %w", err)
	}

	url := fmt.Sprintf("%s/actions/%s/invoke", c.baseURL, actionKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoke request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action invoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("action %s failed with status %d: %s", actionKey, resp.StatusCode, string(data))
	}

	var result InvokeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode action result: %w", err)
	}

	c.logger.Debug().
		Str("action", actionKey).
		Bool("success", result.Success).
		Dur("duration", time.Since(start)).
		Msg("Action invoked")

	return &result, nil
}

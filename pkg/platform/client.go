// Package platform is a thin adapter over the voice-agent platform's tool
// and assistant operations. Only the operations the lifecycle and call-start
// subsystems depend on are exposed.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned for 404 responses. Delete-side callers treat it
// as already-satisfied; create/update callers must not.
var ErrNotFound = errors.New("platform resource not found")

// StatusError is a non-404 platform failure.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform %s failed with status %d: %s", e.Op, e.Status, e.Body)
}

// ToolRequest is the payload used to create or update a platform tool.
type ToolRequest struct {
	// Type is immutable on the platform and omitted from update payloads.
	Type        string                 `json:"type,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	// ServerURL is the callback address the platform invokes at call time.
	ServerURL string `json:"serverUrl,omitempty"`
	Async     bool   `json:"async,omitempty"`
}

// Assistant is the platform-held assistant view this subsystem reads.
type Assistant struct {
	ID      string   `json:"id"`
	ToolIDs []string `json:"toolIds"`
}

// Client talks to the voice-agent platform.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a platform client with bounded timeouts.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
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
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger,
	}
}

// CreateTool creates the external tool representation and returns its id.
func (c *Client) CreateTool(ctx context.Context, req ToolRequest) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/tool", req, &created, "create tool"); err != nil {
		return "", err
	}

	c.logger.Debug().Str("external_tool_id", created.ID).Msg("Platform tool created")
	return created.ID, nil
}

// UpdateTool updates the external tool in place. The type field is excluded:
// the platform rejects type changes.
func (c *Client) UpdateTool(ctx context.Context, id string, req ToolRequest) error {
	req.Type = ""
	return c.do(ctx, http.MethodPatch, "/tool/"+id, req, nil, "update tool")
}

// DeleteTool deletes the external tool. A 404 surfaces as ErrNotFound so the
// caller can decide whether absence is acceptable.
func (c *Client) DeleteTool(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tool/"+id, nil, nil, "delete tool")
}

// GetAssistant reads an assistant's tool-id list.
func (c *Client) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var assistant Assistant
	if err := c.do(ctx, http.MethodGet, "/assistant/"+id, nil, &assistant, "get assistant"); err != nil {
		return nil, err
	}
	if assistant.ID == "" {
		assistant.ID = id
	}
	return &assistant, nil
}

// UpdateAssistantToolIDs replaces an assistant's tool-id list. This is a
// plain read-modify-write from the caller's perspective; the platform offers
// no compare-and-swap, so callers batch their changes into one update.
func (c *Client) UpdateAssistantToolIDs(ctx context.Context, id string, toolIDs []string) error {
	if toolIDs == nil {
		toolIDs = []string{}
	}
	payload := map[string]interface{}{"toolIds": toolIDs}
	return c.do(ctx, http.MethodPatch, "/assistant/"+id, payload, nil, "update assistant")
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, op string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}

	return nil
}

// Package callcontrol pushes synthesized context into a live call through
// the platform's call-control target. Injection is best-effort: failures are
// for the caller to log, never to propagate into the call.
package callcontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// controlMessage is the wire payload understood by the platform's live-call
// control channel. The message lands as system context, without triggering
// an immediate spoken response.
type controlMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Injector delivers context messages to http(s) or ws(s) control targets.
type Injector struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     zerolog.Logger
}

// NewInjector creates an injector with bounded timeouts.
func NewInjector(logger zerolog.Logger) *Injector {
	return &Injector{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Inject sends text to the control target. The target scheme selects the
// transport: ws/wss dial a control socket, http/https POST the message.
func (i *Injector) Inject(ctx context.Context, controlTarget, text string) error {
	target, err := url.Parse(controlTarget)
	if err != nil {
		return fmt.Errorf("invalid control target: %w", err)
	}

	msg := controlMessage{
		Type:    "add-message",
		Role:    "system",
		Content: text,
	}

	switch target.Scheme {
	case "ws", "wss":
		return i.injectWebSocket(ctx, controlTarget, msg)
	case "http", "https":
		return i.injectHTTP(ctx, controlTarget, msg)
	default:
		return fmt.Errorf("unsupported control target scheme %q", target.Scheme)
	}
}

func (i *Injector) injectHTTP(ctx context.Context, target string, msg controlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("control target returned status %d: %s", resp.StatusCode, string(data))
	}

	i.logger.Debug().Str("target", target).Msg("Context injected over HTTP")
	return nil
}

func (i *Injector) injectWebSocket(ctx context.Context, target string, msg controlMessage) error {
	conn, _, err := i.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to dial control socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write control message: %w", err)
	}

	i.logger.Debug().Str("target", target).Msg("Context injected over WebSocket")
	return nil
}

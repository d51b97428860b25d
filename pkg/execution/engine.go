// Package execution resolves and dispatches single tool invocations at call
// time. Errors never cross this boundary as panics or bare errors: every
// outcome is a typed Result so callers can map to a small set of response
// codes.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/pkg/actions"
	"github.com/voxkit/voxkit/pkg/messaging"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
	"github.com/voxkit/voxkit/pkg/variables"
)

// Kind classifies a failed execution.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidationFailed  Kind = "validation_failed"
	KindNotImplemented    Kind = "not_implemented"
	KindActionFailed      Kind = "action_execution_failed"
	KindMessagingFailed   Kind = "messaging_failed"
	KindPersistenceFailed Kind = "persistence_failed"
)

// Result is the outcome of one tool execution.
type Result struct {
	Success bool                   `json:"success"`
	Result  interface{}            `json:"result,omitempty"`
	Exports map[string]interface{} `json:"exports,omitempty"`
	Logs    []string               `json:"logs,omitempty"`
	Error   string                 `json:"error,omitempty"`

	// ErrorKind is set iff Success is false.
	ErrorKind Kind `json:"-"`
}

func failure(kind Kind, format string, args ...interface{}) *Result {
	return &Result{Success: false, ErrorKind: kind, Error: fmt.Sprintf(format, args...)}
}

// Store is the slice of the tool store the engine reads from. Satisfied by
// *toolstore.Store.
type Store interface {
	GetTool(ctx context.Context, id string) (*toolstore.Tool, error)
	GetPhoneNumber(ctx context.Context, id string) (*toolstore.PhoneNumber, error)
	GetPhoneNumberByNumber(ctx context.Context, orgID, number string) (*toolstore.PhoneNumber, error)
}

// ActionInvoker runs automation actions. Satisfied by *actions.Client.
type ActionInvoker interface {
	Invoke(ctx context.Context, actionKey string, params map[string]interface{}) (*actions.InvokeResult, error)
}

// MessageSender queues SMS messages. Satisfied by *messaging.Client.
type MessageSender interface {
	Send(ctx context.Context, creds messaging.Credentials, from, to, body string) (*messaging.Message, error)
}

// Engine executes tools.
type Engine struct {
	store   Store
	actions ActionInvoker
	sms     MessageSender
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an execution engine.
func NewEngine(store Store, invoker ActionInvoker, sender MessageSender, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		actions: invoker,
		sms:     sender,
		logger:  logger,
		metrics: m,
	}
}

// Execute loads a tool, validates the AI-provided parameters against its
// function schema and dispatches to the handler for its type.
//
// Variable substitution applies to the tool's static config only, never to
// the raw AI-provided parameters.
func (e *Engine) Execute(ctx context.Context, toolID string, aiParams map[string]interface{}, vars variables.Context) *Result {
	tool, err := e.store.GetTool(ctx, toolID)
	if err != nil {
		if errors.Is(err, toolstore.ErrNotFound) {
			e.count("unknown", "error")
			return failure(KindNotFound, "tool %s not found", toolID)
		}
		e.count("unknown", "error")
		return failure(KindPersistenceFailed, "failed to load tool: %v", err)
	}

	if aiParams == nil {
		aiParams = map[string]interface{}{}
	}
	delete(aiParams, toolconfig.DummyField)

	if err := toolconfig.ValidateParams(tool.FunctionSchema, aiParams); err != nil {
		e.count(string(tool.Type), "error")
		return failure(KindValidationFailed, "invalid parameters: %v", err)
	}

	start := time.Now()
	var result *Result

	switch tool.Type {
	case toolconfig.TypeAutomationAction:
		result = e.executeAction(ctx, tool, aiParams, vars)
	case toolconfig.TypeSMS:
		result = e.executeSMS(ctx, tool, aiParams, vars)
	default:
		result = failure(KindNotImplemented, "tool type %s has no execution handler", tool.Type)
	}

	duration := time.Since(start)
	status := "success"
	if !result.Success {
		status = "error"
	}
	e.count(string(tool.Type), status)
	e.metrics.ToolExecutionDuration.WithLabelValues(string(tool.Type)).Observe(duration.Seconds())

	e.logger.Info().
		Str("tool_id", tool.ID).
		Str("tool_type", string(tool.Type)).
		Str("call_id", vars.CallID).
		Bool("success", result.Success).
		Dur("duration", duration).
		Msg("Tool executed")

	return result
}

func (e *Engine) count(toolType, status string) {
	e.metrics.ToolExecutionsTotal.WithLabelValues(toolType, status).Inc()
}

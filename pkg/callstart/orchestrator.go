// Package callstart runs every call-start-flagged tool for an agent when a
// call begins and pushes the aggregated results into the live call as system
// context. The whole run is best-effort: nothing here may fail the call.
package callstart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/pkg/execution"
	"github.com/voxkit/voxkit/pkg/platform"
	"github.com/voxkit/voxkit/pkg/toolstore"
	"github.com/voxkit/voxkit/pkg/variables"
)

// Store is the slice of the tool store the orchestrator reads from.
// Satisfied by *toolstore.Store.
type Store interface {
	GetAgent(ctx context.Context, id string) (*toolstore.Agent, error)
	CallStartTools(ctx context.Context, agentID string, externalToolIDs []string) ([]*toolstore.Tool, error)
}

// AssistantReader fetches an assistant's current external tool-id list.
// Satisfied by *platform.Client.
type AssistantReader interface {
	GetAssistant(ctx context.Context, id string) (*platform.Assistant, error)
}

// ExecutionRunner runs one tool. Satisfied by *execution.Engine.
type ExecutionRunner interface {
	Execute(ctx context.Context, toolID string, aiParams map[string]interface{}, vars variables.Context) *execution.Result
}

// ContextInjector pushes text into the live call. Satisfied by
// *callcontrol.Injector.
type ContextInjector interface {
	Inject(ctx context.Context, controlTarget, text string) error
}

// CallInfo identifies the call being started.
type CallInfo struct {
	AgentID           string
	CallID            string
	CallerPhoneNumber string
	CalledPhoneNumber string
	ControlURL        string
}

// Orchestrator runs call-start tools.
type Orchestrator struct {
	store    Store
	platform AssistantReader
	engine   ExecutionRunner
	injector ContextInjector
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewOrchestrator creates a call-start orchestrator.
func NewOrchestrator(store Store, assistants AssistantReader, engine ExecutionRunner, injector ContextInjector, logger zerolog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		store:    store,
		platform: assistants,
		engine:   engine,
		injector: injector,
		logger:   logger,
		metrics:  m,
	}
}

// Run executes every call-start tool attached to the call's agent and, when
// at least one produced a result, injects one synthesized context message
// into the call. Run never returns an error: every failure is logged and
// absorbed.
func (o *Orchestrator) Run(ctx context.Context, info CallInfo) {
	o.metrics.CallStartRunsTotal.Inc()

	log := o.logger.With().
		Str("agent_id", info.AgentID).
		Str("call_id", info.CallID).
		Logger()

	agent, err := o.store.GetAgent(ctx, info.AgentID)
	if err != nil {
		if errors.Is(err, toolstore.ErrNotFound) {
			log.Warn().Msg("Call-start run skipped: agent not found")
		} else {
			log.Error().Err(err).Msg("Call-start run skipped: failed to load agent")
		}
		return
	}
	if agent.AssistantID == "" {
		log.Debug().Msg("Call-start run skipped: agent has no platform assistant")
		return
	}

	// The platform list is one of two attachment sources; losing it only
	// narrows the candidate set.
	var externalToolIDs []string
	if assistant, getErr := o.platform.GetAssistant(ctx, agent.AssistantID); getErr != nil {
		log.Warn().Err(getErr).Msg("Failed to fetch assistant tool list, using local attachments only")
	} else {
		externalToolIDs = assistant.ToolIDs
	}

	tools, err := o.store.CallStartTools(ctx, info.AgentID, externalToolIDs)
	if err != nil {
		log.Error().Err(err).Msg("Failed to select call-start tools")
		return
	}
	if len(tools) == 0 {
		return
	}

	vars := variables.Context{
		CallerPhoneNumber: info.CallerPhoneNumber,
		CalledPhoneNumber: info.CalledPhoneNumber,
		CallID:            info.CallID,
	}

	var sections []string
	for _, tool := range tools {
		result := o.engine.Execute(ctx, tool.ID, map[string]interface{}{}, vars)
		if !result.Success {
			log.Warn().
				Str("tool_id", tool.ID).
				Str("error", result.Error).
				Msg("Call-start tool failed")
			continue
		}
		if section := renderSection(tool.Label, result); section != "" {
			sections = append(sections, section)
		}
	}

	if len(sections) == 0 {
		log.Debug().Int("tools", len(tools)).Msg("No call-start tool produced context")
		return
	}

	text := "Context gathered before this call:\n" + strings.Join(sections, "\n")
	if info.ControlURL == "" {
		log.Warn().Msg("Context gathered but call has no control target")
		return
	}

	if err := o.injector.Inject(ctx, info.ControlURL, text); err != nil {
		o.metrics.ContextInjectionsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Context injection failed")
		return
	}
	o.metrics.ContextInjectionsTotal.WithLabelValues("success").Inc()
	log.Info().Int("tools", len(sections)).Msg("Context injected into call")
}

// renderSection formats one successful tool result as a labelled line.
func renderSection(label string, result *execution.Result) string {
	if result.Result == nil && len(result.Exports) == 0 {
		return ""
	}

	payload := result.Result
	if payload == nil {
		payload = result.Exports
	}
	rendered, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("- %s: %s", label, string(rendered))
}

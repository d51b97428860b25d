// Package lifecycle keeps tool records consistent across the local store
// and the voice-agent platform. Every operation either completes on both
// systems or leaves them in the pre-operation state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/pkg/platform"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
)

// Store is the slice of the tool store this manager uses. Satisfied by
// *toolstore.Store.
type Store interface {
	CreateTool(ctx context.Context, tool *toolstore.Tool) error
	GetTool(ctx context.Context, id string) (*toolstore.Tool, error)
	UpdateTool(ctx context.Context, tool *toolstore.Tool) error
	DeleteTool(ctx context.Context, id string) error
	ListTools(ctx context.Context, orgID string) ([]*toolstore.Tool, error)
	NameTaken(ctx context.Context, orgID, name, excludeID string) (bool, error)
	GetAgent(ctx context.Context, id string) (*toolstore.Agent, error)
	ListAgents(ctx context.Context, orgID string) ([]*toolstore.Agent, error)
	AttachLocal(ctx context.Context, agentID, toolID string) error
	DetachLocal(ctx context.Context, agentID, toolID string) error
	IsAttachedLocally(ctx context.Context, agentID, toolID string) (bool, error)
	DeleteLocalAttachmentsForTool(ctx context.Context, toolID string) error
}

// PlatformAPI is the slice of the voice-agent platform this manager uses.
type PlatformAPI interface {
	CreateTool(ctx context.Context, req platform.ToolRequest) (string, error)
	UpdateTool(ctx context.Context, id string, req platform.ToolRequest) error
	DeleteTool(ctx context.Context, id string) error
	GetAssistant(ctx context.Context, id string) (*platform.Assistant, error)
	UpdateAssistantToolIDs(ctx context.Context, id string, toolIDs []string) error
}

// Manager orchestrates tool create/update/delete/attach/detach.
type Manager struct {
	store        Store
	platform     PlatformAPI
	callbackBase string
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewManager creates a lifecycle manager. callbackBase is the externally
// reachable address embedded into platform tool definitions.
func NewManager(store Store, platformAPI PlatformAPI, callbackBase string, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		store:        store,
		platform:     platformAPI,
		callbackBase: callbackBase,
		logger:       logger,
		metrics:      m,
	}
}

func (m *Manager) callbackURL(toolID string) string {
	return fmt.Sprintf("%s/v1/tools/%s/execute", m.callbackBase, toolID)
}

func (m *Manager) record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.LifecycleOpsTotal.WithLabelValues(op, status).Inc()
}

// Create validates, names and persists a new tool. For attachable tools the
// platform representation is created first; a local insert failure deletes
// it again so no orphan remains.
func (m *Manager) Create(ctx context.Context, orgID string, cfg toolconfig.Config) (tool *toolstore.Tool, err error) {
	defer func() { m.record("create", err) }()

	if err = toolconfig.Validate(cfg); err != nil {
		return nil, err
	}

	name, err := toolconfig.GenerateToolName(cfg.Label, func(candidate string) (bool, error) {
		return m.store.NameTaken(ctx, orgID, candidate, "")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	tool = &toolstore.Tool{
		ID:                 uuid.NewString(),
		OrganizationID:     orgID,
		Type:               cfg.Type,
		Name:               name,
		Label:              cfg.Label,
		Description:        cfg.Description,
		FunctionSchema:     toolconfig.BuildFunctionSchema(cfg),
		StaticConfig:       toolconfig.BuildStaticConfig(cfg),
		Config:             cfg,
		Async:              cfg.Async,
		ExecuteOnCallStart: cfg.ExecuteOnCallStart,
		AttachToAgent:      cfg.Attachable(),
	}

	if !tool.AttachToAgent {
		// Preemptive-only tool: no platform representation at all.
		if err = m.store.CreateTool(ctx, tool); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		m.logger.Info().Str("tool_id", tool.ID).Str("name", tool.Name).Msg("Tool created (local only)")
		return tool, nil
	}

	steps := []sagaStep{
		{
			name: "create platform tool",
			run: func(ctx context.Context) error {
				externalID, createErr := m.platform.CreateTool(ctx, m.toolRequest(tool))
				if createErr != nil {
					return fmt.Errorf("%w: %v", ErrExternalCreate, createErr)
				}
				tool.ExternalToolID = externalID
				return nil
			},
			compensate: func(ctx context.Context) error {
				deleteErr := m.platform.DeleteTool(ctx, tool.ExternalToolID)
				if errors.Is(deleteErr, platform.ErrNotFound) {
					return nil
				}
				return deleteErr
			},
		},
		{
			name: "persist tool",
			run: func(ctx context.Context) error {
				if persistErr := m.store.CreateTool(ctx, tool); persistErr != nil {
					return fmt.Errorf("%w: %v", ErrPersistence, persistErr)
				}
				return nil
			},
		},
	}

	if err = m.runSaga(ctx, "create", steps); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("tool_id", tool.ID).
		Str("name", tool.Name).
		Str("external_tool_id", tool.ExternalToolID).
		Msg("Tool created")

	return tool, nil
}

// Update re-validates and persists a changed configuration, transitioning
// the platform representation according to the previous and new
// attach-to-agent mode. The local record is written last.
func (m *Manager) Update(ctx context.Context, orgID, toolID string, cfg toolconfig.Config) (tool *toolstore.Tool, err error) {
	defer func() { m.record("update", err) }()

	tool, err = m.loadOwned(ctx, orgID, toolID)
	if err != nil {
		return nil, err
	}

	if err = toolconfig.Validate(cfg); err != nil {
		return nil, err
	}

	name := tool.Name
	if cfg.Label != tool.Label {
		name, err = toolconfig.GenerateToolName(cfg.Label, func(candidate string) (bool, error) {
			return m.store.NameTaken(ctx, orgID, candidate, tool.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	wasAttachable := tool.AttachToAgent
	previousExternalID := tool.ExternalToolID

	tool.Name = name
	tool.Label = cfg.Label
	tool.Description = cfg.Description
	tool.FunctionSchema = toolconfig.BuildFunctionSchema(cfg)
	tool.StaticConfig = toolconfig.BuildStaticConfig(cfg)
	tool.Config = cfg
	tool.Async = cfg.Async
	tool.ExecuteOnCallStart = cfg.ExecuteOnCallStart
	tool.AttachToAgent = cfg.Attachable()

	var externalStep sagaStep

	switch {
	case !wasAttachable && tool.AttachToAgent:
		// The tool had no platform representation; create one now.
		externalStep = sagaStep{
			name: "create platform tool",
			run: func(ctx context.Context) error {
				externalID, createErr := m.platform.CreateTool(ctx, m.toolRequest(tool))
				if createErr != nil {
					return fmt.Errorf("%w: %v", ErrExternalCreate, createErr)
				}
				tool.ExternalToolID = externalID
				return nil
			},
			compensate: func(ctx context.Context) error {
				deleteErr := m.platform.DeleteTool(ctx, tool.ExternalToolID)
				if errors.Is(deleteErr, platform.ErrNotFound) {
					return nil
				}
				return deleteErr
			},
		}

	case wasAttachable && !tool.AttachToAgent:
		externalStep = sagaStep{
			name: "delete platform tool",
			run: func(ctx context.Context) error {
				if previousExternalID == "" {
					return nil
				}
				deleteErr := m.platform.DeleteTool(ctx, previousExternalID)
				if deleteErr != nil && !errors.Is(deleteErr, platform.ErrNotFound) {
					return fmt.Errorf("%w: %v", ErrExternalDelete, deleteErr)
				}
				tool.ExternalToolID = ""
				return nil
			},
		}

	case wasAttachable && tool.AttachToAgent && previousExternalID == "":
		// Inconsistent state: the record claims attachability but lost its
		// platform representation. Repair by creating one.
		externalStep = sagaStep{
			name: "repair platform tool",
			run: func(ctx context.Context) error {
				externalID, createErr := m.platform.CreateTool(ctx, m.toolRequest(tool))
				if createErr != nil {
					return fmt.Errorf("%w: %v", ErrExternalCreate, createErr)
				}
				tool.ExternalToolID = externalID
				return nil
			},
			compensate: func(ctx context.Context) error {
				deleteErr := m.platform.DeleteTool(ctx, tool.ExternalToolID)
				if errors.Is(deleteErr, platform.ErrNotFound) {
					return nil
				}
				return deleteErr
			},
		}

	case wasAttachable && tool.AttachToAgent:
		externalStep = sagaStep{
			name: "update platform tool",
			run: func(ctx context.Context) error {
				if updateErr := m.platform.UpdateTool(ctx, tool.ExternalToolID, m.toolRequest(tool)); updateErr != nil {
					return fmt.Errorf("%w: %v", ErrExternalUpdate, updateErr)
				}
				return nil
			},
		}

	default:
		// false -> false: no external operation.
		externalStep = sagaStep{name: "no external change", run: func(context.Context) error { return nil }}
	}

	steps := []sagaStep{
		externalStep,
		{
			name: "persist tool",
			run: func(ctx context.Context) error {
				if persistErr := m.store.UpdateTool(ctx, tool); persistErr != nil {
					return fmt.Errorf("%w: %v", ErrPersistence, persistErr)
				}
				return nil
			},
		},
	}

	if err = m.runSaga(ctx, "update", steps); err != nil {
		return nil, err
	}

	m.logger.Info().Str("tool_id", tool.ID).Str("name", tool.Name).Msg("Tool updated")
	return tool, nil
}

// Delete removes a tool from every agent it is attached to, from the
// platform, and from the local store, in that order. Platform 404s are
// treated as already satisfied so retries converge.
func (m *Manager) Delete(ctx context.Context, orgID, toolID string) (err error) {
	defer func() { m.record("delete", err) }()

	tool, err := m.loadOwned(ctx, orgID, toolID)
	if err != nil {
		return err
	}

	// Phase 1: platform attachments. One read-modify-write per agent, with
	// all removals for that agent batched into a single list update.
	if tool.ExternalToolID != "" {
		agents, listErr := m.store.ListAgents(ctx, orgID)
		if listErr != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, listErr)
		}

		for _, agent := range agents {
			if agent.AssistantID == "" {
				continue
			}
			if detachErr := m.removeFromAssistant(ctx, agent.AssistantID, tool.ExternalToolID); detachErr != nil {
				return detachErr
			}
		}
	}

	// Phase 2: local attachments.
	if err = m.store.DeleteLocalAttachmentsForTool(ctx, toolID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Phase 3: the platform tool itself.
	if tool.ExternalToolID != "" {
		deleteErr := m.platform.DeleteTool(ctx, tool.ExternalToolID)
		if deleteErr != nil && !errors.Is(deleteErr, platform.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrExternalDelete, deleteErr)
		}
	}

	// Phase 4: the local record. Remaining attachment rows cascade.
	if err = m.store.DeleteTool(ctx, toolID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	m.logger.Info().Str("tool_id", toolID).Str("name", tool.Name).Msg("Tool deleted")
	return nil
}

// removeFromAssistant drops one external tool id from an assistant's list.
// Absent assistants and absent list entries are already satisfied.
func (m *Manager) removeFromAssistant(ctx context.Context, assistantID, externalToolID string) error {
	assistant, err := m.platform.GetAssistant(ctx, assistantID)
	if errors.Is(err, platform.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalDelete, err)
	}

	filtered := make([]string, 0, len(assistant.ToolIDs))
	for _, id := range assistant.ToolIDs {
		if id != externalToolID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == len(assistant.ToolIDs) {
		return nil
	}

	err = m.platform.UpdateAssistantToolIDs(ctx, assistantID, filtered)
	if errors.Is(err, platform.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalDelete, err)
	}
	return nil
}

// Attach wires a tool to an agent through the mechanism selected by the
// tool's attach-to-agent flag.
func (m *Manager) Attach(ctx context.Context, orgID, agentID, toolID string) (err error) {
	defer func() { m.record("attach", err) }()

	tool, err := m.loadOwned(ctx, orgID, toolID)
	if err != nil {
		return err
	}
	agent, err := m.loadOwnedAgent(ctx, orgID, agentID)
	if err != nil {
		return err
	}

	locallyAttached, err := m.store.IsAttachedLocally(ctx, agentID, toolID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if locallyAttached {
		return ErrAlreadyAttached
	}

	if !tool.AttachToAgent {
		if !tool.ExecuteOnCallStart {
			return fmt.Errorf("%w: tool is not attachable and does not run on call start", ErrInvalidAttachmentMode)
		}
		if attachErr := m.store.AttachLocal(ctx, agentID, toolID); attachErr != nil {
			if errors.Is(attachErr, toolstore.ErrDuplicate) {
				return ErrAlreadyAttached
			}
			return fmt.Errorf("%w: %v", ErrPersistence, attachErr)
		}
		m.logger.Info().Str("tool_id", toolID).Str("agent_id", agentID).Msg("Tool attached locally")
		return nil
	}

	if tool.ExternalToolID == "" {
		return ErrMissingExternalID
	}
	if agent.AssistantID == "" {
		return fmt.Errorf("%w: agent has no platform assistant", ErrInvalidAttachmentMode)
	}

	assistant, err := m.platform.GetAssistant(ctx, agent.AssistantID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalUpdate, err)
	}
	for _, id := range assistant.ToolIDs {
		if id == tool.ExternalToolID {
			return ErrAlreadyAttached
		}
	}

	updated := append(append([]string{}, assistant.ToolIDs...), tool.ExternalToolID)
	if err = m.platform.UpdateAssistantToolIDs(ctx, agent.AssistantID, updated); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalUpdate, err)
	}

	m.logger.Info().Str("tool_id", toolID).Str("agent_id", agentID).Msg("Tool attached on platform")
	return nil
}

// Detach is the mirror of Attach. It converges: detaching an already
// detached pair succeeds, and platform 404s are already satisfied.
func (m *Manager) Detach(ctx context.Context, orgID, agentID, toolID string) (err error) {
	defer func() { m.record("detach", err) }()

	tool, err := m.loadOwned(ctx, orgID, toolID)
	if err != nil {
		return err
	}
	agent, err := m.loadOwnedAgent(ctx, orgID, agentID)
	if err != nil {
		return err
	}

	if !tool.AttachToAgent {
		detachErr := m.store.DetachLocal(ctx, agentID, toolID)
		if detachErr != nil && !errors.Is(detachErr, toolstore.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrPersistence, detachErr)
		}
		m.logger.Info().Str("tool_id", toolID).Str("agent_id", agentID).Msg("Tool detached locally")
		return nil
	}

	if tool.ExternalToolID == "" || agent.AssistantID == "" {
		return nil
	}
	if err = m.removeFromAssistant(ctx, agent.AssistantID, tool.ExternalToolID); err != nil {
		return err
	}

	m.logger.Info().Str("tool_id", toolID).Str("agent_id", agentID).Msg("Tool detached on platform")
	return nil
}

// Get returns an organization's tool.
func (m *Manager) Get(ctx context.Context, orgID, toolID string) (*toolstore.Tool, error) {
	return m.loadOwned(ctx, orgID, toolID)
}

// List returns every tool owned by the organization.
func (m *Manager) List(ctx context.Context, orgID string) ([]*toolstore.Tool, error) {
	tools, err := m.store.ListTools(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return tools, nil
}

func (m *Manager) loadOwned(ctx context.Context, orgID, toolID string) (*toolstore.Tool, error) {
	tool, err := m.store.GetTool(ctx, toolID)
	if err != nil {
		if errors.Is(err, toolstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if tool.OrganizationID != orgID {
		return nil, ErrUnauthorized
	}
	return tool, nil
}

func (m *Manager) loadOwnedAgent(ctx context.Context, orgID, agentID string) (*toolstore.Agent, error) {
	agent, err := m.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, toolstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if agent.OrganizationID != orgID {
		return nil, ErrUnauthorized
	}
	return agent, nil
}

func (m *Manager) toolRequest(tool *toolstore.Tool) platform.ToolRequest {
	return platform.ToolRequest{
		Type:        "function",
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  tool.FunctionSchema,
		ServerURL:   m.callbackURL(tool.ID),
		Async:       tool.Async,
	}
}

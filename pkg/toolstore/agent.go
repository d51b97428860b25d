package toolstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Agent is the locally persisted agent record. AssistantID identifies the
// agent on the voice-agent platform and is empty for draft agents.
type Agent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	AssistantID    string    `json:"assistant_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateAgent inserts a new agent record.
func (s *Store) CreateAgent(ctx context.Context, agent *Agent) error {
	agent.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, organization_id, name, assistant_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		agent.ID, agent.OrganizationID, agent.Name, nullable(agent.AssistantID), agent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// GetAgent loads an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var (
		agent       Agent
		assistantID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, assistant_id, created_at FROM agents WHERE id = ?`, id,
	).Scan(&agent.ID, &agent.OrganizationID, &agent.Name, &assistantID, &agent.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}
	agent.AssistantID = assistantID.String
	return &agent, nil
}

// ListAgents returns every agent in the organization.
func (s *Store) ListAgents(ctx context.Context, orgID string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, assistant_id, created_at
		FROM agents WHERE organization_id = ? ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []*Agent{}
	for rows.Next() {
		var (
			agent       Agent
			assistantID sql.NullString
		)
		if err := rows.Scan(&agent.ID, &agent.OrganizationID, &agent.Name, &assistantID, &agent.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agent.AssistantID = assistantID.String
		agents = append(agents, &agent)
	}
	return agents, rows.Err()
}

// AttachLocal inserts a local agent-tool join row. Returns ErrDuplicate if
// the pair is already attached.
func (s *Store) AttachLocal(ctx context.Context, agentID, toolID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_tools (agent_id, tool_id) VALUES (?, ?)`, agentID, toolID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// DetachLocal removes a local agent-tool join row.
func (s *Store) DetachLocal(ctx context.Context, agentID, toolID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_tools WHERE agent_id = ? AND tool_id = ?`, agentID, toolID)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsAttachedLocally reports whether a local join row exists for the pair.
func (s *Store) IsAttachedLocally(ctx context.Context, agentID, toolID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_tools WHERE agent_id = ? AND tool_id = ?`,
		agentID, toolID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check attachment: %w", err)
	}
	return count > 0, nil
}

// ListLocalAttachments returns the agent ids locally attached to a tool.
func (s *Store) ListLocalAttachments(ctx context.Context, toolID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id FROM agent_tools WHERE tool_id = ?`, toolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	agentIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		agentIDs = append(agentIDs, id)
	}
	return agentIDs, rows.Err()
}

// DeleteLocalAttachmentsForTool removes every local join row for a tool.
func (s *Store) DeleteLocalAttachmentsForTool(ctx context.Context, toolID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_tools WHERE tool_id = ?`, toolID); err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	return nil
}

package toolstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voxkit/voxkit/pkg/toolconfig"
)

// Tool is the locally persisted tool record.
type Tool struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`

	Type        toolconfig.ToolType `json:"type"`
	Name        string              `json:"name"`
	Label       string              `json:"label"`
	Description string              `json:"description"`

	FunctionSchema map[string]interface{} `json:"function_schema"`
	StaticConfig   map[string]interface{} `json:"static_config"`
	Config         toolconfig.Config      `json:"config_metadata"`

	Async              bool `json:"async"`
	ExecuteOnCallStart bool `json:"execute_on_call_start"`
	AttachToAgent      bool `json:"attach_to_agent"`

	// ExternalToolID is empty unless the tool is represented on the
	// voice-agent platform.
	ExternalToolID string `json:"external_tool_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const toolColumns = `id, organization_id, type, name, label, description,
	function_schema, static_config, config_metadata,
	async, execute_on_call_start, attach_to_agent, external_tool_id,
	created_at, updated_at`

// CreateTool inserts a new tool record.
func (s *Store) CreateTool(ctx context.Context, tool *Tool) error {
	schemaJSON, staticJSON, configJSON, err := marshalToolJSON(tool)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	tool.CreatedAt = now
	tool.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tools (id, organization_id, type, name, label, description,
			function_schema, static_config, config_metadata,
			async, execute_on_call_start, attach_to_agent, external_tool_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tool.ID, tool.OrganizationID, string(tool.Type), tool.Name, tool.Label, tool.Description,
		schemaJSON, staticJSON, configJSON,
		tool.Async, tool.ExecuteOnCallStart, tool.AttachToAgent, nullable(tool.ExternalToolID),
		tool.CreatedAt, tool.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tool %q: %w", tool.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert tool: %w", err)
	}

	s.logger.Debug().Str("tool_id", tool.ID).Str("name", tool.Name).Msg("Tool created")
	return nil
}

// GetTool loads a tool by id.
func (s *Store) GetTool(ctx context.Context, id string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = ?`, id)
	return scanTool(row)
}

// GetToolByExternalID loads a tool by its platform id.
func (s *Store) GetToolByExternalID(ctx context.Context, externalID string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE external_tool_id = ?`, externalID)
	return scanTool(row)
}

// NameTaken reports whether a tool name is already used in the organization.
// excludeID skips the tool's own row during updates.
func (s *Store) NameTaken(ctx context.Context, orgID, name, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tools WHERE organization_id = ? AND name = ? AND id != ?`,
		orgID, name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tool name: %w", err)
	}
	return count > 0, nil
}

// UpdateTool persists every mutable field of a tool record.
func (s *Store) UpdateTool(ctx context.Context, tool *Tool) error {
	schemaJSON, staticJSON, configJSON, err := marshalToolJSON(tool)
	if err != nil {
		return err
	}

	tool.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tools SET name = ?, label = ?, description = ?,
			function_schema = ?, static_config = ?, config_metadata = ?,
			async = ?, execute_on_call_start = ?, attach_to_agent = ?,
			external_tool_id = ?, updated_at = ?
		WHERE id = ?`,
		tool.Name, tool.Label, tool.Description,
		schemaJSON, staticJSON, configJSON,
		tool.Async, tool.ExecuteOnCallStart, tool.AttachToAgent,
		nullable(tool.ExternalToolID), tool.UpdatedAt,
		tool.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tool %q: %w", tool.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update tool: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tool: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteTool removes a tool record. Attachment rows cascade.
func (s *Store) DeleteTool(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug().Str("tool_id", id).Msg("Tool deleted")
	return nil
}

// ListTools returns every tool owned by the organization.
func (s *Store) ListTools(ctx context.Context, orgID string) ([]*Tool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+toolColumns+` FROM tools WHERE organization_id = ? ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	return scanTools(rows)
}

// CallStartTools returns every tool flagged for on-call-start execution that
// is reachable from the agent: locally attached, or platform-attached via
// one of the given external tool ids.
func (s *Store) CallStartTools(ctx context.Context, agentID string, externalToolIDs []string) ([]*Tool, error) {
	query := `
		SELECT ` + toolColumns + ` FROM tools
		WHERE execute_on_call_start = 1
		AND (id IN (SELECT tool_id FROM agent_tools WHERE agent_id = ?)`

	args := []interface{}{agentID}
	if len(externalToolIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(externalToolIDs)), ",")
		query += ` OR external_tool_id IN (` + placeholders + `)`
		for _, id := range externalToolIDs {
			args = append(args, id)
		}
	}
	query += `) ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select call-start tools: %w", err)
	}
	defer rows.Close()

	return scanTools(rows)
}

func marshalToolJSON(tool *Tool) (string, string, string, error) {
	schemaJSON, err := json.Marshal(tool.FunctionSchema)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal function schema: %w", err)
	}
	staticJSON, err := json.Marshal(tool.StaticConfig)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal static config: %w", err)
	}
	configJSON, err := json.Marshal(tool.Config)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal config metadata: %w", err)
	}
	return string(schemaJSON), string(staticJSON), string(configJSON), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTool(row rowScanner) (*Tool, error) {
	var (
		tool       Tool
		toolType   string
		schemaJSON string
		staticJSON string
		configJSON string
		externalID sql.NullString
	)

	err := row.Scan(
		&tool.ID, &tool.OrganizationID, &toolType, &tool.Name, &tool.Label, &tool.Description,
		&schemaJSON, &staticJSON, &configJSON,
		&tool.Async, &tool.ExecuteOnCallStart, &tool.AttachToAgent, &externalID,
		&tool.CreatedAt, &tool.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tool: %w", err)
	}

	tool.Type = toolconfig.ToolType(toolType)
	tool.ExternalToolID = externalID.String

	if err := json.Unmarshal([]byte(schemaJSON), &tool.FunctionSchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal function schema: %w", err)
	}
	if err := json.Unmarshal([]byte(staticJSON), &tool.StaticConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal static config: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &tool.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config metadata: %w", err)
	}

	return &tool, nil
}

func scanTools(rows *sql.Rows) ([]*Tool, error) {
	tools := []*Tool{}
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Package toolstore persists tool records, agents, local agent-tool
// attachments and SMS sending numbers in sqlite.
package toolstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("record already exists")

// Store wraps the sqlite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and migrates) the store at the given path. Use ":memory:"
// for tests.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL improves concurrent read behaviour for the live service; it is a
	// no-op for in-memory databases.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tools (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		label TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		function_schema TEXT NOT NULL DEFAULT '{}',
		static_config TEXT NOT NULL DEFAULT '{}',
		config_metadata TEXT NOT NULL DEFAULT '{}',
		async INTEGER NOT NULL DEFAULT 0,
		execute_on_call_start INTEGER NOT NULL DEFAULT 0,
		attach_to_agent INTEGER NOT NULL DEFAULT 1,
		external_tool_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(organization_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_tools_org ON tools(organization_id);
	CREATE INDEX IF NOT EXISTS idx_tools_external ON tools(external_tool_id);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		assistant_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS agent_tools (
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		tool_id TEXT NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (agent_id, tool_id)
	);

	CREATE TABLE IF NOT EXISTS phone_numbers (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		number TEXT NOT NULL,
		account_sid TEXT NOT NULL,
		auth_token TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		UNIQUE(organization_id, number)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	s.logger.Debug().Msg("Store schema initialized")
	return nil
}

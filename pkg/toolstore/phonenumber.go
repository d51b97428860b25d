package toolstore

import (
	"context"
	"database/sql"
	"fmt"
)

// PhoneNumber is a provisioned sending number with its provider credentials.
type PhoneNumber struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Number         string `json:"number"`
	AccountSID     string `json:"account_sid"`
	AuthToken      string `json:"-"`
	Label          string `json:"label"`
}

// CreatePhoneNumber inserts a sending number record.
func (s *Store) CreatePhoneNumber(ctx context.Context, pn *PhoneNumber) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phone_numbers (id, organization_id, number, account_sid, auth_token, label)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pn.ID, pn.OrganizationID, pn.Number, pn.AccountSID, pn.AuthToken, pn.Label,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert phone number: %w", err)
	}
	return nil
}

// GetPhoneNumber loads a sending number by id.
func (s *Store) GetPhoneNumber(ctx context.Context, id string) (*PhoneNumber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, number, account_sid, auth_token, label
		FROM phone_numbers WHERE id = ?`, id)
	return scanPhoneNumber(row)
}

// GetPhoneNumberByNumber loads the organization's sending number matching
// the dialed number. Used by "send from the number that was called".
func (s *Store) GetPhoneNumberByNumber(ctx context.Context, orgID, number string) (*PhoneNumber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, number, account_sid, auth_token, label
		FROM phone_numbers WHERE organization_id = ? AND number = ?`, orgID, number)
	return scanPhoneNumber(row)
}

func scanPhoneNumber(row rowScanner) (*PhoneNumber, error) {
	var pn PhoneNumber
	err := row.Scan(&pn.ID, &pn.OrganizationID, &pn.Number, &pn.AccountSID, &pn.AuthToken, &pn.Label)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan phone number: %w", err)
	}
	return &pn, nil
}

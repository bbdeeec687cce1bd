package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// ContactStore persists external identities. Satisfies
// internal/inbound.ContactStore. Contact carries no Channel column of its
// own -- FindByChannel's channel argument is accepted for interface
// conformance but unused, matching internal/inbound.MemoryContactStore's
// documented assumption that ExternalID/Phone/Email already disambiguate
// origin within a project.
type ContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *ContactStore { return &ContactStore{db: db} }

func (s *ContactStore) FindByChannel(ctx context.Context, projectID, channel, senderIdentifier string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, phone, email, external_id, name, language, role, metadata
		 FROM contacts
		 WHERE project_id=$1 AND (external_id=$2 OR phone=$2 OR email=$2)`,
		projectID, senderIdentifier,
	)
	contact, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find contact: %w", err)
	}
	return contact, nil
}

func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	meta, err := json.Marshal(contact.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal contact metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, project_id, phone, email, external_id, name, language, role, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		contact.ID, contact.ProjectID, contact.Phone, contact.Email, contact.ExternalID,
		contact.Name, contact.Language, contact.Role, meta,
	)
	if err != nil {
		return fmt.Errorf("store: create contact: %w", err)
	}
	return nil
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var c models.Contact
	var meta []byte
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Phone, &c.Email, &c.ExternalID, &c.Name, &c.Language, &c.Role, &meta); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal contact metadata: %w", err)
		}
	}
	return &c, nil
}

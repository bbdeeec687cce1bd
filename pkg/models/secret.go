package models

import "time"

// Secret is a per-project AEAD-encrypted value. Plaintext is never persisted;
// EncryptedValue/IV/AuthTag form the AES-256-GCM envelope.
type Secret struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Key            string    `json:"key"`
	EncryptedValue string    `json:"encrypted_value"` // hex
	IV             string    `json:"iv"`               // hex(24)
	AuthTag        string    `json:"auth_tag"`         // hex(32)
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SecretMetadata is the non-sensitive view of a Secret returned by list/get
// metadata operations — never includes ciphertext.
type SecretMetadata struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Metadata returns the non-sensitive projection of the secret.
func (s *Secret) Metadata() SecretMetadata {
	return SecretMetadata{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		Key:         s.Key,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

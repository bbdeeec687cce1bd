// Package secrets implements the Secret Service (C14): per-project AEAD
// secret storage. Grounded on vanducng-goclaw's
// internal/channels/zalo/personal/protocol/crypto.go AES usage, generalized
// from that file's AES-CBC-with-zero-IV / non-standard-nonce-size GCM
// quirks (protocol constraints of a third-party chat API) to the spec's
// plain, fresh-IV-per-encryption AES-256-GCM envelope.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// KeySize is the required master key length for AES-256-GCM.
const KeySize = 32

// nonceSize is the standard GCM nonce length (96 bits), per spec.
const nonceSize = 12

// Store persists Secret envelopes. Encrypted bytes only; the Service never
// hands a Store plaintext. Get returns (nil, nil) when the key does not
// exist -- not-found is not an error at this layer, matching the rest of
// this module's store interfaces (e.g. internal/inbound.ContactStore).
type Store interface {
	Get(ctx context.Context, projectID, key string) (*models.Secret, error)
	Put(ctx context.Context, secret *models.Secret) error
	Delete(ctx context.Context, projectID, key string) error
	List(ctx context.Context, projectID string) ([]*models.Secret, error)
}

// Service implements set/get/exists/delete/list over a Store, encrypting
// and decrypting with a process-wide master key.
type Service struct {
	store Store
	aead  cipher.AEAD
	now   func() time.Time
}

// New builds a Service from a 32-byte master key. Returns an error if the
// key is the wrong length or cipher construction fails.
func New(store Store, masterKey []byte) (*Service, error) {
	if len(masterKey) != KeySize {
		return nil, nexuserr.New(nexuserr.CodeValidation, fmt.Sprintf("secrets master key must be %d bytes, got %d", KeySize, len(masterKey)))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInternal, "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInternal, "failed to construct GCM", err)
	}
	return &Service{store: store, aead: gcm, now: time.Now}, nil
}

// Set encrypts value with a fresh random IV and persists the envelope,
// returning only metadata (never plaintext or ciphertext).
func (s *Service) Set(ctx context.Context, projectID, key, value, description string) (*models.SecretMetadata, error) {
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInternal, "failed to generate iv", err)
	}

	// GCM seals ciphertext and the auth tag together; split them so the
	// envelope matches the spec's {encryptedValue, iv, authTag} shape.
	sealed := s.aead.Seal(nil, iv, []byte(value), nil)
	tagSize := s.aead.Overhead()
	ciphertext, authTag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	now := s.now()
	existing, err := s.store.Get(ctx, projectID, key)
	if err != nil {
		return nil, err
	}

	secret := &models.Secret{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		Key:            key,
		EncryptedValue: hex.EncodeToString(ciphertext),
		IV:             hex.EncodeToString(iv),
		AuthTag:        hex.EncodeToString(authTag),
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		secret.ID = existing.ID
		secret.CreatedAt = existing.CreatedAt
	}

	if err := s.store.Put(ctx, secret); err != nil {
		return nil, err
	}
	meta := secret.Metadata()
	return &meta, nil
}

// Get decrypts and returns the plaintext value, or CodeSecretNotFound.
func (s *Service) Get(ctx context.Context, projectID, key string) (string, error) {
	secret, err := s.store.Get(ctx, projectID, key)
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", nexuserr.New(nexuserr.CodeSecretNotFound, fmt.Sprintf("secret %q not found", key))
	}

	iv, err := hex.DecodeString(secret.IV)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CodeInternal, "corrupt secret iv", err)
	}
	ciphertext, err := hex.DecodeString(secret.EncryptedValue)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CodeInternal, "corrupt secret ciphertext", err)
	}
	authTag, err := hex.DecodeString(secret.AuthTag)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CodeInternal, "corrupt secret auth tag", err)
	}

	sealed := append(append([]byte{}, ciphertext...), authTag...)
	plain, err := s.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CodeInternal, "secret decryption failed", err)
	}
	return string(plain), nil
}

// Exists reports whether a secret is set for (projectID, key), without
// decrypting it.
func (s *Service) Exists(ctx context.Context, projectID, key string) (bool, error) {
	secret, err := s.store.Get(ctx, projectID, key)
	if err != nil {
		return false, err
	}
	return secret != nil, nil
}

// Delete removes a secret. Deleting a missing key is not an error.
func (s *Service) Delete(ctx context.Context, projectID, key string) error {
	return s.store.Delete(ctx, projectID, key)
}

// List returns metadata only — never ciphertext or plaintext.
func (s *Service) List(ctx context.Context, projectID string) ([]*models.SecretMetadata, error) {
	secrets, err := s.store.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SecretMetadata, 0, len(secrets))
	for _, secret := range secrets {
		meta := secret.Metadata()
		out = append(out, &meta)
	}
	return out, nil
}

package inbound

import (
	"context"
	"sync"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryContactStore is a thread-safe in-memory ContactStore, keyed by
// (projectID, senderIdentifier) -- Contact itself carries no Channel field,
// so a given external identifier is assumed unique within a project
// regardless of which channel first reported it, same as ExternalID being
// a phone number or a platform user id that already disambiguates origin.
type MemoryContactStore struct {
	mu       sync.Mutex
	contacts map[string]*models.Contact
}

func NewMemoryContactStore() *MemoryContactStore {
	return &MemoryContactStore{contacts: make(map[string]*models.Contact)}
}

func contactKey(projectID, senderIdentifier string) string {
	return projectID + "/" + senderIdentifier
}

func (s *MemoryContactStore) FindByChannel(ctx context.Context, projectID, channel, senderIdentifier string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[contactKey(projectID, senderIdentifier)], nil
}

func (s *MemoryContactStore) Create(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contactKey(contact.ProjectID, contact.ExternalID)] = contact
	return nil
}

// MemorySessionStore is a thread-safe in-memory SessionStore. It keeps only
// the most recently created session per (projectID, contactID), matching
// "most recent non-closed" when the caller never closes sessions out of
// order.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // key: projectID/contactID
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.Session)}
}

func sessionKey(projectID, contactID string) string {
	return projectID + "/" + contactID
}

func (s *MemorySessionStore) FindActiveByContact(ctx context.Context, projectID, contactID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[sessionKey(projectID, contactID)]
	if session == nil || session.Status != models.SessionActive {
		return nil, nil
	}
	return session, nil
}

func (s *MemorySessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(session.ProjectID, session.MetaContactID())] = session
	return nil
}

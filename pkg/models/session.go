package models

import "time"

// SessionStatus is the lifecycle state of a conversation thread.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Session is a conversation thread belonging to a project.
type Session struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Status    SessionStatus  `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// MetaContactID returns the routed contact id stashed in session metadata, if any.
func (s *Session) MetaContactID() string {
	return metaString(s.Metadata, "contactId")
}

// MetaChannel returns the originating channel stashed in session metadata, if any.
func (s *Session) MetaChannel() string {
	return metaString(s.Metadata, "channel")
}

// MetaAgentID returns the routed agent id stashed in session metadata, if any.
func (s *Session) MetaAgentID() string {
	return metaString(s.Metadata, "agentId")
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, ok := meta[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

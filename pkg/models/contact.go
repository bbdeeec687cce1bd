package models

// Contact is an external identity known to a project, looked up by
// (ProjectID, Channel, ExternalID)/phone/email.
type Contact struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	Phone      string         `json:"phone,omitempty"`
	Email      string         `json:"email,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Language   string         `json:"language,omitempty"`
	Role       string         `json:"role,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Identifier returns whichever channel identifier is set, preferring
// ExternalID, then Phone, then Email — the value looked up against an
// inbound message's SenderIdentifier.
func (c *Contact) Identifier() string {
	switch {
	case c.ExternalID != "":
		return c.ExternalID
	case c.Phone != "":
		return c.Phone
	default:
		return c.Email
	}
}

package models

import "time"

// MemoryEntry is a long-term episodic record stored by Memory Manager L4.
type MemoryEntry struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	SessionID      string         `json:"session_id,omitempty"`
	Category       string         `json:"category"`
	Content        string         `json:"content"`
	Embedding      []float32      `json:"embedding,omitempty"`
	Importance     float64        `json:"importance"`
	AccessCount    int            `json:"access_count"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ScoredMemory pairs a MemoryEntry with its similarity score for one query.
type ScoredMemory struct {
	Entry *MemoryEntry `json:"entry"`
	Score float64      `json:"score"`
}

// CompactionEntry records one Memory Manager L3 summary replacement.
type CompactionEntry struct {
	SessionID         string    `json:"session_id"`
	Summary           string    `json:"summary"`
	MessagesCompacted int       `json:"messages_compacted"`
	TokensRecovered   int       `json:"tokens_recovered"`
	CreatedAt         time.Time `json:"created_at"`
}

package memory

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageType classifies a message for filterable retrieval.
type MessageType string

const (
	TypeUserQuery     MessageType = "user_query"
	TypeToolCall      MessageType = "tool_call"
	TypeToolResult    MessageType = "tool_result"
	TypeAgentResponse MessageType = "agent_response"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ValidType reports whether t is a known message type.
func ValidType(t MessageType) bool {
	switch t {
	case TypeUserQuery, TypeToolCall, TypeToolResult, TypeAgentResponse:
		return true
	}
	return false
}

// InferType derives a message type from its role, for requests that omit the
// type field: user turns are queries, assistant turns are responses, tool
// turns are results.
func InferType(r Role) MessageType {
	switch r {
	case RoleUser:
		return TypeUserQuery
	case RoleTool:
		return TypeToolResult
	default:
		return TypeAgentResponse
	}
}

// Metadata is an open extension mapping carried alongside a message.
// Values are restricted to the scalar union string/float64/bool; the
// boundary validates this before anything is persisted.
type Metadata map[string]any

// Message is one stored turn of a conversation or tool interaction.
// Messages are immutable after insert; ID, Seq and the clamped Timestamp are
// assigned by the store. The embedding never leaves the service.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      Role        `json:"role"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Embedding []float32   `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
	Seq       int64       `json:"-"`
	Metadata  Metadata    `json:"metadata,omitempty"`
}

// ScoredMessage pairs a message with its similarity score from a semantic
// query. Higher is more similar.
type ScoredMessage struct {
	Message Message `json:"message"`
	Score   float32 `json:"score"`
}

// Session is the isolation boundary record. It exists from the first Add for
// its ID until Clear.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int64     `json:"message_count"`
}

// Stats summarizes a session. A session that does not exist yields the zero
// value; missing sessions are a normal state, not an error.
type Stats struct {
	SessionID      string                `json:"session_id"`
	MessageCount   int64                 `json:"message_count"`
	FirstTimestamp time.Time             `json:"first_timestamp"`
	LastTimestamp  time.Time             `json:"last_timestamp"`
	ByType         map[MessageType]int64 `json:"by_type"`
}

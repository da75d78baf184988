// Package models defines the chat data types shared across the client.
package models

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry in the session transcript.
//
// Messages are immutable after creation: user messages are appended
// optimistically before any server acknowledgement, assistant messages only
// once the corresponding hub event has passed deduplication.
type ChatMessage struct {
	// ID is the server-assigned answer id. Empty for locally-originated
	// user messages.
	ID             string `json:"id,omitempty"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Timestamp is an ISO-8601 string, either taken from the hub event or
	// stamped locally at append time.
	Timestamp string `json:"timestamp"`
}

// ConnectionStatus represents the hub connection state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

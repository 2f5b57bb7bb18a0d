// Package types defines the wire-level shapes shared between the
// coordination core, the HTTP surface, and durable storage.
package types

import "encoding/json"

// MessageType discriminates the outbound message envelope.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageToolCall    MessageType = "tool_call"
	MessageAgentStatus MessageType = "agent_status"
	MessageError       MessageType = "error"
	MessageTips        MessageType = "tips"
	// MessageNavigation marks a navigation-interception event. It is consumed
	// by the dispatcher and never forwarded or persisted.
	MessageNavigation MessageType = "navigation"
)

// Message is the discriminated envelope handed to the presentation and
// persistence collaborators.
type Message struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversationID"`
	MsgID          string      `json:"msgID"`
	Data           any         `json:"data,omitempty"`
}

// Record is the durable shape of a Message. Writes are idempotent per ID.
type Record struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationID"`
	Type           MessageType     `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	Time           int64           `json:"time"`
}

// ToolCallData is the payload of a tool_call message surfacing a permission
// request to the user.
type ToolCallData struct {
	CallID  string   `json:"callID"`
	Kind    string   `json:"kind"`
	Title   string   `json:"title"`
	Command []string `json:"command,omitempty"`
	Workdir string   `json:"workdir,omitempty"`
	Paths   []string `json:"paths,omitempty"`
	Options []string `json:"options"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
	Detail      any      `json:"detail,omitempty"`
}

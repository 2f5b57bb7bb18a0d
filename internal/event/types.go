package event

import "github.com/agentgate/agentgate/pkg/types"

// MessageEmittedData is the data for message.emitted events.
type MessageEmittedData struct {
	Message types.Message `json:"message"`
}

// PermissionRequiredData is the data for permission.required events.
type PermissionRequiredData struct {
	CallID         string   `json:"callID"`
	ConversationID string   `json:"conversationID"`
	Kind           string   `json:"kind"`
	Title          string   `json:"title"`
	Options        []string `json:"options"`
}

// PermissionRepliedData is the data for permission.replied events.
type PermissionRepliedData struct {
	CallID         string `json:"callID"`
	ConversationID string `json:"conversationID"`
	Decision       string `json:"decision"`
	Cached         bool   `json:"cached"`
}

// SessionStatusData is the data for session.status events.
type SessionStatusData struct {
	Event types.SessionEvent `json:"event"`
}

// PatchAppliedData is the data for patch.applied events.
type PatchAppliedData struct {
	CallID string   `json:"callID"`
	Paths  []string `json:"paths"`
}

// PatchFailedData is the data for patch.failed events.
type PatchFailedData struct {
	CallID string   `json:"callID"`
	Paths  []string `json:"paths,omitempty"`
	Error  string   `json:"error"`
}

package types

// SessionEventType discriminates session lifecycle events.
type SessionEventType string

const (
	SessionBootstrapFailed SessionEventType = "bootstrap_failed"
	SessionPartialSetup    SessionEventType = "session_partial"
	SessionPatchApplied    SessionEventType = "patch_applied"
	SessionPatchFailed     SessionEventType = "patch_failed"
	SessionStatusChanged   SessionEventType = "status_changed"
)

// SessionEvent carries a lifecycle notification for one conversation.
type SessionEvent struct {
	Type           SessionEventType `json:"type"`
	ConversationID string           `json:"conversationID"`
	State          string           `json:"state,omitempty"`
	Error          string           `json:"error,omitempty"`
	Suggestions    []string         `json:"suggestions,omitempty"`
	Diff           *DiffSummary     `json:"diff,omitempty"`
}

// DiffSummary aggregates the terminal turn diff for a session.
type DiffSummary struct {
	Files     int            `json:"files"`
	Additions int            `json:"additions"`
	Deletions int            `json:"deletions"`
	PerFile   map[string]int `json:"perFile,omitempty"`
}

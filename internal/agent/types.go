// Package agent wraps the bidirectional request/response channel to the
// external agent backend. The coordination core only depends on the
// Transport interface; the stdio implementation in this package is the
// reference wiring for a child-process backend.
package agent

import "encoding/json"

// JSONRPCRequest is an outbound request or notification frame.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse is an inbound response frame.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a response frame.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notification is an agent-originated event: a permission request, a
// streamed delta, a status change, or the terminal turn diff.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Agent-originated notification methods.
const (
	MethodPermissionRequest = "session/permission"
	MethodDelta             = "session/delta"
	MethodStatus            = "session/status"
	MethodTurnDiff          = "session/turn_diff"
)

// PermissionParams is the payload of a session/permission notification. The
// raw input is a tagged union keyed by Kind.
type PermissionParams struct {
	CallID string       `json:"callID"`
	Kind   string       `json:"kind"` // "exec" | "patch" | other
	Title  string       `json:"title"`
	Exec   *ExecParams  `json:"exec,omitempty"`
	Patch  *PatchParams `json:"patch,omitempty"`
}

// ExecParams identifies a command execution. Command carries the token
// sequence when the backend provides one; Raw is the unsplit command string.
type ExecParams struct {
	Command []string `json:"command,omitempty"`
	Raw     string   `json:"raw,omitempty"`
	Workdir string   `json:"workdir,omitempty"`
}

// PatchParams carries the pending file-change payload. Files maps a path to
// the new content; Path/FilePath are accepted for single-file backends.
type PatchParams struct {
	Path     string            `json:"path,omitempty"`
	FilePath string            `json:"file_path,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
}

// DeltaParams is a streamed text fragment of the assistant turn.
type DeltaParams struct {
	MsgID string `json:"msgID"`
	Text  string `json:"text"`
	Done  bool   `json:"done,omitempty"`
}

// StatusParams is an agent status change.
type StatusParams struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// TurnDiffParams carries the terminal unified-diff payload of a turn.
type TurnDiffParams struct {
	Diff string `json:"diff"`
}

// DiagnosticsReport is the result of the post-connection diagnostics probe.
type DiagnosticsReport struct {
	CLIVersion    string `json:"cliVersion,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Workdir       string `json:"workdir,omitempty"`
}

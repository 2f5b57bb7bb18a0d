package permission

import (
	"github.com/agentgate/agentgate/internal/agent"
	"github.com/agentgate/agentgate/internal/approval"
	"github.com/agentgate/agentgate/internal/patch"
)

// Kind discriminates the request payload union.
type Kind string

const (
	KindExec  Kind = "exec"
	KindPatch Kind = "patch"
	KindOther Kind = "other"
)

// ExecInput identifies a command execution. Command is preferred; Raw is
// tokenized when the backend only sends the unsplit string.
type ExecInput struct {
	Command []string
	Raw     string
	Workdir string
}

// Tokens returns the command token sequence.
func (in ExecInput) Tokens() []string {
	if len(in.Command) > 0 {
		return in.Command
	}
	return approval.CommandTokens(in.Raw)
}

// PatchInput carries the pending file-change set.
type PatchInput struct {
	Changes patch.Set
}

// Request is one permission request raised by the agent. The payload is a
// tagged union keyed by Kind; exactly one of Exec and Patch is set for the
// corresponding kinds.
type Request struct {
	CallID string // raw id as received, possibly origin-prefixed
	Kind   Kind
	Title  string
	Exec   *ExecInput
	Patch  *PatchInput

	// AutoApprove overrides the engine's fully-automatic mode for this one
	// call when non-nil.
	AutoApprove *bool
}

// Keys builds the canonical approval keys for the request. Exec and patch
// keys carry only operation-identifying fields; other kinds fall back to the
// broader kind+title key.
func (r Request) Keys() []approval.Key {
	switch r.Kind {
	case KindExec:
		if r.Exec == nil {
			return nil
		}
		return []approval.Key{approval.ExecKey(r.Exec.Tokens(), r.Exec.Workdir)}
	case KindPatch:
		if r.Patch == nil {
			return nil
		}
		return approval.PatchKeys(r.Patch.Changes.Paths())
	default:
		return []approval.Key{approval.OtherKey(string(r.Kind), r.Title)}
	}
}

// FromParams converts a wire-level permission notification into a Request.
func FromParams(p agent.PermissionParams) Request {
	req := Request{
		CallID: p.CallID,
		Title:  p.Title,
	}

	switch p.Kind {
	case "exec":
		req.Kind = KindExec
		exec := ExecInput{}
		if p.Exec != nil {
			exec.Command = p.Exec.Command
			exec.Raw = p.Exec.Raw
			exec.Workdir = p.Exec.Workdir
		}
		req.Exec = &exec
	case "patch":
		req.Kind = KindPatch
		changes := patch.Set{}
		if p.Patch != nil {
			for path, content := range p.Patch.Files {
				changes[path] = patch.Change{Path: path, Content: content}
			}
			// Single-file backends send path or file_path instead of a map
			if p.Patch.Path != "" {
				changes[p.Patch.Path] = patch.Change{Path: p.Patch.Path}
			}
			if p.Patch.FilePath != "" {
				changes[p.Patch.FilePath] = patch.Change{Path: p.Patch.FilePath}
			}
		}
		req.Patch = &PatchInput{Changes: changes}
	default:
		req.Kind = Kind(p.Kind)
		if req.Kind == "" {
			req.Kind = KindOther
		}
	}

	return req
}

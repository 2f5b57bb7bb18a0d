// Package approval implements the session-scoped approval cache: canonical
// operation keys, terminal decisions, and the in-memory store mapping one to
// the other.
package approval

// Decision is a terminal permission decision.
type Decision string

const (
	Approved           Decision = "approved"
	ApprovedForSession Decision = "approved_for_session"
	Denied             Decision = "denied"
	Abort              Decision = "abort"
)

// UI-level option identifiers a decision input may carry.
const (
	OptionAllowOnce    = "allow_once"
	OptionAllowAlways  = "allow_always"
	OptionRejectOnce   = "reject_once"
	OptionRejectAlways = "reject_always"
)

// Options lists the option identifiers in presentation order.
func Options() []string {
	return []string{OptionAllowOnce, OptionAllowAlways, OptionRejectOnce, OptionRejectAlways}
}

// FromOption maps a UI option id to its canonical decision. Unknown or
// missing option ids fail closed to Denied.
func FromOption(option string) Decision {
	switch option {
	case OptionAllowOnce:
		return Approved
	case OptionAllowAlways:
		return ApprovedForSession
	case OptionRejectOnce:
		return Denied
	case OptionRejectAlways:
		return Abort
	default:
		return Denied
	}
}

// Cacheable reports whether the decision is worth remembering for the rest of
// the session. Single-use decisions are never cached.
func (d Decision) Cacheable() bool {
	return d == ApprovedForSession || d == Abort
}

// Approves reports whether the decision allows the operation to proceed.
func (d Decision) Approves() bool {
	return d == Approved || d == ApprovedForSession
}

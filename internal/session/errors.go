package session

import "strings"

// SendErrorKind classifies a failed user-message send by message content.
type SendErrorKind string

const (
	SendTimeout        SendErrorKind = "timeout"
	SendAuthentication SendErrorKind = "authentication"
	SendNetwork        SendErrorKind = "network"
	SendGeneric        SendErrorKind = "generic"
)

// SendError is the user-facing shape of a failed send. Report is false when
// the condition was already surfaced by the transport layer and repeating it
// would duplicate the notice.
type SendError struct {
	Kind        SendErrorKind
	Description string
	Report      bool
}

// ClassifySendError maps a send failure to a user-facing description. Usage
// limit conditions are suppressed from reporting because the transport
// already surfaced them.
func ClassifySendError(err error) SendError {
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "usage limit") || strings.Contains(msg, "rate limit") {
		return SendError{Kind: SendGeneric, Description: err.Error(), Report: false}
	}

	switch {
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return SendError{
			Kind:        SendTimeout,
			Description: "The agent did not respond in time. It may still be working; try again in a moment.",
			Report:      true,
		}
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "not logged in") ||
		strings.Contains(msg, "401"):
		return SendError{
			Kind:        SendAuthentication,
			Description: "The agent backend rejected the request as unauthenticated. Run its login flow and retry.",
			Report:      true,
		}
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "econn"):
		return SendError{
			Kind:        SendNetwork,
			Description: "Lost the connection to the agent backend. Check that the agent process is still running.",
			Report:      true,
		}
	default:
		return SendError{Kind: SendGeneric, Description: err.Error(), Report: true}
	}
}

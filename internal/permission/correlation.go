// Package permission implements the permission-decision state machine that
// gates every side-effecting agent operation behind a cached or interactive
// approval.
package permission

import "strings"

// Origin tags the channel a call id arrived on.
type Origin string

const (
	OriginNone        Origin = ""
	OriginPermission  Origin = "perm"
	OriginPatch       Origin = "patch"
	OriginElicitation Origin = "elicit"
	OriginExec        Origin = "exec"
)

// origins lists the recognized prefixes in match order.
var origins = []Origin{OriginPermission, OriginPatch, OriginElicitation, OriginExec}

// CorrelationID ties a permission request to the backend's own identifier
// while remembering which channel it arrived on. It replaces ad hoc string
// prefix matching: the origin is a tag carried from construction.
type CorrelationID struct {
	origin  Origin
	backend string
}

// NewCorrelationID builds an id from its parts.
func NewCorrelationID(origin Origin, backendID string) CorrelationID {
	return CorrelationID{origin: origin, backend: backendID}
}

// ParseCorrelationID parses a raw call id. Exactly one recognized origin
// prefix is stripped if present; otherwise the id is used unmodified.
func ParseCorrelationID(raw string) CorrelationID {
	for _, o := range origins {
		prefix := string(o) + ":"
		if strings.HasPrefix(raw, prefix) {
			return CorrelationID{origin: o, backend: strings.TrimPrefix(raw, prefix)}
		}
	}
	return CorrelationID{origin: OriginNone, backend: raw}
}

// Origin returns the originating channel tag.
func (c CorrelationID) Origin() Origin {
	return c.origin
}

// Backend returns the backend's own (un-prefixed) identifier. Protocol
// acknowledgements are keyed by it.
func (c CorrelationID) Backend() string {
	return c.backend
}

// String returns the prefixed wire form.
func (c CorrelationID) String() string {
	if c.origin == OriginNone {
		return c.backend
	}
	return string(c.origin) + ":" + c.backend
}

// Package network classifies transport failures into a small taxonomy with
// user-facing remediation text. Classification is pure: it never retries and
// only reports the retry count the transport already produced.
package network

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind is the failure taxonomy.
type Kind string

const (
	CloudflareBlocked Kind = "cloudflare_blocked"
	NetworkTimeout    Kind = "network_timeout"
	ConnectionRefused Kind = "connection_refused"
	Unknown           Kind = "unknown"
)

// maxRawMessage bounds the raw error text carried in the detail block.
const maxRawMessage = 200

// Detail is the technical block attached to a classification.
type Detail struct {
	ErrorType  string `json:"errorType"`
	RetryCount int    `json:"retryCount"`
	RawMessage string `json:"rawMessage"`
}

// Classification is the user-facing shape of one transport failure.
type Classification struct {
	Kind        Kind     `json:"kind"`
	Title       string   `json:"title"`
	Remediation []string `json:"remediation"`
	Detail      Detail   `json:"detail"`
}

// Classify maps a raw transport failure to its classification. retryCount is
// informational, produced by the transport layer.
func Classify(err error, retryCount int) Classification {
	kind := classifyKind(err)

	return Classification{
		Kind:        kind,
		Title:       titles[kind],
		Remediation: remediations[kind],
		Detail: Detail{
			ErrorType:  fmt.Sprintf("%T", err),
			RetryCount: retryCount,
			RawMessage: truncate(errText(err), maxRawMessage),
		},
	}
}

func classifyKind(err error) Kind {
	if err == nil {
		return Unknown
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "cloudflare"),
		strings.Contains(msg, "just a moment"),
		strings.Contains(msg, "attention required"):
		return CloudflareBlocked
	case errors.Is(err, syscall.ECONNREFUSED),
		strings.Contains(msg, "connection refused"):
		return ConnectionRefused
	case isTimeout(err),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return NetworkTimeout
	default:
		return Unknown
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var titles = map[Kind]string{
	CloudflareBlocked: "Request blocked by Cloudflare",
	NetworkTimeout:    "Network timeout",
	ConnectionRefused: "Connection refused",
	Unknown:           "Network error",
}

var remediations = map[Kind][]string{
	CloudflareBlocked: {
		"Wait a few minutes before retrying",
		"Check whether a VPN or proxy is interfering with the connection",
		"Verify your account can reach the service from a browser",
	},
	NetworkTimeout: {
		"Check your internet connection",
		"Retry the request",
		"Increase the request timeout if the network is slow",
	},
	ConnectionRefused: {
		"Verify the agent backend is running",
		"Check the configured host and port",
		"Check firewall rules on this machine",
	},
	Unknown: {
		"Retry the request",
		"Check the logs for the underlying error",
	},
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

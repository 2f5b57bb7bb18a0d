package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o problem" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{
			name:     "cloudflare block page",
			err:      errors.New("HTTP 403: Just a moment... Cloudflare"),
			expected: CloudflareBlocked,
		},
		{
			name:     "timed out message",
			err:      errors.New("request timed out after 30s"),
			expected: NetworkTimeout,
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("send: %w", context.DeadlineExceeded),
			expected: NetworkTimeout,
		},
		{
			name:     "net.Error timeout",
			err:      timeoutErr{},
			expected: NetworkTimeout,
		},
		{
			name:     "connection refused errno",
			err:      fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
			expected: ConnectionRefused,
		},
		{
			name:     "connection refused message",
			err:      errors.New("dial tcp 127.0.0.1:8080: connection refused"),
			expected: ConnectionRefused,
		},
		{
			name:     "unclassified",
			err:      errors.New("something odd happened"),
			expected: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err, 0)
			assert.Equal(t, tt.expected, c.Kind)
			assert.NotEmpty(t, c.Title)
			assert.NotEmpty(t, c.Remediation)
		})
	}
}

func TestClassify_Detail(t *testing.T) {
	err := errors.New("connection refused")
	c := Classify(err, 3)

	assert.Equal(t, 3, c.Detail.RetryCount)
	assert.Equal(t, "connection refused", c.Detail.RawMessage)
	assert.Contains(t, c.Detail.ErrorType, "errors")
}

func TestClassify_TruncatesRawMessage(t *testing.T) {
	err := errors.New(strings.Repeat("x", 500))
	c := Classify(err, 0)

	assert.Len(t, c.Detail.RawMessage, 200)
}

func TestClassify_RemediationOrderStable(t *testing.T) {
	a := Classify(errors.New("connection refused"), 0)
	b := Classify(errors.New("connection refused"), 5)
	assert.Equal(t, a.Remediation, b.Remediation)
	assert.Equal(t, "Verify the agent backend is running", a.Remediation[0])
}

package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
)

// Transport is the bidirectional request/response channel to the agent
// backend. Requests are correlated by id; agent-originated events arrive on
// the Notifications channel.
type Transport interface {
	// Call sends a request and waits for the correlated response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	// Notify sends a notification (no response expected).
	Notify(ctx context.Context, method string, params any) error
	// Notifications returns the stream of agent-originated events. The
	// channel is closed when the transport shuts down.
	Notifications() <-chan Notification
	// Close stops the transport and the underlying process.
	Close() error
}

// StdioTransport runs the agent backend as a child process speaking
// newline-delimited JSON-RPC over stdio.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *JSONRPCResponse

	notifications chan Notification

	closed  bool
	closeMu sync.RWMutex
}

// NewStdioTransport spawns the agent command and starts the read loop.
func NewStdioTransport(ctx context.Context, command []string, env map[string]string) (*StdioTransport, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	t := &StdioTransport{
		cmd:           cmd,
		stdin:         stdin,
		stdout:        bufio.NewReader(stdout),
		pending:       make(map[int64]chan *JSONRPCResponse),
		notifications: make(chan Notification, 64),
	}

	go t.readLoop()

	return t, nil
}

// readLoop dispatches responses to pending calls and agent-originated frames
// to the notifications channel.
func (t *StdioTransport) readLoop() {
	for {
		t.closeMu.RLock()
		if t.closed {
			t.closeMu.RUnlock()
			return
		}
		t.closeMu.RUnlock()

		line, err := t.stdout.ReadBytes('\n')
		if err != nil {
			t.shutdownPending()
			return
		}

		var frame JSONRPCResponse
		if err := json.Unmarshal(line, &frame); err != nil {
			continue // Skip invalid JSON
		}

		// Frames carrying a method are agent-originated events
		if frame.Method != "" {
			select {
			case t.notifications <- Notification{Method: frame.Method, Params: frame.Params}:
			default:
				// Drop rather than block the read loop on a slow consumer
			}
			continue
		}

		if frame.ID != 0 {
			t.mu.Lock()
			if ch, ok := t.pending[frame.ID]; ok {
				ch <- &frame
				delete(t.pending, frame.ID)
			}
			t.mu.Unlock()
		}
	}
}

func (t *StdioTransport) shutdownPending() {
	t.closeMu.Lock()
	t.closed = true
	t.mu.Lock()
	for _, ch := range t.pending {
		close(ch)
	}
	t.pending = make(map[int64]chan *JSONRPCResponse)
	t.mu.Unlock()
	close(t.notifications)
	t.closeMu.Unlock()
}

// Call sends a request and waits for the correlated response.
func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return nil, fmt.Errorf("connection closed")
	}
	t.closeMu.RUnlock()

	id := atomic.AddInt64(&t.nextID, 1)

	ch := make(chan *JSONRPCResponse, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
	}
	if params != nil {
		req.Params = params
	}

	if err := t.writeMessage(req); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("agent error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify sends a notification (no response expected).
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return fmt.Errorf("connection closed")
	}
	t.closeMu.RUnlock()

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
	}
	if params != nil {
		req.Params = params
	}

	return t.writeMessage(req)
}

// Notifications returns the agent-originated event stream.
func (t *StdioTransport) Notifications() <-chan Notification {
	return t.notifications
}

func (t *StdioTransport) writeMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return err
	}

	return nil
}

// Close closes the transport and kills the child process.
func (t *StdioTransport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.stdin.Close()
	if t.cmd.Process != nil {
		return t.cmd.Process.Kill()
	}
	return nil
}

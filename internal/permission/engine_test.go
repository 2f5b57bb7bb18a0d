package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/approval"
	"github.com/agentgate/agentgate/internal/event"
	"github.com/agentgate/agentgate/internal/patch"
)

// fakeAcker records decision acknowledgements.
type fakeAcker struct {
	mu    sync.Mutex
	calls []ackCall
}

type ackCall struct {
	callID   string
	decision approval.Decision
}

func (a *fakeAcker) ResolvePermission(ctx context.Context, callID string, decision approval.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ackCall{callID: callID, decision: decision})
	return nil
}

func (a *fakeAcker) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAcker) last() ackCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[len(a.calls)-1]
}

// fakeApplier records apply calls and optionally fails.
type fakeApplier struct {
	mu    sync.Mutex
	count int
	err   error
}

func (f *fakeApplier) Apply(ctx context.Context, changes patch.Set) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.err
}

func (f *fakeApplier) applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func newEngine(t *testing.T) (*Engine, *approval.Store, *fakeAcker, *fakeApplier) {
	t.Helper()
	event.Reset()
	store := approval.NewStore()
	acker := &fakeAcker{}
	applier := &fakeApplier{}
	engine := NewEngine(Options{
		Store:          store,
		Acker:          acker,
		Applier:        applier,
		ConversationID: "conv-1",
	})
	return engine, store, acker, applier
}

func execRequest(callID string) Request {
	return Request{
		CallID: callID,
		Kind:   KindExec,
		Title:  "Run command",
		Exec:   &ExecInput{Command: []string{"rm", "-rf", "tmp"}, Workdir: "/work"},
	}
}

func patchRequest(callID string, paths ...string) Request {
	changes := patch.Set{}
	for _, p := range paths {
		changes[p] = patch.Change{Path: p, Content: "new content\n"}
	}
	return Request{
		CallID: callID,
		Kind:   KindPatch,
		Title:  "Edit files",
		Patch:  &PatchInput{Changes: changes},
	}
}

// resolveWhenPending waits for the request to surface, then resolves it.
func resolveWhenPending(t *testing.T, engine *Engine, callID, option string) {
	t.Helper()
	require.Eventually(t, func() bool { return engine.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, engine.Resolve(context.Background(), callID, option))
}

func TestEngine_SurfaceAndAllowOnce(t *testing.T) {
	engine, store, acker, _ := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, err := engine.HandleRequest(context.Background(), execRequest("call-1"))
		assert.NoError(t, err)
		done <- d
	}()

	resolveWhenPending(t, engine, "call-1", approval.OptionAllowOnce)

	select {
	case d := <-done:
		assert.Equal(t, approval.Approved, d)
	case <-time.After(time.Second):
		t.Fatal("HandleRequest should return after Resolve")
	}

	// Single-use decision is not cached
	_, ok := store.Get(approval.ExecKey([]string{"rm", "-rf", "tmp"}, "/work"))
	assert.False(t, ok)

	// Transport is acknowledged exactly once, with the un-prefixed id
	assert.Equal(t, 1, acker.count())
	assert.Equal(t, "call-1", acker.last().callID)
	assert.Equal(t, approval.Approved, acker.last().decision)
}

func TestEngine_AllowAlwaysCachesAndAutoResolves(t *testing.T) {
	engine, store, acker, _ := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), execRequest("call-1"))
		done <- d
	}()
	resolveWhenPending(t, engine, "call-1", approval.OptionAllowAlways)
	assert.Equal(t, approval.ApprovedForSession, <-done)

	got, ok := store.Get(approval.ExecKey([]string{"rm", "-rf", "tmp"}, "/work"))
	require.True(t, ok)
	assert.Equal(t, approval.ApprovedForSession, got)

	// Scenario A: identical command, different title, same session —
	// auto-resolves without surfacing.
	second := execRequest("call-2")
	second.Title = "A different description"
	d, err := engine.HandleRequest(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, approval.ApprovedForSession, d)
	assert.Equal(t, 0, engine.PendingCount())
	assert.Equal(t, 2, acker.count())
}

func TestEngine_RejectAlwaysCachesAbort(t *testing.T) {
	engine, _, acker, applier := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), patchRequest("call-1", "a.txt", "b.txt"))
		done <- d
	}()
	resolveWhenPending(t, engine, "call-1", approval.OptionRejectAlways)
	assert.Equal(t, approval.Abort, <-done)
	assert.Equal(t, 0, applier.applied())

	// Scenario B: reordered path set auto-resolves as abort
	d, err := engine.HandleRequest(context.Background(), patchRequest("call-2", "b.txt", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, approval.Abort, d)
	assert.Equal(t, 0, engine.PendingCount())

	// Denials are acknowledged too
	assert.Equal(t, 2, acker.count())
	assert.Equal(t, approval.Abort, acker.last().decision)
}

func TestEngine_UnknownOptionFailsClosed(t *testing.T) {
	engine, store, acker, _ := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), execRequest("call-1"))
		done <- d
	}()
	resolveWhenPending(t, engine, "call-1", "definitely_not_an_option")

	assert.Equal(t, approval.Denied, <-done)
	assert.Equal(t, approval.Denied, acker.last().decision)
	assert.Equal(t, 0, store.Len())
}

func TestEngine_ResolveIdempotent(t *testing.T) {
	engine, _, acker, _ := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), execRequest("call-1"))
		done <- d
	}()
	resolveWhenPending(t, engine, "call-1", approval.OptionAllowOnce)
	<-done

	// Second resolution of the same call id is a no-op
	require.NoError(t, engine.Resolve(context.Background(), "call-1", approval.OptionRejectAlways))
	assert.Equal(t, 1, acker.count())
}

func TestEngine_PatchApprovalAppliesOnce(t *testing.T) {
	engine, _, _, applier := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, err := engine.HandleRequest(context.Background(), patchRequest("call-1", "a.txt"))
		assert.NoError(t, err)
		done <- d
	}()
	resolveWhenPending(t, engine, "call-1", approval.OptionAllowOnce)
	<-done

	assert.Equal(t, 1, applier.applied())

	// Duplicate resolution cannot re-apply
	require.NoError(t, engine.Resolve(context.Background(), "call-1", approval.OptionAllowOnce))
	assert.Equal(t, 1, applier.applied())
}

func TestEngine_ApplyFailureKeepsCachedDecision(t *testing.T) {
	engine, store, acker, applier := newEngine(t)
	applier.err = errors.New("disk full")

	done := make(chan approval.Decision, 1)
	errCh := make(chan error, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), patchRequest("call-1", "a.txt"))
		done <- d
	}()
	require.Eventually(t, func() bool { return engine.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)
	go func() {
		errCh <- engine.Resolve(context.Background(), "call-1", approval.OptionAllowAlways)
	}()

	// The waiter still gets its terminal decision and the transport is
	// still acknowledged.
	assert.Equal(t, approval.ApprovedForSession, <-done)
	assert.Equal(t, 1, acker.count())

	// The apply failure is re-raised to the resolving caller.
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// The cached decision is deliberately left in place: a retried identical
	// patch request auto-approves again despite the failure.
	d, handleErr := engine.HandleRequest(context.Background(), patchRequest("call-2", "a.txt"))
	assert.Equal(t, approval.ApprovedForSession, d)
	require.Error(t, handleErr) // apply fails again, decision still terminal
	got, ok := store.Get(approval.PatchKey([]string{"a.txt"}))
	require.True(t, ok)
	assert.Equal(t, approval.ApprovedForSession, got)
}

func TestEngine_PrefixedCallID(t *testing.T) {
	engine, _, acker, _ := newEngine(t)

	done := make(chan approval.Decision, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), execRequest("exec:call-1"))
		done <- d
	}()

	// The UI resolves with a differently-prefixed id; both normalize to the
	// same backend identifier.
	resolveWhenPending(t, engine, "perm:call-1", approval.OptionAllowOnce)
	assert.Equal(t, approval.Approved, <-done)

	// The acknowledgement uses the un-prefixed backend id
	assert.Equal(t, "call-1", acker.last().callID)
}

func TestEngine_ContextCanceledWhileWaiting(t *testing.T) {
	engine, _, _, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.HandleRequest(ctx, execRequest("call-1"))
		errCh <- err
	}()

	require.Eventually(t, func() bool { return engine.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("HandleRequest should return when context is canceled")
	}
	assert.Equal(t, 0, engine.PendingCount())
}

func TestEngine_ShutdownDrainsWaiters(t *testing.T) {
	engine, _, _, _ := newEngine(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.HandleRequest(context.Background(), execRequest("call-1"))
		errCh <- err
	}()

	require.Eventually(t, func() bool { return engine.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)
	engine.Shutdown()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("HandleRequest should return on shutdown")
	}
	assert.Equal(t, 0, engine.PendingCount())
}

func TestEngine_FullyAutomaticMode(t *testing.T) {
	event.Reset()
	store := approval.NewStore()
	acker := &fakeAcker{}
	engine := NewEngine(Options{
		Store:       store,
		Acker:       acker,
		AutoApprove: true,
	})

	d, err := engine.HandleRequest(context.Background(), execRequest("call-1"))
	require.NoError(t, err)
	assert.Equal(t, approval.Approved, d)
	assert.Equal(t, 0, engine.PendingCount())
	assert.Equal(t, 1, acker.count())

	// Explicit per-call override beats the configured value
	req := execRequest("call-2")
	off := false
	req.AutoApprove = &off

	done := make(chan approval.Decision, 1)
	go func() {
		d, _ := engine.HandleRequest(context.Background(), req)
		done <- d
	}()
	require.Eventually(t, func() bool { return engine.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, engine.Resolve(context.Background(), "call-2", approval.OptionRejectOnce))
	assert.Equal(t, approval.Denied, <-done)
}

func TestEngine_DuplicateRaiseRejected(t *testing.T) {
	engine, _, _, _ := newEngine(t)

	go func() {
		engine.HandleRequest(context.Background(), execRequest("call-1"))
	}()
	require.Eventually(t, func() bool { return engine.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)

	_, err := engine.HandleRequest(context.Background(), execRequest("call-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	engine.Shutdown()
}

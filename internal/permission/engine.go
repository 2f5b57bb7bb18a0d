package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentgate/agentgate/internal/approval"
	"github.com/agentgate/agentgate/internal/dispatch"
	"github.com/agentgate/agentgate/internal/event"
	"github.com/agentgate/agentgate/internal/logging"
	"github.com/agentgate/agentgate/internal/patch"
	"github.com/agentgate/agentgate/pkg/types"
)

// ErrSessionClosed is returned to waiters when the owning session tears down
// before their request resolves.
var ErrSessionClosed = errors.New("session closed")

// Acker acknowledges terminal decisions to the agent transport.
type Acker interface {
	ResolvePermission(ctx context.Context, callID string, decision approval.Decision) error
}

// Applier applies an approved file-change set.
type Applier interface {
	Apply(ctx context.Context, changes patch.Set) error
}

// Options configures an Engine.
type Options struct {
	Store          *approval.Store
	Acker          Acker
	Applier        Applier
	Dispatcher     *dispatch.Dispatcher
	ConversationID string
	// AutoApprove enables the fully-automatic mode: confirmations are
	// bypassed entirely. A per-call override on the request takes precedence.
	AutoApprove bool
}

// Engine runs the permission-decision state machine. It correlates raised
// requests with cached or interactive decisions, keeps the agent's paused
// operation gated until exactly one terminal resolution, and applies
// dependent file changes on approval.
type Engine struct {
	mu      sync.Mutex
	pending map[string]*pendingConfirmation // backend call id -> in-flight request

	store          *approval.Store
	acker          Acker
	applier        Applier
	dispatcher     *dispatch.Dispatcher
	conversationID string
	autoApprove    bool
}

// pendingConfirmation is one in-flight permission request awaiting
// resolution. The gate channel releases the paused agent operation.
type pendingConfirmation struct {
	req  Request
	corr CorrelationID
	gate chan approval.Decision
}

// NewEngine creates an engine. The store, pending map, and gates belong to
// one session; no cross-session sharing.
func NewEngine(opts Options) *Engine {
	return &Engine{
		pending:        make(map[string]*pendingConfirmation),
		store:          opts.Store,
		acker:          opts.Acker,
		applier:        opts.Applier,
		dispatcher:     opts.Dispatcher,
		conversationID: opts.ConversationID,
		autoApprove:    opts.AutoApprove,
	}
}

// HandleRequest processes one raised permission request. It blocks until a
// terminal decision exists: immediately for cached or fully-automatic
// resolutions, otherwise after a decision arrives through Resolve. The
// returned decision is terminal for this call id.
func (e *Engine) HandleRequest(ctx context.Context, req Request) (approval.Decision, error) {
	corr := ParseCorrelationID(req.CallID)
	keys := req.Keys()

	// Fully-automatic mode bypasses confirmation entirely. Explicit per-call
	// override wins over the configured value.
	auto := e.autoApprove
	if req.AutoApprove != nil {
		auto = *req.AutoApprove
	}
	if auto {
		return e.finalize(ctx, corr, req, approval.Approved, true)
	}

	// Cached decisions auto-resolve without surfacing UI.
	if len(keys) > 0 {
		rejected := false
		for _, k := range keys {
			if e.store.IsRejectedForSession(k) {
				rejected = true
				break
			}
		}
		if rejected {
			return e.finalize(ctx, corr, req, approval.Abort, true)
		}
		if e.store.AllApprovedForSession(keys) {
			return e.finalize(ctx, corr, req, approval.ApprovedForSession, true)
		}
	}

	gate := make(chan approval.Decision, 1)
	e.mu.Lock()
	if _, exists := e.pending[corr.Backend()]; exists {
		e.mu.Unlock()
		return "", fmt.Errorf("duplicate permission request for call %s", corr.Backend())
	}
	e.pending[corr.Backend()] = &pendingConfirmation{req: req, corr: corr, gate: gate}
	e.mu.Unlock()

	e.surface(ctx, corr, req)

	select {
	case decision, ok := <-gate:
		if !ok {
			return "", ErrSessionClosed
		}
		return decision, nil
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, corr.Backend())
		e.mu.Unlock()
		return "", ctx.Err()
	}
}

// Resolve applies a UI decision to a pending request. Unknown option ids
// fail closed to a denial. Resolving a call id that is not pending is a
// no-op: each call id has exactly one terminal resolution.
func (e *Engine) Resolve(ctx context.Context, rawCallID, option string) error {
	corr := ParseCorrelationID(rawCallID)
	decision := approval.FromOption(option)

	// Remove the pending record before dispatching side effects so a
	// re-entrant or duplicate resolution cannot apply the same changes twice.
	e.mu.Lock()
	pc, ok := e.pending[corr.Backend()]
	if ok {
		delete(e.pending, corr.Backend())
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	if decision.Cacheable() {
		e.store.PutAll(pc.req.Keys(), decision)
	}

	applyErr := e.applyChanges(ctx, pc.corr, pc.req, decision)

	// Protocol acknowledgement goes out before the local gate releases.
	ackErr := e.ack(ctx, pc.corr, decision)
	pc.gate <- decision

	event.Publish(event.Event{
		Type: event.PermissionReplied,
		Data: event.PermissionRepliedData{
			CallID:         pc.corr.Backend(),
			ConversationID: e.conversationID,
			Decision:       string(decision),
		},
	})

	return errors.Join(applyErr, ackErr)
}

// finalize completes a request that never surfaced: cached hits and
// fully-automatic approvals. The transport is still acknowledged and side
// effects still run; only the gate is absent.
func (e *Engine) finalize(ctx context.Context, corr CorrelationID, req Request, decision approval.Decision, cached bool) (approval.Decision, error) {
	applyErr := e.applyChanges(ctx, corr, req, decision)
	ackErr := e.ack(ctx, corr, decision)

	event.Publish(event.Event{
		Type: event.PermissionReplied,
		Data: event.PermissionRepliedData{
			CallID:         corr.Backend(),
			ConversationID: e.conversationID,
			Decision:       string(decision),
			Cached:         cached,
		},
	})

	return decision, errors.Join(applyErr, ackErr)
}

// applyChanges hands the pending file-change set to the applier on approval.
// Apply failure is reported and re-raised, but the cached decision is left
// in place: a retried identical patch will auto-approve again.
func (e *Engine) applyChanges(ctx context.Context, corr CorrelationID, req Request, decision approval.Decision) error {
	if !decision.Approves() || req.Patch == nil || len(req.Patch.Changes) == 0 || e.applier == nil {
		return nil
	}

	paths := req.Patch.Changes.Paths()
	if err := e.applier.Apply(ctx, req.Patch.Changes); err != nil {
		event.Publish(event.Event{
			Type: event.PatchFailed,
			Data: event.PatchFailedData{CallID: corr.Backend(), Paths: paths, Error: err.Error()},
		})
		e.dispatchSessionEvent(ctx, types.SessionEvent{
			Type:           types.SessionPatchFailed,
			ConversationID: e.conversationID,
			Error:          err.Error(),
		})
		return fmt.Errorf("patch apply failed: %w", err)
	}

	event.Publish(event.Event{
		Type: event.PatchApplied,
		Data: event.PatchAppliedData{CallID: corr.Backend(), Paths: paths},
	})
	e.dispatchSessionEvent(ctx, types.SessionEvent{
		Type:           types.SessionPatchApplied,
		ConversationID: e.conversationID,
	})
	return nil
}

// ack notifies the transport of a terminal decision, keyed by the backend's
// own un-prefixed id. Every terminal decision is acknowledged, including
// denials.
func (e *Engine) ack(ctx context.Context, corr CorrelationID, decision approval.Decision) error {
	if e.acker == nil {
		return nil
	}
	if err := e.acker.ResolvePermission(ctx, corr.Backend(), decision); err != nil {
		logging.Error().Err(err).
			Str("callID", corr.Backend()).
			Str("decision", string(decision)).
			Msg("failed to acknowledge permission decision")
		return err
	}
	return nil
}

// surface emits the confirmation artifact to the presentation layer.
func (e *Engine) surface(ctx context.Context, corr CorrelationID, req Request) {
	data := types.ToolCallData{
		CallID:  corr.String(),
		Kind:    string(req.Kind),
		Title:   req.Title,
		Options: approval.Options(),
	}
	if req.Exec != nil {
		data.Command = req.Exec.Tokens()
		data.Workdir = req.Exec.Workdir
	}
	if req.Patch != nil {
		data.Paths = req.Patch.Changes.Paths()
	}

	if e.dispatcher != nil {
		e.dispatcher.EmitAndPersist(ctx, types.Message{
			Type:           types.MessageToolCall,
			ConversationID: e.conversationID,
			MsgID:          ulid.Make().String(),
			Data:           data,
		}, true)
	}

	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			CallID:         corr.String(),
			ConversationID: e.conversationID,
			Kind:           string(req.Kind),
			Title:          req.Title,
			Options:        approval.Options(),
		},
	})
}

// dispatchSessionEvent forwards a session event envelope when a dispatcher
// is wired.
func (e *Engine) dispatchSessionEvent(ctx context.Context, ev types.SessionEvent) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.EmitAndPersist(ctx, types.Message{
		Type:           types.MessageAgentStatus,
		ConversationID: e.conversationID,
		MsgID:          ulid.Make().String(),
		Data:           ev,
	}, false)
}

// PendingCount reports the number of in-flight confirmations.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Shutdown drains all pending confirmations at session teardown. Waiters
// receive ErrSessionClosed; no acknowledgement is sent for drained requests.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, pc := range e.pending {
		close(pc.gate)
		delete(e.pending, id)
	}
}

// Package session sequences the lifecycle of one supervised agent session:
// ordered bootstrap, first-message routing, notification fan-out, and
// teardown. One controller owns one conversation.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentgate/agentgate/internal/agent"
	"github.com/agentgate/agentgate/internal/approval"
	"github.com/agentgate/agentgate/internal/dispatch"
	"github.com/agentgate/agentgate/internal/event"
	"github.com/agentgate/agentgate/internal/logging"
	"github.com/agentgate/agentgate/internal/network"
	"github.com/agentgate/agentgate/internal/patch"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/pkg/types"
)

// Backend is the slice of the agent client the controller drives.
type Backend interface {
	Configure(id agent.Identity)
	Initialize(ctx context.Context) error
	NewSession(ctx context.Context, prompt string, contextBlocks []string) (string, error)
	Prompt(ctx context.Context, sessionID, text string) error
	Diagnostics(ctx context.Context) (*agent.DiagnosticsReport, error)
	Notifications() <-chan agent.Notification
	Attempts() int
	Stop() error
}

// Options configures a Controller.
type Options struct {
	Client         Backend
	Engine         *permission.Engine
	Store          *approval.Store
	Dispatcher     *dispatch.Dispatcher
	ConversationID string
	Identity       agent.Identity
	// ContextBlocks are injected ahead of the first user message when the
	// session is created.
	ContextBlocks []string
}

// Controller owns the session state machine. Bootstrap runs at most once and
// its outcome is shared by all awaiters; the first user message is routed
// through session creation exactly once.
type Controller struct {
	client         Backend
	engine         *permission.Engine
	store          *approval.Store
	dispatcher     *dispatch.Dispatcher
	conversationID string
	identity       agent.Identity
	contextBlocks  []string

	bootstrapOnce sync.Once
	bootstrapErr  error

	mu        sync.Mutex
	state     State
	created   bool
	sessionID string

	sendMu sync.Mutex

	deltaMu sync.Mutex
	deltas  map[string]*strings.Builder
}

// NewController creates a controller in the connecting state.
func NewController(opts Options) *Controller {
	return &Controller{
		client:         opts.Client,
		engine:         opts.Engine,
		store:          opts.Store,
		dispatcher:     opts.Dispatcher,
		conversationID: opts.ConversationID,
		identity:       opts.Identity,
		contextBlocks:  opts.ContextBlocks,
		state:          StateConnecting,
		deltas:         make(map[string]*strings.Builder),
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bootstrap runs the ordered startup sequence once. Every caller observes
// the same outcome; a failed bootstrap is not retried.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.bootstrapOnce.Do(func() {
		c.bootstrapErr = c.bootstrap(ctx)
	})
	return c.bootstrapErr
}

// bootstrap sequences identity configuration, backend initialization, and
// the post-connection diagnostics probe. Session creation is deferred to the
// first user message. A diagnostics failure degrades the session instead of
// failing it.
func (c *Controller) bootstrap(ctx context.Context) error {
	c.setState(ctx, StateConnecting)

	c.client.Configure(c.identity)
	c.setState(ctx, StateConnected)

	if err := c.client.Initialize(ctx); err != nil {
		c.setState(ctx, StateError)
		c.emitEvent(ctx, types.SessionEvent{
			Type:           types.SessionBootstrapFailed,
			ConversationID: c.conversationID,
			State:          string(StateError),
			Error:          err.Error(),
		})
		return fmt.Errorf("session bootstrap failed: %w", err)
	}
	c.setState(ctx, StateAuthenticated)

	if report, err := c.client.Diagnostics(ctx); err != nil {
		c.degrade(ctx, err.Error())
	} else if !report.Authenticated {
		c.degrade(ctx, "agent backend reports it is not authenticated")
	}
	return nil
}

// degrade moves the session to the partial state with remediation
// suggestions. The session stays usable.
func (c *Controller) degrade(ctx context.Context, reason string) {
	c.setState(ctx, StatePartial)
	c.emitEvent(ctx, types.SessionEvent{
		Type:           types.SessionPartialSetup,
		ConversationID: c.conversationID,
		State:          string(StatePartial),
		Error:          reason,
		Suggestions: []string{
			"Verify the agent CLI installation is on PATH and up to date",
			"Check that the agent CLI authentication is current (re-run its login flow)",
		},
	})
}

// Send delivers one user message. The first message creates the session,
// preceded by the configured context blocks; later messages use the regular
// prompt call. The creation latch never resets.
func (c *Controller) Send(ctx context.Context, text string) error {
	if err := c.Bootstrap(ctx); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	created := c.created
	sessionID := c.sessionID
	c.mu.Unlock()

	if !created {
		id, err := c.client.NewSession(ctx, text, c.contextBlocks)
		if err != nil {
			return c.reportSendError(ctx, err)
		}
		c.mu.Lock()
		c.created = true
		c.sessionID = id
		c.mu.Unlock()
		c.setState(ctx, StateActive)
		return nil
	}

	if err := c.client.Prompt(ctx, sessionID, text); err != nil {
		return c.reportSendError(ctx, err)
	}
	return nil
}

// reportSendError surfaces a classified send failure to the user unless the
// condition was already reported by the transport. The original error is
// always returned.
func (c *Controller) reportSendError(ctx context.Context, err error) error {
	se := ClassifySendError(err)
	if se.Report && c.dispatcher != nil {
		c.dispatcher.EmitAndPersist(ctx, types.Message{
			Type:           types.MessageError,
			ConversationID: c.conversationID,
			MsgID:          ulid.Make().String(),
			Data: types.ErrorData{
				Kind:        string(se.Kind),
				Title:       "Message could not be delivered",
				Description: se.Description,
			},
		}, true)
	}
	return err
}

// Run consumes agent notifications until the channel closes or the context
// ends. Permission requests block their own goroutine, not the loop.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-c.client.Notifications():
			if !ok {
				return
			}
			c.handleNotification(ctx, n)
		}
	}
}

func (c *Controller) handleNotification(ctx context.Context, n agent.Notification) {
	switch n.Method {
	case agent.MethodPermissionRequest:
		var p agent.PermissionParams
		if err := json.Unmarshal(n.Params, &p); err != nil {
			logging.Error().Err(err).Msg("malformed permission request")
			return
		}
		go func() {
			if _, err := c.engine.HandleRequest(ctx, permission.FromParams(p)); err != nil {
				logging.Error().Err(err).Str("callID", p.CallID).Msg("permission request failed")
			}
		}()
	case agent.MethodDelta:
		var p agent.DeltaParams
		if err := json.Unmarshal(n.Params, &p); err != nil {
			logging.Error().Err(err).Msg("malformed delta")
			return
		}
		c.handleDelta(ctx, p)
	case agent.MethodStatus:
		var p agent.StatusParams
		if err := json.Unmarshal(n.Params, &p); err != nil {
			logging.Error().Err(err).Msg("malformed status")
			return
		}
		c.emitEvent(ctx, types.SessionEvent{
			Type:           types.SessionStatusChanged,
			ConversationID: c.conversationID,
			State:          p.Status,
			Error:          p.Detail,
		})
	case agent.MethodTurnDiff:
		var p agent.TurnDiffParams
		if err := json.Unmarshal(n.Params, &p); err != nil {
			logging.Error().Err(err).Msg("malformed turn diff")
			return
		}
		summary := patch.ParseUnifiedDiff(p.Diff)
		c.emitEvent(ctx, types.SessionEvent{
			Type:           types.SessionStatusChanged,
			ConversationID: c.conversationID,
			State:          string(c.State()),
			Diff:           &summary,
		})
	default:
		logging.Debug().Str("method", n.Method).Msg("ignoring notification")
	}
}

// handleDelta forwards each fragment live and persists the assembled text
// once the stream completes.
func (c *Controller) handleDelta(ctx context.Context, p agent.DeltaParams) {
	c.deltaMu.Lock()
	b, ok := c.deltas[p.MsgID]
	if !ok {
		b = &strings.Builder{}
		c.deltas[p.MsgID] = b
	}
	b.WriteString(p.Text)
	full := b.String()
	if p.Done {
		delete(c.deltas, p.MsgID)
	}
	c.deltaMu.Unlock()

	if c.dispatcher == nil {
		return
	}
	c.dispatcher.EmitAndPersist(ctx, types.Message{
		Type:           types.MessageText,
		ConversationID: c.conversationID,
		MsgID:          p.MsgID,
		Data:           map[string]any{"text": p.Text, "done": p.Done},
	}, false)
	if p.Done {
		c.dispatcher.PersistOnly(ctx, types.Message{
			Type:           types.MessageText,
			ConversationID: c.conversationID,
			MsgID:          p.MsgID,
			Data:           map[string]any{"text": full},
		})
	}
}

// HandleNetworkError reports a classified transport failure. It never
// retries and never drops the report.
func (c *Controller) HandleNetworkError(ctx context.Context, err error) {
	cls := network.Classify(err, c.client.Attempts())
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.EmitAndPersist(ctx, types.Message{
		Type:           types.MessageError,
		ConversationID: c.conversationID,
		MsgID:          ulid.Make().String(),
		Data: types.ErrorData{
			Kind:        string(cls.Kind),
			Title:       cls.Title,
			Remediation: cls.Remediation,
			Detail:      cls.Detail,
		},
	}, true)
}

// Teardown drains pending confirmations, clears session-scoped approvals,
// and stops the backend. A stop failure is logged, not propagated.
func (c *Controller) Teardown(ctx context.Context) {
	c.engine.Shutdown()
	c.store.Clear()
	if err := c.client.Stop(); err != nil {
		logging.Warn().Err(err).Msg("agent backend did not stop cleanly")
	}
	c.setState(ctx, StateDisconnected)
}

// setState updates the lifecycle state and announces the transition.
func (c *Controller) setState(ctx context.Context, s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.emitEvent(ctx, types.SessionEvent{
		Type:           types.SessionStatusChanged,
		ConversationID: c.conversationID,
		State:          string(s),
	})
}

// emitEvent publishes a session event on the bus and mirrors it to the
// presentation funnel.
func (c *Controller) emitEvent(ctx context.Context, ev types.SessionEvent) {
	event.Publish(event.Event{
		Type: event.SessionStatus,
		Data: event.SessionStatusData{Event: ev},
	})
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.EmitAndPersist(ctx, types.Message{
		Type:           types.MessageAgentStatus,
		ConversationID: c.conversationID,
		MsgID:          ulid.Make().String(),
		Data:           ev,
	}, false)
}

// Package dispatch is the single funnel for outbound messages. Per message it
// decides whether to forward to the presentation layer, persist to durable
// storage, both, or neither.
package dispatch

import (
	"context"

	"github.com/agentgate/agentgate/internal/event"
	"github.com/agentgate/agentgate/internal/history"
	"github.com/agentgate/agentgate/internal/logging"
	"github.com/agentgate/agentgate/pkg/types"
)

// Dispatcher routes message envelopes to the presentation collaborator (the
// event bus) and the persistence collaborator (the history store). The two
// paths are independent failure domains: a forwarding error never blocks
// persistence and vice versa.
type Dispatcher struct {
	history *history.Store
}

// New creates a dispatcher writing durable records to the given history
// store. A nil store disables persistence.
func New(hist *history.Store) *Dispatcher {
	return &Dispatcher{history: hist}
}

// EmitAndPersist forwards a message to the presentation layer and, when
// persist is true, writes its durable record. Navigation-interception
// messages are consumed: never forwarded, never persisted.
func (d *Dispatcher) EmitAndPersist(ctx context.Context, msg types.Message, persist bool) {
	if isNavigationInterception(msg) {
		return
	}

	// Fire-and-forget; the bus delivers asynchronously
	event.Publish(event.Event{
		Type: event.MessageEmitted,
		Data: event.MessageEmittedData{Message: msg},
	})

	if persist {
		d.persist(ctx, msg)
	}
}

// PersistOnly writes the durable record without forwarding. Used for content
// the presentation layer already rendered incrementally, such as streamed
// deltas.
func (d *Dispatcher) PersistOnly(ctx context.Context, msg types.Message) {
	d.persist(ctx, msg)
}

func (d *Dispatcher) persist(ctx context.Context, msg types.Message) {
	if d.history == nil {
		return
	}

	rec, ok := history.ToRecord(msg)
	if !ok {
		// Not persistable; skip silently
		return
	}

	if err := d.history.Put(ctx, rec); err != nil {
		// Persistence errors are logged and swallowed so the presentation
		// funnel keeps flowing.
		logging.Error().Err(err).
			Str("msgID", msg.MsgID).
			Str("conversationID", msg.ConversationID).
			Msg("failed to persist message")
	}
}

// isNavigationInterception recognizes the navigation-interception shape.
func isNavigationInterception(msg types.Message) bool {
	return msg.Type == types.MessageNavigation
}

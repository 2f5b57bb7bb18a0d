package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/event"
	"github.com/agentgate/agentgate/internal/history"
	"github.com/agentgate/agentgate/internal/storage"
	"github.com/agentgate/agentgate/pkg/types"
)

// messageLog records forwarded envelopes from the bus.
type messageLog struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (l *messageLog) add(msg types.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *messageLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func newDispatcher(t *testing.T) (*Dispatcher, *history.Store) {
	t.Helper()
	hist := history.NewStore(storage.New(t.TempDir()))
	return New(hist), hist
}

func collectEmitted(t *testing.T) (*messageLog, func()) {
	t.Helper()
	log := &messageLog{}
	unsub := event.Subscribe(event.MessageEmitted, func(e event.Event) {
		if data, ok := e.Data.(event.MessageEmittedData); ok {
			log.add(data.Message)
		}
	})
	return log, unsub
}

func TestEmitAndPersist_ForwardsAndPersists(t *testing.T) {
	event.Reset()
	d, hist := newDispatcher(t)
	ctx := context.Background()

	log, unsub := collectEmitted(t)
	defer unsub()

	msg := types.Message{
		Type:           types.MessageText,
		ConversationID: "conv-1",
		MsgID:          "msg-1",
		Data:           map[string]string{"text": "hello"},
	}
	d.EmitAndPersist(ctx, msg, true)

	assert.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 10*time.Millisecond)

	rec, err := hist.Get(ctx, "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, types.MessageText, rec.Type)
}

func TestEmitAndPersist_NoPersist(t *testing.T) {
	event.Reset()
	d, hist := newDispatcher(t)
	ctx := context.Background()

	log, unsub := collectEmitted(t)
	defer unsub()

	msg := types.Message{Type: types.MessageText, ConversationID: "conv-1", MsgID: "msg-1"}
	d.EmitAndPersist(ctx, msg, false)

	assert.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 10*time.Millisecond)

	_, err := hist.Get(ctx, "conv-1", "msg-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmitAndPersist_NavigationSwallowed(t *testing.T) {
	event.Reset()
	d, hist := newDispatcher(t)
	ctx := context.Background()

	log, unsub := collectEmitted(t)
	defer unsub()

	msg := types.Message{Type: types.MessageNavigation, ConversationID: "conv-1", MsgID: "msg-nav"}
	d.EmitAndPersist(ctx, msg, true)

	// Give the bus time to (not) deliver
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, log.len())

	_, err := hist.Get(ctx, "conv-1", "msg-nav")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmitAndPersist_UnpersistableSkippedSilently(t *testing.T) {
	event.Reset()
	d, hist := newDispatcher(t)
	ctx := context.Background()

	log, unsub := collectEmitted(t)
	defer unsub()

	// agent_status is forwarded but has no durable shape
	msg := types.Message{Type: types.MessageAgentStatus, ConversationID: "conv-1", MsgID: "msg-2"}
	d.EmitAndPersist(ctx, msg, true)

	assert.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 10*time.Millisecond)

	_, err := hist.Get(ctx, "conv-1", "msg-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPersistOnly_DoesNotForward(t *testing.T) {
	event.Reset()
	d, hist := newDispatcher(t)
	ctx := context.Background()

	log, unsub := collectEmitted(t)
	defer unsub()

	msg := types.Message{
		Type:           types.MessageText,
		ConversationID: "conv-1",
		MsgID:          "msg-3",
		Data:           map[string]string{"text": "streamed already"},
	}
	d.PersistOnly(ctx, msg)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, log.len())

	rec, err := hist.Get(ctx, "conv-1", "msg-3")
	require.NoError(t, err)
	assert.Equal(t, "msg-3", rec.ID)
}

func TestEmitAndPersist_NilHistory(t *testing.T) {
	event.Reset()
	d := New(nil)

	// Must not panic without a persistence collaborator
	d.EmitAndPersist(context.Background(), types.Message{
		Type:  types.MessageText,
		MsgID: "msg-4",
	}, true)
}

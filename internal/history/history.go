// Package history persists the durable message records of a conversation.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentgate/agentgate/internal/storage"
	"github.com/agentgate/agentgate/pkg/types"
)

// Store writes durable message records. Records live under
// ["message", conversationID, msgID]; writing the same record twice is
// idempotent.
type Store struct {
	storage *storage.Storage
}

// NewStore creates a history store backed by the given storage.
func NewStore(st *storage.Storage) *Store {
	return &Store{storage: st}
}

// ToRecord transforms a message envelope into its durable shape. It returns
// false for message types that are not persistable (transient status and
// navigation events).
func ToRecord(msg types.Message) (*types.Record, bool) {
	switch msg.Type {
	case types.MessageAgentStatus, types.MessageNavigation:
		return nil, false
	}
	if msg.MsgID == "" {
		return nil, false
	}

	var data json.RawMessage
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, false
		}
		data = raw
	}

	return &types.Record{
		ID:             msg.MsgID,
		ConversationID: msg.ConversationID,
		Type:           msg.Type,
		Data:           data,
		Time:           time.Now().UnixMilli(),
	}, true
}

// Put writes a record.
func (s *Store) Put(ctx context.Context, rec *types.Record) error {
	if err := s.storage.Put(ctx, []string{"message", rec.ConversationID, rec.ID}, rec); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves one record by conversation and message id.
func (s *Store) Get(ctx context.Context, conversationID, msgID string) (*types.Record, error) {
	var rec types.Record
	if err := s.storage.Get(ctx, []string{"message", conversationID, msgID}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all records of a conversation.
func (s *Store) List(ctx context.Context, conversationID string) ([]*types.Record, error) {
	var records []*types.Record
	err := s.storage.Scan(ctx, []string{"message", conversationID}, func(key string, data json.RawMessage) error {
		var rec types.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		records = append(records, &rec)
		return nil
	})
	return records, err
}

// Delete removes every record of a conversation.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	records, err := s.List(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := s.storage.Delete(ctx, []string{"message", conversationID, rec.ID}); err != nil {
			return err
		}
	}
	return nil
}

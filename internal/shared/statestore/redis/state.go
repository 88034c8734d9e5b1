package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
)

// SaveState 保存会话状态
func (s *Store) SaveState(ctx context.Context, state *model.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, statestore.ConversationKey(state.ID), data, s.opts.StateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState 加载会话状态
func (s *Store) LoadState(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	data, err := s.client.Get(ctx, statestore.ConversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, statestore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state model.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteState 删除会话状态
func (s *Store) DeleteState(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, statestore.ConversationKey(conversationID)).Err()
}

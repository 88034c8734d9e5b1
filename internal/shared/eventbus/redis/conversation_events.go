package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"agentpm/internal/shared/eventbus"
)

func streamKey(conversationID string) string {
	return eventbus.KeyConversationEvents + conversationID
}

// PublishEvent 发布会话事件
func (s *Store) PublishEvent(ctx context.Context, conversationID string, event *eventbus.ConversationEvent) error {
	key := streamKey(conversationID)

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	pipe := s.client.Pipeline()
	add := pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(event.Type),
			"timestamp": ts.Format(time.RFC3339Nano),
			"data":      string(dataJSON),
		},
	})
	pipe.Expire(ctx, key, eventbus.TTLConversationEvents)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published event: %s seq=%s type=%s", conversationID, add.Val(), event.Type)
	return nil
}

// GetEvents 获取会话事件列表，fromID 为空时从头读取（不含 fromID 本身）
func (s *Store) GetEvents(ctx context.Context, conversationID string, fromID string, count int64) ([]*eventbus.ConversationEvent, error) {
	start := "-"
	if fromID != "" {
		start = fromID
	}

	msgs, err := s.client.XRange(ctx, streamKey(conversationID), start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]*eventbus.ConversationEvent, 0, len(msgs))
	for i, msg := range msgs {
		if msg.ID == fromID {
			continue
		}
		ev := decodeMessage(msg)
		ev.Seq = i + 1
		events = append(events, ev)
		if count > 0 && int64(len(events)) >= count {
			break
		}
	}
	return events, nil
}

// GetEventCount 获取事件数量
func (s *Store) GetEventCount(ctx context.Context, conversationID string) (int64, error) {
	return s.client.XLen(ctx, streamKey(conversationID)).Result()
}

// SubscribeEvents 订阅新事件，ctx 取消时关闭 channel
func (s *Store) SubscribeEvents(ctx context.Context, conversationID string) (<-chan *eventbus.ConversationEvent, error) {
	ch := make(chan *eventbus.ConversationEvent, 100)
	key := streamKey(conversationID)

	go func() {
		defer close(ch)
		lastID := "$"
		seq := 0
		for {
			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, lastID},
				Block:   5 * time.Second,
				Count:   10,
			}).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				log.Printf("[Redis/EventBus] Subscribe error: %s: %v", conversationID, err)
				time.Sleep(time.Second)
				continue
			}
			for _, stream := range streams {
				for _, msg := range stream.Messages {
					lastID = msg.ID
					seq++
					ev := decodeMessage(msg)
					ev.Seq = seq
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// DeleteEvents 删除会话事件流
func (s *Store) DeleteEvents(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, streamKey(conversationID)).Err()
}

func decodeMessage(msg redis.XMessage) *eventbus.ConversationEvent {
	ev := &eventbus.ConversationEvent{ID: msg.ID}
	if typ, ok := msg.Values["type"].(string); ok {
		ev.Type = eventbus.EventType(typ)
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = t
		}
	}
	if dataStr, ok := msg.Values["data"].(string); ok {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(dataStr), &data); err == nil {
			ev.Data = data
		}
	}
	return ev
}

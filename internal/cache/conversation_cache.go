package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	redisv9 "github.com/redis/go-redis/v9"

	"docbot/internal/rag"
)

// ConversationCache keeps the recent turns of a chat session in a Redis list.
type ConversationCache struct {
	client      *redisv9.Client
	historyTTL  time.Duration
	maxMessages int
}

func NewConversationCache(client *redisv9.Client, historyTTL time.Duration, maxMessages int) *ConversationCache {
	if historyTTL <= 0 {
		historyTTL = 30 * time.Minute
	}
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &ConversationCache{
		client:      client,
		historyTTL:  historyTTL,
		maxMessages: maxMessages,
	}
}

// History returns the cached turns, oldest first. A missing session is empty.
func (c *ConversationCache) History(ctx context.Context, shareID, sessionID string) ([]rag.Message, error) {
	raw, err := c.client.LRange(ctx, historyKey(shareID, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get history failed: %w", err)
	}
	messages := make([]rag.Message, 0, len(raw))
	for _, item := range raw {
		var m rag.Message
		if err := sonic.UnmarshalString(item, &m); err != nil {
			return nil, fmt.Errorf("unmarshal cached message failed: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Append adds turns, trims the list to the newest maxMessages and refreshes the TTL.
func (c *ConversationCache) Append(ctx context.Context, shareID, sessionID string, messages ...rag.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, len(messages))
	for i, m := range messages {
		s, err := sonic.MarshalString(m)
		if err != nil {
			return fmt.Errorf("marshal history message failed: %w", err)
		}
		values[i] = s
	}

	key := historyKey(shareID, sessionID)
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-c.maxMessages), -1)
		pipe.Expire(ctx, key, c.historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append history failed: %w", err)
	}
	return nil
}

func historyKey(shareID, sessionID string) string {
	return fmt.Sprintf("chat:history:%s:%s", shareID, sessionID)
}

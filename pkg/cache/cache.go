package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL constants. The cached lists are derived projections over the
// durable store, invalidated after every write and on realtime events,
// so the TTLs only bound staleness when an invalidation is missed.
const (
	TTLConversations = 30 * time.Second // conversation list per user
	TTLMessages      = 30 * time.Second // message pages per conversation
	TTLQuota         = 1 * time.Minute  // quota status per user
	TTLMember        = 10 * time.Minute // member profiles (change rarely)
)

// Cache key prefixes
const (
	PrefixConversations = "conversations:"
	PrefixMessages      = "messages:"
	PrefixQuota         = "quota:"
	PrefixMember        = "member:"
)

// Service is the Redis projection cache interface
type Service interface {
	// Conversation list projection
	GetConversations(ctx context.Context, userID string) ([]byte, error)
	SetConversations(ctx context.Context, userID string, data interface{}) error
	InvalidateConversations(ctx context.Context, userID string) error

	// Message page projection
	GetMessages(ctx context.Context, conversationID string, page, limit int) ([]byte, error)
	SetMessages(ctx context.Context, conversationID string, page, limit int, data interface{}) error
	InvalidateMessages(ctx context.Context, conversationID string) error

	// Quota status projection
	GetQuota(ctx context.Context, userID string) ([]byte, error)
	SetQuota(ctx context.Context, userID string, data interface{}) error
	InvalidateQuota(ctx context.Context, userID string) error

	// Member profile projection
	GetMember(ctx context.Context, userID string) ([]byte, error)
	SetMember(ctx context.Context, userID string, data interface{}) error
	InvalidateMember(ctx context.Context, userID string) error

	// Utilities
	IsAvailable() bool
	Ping(ctx context.Context) error
}

// redisCache is the Redis-backed implementation
type redisCache struct {
	client *redis.Client
}

// NewService creates a new cache service
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

// IsAvailable reports whether Redis is configured
func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

// Ping tests the Redis connection
func (c *redisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return c.client.Ping(ctx).Err()
}

// ========================================
// Conversation list projection
// ========================================

func (c *redisCache) conversationsKey(userID string) string {
	return PrefixConversations + userID
}

func (c *redisCache) GetConversations(ctx context.Context, userID string) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.conversationsKey(userID)).Bytes()
}

func (c *redisCache) SetConversations(ctx context.Context, userID string, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.conversationsKey(userID), jsonData, TTLConversations).Err()
}

func (c *redisCache) InvalidateConversations(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.conversationsKey(userID)).Err()
}

// ========================================
// Message page projection
// ========================================

func (c *redisCache) messagesKey(conversationID string, page, limit int) string {
	return fmt.Sprintf("%s%s:%d:%d", PrefixMessages, conversationID, page, limit)
}

func (c *redisCache) GetMessages(ctx context.Context, conversationID string, page, limit int) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.messagesKey(conversationID, page, limit)).Bytes()
}

func (c *redisCache) SetMessages(ctx context.Context, conversationID string, page, limit int, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.messagesKey(conversationID, page, limit), jsonData, TTLMessages).Err()
}

func (c *redisCache) InvalidateMessages(ctx context.Context, conversationID string) error {
	if c.client == nil {
		return nil
	}
	return c.deleteByPattern(ctx, PrefixMessages+conversationID+":*")
}

// ========================================
// Quota status projection
// ========================================

func (c *redisCache) quotaKey(userID string) string {
	return PrefixQuota + userID
}

func (c *redisCache) GetQuota(ctx context.Context, userID string) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.quotaKey(userID)).Bytes()
}

func (c *redisCache) SetQuota(ctx context.Context, userID string, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.quotaKey(userID), jsonData, TTLQuota).Err()
}

func (c *redisCache) InvalidateQuota(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.quotaKey(userID)).Err()
}

// ========================================
// Member profile projection
// ========================================

func (c *redisCache) memberKey(userID string) string {
	return PrefixMember + userID
}

func (c *redisCache) GetMember(ctx context.Context, userID string) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.memberKey(userID)).Bytes()
}

func (c *redisCache) SetMember(ctx context.Context, userID string, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.memberKey(userID), jsonData, TTLMember).Err()
}

func (c *redisCache) InvalidateMember(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.memberKey(userID)).Err()
}

// deleteByPattern removes all keys matching a pattern using SCAN
// (KEYS would block Redis on large keyspaces)
func (c *redisCache) deleteByPattern(ctx context.Context, pattern string) error {
	if c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-api/internal/models"
)

// redisChatRepository stores each message under its own key with a native TTL.
// Sorted sets scored by unix microseconds index messages per thread and threads by recency;
// index entries pointing at expired keys are skipped on read and pruned by PurgeExpired.
type redisChatRepository struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisChatRepository constructs a chat repository backed by Redis.
func NewRedisChatRepository(client *redis.Client, prefix string, retention time.Duration) ChatRepository {
	if retention <= 0 {
		retention = DefaultChatRetention
	}
	if prefix == "" {
		prefix = "storefront"
	}
	return &redisChatRepository{client: client, prefix: prefix, retention: retention, now: time.Now}
}

func (r *redisChatRepository) seqKey() string     { return r.prefix + ":chat:seq" }
func (r *redisChatRepository) threadsKey() string { return r.prefix + ":chat:threads" }

func (r *redisChatRepository) messageKey(id uint) string {
	return fmt.Sprintf("%s:chat:msg:%d", r.prefix, id)
}

func (r *redisChatRepository) threadKey(userID string) string {
	return r.prefix + ":chat:thread:" + userID
}

func (r *redisChatRepository) lastKey(userID string) string {
	return r.prefix + ":chat:last:" + userID
}

func (r *redisChatRepository) cutoffScore() string {
	return "(" + strconv.FormatInt(r.now().UTC().Add(-r.retention).UnixMicro(), 10)
}

func (r *redisChatRepository) Save(ctx context.Context, message *models.ChatMessage) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = r.now().UTC()
	}

	// The TTL counts from createdAt, not from the write.
	ttl := message.CreatedAt.Add(r.retention).Sub(r.now())
	if ttl <= 0 {
		return ErrChatExpired
	}

	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("allocate chat message id: %w", err)
	}
	message.ID = uint(id)

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	score := float64(message.CreatedAt.UnixMicro())
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.messageKey(message.ID), payload, ttl)
	pipe.ZAdd(ctx, r.threadKey(message.ThreadUserID), redis.Z{Score: score, Member: strconv.FormatUint(uint64(message.ID), 10)})
	pipe.Expire(ctx, r.threadKey(message.ThreadUserID), r.retention)
	pipe.ZAdd(ctx, r.threadsKey(), redis.Z{Score: score, Member: message.ThreadUserID})
	pipe.Set(ctx, r.lastKey(message.ThreadUserID), payload, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisChatRepository) ListThread(ctx context.Context, threadUserID string, before time.Time, limit int) ([]models.ChatMessage, error) {
	limit = clampThreadLimit(limit)

	upper := "+inf"
	if !before.IsZero() {
		upper = "(" + strconv.FormatInt(before.UTC().UnixMicro(), 10)
	}

	ids, err := r.client.ZRevRangeByScore(ctx, r.threadKey(threadUserID), &redis.ZRangeBy{
		Min:   r.cutoffScore(),
		Max:   upper,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.ChatMessage{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		parsed, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, r.messageKey(uint(parsed)))
	}

	messages, err := r.loadMessages(ctx, keys)
	if err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

func (r *redisChatRepository) LatestPerThread(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > maxRecentThreads {
		limit = maxRecentThreads
	}

	users, err := r.client.ZRevRangeByScore(ctx, r.threadsKey(), &redis.ZRangeBy{
		Min:   r.cutoffScore(),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []models.ChatMessage{}, nil
	}

	keys := make([]string, 0, len(users))
	for _, user := range users {
		keys = append(keys, r.lastKey(user))
	}

	return r.loadMessages(ctx, keys)
}

func (r *redisChatRepository) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := strconv.FormatInt(r.now().UTC().Add(-r.retention).UnixMicro(), 10)

	users, err := r.client.ZRangeByScore(ctx, r.threadsKey(), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, user := range users {
		n, err := r.client.ZRemRangeByScore(ctx, r.threadKey(user), "-inf", cutoff).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return removed, err
		}
		removed += n
	}

	if _, err := r.client.ZRemRangeByScore(ctx, r.threadsKey(), "-inf", cutoff).Result(); err != nil {
		return removed, err
	}

	return removed, nil
}

func (r *redisChatRepository) loadMessages(ctx context.Context, keys []string) ([]models.ChatMessage, error) {
	if len(keys) == 0 {
		return []models.ChatMessage{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var message models.ChatMessage
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			continue
		}
		messages = append(messages, message)
	}

	return messages, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/storefront-api/internal/models"
)

// Default retention windows enforced by the stores.
const (
	DefaultChatRetention   = 12 * time.Hour
	DefaultNoticeRetention = 24 * time.Hour
)

const (
	defaultThreadLimit = 20
	maxThreadLimit     = 100
	maxRecentThreads   = 200
)

// ErrChatExpired is returned when a message is saved after its retention window has passed.
var ErrChatExpired = errors.New("chat message already past retention")

// ChatRepository persists chat messages with a fixed retention window.
// Messages older than the window are never returned.
type ChatRepository interface {
	Save(ctx context.Context, message *models.ChatMessage) error
	ListThread(ctx context.Context, threadUserID string, before time.Time, limit int) ([]models.ChatMessage, error)
	LatestPerThread(ctx context.Context, limit int) ([]models.ChatMessage, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type chatRepository struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB, retention time.Duration) ChatRepository {
	if retention <= 0 {
		retention = DefaultChatRetention
	}
	return &chatRepository{db: db, retention: retention, now: time.Now}
}

func (r *chatRepository) cutoff() time.Time {
	return r.now().UTC().Add(-r.retention)
}

func (r *chatRepository) Save(ctx context.Context, message *models.ChatMessage) error {
	if !message.CreatedAt.IsZero() && !message.CreatedAt.After(r.cutoff()) {
		return ErrChatExpired
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *chatRepository) ListThread(ctx context.Context, threadUserID string, before time.Time, limit int) ([]models.ChatMessage, error) {
	limit = clampThreadLimit(limit)

	query := r.db.WithContext(ctx).
		Where("thread_user_id = ?", threadUserID).
		Where("created_at > ?", r.cutoff())
	if !before.IsZero() {
		query = query.Where("created_at < ?", before.UTC())
	}

	var messages []models.ChatMessage
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

func (r *chatRepository) LatestPerThread(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > maxRecentThreads {
		limit = maxRecentThreads
	}

	cutoff := r.cutoff()
	latest := r.db.Model(&models.ChatMessage{}).
		Select("thread_user_id, MAX(created_at) AS last_at").
		Where("created_at > ?", cutoff).
		Group("thread_user_id")

	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Table("chat_messages AS m").
		Select("m.*").
		Joins("JOIN (?) AS l ON l.thread_user_id = m.thread_user_id AND l.last_at = m.created_at", latest).
		Order("m.created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	return dedupeByThread(messages), nil
}

// PurgeExpired removes rows that fell out of the retention window.
func (r *chatRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at <= ?", r.cutoff()).Delete(&models.ChatMessage{})
	return result.RowsAffected, result.Error
}

func clampThreadLimit(limit int) int {
	if limit <= 0 {
		return defaultThreadLimit
	}
	if limit > maxThreadLimit {
		return maxThreadLimit
	}
	return limit
}

// Reverse to chronological order ascending for clients.
func reverseMessages(messages []models.ChatMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// dedupeByThread keeps the first row per thread; input is newest first.
func dedupeByThread(messages []models.ChatMessage) []models.ChatMessage {
	seen := make(map[string]struct{}, len(messages))
	out := make([]models.ChatMessage, 0, len(messages))
	for _, message := range messages {
		if _, ok := seen[message.ThreadUserID]; ok {
			continue
		}
		seen[message.ThreadUserID] = struct{}{}
		out = append(out, message)
	}
	return out
}

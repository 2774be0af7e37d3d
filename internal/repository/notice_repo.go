package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/storefront-api/internal/models"
)

// NoticeRepository handles persistence for broadcast notices.
type NoticeRepository interface {
	Create(ctx context.Context, notice *models.Notice) error
	ListActive(ctx context.Context, limit int) ([]models.Notice, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type noticeRepository struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

// NewNoticeRepository constructs a repository backed by GORM.
func NewNoticeRepository(db *gorm.DB, retention time.Duration) NoticeRepository {
	if retention <= 0 {
		retention = DefaultNoticeRetention
	}
	return &noticeRepository{db: db, retention: retention, now: time.Now}
}

func (r *noticeRepository) cutoff() time.Time {
	return r.now().UTC().Add(-r.retention)
}

func (r *noticeRepository) Create(ctx context.Context, notice *models.Notice) error {
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = r.now().UTC()
	}
	return r.db.WithContext(ctx).Create(notice).Error
}

func (r *noticeRepository) ListActive(ctx context.Context, limit int) ([]models.Notice, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var notices []models.Notice
	if err := r.db.WithContext(ctx).
		Where("created_at > ?", r.cutoff()).
		Order("created_at DESC").
		Limit(limit).
		Find(&notices).Error; err != nil {
		return nil, err
	}

	return notices, nil
}

func (r *noticeRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at <= ?", r.cutoff()).Delete(&models.Notice{})
	return result.RowsAffected, result.Error
}

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/storefront-api/internal/models"
)

func TestChatRepositoryListThreadReturnsMostRecentAscending(t *testing.T) {
	db := setupTestDB(t, &models.ChatMessage{})
	repo := NewChatRepository(db, DefaultChatRetention)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	seedThread(t, repo, "u1", base, 5)
	seedThread(t, repo, "u2", base, 2)

	messages, err := repo.ListThread(context.Background(), "u1", time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "msg-2", messages[0].Text)
	require.Equal(t, "msg-3", messages[1].Text)
	require.Equal(t, "msg-4", messages[2].Text)
	for _, message := range messages {
		require.Equal(t, "u1", message.ThreadUserID)
	}
}

func TestChatRepositoryPaginatesBackwardWithoutGapOrOverlap(t *testing.T) {
	db := setupTestDB(t, &models.ChatMessage{})
	repo := NewChatRepository(db, DefaultChatRetention)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	seedThread(t, repo, "u1", base, 7)

	first, err := repo.ListThread(context.Background(), "u1", time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := repo.ListThread(context.Background(), "u1", first[0].CreatedAt, 3)
	require.NoError(t, err)
	require.Len(t, second, 3)
	require.Equal(t, "msg-1", second[0].Text)
	require.Equal(t, "msg-3", second[2].Text)
	require.True(t, second[2].CreatedAt.Before(first[0].CreatedAt))

	third, err := repo.ListThread(context.Background(), "u1", second[0].CreatedAt, 3)
	require.NoError(t, err)
	require.Len(t, third, 1)
	require.Equal(t, "msg-0", third[0].Text)
}

func TestChatRepositoryExcludesAndPurgesExpiredMessages(t *testing.T) {
	db := setupTestDB(t, &models.ChatMessage{})
	repo := NewChatRepository(db, DefaultChatRetention)

	now := time.Now().UTC().Truncate(time.Microsecond)
	stale := models.ChatMessage{ThreadUserID: "u1", Direction: models.DirectionFromUser, Text: "old", CreatedAt: now.Add(-13 * time.Hour)}
	fresh := models.ChatMessage{ThreadUserID: "u1", Direction: models.DirectionFromAdmin, Text: "new", CreatedAt: now.Add(-time.Minute)}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, repo.Save(context.Background(), &fresh))

	messages, err := repo.ListThread(context.Background(), "u1", time.Time{}, 20)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "new", messages[0].Text)

	removed, err := repo.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, db.Model(&models.ChatMessage{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestChatRepositorySaveRejectsMessagePastRetention(t *testing.T) {
	db := setupTestDB(t, &models.ChatMessage{})
	repo := NewChatRepository(db, DefaultChatRetention)

	stale := models.ChatMessage{ThreadUserID: "u1", Direction: models.DirectionFromUser, Text: "late", CreatedAt: time.Now().UTC().Add(-13 * time.Hour)}
	err := repo.Save(context.Background(), &stale)
	require.ErrorIs(t, err, ErrChatExpired)
	require.Zero(t, stale.ID)

	var count int64
	require.NoError(t, db.Model(&models.ChatMessage{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestChatRepositoryUnknownThreadIsEmpty(t *testing.T) {
	db := setupTestDB(t, &models.ChatMessage{})
	repo := NewChatRepository(db, DefaultChatRetention)

	messages, err := repo.ListThread(context.Background(), "nobody", time.Time{}, 20)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestChatRepositoryLatestPerThread(t *testing.T) {
	db := setupTestDB(t, &models.ChatMessage{})
	repo := NewChatRepository(db, DefaultChatRetention)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	seedThread(t, repo, "u1", base, 3)
	seedThread(t, repo, "u2", base.Add(10*time.Minute), 2)

	expired := models.ChatMessage{ThreadUserID: "u3", Direction: models.DirectionFromUser, Text: "gone", CreatedAt: base.Add(-24 * time.Hour)}
	require.NoError(t, db.Create(&expired).Error)

	latest, err := repo.LatestPerThread(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "u2", latest[0].ThreadUserID)
	require.Equal(t, "msg-1", latest[0].Text)
	require.Equal(t, "u1", latest[1].ThreadUserID)
	require.Equal(t, "msg-2", latest[1].Text)
}

func TestNoticeRepositoryListActiveAndPurge(t *testing.T) {
	db := setupTestDB(t, &models.Notice{})
	repo := NewNoticeRepository(db, DefaultNoticeRetention)

	now := time.Now().UTC().Truncate(time.Microsecond)
	old := models.Notice{Title: "Old", Message: "expired", CreatedBy: "admin", CreatedAt: now.Add(-25 * time.Hour)}
	sale := models.Notice{Title: "Sale", Message: "50% off", CreatedBy: "admin", CreatedAt: now.Add(-time.Hour)}
	shipping := models.Notice{Message: "free shipping", CreatedBy: "admin"}
	require.NoError(t, repo.Create(context.Background(), &old))
	require.NoError(t, repo.Create(context.Background(), &sale))
	require.NoError(t, repo.Create(context.Background(), &shipping))
	require.False(t, shipping.CreatedAt.IsZero())

	notices, err := repo.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	require.Equal(t, "free shipping", notices[0].Message)
	require.Equal(t, "Sale", notices[1].Title)

	removed, err := repo.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func seedThread(t *testing.T, repo ChatRepository, userID string, base time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		direction := models.DirectionFromUser
		if i%2 == 1 {
			direction = models.DirectionFromAdmin
		}
		message := models.ChatMessage{
			ThreadUserID: userID,
			Direction:    direction,
			Text:         fmt.Sprintf("msg-%d", i),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Save(context.Background(), &message))
	}
}

func setupTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

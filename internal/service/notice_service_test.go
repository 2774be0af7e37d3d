package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/realtime"
)

type memoryNoticeRepo struct {
	mu      sync.Mutex
	items   []models.Notice
	lists   int
	failErr error
}

func (m *memoryNoticeRepo) Create(_ context.Context, notice *models.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	notice.ID = uint(len(m.items) + 1)
	notice.CreatedAt = time.Now().UTC()
	m.items = append(m.items, *notice)
	return nil
}

func (m *memoryNoticeRepo) ListActive(_ context.Context, limit int) ([]models.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := make([]models.Notice, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.items[i])
	}
	return out, nil
}

func (m *memoryNoticeRepo) PurgeExpired(context.Context) (int64, error) {
	return 0, nil
}

func newNoticeFixture(t *testing.T, cache *redis.Client) (*memoryNoticeRepo, *realtime.Registry, NoticeService) {
	t.Helper()
	repo := &memoryNoticeRepo{}
	registry := realtime.NewRegistry(zerolog.Nop())
	fanout := NewNoticeFanout(realtime.NewBroadcaster(registry, zerolog.Nop()), zerolog.Nop())
	return repo, registry, NewNoticeService(repo, fanout, cache, validator.New(), zerolog.Nop())
}

func TestNoticeCreateFansOutToEveryLiveConnection(t *testing.T) {
	_, registry, svc := newNoticeFixture(t, nil)

	register := func(id, userID string, role models.Role) *realtime.Client {
		client := realtime.NewClient(id, models.Identity{UserID: userID, Role: role}, 4)
		require.NoError(t, registry.Register(client))
		return client
	}
	u1 := register("c1", "U1", models.RoleUser)
	u2 := register("c2", "U2", models.RoleUser)
	admin := register("c3", "A", models.RoleAdmin)
	departed := register("c4", "U3", models.RoleUser)
	registry.Unregister(departed.ID)

	created, err := svc.Create(context.Background(), admin.Identity, dto.NoticeCreateRequest{Title: "Sale", Message: "50% off"})
	require.NoError(t, err)
	require.Equal(t, "A", created.CreatedBy)

	for _, client := range []*realtime.Client{u1, u2, admin} {
		frame := nextFrame(t, client)
		require.Equal(t, realtime.EventNoticeNew, frame.Type)
		var notice dto.NoticeBroadcast
		require.NoError(t, json.Unmarshal(frame.Data, &notice))
		require.Equal(t, created.ID, notice.ID)
		require.Equal(t, "Sale", notice.Title)
		require.Equal(t, "50% off", notice.Message)
	}

	select {
	case raw := <-departed.Outbound():
		t.Fatalf("departed connection received %s", raw)
	default:
	}
}

func TestNoticeCreateRequiresAdmin(t *testing.T) {
	repo, registry, svc := newNoticeFixture(t, nil)
	user := realtime.NewClient("c1", models.Identity{UserID: "U1", Role: models.RoleUser}, 4)
	require.NoError(t, registry.Register(user))

	_, err := svc.Create(context.Background(), user.Identity, dto.NoticeCreateRequest{Message: "free stuff"})
	require.ErrorIs(t, err, ErrNoticeForbidden)
	require.Empty(t, repo.items)
	requireSilent(t, user)
}

func TestNoticeCreateValidatesMessage(t *testing.T) {
	repo, _, svc := newNoticeFixture(t, nil)
	admin := models.Identity{UserID: "A", Role: models.RoleAdmin}

	_, err := svc.Create(context.Background(), admin, dto.NoticeCreateRequest{Title: "Empty", Message: "  <i></i> "})
	require.ErrorIs(t, err, ErrNoticeInvalidPayload)
	require.Empty(t, repo.items)
}

func TestNoticeCreatePersistenceFailureSkipsFanout(t *testing.T) {
	repo, registry, svc := newNoticeFixture(t, nil)
	repo.failErr = errors.New("db down")
	user := realtime.NewClient("c1", models.Identity{UserID: "U1", Role: models.RoleUser}, 4)
	require.NoError(t, registry.Register(user))

	_, err := svc.Create(context.Background(), models.Identity{UserID: "A", Role: models.RoleAdmin}, dto.NoticeCreateRequest{Message: "hello"})
	require.Error(t, err)
	requireSilent(t, user)
}

func TestNoticeListActiveUsesCacheUntilNextNotice(t *testing.T) {
	server := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	repo, _, svc := newNoticeFixture(t, cache)
	admin := models.Identity{UserID: "A", Role: models.RoleAdmin}
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, dto.NoticeCreateRequest{Message: "first"})
	require.NoError(t, err)

	items, err := svc.ListActive(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = svc.ListActive(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, repo.lists)

	_, err = svc.Create(ctx, admin, dto.NoticeCreateRequest{Message: "second"})
	require.NoError(t, err)

	items, err = svc.ListActive(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "second", items[0].Message)
	require.Equal(t, 2, repo.lists)
}

func TestNoticeCreateKeepsEncodedMarkupInert(t *testing.T) {
	_, registry, svc := newNoticeFixture(t, nil)
	user := realtime.NewClient("c1", models.Identity{UserID: "U1", Role: models.RoleUser}, 4)
	require.NoError(t, registry.Register(user))

	created, err := svc.Create(context.Background(), models.Identity{UserID: "A", Role: models.RoleAdmin}, dto.NoticeCreateRequest{
		Title:   "&lt;b&gt;Sale&lt;/b&gt;",
		Message: "&lt;script&gt;alert(1)&lt;/script&gt;",
	})
	require.NoError(t, err)
	require.NotContains(t, created.Title, "<")
	require.NotContains(t, created.Message, "<")

	frame := nextFrame(t, user)
	var notice dto.NoticeBroadcast
	require.NoError(t, json.Unmarshal(frame.Data, &notice))
	require.NotContains(t, notice.Title, "<")
	require.NotContains(t, notice.Message, "<script")
}

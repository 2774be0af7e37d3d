package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("STOREFRONT_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ChatStorePostgres, cfg.ChatStore)
	require.Equal(t, 12*time.Hour, cfg.ChatRetention)
	require.Equal(t, 24*time.Hour, cfg.NoticeRetention)
	require.Equal(t, 20, cfg.ChatPageSize)
	require.Equal(t, 5*time.Second, cfg.TypingTimeout)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "*", cfg.AllowOrigins)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("STOREFRONT_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRedisStoreNeedsURL(t *testing.T) {
	t.Setenv("STOREFRONT_JWT_SECRET", "secret")
	t.Setenv("STOREFRONT_CHAT_STORE", "redis")
	t.Setenv("STOREFRONT_REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("STOREFRONT_JWT_SECRET", "secret")
	t.Setenv("STOREFRONT_CHAT_RETENTION", "soon")

	_, err := Load()
	require.Error(t, err)
}

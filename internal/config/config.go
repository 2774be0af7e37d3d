package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Chat store backends.
const (
	ChatStorePostgres = "postgres"
	ChatStoreRedis    = "redis"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	AllowOrigins         string
	LogLevel             string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	JWTSecret            string
	ChatStore            string
	ChatRetention        time.Duration
	ChatPageSize         int
	NoticeRetention      time.Duration
	RealtimeChannel      string
	RealtimeSendBuffer   int
	RealtimePingInterval time.Duration
	TypingTimeout        time.Duration
	StoreSweepInterval   time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STOREFRONT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Storefront API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.allow_origins", "*")
	v.SetDefault("chat.store", ChatStorePostgres)
	v.SetDefault("chat.retention", "12h")
	v.SetDefault("chat.page_size", 20)
	v.SetDefault("notice.retention", "24h")
	v.SetDefault("realtime.channel", "storefront:realtime")
	v.SetDefault("realtime.send_buffer", 32)
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.typing_timeout", "5s")
	v.SetDefault("store.sweep_interval", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"chat.retention", "notice.retention", "realtime.ping_interval", "realtime.typing_timeout", "store.sweep_interval"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		AllowOrigins:         v.GetString("http.allow_origins"),
		LogLevel:             strings.ToLower(v.GetString("log.level")),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		ChatStore:            strings.ToLower(strings.TrimSpace(v.GetString("chat.store"))),
		ChatRetention:        durations["chat.retention"],
		ChatPageSize:         v.GetInt("chat.page_size"),
		NoticeRetention:      durations["notice.retention"],
		RealtimeChannel:      v.GetString("realtime.channel"),
		RealtimeSendBuffer:   v.GetInt("realtime.send_buffer"),
		RealtimePingInterval: durations["realtime.ping_interval"],
		TypingTimeout:        durations["realtime.typing_timeout"],
		StoreSweepInterval:   durations["store.sweep_interval"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.ChatStore {
	case ChatStorePostgres:
	case ChatStoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis url required when chat store is %q", ChatStoreRedis)
		}
	default:
		return Config{}, fmt.Errorf("unsupported chat store %q", cfg.ChatStore)
	}

	if cfg.ChatPageSize <= 0 || cfg.ChatPageSize > 100 {
		cfg.ChatPageSize = 20
	}

	if cfg.RealtimeSendBuffer <= 0 {
		cfg.RealtimeSendBuffer = 32
	}

	return cfg, nil
}

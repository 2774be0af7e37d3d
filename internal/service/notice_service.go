package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/realtime"
	"github.com/noah-isme/storefront-api/internal/repository"
)

const (
	defaultNoticeListLimit = 50
	maxNoticeListLimit     = 100
	noticeCacheKeyPrefix   = "notices:active:v1"
)

var (
	// ErrNoticeForbidden indicates a non-admin attempted to create a notice.
	ErrNoticeForbidden = errors.New("notice creation requires an admin identity")
	// ErrNoticeInvalidPayload indicates the notice failed validation.
	ErrNoticeInvalidPayload = errors.New("invalid notice payload")
)

// NoticeFanout pushes a persisted notice to every live connection.
type NoticeFanout interface {
	Broadcast(ctx context.Context, notice dto.NoticeResponse) int
}

type noticeFanout struct {
	broadcaster *realtime.Broadcaster
	logger      zerolog.Logger
}

// NewNoticeFanout creates the notice fan-out over the realtime broadcaster.
func NewNoticeFanout(broadcaster *realtime.Broadcaster, logger zerolog.Logger) NoticeFanout {
	return &noticeFanout{
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "notice_fanout").Logger(),
	}
}

func (f *noticeFanout) Broadcast(ctx context.Context, notice dto.NoticeResponse) int {
	frame := realtime.Outbound{Type: realtime.EventNoticeNew, Data: dto.NewNoticeBroadcast(notice)}
	delivered := f.broadcaster.Deliver(ctx, frame, realtime.ToAll())
	f.logger.Info().Uint("notice_id", notice.ID).Int("delivered", delivered).Msg("notice fanned out")
	return delivered
}

// NoticeService creates and lists broadcast notices.
type NoticeService interface {
	Create(ctx context.Context, actor models.Identity, req dto.NoticeCreateRequest) (dto.NoticeResponse, error)
	ListActive(ctx context.Context, limit int) ([]dto.NoticeResponse, error)
}

type noticeService struct {
	repo      repository.NoticeRepository
	fanout    NoticeFanout
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	policy    *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewNoticeService constructs the notice service. cache may be nil.
func NewNoticeService(repo repository.NoticeRepository, fanout NoticeFanout, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger) NoticeService {
	return &noticeService{
		repo:      repo,
		fanout:    fanout,
		cache:     cache,
		cacheTTL:  30 * time.Second,
		validator: validate,
		policy:    bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "notice_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/storefront-api/internal/service/notice"),
	}
}

func (s *noticeService) Create(ctx context.Context, actor models.Identity, req dto.NoticeCreateRequest) (dto.NoticeResponse, error) {
	if !actor.IsAdmin() {
		return dto.NoticeResponse{}, ErrNoticeForbidden
	}

	req.Title = s.sanitize(req.Title)
	req.Message = s.sanitize(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return dto.NoticeResponse{}, fmt.Errorf("%w: %v", ErrNoticeInvalidPayload, err)
	}

	ctx, span := s.tracer.Start(ctx, "notice.create", trace.WithAttributes(attribute.String("notice.created_by", actor.UserID)))
	defer span.End()

	model := models.Notice{
		Title:     req.Title,
		Message:   req.Message,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, &model); err != nil {
		span.RecordError(err)
		return dto.NoticeResponse{}, fmt.Errorf("persist notice: %w", err)
	}

	s.invalidateCache(ctx)

	response := dto.NewNoticeResponse(model)
	s.fanout.Broadcast(ctx, response)
	observability.NoticesPublished().Inc()

	return response, nil
}

func (s *noticeService) ListActive(ctx context.Context, limit int) ([]dto.NoticeResponse, error) {
	if limit <= 0 {
		limit = defaultNoticeListLimit
	}
	if limit > maxNoticeListLimit {
		limit = maxNoticeListLimit
	}

	cacheKey := fmt.Sprintf("%s:%d", noticeCacheKeyPrefix, limit)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var response []dto.NoticeResponse
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				return response, nil
			}
		}
	}

	items, err := s.repo.ListActive(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	response := dto.NewNoticeResponseSlice(items)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache notices")
			}
		}
	}

	return response, nil
}

func (s *noticeService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	keys, err := s.cache.Keys(ctx, noticeCacheKeyPrefix+":*").Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list notice cache keys")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate notice cache")
	}
}

func (s *noticeService) sanitize(value string) string {
	return strings.TrimSpace(s.policy.Sanitize(value))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/realtime"
	"github.com/noah-isme/storefront-api/internal/repository"
)

const (
	defaultChatPageSize = 20
	maxChatPageSize     = 100
	maxRecentThreads    = 200
)

var (
	// ErrChatForbidden indicates the identity may not perform the chat action.
	ErrChatForbidden = errors.New("chat action not permitted")
	// ErrChatInvalidPayload indicates a missing or malformed field.
	ErrChatInvalidPayload = errors.New("invalid chat payload")
)

// ChatSender identifies the connection an event arrived on. ConnectionID is empty for REST callers.
type ChatSender struct {
	Identity     models.Identity
	ConnectionID string
}

// ChatOptions tunes the chat relay.
type ChatOptions struct {
	PageSize      int
	TypingTimeout time.Duration
}

// ChatService relays chat messages and typing signals between shoppers and admins.
type ChatService interface {
	SendUserMessage(ctx context.Context, sender ChatSender, req dto.ChatUserMessageRequest) (dto.ChatMessageResponse, error)
	SendAdminMessage(ctx context.Context, sender ChatSender, req dto.ChatAdminMessageRequest) (dto.ChatMessageResponse, error)
	Thread(ctx context.Context, identity models.Identity, query dto.ChatThreadQuery) (dto.ChatThreadResponse, error)
	RecentThreads(ctx context.Context, identity models.Identity) ([]dto.ChatThreadSummary, error)
	Typing(ctx context.Context, sender ChatSender, req dto.ChatTypingRequest) error
	Disconnected(ctx context.Context, identity models.Identity, remaining int)
	Close()
}

type chatService struct {
	repo        repository.ChatRepository
	broadcaster *realtime.Broadcaster
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	typing      *realtime.TypingTracker
	clock       *threadClock
	pageSize    int
}

// NewChatService creates the chat relay.
func NewChatService(repo repository.ChatRepository, broadcaster *realtime.Broadcaster, validate *validator.Validate, logger zerolog.Logger, opts ChatOptions) ChatService {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultChatPageSize
	}
	if pageSize > maxChatPageSize {
		pageSize = maxChatPageSize
	}

	svc := &chatService{
		repo:        repo,
		broadcaster: broadcaster,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "chat_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/storefront-api/internal/service/chat"),
		clock:       newThreadClock(time.Now),
		pageSize:    pageSize,
	}
	svc.typing = realtime.NewTypingTracker(opts.TypingTimeout, svc.typingExpired)

	return svc
}

func (s *chatService) SendUserMessage(ctx context.Context, sender ChatSender, req dto.ChatUserMessageRequest) (dto.ChatMessageResponse, error) {
	identity := sender.Identity
	if identity.IsZero() || identity.IsAdmin() {
		return dto.ChatMessageResponse{}, ErrChatForbidden
	}

	text, err := s.cleanText(req.Text)
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}
	req.Text = text
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatMessageResponse{}, fmt.Errorf("%w: %v", ErrChatInvalidPayload, err)
	}

	response, err := s.persist(ctx, identity.UserID, models.DirectionFromUser, text)
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}

	s.typing.Clear(realtime.TypingKey{ThreadUserID: identity.UserID, Direction: models.DirectionFromUser})

	frame := realtime.Outbound{Type: realtime.EventChatMessage, Data: response}
	s.broadcaster.Deliver(ctx, frame, realtime.ToAdmins(), realtime.ToUser(identity.UserID).Excluding(sender.ConnectionID))

	return response, nil
}

func (s *chatService) SendAdminMessage(ctx context.Context, sender ChatSender, req dto.ChatAdminMessageRequest) (dto.ChatMessageResponse, error) {
	if !sender.Identity.IsAdmin() {
		return dto.ChatMessageResponse{}, ErrChatForbidden
	}

	req.TargetUserID = strings.TrimSpace(req.TargetUserID)
	text, err := s.cleanText(req.Text)
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}
	req.Text = text
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatMessageResponse{}, fmt.Errorf("%w: %v", ErrChatInvalidPayload, err)
	}

	response, err := s.persist(ctx, req.TargetUserID, models.DirectionFromAdmin, text)
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}

	s.typing.Clear(realtime.TypingKey{ThreadUserID: req.TargetUserID, Direction: models.DirectionFromAdmin})

	frame := realtime.Outbound{Type: realtime.EventChatMessage, Data: response}
	s.broadcaster.Deliver(ctx, frame, realtime.ToUser(req.TargetUserID), realtime.ToAdmins().Excluding(sender.ConnectionID))

	return response, nil
}

func (s *chatService) persist(ctx context.Context, threadUserID string, direction models.Direction, text string) (dto.ChatMessageResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.String("chat.thread_user_id", threadUserID),
		attribute.String("chat.direction", string(direction)),
	}
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		attrs = append(attrs, attribute.String("correlation_id", correlation))
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.relay", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.ChatMessage{
		ThreadUserID: threadUserID,
		Direction:    direction,
		Text:         text,
		CreatedAt:    s.clock.next(threadUserID),
	}

	if err := s.repo.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("thread_user_id", threadUserID).Str("direction", string(direction)).Msg("failed to persist chat message")
		return dto.ChatMessageResponse{}, fmt.Errorf("persist chat message: %w", err)
	}

	observability.ChatMessagesPersisted().WithLabelValues(string(direction)).Inc()
	return dto.NewChatMessageResponse(model), nil
}

func (s *chatService) Thread(ctx context.Context, identity models.Identity, query dto.ChatThreadQuery) (dto.ChatThreadResponse, error) {
	if identity.IsZero() {
		return dto.ChatThreadResponse{}, ErrChatForbidden
	}

	threadUserID := identity.UserID
	if identity.IsAdmin() {
		threadUserID = strings.TrimSpace(query.TargetUserID)
		if threadUserID == "" {
			return dto.ChatThreadResponse{}, fmt.Errorf("%w: target_user_id required", ErrChatInvalidPayload)
		}
	}
	query.TargetUserID = threadUserID

	if err := s.validator.Struct(query); err != nil {
		return dto.ChatThreadResponse{}, fmt.Errorf("%w: %v", ErrChatInvalidPayload, err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.pageSize
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.repo.ListThread(ctx, threadUserID, before, limit)
	if err != nil {
		return dto.ChatThreadResponse{}, fmt.Errorf("list chat thread: %w", err)
	}

	response := dto.ChatThreadResponse{
		ThreadUserID: threadUserID,
		Messages:     dto.NewChatMessageResponseSlice(messages),
	}
	if len(messages) > 0 && len(messages) == limit {
		oldest := messages[0].CreatedAt
		response.NextBefore = &oldest
	}

	return response, nil
}

func (s *chatService) RecentThreads(ctx context.Context, identity models.Identity) ([]dto.ChatThreadSummary, error) {
	if !identity.IsAdmin() {
		return nil, ErrChatForbidden
	}

	messages, err := s.repo.LatestPerThread(ctx, maxRecentThreads)
	if err != nil {
		return nil, fmt.Errorf("list recent threads: %w", err)
	}

	summaries := make([]dto.ChatThreadSummary, 0, len(messages))
	for _, message := range messages {
		summaries = append(summaries, dto.NewChatThreadSummary(message))
	}
	return summaries, nil
}

func (s *chatService) Typing(ctx context.Context, sender ChatSender, req dto.ChatTypingRequest) error {
	identity := sender.Identity
	if identity.IsZero() {
		return ErrChatForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrChatInvalidPayload, err)
	}

	key := realtime.TypingKey{ThreadUserID: identity.UserID, Direction: models.DirectionFromUser}
	if identity.IsAdmin() {
		target := strings.TrimSpace(req.TargetUserID)
		if target == "" {
			return fmt.Errorf("%w: target_user_id required", ErrChatInvalidPayload)
		}
		key = realtime.TypingKey{ThreadUserID: target, Direction: models.DirectionFromAdmin}
	}

	isTyping := *req.IsTyping
	if isTyping {
		s.typing.Set(key)
	} else {
		s.typing.Clear(key)
	}

	s.relayTyping(ctx, key, isTyping)
	return nil
}

// Disconnected clears a shopper's typing indicator once their last connection is gone.
func (s *chatService) Disconnected(ctx context.Context, identity models.Identity, remaining int) {
	if remaining > 0 || identity.IsZero() || identity.IsAdmin() {
		return
	}
	key := realtime.TypingKey{ThreadUserID: identity.UserID, Direction: models.DirectionFromUser}
	if s.typing.Clear(key) {
		s.relayTyping(ctx, key, false)
	}
}

func (s *chatService) Close() {
	s.typing.Stop()
}

func (s *chatService) typingExpired(key realtime.TypingKey) {
	s.logger.Debug().Str("thread_user_id", key.ThreadUserID).Str("direction", string(key.Direction)).Msg("typing indicator expired")
	s.relayTyping(context.Background(), key, false)
}

func (s *chatService) relayTyping(ctx context.Context, key realtime.TypingKey, isTyping bool) {
	frame := realtime.Outbound{
		Type: realtime.EventChatTyping,
		Data: dto.ChatTypingEvent{
			ThreadUserID: key.ThreadUserID,
			Direction:    key.Direction,
			IsTyping:     isTyping,
		},
	}

	target := realtime.ToAdmins()
	if key.Direction == models.DirectionFromAdmin {
		target = realtime.ToUser(key.ThreadUserID)
	}
	s.broadcaster.Deliver(ctx, frame, target)
}

func (s *chatService) cleanText(raw string) (string, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if clean == "" {
		return "", fmt.Errorf("%w: text empty after sanitization", ErrChatInvalidPayload)
	}
	return clean, nil
}

// threadClock hands out creation timestamps that strictly increase per thread at
// microsecond resolution, the precision kept by every message store.
type threadClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last map[string]time.Time
}

func newThreadClock(now func() time.Time) *threadClock {
	return &threadClock{now: now, last: make(map[string]time.Time)}
}

func (c *threadClock) next(threadUserID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.now().UTC().Truncate(time.Microsecond)
	if last, ok := c.last[threadUserID]; ok && !current.After(last) {
		current = last.Add(time.Microsecond)
	}
	c.last[threadUserID] = current

	if len(c.last) > 4096 {
		horizon := current.Add(-time.Second)
		for thread, stamp := range c.last {
			if stamp.Before(horizon) {
				delete(c.last, thread)
			}
		}
	}

	return current
}

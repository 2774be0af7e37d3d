package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/realtime"
)

// GatewayConn is the subset of a websocket connection used by the gateway.
type GatewayConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// GatewayConnectionOptions wraps metadata extracted during the HTTP upgrade.
type GatewayConnectionOptions struct {
	Identity      models.Identity
	CorrelationID string
	Context       context.Context
}

// GatewayOptions tunes per-connection behaviour.
type GatewayOptions struct {
	SendBuffer   int
	PingInterval time.Duration
}

// GatewayService owns the realtime connection lifecycle and dispatches inbound events.
type GatewayService interface {
	ServeConnection(conn GatewayConn, opts GatewayConnectionOptions) error
}

type gatewayService struct {
	registry     *realtime.Registry
	chat         ChatService
	payloads     *realtime.PayloadValidator
	logger       zerolog.Logger
	sendBuffer   int
	pingInterval time.Duration
}

// NewGatewayService creates the realtime gateway.
func NewGatewayService(registry *realtime.Registry, chat ChatService, payloads *realtime.PayloadValidator, logger zerolog.Logger, opts GatewayOptions) GatewayService {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &gatewayService{
		registry:     registry,
		chat:         chat,
		payloads:     payloads,
		logger:       logger.With().Str("component", "realtime_gateway").Logger(),
		sendBuffer:   opts.SendBuffer,
		pingInterval: opts.PingInterval,
	}
}

// ServeConnection registers the connection and blocks until it closes.
func (s *gatewayService) ServeConnection(conn GatewayConn, opts GatewayConnectionOptions) error {
	if opts.Identity.IsZero() {
		_ = conn.Close()
		return realtime.ErrAnonymousConnection
	}

	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	correlation := opts.CorrelationID
	if correlation == "" {
		correlation = middleware.CorrelationIDFromContext(baseCtx)
	}
	ctx, cancel := context.WithCancel(middleware.ContextWithCorrelation(baseCtx, correlation))
	defer cancel()

	client := realtime.NewClient(uuid.NewString(), opts.Identity, s.sendBuffer)
	if err := s.registry.Register(client); err != nil {
		_ = conn.Close()
		return err
	}

	role := string(opts.Identity.Role)
	observability.RealtimeConnections().WithLabelValues(role).Inc()
	logger := s.logger.With().
		Str("connection_id", client.ID).
		Str("user_id", opts.Identity.UserID).
		Str("role", role).
		Str("correlation_id", correlation).
		Logger()
	logger.Info().Msg("realtime connection opened")

	s.reply(client, realtime.Outbound{Type: realtime.EventReady, Data: realtime.Ready{
		ConnectionID: client.ID,
		UserID:       opts.Identity.UserID,
		Role:         role,
	}})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writer(ctx, conn, client, logger)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("realtime read loop ended")
			break
		}
		s.Dispatch(ctx, client, raw)
	}

	s.registry.Unregister(client.ID)
	cancel()
	_ = conn.Close()
	wg.Wait()

	observability.RealtimeConnections().WithLabelValues(role).Dec()
	s.chat.Disconnected(context.Background(), opts.Identity, len(s.registry.ConnectionsFor(opts.Identity.UserID)))
	logger.Info().Msg("realtime connection closed")

	return nil
}

// writer is the only goroutine that writes to the socket.
func (s *gatewayService) writer(ctx context.Context, conn GatewayConn, client *realtime.Client, logger zerolog.Logger) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer func() {
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-client.Outbound():
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-client.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch handles one inbound frame to completion.
func (s *gatewayService) Dispatch(ctx context.Context, client *realtime.Client, raw []byte) {
	frame, err := realtime.ParseInbound(raw)
	if err != nil {
		observability.RealtimeEvents().WithLabelValues("unknown", "malformed").Inc()
		s.logger.Warn().Err(err).Str("connection_id", client.ID).Msg("dropping malformed realtime frame")
		return
	}

	if err := s.payloads.Validate(frame.Type, frame.Payload); err != nil {
		s.reject(client, frame, err)
		return
	}

	sender := ChatSender{Identity: client.Identity, ConnectionID: client.ID}

	switch frame.Type {
	case realtime.EventPing:
		observability.RealtimeEvents().WithLabelValues(frame.Type, "ok").Inc()
		s.reply(client, realtime.Outbound{Type: realtime.EventPong, RequestID: frame.RequestID})

	case realtime.EventUserMessage:
		var req dto.ChatUserMessageRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			s.reject(client, frame, err)
			return
		}
		message, err := s.chat.SendUserMessage(ctx, sender, req)
		s.complete(client, frame, message, err, false)

	case realtime.EventAdminMessage:
		var req dto.ChatAdminMessageRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			s.reject(client, frame, err)
			return
		}
		message, err := s.chat.SendAdminMessage(ctx, sender, req)
		s.complete(client, frame, message, err, false)

	case realtime.EventGetThread:
		query, err := decodeThreadQuery(frame.Payload)
		if err != nil {
			s.reject(client, frame, err)
			return
		}
		thread, err := s.chat.Thread(ctx, client.Identity, query)
		s.complete(client, frame, thread, err, true)

	case realtime.EventGetRecentThreads:
		threads, err := s.chat.RecentThreads(ctx, client.Identity)
		s.complete(client, frame, threads, err, true)

	case realtime.EventTyping:
		var req dto.ChatTypingRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			s.reject(client, frame, err)
			return
		}
		err := s.chat.Typing(ctx, sender, req)
		s.complete(client, frame, nil, err, false)

	default:
		s.reject(client, frame, fmt.Errorf("%w: %q", realtime.ErrUnknownEvent, frame.Type))
	}
}

// complete records the outcome and answers with an ack when the event asks for one.
func (s *gatewayService) complete(client *realtime.Client, frame realtime.Inbound, result interface{}, err error, alwaysAck bool) {
	if err != nil {
		s.reject(client, frame, err)
		return
	}

	observability.RealtimeEvents().WithLabelValues(frame.Type, "ok").Inc()
	if alwaysAck || frame.RequestID != "" {
		s.reply(client, realtime.NewAck(frame.RequestID, result))
	}
}

// reject drops an event. The sender only learns about it through an error ack when it supplied a request id.
func (s *gatewayService) reject(client *realtime.Client, frame realtime.Inbound, err error) {
	outcome, message := classifyRealtimeError(err)
	observability.RealtimeEvents().WithLabelValues(eventLabel(frame.Type), outcome).Inc()

	event := s.logger.Warn()
	if outcome == "failed" {
		event = s.logger.Error()
	}
	event.Err(err).
		Str("connection_id", client.ID).
		Str("user_id", client.Identity.UserID).
		Str("event", frame.Type).
		Str("request_id", frame.RequestID).
		Msg("realtime event dropped")

	if frame.RequestID != "" {
		s.reply(client, realtime.NewErrorAck(frame.RequestID, message))
	}
}

func (s *gatewayService) reply(client *realtime.Client, frame realtime.Outbound) {
	raw, err := realtime.Encode(frame)
	if err != nil {
		s.logger.Error().Err(err).Str("event", frame.Type).Msg("failed to encode reply")
		return
	}
	if client.Enqueue(raw) {
		observability.RealtimeDeliveries().WithLabelValues(frame.Type, "delivered").Inc()
		return
	}
	observability.RealtimeDeliveries().WithLabelValues(frame.Type, "dropped").Inc()
}

func classifyRealtimeError(err error) (outcome string, message string) {
	switch {
	case errors.Is(err, realtime.ErrUnknownEvent):
		return "unknown", "unknown event"
	case errors.Is(err, ErrChatForbidden):
		return "forbidden", "forbidden"
	case errors.Is(err, ErrChatInvalidPayload), errors.Is(err, realtime.ErrInvalidPayload), errors.Is(err, realtime.ErrMalformedFrame):
		return "invalid", "invalid payload"
	default:
		return "failed", "internal error"
	}
}

func eventLabel(eventType string) string {
	switch eventType {
	case realtime.EventUserMessage, realtime.EventAdminMessage, realtime.EventGetThread,
		realtime.EventGetRecentThreads, realtime.EventTyping, realtime.EventPing:
		return eventType
	default:
		return "unknown"
	}
}

func decodePayload(payload json.RawMessage, target interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("%w: %v", ErrChatInvalidPayload, err)
	}
	return nil
}

type threadPayload struct {
	TargetUserID string `json:"target_user_id"`
	Before       string `json:"before"`
	Limit        int    `json:"limit"`
}

func decodeThreadQuery(payload json.RawMessage) (dto.ChatThreadQuery, error) {
	var raw threadPayload
	if err := decodePayload(payload, &raw); err != nil {
		return dto.ChatThreadQuery{}, err
	}

	query := dto.ChatThreadQuery{
		TargetUserID: strings.TrimSpace(raw.TargetUserID),
		Limit:        raw.Limit,
	}
	if before := strings.TrimSpace(raw.Before); before != "" {
		parsed, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return dto.ChatThreadQuery{}, fmt.Errorf("%w: invalid before timestamp", ErrChatInvalidPayload)
		}
		query.Before = &parsed
	}

	return query, nil
}

package dto

import (
	"time"

	"github.com/noah-isme/storefront-api/internal/models"
)

// ChatUserMessageRequest is sent by a shopper to write into their own thread.
type ChatUserMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=2000"`
}

// ChatAdminMessageRequest is sent by the admin to write into a shopper's thread.
type ChatAdminMessageRequest struct {
	TargetUserID string `json:"target_user_id" validate:"required,max=64"`
	Text         string `json:"text" validate:"required,min=1,max=2000"`
}

// ChatThreadQuery selects a page of a thread. Non-admin callers always read their own thread.
type ChatThreadQuery struct {
	TargetUserID string     `json:"target_user_id" query:"target_user_id" validate:"omitempty,max=64"`
	Before       *time.Time `json:"before" query:"before"`
	Limit        int        `json:"limit" query:"limit" validate:"omitempty,min=1,max=100"`
}

// ChatTypingRequest carries a typing presence signal.
type ChatTypingRequest struct {
	TargetUserID string `json:"target_user_id" validate:"omitempty,max=64"`
	IsTyping     *bool  `json:"is_typing" validate:"required"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	ID           uint             `json:"id"`
	ThreadUserID string           `json:"thread_user_id"`
	Direction    models.Direction `json:"direction"`
	Text         string           `json:"text"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewChatMessageResponse converts a model into a DTO.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:           message.ID,
		ThreadUserID: message.ThreadUserID,
		Direction:    message.Direction,
		Text:         message.Text,
		CreatedAt:    message.CreatedAt,
	}
}

// NewChatMessageResponseSlice converts a slice of models into DTOs.
func NewChatMessageResponseSlice(messages []models.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}

// ChatThreadResponse is one page of a thread in ascending order.
// NextBefore is set when an older page may exist.
type ChatThreadResponse struct {
	ThreadUserID string                `json:"thread_user_id"`
	Messages     []ChatMessageResponse `json:"messages"`
	NextBefore   *time.Time            `json:"next_before,omitempty"`
}

// ChatThreadSummary is one inbox row for the admin console.
type ChatThreadSummary struct {
	UserID        string           `json:"user_id"`
	LastText      string           `json:"last_text"`
	LastDirection models.Direction `json:"last_direction"`
	LastTimestamp time.Time        `json:"last_timestamp"`
}

// NewChatThreadSummary builds an inbox row from the latest message of a thread.
func NewChatThreadSummary(message models.ChatMessage) ChatThreadSummary {
	return ChatThreadSummary{
		UserID:        message.ThreadUserID,
		LastText:      message.Text,
		LastDirection: message.Direction,
		LastTimestamp: message.CreatedAt,
	}
}

// ChatTypingEvent is pushed to the opposite party of a thread.
type ChatTypingEvent struct {
	ThreadUserID string           `json:"thread_user_id"`
	Direction    models.Direction `json:"direction"`
	IsTyping     bool             `json:"is_typing"`
}

// NoticeCreateRequest describes the payload to create a notice.
type NoticeCreateRequest struct {
	Title   string `json:"title" validate:"omitempty,max=255"`
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// NoticeResponse represents notice data returned to clients.
type NoticeResponse struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNoticeResponse converts a notice model to DTO.
func NewNoticeResponse(model models.Notice) NoticeResponse {
	return NoticeResponse{
		ID:        model.ID,
		Title:     model.Title,
		Message:   model.Message,
		CreatedBy: model.CreatedBy,
		CreatedAt: model.CreatedAt,
	}
}

// NewNoticeResponseSlice converts a slice to DTOs.
func NewNoticeResponseSlice(items []models.Notice) []NoticeResponse {
	out := make([]NoticeResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNoticeResponse(item))
	}
	return out
}

// NoticeBroadcast is the payload of a notice:new push event.
type NoticeBroadcast struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNoticeBroadcast strips a notice down to its broadcast shape.
func NewNoticeBroadcast(notice NoticeResponse) NoticeBroadcast {
	return NoticeBroadcast{
		ID:        notice.ID,
		Title:     notice.Title,
		Message:   notice.Message,
		CreatedAt: notice.CreatedAt,
	}
}

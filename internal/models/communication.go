package models

import (
	"time"
)

// Direction tells which side of a thread wrote a message.
type Direction string

// Message directions.
const (
	DirectionFromUser  Direction = "from-user"
	DirectionFromAdmin Direction = "from-admin"
)

// ChatMessage is one message in the thread between a shopper and the admin.
type ChatMessage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ThreadUserID string    `gorm:"size:64;not null;index:idx_chat_thread_created,priority:1" json:"thread_user_id"`
	Direction    Direction `gorm:"size:16;not null" json:"direction"`
	Text         string    `gorm:"type:text;not null" json:"text"`
	CreatedAt    time.Time `gorm:"not null;index:idx_chat_thread_created,priority:2;index" json:"created_at"`
}

// Notice is an announcement broadcast to every connected client.
type Notice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedBy string    `gorm:"size:64;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

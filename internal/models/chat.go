package models

import "time"

// ChatChannel is the one-per-order chat record. Created lazily on first
// access, never deleted.
type ChatChannel struct {
	ID         uint64     `json:"id"`
	OrderID    uint64     `json:"order_id"`
	CustomerID uint64     `json:"customer_id"`
	RiderID    *uint64    `json:"rider_id,omitempty"`
	IsActive   bool       `json:"is_active"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ChatMessage is immutable once appended.
type ChatMessage struct {
	ID        uint64    `json:"id"`
	ChannelID uint64    `json:"channel_id"`
	Sender    Role      `json:"sender"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

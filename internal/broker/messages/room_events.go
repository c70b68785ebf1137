package messages

import "time"

// Payload'ы событий комнат. Несут и durable id заказа, и человекочитаемый
// код, чтобы подписчик с любым из идентификаторов мог сматчить событие.

type ChatMessagePosted struct {
	OrderID   uint64    `json:"order_id"`
	OrderCode string    `json:"order_code"`
	MessageID uint64    `json:"message_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

type RiderPositionUpdated struct {
	OrderID   uint64    `json:"order_id"`
	OrderCode string    `json:"order_code"`
	RiderID   uint64    `json:"rider_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Online    bool      `json:"online"`
	UpdatedAt time.Time `json:"updated_at"`
}

package messages

import "time"

// RiderLocationPing — сообщение топика rider.location. Публикует либо
// наш HTTP-эндпоинт пинга, либо мобильный шлюз курьеров напрямую.
type RiderLocationPing struct {
	RiderID  uint64    `json:"rider_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Online   bool      `json:"online"`
	PingedAt time.Time `json:"pinged_at"`
}

package models

import "time"

// Live-location записи живут только в redis: last write wins, без истории.
// Пропущенный апдейт перекрывается следующим пингом.

const (
	RiderOnline  = "online"
	RiderOffline = "offline"
)

type RiderState struct {
	RiderID   uint64    `json:"rider_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Online    bool      `json:"online"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RouteMeta is captured once at rider assignment and never updated.
type RouteMeta struct {
	Polyline  string `json:"polyline"`
	DistanceM int64  `json:"distance_m"`
	DurationS int64  `json:"duration_s"`
}

type OrderTracking struct {
	OrderID   uint64    `json:"order_id"`
	OrderCode string    `json:"order_code"`
	RiderID   uint64    `json:"rider_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Status    string    `json:"status"`
	Route     RouteMeta `json:"route"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Состояния трекинга заказа в redis (не путать со статусом заказа в БД).
const (
	TrackingStatusAssigned = "assigned"
	TrackingStatusMoving   = "moving"
)

// TrackingAssignment is what the order CRUD app hands us when a rider is
// assigned. Rider position may be unknown at that point.
type TrackingAssignment struct {
	RiderID  uint64    `json:"rider_id"`
	RiderLat *float64  `json:"rider_lat,omitempty"`
	RiderLng *float64  `json:"rider_lng,omitempty"`
	Route    RouteMeta `json:"route"`
}

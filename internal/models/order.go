package models

import "time"

// Статусы заказа. Жизненным циклом владеет основное CRUD-приложение,
// мы их только читаем.
const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

type Order struct {
	ID          uint64
	Code        string
	Status      string
	DeliveredAt *time.Time
	CustomerID  uint64
	RiderID     *uint64
	PickupLat   float64
	PickupLng   float64
}

// Role identifies which side of an order chat an actor is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleRider    Role = "rider"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer:
		return RoleCustomer, true
	case RoleRider:
		return RoleRider, true
	}
	return "", false
}

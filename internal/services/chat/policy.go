package chat

import (
	"time"

	"github.com/BearBump/CourierChat/internal/models"
)

// DeliveredChatWindow — сколько чат остаётся открытым после доставки.
const DeliveredChatWindow = 30 * time.Minute

// Allowed решает, открыт ли чат заказа в момент now. Это вычисляемое
// свойство состояния заказа, а не однажды взведённый флаг: между двумя
// чтениями без единой записи канал может закрыться (окно после доставки).
// pending и cancelled чат не открывают никогда.
func Allowed(o *models.Order, now time.Time) bool {
	switch o.Status {
	case models.OrderStatusConfirmed,
		models.OrderStatusPreparing,
		models.OrderStatusReady,
		models.OrderStatusOutForDelivery:
		return true
	case models.OrderStatusDelivered:
		if o.DeliveredAt == nil {
			return false
		}
		return !now.After(o.DeliveredAt.Add(DeliveredChatWindow))
	default:
		return false
	}
}

// Authorized проверяет личность, отдельно от открытости чата: со стороны
// customer действовать может только владелец заказа, со стороны rider —
// только назначенный сейчас курьер. Пока курьер не назначен, любой
// rider-запрос отклоняется независимо от статуса.
func Authorized(o *models.Order, actorID uint64, role models.Role) bool {
	switch role {
	case models.RoleCustomer:
		return o.CustomerID == actorID
	case models.RoleRider:
		return o.RiderID != nil && *o.RiderID == actorID
	}
	return false
}

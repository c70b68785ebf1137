package locations

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/CourierChat/internal/broker/messages"
	"github.com/BearBump/CourierChat/internal/broker/rooms"
	"github.com/BearBump/CourierChat/internal/cache/redistrack"
	"github.com/BearBump/CourierChat/internal/models"
)

type Store interface {
	SetRiderState(ctx context.Context, st models.RiderState) error
	BindRiderOrder(ctx context.Context, riderID, orderID uint64) error
	BoundOrder(ctx context.Context, riderID uint64) (uint64, bool, error)
	UnbindRider(ctx context.Context, riderID uint64) error
	SetOrderTracking(ctx context.Context, t models.OrderTracking) error
	SetOrderRiderPosition(ctx context.Context, orderID uint64, lat, lng float64, at time.Time) error
	GetOrderTracking(ctx context.Context, orderID uint64) (*models.OrderTracking, bool, error)
	DeleteOrderTracking(ctx context.Context, orderID uint64) error
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type RoomPublisher interface {
	Publish(room string, ev rooms.Event) (delivered, dropped int)
}

// Service — best-effort целиком: ни одна операция не возвращает ошибку
// наружу. Недоступный redis — это потерянный пинг, не инцидент; следующий
// пинг всё вылечит. Ошибки сторов пишем в лог и едем дальше.
type Service struct {
	store  Store
	broker RoomPublisher

	limiter    Limiter
	pingLimit  int64
	pingWindow time.Duration
}

func New(store Store, broker RoomPublisher, limiter Limiter, pingLimit int64, pingWindow time.Duration) *Service {
	if pingLimit <= 0 {
		pingLimit = 120
	}
	if pingWindow <= 0 {
		pingWindow = time.Minute
	}
	return &Service{
		store:      store,
		broker:     broker,
		limiter:    limiter,
		pingLimit:  pingLimit,
		pingWindow: pingWindow,
	}
}

type OpenTrackingInput struct {
	OrderID    uint64
	OrderCode  string
	PickupLat  float64
	PickupLng  float64
	Assignment models.TrackingAssignment
}

// OpenTracking сеет трекинг заказа при назначении курьера. Позиция
// курьера может быть ещё неизвестна — тогда стартуем с точки ресторана.
// Маршрутные метаданные пишутся один раз и дальше не обновляются.
func (s *Service) OpenTracking(ctx context.Context, in OpenTrackingInput) {
	lat, lng := in.PickupLat, in.PickupLng
	if in.Assignment.RiderLat != nil && in.Assignment.RiderLng != nil {
		lat, lng = *in.Assignment.RiderLat, *in.Assignment.RiderLng
	}

	t := models.OrderTracking{
		OrderID:   in.OrderID,
		OrderCode: in.OrderCode,
		RiderID:   in.Assignment.RiderID,
		Lat:       lat,
		Lng:       lng,
		Status:    models.TrackingStatusAssigned,
		Route:     in.Assignment.Route,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.SetOrderTracking(ctx, t); err != nil {
		slog.Warn("open tracking: seed failed", "order_id", in.OrderID, "error", err)
		return
	}
	if err := s.store.BindRiderOrder(ctx, in.Assignment.RiderID, in.OrderID); err != nil {
		slog.Warn("open tracking: bind failed", "order_id", in.OrderID,
			"rider_id", in.Assignment.RiderID, "error", err)
	}
}

// HandlePing перетирает live-позицию курьера и, если за ним числится
// заказ, зеркалит её в трекинг заказа и раздаёт подписчикам комнат.
func (s *Service) HandlePing(ctx context.Context, ping messages.RiderLocationPing) {
	if s.limiter != nil {
		ok, n, err := s.limiter.Allow(ctx, redistrack.PingKey(ping.RiderID), s.pingLimit, s.pingWindow)
		if err != nil {
			slog.Warn("ping ratelimit check failed", "rider_id", ping.RiderID, "error", err)
		} else if !ok {
			slog.Debug("ping dropped by ratelimit", "rider_id", ping.RiderID, "count", n)
			return
		}
	}

	at := ping.PingedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if err := s.store.SetRiderState(ctx, models.RiderState{
		RiderID:   ping.RiderID,
		Lat:       ping.Lat,
		Lng:       ping.Lng,
		Online:    ping.Online,
		UpdatedAt: at,
	}); err != nil {
		slog.Warn("set rider state failed", "rider_id", ping.RiderID, "error", err)
		return
	}

	orderID, bound, err := s.store.BoundOrder(ctx, ping.RiderID)
	if err != nil {
		slog.Warn("bound order lookup failed", "rider_id", ping.RiderID, "error", err)
		return
	}
	if !bound {
		return
	}

	track, found, err := s.store.GetOrderTracking(ctx, orderID)
	if err != nil || !found {
		if err != nil {
			slog.Warn("order tracking lookup failed", "order_id", orderID, "error", err)
		}
		return
	}
	if err := s.store.SetOrderRiderPosition(ctx, orderID, ping.Lat, ping.Lng, at); err != nil {
		slog.Warn("mirror rider position failed", "order_id", orderID, "error", err)
		return
	}

	s.publishPosition(messages.RiderPositionUpdated{
		OrderID:   orderID,
		OrderCode: track.OrderCode,
		RiderID:   ping.RiderID,
		Lat:       ping.Lat,
		Lng:       ping.Lng,
		Online:    ping.Online,
		UpdatedAt: at,
	})
}

// UpdateOrderRiderPosition — вариант для вызова, когда заказ уже известен
// и резолвить привязку курьера не нужно.
func (s *Service) UpdateOrderRiderPosition(ctx context.Context, orderID uint64, lat, lng float64) {
	at := time.Now().UTC()

	track, found, err := s.store.GetOrderTracking(ctx, orderID)
	if err != nil || !found {
		if err != nil {
			slog.Warn("order tracking lookup failed", "order_id", orderID, "error", err)
		}
		return
	}
	if err := s.store.SetOrderRiderPosition(ctx, orderID, lat, lng, at); err != nil {
		slog.Warn("set order rider position failed", "order_id", orderID, "error", err)
		return
	}

	s.publishPosition(messages.RiderPositionUpdated{
		OrderID:   orderID,
		OrderCode: track.OrderCode,
		RiderID:   track.RiderID,
		Lat:       lat,
		Lng:       lng,
		Online:    true,
		UpdatedAt: at,
	})
}

// CloseTracking зовётся CRUD-приложением на delivered/cancelled.
func (s *Service) CloseTracking(ctx context.Context, orderID uint64) {
	track, found, err := s.store.GetOrderTracking(ctx, orderID)
	if err != nil {
		slog.Warn("close tracking: lookup failed", "order_id", orderID, "error", err)
	}
	if found {
		if err := s.store.UnbindRider(ctx, track.RiderID); err != nil {
			slog.Warn("close tracking: unbind failed", "rider_id", track.RiderID, "error", err)
		}
	}
	if err := s.store.DeleteOrderTracking(ctx, orderID); err != nil {
		slog.Warn("close tracking: delete failed", "order_id", orderID, "error", err)
	}
}

// OrderTracking — снапшот для читателей. Отсутствие записи — штатный
// случай, читатель откатывается на последнее известное или дефолт.
func (s *Service) OrderTracking(ctx context.Context, orderID uint64) (*models.OrderTracking, bool) {
	track, found, err := s.store.GetOrderTracking(ctx, orderID)
	if err != nil {
		slog.Warn("order tracking read failed", "order_id", orderID, "error", err)
		return nil, false
	}
	return track, found
}

func (s *Service) publishPosition(upd messages.RiderPositionUpdated) {
	if s.broker == nil {
		return
	}
	data, err := json.Marshal(upd)
	if err != nil {
		slog.Error("marshal position event", "error", err)
		return
	}
	ev := rooms.Event{Type: rooms.EventRiderPosition, Data: data}
	roomsFor := []string{strconv.FormatUint(upd.OrderID, 10)}
	if upd.OrderCode != "" {
		roomsFor = append(roomsFor, upd.OrderCode)
	}
	for _, room := range roomsFor {
		s.broker.Publish(room, ev)
	}
}

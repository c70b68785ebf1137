package redistrack

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/BearBump/CourierChat/internal/models"
)

// Store держит быстро меняющееся зеркало "где сейчас курьер" отдельно от
// основной базы. Контракт — last write wins: записи перетираются целиком,
// истории нет. TTL обновляется на каждой записи, брошенные ключи
// протухают сами.
type Store struct {
	c   *redis.Client
	ttl time.Duration
}

func New(addr string, ttl time.Duration) *Store {
	return &Store{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		ttl: ttl,
	}
}

func riderLiveKey(riderID uint64) string  { return fmt.Sprintf("rider:%d:live", riderID) }
func riderOrderKey(riderID uint64) string { return fmt.Sprintf("rider:%d:order", riderID) }
func orderTrackKey(orderID uint64) string { return fmt.Sprintf("order:%d:track", orderID) }

func (s *Store) SetRiderState(ctx context.Context, st models.RiderState) error {
	key := riderLiveKey(st.RiderID)
	status := models.RiderOffline
	if st.Online {
		status = models.RiderOnline
	}

	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"lat":        st.Lat,
		"lng":        st.Lng,
		"status":     status,
		"updated_at": st.UpdatedAt.UTC().UnixMilli(),
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis set rider state")
	}
	return nil
}

func (s *Store) GetRiderState(ctx context.Context, riderID uint64) (*models.RiderState, bool, error) {
	vals, err := s.c.HGetAll(ctx, riderLiveKey(riderID)).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get rider state")
	}
	if len(vals) == 0 {
		return nil, false, nil
	}

	st := models.RiderState{RiderID: riderID}
	st.Lat, _ = strconv.ParseFloat(vals["lat"], 64)
	st.Lng, _ = strconv.ParseFloat(vals["lng"], 64)
	st.Online = vals["status"] == models.RiderOnline
	if ms, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		st.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return &st, true, nil
}

// BindRiderOrder запоминает, какой заказ курьер везёт сейчас, чтобы пинг
// позиции можно было отзеркалить в трекинг заказа.
func (s *Store) BindRiderOrder(ctx context.Context, riderID, orderID uint64) error {
	if err := s.c.Set(ctx, riderOrderKey(riderID), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis bind rider order")
	}
	return nil
}

func (s *Store) BoundOrder(ctx context.Context, riderID uint64) (uint64, bool, error) {
	val, err := s.c.Get(ctx, riderOrderKey(riderID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "redis bound order")
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, errors.Wrap(err, "parse bound order")
	}
	return id, true, nil
}

func (s *Store) UnbindRider(ctx context.Context, riderID uint64) error {
	if err := s.c.Del(ctx, riderOrderKey(riderID)).Err(); err != nil {
		return errors.Wrap(err, "redis unbind rider")
	}
	return nil
}

func (s *Store) SetOrderTracking(ctx context.Context, t models.OrderTracking) error {
	key := orderTrackKey(t.OrderID)

	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"order_code":       t.OrderCode,
		"rider_id":         t.RiderID,
		"lat":              t.Lat,
		"lng":              t.Lng,
		"status":           t.Status,
		"route_polyline":   t.Route.Polyline,
		"route_distance_m": t.Route.DistanceM,
		"route_duration_s": t.Route.DurationS,
		"updated_at":       t.UpdatedAt.UTC().UnixMilli(),
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis set order tracking")
	}
	return nil
}

// SetOrderRiderPosition перетирает только позиционные поля, маршрутные
// метаданные не трогает.
func (s *Store) SetOrderRiderPosition(ctx context.Context, orderID uint64, lat, lng float64, at time.Time) error {
	key := orderTrackKey(orderID)

	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"lat":        lat,
		"lng":        lng,
		"status":     models.TrackingStatusMoving,
		"updated_at": at.UTC().UnixMilli(),
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis set order rider position")
	}
	return nil
}

func (s *Store) GetOrderTracking(ctx context.Context, orderID uint64) (*models.OrderTracking, bool, error) {
	vals, err := s.c.HGetAll(ctx, orderTrackKey(orderID)).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get order tracking")
	}
	if len(vals) == 0 {
		return nil, false, nil
	}

	t := models.OrderTracking{OrderID: orderID}
	t.OrderCode = vals["order_code"]
	t.RiderID, _ = strconv.ParseUint(vals["rider_id"], 10, 64)
	t.Lat, _ = strconv.ParseFloat(vals["lat"], 64)
	t.Lng, _ = strconv.ParseFloat(vals["lng"], 64)
	t.Status = vals["status"]
	t.Route.Polyline = vals["route_polyline"]
	t.Route.DistanceM, _ = strconv.ParseInt(vals["route_distance_m"], 10, 64)
	t.Route.DurationS, _ = strconv.ParseInt(vals["route_duration_s"], 10, 64)
	if ms, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		t.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return &t, true, nil
}

func (s *Store) DeleteOrderTracking(ctx context.Context, orderID uint64) error {
	if err := s.c.Del(ctx, orderTrackKey(orderID)).Err(); err != nil {
		return errors.Wrap(err, "redis delete order tracking")
	}
	return nil
}

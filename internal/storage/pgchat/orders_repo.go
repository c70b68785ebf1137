package pgchat

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/CourierChat/internal/models"
)

const orderColumns = `
  id, code, status, delivered_at,
  customer_id, rider_id,
  pickup_lat, pickup_lng`

// Заказы пишет CRUD-приложение; у нас только чтение.

func (s *Storage) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *Storage) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE code = $1`, code)
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Code, &o.Status, &o.DeliveredAt,
		&o.CustomerID, &o.RiderID,
		&o.PickupLat, &o.PickupLng,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

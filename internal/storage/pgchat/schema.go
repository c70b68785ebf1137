package pgchat

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		// Таблицей orders владеет CRUD-приложение (общая база). Здесь
		// создаём её только чтобы сервис поднимался на пустой базе.
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  code TEXT NOT NULL,
  status TEXT NOT NULL,
  delivered_at TIMESTAMPTZ NULL,
  customer_id BIGINT NOT NULL,
  rider_id BIGINT NULL,
  pickup_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
  pickup_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (code)
)`,
		`
CREATE TABLE IF NOT EXISTS chat_channels (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id),
  customer_id BIGINT NOT NULL,
  rider_id BIGINT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  closed_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (order_id)
)`,
		`
CREATE TABLE IF NOT EXISTS chat_messages (
  id BIGSERIAL PRIMARY KEY,
  channel_id BIGINT NOT NULL REFERENCES chat_channels(id) ON DELETE CASCADE,
  sender TEXT NOT NULL CHECK (sender IN ('customer','rider')),
  body TEXT NOT NULL,
  sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_channel_id_id ON chat_messages(channel_id, id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

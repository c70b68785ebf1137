package pgchat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/CourierChat/internal/models"
)

// GetOrCreateChannel лениво создаёт канал чата для заказа. Уникальный
// индекс по order_id делает конкурентное первое обращение безопасным:
// один insert выигрывает, остальные видят существующую запись. Заодно
// подтягиваем rider_id, если курьера назначили после создания канала.
func (s *Storage) GetOrCreateChannel(ctx context.Context, o *models.Order) (*models.ChatChannel, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO chat_channels (order_id, customer_id, rider_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, TRUE, $4, $4)
ON CONFLICT (order_id)
DO UPDATE SET rider_id = EXCLUDED.rider_id, updated_at = EXCLUDED.updated_at
RETURNING id, order_id, customer_id, rider_id, is_active, closed_at, created_at, updated_at
`, o.ID, o.CustomerID, o.RiderID, now)

	var ch models.ChatChannel
	if err := row.Scan(
		&ch.ID, &ch.OrderID, &ch.CustomerID, &ch.RiderID,
		&ch.IsActive, &ch.ClosedAt, &ch.CreatedAt, &ch.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "get or create channel")
	}
	return &ch, nil
}

func (s *Storage) ListMessages(ctx context.Context, channelID uint64, limit, offset int) ([]*models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, channel_id, sender, body, sent_at
FROM chat_messages
WHERE channel_id = $1
ORDER BY id ASC
LIMIT $2 OFFSET $3
`, channelID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select messages")
	}
	defer rows.Close()

	out := make([]*models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, &m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// AppendMessage — атомарный insert в append-only таблицу. Конкурентные
// записи в один канал не теряются, порядок задаёт serial id. Timestamp
// ставит база, не клиент.
func (s *Storage) AppendMessage(ctx context.Context, channelID uint64, sender models.Role, body string) (*models.ChatMessage, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO chat_messages (channel_id, sender, body)
VALUES ($1, $2, $3)
RETURNING id, channel_id, sender, body, sent_at
`, channelID, sender, body)

	var m models.ChatMessage
	if err := row.Scan(&m.ID, &m.ChannelID, &m.Sender, &m.Body, &m.SentAt); err != nil {
		return nil, errors.Wrap(err, "append message")
	}
	return &m, nil
}

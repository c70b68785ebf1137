package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/CourierChat/internal/broker/messages"
	"github.com/BearBump/CourierChat/internal/broker/rooms"
	"github.com/BearBump/CourierChat/internal/models"
	"github.com/BearBump/CourierChat/internal/storage/pgchat"
)

var (
	// ErrDenied — единый отказ для "заказа нет", "не твой заказ" и "чат
	// закрыт". Не различаем их наружу, чтобы не палить, какие заказы
	// существуют. Настоящая причина уходит в лог.
	ErrDenied = errors.New("chat access denied")

	// ErrEmptyBody — видимая клиенту валидация, до похода в стор.
	ErrEmptyBody = errors.New("message body is empty")
)

type Repository interface {
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
	GetOrCreateChannel(ctx context.Context, o *models.Order) (*models.ChatChannel, error)
	ListMessages(ctx context.Context, channelID uint64, limit, offset int) ([]*models.ChatMessage, error)
	AppendMessage(ctx context.Context, channelID uint64, sender models.Role, body string) (*models.ChatMessage, error)
}

type RoomPublisher interface {
	Publish(room string, ev rooms.Event) (delivered, dropped int)
}

type OrderSummary struct {
	ID     uint64 `json:"id"`
	Code   string `json:"code"`
	Status string `json:"status"`
}

type ChannelView struct {
	Order    OrderSummary          `json:"order"`
	Messages []*models.ChatMessage `json:"messages"`
	Allowed  bool                  `json:"allowed"`
}

type Service struct {
	repo         Repository
	broker       RoomPublisher
	historyLimit int
}

func New(repo Repository, broker RoomPublisher, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Service{repo: repo, broker: broker, historyLimit: historyLimit}
}

// resolveOrder принимает либо durable id, либо человекочитаемый код.
// Числовой ключ сначала пробуем как id, с откатом на код: коды вида
// "7421" тоже встречаются.
func (s *Service) resolveOrder(ctx context.Context, key string) (*models.Order, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pgchat.ErrNotFound
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		o, err := s.repo.GetOrderByID(ctx, id)
		if !errors.Is(err, pgchat.ErrNotFound) {
			return o, err
		}
	}
	return s.repo.GetOrderByCode(ctx, key)
}

// ChannelForViewer отдаёт канал чата глазами конкретного участника.
// Канал создаётся лениво. История видна и при закрытом чате — allowed
// лишь говорит клиенту, что постить сейчас нельзя (сервер это всё равно
// проверит сам в PostMessage).
func (s *Service) ChannelForViewer(ctx context.Context, lookupKey string, viewerID uint64, role models.Role) (*ChannelView, error) {
	o, err := s.resolveOrder(ctx, lookupKey)
	if errors.Is(err, pgchat.ErrNotFound) {
		slog.Info("chat view denied", "reason", "order not found", "key", lookupKey)
		return nil, ErrDenied
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve order")
	}
	if !Authorized(o, viewerID, role) {
		slog.Info("chat view denied", "reason", "identity mismatch",
			"order_id", o.ID, "viewer_id", viewerID, "role", string(role))
		return nil, ErrDenied
	}

	ch, err := s.repo.GetOrCreateChannel(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "get or create channel")
	}
	msgs, err := s.repo.ListMessages(ctx, ch.ID, s.historyLimit, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}

	return &ChannelView{
		Order:    OrderSummary{ID: o.ID, Code: o.Code, Status: o.Status},
		Messages: msgs,
		Allowed:  Allowed(o, time.Now().UTC()),
	}, nil
}

// PostMessage: валидация → резолв → авторизация → политика → durable
// append → best-effort фан-аут. Сообщение считается отправленным сразу
// после persist'а; не доехало до подписчиков — догонят следующим fetch'ем.
func (s *Service) PostMessage(ctx context.Context, lookupKey string, role models.Role, actorID uint64, body string) (*messages.ChatMessagePosted, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	o, err := s.resolveOrder(ctx, lookupKey)
	if errors.Is(err, pgchat.ErrNotFound) {
		slog.Info("chat post denied", "reason", "order not found", "key", lookupKey)
		return nil, ErrDenied
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve order")
	}
	if !Authorized(o, actorID, role) {
		slog.Info("chat post denied", "reason", "identity mismatch",
			"order_id", o.ID, "actor_id", actorID, "role", string(role))
		return nil, ErrDenied
	}
	if !Allowed(o, time.Now().UTC()) {
		slog.Info("chat post denied", "reason", "chat closed",
			"order_id", o.ID, "status", o.Status)
		return nil, ErrDenied
	}

	ch, err := s.repo.GetOrCreateChannel(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "get or create channel")
	}
	msg, err := s.repo.AppendMessage(ctx, ch.ID, role, body)
	if err != nil {
		// Единственный путь, где отказ обязан быть виден: что не легло в
		// базу — не отправлено. Без авторетраев, иначе задвоим сообщение.
		return nil, errors.Wrap(err, "append message")
	}

	posted := &messages.ChatMessagePosted{
		OrderID:   o.ID,
		OrderCode: o.Code,
		MessageID: msg.ID,
		Sender:    string(msg.Sender),
		Body:      msg.Body,
		SentAt:    msg.SentAt,
	}
	s.fanOut(posted)
	return posted, nil
}

func (s *Service) fanOut(posted *messages.ChatMessagePosted) {
	if s.broker == nil {
		return
	}
	data, err := json.Marshal(posted)
	if err != nil {
		slog.Error("marshal chat event", "error", err)
		return
	}
	ev := rooms.Event{Type: rooms.EventChatMessage, Data: data}
	for _, room := range []string{strconv.FormatUint(posted.OrderID, 10), posted.OrderCode} {
		if _, dropped := s.broker.Publish(room, ev); dropped > 0 {
			slog.Warn("chat event dropped for slow subscribers",
				"room", room, "dropped", dropped)
		}
	}
}
